package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yuqie6/eco-signal/internal/bootstrap"
	"github.com/yuqie6/eco-signal/internal/pkg/config"
	"github.com/yuqie6/eco-signal/internal/service"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	core := &bootstrap.Core{Cfg: &config.Config{}}
	core.Cfg.Server.AdminPassword = "hunter2"
	core.Services.Signal = service.NewSignalState(config.SignalConfig{
		BasePoints:       100,
		GreenThreshold:   150,
		YellowThreshold:  120,
		BonusDurationSec: 60,
	})

	mux := http.NewServeMux()
	newAPI(core).registerRoutes(mux)
	return mux
}

func TestStatusEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}

	var snap service.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if snap.SignalLevel != service.LevelOrange || snap.CurrentPoints != 100 {
		t.Fatalf("snapshot=%+v, want orange/100", snap)
	}
	if snap.LastActivity == "" {
		t.Fatal("last_activity must carry the placeholder, not empty")
	}
}

func TestStatusRejectsPost(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rec.Code)
	}
}

func TestAdminPollRejectsBadPassword(t *testing.T) {
	mux := newTestMux(t)

	for _, target := range []string{"/admin/poll", "/admin/poll?password=wrong"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: status=%d, want 403", target, rec.Code)
		}

		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["error"] != "access denied" {
			t.Fatalf("%s: body=%v, want fixed access denied message", target, body)
		}
	}
}

func TestUserHistoryRequiresName(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user//history", nil))

	if rec.Code == http.StatusOK {
		t.Fatalf("status=%d, empty user name must not succeed", rec.Code)
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		query string
		def   int
		want  int
	}{
		{"", 10, 10},
		{"limit=5", 10, 5},
		{"limit=0", 10, 10},
		{"limit=-3", 10, 10},
		{"limit=101", 10, 10}, // capped
		{"limit=abc", 10, 10},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ranking?"+tc.query, nil)
		if got := parseLimit(r, tc.def); got != tc.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tc.query, got, tc.want)
		}
	}
}

func TestSanitizeSSEName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"signal_changed", "signal_changed"},
		{"", "message"},
		{"bad\nname", "badname"},
		{"  padded  ", "padded"},
	}

	for _, tc := range cases {
		if got := sanitizeSSEName(tc.in); got != tc.want {
			t.Errorf("sanitizeSSEName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
