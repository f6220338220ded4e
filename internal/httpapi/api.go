package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/eco-signal/internal/bootstrap"
	"github.com/yuqie6/eco-signal/internal/eventbus"
	"github.com/yuqie6/eco-signal/internal/pkg/buildinfo"
	"github.com/yuqie6/eco-signal/internal/repository"
)

type apiServer struct {
	core      *bootstrap.Core
	startTime time.Time
}

func newAPI(core *bootstrap.Core) *apiServer {
	return &apiServer{core: core, startTime: time.Now()}
}

func (a *apiServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", a.wrapGET(a.handleHealth))

	mux.HandleFunc("/status", a.wrapGET(a.handleStatus))
	mux.HandleFunc("/ranking", a.wrapGET(a.handleRanking))
	mux.HandleFunc("/users", a.wrapGET(a.handleUsers))
	mux.HandleFunc("/user/{name}/history", a.wrapGET(a.handleUserHistory))
	mux.HandleFunc("/user/{name}/badges", a.wrapGET(a.handleUserBadges))
	mux.HandleFunc("/recent", a.wrapGET(a.handleRecent))

	mux.HandleFunc("/admin/poll", a.wrapGET(a.handleAdminPoll))
	mux.HandleFunc("/api/cron/poll", a.wrapGET(a.handleCronPoll))
	mux.HandleFunc("/api/events", a.handleSSE)
}

func (a *apiServer) wrapGET(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"name":       a.core.Cfg.App.Name,
		"version":    a.core.Cfg.App.Version,
		"commit":     buildinfo.Commit,
		"started_at": a.startTime.Format(time.RFC3339),
	})
}

// handleStatus 当前信号灯状态
// 按需模式下每次查询先同步跑一轮轮询；常驻模式下后台循环已经在推，
// 这里只做惰性重算，两种模式在同一时刻答案一致。
func (a *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if a.core.Cfg.Server.OnDemand {
		if _, err := a.core.Services.Poller.RunOnce(r.Context()); err != nil {
			// 轮询失败不挡状态查询，降级为只回聚合器现状
			slog.Error("按需轮询失败", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, a.core.Services.Signal.Read())
}

func (a *apiServer) handleRanking(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)
	entries, err := a.core.Repos.Activity.MonthlyRanking(r.Context(), limit, a.core.RankingLocation())
	if err != nil {
		// 查询失败回空列表，调用方把“没数据”当正常结果
		slog.Error("查询月度排行失败", "error", err)
		entries = nil
	}
	if entries == nil {
		entries = []repository.RankingEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *apiServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	names, err := a.core.Repos.User.AllNames(r.Context())
	if err != nil {
		slog.Error("查询用户列表失败", "error", err)
		names = nil
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *apiServer) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "user name required")
		return
	}

	userID, err := a.core.Repos.User.GetOrCreate(r.Context(), name)
	if err != nil {
		slog.Error("获取用户失败", "user", name, "error", err)
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	limit := parseLimit(r, 20)
	entries, err := a.core.Repos.Activity.HistoryByUser(r.Context(), userID, limit)
	if err != nil {
		slog.Error("查询用户历史失败", "user", name, "error", err)
		entries = nil
	}
	if entries == nil {
		entries = []repository.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *apiServer) handleUserBadges(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "user name required")
		return
	}

	userID, err := a.core.Repos.User.GetOrCreate(r.Context(), name)
	if err != nil {
		slog.Error("获取用户失败", "user", name, "error", err)
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	records, err := a.core.Repos.Badge.AwardsByUser(r.Context(), userID)
	if err != nil {
		slog.Error("查询用户徽章失败", "user", name, "error", err)
		records = nil
	}
	if records == nil {
		records = []repository.AwardRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *apiServer) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)
	entries, err := a.core.Repos.Activity.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("查询最近活动失败", "error", err)
		entries = nil
	}
	if entries == nil {
		entries = []repository.RecentEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleAdminPoll 管理员手动触发一轮轮询
// 口令精确比对，不对就是固定 403，不解释原因。
func (a *apiServer) handleAdminPoll(w http.ResponseWriter, r *http.Request) {
	password := r.URL.Query().Get("password")
	expected := a.core.Cfg.Server.AdminPassword
	if subtle.ConstantTimeCompare([]byte(password), []byte(expected)) != 1 {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	processed, err := a.core.Services.Poller.RunOnce(r.Context())
	if err != nil {
		slog.Error("管理触发轮询失败", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "poll failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"pages_processed": processed,
	})
}

// handleCronPoll 按需部署下的外部定时触发入口
func (a *apiServer) handleCronPoll(w http.ResponseWriter, r *http.Request) {
	processed, err := a.core.Services.Poller.RunOnce(r.Context())
	if err != nil {
		slog.Error("定时触发轮询失败", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "failed to process notion events",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"pages_processed": processed,
	})
}

// handleSSE 领域事件推送
func (a *apiServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sub := a.core.Hub.Subscribe(ctx, 32)

	// initial event
	_, _ = io.WriteString(w, "event: ready\n")
	_, _ = io.WriteString(w, "data: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, "event: ping\n")
			_, _ = io.WriteString(w, "data: {}\n\n")
			flusher.Flush()
		case evt, ok := <-sub:
			if !ok {
				return
			}
			writeSSEEvent(w, evt.Type, evt)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, name string, evt eventbus.Event) {
	b, _ := json.Marshal(evt)
	_, _ = io.WriteString(w, "event: "+sanitizeSSEName(name)+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = w.Write(b)
	_, _ = io.WriteString(w, "\n\n")
}

func sanitizeSSEName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return "message"
	}
	n = strings.ReplaceAll(n, "\n", "")
	n = strings.ReplaceAll(n, "\r", "")
	return n
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > 100 {
		return def
	}
	return v
}
