package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const queryPayload = `{
	"results": [
		{
			"id": "page-1",
			"properties": {
				"생성자": {"created_by": {"name": "김철수"}},
				"파일과 미디어": {"files": [{"file": {"url": "https://files.notion.so/a.jpg"}}]}
			}
		},
		{
			"id": "page-2",
			"properties": {
				"생성자": {"created_by": {"name": "이영희"}},
				"파일과 미디어": {"files": []}
			}
		}
	]
}`

func TestQueryRecent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/databases/db-1/query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Notion-Version"); got != apiVersion {
			t.Errorf("Notion-Version=%s, want %s", got, apiVersion)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization=%s", got)
		}

		var req queryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PageSize != 5 || len(req.Sorts) != 1 || req.Sorts[0].Direction != "descending" {
			t.Errorf("unexpected query request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(queryPayload))
	}))
	defer srv.Close()

	c := NewClient(&ClientConfig{APIKey: "secret", DatabaseID: "db-1", BaseURL: srv.URL})

	pages, err := c.QueryRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("QueryRecent error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages=%d, want 2", len(pages))
	}

	if pages[0].CreatorName != "김철수" || pages[0].PhotoURL != "https://files.notion.so/a.jpg" {
		t.Fatalf("page-1 distilled wrong: %+v", pages[0])
	}
	if !pages[0].HasPhoto() || !pages[0].HasCreator() {
		t.Fatal("page-1 should satisfy both preconditions")
	}

	// page without attachments: creator only
	if pages[1].HasPhoto() {
		t.Fatal("page-2 should not report a photo")
	}
	if !pages[1].HasCreator() {
		t.Fatal("page-2 should report a creator")
	}
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pages/page-9" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"id": "page-9",
			"properties": {
				"생성자": {"created_by": {"name": "박민수"}},
				"파일과 미디어": {"files": [{"file": {"url": "https://files.notion.so/b.jpg"}}]}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(&ClientConfig{APIKey: "secret", DatabaseID: "db-1", BaseURL: srv.URL})

	page, err := c.FetchPage(context.Background(), "page-9")
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if page.ID != "page-9" || page.CreatorName != "박민수" || !page.HasPhoto() {
		t.Fatalf("page distilled wrong: %+v", page)
	}
}

func TestAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(&ClientConfig{APIKey: "secret", DatabaseID: "db-1", BaseURL: srv.URL})

	if _, err := c.QueryRecent(context.Background(), 5); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
