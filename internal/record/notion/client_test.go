package notion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&model.Config{
		NotionToken:  "secret-token",
		StudentsDB:   "db-students",
		QuestionsDB:  "db-questions",
		ResponsesDB:  "db-responses",
		ReportsDB:    "db-reports",
		AdminUserID:  "admin-1",
		NotionAPIURL: srv.URL,
	})
}

func pageJSON(id, edited string, properties map[string]any) map[string]any {
	return map[string]any{
		"id":               id,
		"last_edited_time": edited,
		"properties":       properties,
	}
}

func titleProp(content string) map[string]any {
	return map[string]any{
		"title": []any{map[string]any{"text": map[string]any{"content": content}}},
	}
}

func TestCreateRecord(t *testing.T) {
	var got map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/pages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret-token" {
			t.Errorf("auth header = %q", auth)
		}
		if v := r.Header.Get("Notion-Version"); v == "" {
			t.Error("missing Notion-Version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(pageJSON("page-1", "2026-08-28T10:00:00.000Z", map[string]any{
			"이름": titleProp("Alice"),
		}))
	})

	rec, err := c.CreateRecord(context.Background(), model.CollectionStudents, map[string]any{
		record.FieldName: "Alice",
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if rec.ID != "page-1" {
		t.Errorf("id = %q", rec.ID)
	}
	if rec.Version != "2026-08-28T10:00:00.000Z" {
		t.Errorf("version = %q", rec.Version)
	}
	if rec.String(record.FieldName) != "Alice" {
		t.Errorf("name = %q", rec.String(record.FieldName))
	}

	parent, _ := got["parent"].(map[string]any)
	if parent["database_id"] != "db-students" {
		t.Errorf("parent = %v", parent)
	}
	props, _ := got["properties"].(map[string]any)
	if _, ok := props["이름"]; !ok {
		t.Errorf("properties missing title mapping: %v", props)
	}
}

func TestQueryRecordsPaginates(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/databases/db-responses/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		calls++
		switch calls {
		case 1:
			filter, _ := body["filter"].(map[string]any)
			if filter["property"] != "학생" {
				t.Errorf("filter = %v", filter)
			}
			rel, _ := filter["relation"].(map[string]any)
			if rel["contains"] != "student-1" {
				t.Errorf("relation filter = %v", rel)
			}
			if _, hasCursor := body["start_cursor"]; hasCursor {
				t.Error("first request must not carry a cursor")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"results":     []any{pageJSON("resp-1", "t1", map[string]any{"점수": map[string]any{"number": 8.0}})},
				"has_more":    true,
				"next_cursor": "cursor-2",
			})
		case 2:
			if body["start_cursor"] != "cursor-2" {
				t.Errorf("cursor = %v", body["start_cursor"])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"results":     []any{pageJSON("resp-2", "t2", map[string]any{"점수": map[string]any{"number": 5.0}})},
				"has_more":    false,
				"next_cursor": nil,
			})
		default:
			t.Error("too many query calls")
		}
	})

	recs, err := c.QueryRecords(context.Background(), model.CollectionResponses,
		record.Filter{Field: record.FieldStudentID, Equals: "student-1"})
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recs = %d, want 2", len(recs))
	}
	if recs[0].Int(record.FieldScore) != 8 || recs[1].Int(record.FieldScore) != 5 {
		t.Errorf("scores = %d, %d", recs[0].Int(record.FieldScore), recs[1].Int(record.FieldScore))
	}
}

func TestUpdateRecordConflict(t *testing.T) {
	patches := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(pageJSON("report-1", "2026-08-28T11:00:00.000Z", nil))
		case http.MethodPatch:
			patches++
			json.NewEncoder(w).Encode(pageJSON("report-1", "2026-08-28T11:01:00.000Z", nil))
		}
	})

	_, err := c.UpdateRecord(context.Background(), model.CollectionReports, "report-1",
		map[string]any{record.FieldTotal: 13}, "2026-08-28T10:00:00.000Z")
	if !errors.Is(err, record.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if patches != 0 {
		t.Error("conflicting update must not patch the page")
	}

	rec, err := c.UpdateRecord(context.Background(), model.CollectionReports, "report-1",
		map[string]any{record.FieldTotal: 13}, "2026-08-28T11:00:00.000Z")
	if err != nil {
		t.Fatalf("matching update: %v", err)
	}
	if rec.Version != "2026-08-28T11:01:00.000Z" {
		t.Errorf("version = %q", rec.Version)
	}
	if patches != 1 {
		t.Errorf("patches = %d, want 1", patches)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"service unavailable", http.StatusServiceUnavailable, record.IsUnavailable},
		{"rate limited", http.StatusTooManyRequests, record.IsUnavailable},
		{"not found", http.StatusNotFound, func(err error) bool { return errors.Is(err, record.ErrNotFound) }},
		{"bad request", http.StatusBadRequest, func(err error) bool {
			return err != nil && !record.IsUnavailable(err) && !errors.Is(err, record.ErrNotFound)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := c.GetRecord(context.Background(), model.CollectionStudents, "page-x")
			if !tt.check(err) {
				t.Errorf("unexpected error classification: %v", err)
			}
		})
	}
}

func TestNotifyMentionsAdmin(t *testing.T) {
	var got map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/comments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})

	if err := c.Notify(context.Background(), "report-1", "done"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	parent, _ := got["parent"].(map[string]any)
	if parent["page_id"] != "report-1" {
		t.Errorf("parent = %v", parent)
	}
	parts, _ := got["rich_text"].([]any)
	if len(parts) != 2 {
		t.Fatalf("rich_text parts = %d, want text + mention", len(parts))
	}
	mention, _ := parts[1].(map[string]any)
	m, _ := mention["mention"].(map[string]any)
	user, _ := m["user"].(map[string]any)
	if user["id"] != "admin-1" {
		t.Errorf("mention user = %v", user)
	}
}

func TestDecodeQuestionProperties(t *testing.T) {
	props := map[string]any{
		"이름":  titleProp("1-2"),
		"배점":  map[string]any{"number": 4.0},
		"시험명": map[string]any{"select": map[string]any{"name": "WindTest 1"}},
	}
	fields := decodeProperties(model.CollectionQuestions, props)

	rec := record.Record{Fields: fields}
	if rec.String(record.FieldLabel) != "1-2" {
		t.Errorf("label = %q", rec.String(record.FieldLabel))
	}
	if rec.Int(record.FieldMaxScore) != 4 {
		t.Errorf("max score = %d", rec.Int(record.FieldMaxScore))
	}
	if rec.String(record.FieldTestName) != "WindTest 1" {
		t.Errorf("test name = %q", rec.String(record.FieldTestName))
	}
}
