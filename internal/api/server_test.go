package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lifelog/internal/assistant"
	"lifelog/internal/metrics"
	"lifelog/internal/portability"
	"lifelog/internal/providers"
	"lifelog/internal/schema"
	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

type providerFunc func(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, error)

func (f providerFunc) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, error) {
	return f(ctx, req)
}

func newTestServer(t *testing.T, chatReply, extractJSON string) (*Server, *storage.Store) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "api-test.db")
	store, err := storage.Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := settings.NewService(store, nil, zerolog.Nop())
	registry := schema.NewRegistry(nil)

	p := providerFunc(func(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, error) {
		if req.ResponseSchema != nil {
			return providers.GenerateResponse{Text: extractJSON}, nil
		}
		return providers.GenerateResponse{Text: chatReply}, nil
	})

	orch := assistant.New(assistant.Config{
		Store:         store,
		Settings:      svc,
		Registry:      registry,
		BuildProvider: func(string) (providers.Provider, error) { return p, nil },
		EnvAPIKey:     "test-key",
		DefaultModel:  "test-model",
		Metrics:       metrics.Global(),
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
	})

	port := portability.NewService(store, svc, zerolog.Nop())
	return NewServer(orch, store, svc, registry, port, zerolog.Nop()), store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestChatSendEndToEnd(t *testing.T) {
	extractJSON := `[{"date":"2026-08-28","category":"exercise","event":"morning run","details":{"summary":"5k run","time":"07:00"}}]`
	s, store := newTestServer(t, "nice run!", extractJSON)

	rec := doJSON(t, s, http.MethodPost, "/api/chat/send", map[string]string{"text": "ran 5k this morning"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send: status %d body %s", rec.Code, rec.Body.String())
	}

	var result assistant.TurnResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Reply != "nice run!" || len(result.Entries) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	entries, _ := store.ListEntries(context.Background())
	if len(entries) != 1 || entries[0].Event != "morning run" {
		t.Fatalf("entry not persisted: %+v", entries)
	}
}

func TestChatSendRejectsEmptyText(t *testing.T) {
	s, _ := newTestServer(t, "x", "[]")
	rec := doJSON(t, s, http.MethodPost, "/api/chat/send", map[string]string{"text": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEntryCreateCoercesDetails(t *testing.T) {
	s, _ := newTestServer(t, "x", "[]")

	rec := doJSON(t, s, http.MethodPost, "/api/entries", map[string]any{
		"date":     "2026-08-28",
		"category": "dining",
		"event":    "dinner",
		"details": map[string]any{
			"summary":   "ramen",
			"time":      "19:30",
			"not_a_key": "dropped",
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}

	var e storage.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if e.ID == "" {
		t.Fatal("id not assigned")
	}
	if _, ok := e.Details["not_a_key"]; ok {
		t.Fatal("unknown detail key not dropped")
	}
}

func TestEntryCreateUnknownCategory(t *testing.T) {
	s, _ := newTestServer(t, "x", "[]")
	rec := doJSON(t, s, http.MethodPost, "/api/entries", map[string]any{
		"date": "2026-08-28", "category": "nope", "event": "x",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown category, got %d", rec.Code)
	}
}

func TestSchemaUpdateProtectsStandardFields(t *testing.T) {
	s, _ := newTestServer(t, "x", "[]")

	// Field list missing the summary head must be rejected.
	rec := doJSON(t, s, http.MethodPut, "/api/schemas/dining", []schema.FieldSchema{
		{Key: "time", Type: schema.FieldText},
		{Key: "duration", Type: schema.FieldText},
		{Key: "cuisine", Type: schema.FieldText},
		{Key: "notes", Type: schema.FieldText},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/schemas", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list schemas: %d", rec.Code)
	}
	var all map[string][]schema.FieldSchema
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode schemas: %v", err)
	}
	if _, ok := all["dining"]; !ok {
		t.Fatalf("dining schema missing from listing: %v", all)
	}
}

func TestUndoOverAPI(t *testing.T) {
	extractJSON := `[{"date":"2026-08-28","category":"spending","event":"coffee","details":{"summary":"latte","time":"09:00"}}]`
	s, store := newTestServer(t, "noted", extractJSON)

	if rec := doJSON(t, s, http.MethodPost, "/api/chat/send", map[string]string{"text": "bought a latte"}); rec.Code != http.StatusOK {
		t.Fatalf("send: %d", rec.Code)
	}

	msgs, _ := store.ListMessages(context.Background())
	sysID := msgs[len(msgs)-1].ID

	rec := doJSON(t, s, http.MethodPost, "/api/chat/messages/"+strconv.FormatInt(sysID, 10)+"/undo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("undo: %d %s", rec.Code, rec.Body.String())
	}
	entries, _ := store.ListEntries(context.Background())
	if len(entries) != 0 {
		t.Fatalf("entries not revoked: %+v", entries)
	}
}

func TestImportRejectsForeignBackupWithoutForce(t *testing.T) {
	s, _ := newTestServer(t, "x", "[]")

	rec := doJSON(t, s, http.MethodPost, "/api/backup/import", map[string]any{
		"entries": []any{}, "messages": []any{}, "rawLogs": []any{},
		"meta": map[string]string{"app": "other-app"},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/backup/import?force=true", map[string]any{
		"entries": []any{}, "messages": []any{}, "rawLogs": []any{},
		"meta": map[string]string{"app": "other-app"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forced import should succeed, got %d: %s", rec.Code, rec.Body.String())
	}
}
