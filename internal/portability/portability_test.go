package portability

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"lifelog/internal/schema"
	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store, *settings.Service) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "portability-test.db")
	store, err := storage.Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	svc := settings.NewService(store, nil, zerolog.Nop())
	return NewService(store, svc, zerolog.Nop()), store, svc
}

func TestExportImportRoundTrip(t *testing.T) {
	src, store, svc := newTestService(t)
	ctx := context.Background()

	entry := storage.Entry{
		ID:       "e1",
		Date:     "2026-08-27",
		Category: "dining",
		Event:    "dinner",
		Details:  schema.Details{"summary": schema.StringValue("pasta"), "time": schema.StringValue("19:00")},
	}
	if err := store.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := store.AppendMessage(ctx, storage.Message{Role: storage.RoleUser, Text: "had pasta", Timestamp: 1}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := store.AppendRawLog(ctx, storage.RawLog{ID: "r1", Timestamp: 1, Text: "had pasta"}); err != nil {
		t.Fatalf("append raw log: %v", err)
	}
	cs := settings.DefaultChatSettings()
	cs.ContextMode = settings.ContextWeek
	if err := svc.SetChatSettings(ctx, cs); err != nil {
		t.Fatalf("set chat settings: %v", err)
	}

	data, err := src.ExportJSON(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, dstStore, dstSvc := newTestService(t)
	// Preexisting state must be replaced, not merged.
	if err := dstStore.CreateEntry(ctx, storage.Entry{ID: "stale", Date: "2020-01-01", Category: "mood", Event: "old"}); err != nil {
		t.Fatalf("seed stale entry: %v", err)
	}

	if err := dst.Import(ctx, data, false); err != nil {
		t.Fatalf("import: %v", err)
	}

	entries, _ := dstStore.ListEntries(ctx)
	if len(entries) != 1 || entries[0].ID != "e1" {
		t.Fatalf("import did not replace entries: %+v", entries)
	}
	if v := entries[0].Details["summary"]; v.Str != "pasta" {
		t.Fatalf("details lost in round trip: %+v", entries[0].Details)
	}
	msgs, _ := dstStore.ListMessages(ctx)
	if len(msgs) != 1 || msgs[0].Text != "had pasta" {
		t.Fatalf("messages not imported: %+v", msgs)
	}
	logs, _ := dstStore.ListRawLogs(ctx)
	if len(logs) != 1 || logs[0].ID != "r1" {
		t.Fatalf("raw logs not imported: %+v", logs)
	}
	if got := dstSvc.ChatSettings(ctx); got.ContextMode != settings.ContextWeek {
		t.Fatalf("chat settings not imported: %+v", got)
	}
}

func TestImportRejectsInvalidJSON(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Import(context.Background(), []byte("{truncated"), false); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestImportRequiresForceForForeignBackup(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	foreign, err := json.Marshal(Snapshot{Meta: Meta{App: "someone-else"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := svc.Import(ctx, foreign, false); !errors.Is(err, ErrUnknownOrigin) {
		t.Fatalf("expected ErrUnknownOrigin, got %v", err)
	}
	if err := svc.Import(ctx, foreign, true); err != nil {
		t.Fatalf("forced import should succeed: %v", err)
	}
	entries, _ := store.ListEntries(ctx)
	if len(entries) != 0 {
		t.Fatalf("forced empty import should leave no entries: %+v", entries)
	}
}

func TestExportRedactsCredentialOverride(t *testing.T) {
	svc, _, settingsSvc := newTestService(t)
	ctx := context.Background()

	cfg := settings.DefaultAIConfig()
	cfg.APIKeyOverride = "sk-secret"
	if err := settingsSvc.SetAIConfig(ctx, cfg); err != nil {
		t.Fatalf("set ai config: %v", err)
	}

	data, err := svc.ExportJSON(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Fatal("backup leaks the credential override")
	}
}
