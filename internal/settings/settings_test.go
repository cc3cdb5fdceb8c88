package settings

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"lifelog/internal/secrets"
	"lifelog/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "settings-test.db")
	store, err := storage.Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDefaultsWhenUnset(t *testing.T) {
	svc := NewService(openTestStore(t), nil, zerolog.Nop())
	ctx := context.Background()

	ai := svc.AIConfig(ctx)
	if !ai.ChatEnabled || !ai.OrganizerEnabled {
		t.Fatalf("expected both passes enabled by default: %+v", ai)
	}
	cs := svc.ChatSettings(ctx)
	if cs.ContextMode != ContextGlobal || cs.ContextRounds != 10 {
		t.Fatalf("unexpected chat defaults: %+v", cs)
	}
	if svc.SchemaOverrides(ctx) != nil {
		t.Fatal("expected no schema overrides by default")
	}
}

func TestDefaultsOnMalformedStoredValue(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(store, nil, zerolog.Nop())
	ctx := context.Background()

	if err := store.PutSettingJSON(ctx, storage.SettingAIConfig, "{broken"); err != nil {
		t.Fatalf("seed malformed: %v", err)
	}
	ai := svc.AIConfig(ctx)
	if ai.PersonaPrompt != DefaultPersonaPrompt {
		t.Fatalf("expected defaults on malformed value: %+v", ai)
	}
}

func TestAPIKeyOverrideSealedRoundTrip(t *testing.T) {
	box, err := secrets.NewBox(make([]byte, 32))
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	store := openTestStore(t)
	svc := NewService(store, box, zerolog.Nop())
	ctx := context.Background()

	cfg := DefaultAIConfig()
	cfg.APIKeyOverride = "sk-user-key"
	if err := svc.SetAIConfig(ctx, cfg); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, found, err := store.GetSettingJSON(ctx, storage.SettingAIConfig)
	if err != nil || !found {
		t.Fatalf("stored row missing: found=%v err=%v", found, err)
	}
	if strings.Contains(raw, "sk-user-key") {
		t.Fatalf("stored config leaks credential: %s", raw)
	}

	if got := svc.AIConfig(ctx).APIKeyOverride; got != "sk-user-key" {
		t.Fatalf("expected unsealed override, got %q", got)
	}
	if got := svc.ResolveAPIKey(ctx, "env-default"); got != "sk-user-key" {
		t.Fatalf("override should win over env default, got %q", got)
	}
}

func TestResolveAPIKeyFallsBackToEnvDefault(t *testing.T) {
	svc := NewService(openTestStore(t), nil, zerolog.Nop())
	ctx := context.Background()

	if got := svc.ResolveAPIKey(ctx, "env-default"); got != "env-default" {
		t.Fatalf("expected env default, got %q", got)
	}
	if got := svc.ResolveAPIKey(ctx, ""); got != "" {
		t.Fatalf("expected empty credential, got %q", got)
	}
}

func TestSetChatSettingsValidatesMode(t *testing.T) {
	svc := NewService(openTestStore(t), nil, zerolog.Nop())
	if err := svc.SetChatSettings(context.Background(), ChatSettings{ContextMode: "sometimes"}); err == nil {
		t.Fatal("expected error for invalid context mode")
	}
}
