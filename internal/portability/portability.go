package portability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lifelog/internal/schema"
	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

const appMarker = "lifelog"

// ErrUnknownOrigin is returned when a backup file does not carry the
// expected meta.app marker; importing it requires explicit force.
var ErrUnknownOrigin = errors.New("backup does not carry the expected app marker")

type Meta struct {
	App        string `json:"app"`
	ExportedAt string `json:"exportedAt,omitempty"`
}

// Snapshot is the single-document backup format: all six persisted
// top-level values plus an origin marker.
type Snapshot struct {
	Entries       []storage.Entry                 `json:"entries"`
	Messages      []storage.Message               `json:"messages"`
	RawLogs       []storage.RawLog                `json:"rawLogs"`
	CustomSchemas map[string][]schema.FieldSchema `json:"customSchemas,omitempty"`
	AIConfig      *settings.AIConfig              `json:"aiConfig,omitempty"`
	ChatSettings  *settings.ChatSettings          `json:"chatSettings,omitempty"`
	Meta          Meta                            `json:"meta"`
}

type Service struct {
	store    *storage.Store
	settings *settings.Service
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(store *storage.Store, svc *settings.Service, logger zerolog.Logger) *Service {
	return &Service{store: store, settings: svc, logger: logger, now: time.Now}
}

func (s *Service) Export(ctx context.Context) (Snapshot, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("export entries: %w", err)
	}
	messages, err := s.store.ListMessages(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("export messages: %w", err)
	}
	rawLogs, err := s.store.ListRawLogs(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("export raw logs: %w", err)
	}

	ai := s.settings.AIConfig(ctx)
	// The credential never leaves the local store, sealed or not.
	ai.APIKeyOverride = ""
	cs := s.settings.ChatSettings(ctx)

	return Snapshot{
		Entries:       entries,
		Messages:      messages,
		RawLogs:       rawLogs,
		CustomSchemas: s.settings.SchemaOverrides(ctx),
		AIConfig:      &ai,
		ChatSettings:  &cs,
		Meta: Meta{
			App:        appMarker,
			ExportedAt: s.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (s *Service) ExportJSON(ctx context.Context) ([]byte, error) {
	snap, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return b, nil
}

// Import replaces the current state with the snapshot's. Invalid JSON
// is rejected outright; a missing or foreign meta.app marker is
// rejected unless force is set. Settings keys absent from the snapshot
// are left untouched.
func (s *Service) Import(ctx context.Context, data []byte, force bool) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse backup: %w", err)
	}
	if snap.Meta.App != appMarker && !force {
		return ErrUnknownOrigin
	}

	if err := s.store.DeleteAllEntries(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteAllMessages(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteAllRawLogs(ctx); err != nil {
		return err
	}

	for _, e := range snap.Entries {
		if err := s.store.CreateEntry(ctx, e); err != nil {
			return fmt.Errorf("import entry %s: %w", e.ID, err)
		}
	}
	for _, m := range snap.Messages {
		if _, err := s.store.AppendMessage(ctx, m); err != nil {
			return fmt.Errorf("import message: %w", err)
		}
	}
	for _, r := range snap.RawLogs {
		if err := s.store.AppendRawLog(ctx, r); err != nil {
			return fmt.Errorf("import raw log %s: %w", r.ID, err)
		}
	}

	if snap.CustomSchemas != nil {
		if err := s.settings.SaveSchemaOverrides(ctx, snap.CustomSchemas); err != nil {
			return fmt.Errorf("import custom schemas: %w", err)
		}
	}
	if snap.AIConfig != nil {
		if err := s.settings.SetAIConfig(ctx, *snap.AIConfig); err != nil {
			return fmt.Errorf("import ai config: %w", err)
		}
	}
	if snap.ChatSettings != nil {
		if err := s.settings.SetChatSettings(ctx, *snap.ChatSettings); err != nil {
			return fmt.Errorf("import chat settings: %w", err)
		}
	}

	s.logger.Info().
		Int("entries", len(snap.Entries)).
		Int("messages", len(snap.Messages)).
		Int("rawLogs", len(snap.RawLogs)).
		Msg("backup imported")
	return nil
}
