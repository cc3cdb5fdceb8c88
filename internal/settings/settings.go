package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"lifelog/internal/schema"
	"lifelog/internal/secrets"
	"lifelog/internal/storage"
)

const (
	ContextGlobal = "global"
	ContextToday  = "today"
	ContextWeek   = "week"
	ContextCustom = "custom"
)

// ContextRounds <= 0 means unbounded.
const UnboundedRounds = -1

// AIConfig controls the two AI passes. APIKeyOverride, when set, takes
// precedence over the deploy-time credential; it is sealed at rest when
// a secrets key is configured.
type AIConfig struct {
	ChatEnabled      bool   `json:"chatEnabled"`
	OrganizerEnabled bool   `json:"organizerEnabled"`
	PersonaPrompt    string `json:"personaPrompt"`
	OrganizerPrompt  string `json:"organizerPrompt"`
	Model            string `json:"model,omitempty"`
	APIKeyOverride   string `json:"apiKeyOverride,omitempty"`
}

// ChatSettings selects which prior user messages feed the responder.
type ChatSettings struct {
	ContextMode     string `json:"contextMode"`
	ContextRounds   int    `json:"contextRounds"`
	CustomStartDate string `json:"customStartDate,omitempty"`
	CustomEndDate   string `json:"customEndDate,omitempty"`
}

const DefaultPersonaPrompt = "You are a warm, attentive companion helping someone keep a journal of their daily life. " +
	"Reply briefly and naturally to what they share, in their language. Acknowledge what happened, " +
	"ask at most one gentle follow-up question, and never lecture."

const DefaultOrganizerPrompt = "You organize free-form life-log messages into structured entries. " +
	"Extract every distinct event (spending, meals, exercise, mood, work, health) as its own entry. " +
	"Use only the categories and field keys provided. If nothing in the message is worth recording, return an empty array."

func DefaultAIConfig() AIConfig {
	return AIConfig{
		ChatEnabled:      true,
		OrganizerEnabled: true,
		PersonaPrompt:    DefaultPersonaPrompt,
		OrganizerPrompt:  DefaultOrganizerPrompt,
	}
}

func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		ContextMode:   ContextGlobal,
		ContextRounds: 10,
	}
}

// Service loads and persists the three settings values. Each key falls
// back to its documented default independently when missing or
// unreadable.
type Service struct {
	store  *storage.Store
	box    *secrets.Box
	logger zerolog.Logger
}

func NewService(store *storage.Store, box *secrets.Box, logger zerolog.Logger) *Service {
	return &Service{store: store, box: box, logger: logger}
}

func (s *Service) AIConfig(ctx context.Context) AIConfig {
	cfg := DefaultAIConfig()
	raw, found, err := s.store.GetSettingJSON(ctx, storage.SettingAIConfig)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read ai config, using defaults")
		return cfg
	}
	if !found {
		return cfg
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		s.logger.Warn().Err(err).Msg("malformed stored ai config, using defaults")
		return DefaultAIConfig()
	}
	if cfg.APIKeyOverride != "" {
		opened, err := s.box.OpenString(cfg.APIKeyOverride)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to unseal api key override, ignoring it")
			cfg.APIKeyOverride = ""
		} else {
			cfg.APIKeyOverride = opened
		}
	}
	return cfg
}

func (s *Service) SetAIConfig(ctx context.Context, cfg AIConfig) error {
	if cfg.APIKeyOverride != "" {
		sealed, err := s.box.SealString(cfg.APIKeyOverride)
		if err != nil {
			return fmt.Errorf("seal api key override: %w", err)
		}
		cfg.APIKeyOverride = sealed
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal ai config: %w", err)
	}
	return s.store.PutSettingJSON(ctx, storage.SettingAIConfig, string(b))
}

func (s *Service) ChatSettings(ctx context.Context) ChatSettings {
	cs := DefaultChatSettings()
	raw, found, err := s.store.GetSettingJSON(ctx, storage.SettingChatSettings)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read chat settings, using defaults")
		return cs
	}
	if !found {
		return cs
	}
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		s.logger.Warn().Err(err).Msg("malformed stored chat settings, using defaults")
		return DefaultChatSettings()
	}
	if !validContextMode(cs.ContextMode) {
		cs.ContextMode = ContextGlobal
	}
	return cs
}

func (s *Service) SetChatSettings(ctx context.Context, cs ChatSettings) error {
	if !validContextMode(cs.ContextMode) {
		return fmt.Errorf("invalid context mode %q", cs.ContextMode)
	}
	b, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal chat settings: %w", err)
	}
	return s.store.PutSettingJSON(ctx, storage.SettingChatSettings, string(b))
}

func (s *Service) SchemaOverrides(ctx context.Context) map[string][]schema.FieldSchema {
	raw, found, err := s.store.GetSettingJSON(ctx, storage.SettingCustomSchemas)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read custom schemas, using defaults")
		return nil
	}
	if !found {
		return nil
	}
	var overrides map[string][]schema.FieldSchema
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		s.logger.Warn().Err(err).Msg("malformed stored custom schemas, using defaults")
		return nil
	}
	return overrides
}

func (s *Service) SaveSchemaOverrides(ctx context.Context, overrides map[string][]schema.FieldSchema) error {
	b, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("marshal custom schemas: %w", err)
	}
	return s.store.PutSettingJSON(ctx, storage.SettingCustomSchemas, string(b))
}

// ResolveAPIKey applies the credential precedence: stored override
// first, deploy-time default second. Empty means no credential.
func (s *Service) ResolveAPIKey(ctx context.Context, envDefault string) string {
	if override := strings.TrimSpace(s.AIConfig(ctx).APIKeyOverride); override != "" {
		return override
	}
	return strings.TrimSpace(envDefault)
}

func validContextMode(mode string) bool {
	switch mode {
	case ContextGlobal, ContextToday, ContextWeek, ContextCustom:
		return true
	}
	return false
}
