package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lifelog/internal/metrics"
	"lifelog/internal/providers"
	"lifelog/internal/schema"
	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

var (
	ErrEmptyInput      = errors.New("input is empty")
	ErrTurnInFlight    = errors.New("a turn is already in flight")
	ErrNoCredential    = errors.New("no AI credential configured")
	ErrBudgetExhausted = errors.New("daily turn budget exhausted")
)

// Limiter gates turn submission. A nil Limiter admits everything.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

// ProviderFactory builds a model client for the credential resolved at
// the start of a turn, so a settings change takes effect on the very
// next turn without a restart.
type ProviderFactory func(apiKey string) (providers.Provider, error)

type Config struct {
	Store         *storage.Store
	Settings      *settings.Service
	Registry      *schema.Registry
	BuildProvider ProviderFactory
	// EnvAPIKey is the deploy-time credential; a stored override wins.
	EnvAPIKey    string
	DefaultModel string
	Limiter      Limiter
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator sequences one user turn: persist the input, produce the
// conversational reply, extract structured entries, record a system
// notification. At most one turn is in flight at a time.
type Orchestrator struct {
	store         *storage.Store
	settings      *settings.Service
	registry      *schema.Registry
	buildProvider ProviderFactory
	envAPIKey     string
	defaultModel  string
	limiter       Limiter
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time

	responder *Responder
	extractor *Extractor

	mu         sync.Mutex
	busy       bool
	cancelTurn context.CancelFunc
}

func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		store:         cfg.Store,
		settings:      cfg.Settings,
		registry:      cfg.Registry,
		buildProvider: cfg.BuildProvider,
		envAPIKey:     cfg.EnvAPIKey,
		defaultModel:  cfg.DefaultModel,
		limiter:       cfg.Limiter,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           cfg.Now,
		responder:     NewResponder(cfg.Metrics, cfg.Logger),
		extractor:     NewExtractor(cfg.Registry, cfg.Metrics, cfg.Logger),
	}
}

type TurnResult struct {
	Reply     string          `json:"reply,omitempty"`
	Entries   []storage.Entry `json:"entries,omitempty"`
	Cancelled bool            `json:"cancelled,omitempty"`
}

// SendTurn runs the full pipeline for one user message. The raw log
// and user message are persisted before any model call so input
// survives every downstream failure. Cancellation during the chat pass
// ends the turn with no reply and no extraction.
func (o *Orchestrator) SendTurn(ctx context.Context, text string, image *providers.InlineImage) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyInput
	}

	apiKey := o.settings.ResolveAPIKey(ctx, o.envAPIKey)
	if apiKey == "" {
		return TurnResult{}, ErrNoCredential
	}

	turnCtx, err := o.begin(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	defer o.finish()

	if o.limiter != nil {
		ok, err := o.limiter.Allow(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("turn budget check failed, admitting turn")
		} else if !ok {
			return TurnResult{}, ErrBudgetExhausted
		}
	}

	prior, err := o.store.ListMessages(ctx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("list messages: %w", err)
	}

	now := o.now()
	if err := o.store.AppendRawLog(ctx, storage.RawLog{
		ID:        uuid.NewString(),
		Timestamp: now.UnixMilli(),
		Text:      text,
	}); err != nil {
		return TurnResult{}, fmt.Errorf("append raw log: %w", err)
	}
	if _, err := o.store.AppendMessage(ctx, storage.Message{
		Role:      storage.RoleUser,
		Text:      text,
		Timestamp: now.UnixMilli(),
	}); err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}

	o.metrics.TurnsTotal.Inc()

	provider, err := o.buildProvider(apiKey)
	if err != nil {
		return TurnResult{}, fmt.Errorf("build provider: %w", err)
	}

	ai := o.settings.AIConfig(ctx)
	model := o.resolveModel(ai)

	var result TurnResult
	if ai.ChatEnabled {
		history := FilterHistory(prior, o.settings.ChatSettings(ctx), now)
		reply, err := o.responder.Reply(turnCtx, provider, model, ai.PersonaPrompt, history, text, false)
		if err != nil {
			o.metrics.TurnsCancelled.Inc()
			o.logger.Info().Msg("turn cancelled during chat pass")
			return TurnResult{Cancelled: true}, nil
		}
		if _, err := o.store.AppendMessage(ctx, storage.Message{
			Role:      storage.RoleModel,
			Text:      reply,
			Timestamp: o.now().UnixMilli(),
		}); err != nil {
			return TurnResult{}, fmt.Errorf("append reply message: %w", err)
		}
		result.Reply = reply
	}

	if ai.OrganizerEnabled {
		drafts := o.extractor.Extract(turnCtx, provider, model, ai.OrganizerPrompt, text, image, now)
		entries := o.materialize(ctx, drafts, now)
		if len(entries) > 0 {
			parts := make([]string, 0, len(entries))
			related := make([]string, 0, len(entries))
			for _, e := range entries {
				parts = append(parts, e.Date+" "+e.Event)
				related = append(related, e.ID)
			}
			if _, err := o.store.AppendMessage(ctx, storage.Message{
				Role:            storage.RoleSystem,
				Text:            strings.Join(parts, ", "),
				Timestamp:       o.now().UnixMilli(),
				RelatedEntryIDs: related,
			}); err != nil {
				return TurnResult{}, fmt.Errorf("append system message: %w", err)
			}
			result.Entries = entries
		}
	}

	return result, nil
}

// Undo deletes the entries a system message created and marks the
// message as revoked. A message already bearing the marker is a no-op.
func (o *Orchestrator) Undo(ctx context.Context, messageID int64) error {
	m, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.Role != storage.RoleSystem || len(m.RelatedEntryIDs) == 0 {
		return fmt.Errorf("message %d has no entries to revoke", messageID)
	}
	if strings.HasSuffix(m.Text, strings.TrimSpace(revokedSuffix)) {
		return nil
	}

	for _, id := range m.RelatedEntryIDs {
		if err := o.store.DeleteEntry(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("delete entry %s: %w", id, err)
		}
		o.metrics.EntriesRevoked.Inc()
	}
	return o.store.UpdateMessageText(ctx, messageID, m.Text+revokedSuffix)
}

// EditAndRegenerate replaces a past user message's text, discards
// everything after it, and appends a fresh reply computed from the
// truncated transcript.
func (o *Orchestrator) EditAndRegenerate(ctx context.Context, messageID int64, newText string) (TurnResult, error) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return TurnResult{}, ErrEmptyInput
	}

	apiKey := o.settings.ResolveAPIKey(ctx, o.envAPIKey)
	if apiKey == "" {
		return TurnResult{}, ErrNoCredential
	}

	turnCtx, err := o.begin(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	defer o.finish()

	m, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return TurnResult{}, err
	}
	if m.Role != storage.RoleUser {
		return TurnResult{}, fmt.Errorf("message %d is not a user message", messageID)
	}

	if err := o.store.UpdateMessageText(ctx, messageID, newText); err != nil {
		return TurnResult{}, fmt.Errorf("update message text: %w", err)
	}
	if err := o.store.DeleteMessagesAfter(ctx, messageID); err != nil {
		return TurnResult{}, err
	}

	ai := o.settings.AIConfig(ctx)
	if !ai.ChatEnabled {
		return TurnResult{}, nil
	}

	msgs, err := o.store.ListMessages(ctx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("list messages: %w", err)
	}
	earlier := messagesBefore(msgs, messageID)

	now := o.now()
	history := FilterHistory(earlier, o.settings.ChatSettings(ctx), now)

	provider, err := o.buildProvider(apiKey)
	if err != nil {
		return TurnResult{}, fmt.Errorf("build provider: %w", err)
	}

	reply, err := o.responder.Reply(turnCtx, provider, o.resolveModel(ai), ai.PersonaPrompt, history, newText, false)
	if err != nil {
		o.metrics.TurnsCancelled.Inc()
		return TurnResult{Cancelled: true}, nil
	}
	if _, err := o.store.AppendMessage(ctx, storage.Message{
		Role:      storage.RoleModel,
		Text:      reply,
		Timestamp: o.now().UnixMilli(),
	}); err != nil {
		return TurnResult{}, fmt.Errorf("append reply message: %w", err)
	}
	return TurnResult{Reply: reply}, nil
}

// Regenerate recomputes a model message's reply from the history that
// preceded it and replaces its text in place. The transcript length
// does not change; cancellation leaves the old text untouched.
func (o *Orchestrator) Regenerate(ctx context.Context, messageID int64) (TurnResult, error) {
	apiKey := o.settings.ResolveAPIKey(ctx, o.envAPIKey)
	if apiKey == "" {
		return TurnResult{}, ErrNoCredential
	}

	turnCtx, err := o.begin(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	defer o.finish()

	m, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		return TurnResult{}, err
	}
	if m.Role != storage.RoleModel {
		return TurnResult{}, fmt.Errorf("message %d is not a model message", messageID)
	}

	msgs, err := o.store.ListMessages(ctx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("list messages: %w", err)
	}
	earlier := messagesBefore(msgs, messageID)

	var precedingUserText string
	for i := len(earlier) - 1; i >= 0; i-- {
		if earlier[i].Role == storage.RoleUser {
			precedingUserText = earlier[i].Text
			break
		}
	}

	now := o.now()
	ai := o.settings.AIConfig(ctx)
	history := FilterHistory(earlier, o.settings.ChatSettings(ctx), now)

	provider, err := o.buildProvider(apiKey)
	if err != nil {
		return TurnResult{}, fmt.Errorf("build provider: %w", err)
	}

	reply, err := o.responder.Reply(turnCtx, provider, o.resolveModel(ai), ai.PersonaPrompt, history, precedingUserText, true)
	if err != nil {
		o.metrics.TurnsCancelled.Inc()
		return TurnResult{Cancelled: true}, nil
	}
	if err := o.store.UpdateMessageText(ctx, messageID, reply); err != nil {
		return TurnResult{}, fmt.Errorf("replace message text: %w", err)
	}
	return TurnResult{Reply: reply}, nil
}

// Cancel aborts the in-flight turn, if any. Safe to call at any time.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.cancelTurn != nil {
		o.cancelTurn()
	}
	o.mu.Unlock()
}

func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return nil, ErrTurnInFlight
	}
	turnCtx, cancel := context.WithCancel(ctx)
	o.busy = true
	o.cancelTurn = cancel
	return turnCtx, nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	o.busy = false
	o.mu.Unlock()
}

func (o *Orchestrator) resolveModel(ai settings.AIConfig) string {
	if ai.Model != "" {
		return ai.Model
	}
	return o.defaultModel
}

// materialize turns drafts into persisted entries. A draft without a
// usable date falls back to the reference date. A failed insert is
// logged and skipped; the remaining drafts still land.
func (o *Orchestrator) materialize(ctx context.Context, drafts []Draft, now time.Time) []storage.Entry {
	refDate := now.Format("2006-01-02")
	entries := make([]storage.Entry, 0, len(drafts))
	for _, d := range drafts {
		date := d.Date
		if date == "" {
			date = refDate
		}
		details := d.Details
		if details == nil {
			details = schema.Details{}
		}
		e := storage.Entry{
			ID:       uuid.NewString(),
			Date:     date,
			Category: d.Category,
			Event:    d.Event,
			Details:  details,
		}
		if err := o.store.CreateEntry(ctx, e); err != nil {
			o.logger.Error().Err(err).Str("category", d.Category).Msg("failed to persist extracted entry")
			continue
		}
		o.metrics.EntriesCreated.Inc()
		entries = append(entries, e)
	}
	return entries
}

func messagesBefore(msgs []storage.Message, id int64) []storage.Message {
	out := make([]storage.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID < id {
			out = append(out, m)
		}
	}
	return out
}
