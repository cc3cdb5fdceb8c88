package assistant

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"lifelog/internal/metrics"
	"lifelog/internal/providers"
	"lifelog/internal/storage"
)

// Responder produces the conversational reply for one turn. It issues
// exactly one model call. Cancellation is the only condition surfaced
// as an error; every other failure is absorbed into the fixed apology
// so the turn can continue.
type Responder struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewResponder(m *metrics.Metrics, logger zerolog.Logger) *Responder {
	return &Responder{metrics: m, logger: logger}
}

func (r *Responder) Reply(ctx context.Context, p providers.Provider, model, persona string, history []storage.Message, newMessage string, isRegeneration bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := p.Generate(ctx, providers.GenerateRequest{
		Model:        model,
		SystemPrompt: persona,
		UserPrompt:   buildChatPrompt(history, newMessage, isRegeneration),
		Temperature:  0.7,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger.Error().Err(err).Msg("responder call failed, substituting apology")
		r.metrics.ResponderFailures.Inc()
		return apologyReply, nil
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		r.logger.Warn().Msg("responder returned empty completion, substituting apology")
		r.metrics.ResponderFailures.Inc()
		return apologyReply, nil
	}
	return reply, nil
}
