package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lifelog/internal/metrics"
	"lifelog/internal/providers"
	"lifelog/internal/schema"
)

// Draft is one structured entry candidate parsed from an extraction
// response. Date is empty when the model's value was absent or not a
// valid calendar date; the orchestrator falls back to the reference
// date in that case.
type Draft struct {
	Date     string
	Category string
	Event    string
	Details  schema.Details
}

type rawDraft struct {
	Date     string         `json:"date"`
	Category string         `json:"category"`
	Event    string         `json:"event"`
	Details  map[string]any `json:"details"`
}

// Extractor turns one user message into zero or more entry drafts via
// a schema-constrained model call. Every failure mode, including
// cancellation and unparseable output, degrades to zero drafts.
type Extractor struct {
	registry *schema.Registry
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewExtractor(reg *schema.Registry, m *metrics.Metrics, logger zerolog.Logger) *Extractor {
	return &Extractor{registry: reg, metrics: m, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, p providers.Provider, model, organizerPrompt, text string, image *providers.InlineImage, now time.Time) []Draft {
	resp, err := p.Generate(ctx, providers.GenerateRequest{
		Model:          model,
		SystemPrompt:   organizerPrompt,
		UserPrompt:     buildExtractionPrompt(e.registry, text, now),
		Image:          image,
		ResponseSchema: BuildResponseSchema(e.registry),
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("extractor call failed, recording no entries")
		e.metrics.ExtractorFailures.Inc()
		return nil
	}

	drafts, err := parseDrafts(resp.Text, e.registry)
	if err != nil {
		e.logger.Error().Err(err).Str("response", truncateForLog(resp.Text)).Msg("extractor response unusable, recording no entries")
		e.metrics.ExtractorFailures.Inc()
		return nil
	}
	return drafts
}

func buildExtractionPrompt(reg *schema.Registry, text string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current date: %s (%s)\n", now.Format("2006-01-02"), now.Weekday())
	fmt.Fprintf(&b, "Current time: %s\n", now.Format("15:04"))
	b.WriteString("Resolve relative date references such as \"yesterday\" or \"last Friday\" against the current date and output ISO dates (YYYY-MM-DD).\n\n")

	b.WriteString("Categories and their fields:\n")
	for _, cat := range reg.Categories() {
		fields, err := reg.Get(cat)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s:", cat)
		for i, f := range fields {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s (%s, %q", f.Key, f.Type, f.Label)
			if f.Required {
				b.WriteString(", required")
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nMessage:\n")
	b.WriteString(text)
	return b.String()
}

// BuildResponseSchema constrains the completion to a JSON array of
// entry objects. The category enum reflects the live registry, and the
// details object carries the union of all field keys so one schema
// serves every category in a single call.
func BuildResponseSchema(reg *schema.Registry) json.RawMessage {
	cats := reg.Categories()

	detailProps := map[string]any{}
	for _, cat := range cats {
		fields, err := reg.Get(cat)
		if err != nil {
			continue
		}
		for _, f := range fields {
			if _, seen := detailProps[f.Key]; seen {
				continue
			}
			detailProps[f.Key] = fieldJSONType(f.Type)
		}
	}

	root := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"date":     map[string]any{"type": "string"},
				"category": map[string]any{"type": "string", "enum": cats},
				"event":    map[string]any{"type": "string"},
				"details": map[string]any{
					"type":       "object",
					"properties": detailProps,
					"required":   []string{schema.KeySummary, schema.KeyTime},
				},
			},
			"required": []string{"date", "category", "event", "details"},
		},
	}

	b, err := json.Marshal(root)
	if err != nil {
		// The schema is built from plain maps and strings; this
		// cannot fail for any registry state.
		panic(fmt.Sprintf("marshal response schema: %v", err))
	}
	return b
}

func fieldJSONType(t schema.FieldType) map[string]any {
	switch t {
	case schema.FieldNumber, schema.FieldRating:
		return map[string]any{"type": "number"}
	case schema.FieldMultiSelect:
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	default:
		return map[string]any{"type": "string"}
	}
}

// parseDrafts decodes the completion into drafts. A malformed document
// is an error; individually bad elements (unknown category, empty
// event) are dropped, and detail values are coerced against the
// category's fields rather than trusted.
func parseDrafts(raw string, reg *schema.Registry) ([]Draft, error) {
	cleaned := stripJSONFences(raw)
	var rawDrafts []rawDraft
	if err := json.Unmarshal([]byte(cleaned), &rawDrafts); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	out := make([]Draft, 0, len(rawDrafts))
	for _, rd := range rawDrafts {
		fields, err := reg.Get(rd.Category)
		if err != nil {
			continue
		}
		event := strings.TrimSpace(rd.Event)
		if event == "" {
			continue
		}
		date := rd.Date
		if _, err := time.Parse("2006-01-02", date); err != nil {
			date = ""
		}
		out = append(out, Draft{
			Date:     date,
			Category: rd.Category,
			Event:    event,
			Details:  schema.CoerceDetails(rd.Details, fields),
		})
	}
	return out, nil
}

// Some models wrap JSON in markdown fences despite the schema
// constraint; strip them before decoding.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateForLog(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
