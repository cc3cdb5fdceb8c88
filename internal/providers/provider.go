package providers

import (
	"context"
	"encoding/json"
)

type GenerateRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	// Image is optional inline binary attached alongside the prompt.
	Image *InlineImage
	// ResponseSchema constrains the completion to schema-conformant
	// JSON when non-nil; otherwise the call returns free text.
	ResponseSchema json.RawMessage
	MaxTokens      int
	Temperature    float64
}

type InlineImage struct {
	MIMEType string
	// Data is base64-encoded.
	Data string
}

type GenerateResponse struct {
	Text string
}

type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}
