package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lifelog/internal/providers"
)

type Config struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, error) {
	body, endpointURL, err := c.buildPayload(req)
	if err != nil {
		return providers.GenerateResponse{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, retry, err := c.callOnce(ctx, endpointURL, body)
		if err == nil {
			return providers.GenerateResponse{Text: text}, nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return providers.GenerateResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return providers.GenerateResponse{}, lastErr
}

func (c *Client) buildPayload(req providers.GenerateRequest) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL(req.Model)
	if err != nil {
		return nil, "", err
	}

	parts := []map[string]any{{"text": req.UserPrompt}}
	if req.Image != nil {
		parts = append(parts, map[string]any{
			"inlineData": map[string]any{
				"mimeType": req.Image.MIMEType,
				"data":     req.Image.Data,
			},
		})
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": parts},
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.SystemPrompt}},
		}
	}

	genCfg := map[string]any{}
	if req.MaxTokens > 0 {
		genCfg["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		genCfg["temperature"] = req.Temperature
	}
	if len(req.ResponseSchema) > 0 {
		genCfg["responseMimeType"] = "application/json"
		genCfg["responseSchema"] = json.RawMessage(req.ResponseSchema)
	}
	if len(genCfg) > 0 {
		payload["generationConfig"] = genCfg
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal generate payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte) (text string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("provider temporary status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	text, err = parseGenerateContent(respBody)
	if err != nil {
		return "", false, err
	}
	return text, false, nil
}

func (c *Client) buildEndpointURL(model string) (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if strings.TrimSpace(model) == "" {
		return "", fmt.Errorf("model is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/v1beta") {
		path += "/v1beta"
	}
	u.Path = path + "/models/" + model + ":generateContent"
	return u.String(), nil
}

func parseGenerateContent(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty candidates in generate response")
	}
	parts := make([]string, 0, len(resp.Candidates[0].Content.Parts))
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("missing text parts in generate response")
	}
	return strings.Join(parts, "\n"), nil
}
