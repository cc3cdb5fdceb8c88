package registry

import (
	"fmt"
	"net/http"
	"time"

	"lifelog/internal/providers"
	"lifelog/internal/providers/gemini"
	"lifelog/internal/providers/openai_compat"
)

type BuildOptions struct {
	Kind        string
	BaseURL     string
	APIKey      string
	Headers     map[string]string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

func Build(opts BuildOptions) (providers.Provider, error) {
	switch opts.Kind {
	case "gemini", "google":
		return gemini.New(gemini.Config{
			BaseURL:     opts.BaseURL,
			APIKey:      opts.APIKey,
			HTTPClient:  opts.HTTPClient,
			MaxRetries:  opts.MaxRetries,
			BackoffBase: opts.BackoffBase,
		}), nil

	case "openai_compat", "openai-compatible", "openai":
		return openai_compat.New(openai_compat.Config{
			BaseURL:     opts.BaseURL,
			APIKey:      opts.APIKey,
			Headers:     opts.Headers,
			HTTPClient:  opts.HTTPClient,
			MaxRetries:  opts.MaxRetries,
			BackoffBase: opts.BackoffBase,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
