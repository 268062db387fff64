package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"planforge/internal/domain"
)

// Ollama talks to a local Ollama server.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllama(s domain.OllamaSettings) *Ollama {
	base := s.BaseURL
	if base == "" {
		base = domain.DefaultOllamaBaseURL
	}
	return &Ollama{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (o *Ollama) CompleteStreaming(ctx context.Context, systemPrompt, userPrompt, model string, onDelta func(string) error) error {
	client, err := ollama.New(
		ollama.WithServerURL(o.baseURL),
		ollama.WithModel(model),
		ollama.WithKeepAlive("5m"),
	)
	if err != nil {
		return fmt.Errorf("create ollama client: %w", err)
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	_, err = client.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onDelta(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("ollama completion: %w", err)
	}
	return nil
}

// ListModels reads the local tag list.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	res, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list ollama models: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list ollama models: status %d", res.StatusCode)
	}
	var models []string
	for _, name := range gjson.GetBytes(body, "models.#.name").Array() {
		models = append(models, name.String())
	}
	return models, nil
}

func (o *Ollama) Ping(ctx context.Context) error {
	_, err := o.ListModels(ctx)
	return err
}
