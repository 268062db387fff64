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
	"github.com/tmc/langchaingo/llms/openai"

	"planforge/internal/config"
	"planforge/internal/domain"
)

const groqMaxTokens = 4000

// Groq talks to the Groq cloud API through its OpenAI-compatible surface.
type Groq struct {
	apiKey      string
	baseURL     string
	temperature float64
	httpClient  *http.Client
}

func NewGroq(s domain.GroqSettings) *Groq {
	return &Groq{
		apiKey:      s.APIKey,
		baseURL:     strings.TrimRight(config.GroqBaseURL(), "/"),
		temperature: s.Temperature,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *Groq) CompleteStreaming(ctx context.Context, systemPrompt, userPrompt, model string, onDelta func(string) error) error {
	client, err := openai.New(
		openai.WithToken(g.apiKey),
		openai.WithBaseURL(g.baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return fmt.Errorf("create groq client: %w", err)
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	_, err = client.GenerateContent(ctx, messages,
		llms.WithModel(model),
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(groqMaxTokens),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onDelta(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("groq completion: %w", err)
	}
	return nil
}

// ListModels fetches the account's model identifiers. langchaingo has no
// model-listing call, so this goes straight to the REST endpoint.
func (g *Groq) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	res, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list groq models: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list groq models: status %d", res.StatusCode)
	}
	var models []string
	for _, id := range gjson.GetBytes(body, "data.#.id").Array() {
		models = append(models, id.String())
	}
	return models, nil
}

func (g *Groq) Ping(ctx context.Context) error {
	_, err := g.ListModels(ctx)
	return err
}
