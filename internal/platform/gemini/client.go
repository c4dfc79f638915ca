// Package gemini adapts the Google GenAI SDK to the text generation
// contract used by the artifact generator.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/valyc0/fraudM/internal/observability"
	"github.com/valyc0/fraudM/internal/platform/envutil"
	"github.com/valyc0/fraudM/internal/platform/logger"
)

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:      envutil.String("GEMINI_API_KEY", ""),
		Model:       envutil.String("GEMINI_MODEL", "gemini-2.0-flash"),
		Temperature: float32(envutil.Float("GEMINI_TEMPERATURE", 0.2)),
	}
}

// models is the part of *genai.Models in use.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

type Client struct {
	log         *logger.Logger
	models      models
	model       string
	temperature float32
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{
		log:         log.With("service", "GeminiClient"),
		models:      gc.Models,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	if u := resp.UsageMetadata; u != nil {
		observability.Current().ObserveLLMTokens(c.model, int(u.PromptTokenCount), int(u.CandidatesTokenCount))
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", pf.BlockReason)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

// Ping fetches the model metadata.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.models.Get(ctx, c.model, nil); err != nil {
		return fmt.Errorf("gemini model %q: %w", c.model, err)
	}
	return nil
}
