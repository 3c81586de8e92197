package engines

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMGenerator drives a langchaingo chat model with an image part.
type LLMGenerator struct {
	llm      llms.Model
	provider string
	model    string
	probeURL string
	mode     extraction.Mode
}

// NewOllamaGenerator talks to a local Ollama server.
func NewOllamaGenerator(serverURL, model string) (*LLMGenerator, error) {
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &LLMGenerator{
		llm:      llm,
		provider: "ollama",
		model:    model,
		probeURL: joinURL(serverURL, "api/tags"),
		mode:     extraction.ModeLocal,
	}, nil
}

// NewOpenAIGenerator talks to any OpenAI-compatible server, such as vLLM.
func NewOpenAIGenerator(baseURL, model, token string) (*LLMGenerator, error) {
	if token == "" {
		// Self-hosted servers ignore the token but the client requires one.
		token = "none"
	}
	opts := []openai.Option{openai.WithModel(model), openai.WithToken(token)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	probe := "https://api.openai.com/v1/models"
	if baseURL != "" {
		probe = joinURL(baseURL, "models")
	}
	return &LLMGenerator{
		llm:      llm,
		provider: "openai",
		model:    model,
		probeURL: probe,
		mode:     extraction.ModeAPI,
	}, nil
}

func (g *LLMGenerator) Probe(ctx context.Context) extraction.Capability {
	c := probeHTTP(ctx, g.probeURL)
	c.Mode = g.mode
	return c
}

func (g *LLMGenerator) Generate(ctx context.Context, png []byte, prompt string) (string, error) {
	var image llms.ContentPart
	if g.provider == "openai" {
		image = llms.ImageURLPart("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	} else {
		image = llms.BinaryPart("image/png", png)
	}

	slog.Debug("Sending page to vision model", "provider", g.provider, "model", g.model, "bytes", len(png))
	resp, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{image, llms.TextPart(prompt)},
		},
	}, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", g.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// ocrAPIPaths are tried in order until one answers.
var ocrAPIPaths = []string{"api/ocr", "ocr", "api/v1/ocr"}

// HTTPOCRGenerator posts a base64 image to a self-hosted OCR server that
// answers {"text": ...} or {"result": ...}. The prompt is not sent.
type HTTPOCRGenerator struct {
	baseURL string
	token   string
}

func NewHTTPOCRGenerator(baseURL, token string) *HTTPOCRGenerator {
	return &HTTPOCRGenerator{baseURL: baseURL, token: token}
}

func (g *HTTPOCRGenerator) Probe(ctx context.Context) extraction.Capability {
	return probeHTTP(ctx, g.baseURL)
}

func (g *HTTPOCRGenerator) Generate(ctx context.Context, png []byte, prompt string) (string, error) {
	body := map[string]string{"image": base64.StdEncoding.EncodeToString(png)}
	var lastErr error
	for _, p := range ocrAPIPaths {
		reply, err := postJSON(ctx, joinURL(g.baseURL, p), g.token, body)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		return decodeOCRReply(reply), nil
	}
	return "", fmt.Errorf("no OCR endpoint answered at %s: %w", g.baseURL, lastErr)
}

func decodeOCRReply(reply []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(reply, &obj); err == nil {
		for _, key := range []string{"text", "result"} {
			if s, ok := obj[key].(string); ok {
				return s
			}
		}
		return string(reply)
	}
	var s string
	if err := json.Unmarshal(reply, &s); err == nil {
		return s
	}
	return string(reply)
}
