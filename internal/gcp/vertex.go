package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/xtractme/internal/extraction"
)

// OCRSystemPrompt frames Gemini as a transcription engine. The per-page
// instruction is supplied by the caller.
const OCRSystemPrompt = "You are an OCR engine. You transcribe the text visible in document page images exactly as written. You never summarize, translate, or comment."

// VertexClient serves page images to a Gemini model on Vertex AI.
type VertexClient struct {
	OCRModel   *genai.GenerativeModel
	baseClient *genai.Client
	endpoint   string
}

// NewVertexClient creates a client with the OCR model configured.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	ocrModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		OCRModel:   ocrModel,
		baseClient: baseClient,
		endpoint:   fmt.Sprintf("vertex:%s/%s", region, modelName),
	}, nil
}

// Generate sends one PNG page with prompt and returns the model's text.
func (c *VertexClient) Generate(ctx context.Context, png []byte, prompt string) (string, error) {
	resp, err := c.OCRModel.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return ExtractText(resp), nil
}

// Probe reports the configured model. Vertex AI is reached over the
// network with ambient credentials, so construction success is the probe.
func (c *VertexClient) Probe(ctx context.Context) extraction.Capability {
	if c == nil || c.OCRModel == nil {
		return extraction.Capability{Mode: extraction.ModeAPI, Reason: "vertex client not initialized"}
	}
	return extraction.Capability{Available: true, Mode: extraction.ModeAPI, Endpoint: c.endpoint}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// ExtractText concatenates the text parts of the first candidate.
func ExtractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var sb strings.Builder
	var textParts int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
			textParts++
		}
	}
	if textParts > 1 {
		slog.Debug("Gemini response contained several text parts; they have been concatenated.", "parts", textParts)
	}
	return sb.String()
}
