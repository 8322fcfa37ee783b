package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	providerGemini     = "gemini"
	defaultGeminiModel = "gemini-1.5-flash"
)

// chatFunc sends parts on a chat session seeded with history.
type chatFunc func(ctx context.Context, model *genai.GenerativeModel, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error)

// GeminiClient implements ReplyGenerator using Google's Gemini API.
type GeminiClient struct {
	client          *genai.Client
	modelID         string
	temperature     float32
	maxOutputTokens int32
	chat            chatFunc
}

// GeminiOption configures a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithGeminiTemperature sets the sampling temperature. Negative values leave the model default.
func WithGeminiTemperature(t float32) GeminiOption {
	return func(c *GeminiClient) {
		c.temperature = t
	}
}

// WithGeminiMaxOutputTokens caps the reply length.
func WithGeminiMaxOutputTokens(n int32) GeminiOption {
	return func(c *GeminiClient) {
		c.maxOutputTokens = n
	}
}

// NewGeminiClient creates a new Gemini reply generator.
func NewGeminiClient(ctx context.Context, apiKey, modelID string, opts ...GeminiOption) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}
	return newGeminiClient(client, modelID, sendChatMessage, opts...), nil
}

func newGeminiClient(client *genai.Client, modelID string, chat chatFunc, opts ...GeminiOption) *GeminiClient {
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	c := &GeminiClient{
		client:      client,
		modelID:     modelID,
		temperature: -1,
		chat:        chat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider names the backend for logs and metrics.
func (c *GeminiClient) Provider() string {
	return providerGemini
}

// GenerateReply opens a fresh chat seeded with history, with the persona as
// the system instruction, and sends message as the next user turn.
func (c *GeminiClient) GenerateReply(ctx context.Context, history []Turn, message, persona string) (string, error) {
	seed, parts := geminiChat(history, message)
	if len(parts) == 0 {
		return "", &GenerationError{
			Provider: providerGemini,
			Category: CategoryInvalidRequest,
			Err:      errors.New("message is empty"),
		}
	}

	model := c.client.GenerativeModel(c.modelID)
	if c.temperature >= 0 {
		model.SetTemperature(c.temperature)
	}
	if c.maxOutputTokens > 0 {
		model.SetMaxOutputTokens(c.maxOutputTokens)
	}
	model.SystemInstruction = personaInstruction(persona)

	resp, err := c.chat(ctx, model, seed, parts)
	if err != nil {
		return "", newGenerationError(providerGemini, err)
	}
	return geminiResponseText(resp)
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func sendChatMessage(ctx context.Context, model *genai.GenerativeModel, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	cs := model.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, parts...)
}

func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", malformedResponse(providerGemini, errors.New("gemini returned no candidates"))
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", malformedResponse(providerGemini,
			fmt.Errorf("gemini returned empty content (finish reason %s)", candidate.FinishReason))
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	reply := strings.TrimSpace(text.String())
	if reply == "" {
		return "", malformedResponse(providerGemini, errors.New("gemini returned no text parts"))
	}
	return reply, nil
}
