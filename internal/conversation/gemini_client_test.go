package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type recordedChat struct {
	model   *genai.GenerativeModel
	history []*genai.Content
	parts   []genai.Part
	calls   int
}

func fakeChat(rec *recordedChat, resp *genai.GenerateContentResponse, err error) chatFunc {
	return func(ctx context.Context, model *genai.GenerativeModel, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error) {
		rec.calls++
		rec.model = model
		rec.history = history
		rec.parts = parts
		return resp, err
	}
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]genai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, genai.Text(t))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestGeminiClient_GenerateReply(t *testing.T) {
	rec := &recordedChat{}
	client := newGeminiClient(&genai.Client{}, "", fakeChat(rec, textResponse("Hi Sam! ", "How was class?"), nil),
		WithGeminiTemperature(0.4),
		WithGeminiMaxOutputTokens(256),
	)

	history := []Turn{UserTurn("hello, I'm Sam"), AssistantTurn("Nice to meet you, Sam!")}
	reply, err := client.GenerateReply(context.Background(), history, "what's my name?", "You are Sunny.")
	require.NoError(t, err)
	assert.Equal(t, "Hi Sam! How was class?", reply)

	require.Equal(t, 1, rec.calls)
	require.Len(t, rec.history, 2)
	assert.Equal(t, "user", rec.history[0].Role)
	assert.Equal(t, "model", rec.history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("what's my name?")}, rec.parts)

	require.NotNil(t, rec.model.SystemInstruction)
	assert.Equal(t, []genai.Part{genai.Text("You are Sunny.")}, rec.model.SystemInstruction.Parts)
	require.NotNil(t, rec.model.Temperature)
	assert.InDelta(t, 0.4, *rec.model.Temperature, 0.0001)
	require.NotNil(t, rec.model.MaxOutputTokens)
	assert.Equal(t, int32(256), *rec.model.MaxOutputTokens)
}

func TestGeminiClient_DefaultsLeaveModelConfigUnset(t *testing.T) {
	rec := &recordedChat{}
	client := newGeminiClient(&genai.Client{}, "gemini-1.5-pro", fakeChat(rec, textResponse("ok"), nil))

	_, err := client.GenerateReply(context.Background(), nil, "hi", "")
	require.NoError(t, err)
	assert.Nil(t, rec.model.Temperature)
	assert.Nil(t, rec.model.MaxOutputTokens)
	assert.Nil(t, rec.model.SystemInstruction)
	assert.Empty(t, rec.history)
	assert.Equal(t, "gemini", client.Provider())
}

func TestGeminiClient_EmptyMessageIsRejected(t *testing.T) {
	rec := &recordedChat{}
	client := newGeminiClient(&genai.Client{}, "", fakeChat(rec, textResponse("ok"), nil))

	_, err := client.GenerateReply(context.Background(), nil, "   ", "persona")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, CategoryInvalidRequest, genErr.Category)
	assert.Zero(t, rec.calls)
}

func TestGeminiClient_ClassifiesBackendErrors(t *testing.T) {
	rec := &recordedChat{}
	client := newGeminiClient(&genai.Client{}, "", fakeChat(rec, nil, &googleapi.Error{Code: 403, Message: "API key not valid"}))

	_, err := client.GenerateReply(context.Background(), nil, "hi", "")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "gemini", genErr.Provider)
	assert.Equal(t, CategoryAuth, genErr.Category)
	assert.Equal(t, 403, genErr.StatusCode)
}

func TestGeminiClient_BlockedPrompt(t *testing.T) {
	rec := &recordedChat{}
	client := newGeminiClient(&genai.Client{}, "", fakeChat(rec, nil, &genai.BlockedError{}))

	_, err := client.GenerateReply(context.Background(), nil, "hi", "")

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, CategoryBlocked, genErr.Category)
}

func TestGeminiResponseText_Malformed(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"nil response", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}}}},
		{"non-text parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png", Data: []byte{1}}}},
		}}}},
		{"whitespace text", textResponse("  ", "\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := geminiResponseText(tt.resp)
			var genErr *GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, CategoryMalformed, genErr.Category)
		})
	}
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), " ", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}
