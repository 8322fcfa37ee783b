package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const providerBedrock = "bedrock"

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements ReplyGenerator with the Bedrock Converse API.
type BedrockClient struct {
	api       bedrockConverseAPI
	modelID   string
	maxTokens int32
}

func NewBedrockClient(api bedrockConverseAPI, modelID string, maxTokens int32) *BedrockClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockClient{api: api, modelID: modelID, maxTokens: maxTokens}
}

func (c *BedrockClient) Provider() string {
	return providerBedrock
}

func (c *BedrockClient) GenerateReply(ctx context.Context, history []Turn, message, persona string) (string, error) {
	if strings.TrimSpace(c.modelID) == "" {
		return "", &GenerationError{Provider: providerBedrock, Category: CategoryInvalidRequest, Err: errors.New("bedrock model id is required")}
	}
	messages := bedrockMessages(history, message)
	if len(messages) == 0 || messages[len(messages)-1].Role != brtypes.ConversationRoleUser {
		return "", &GenerationError{Provider: providerBedrock, Category: CategoryInvalidRequest, Err: errors.New("message is empty")}
	}

	var system []brtypes.SystemContentBlock
	if p := strings.TrimSpace(persona); p != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: p})
	}

	var inference *brtypes.InferenceConfiguration
	if c.maxTokens > 0 {
		inference = &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(c.maxTokens)}
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.modelID),
		System:          system,
		Messages:        messages,
		InferenceConfig: inference,
	})
	if err != nil {
		return "", newGenerationError(providerBedrock, err)
	}

	text, err := bedrockExtractOutputText(out)
	if err != nil {
		return "", malformedResponse(providerBedrock, err)
	}
	return strings.TrimSpace(text), nil
}

func bedrockExtractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("bedrock response did not include a message output")
	}
	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	if strings.TrimSpace(builder.String()) == "" {
		return "", errors.New("bedrock response contained no text content blocks")
	}
	return builder.String(), nil
}
