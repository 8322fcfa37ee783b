package conversation

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/generative-ai-go/genai"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// chatTurn is a normalized turn: one role, one or more text parts.
type chatTurn struct {
	role  Role
	parts []string
}

// normalizeTurns prepares stored history plus the pending message for a
// multi-turn chat backend. Blank and unknown-role turns are dropped, leading
// assistant turns are dropped (the first content must be from the user), and
// consecutive same-role turns are merged. The pending message is folded into
// the trailing user turn when history already ends with one, so the result
// strictly alternates and always ends with the user's turn.
func normalizeTurns(history []Turn, message string) []chatTurn {
	out := make([]chatTurn, 0, len(history)+1)
	add := func(role Role, text string) {
		text = strings.TrimSpace(text)
		if text == "" || !role.Valid() {
			return
		}
		if len(out) == 0 && role != RoleUser {
			return
		}
		if n := len(out); n > 0 && out[n-1].role == role {
			out[n-1].parts = append(out[n-1].parts, text)
			return
		}
		out = append(out, chatTurn{role: role, parts: []string{text}})
	}
	for _, t := range history {
		add(t.Role, t.Content)
	}
	add(RoleUser, message)
	return out
}

// geminiChat splits normalized turns into the seeded chat history and the
// parts to send as the next message.
func geminiChat(history []Turn, message string) ([]*genai.Content, []genai.Part) {
	turns := normalizeTurns(history, message)
	if len(turns) == 0 {
		return nil, nil
	}
	last := turns[len(turns)-1]
	if last.role != RoleUser {
		return geminiContents(turns), nil
	}
	return geminiContents(turns[:len(turns)-1]), textParts(last.parts)
}

// GeminiHistory converts stored turns into Gemini chat history contents.
func GeminiHistory(history []Turn) []*genai.Content {
	return geminiContents(normalizeTurns(history, ""))
}

func geminiContents(turns []chatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := geminiRoleUser
		if t.role == RoleAssistant {
			role = geminiRoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: textParts(t.parts)})
	}
	return contents
}

func textParts(texts []string) []genai.Part {
	parts := make([]genai.Part, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, genai.Text(text))
	}
	return parts
}

// personaInstruction wraps the persona as a Gemini system instruction.
// It is applied per call and never stored as a turn.
func personaInstruction(persona string) *genai.Content {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		return nil
	}
	return genai.NewUserContent(genai.Text(persona))
}

// bedrockMessages converts history plus the pending message into Converse messages.
func bedrockMessages(history []Turn, message string) []types.Message {
	turns := normalizeTurns(history, message)
	messages := make([]types.Message, 0, len(turns))
	for _, t := range turns {
		role := types.ConversationRoleUser
		if t.role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		blocks := make([]types.ContentBlock, 0, len(t.parts))
		for _, p := range t.parts {
			blocks = append(blocks, &types.ContentBlockMemberText{Value: p})
		}
		messages = append(messages, types.Message{Role: role, Content: blocks})
	}
	return messages
}
