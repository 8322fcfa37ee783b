package conversation

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one role-tagged message in a conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UserTurn is shorthand for a user-authored turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn is shorthand for a model-authored turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Session is a snapshot of one sender's conversation.
// History is a copy; mutating it does not affect the store.
type Session struct {
	Sender    string
	History   []Turn
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InboundMessage is a parsed text message from the messaging platform.
type InboundMessage struct {
	ID            string
	From          string
	Text          string
	Type          string
	PhoneNumberID string
	Timestamp     time.Time
}

// OutboundReply is the text sent back to the platform.
type OutboundReply struct {
	To   string
	Body string
}
