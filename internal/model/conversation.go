package model

// Speakers of a conversation turn.
const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

// Turn is one message of a chat conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
