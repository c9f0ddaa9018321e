package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type AskRequest struct {
	Question string        `json:"question"`
	History  []ChatMessage `json:"history"`
	Persona  string        `json:"persona"`
}
