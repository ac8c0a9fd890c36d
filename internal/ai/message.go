package ai

import "fmt"

// Role роль сообщения в запросе chat/completions.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message единица инструкции для модели. Живёт только в рамках одного запроса.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage создаёт сообщение, отклоняя неизвестные роли.
func NewMessage(role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("ai: unknown message role %q", role)
	}
	return Message{Role: role, Content: content}, nil
}

func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }
