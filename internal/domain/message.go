// Package domain contains the core entities of the relay: conversation messages,
// the image marker grammar, request results and the primary key ring.
// These types are framework-agnostic and shared by every other package.
package domain

import "strings"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is a single conversation entry.
type Message struct {
	// Role is the author of the message.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// UserText joins the contents of all user messages with single spaces, preserving order.
// Messages authored by the assistant or the system are skipped.
func UserText(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleUser {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, " ")
}
