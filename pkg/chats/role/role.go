// Package role defines the sender roles used in conversations.
package role

import "fmt"

// Role represents the sender of a message in a conversation.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
	Tool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case System, User, Assistant, Tool:
		return true
	}
	return false
}

// Parse converts a caller-supplied role name. Only user and assistant are
// accepted from callers; system and tool messages are produced internally.
func Parse(s string) (Role, error) {
	switch r := Role(s); r {
	case User, Assistant:
		return r, nil
	default:
		return "", fmt.Errorf("role: unsupported role %q", s)
	}
}

// String returns the underlying string value of the role.
func (r Role) String() string {
	return string(r)
}
