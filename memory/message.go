// Package memory holds the two bounded stores the agent loop reads and writes
// every turn: the interaction History and the line-addressable Document.
package memory

import (
	"strings"
	"time"
)

// Role tags who produced a message.
type Role string

const (
	RoleUser     Role = "user"
	RoleAgent    Role = "agent"
	RoleActuator Role = "browser"
	RoleDocument Role = "document"
	RoleSummary  Role = "summary" // produced by compaction only
)

// TimestampLayout is the layout used when rendering messages.
const TimestampLayout = "2006-01-02 15:04:05"

// Message is a single timestamped, role-tagged entry. Treat it as immutable.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a Message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// String renders the message as "[timestamp] role: content". Continuation
// lines are indented under the first content column.
func (m Message) String() string {
	header := "[" + m.Timestamp.Format(TimestampLayout) + "] " + string(m.Role) + ": "
	lines := strings.Split(m.Content, "\n")
	if len(lines) == 1 {
		return header + m.Content
	}
	pad := strings.Repeat(" ", len(header))
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString(lines[0])
	for _, line := range lines[1:] {
		sb.WriteByte('\n')
		sb.WriteString(pad)
		sb.WriteString(line)
	}
	return sb.String()
}
