package domain

// Role tags the origin of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is accepted in incoming history for forward compatibility and
	// used for the instruction entry sent to the provider.
	RoleSystem Role = "system"
)

// Valid reports whether r is a role allowed in conversation history.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatTurn is the provider-agnostic chat message shape shared by the handler,
// the completion invoker and the client session.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Policy constants governing a chat exchange.
const (
	// HistoryWindow is the number of most recent turns forwarded to the provider.
	HistoryWindow = 10
	// DefaultMaxContentLength bounds message, history content and preference
	// values, counted in Unicode code points.
	DefaultMaxContentLength = 1000
)

// RecentHistory returns the last HistoryWindow turns of history in their
// original order. The returned slice shares no backing array with history.
func RecentHistory(history []ChatTurn) []ChatTurn {
	start := 0
	if len(history) > HistoryWindow {
		start = len(history) - HistoryWindow
	}
	out := make([]ChatTurn, len(history)-start)
	copy(out, history[start:])
	return out
}
