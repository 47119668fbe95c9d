package memory

// Role identifies who produced a HistoryItem.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// HistoryItem is one remembered utterance. Values are immutable once created.
type HistoryItem struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// DefaultTurns is the number of user/model pairs remembered by default.
// MaxTurns bounds every window so history never exceeds six items.
const (
	DefaultTurns = 3
	MaxTurns     = 3
)
