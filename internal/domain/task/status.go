package task

// Status represents the workflow state of a task. The numeric values are part
// of the persisted format and must not be reordered.
type Status int

// Task statuses.
const (
	StatusTodo Status = iota
	StatusInProgress
	StatusInReview
	StatusDone
	StatusBlocked
)

// String returns the human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusInReview:
		return "In Review"
	case StatusDone:
		return "Done"
	case StatusBlocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	return s >= StatusTodo && s <= StatusBlocked
}

// ParseStatus parses the command-line status token (TODO, PROGRESS, REVIEW,
// DONE, BLOCKED).
func ParseStatus(token string) (Status, bool) {
	switch token {
	case "TODO":
		return StatusTodo, true
	case "PROGRESS":
		return StatusInProgress, true
	case "REVIEW":
		return StatusInReview, true
	case "DONE":
		return StatusDone, true
	case "BLOCKED":
		return StatusBlocked, true
	default:
		return StatusTodo, false
	}
}

// Priority represents the urgency of a task. The numeric values are part of
// the persisted format and must not be reordered.
type Priority int

// Task priorities.
const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// IsValid reports whether p is one of the defined priorities.
func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority parses the command-line priority token (LOW, MEDIUM, HIGH,
// CRITICAL).
func ParsePriority(token string) (Priority, bool) {
	switch token {
	case "LOW":
		return PriorityLow, true
	case "MEDIUM":
		return PriorityMedium, true
	case "HIGH":
		return PriorityHigh, true
	case "CRITICAL":
		return PriorityCritical, true
	default:
		return PriorityLow, false
	}
}
