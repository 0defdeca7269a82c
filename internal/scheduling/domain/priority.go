package domain

import "strings"

// Priority is the urgency level of a scheduling request.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// ParsePriority parses a priority case-insensitively. Empty input means normal.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PriorityNormal, nil
	}
	if !p.IsValid() {
		return "", NewValidationError("priority", "must be one of low, normal, high, urgent, emergency")
	}
	return p, nil
}

// IsValid reports whether p is a known level.
func (p Priority) IsValid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities from low (0) to emergency (4); unknown values return -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	case PriorityEmergency:
		return 4
	default:
		return -1
	}
}

func (p Priority) String() string { return string(p) }
