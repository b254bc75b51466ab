package domain

// ProactiveReason justifies an unprompted message
type ProactiveReason string

const (
	ProactiveColdStart ProactiveReason = "cold_start_breaker"
	ProactiveContinue  ProactiveReason = "topic_continuation"
	ProactiveBubble    ProactiveReason = "timed_bubble"
)

// Rank orders reasons, lower first
func (r ProactiveReason) Rank() int {
	switch r {
	case ProactiveColdStart:
		return 0
	case ProactiveContinue:
		return 1
	default:
		return 2
	}
}

// ProactiveCandidate is a group picked for an unprompted message in one tick
type ProactiveCandidate struct {
	GroupID     string
	Reason      ProactiveReason
	Topic       string
	RecentCount int
}
