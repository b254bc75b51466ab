package domain

// TriggerReason explains a trigger decision
type TriggerReason string

const (
	ReasonPrivateDefault TriggerReason = "private_default"
	ReasonMentioned      TriggerReason = "mentioned"
	ReasonRepliedToBot   TriggerReason = "replied_to_bot"
	ReasonNamedBot       TriggerReason = "named_bot"
	ReasonGroupWilling   TriggerReason = "group_willing"
	ReasonGroupDisabled  TriggerReason = "group_disabled"
	ReasonEmptyText      TriggerReason = "empty_text"
	ReasonNotTriggered   TriggerReason = "not_triggered"
)

// Priority orders replies: must > high > normal > low
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityMust
)

func (p Priority) String() string {
	switch p {
	case PriorityMust:
		return "must"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// TriggerDecision is the result of evaluating one inbound event
type TriggerDecision struct {
	ShouldReply bool
	Reason      TriggerReason
	Priority    Priority
	WaitMs      int64
	Willingness float64
}

// ShouldDelayReply reports whether the turn needs a deliberation timer
func (d TriggerDecision) ShouldDelayReply() bool {
	return d.ShouldReply && d.WaitMs > 0
}

// TriggerHints are soft signals from the state tracker
type TriggerHints struct {
	AffinityBoost float64
	TopicBoost    float64
	HeatBoost     float64
}

// Total sums all hint boosts
func (h TriggerHints) Total() float64 {
	return h.AffinityBoost + h.TopicBoost + h.HeatBoost
}
