package usecase

import (
	"strings"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// TriggerConfig contains trigger engine configuration
type TriggerConfig struct {
	Aliases   []string // Names the bot answers to in groups
	WaitMinMs int64    // Lower bound for non-zero waits
	WaitMaxMs int64    // Upper bound for waits

	GroupUnfinishedWaitMs   int64
	GroupFinishedWaitMs     int64
	PrivateUnfinishedWaitMs int64
	PrivateFinishedWaitMs   int64
}

// DefaultTriggerConfig returns the default trigger configuration
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		WaitMinMs:               200,
		WaitMaxMs:               4000,
		GroupUnfinishedWaitMs:   1500,
		GroupFinishedWaitMs:     850,
		PrivateUnfinishedWaitMs: 1100,
		PrivateFinishedWaitMs:   450,
	}
}

const (
	willingnessBase      = 0.22
	willingnessThreshold = 0.62
	willingnessHigh      = 0.82
	longTextRunes        = 30
)

// TriggerInput carries the per-event context the engine needs besides the event
type TriggerInput struct {
	GroupEnabled bool
	Hints        domain.TriggerHints
}

// TriggerUsecase decides whether an inbound event deserves a reply
type TriggerUsecase struct {
	cfg     TriggerConfig
	aliases []string
}

// NewTriggerUsecase creates a new trigger usecase
func NewTriggerUsecase(cfg TriggerConfig) *TriggerUsecase {
	aliases := make([]string, 0, len(cfg.Aliases))
	for _, a := range cfg.Aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			aliases = append(aliases, a)
		}
	}
	return &TriggerUsecase{cfg: cfg, aliases: aliases}
}

// Decide evaluates one event. It has no side effects.
func (uc *TriggerUsecase) Decide(event *domain.ChatEvent, in TriggerInput) domain.TriggerDecision {
	text := event.NormalizedText()
	hasVisuals := event.HasVisuals()

	if !event.IsGroup() {
		if text == "" && !hasVisuals {
			return domain.TriggerDecision{Reason: domain.ReasonEmptyText, Priority: domain.PriorityLow}
		}
		wait := uc.cfg.PrivateFinishedWaitMs
		if text == "" || LooksUnfinished(text) {
			wait = uc.cfg.PrivateUnfinishedWaitMs
		}
		return domain.TriggerDecision{
			ShouldReply: true,
			Reason:      domain.ReasonPrivateDefault,
			Priority:    domain.PriorityHigh,
			WaitMs:      uc.clampWait(wait),
			Willingness: 1,
		}
	}

	if !in.GroupEnabled {
		return domain.TriggerDecision{Reason: domain.ReasonGroupDisabled, Priority: domain.PriorityLow}
	}

	switch {
	case event.Mentions(domain.SelfID):
		return mustReply(domain.ReasonMentioned)
	case event.RepliesTo(domain.SelfID):
		return mustReply(domain.ReasonRepliedToBot)
	case uc.namesBot(text):
		return mustReply(domain.ReasonNamedBot)
	}

	if text == "" && !hasVisuals {
		return domain.TriggerDecision{Reason: domain.ReasonEmptyText, Priority: domain.PriorityLow}
	}

	willingness := uc.Willingness(event, in.Hints)
	if willingness < willingnessThreshold {
		return domain.TriggerDecision{
			Reason:      domain.ReasonNotTriggered,
			Priority:    domain.PriorityLow,
			Willingness: willingness,
		}
	}

	priority := domain.PriorityNormal
	if willingness >= willingnessHigh {
		priority = domain.PriorityHigh
	}
	wait := uc.cfg.GroupFinishedWaitMs
	if LooksUnfinished(text) {
		wait = uc.cfg.GroupUnfinishedWaitMs
	}
	return domain.TriggerDecision{
		ShouldReply: true,
		Reason:      domain.ReasonGroupWilling,
		Priority:    priority,
		WaitMs:      uc.clampWait(wait),
		Willingness: willingness,
	}
}

// Willingness computes the unaddressed-reply score of a group event
func (uc *TriggerUsecase) Willingness(event *domain.ChatEvent, hints domain.TriggerHints) float64 {
	return clamp01(willingnessBase + TopicScore(event.NormalizedText(), event.HasVisuals()) + hints.Total())
}

// TopicScore rewards reply-worthy content and penalizes filler
func TopicScore(text string, hasVisuals bool) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	if IsQuestion(text) {
		score += 0.22
	}
	if containsAny(lower, helpKeywords) {
		score += 0.18
	}
	if containsAny(lower, techKeywords) {
		score += 0.22
	}
	if containsAny(lower, gratitudeKeywords) {
		score += 0.05
	}
	if hasVisuals {
		score += 0.08
	}
	if runeLen(text) >= longTextRunes {
		score += 0.08
	}
	if IsLowValue(text) {
		score -= 0.2
	}
	return score
}

func (uc *TriggerUsecase) namesBot(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, alias := range uc.aliases {
		if strings.Contains(lower, alias) {
			return true
		}
	}
	return false
}

func (uc *TriggerUsecase) clampWait(ms int64) int64 {
	return clampMs(ms, uc.cfg.WaitMinMs, uc.cfg.WaitMaxMs)
}

func mustReply(reason domain.TriggerReason) domain.TriggerDecision {
	return domain.TriggerDecision{
		ShouldReply: true,
		Reason:      reason,
		Priority:    domain.PriorityMust,
		Willingness: 1,
	}
}
