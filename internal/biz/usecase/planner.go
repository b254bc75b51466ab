package usecase

import (
	"strings"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// ClosingTexts are the pre-written wrap-up lines for one style
type ClosingTexts struct {
	Group   []string
	Private []string
}

// PlannerConfig contains action planner configuration
type PlannerConfig struct {
	StyleVariants          bool
	StyleSwitchProbability float64
	QuoteMode              domain.QuoteMode
	UnfinishedWaitMs       int64
	Closings               map[domain.StyleVariant]ClosingTexts
}

// DefaultPlannerConfig returns the default planner configuration
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		StyleVariants:          true,
		StyleSwitchProbability: 0.35,
		QuoteMode:              domain.QuoteAuto,
		UnfinishedWaitMs:       1200,
		Closings: map[domain.StyleVariant]ClosingTexts{
			domain.StyleDefault: {Group: []string{"好嘞，有事再叫我～"}, Private: []string{"好的，随时找我～"}},
			domain.StyleWarm:    {Group: []string{"好呀，大家有需要再喊我"}, Private: []string{"嗯嗯，照顾好自己，有事随时找我"}},
			domain.StylePlayful: {Group: []string{"收到收到，我先溜啦～"}, Private: []string{"好耶，那我先撤啦，拜拜～"}},
			domain.StyleConcise: {Group: []string{"好的。"}, Private: []string{"好的。"}},
		},
	}
}

const (
	shortQuestionRunes  = 80
	fullMemoryRunes     = 24
	closingMaxRunes     = 36
	longStyleTextRunes  = 60
	lowValueWillingness = 0.66
)

// PlanInput is everything the planner looks at for one turn
type PlanInput struct {
	Event    *domain.ChatEvent
	Decision domain.TriggerDecision
	Text     string // normalized text
	Route    domain.ToolRoute
	State    domain.PromptState
	// Waited is set once the turn already went through a wait action
	Waited bool
}

// PlannerUsecase turns a trigger decision into a concrete action plan
type PlannerUsecase struct {
	cfg PlannerConfig
}

// NewPlannerUsecase creates a new planner usecase
func NewPlannerUsecase(cfg PlannerConfig) *PlannerUsecase {
	return &PlannerUsecase{cfg: cfg}
}

// Plan computes the action plan. Identical input always yields an
// identical plan.
func (uc *PlannerUsecase) Plan(in PlanInput) domain.ChatActionPlan {
	if !in.Decision.ShouldReply {
		return domain.ChatActionPlan{Action: domain.ActionNoReply, Reason: "trigger_blocked", Style: domain.StyleDefault, Memory: domain.MemoryLite}
	}

	ratio := stableRatio(TurnSeed(in.Event, in.Text))
	plan := domain.ChatActionPlan{
		Style:  uc.styleVariant(in, ratio),
		Quote:  uc.shouldQuote(in),
		Memory: memoryMode(in),
	}

	if IsClosing(in.Text) && runeLen(in.Text) <= closingMaxRunes && !in.Route.Fired() {
		plan.Action = domain.ActionCompleteTalk
		plan.Reason = "conversation_closing"
		plan.ClosingText = uc.closingText(plan.Style, in.Event.IsGroup(), ratio)
		return plan
	}

	if in.Event.IsGroup() && in.Decision.Reason == domain.ReasonGroupWilling &&
		in.Decision.Willingness < lowValueWillingness && IsLowValue(in.Text) {
		plan.Action = domain.ActionNoReply
		plan.Reason = "low_value_group_message"
		return plan
	}

	// Deterministic triggers skip deliberation, so a sender who stops on
	// a comma or conjunction gets one extra wait here.
	if !in.Waited && in.Decision.WaitMs == 0 && uc.cfg.UnfinishedWaitMs > 0 &&
		!in.Route.Fired() && EndsMidSentence(in.Text) {
		plan.Action = domain.ActionWait
		plan.Reason = "unfinished_text"
		plan.WaitMs = uc.cfg.UnfinishedWaitMs
		return plan
	}

	switch in.Route.Kind {
	case domain.RouteDirect:
		plan.Action = domain.ActionToolDirect
		plan.Reason = "tool:" + in.Route.Tool
	case domain.RouteContext:
		plan.Action = domain.ActionToolContext
		plan.Reason = "tool:" + in.Route.Tool
	default:
		plan.Action = domain.ActionLLM
		plan.Reason = string(in.Decision.Reason)
	}
	return plan
}

func (uc *PlannerUsecase) styleVariant(in PlanInput, ratio float64) domain.StyleVariant {
	if !uc.cfg.StyleVariants {
		return domain.StyleDefault
	}
	if in.Decision.Priority == domain.PriorityMust {
		return domain.StyleConcise
	}
	p := uc.cfg.StyleSwitchProbability
	if ratio > p {
		return domain.StyleDefault
	}
	switch {
	case in.State.Emotion == domain.EmotionNegative:
		return domain.StyleWarm
	case in.State.Emotion == domain.EmotionExcited:
		return domain.StylePlayful
	case runeLen(in.Text) >= longStyleTextRunes:
		return domain.StyleConcise
	case ratio < p/2:
		return domain.StyleWarm
	default:
		return domain.StylePlayful
	}
}

func (uc *PlannerUsecase) shouldQuote(in PlanInput) bool {
	if !in.Event.IsGroup() || in.Event.MessageID == "" {
		return false
	}
	switch uc.cfg.QuoteMode {
	case domain.QuoteOn:
		return true
	case domain.QuoteOff:
		return false
	}
	if in.Decision.Reason == domain.ReasonMentioned || in.Decision.Reason == domain.ReasonRepliedToBot {
		return true
	}
	return runeLen(in.Text) <= shortQuestionRunes && IsQuestion(in.Text)
}

func memoryMode(in PlanInput) domain.MemoryMode {
	toolText := in.Route.Text + in.Route.ContextText
	if strings.TrimSpace(toolText) != "" ||
		IsQuestion(in.Text) ||
		runeLen(in.Text) >= fullMemoryRunes ||
		containsAny(strings.ToLower(in.Text), highValueKeywords) {
		return domain.MemoryFull
	}
	return domain.MemoryLite
}

func (uc *PlannerUsecase) closingText(style domain.StyleVariant, group bool, ratio float64) string {
	texts, ok := uc.cfg.Closings[style]
	if !ok {
		texts = uc.cfg.Closings[domain.StyleDefault]
	}
	options := texts.Private
	if group {
		options = texts.Group
	}
	if len(options) == 0 {
		return "好的～"
	}
	return options[int(ratio*float64(len(options)))%len(options)]
}
