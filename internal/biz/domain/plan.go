package domain

// ActionType is what a reply turn will do
type ActionType string

const (
	ActionNoReply      ActionType = "no_reply"
	ActionWait         ActionType = "wait"
	ActionCompleteTalk ActionType = "complete_talk"
	ActionToolDirect   ActionType = "tool_direct"
	ActionToolContext  ActionType = "tool_context"
	ActionLLM          ActionType = "llm"
)

// StyleVariant tints the reply tone
type StyleVariant string

const (
	StyleDefault StyleVariant = "default"
	StyleWarm    StyleVariant = "warm"
	StylePlayful StyleVariant = "playful"
	StyleConcise StyleVariant = "concise"
)

// MemoryMode selects how much long-term memory is loaded
type MemoryMode string

const (
	MemoryFull MemoryMode = "full"
	MemoryLite MemoryMode = "lite"
)

// QuoteMode is the configured quoting policy
type QuoteMode string

const (
	QuoteAuto QuoteMode = "auto"
	QuoteOn   QuoteMode = "on"
	QuoteOff  QuoteMode = "off"
)

// ChatActionPlan is the planner output for one turn
type ChatActionPlan struct {
	Action      ActionType
	Reason      string
	Quote       bool
	Style       StyleVariant
	Memory      MemoryMode
	WaitMs      int64  // set for ActionWait
	ClosingText string // set for ActionCompleteTalk
}

// ToolRouteKind is the tool router verdict
type ToolRouteKind string

const (
	RouteNone    ToolRouteKind = "none"
	RouteDirect  ToolRouteKind = "direct"
	RouteContext ToolRouteKind = "context"
)

// ToolRoute is the result of routing one event to a tool
type ToolRoute struct {
	Kind         ToolRouteKind
	Tool         string
	Text         string // answer for RouteDirect
	ContextText  string // injected into generation for RouteContext
	FallbackText string // sent when generation fails for RouteContext
}

// Fired reports whether any tool produced output
func (r ToolRoute) Fired() bool {
	return r.Kind == RouteDirect || r.Kind == RouteContext
}
