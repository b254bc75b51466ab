package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovo-bot/ovo-agent/internal/biz"
	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
	"github.com/ovo-bot/ovo-agent/internal/biz/usecase"
	"github.com/ovo-bot/ovo-agent/internal/infra/clock"
)

// ErrLoopStopped is returned for events that arrive after Stop
var ErrLoopStopped = errors.New("agent loop stopped")

// Memory depth per plan mode
const (
	fullMemoryFacts     = 8
	fullMemorySummaries = 3
	liteMemoryFacts     = 3
)

// AgentLoopConfig contains turn scheduler configuration
type AgentLoopConfig struct {
	ReplyEnabled bool          // false records state but never replies
	TurnTimeout  time.Duration // Upper bound for tool routing and generation of one turn
}

// AgentLoopDeps are the collaborators a turn talks to
type AgentLoopDeps struct {
	Messages  repo.MessageRepo
	Memory    repo.MemoryRepo
	Tools     repo.ToolRouter
	Generator repo.Generator
	Groups    repo.GroupRepo
}

// replyTurn is one scheduled reply attempt
type replyTurn struct {
	id       string
	key      string
	seq      uint64
	event    *domain.ChatEvent
	decision domain.TriggerDecision
	waited   bool
}

// workItem is one entry of the global queue: a reply turn or a proactive turn
type workItem struct {
	reply     *replyTurn
	proactive *domain.ProactiveCandidate
}

// sessionLoopState is the scheduler bookkeeping of one session. Each slot
// holds at most one turn.
type sessionLoopState struct {
	nextSeq       uint64
	minDeliverSeq uint64

	pendingTimer *clock.Timer
	pending      *replyTurn // deliberation timer running
	queued       *replyTurn // waiting in the global queue
	running      *replyTurn
	runningStop  context.CancelFunc
	followUp     *replyTurn
}

func (s *sessionLoopState) hasWork() bool {
	return s.pending != nil || s.queued != nil || s.running != nil || s.followUp != nil
}

// AgentLoop schedules reply and proactive turns. All turns run one at a
// time on a single worker, in FIFO order.
type AgentLoop struct {
	cfg    AgentLoopConfig
	uc     *biz.Usecases
	deps   AgentLoopDeps
	clock  clock.Clock
	logger *slog.Logger

	mu               sync.Mutex
	sessions         map[string]*sessionLoopState
	queue            []workItem
	pendingProactive map[string]bool
	stopped          bool
	notify           chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAgentLoop creates a new agent loop
func NewAgentLoop(cfg AgentLoopConfig, uc *biz.Usecases, deps AgentLoopDeps, clk clock.Clock, logger *slog.Logger) *AgentLoop {
	return &AgentLoop{
		cfg:              cfg,
		uc:               uc,
		deps:             deps,
		clock:            clk,
		logger:           logger.With("component", "agent_loop"),
		sessions:         make(map[string]*sessionLoopState),
		pendingProactive: make(map[string]bool),
		notify:           make(chan struct{}, 1),
	}
}

// Start starts the worker
func (l *AgentLoop) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go l.workLoop()

	l.logger.Info("agent loop started", "reply_enabled", l.cfg.ReplyEnabled)
}

// Stop stops the worker, cancels pending timers and drops queued work
func (l *AgentLoop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()

	l.mu.Lock()
	l.stopped = true
	for key, st := range l.sessions {
		st.pendingTimer.Stop()
		if st.runningStop != nil {
			st.runningStop()
		}
		delete(l.sessions, key)
	}
	dropped := len(l.queue)
	l.queue = nil
	l.pendingProactive = make(map[string]bool)
	l.mu.Unlock()

	l.logger.Info("agent loop stopped", "dropped", dropped)
}

func (l *AgentLoop) workLoop() {
	defer l.wg.Done()

	for {
		for l.ctx.Err() == nil && l.processNext(l.ctx) {
		}
		select {
		case <-l.ctx.Done():
			return
		case <-l.notify:
		}
	}
}

// ========== Inbound ==========

// HandleEvent records an inbound event and schedules a reply when the
// trigger engine wants one
func (l *AgentLoop) HandleEvent(ctx context.Context, event *domain.ChatEvent) error {
	if event == nil {
		return nil
	}

	// Hints describe the state before this message
	hints := l.uc.State.GetTriggerHints(event)
	l.uc.State.RecordIncoming(event)

	groupEnabled := false
	if event.IsGroup() {
		enabled, err := l.deps.Groups.IsEnabled(ctx, event.GroupID)
		if err != nil {
			l.logger.Warn("group setting lookup failed", "group", event.GroupID, "error", err)
		}
		groupEnabled = enabled
	}

	decision := l.uc.Trigger.Decide(event, usecase.TriggerInput{GroupEnabled: groupEnabled, Hints: hints})
	l.logger.Debug("trigger decided",
		"session", event.SessionKey(),
		"reply", decision.ShouldReply,
		"reason", decision.Reason,
		"priority", decision.Priority.String(),
		"wait_ms", decision.WaitMs,
		"willingness", decision.Willingness)

	if !l.cfg.ReplyEnabled || !decision.ShouldReply {
		return nil
	}
	return l.schedule(event, decision)
}

// schedule assigns the next sequence number of the session and places the
// turn in the first free slot
func (l *AgentLoop) schedule(event *domain.ChatEvent, decision domain.TriggerDecision) error {
	key := event.SessionKey()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrLoopStopped
	}

	st, ok := l.sessions[key]
	if !ok {
		st = &sessionLoopState{}
		l.sessions[key] = st
	}
	st.nextSeq++
	turn := &replyTurn{
		id:       uuid.NewString(),
		key:      key,
		seq:      st.nextSeq,
		event:    event,
		decision: decision,
	}

	busy := st.hasWork()
	st.minDeliverSeq = turn.seq
	if !busy {
		l.startPendingLocked(st, turn, decision.WaitMs)
		return nil
	}

	// Supersede whatever is in flight
	if st.pending != nil {
		st.pendingTimer.Stop()
		st.pendingTimer = nil
		l.logger.Debug("pending turn superseded", "session", key, "seq", st.pending.seq, "by", turn.seq)
		st.pending = nil
	}
	if st.runningStop != nil {
		st.runningStop()
	}
	st.followUp = turn
	l.releaseLocked(key, st)
	return nil
}

// startPendingLocked arms the deliberation timer, or enqueues right away
// when there is nothing to wait for
func (l *AgentLoop) startPendingLocked(st *sessionLoopState, turn *replyTurn, waitMs int64) {
	if waitMs <= 0 {
		l.enqueueLocked(st, turn)
		return
	}
	st.pending = turn
	st.pendingTimer = l.clock.AfterFunc(time.Duration(waitMs)*time.Millisecond, func() {
		l.onPendingFired(turn)
	})
}

func (l *AgentLoop) onPendingFired(turn *replyTurn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sessions[turn.key]
	if !ok || st.pending != turn {
		return // cancelled while firing
	}
	st.pending = nil
	st.pendingTimer = nil
	l.enqueueLocked(st, turn)
}

func (l *AgentLoop) enqueueLocked(st *sessionLoopState, turn *replyTurn) {
	if turn.seq < st.minDeliverSeq {
		l.logger.Debug("turn superseded before enqueue", "session", turn.key, "seq", turn.seq)
		l.releaseLocked(turn.key, st)
		return
	}
	st.queued = turn
	l.pushLocked(workItem{reply: turn})
}

func (l *AgentLoop) pushLocked(item workItem) {
	l.queue = append(l.queue, item)
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// releaseLocked promotes the follow-up once the session is otherwise idle,
// and evicts the session when every slot is empty
func (l *AgentLoop) releaseLocked(key string, st *sessionLoopState) {
	if st.pending == nil && st.queued == nil && st.running == nil && st.followUp != nil {
		next := st.followUp
		st.followUp = nil
		l.startPendingLocked(st, next, next.decision.WaitMs)
	}
	if !st.hasWork() && l.sessions[key] == st {
		delete(l.sessions, key)
	}
}

// ========== Proactive ==========

// SubmitProactive queues a proactive turn. It returns false when the group
// is busy or already has one pending.
func (l *AgentLoop) SubmitProactive(c domain.ProactiveCandidate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || l.pendingProactive[c.GroupID] || l.groupBusyLocked(c.GroupID) {
		return false
	}
	l.pendingProactive[c.GroupID] = true
	l.pushLocked(workItem{proactive: &c})
	return true
}

// IsGroupBusy reports whether any session of the group has a reply in flight
func (l *AgentLoop) IsGroupBusy(groupID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.groupBusyLocked(groupID)
}

// IsProactivePending reports whether the group has a proactive turn queued
func (l *AgentLoop) IsProactivePending(groupID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingProactive[groupID]
}

func (l *AgentLoop) groupBusyLocked(groupID string) bool {
	for key, st := range l.sessions {
		if gid, ok := domain.GroupOfSessionKey(key); ok && gid == groupID && st.hasWork() {
			return true
		}
	}
	return false
}

// ========== Diagnostics ==========

// LoopStats is a point-in-time view of the scheduler
type LoopStats struct {
	Sessions int `json:"sessions"`
	Queued   int `json:"queued"`
}

// Stats returns the number of live sessions and queued items
func (l *AgentLoop) Stats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LoopStats{Sessions: len(l.sessions), Queued: len(l.queue)}
}

// ========== Worker ==========

// processNext runs the head of the queue. Returns false when the queue is
// empty.
func (l *AgentLoop) processNext(ctx context.Context) bool {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return false
	}
	item := l.queue[0]
	l.queue[0] = workItem{}
	l.queue = l.queue[1:]

	if item.proactive != nil {
		l.mu.Unlock()
		l.runProactive(ctx, *item.proactive)
		return true
	}

	turn := item.reply
	st, ok := l.sessions[turn.key]
	if !ok || st.queued != turn {
		l.mu.Unlock()
		return true
	}
	st.queued = nil
	if turn.seq < st.minDeliverSeq {
		l.logger.Debug("turn superseded in queue", "session", turn.key, "seq", turn.seq)
		l.releaseLocked(turn.key, st)
		l.mu.Unlock()
		return true
	}

	var turnCtx context.Context
	var cancel context.CancelFunc
	if l.cfg.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, l.cfg.TurnTimeout)
	} else {
		turnCtx, cancel = context.WithCancel(ctx)
	}
	st.running = turn
	st.runningStop = cancel
	l.mu.Unlock()

	l.runReply(turnCtx, turn)
	return true
}

// current reports whether the turn is still the newest of its session
func (l *AgentLoop) current(turn *replyTurn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.sessions[turn.key]
	return ok && turn.seq >= st.minDeliverSeq
}

func (l *AgentLoop) runReply(ctx context.Context, turn *replyTurn) {
	var waitMs int64
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("reply turn panicked", "session", turn.key, "turn", turn.id, "panic", r)
			waitMs = 0
		}
		l.finishReply(turn, waitMs)
	}()

	var err error
	waitMs, err = l.executeReply(ctx, turn)
	if err != nil {
		l.logger.Warn("reply turn abandoned", "session", turn.key, "turn", turn.id, "seq", turn.seq, "error", err)
	}
}

// finishReply frees the running slot. A wait plan re-arms the same turn.
func (l *AgentLoop) finishReply(turn *replyTurn, waitMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sessions[turn.key]
	if !ok || st.running != turn {
		return
	}
	st.running = nil
	if st.runningStop != nil {
		st.runningStop()
		st.runningStop = nil
	}

	if waitMs > 0 && turn.seq >= st.minDeliverSeq {
		turn.waited = true
		l.startPendingLocked(st, turn, waitMs)
		return
	}
	l.releaseLocked(turn.key, st)
}

// executeReply plans, renders and sends one reply turn. A positive return
// value asks the scheduler to wait that long and run the turn again.
func (l *AgentLoop) executeReply(ctx context.Context, turn *replyTurn) (int64, error) {
	event := turn.event
	text := event.NormalizedText()

	route, err := l.deps.Tools.Route(ctx, event)
	if err != nil {
		l.logger.Warn("tool routing failed", "turn", turn.id, "error", err)
		route = domain.ToolRoute{Kind: domain.RouteNone}
	}
	if !l.current(turn) {
		return 0, nil
	}

	state := l.uc.State.GetPromptState(event)
	plan := l.uc.Planner.Plan(usecase.PlanInput{
		Event:    event,
		Decision: turn.decision,
		Text:     text,
		Route:    route,
		State:    state,
		Waited:   turn.waited,
	})
	l.logger.Debug("turn planned",
		"session", turn.key,
		"turn", turn.id,
		"seq", turn.seq,
		"action", plan.Action,
		"reason", plan.Reason,
		"style", plan.Style,
		"memory", plan.Memory,
		"quote", plan.Quote)

	switch plan.Action {
	case domain.ActionNoReply:
		return 0, nil
	case domain.ActionWait:
		return plan.WaitMs, nil
	}

	reply, err := l.renderReply(ctx, turn, plan, route, state)
	if err != nil {
		return 0, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return 0, nil
	}

	if !l.current(turn) {
		l.logger.Debug("turn superseded before send", "session", turn.key, "seq", turn.seq)
		return 0, nil
	}

	// Past this point the send goes out even if a newer event arrives
	sendCtx := context.WithoutCancel(ctx)
	if event.IsGroup() {
		quote := ""
		if plan.Quote {
			quote = event.MessageID
		}
		err = l.deps.Messages.SendGroupText(sendCtx, event.GroupID, reply, quote)
	} else {
		err = l.deps.Messages.SendPrivateText(sendCtx, event.UserID, reply)
	}
	if err != nil {
		return 0, fmt.Errorf("send reply: %w", err)
	}

	l.uc.State.RecordReply(event, reply)
	if err := l.deps.Memory.RecordTurn(sendCtx, event, turn.key, text, reply); err != nil {
		l.logger.Warn("failed to record turn", "session", turn.key, "error", err)
	}

	l.logger.Info("reply sent",
		"session", turn.key,
		"turn", turn.id,
		"action", plan.Action,
		"chars", len([]rune(reply)))
	return 0, nil
}

func (l *AgentLoop) renderReply(ctx context.Context, turn *replyTurn, plan domain.ChatActionPlan, route domain.ToolRoute, state domain.PromptState) (string, error) {
	switch plan.Action {
	case domain.ActionCompleteTalk:
		return plan.ClosingText, nil
	case domain.ActionToolDirect:
		return route.Text, nil
	}

	event := turn.event
	text := event.NormalizedText()

	toolContext := ""
	if plan.Action == domain.ActionToolContext {
		toolContext = route.ContextText
	}
	system, prompt := l.uc.Prompt.Build(usecase.PromptInput{
		Event:       event,
		Text:        text,
		Plan:        plan,
		State:       state,
		Memory:      l.memoryContext(ctx, turn, plan.Memory),
		ToolContext: toolContext,
	})

	gen, err := l.deps.Generator.Generate(ctx, repo.GenerateRequest{
		System:  system,
		Prompt:  prompt,
		Visuals: event.Visuals(),
		Seed:    usecase.TurnSeedValue(event, text),
	})
	if err != nil {
		if plan.Action == domain.ActionToolContext && route.FallbackText != "" {
			l.logger.Warn("generation failed, using tool fallback", "turn", turn.id, "error", err)
			return route.FallbackText, nil
		}
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if gen == nil || strings.TrimSpace(gen.Text) == "" {
		if plan.Action == domain.ActionToolContext && route.FallbackText != "" {
			return route.FallbackText, nil
		}
		return l.uc.Prompt.FallbackText(), nil
	}
	return gen.Text, nil
}

func (l *AgentLoop) memoryContext(ctx context.Context, turn *replyTurn, mode domain.MemoryMode) *domain.MemoryContext {
	opts := repo.MemoryOptions{Mode: mode, MaxFacts: liteMemoryFacts}
	if mode == domain.MemoryFull {
		opts.MaxFacts = fullMemoryFacts
		opts.MaxSummaries = fullMemorySummaries
	}

	mem, err := l.deps.Memory.GetContext(ctx, turn.event, turn.key, opts)
	if err != nil {
		l.logger.Warn("failed to load memory", "session", turn.key, "error", err)
		return nil
	}
	return mem
}

func (l *AgentLoop) runProactive(ctx context.Context, c domain.ProactiveCandidate) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("proactive turn panicked", "group", c.GroupID, "panic", r)
		}
		l.mu.Lock()
		delete(l.pendingProactive, c.GroupID)
		l.mu.Unlock()
	}()

	enabled, err := l.deps.Groups.IsEnabled(ctx, c.GroupID)
	if err != nil {
		l.logger.Warn("group setting lookup failed", "group", c.GroupID, "error", err)
		return
	}
	if !enabled {
		l.logger.Debug("proactive skipped, group disabled", "group", c.GroupID)
		return
	}
	if l.IsGroupBusy(c.GroupID) {
		l.logger.Debug("proactive skipped, group busy", "group", c.GroupID)
		return
	}

	now := l.clock.Now()
	text := l.uc.Proactive.RenderText(c, now)
	if text == "" {
		return
	}

	if l.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.TurnTimeout)
		defer cancel()
	}
	if err := l.deps.Messages.SendGroupText(ctx, c.GroupID, text, ""); err != nil {
		l.logger.Warn("proactive send failed", "group", c.GroupID, "error", err)
		return
	}
	l.uc.State.MarkProactiveSent(c.GroupID, now)
	l.logger.Info("proactive sent", "group", c.GroupID, "reason", c.Reason)
}
