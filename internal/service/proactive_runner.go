package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz"
	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
	"github.com/ovo-bot/ovo-agent/internal/biz/usecase"
	"github.com/ovo-bot/ovo-agent/internal/infra/clock"
)

// ProactiveSink accepts proactive turns and reports which groups are
// already taken. AgentLoop implements it.
type ProactiveSink interface {
	usecase.GroupGate
	SubmitProactive(c domain.ProactiveCandidate) bool
}

// ProactiveRunnerConfig contains proactive runner configuration
type ProactiveRunnerConfig struct {
	Enabled  bool
	Interval time.Duration // Tick period
}

// ProactiveRunner periodically picks idle groups and hands them to the
// agent loop
type ProactiveRunner struct {
	cfg    ProactiveRunnerConfig
	uc     *biz.Usecases
	groups repo.GroupRepo
	sink   ProactiveSink
	clock  clock.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProactiveRunner creates a new proactive runner
func NewProactiveRunner(cfg ProactiveRunnerConfig, uc *biz.Usecases, groups repo.GroupRepo, sink ProactiveSink, clk clock.Clock, logger *slog.Logger) *ProactiveRunner {
	return &ProactiveRunner{
		cfg:    cfg,
		uc:     uc,
		groups: groups,
		sink:   sink,
		clock:  clk,
		logger: logger.With("component", "proactive"),
	}
}

// Start starts the tick loop. It is a no-op when disabled.
func (r *ProactiveRunner) Start(ctx context.Context) {
	if !r.cfg.Enabled || r.cfg.Interval <= 0 {
		r.logger.Info("proactive runner disabled")
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("proactive runner started", "interval", r.cfg.Interval)
}

// Stop stops the tick loop
func (r *ProactiveRunner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.logger.Info("proactive runner stopped")
}

func (r *ProactiveRunner) loop() {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Tick(r.ctx)
		}
	}
}

// Tick runs one selection round and returns how many turns were submitted.
// Only groups seen since startup are considered.
func (r *ProactiveRunner) Tick(ctx context.Context) int {
	now := r.clock.Now()

	var enabled []domain.GroupSnapshot
	for _, snap := range r.uc.State.ListGroupSnapshots(now) {
		on, err := r.groups.IsEnabled(ctx, snap.GroupID)
		if err != nil {
			r.logger.Warn("group setting lookup failed", "group", snap.GroupID, "error", err)
			continue
		}
		if on {
			enabled = append(enabled, snap)
		}
	}
	if len(enabled) == 0 {
		return 0
	}

	submitted := 0
	for _, c := range r.uc.Proactive.Select(enabled, now, r.sink) {
		if r.sink.SubmitProactive(c) {
			submitted++
			r.logger.Debug("proactive candidate submitted", "group", c.GroupID, "reason", c.Reason, "recent", c.RecentCount)
		}
	}
	return submitted
}
