package biz

import (
	"github.com/ovo-bot/ovo-agent/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Trigger   *usecase.TriggerUsecase
	State     *usecase.StateTracker
	Planner   *usecase.PlannerUsecase
	Proactive *usecase.ProactiveUsecase
	Prompt    *usecase.PromptBuilder
}

// Options groups the configuration of every usecase
type Options struct {
	Trigger   usecase.TriggerConfig
	State     usecase.StateTrackerConfig
	Planner   usecase.PlannerConfig
	Proactive usecase.ProactiveConfig
	Prompt    usecase.PromptConfig
}

// NewUsecases builds all usecases around one shared clock
func NewUsecases(opts Options, clock usecase.Clock) *Usecases {
	return &Usecases{
		Trigger:   usecase.NewTriggerUsecase(opts.Trigger),
		State:     usecase.NewStateTracker(opts.State, clock),
		Planner:   usecase.NewPlannerUsecase(opts.Planner),
		Proactive: usecase.NewProactiveUsecase(opts.Proactive),
		Prompt:    usecase.NewPromptBuilder(opts.Prompt),
	}
}
