package roles

import (
	"fmt"
	"time"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/agent"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/skill"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

// Factory builds a fresh RoleSet per task, so no conversation history leaks
// across tasks. It satisfies workflow.RoleProvider.
type Factory struct {
	provider llms.Provider
	catalog  []skill.Info
	timeout  time.Duration
	counter  *agent.TokenCounter
}

var _ workflow.RoleProvider = (*Factory)(nil)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSkillCatalog advertises the registered skills to the executor.
func WithSkillCatalog(catalog []skill.Info) FactoryOption {
	return func(f *Factory) { f.catalog = catalog }
}

// WithExchangeTimeout bounds each model exchange of every agent.
func WithExchangeTimeout(timeout time.Duration) FactoryOption {
	return func(f *Factory) { f.timeout = timeout }
}

// WithTokenCounter installs a token counter on every agent, for providers that
// do not report usage themselves.
func WithTokenCounter(counter *agent.TokenCounter) FactoryOption {
	return func(f *Factory) { f.counter = counter }
}

// NewFactory creates a role factory over one model provider. All four roles
// share the provider but never a conversation.
func NewFactory(provider llms.Provider, opts ...FactoryOption) (*Factory, error) {
	if provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	f := &Factory{provider: provider}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Roles builds the four role instances for one task. observe receives every
// turn of every agent, in order.
func (f *Factory) Roles(_ workflow.Task, observe workflow.TurnObserver) (*workflow.RoleSet, error) {
	opts := make([]agent.Option, 0, 3)
	if observe != nil {
		opts = append(opts, agent.WithObserver(agent.TurnObserverFunc(observe)))
	}
	if f.timeout > 0 {
		opts = append(opts, agent.WithTimeout(f.timeout))
	}
	if f.counter != nil {
		opts = append(opts, agent.WithTokenCounter(f.counter))
	}
	// Full slice expression: role constructors append their own options and
	// must not share a backing array.
	opts = opts[:len(opts):len(opts)]

	return &workflow.RoleSet{
		Planner:     NewPlanner(f.provider, opts...),
		Executor:    NewExecutor(f.provider, skill.PromptFragment(f.catalog), opts...),
		Reviewer:    NewReviewer(f.provider, opts...),
		Coordinator: NewCoordinator(f.provider, opts...),
	}, nil
}
