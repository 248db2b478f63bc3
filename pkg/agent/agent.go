// Package agent implements the conversational core shared by every role: a
// persistent, append-only message history scoped to one task, a role-specific
// system prompt, and a blocking send-one-turn exchange with the model
// collaborator.
//
// Agents never share history. A new task gets fresh agent instances; the
// workflow owns one instance per role per task.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
)

// TurnObserverFunc receives every message appended to an agent's history,
// in order. Used for transcripts, console rendering and audit logs.
type TurnObserverFunc func(agentName, role, content string)

// Agent wraps one conversation with the model collaborator.
type Agent struct {
	mu sync.Mutex

	name         string
	role         string
	systemPrompt string
	provider     llms.Provider
	history      []llms.Message

	// jsonReplies asks the provider for API-level JSON mode when supported.
	jsonReplies bool

	// timeout bounds one exchange. Zero means the provider's own timeout.
	timeout time.Duration

	observer TurnObserverFunc

	counter     *TokenCounter
	totalTokens int
}

// Option configures an Agent.
type Option func(*Agent)

// WithJSONReplies makes every exchange request API-level JSON output when the
// provider supports it. Roles with JSON reply schemas set this.
func WithJSONReplies() Option {
	return func(a *Agent) { a.jsonReplies = true }
}

// WithTimeout bounds each model exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Agent) { a.timeout = timeout }
}

// WithObserver installs a turn observer.
func WithObserver(observer TurnObserverFunc) Option {
	return func(a *Agent) { a.observer = observer }
}

// WithTokenCounter installs an accurate token counter, used when the provider
// does not report usage itself (local servers mostly).
func WithTokenCounter(counter *TokenCounter) Option {
	return func(a *Agent) { a.counter = counter }
}

// New creates an agent with its history seeded by the system prompt.
func New(name, role, systemPrompt string, provider llms.Provider, opts ...Option) *Agent {
	a := &Agent{
		name:         name,
		role:         role,
		systemPrompt: systemPrompt,
		provider:     provider,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.appendLocked(llms.Message{Role: llms.RoleSystem, Content: systemPrompt})
	return a
}

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Role returns the agent's role label.
func (a *Agent) Role() string { return a.role }

// Send appends input as a user turn, performs one blocking exchange and
// appends the assistant reply. The user turn stays in history even when the
// exchange fails, so a follow-up retry carries the full context.
func (a *Agent) Send(ctx context.Context, input string) (string, error) {
	a.mu.Lock()
	a.appendLocked(llms.Message{Role: llms.RoleUser, Content: input})
	messages := make([]llms.Message, len(a.history))
	copy(messages, a.history)
	a.mu.Unlock()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var (
		text   string
		tokens int
		err    error
	)
	if structured, ok := a.provider.(llms.StructuredProvider); ok && a.jsonReplies {
		text, tokens, err = structured.GenerateJSON(ctx, messages)
	} else {
		text, tokens, err = a.provider.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("agent %s: exchange failed: %w", a.name, err)
	}

	a.mu.Lock()
	a.appendLocked(llms.Message{Role: llms.RoleAssistant, Content: text})
	if tokens > 0 {
		a.totalTokens += tokens
	} else if a.counter != nil {
		a.totalTokens += a.counter.CountMessages(messages) + a.counter.Count(text)
	} else {
		a.totalTokens += estimateTokens(input) + estimateTokens(text)
	}
	a.mu.Unlock()

	return text, nil
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []llms.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]llms.Message, len(a.history))
	copy(out, a.history)
	return out
}

// TokensUsed returns the total tokens consumed by this conversation.
func (a *Agent) TokensUsed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalTokens
}

// Reset clears the history back to the system prompt. Used when an agent
// instance is recycled across tasks instead of reconstructed.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = a.history[:0]
	a.totalTokens = 0
	a.appendLocked(llms.Message{Role: llms.RoleSystem, Content: a.systemPrompt})
}

func (a *Agent) appendLocked(msg llms.Message) {
	a.history = append(a.history, msg)
	if a.observer != nil {
		a.observer(a.name, msg.Role, msg.Content)
	}
}
