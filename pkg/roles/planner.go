package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/agent"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

func plannerSystemPrompt() string {
	return fmt.Sprintf(`You are the Planner of an automation team.

Given a task objective you produce a concrete, ordered plan of executable steps.
Each step must be small enough for a single executor pass and carry measurable
success criteria. When a previous plan was rejected, address every point of the
reviewer's feedback in the replacement plan.

Reply with ONLY a single JSON object matching this schema, no prose and no
markdown fences:

%s`, schemaJSON[workflow.Plan]())
}

// Planner produces plans for the workflow's planning state.
type Planner struct {
	agent *agent.Agent
}

// NewPlanner creates a planner over a fresh conversation.
func NewPlanner(provider llms.Provider, opts ...agent.Option) *Planner {
	opts = append(opts, agent.WithJSONReplies())
	return &Planner{
		agent: agent.New("Planner", "planner", plannerSystemPrompt(), provider, opts...),
	}
}

// ProposePlan asks for a plan. On a replan, feedback carries the reviewer's
// objections and previous the superseded plan; both are zero-valued on the
// first attempt.
func (p *Planner) ProposePlan(ctx context.Context, task workflow.Task, feedback string, previous *workflow.Plan) (*workflow.Plan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nObjective: %s\n", task.Name, task.Objective)
	if task.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", task.Context)
	}
	if task.Deliverable != "" {
		fmt.Fprintf(&b, "Expected deliverable: %s\n", task.Deliverable)
	}
	for _, constraint := range task.Constraints {
		fmt.Fprintf(&b, "Constraint: %s\n", constraint)
	}

	if feedback != "" {
		b.WriteString("\nYour previous plan was rejected. Reviewer feedback:\n")
		b.WriteString(feedback)
		b.WriteString("\n")
		if previous != nil {
			b.WriteString("\nThe rejected plan, for reference:\n")
			b.WriteString(mustJSON(previous))
			b.WriteString("\n")
		}
		b.WriteString("\nProduce a complete replacement plan that resolves the feedback.")
	} else {
		b.WriteString("\nProduce the plan.")
	}

	return agent.SendParsed[workflow.Plan](ctx, p.agent, b.String())
}

// TokensUsed reports the conversation's token consumption.
func (p *Planner) TokensUsed() int { return p.agent.TokensUsed() }
