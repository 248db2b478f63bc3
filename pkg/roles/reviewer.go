package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/agent"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

func reviewerSystemPrompt() string {
	return fmt.Sprintf(`You are the Reviewer of an automation team.

You judge plans, step results, and final deliverables against the task's
objective and constraints. Approve only work that genuinely satisfies its
success criteria. When rejecting, give feedback specific enough to act on.
Set "requires_replan" to true only when the flaw is in the plan itself and
retrying the same step cannot fix it.

Reply with ONLY a single JSON object matching this schema, no prose and no
markdown fences:

%s`, schemaJSON[workflow.ReviewVerdict]())
}

// Reviewer judges plans, step results and final deliverables.
type Reviewer struct {
	agent *agent.Agent
}

// NewReviewer creates a reviewer over a fresh conversation.
func NewReviewer(provider llms.Provider, opts ...agent.Option) *Reviewer {
	opts = append(opts, agent.WithJSONReplies())
	return &Reviewer{
		agent: agent.New("Reviewer", "reviewer", reviewerSystemPrompt(), provider, opts...),
	}
}

func taskHeader(task workflow.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nObjective: %s\n", task.Name, task.Objective)
	for _, constraint := range task.Constraints {
		fmt.Fprintf(&b, "Constraint: %s\n", constraint)
	}
	return b.String()
}

// ReviewPlan judges a proposed plan. revision is the number of plan revisions
// consumed so far, so the reviewer knows how much budget remains.
func (r *Reviewer) ReviewPlan(ctx context.Context, task workflow.Task, plan *workflow.Plan, revision int) (*workflow.ReviewVerdict, error) {
	var b strings.Builder
	b.WriteString(taskHeader(task))
	fmt.Fprintf(&b, "\nReview this plan (revision %d):\n%s\n", revision, mustJSON(plan))
	b.WriteString("\nJudge whether executing these steps would achieve the objective within the constraints.")

	return agent.SendParsed[workflow.ReviewVerdict](ctx, r.agent, b.String())
}

// ReviewStep judges one executed step's result. attempt is 1-based.
func (r *Reviewer) ReviewStep(ctx context.Context, task workflow.Task, step workflow.Step, result *workflow.StepResult, attempt int) (*workflow.ReviewVerdict, error) {
	var b strings.Builder
	b.WriteString(taskHeader(task))
	fmt.Fprintf(&b, "\nStep under review (attempt %d):\n%s\n", attempt, mustJSON(step))
	fmt.Fprintf(&b, "\nExecutor's result:\n%s\n", mustJSON(result))
	b.WriteString("\nJudge the result against the step's success criteria.")

	return agent.SendParsed[workflow.ReviewVerdict](ctx, r.agent, b.String())
}

// FinalReview judges the assembled deliverable. The verdict is informational;
// it is recorded but never triggers another loop.
func (r *Reviewer) FinalReview(ctx context.Context, task workflow.Task, plan *workflow.Plan, steps []workflow.StepRecord) (*workflow.ReviewVerdict, error) {
	var b strings.Builder
	b.WriteString(taskHeader(task))
	fmt.Fprintf(&b, "\nAll steps of the approved plan have completed. Plan overview: %s\n", plan.Overview)
	b.WriteString("\nExecution timeline:\n")
	for _, record := range steps {
		fmt.Fprintf(&b, "- %s (attempt %d): %s\n", record.Step.ID, record.Attempt, record.Result.Summary)
	}
	b.WriteString("\nGive a final verdict on the deliverable as a whole.")

	return agent.SendParsed[workflow.ReviewVerdict](ctx, r.agent, b.String())
}

// TokensUsed reports the conversation's token consumption.
func (r *Reviewer) TokensUsed() int { return r.agent.TokensUsed() }
