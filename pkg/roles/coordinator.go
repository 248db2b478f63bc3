package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/agent"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

const coordinatorSystemPrompt = `You are the Coordinator of an automation team.

You frame each task for the team and summarize completed runs for a human
reader. Your replies are plain Markdown text, not JSON. Keep kickoff notes to
two or three sentences; summaries cover what was planned, what happened step by
step, and the final outcome.`

// Coordinator frames the run: a short kickoff note before planning and a
// Markdown summary at completion. Unlike the other roles it replies in prose.
type Coordinator struct {
	agent *agent.Agent
}

// NewCoordinator creates a coordinator over a fresh conversation.
func NewCoordinator(provider llms.Provider, opts ...agent.Option) *Coordinator {
	return &Coordinator{
		agent: agent.New("Coordinator", "coordinator", coordinatorSystemPrompt, provider, opts...),
	}
}

// Kickoff produces the opening note for a task. Informational only.
func (c *Coordinator) Kickoff(ctx context.Context, task workflow.Task) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "A new task is starting.\nTask: %s\nObjective: %s\n", task.Name, task.Objective)
	if task.Deliverable != "" {
		fmt.Fprintf(&b, "Expected deliverable: %s\n", task.Deliverable)
	}
	b.WriteString("\nWrite a short kickoff note for the team.")

	return c.agent.Send(ctx, b.String())
}

// Summarize produces the human-readable summary of a completed run.
func (c *Coordinator) Summarize(ctx context.Context, task workflow.Task, record *workflow.RunRecord) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The task '%s' has completed. Summarize the run for a human reader.\n", task.Name)
	if record.Plan != nil {
		fmt.Fprintf(&b, "\nPlan overview: %s\n", record.Plan.Overview)
	}
	fmt.Fprintf(&b, "Plan revisions used: %d\n", record.PlanRevisions)

	b.WriteString("\nExecution timeline:\n")
	for _, step := range record.Steps {
		fmt.Fprintf(&b, "- %s (attempt %d): %s\n", step.Step.ID, step.Attempt, step.Result.Summary)
	}
	if record.FinalVerdict != nil {
		fmt.Fprintf(&b, "\nFinal review: approved=%t, feedback: %s\n",
			record.FinalVerdict.Approved, record.FinalVerdict.Feedback)
	}
	b.WriteString("\nWrite the summary in Markdown.")

	return c.agent.Send(ctx, b.String())
}

// TokensUsed reports the conversation's token consumption.
func (c *Coordinator) TokensUsed() int { return c.agent.TokensUsed() }
