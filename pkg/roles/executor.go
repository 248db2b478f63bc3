package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/agent"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

func executorSystemPrompt(skillCatalog string) string {
	return fmt.Sprintf(`You are the Executor of an automation team.

You carry out one plan step at a time and report a structured result. You may
request exactly one skill invocation per step by filling "skill_invocation";
the skill's outcome will be fed back to you in a follow-up turn, after which
you report your final result without requesting another skill.

Available skills:
%s

Reply with ONLY a single JSON object matching this schema, no prose and no
markdown fences:

%s`, skillCatalog, schemaJSON[workflow.StepResult]())
}

// Executor carries out plan steps, optionally requesting skill invocations.
type Executor struct {
	agent *agent.Agent
}

// NewExecutor creates an executor over a fresh conversation. skillCatalog is
// the rendered catalogue of registered skills (skill.PromptFragment).
func NewExecutor(provider llms.Provider, skillCatalog string, opts ...agent.Option) *Executor {
	opts = append(opts, agent.WithJSONReplies())
	return &Executor{
		agent: agent.New("Executor", "executor", executorSystemPrompt(skillCatalog), provider, opts...),
	}
}

// ExecuteStep carries out one step. prior carries the already-approved triples
// of the current plan; feedback is the reviewer's objection when this is a
// retry of the same step.
func (e *Executor) ExecuteStep(ctx context.Context, task workflow.Task, step workflow.Step, plan *workflow.Plan, prior []workflow.StepRecord, feedback string) (*workflow.StepResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nObjective: %s\nPlan overview: %s\n", task.Name, task.Objective, plan.Overview)

	if len(prior) > 0 {
		b.WriteString("\nCompleted steps so far:\n")
		for _, record := range prior {
			fmt.Fprintf(&b, "- %s: %s\n", record.Step.ID, record.Result.Summary)
		}
	}

	fmt.Fprintf(&b, "\nExecute this step:\n%s\n", mustJSON(step))

	if feedback != "" {
		b.WriteString("\nYour previous attempt at this step was rejected. Reviewer feedback:\n")
		b.WriteString(feedback)
		b.WriteString("\nAddress the feedback in this attempt.")
	}

	return agent.SendParsed[workflow.StepResult](ctx, e.agent, b.String())
}

// ObserveSkillOutcome is the single follow-up turn after the workflow resolved
// a requested skill. failure is non-nil when the skill was unknown or failed;
// either way the executor must fold the observation into its final result.
func (e *Executor) ObserveSkillOutcome(ctx context.Context, inv workflow.SkillInvocation, outcome string, failure error) (*workflow.StepResult, error) {
	var b strings.Builder
	if failure != nil {
		fmt.Fprintf(&b, "Skill '%s' could not be executed: %v\n", inv.Skill, failure)
		b.WriteString("Complete the step without it, noting the limitation.\n")
	} else {
		fmt.Fprintf(&b, "Skill '%s' returned: %s\n", inv.Skill, outcome)
		b.WriteString("Incorporate this result.\n")
	}
	b.WriteString("\nReport your final step result now. Do not request another skill.")

	return agent.SendParsed[workflow.StepResult](ctx, e.agent, b.String())
}

// TokensUsed reports the conversation's token consumption.
func (e *Executor) TokensUsed() int { return e.agent.TokensUsed() }
