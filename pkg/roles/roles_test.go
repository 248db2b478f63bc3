package roles

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/agent"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/skill"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

// fakeProvider replays scripted replies and records every request.
type fakeProvider struct {
	replies   []string
	calls     int
	jsonCalls int
	inputs    [][]llms.Message
	err       error
}

func (f *fakeProvider) next(messages []llms.Message) (string, int, error) {
	f.calls++
	snapshot := make([]llms.Message, len(messages))
	copy(snapshot, messages)
	f.inputs = append(f.inputs, snapshot)
	if f.err != nil {
		return "", 0, f.err
	}
	i := f.calls - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], 10, nil
}

func (f *fakeProvider) Generate(_ context.Context, messages []llms.Message) (string, int, error) {
	return f.next(messages)
}

func (f *fakeProvider) GenerateJSON(_ context.Context, messages []llms.Message) (string, int, error) {
	f.jsonCalls++
	return f.next(messages)
}

func (f *fakeProvider) ModelName() string { return "fake-model" }
func (f *fakeProvider) Close() error      { return nil }

func (f *fakeProvider) lastUserTurn(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.inputs)
	messages := f.inputs[len(f.inputs)-1]
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.RoleUser {
			return messages[i].Content
		}
	}
	t.Fatal("no user turn in last request")
	return ""
}

var _ llms.StructuredProvider = (*fakeProvider)(nil)

const planReply = `{
  "overview": "two quick steps",
  "steps": [
    {"id": "s1", "description": "gather inputs"},
    {"id": "s2", "description": "produce output"}
  ]
}`

func demoTask() workflow.Task {
	return workflow.Task{
		Name:        "demo",
		Objective:   "produce a demo artefact",
		Constraints: []string{"keep it short"},
	}
}

func TestPlanner_ProposePlan(t *testing.T) {
	provider := &fakeProvider{replies: []string{planReply}}
	planner := NewPlanner(provider)

	plan, err := planner.ProposePlan(context.Background(), demoTask(), "", nil)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "s1", plan.Steps[0].ID)
	assert.Equal(t, "two quick steps", plan.Overview)
	// Role replies are requested in API-level JSON mode.
	assert.Equal(t, 1, provider.jsonCalls)

	prompt := provider.lastUserTurn(t)
	assert.Contains(t, prompt, "produce a demo artefact")
	assert.Contains(t, prompt, "keep it short")
	assert.NotContains(t, prompt, "rejected")
}

func TestPlanner_ReplanCarriesFeedbackAndOldPlan(t *testing.T) {
	provider := &fakeProvider{replies: []string{planReply}}
	planner := NewPlanner(provider)

	previous := &workflow.Plan{Overview: "the old way", Steps: []workflow.Step{{ID: "old1", Description: "x"}}}
	_, err := planner.ProposePlan(context.Background(), demoTask(), "step old1 is untestable", previous)
	require.NoError(t, err)

	prompt := provider.lastUserTurn(t)
	assert.Contains(t, prompt, "step old1 is untestable")
	assert.Contains(t, prompt, "the old way")
}

func TestPlanner_MalformedReply(t *testing.T) {
	provider := &fakeProvider{replies: []string{"I think the plan should be..."}}
	planner := NewPlanner(provider)

	_, err := planner.ProposePlan(context.Background(), demoTask(), "", nil)
	require.Error(t, err)

	var malformed *agent.MalformedReplyError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 2, malformed.Attempts)
	// The local format correction produced a second exchange.
	assert.Equal(t, 2, provider.calls)
}

func TestReviewer_Verdicts(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		`{"approved": false, "feedback": "step s2 lacks success criteria", "requires_replan": true}`,
	}}
	reviewer := NewReviewer(provider)

	plan := &workflow.Plan{Overview: "p", Steps: []workflow.Step{{ID: "s1"}}}
	verdict, err := reviewer.ReviewPlan(context.Background(), demoTask(), plan, 1)
	require.NoError(t, err)

	assert.False(t, verdict.Approved)
	assert.True(t, verdict.RequiresReplan)
	assert.Contains(t, verdict.Feedback, "s2")
	assert.Contains(t, provider.lastUserTurn(t), "revision 1")
}

func TestReviewer_ReviewStepIncludesResult(t *testing.T) {
	provider := &fakeProvider{replies: []string{`{"approved": true, "feedback": "solid"}`}}
	reviewer := NewReviewer(provider)

	step := workflow.Step{ID: "s1", Description: "do it", SuccessCriteria: "it is done"}
	result := &workflow.StepResult{Summary: "it got done"}
	verdict, err := reviewer.ReviewStep(context.Background(), demoTask(), step, result, 2)
	require.NoError(t, err)

	assert.True(t, verdict.Approved)
	prompt := provider.lastUserTurn(t)
	assert.Contains(t, prompt, "attempt 2")
	assert.Contains(t, prompt, "it got done")
}

func TestExecutor_SkillRoundTrip(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		`{"summary": "need arithmetic", "skill_invocation": {"skill": "evaluate_math", "arguments": {"expression": "0.45 - 0.25"}}}`,
		`{"summary": "the margin is 0.2"}`,
	}}

	skills := skill.NewRegistry()
	require.NoError(t, skill.RegisterBuiltins(skills))
	executor := NewExecutor(provider, skill.PromptFragment(skills.Catalog()))

	plan := &workflow.Plan{Overview: "p", Steps: []workflow.Step{{ID: "s1", Description: "compute the margin"}}}
	result, err := executor.ExecuteStep(context.Background(), demoTask(), plan.Steps[0], plan, nil, "")
	require.NoError(t, err)
	require.NotNil(t, result.Skill)
	assert.Equal(t, "evaluate_math", result.Skill.Skill)

	outcome, invErr := skills.Invoke(context.Background(), result.Skill.Skill, result.Skill.Arguments)
	require.NoError(t, invErr)

	final, err := executor.ObserveSkillOutcome(context.Background(), *result.Skill, outcome, nil)
	require.NoError(t, err)
	assert.Contains(t, final.Summary, "0.2")

	// The follow-up turn fed the skill result back into the same conversation.
	prompt := provider.lastUserTurn(t)
	assert.Contains(t, prompt, "returned: 0.2")
	assert.Contains(t, prompt, "Do not request another skill")
}

func TestExecutor_SkillFailureObservation(t *testing.T) {
	provider := &fakeProvider{replies: []string{`{"summary": "done without the skill"}`}}
	executor := NewExecutor(provider, "No skills are registered.")

	inv := workflow.SkillInvocation{Skill: "does_not_exist"}
	result, err := executor.ObserveSkillOutcome(context.Background(), inv, "", &skill.UnknownSkillError{Name: "does_not_exist"})
	require.NoError(t, err)

	assert.Equal(t, "done without the skill", result.Summary)
	prompt := provider.lastUserTurn(t)
	assert.Contains(t, prompt, "could not be executed")
	assert.Contains(t, prompt, "does_not_exist")
}

func TestExecutor_RetryCarriesFeedback(t *testing.T) {
	provider := &fakeProvider{replies: []string{`{"summary": "second try"}`}}
	executor := NewExecutor(provider, "No skills are registered.")

	plan := &workflow.Plan{Overview: "p", Steps: []workflow.Step{{ID: "s1", Description: "do it"}}}
	_, err := executor.ExecuteStep(context.Background(), demoTask(), plan.Steps[0], plan, nil, "missing the artefact list")
	require.NoError(t, err)

	prompt := provider.lastUserTurn(t)
	assert.Contains(t, prompt, "missing the artefact list")
	assert.Contains(t, prompt, "rejected")
}

func TestCoordinator_ProseReplies(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"Team, we are building a demo artefact today.",
		"# Run summary\nEverything went fine.",
	}}
	coordinator := NewCoordinator(provider)

	note, err := coordinator.Kickoff(context.Background(), demoTask())
	require.NoError(t, err)
	assert.Contains(t, note, "demo artefact")

	record := &workflow.RunRecord{
		Task:  demoTask(),
		Plan:  &workflow.Plan{Overview: "p"},
		Steps: []workflow.StepRecord{{Step: workflow.Step{ID: "s1"}, Result: workflow.StepResult{Summary: "done"}, Attempt: 1}},
	}
	summary, err := coordinator.Summarize(context.Background(), demoTask(), record)
	require.NoError(t, err)
	assert.Contains(t, summary, "Run summary")

	// The coordinator speaks Markdown, never JSON mode.
	assert.Equal(t, 0, provider.jsonCalls)
}

func TestFactory_BuildsFreshRolesAndObservesTurns(t *testing.T) {
	provider := &fakeProvider{replies: []string{planReply}}

	skills := skill.NewRegistry()
	require.NoError(t, skill.RegisterBuiltins(skills))

	factory, err := NewFactory(provider, WithSkillCatalog(skills.Catalog()))
	require.NoError(t, err)

	var turns []string
	set, err := factory.Roles(demoTask(), func(agentName, role, content string) {
		turns = append(turns, agentName+"/"+role)
	})
	require.NoError(t, err)
	require.NotNil(t, set.Planner)
	require.NotNil(t, set.Executor)
	require.NotNil(t, set.Reviewer)
	require.NotNil(t, set.Coordinator)

	// Four system prompts observed at construction.
	systemTurns := 0
	for _, turn := range turns {
		if strings.HasSuffix(turn, "/"+llms.RoleSystem) {
			systemTurns++
		}
	}
	assert.Equal(t, 4, systemTurns)

	_, err = set.Planner.ProposePlan(context.Background(), demoTask(), "", nil)
	require.NoError(t, err)
	assert.Contains(t, turns, "Planner/"+llms.RoleUser)
	assert.Contains(t, turns, "Planner/"+llms.RoleAssistant)
}

func TestFactory_RequiresProvider(t *testing.T) {
	_, err := NewFactory(nil)
	require.Error(t, err)
}
