package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/skill"
)

// ============================================================================
// SCRIPTED ROLES
// ============================================================================

type scriptedPlanner struct {
	plans []*Plan
	err   error
	calls int
	// feedback received per call, for assertions on replan input
	feedbacks []string
}

func (p *scriptedPlanner) ProposePlan(_ context.Context, _ Task, feedback string, _ *Plan) (*Plan, error) {
	p.calls++
	p.feedbacks = append(p.feedbacks, feedback)
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls - 1
	if i >= len(p.plans) {
		i = len(p.plans) - 1
	}
	return p.plans[i], nil
}

type scriptedReviewer struct {
	planVerdicts []ReviewVerdict
	stepVerdicts []ReviewVerdict
	final        ReviewVerdict

	planCalls  int
	stepCalls  int
	finalCalls int
}

func pick(verdicts []ReviewVerdict, call int) (*ReviewVerdict, error) {
	if len(verdicts) == 0 {
		return nil, fmt.Errorf("no verdict scripted")
	}
	i := call - 1
	if i >= len(verdicts) {
		i = len(verdicts) - 1
	}
	v := verdicts[i]
	return &v, nil
}

func (r *scriptedReviewer) ReviewPlan(_ context.Context, _ Task, _ *Plan, _ int) (*ReviewVerdict, error) {
	r.planCalls++
	return pick(r.planVerdicts, r.planCalls)
}

func (r *scriptedReviewer) ReviewStep(_ context.Context, _ Task, _ Step, _ *StepResult, _ int) (*ReviewVerdict, error) {
	r.stepCalls++
	return pick(r.stepVerdicts, r.stepCalls)
}

func (r *scriptedReviewer) FinalReview(_ context.Context, _ Task, _ *Plan, _ []StepRecord) (*ReviewVerdict, error) {
	r.finalCalls++
	v := r.final
	return &v, nil
}

type skillObservation struct {
	inv     SkillInvocation
	outcome string
	failure error
}

type scriptedExecutor struct {
	results      []*StepResult
	err          error
	calls        int
	observeCalls int
	observations []skillObservation
}

func (e *scriptedExecutor) ExecuteStep(_ context.Context, _ Task, step Step, _ *Plan, _ []StepRecord, _ string) (*StepResult, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	i := e.calls - 1
	if i >= len(e.results) {
		i = len(e.results) - 1
	}
	res := *e.results[i]
	if res.Summary == "" {
		res.Summary = "completed " + step.ID
	}
	return &res, nil
}

func (e *scriptedExecutor) ObserveSkillOutcome(_ context.Context, inv SkillInvocation, outcome string, failure error) (*StepResult, error) {
	e.observeCalls++
	e.observations = append(e.observations, skillObservation{inv: inv, outcome: outcome, failure: failure})
	if failure != nil {
		return &StepResult{Summary: "skill failed, proceeding without it", Notes: failure.Error()}, nil
	}
	return &StepResult{Summary: "skill returned " + outcome}, nil
}

type scriptedCoordinator struct {
	summary        string
	kickoffErr     error
	summarizeErr   error
	kickoffCalls   int
	summarizeCalls int
}

func (c *scriptedCoordinator) Kickoff(_ context.Context, task Task) (string, error) {
	c.kickoffCalls++
	if c.kickoffErr != nil {
		return "", c.kickoffErr
	}
	return "starting " + task.Name, nil
}

func (c *scriptedCoordinator) Summarize(_ context.Context, _ Task, _ *RunRecord) (string, error) {
	c.summarizeCalls++
	if c.summarizeErr != nil {
		return "", c.summarizeErr
	}
	if c.summary != "" {
		return c.summary, nil
	}
	return "all done", nil
}

type fakeProvider struct {
	set     *RoleSet
	err     error
	observe TurnObserver
}

func (f *fakeProvider) Roles(_ Task, observe TurnObserver) (*RoleSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.observe = observe
	return f.set, nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func approved() ReviewVerdict {
	return ReviewVerdict{Approved: true, Feedback: "looks good"}
}

func rejected(feedback string) ReviewVerdict {
	return ReviewVerdict{Approved: false, Feedback: feedback}
}

func onePlan(stepIDs ...string) *Plan {
	steps := make([]Step, 0, len(stepIDs))
	for _, id := range stepIDs {
		steps = append(steps, Step{ID: id, Description: "do " + id})
	}
	return &Plan{Overview: "test plan", Steps: steps}
}

func testTask() Task {
	return Task{Name: "demo", Objective: "produce a demo artefact"}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkflow(t *testing.T, set *RoleSet, skills SkillInvoker, opts ...Option) (*AutomationWorkflow, *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{set: set}
	opts = append(opts, WithLogger(quietLogger()))
	w, err := New(provider, skills, opts...)
	require.NoError(t, err)
	return w, provider
}

// ============================================================================
// TESTS
// ============================================================================

func TestRun_HappyPath(t *testing.T) {
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{approved()},
		final:        approved(),
	}
	executor := &scriptedExecutor{results: []*StepResult{{Summary: "did s1"}}}
	coordinator := &scriptedCoordinator{summary: "demo finished"}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: executor, Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, 1, planner.calls)
	assert.Equal(t, 1, executor.calls)
	assert.Equal(t, 1, reviewer.planCalls)
	assert.Equal(t, 1, reviewer.stepCalls)
	assert.Equal(t, 1, reviewer.finalCalls)
	assert.Equal(t, 1, coordinator.kickoffCalls)
	assert.Equal(t, 1, coordinator.summarizeCalls)
	assert.Equal(t, 0, record.PlanRevisions)

	require.Len(t, record.Steps, 1)
	assert.Equal(t, "s1", record.Steps[0].Step.ID)
	assert.Equal(t, "did s1", record.Steps[0].Result.Summary)
	assert.Equal(t, 1, record.Steps[0].Attempt)
	assert.Equal(t, "demo finished", record.Summary)
	assert.Equal(t, "starting demo", record.KickoffNote)
	require.NotNil(t, record.FinalVerdict)
	assert.True(t, record.FinalVerdict.Approved)
	assert.NotEmpty(t, record.RunID)
	assert.False(t, record.CompletedAt.IsZero())
}

func TestRun_StepRetriesThenSuccess(t *testing.T) {
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{rejected("missing detail"), rejected("still missing"), approved()},
		final:        approved(),
	}
	executor := &scriptedExecutor{results: []*StepResult{{Summary: "attempt"}}}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: executor, Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	// 1 initial attempt + 2 retries, within the default bound of 2 retries.
	assert.Equal(t, 3, executor.calls)
	assert.Equal(t, 1, planner.calls)
	assert.Equal(t, 0, record.PlanRevisions)
	require.Len(t, record.Steps, 1)
	assert.Equal(t, 3, record.Steps[0].Attempt)
}

func TestRun_RetriesExhaustedForceReplan(t *testing.T) {
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{
			// First plan: rejections burn the initial attempt plus both
			// retries, forcing a replan. Second plan: approved first try.
			rejected("no"), rejected("no"), rejected("no"),
			approved(),
		},
		final: approved(),
	}
	executor := &scriptedExecutor{results: []*StepResult{{Summary: "attempt"}}}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: executor, Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	// Exactly 3 executor attempts under the first plan, then 1 under the new.
	assert.Equal(t, 4, executor.calls)
	assert.Equal(t, 2, planner.calls)
	assert.Equal(t, 1, record.PlanRevisions)
	// The forced replan carries the step feedback to the planner.
	assert.Contains(t, planner.feedbacks[1], "s1")
	require.Len(t, record.Steps, 1)
	assert.Equal(t, 1, record.Steps[0].Attempt)
}

func TestRun_ReplanDiscardsRecordedSteps(t *testing.T) {
	planner := &scriptedPlanner{plans: []*Plan{
		onePlan("a1", "a2"),
		onePlan("b1"),
	}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{
			approved(), // a1 approved and recorded
			{Approved: false, Feedback: "wrong direction", RequiresReplan: true}, // a2 demands replan
			approved(), // b1 approved under the new plan
		},
		final: approved(),
	}
	executor := &scriptedExecutor{results: []*StepResult{{}}}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: executor, Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, 1, record.PlanRevisions)
	assert.Equal(t, 2, planner.calls)
	assert.Equal(t, "wrong direction", planner.feedbacks[1])

	// Only the triple from the newest approved plan survives.
	require.Len(t, record.Steps, 1)
	assert.Equal(t, "b1", record.Steps[0].Step.ID)
	require.NotNil(t, record.Plan)
	assert.Equal(t, "b1", record.Plan.Steps[0].ID)
}

func TestRun_PlanBoundExceeded(t *testing.T) {
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{rejected("too vague")},
	}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: &scriptedExecutor{results: []*StepResult{{}}},
		Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.Error(t, err)

	var bound *BoundExceededError
	require.ErrorAs(t, err, &bound)
	assert.Equal(t, "plan_revisions", bound.Bound)
	assert.Equal(t, DefaultMaxPlanRevisions, bound.Limit)

	assert.Equal(t, StatusFailed, record.Status)
	assert.Contains(t, record.FailureReason, "plan not approvable")
	// Initial proposal plus one per allowed revision.
	assert.Equal(t, DefaultMaxPlanRevisions+1, planner.calls)
	assert.Equal(t, DefaultMaxPlanRevisions+1, record.PlanRevisions)
}

func TestRun_PlanRevisionCounterIsMonotone(t *testing.T) {
	// Rejected plan (revision 1), approved plan, step demands replan
	// (revision 2), approved plan, step approved. The counter never resets.
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{rejected("vague"), approved()},
		stepVerdicts: []ReviewVerdict{
			{Approved: false, Feedback: "replan", RequiresReplan: true},
			approved(),
		},
		final: approved(),
	}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: &scriptedExecutor{results: []*StepResult{{}}},
		Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, 2, record.PlanRevisions)
	assert.Equal(t, 3, planner.calls)
}

func TestRun_MalformedPlannerRepliesCountTowardBound(t *testing.T) {
	planner := &scriptedPlanner{err: errors.New("reply was not valid JSON")}
	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: &scriptedExecutor{results: []*StepResult{{}}},
		Reviewer: &scriptedReviewer{}, Coordinator: &scriptedCoordinator{},
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.Error(t, err)

	var bound *BoundExceededError
	require.ErrorAs(t, err, &bound)
	assert.Equal(t, "plan_revisions", bound.Bound)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, DefaultMaxPlanRevisions+1, planner.calls)
}

func TestRun_SkillRoundTrip(t *testing.T) {
	skills := skill.NewRegistry()
	require.NoError(t, skill.RegisterBuiltins(skills))

	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{approved()},
		final:        approved(),
	}
	executor := &scriptedExecutor{results: []*StepResult{{
		Summary: "need arithmetic",
		Skill: &SkillInvocation{
			Skill:     "evaluate_math",
			Arguments: map[string]any{"expression": "0.45 - 0.25"},
		},
	}}}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: executor, Reviewer: reviewer, Coordinator: coordinator,
	}, skills)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	require.Equal(t, 1, executor.observeCalls)
	obs := executor.observations[0]
	assert.NoError(t, obs.failure)
	assert.Equal(t, "0.2", obs.outcome)

	// The final recorded result reflects the skill outcome and keeps the
	// invocation for audit.
	require.Len(t, record.Steps, 1)
	assert.Contains(t, record.Steps[0].Result.Summary, "0.2")
	require.NotNil(t, record.Steps[0].Result.Skill)
	assert.Equal(t, "evaluate_math", record.Steps[0].Result.Skill.Skill)
}

func TestRun_UnknownSkillBecomesObservation(t *testing.T) {
	skills := skill.NewRegistry()

	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{approved()},
		final:        approved(),
	}
	executor := &scriptedExecutor{results: []*StepResult{{
		Summary: "trying a skill",
		Skill:   &SkillInvocation{Skill: "does_not_exist"},
	}}}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: executor, Reviewer: reviewer, Coordinator: coordinator,
	}, skills)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	// The unknown skill is fed back as a failure observation, never a crash.
	assert.Equal(t, StatusCompleted, record.Status)
	require.Equal(t, 1, executor.observeCalls)
	obs := executor.observations[0]
	require.Error(t, obs.failure)
	var unknown *skill.UnknownSkillError
	assert.ErrorAs(t, obs.failure, &unknown)
}

func TestRun_CoordinatorFailuresAreNotFatal(t *testing.T) {
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{approved()},
		final:        approved(),
	}
	coordinator := &scriptedCoordinator{
		kickoffErr:   errors.New("kickoff model unavailable"),
		summarizeErr: errors.New("summary model unavailable"),
	}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: &scriptedExecutor{results: []*StepResult{{}}},
		Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Empty(t, record.KickoffNote)
	assert.Contains(t, record.Summary, "Summary unavailable")
}

func TestRun_InvalidTaskFails(t *testing.T) {
	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: &scriptedPlanner{}, Executor: &scriptedExecutor{results: []*StepResult{{}}},
		Reviewer: &scriptedReviewer{}, Coordinator: &scriptedCoordinator{},
	}, nil)

	record, err := w.Run(context.Background(), Task{Name: "no-objective"})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Contains(t, record.FailureReason, "invalid task")
}

func TestRun_RecordsTranscript(t *testing.T) {
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{approved()},
		stepVerdicts: []ReviewVerdict{approved()},
		final:        approved(),
	}
	coordinator := &scriptedCoordinator{}

	set := &RoleSet{
		Planner: planner, Executor: &scriptedExecutor{results: []*StepResult{{}}},
		Reviewer: reviewer, Coordinator: coordinator,
	}
	w, provider := newTestWorkflow(t, set, nil)

	record, err := w.Run(context.Background(), testTask())
	require.NoError(t, err)

	// The observer handed to the role provider appends to this run's
	// transcript.
	require.NotNil(t, provider.observe)
	provider.observe("planner", "assistant", "late entry")
	require.NotEmpty(t, record.Transcript)
	last := record.Transcript[len(record.Transcript)-1]
	assert.Equal(t, "planner", last.Agent)
	assert.Equal(t, "late entry", last.Content)
}

func TestRunAll_ContinuesPastFailedTask(t *testing.T) {
	// First task: plan never approved -> FAILED. Second task: clean run.
	planner := &scriptedPlanner{plans: []*Plan{onePlan("s1")}}
	reviewer := &scriptedReviewer{
		planVerdicts: []ReviewVerdict{
			rejected("no"), rejected("no"), rejected("no"), rejected("no"), // task 1
			approved(), // task 2
		},
		stepVerdicts: []ReviewVerdict{approved()},
		final:        approved(),
	}
	coordinator := &scriptedCoordinator{}

	w, _ := newTestWorkflow(t, &RoleSet{
		Planner: planner, Executor: &scriptedExecutor{results: []*StepResult{{}}},
		Reviewer: reviewer, Coordinator: coordinator,
	}, nil)

	tasks := []Task{
		{Name: "doomed", Objective: "never approvable"},
		{Name: "fine", Objective: "straightforward"},
	}
	records := w.RunAll(context.Background(), tasks)

	require.Len(t, records, 2)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.Equal(t, StatusCompleted, records[1].Status)
	assert.Equal(t, "fine", records[1].Task.Name)
}

func TestPlanValidate(t *testing.T) {
	assert.Error(t, (&Plan{}).Validate())
	assert.Error(t, (&Plan{Steps: []Step{{ID: ""}}}).Validate())
	assert.Error(t, (&Plan{Steps: []Step{{ID: "a"}, {ID: "a"}}}).Validate())
	assert.NoError(t, onePlan("a", "b").Validate())
}
