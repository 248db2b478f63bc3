// Package workflow contains the orchestration core: the data model shared by
// all four roles and the bounded plan -> review -> execute -> review state
// machine that drives one task from objective to reviewed summary.
//
// The package defines the role contracts as interfaces and never depends on a
// concrete role, model provider, or skill implementation; pkg/roles supplies
// the production implementations.
package workflow

import (
	"context"
	"fmt"
	"time"
)

// ============================================================================
// TASK AND PLAN
// ============================================================================

// Task is one unit of work. Immutable once loaded; one Task drives one run.
type Task struct {
	Name        string   `json:"name" yaml:"name"`
	Objective   string   `json:"objective" yaml:"objective"`
	Context     string   `json:"context,omitempty" yaml:"context,omitempty"`
	Deliverable string   `json:"deliverable,omitempty" yaml:"deliverable,omitempty"`
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Validate checks the fields a run cannot start without.
func (t Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Objective == "" {
		return fmt.Errorf("task '%s': objective is required", t.Name)
	}
	return nil
}

// Step is one unit of executable work within a Plan.
type Step struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	Rationale       string `json:"rationale,omitempty"`
	SuccessCriteria string `json:"success_criteria,omitempty"`
}

// Plan is the planner's output. Replaced wholesale on replan, never patched.
type Plan struct {
	Overview    string   `json:"overview"`
	Assumptions []string `json:"assumptions,omitempty"`
	Steps       []Step   `json:"steps"`
}

// Validate enforces the plan invariants: at least one step, and step IDs
// unique and non-empty.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d has an empty id", i)
		}
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id '%s'", step.ID)
		}
		seen[step.ID] = true
	}
	return nil
}

// ============================================================================
// EXECUTION ARTEFACTS
// ============================================================================

// SkillInvocation is the executor's request to run a registered skill.
type SkillInvocation struct {
	Skill     string         `json:"skill"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// StepResult is the executor's output for one step.
type StepResult struct {
	Summary   string           `json:"summary"`
	Artifacts []string         `json:"artifacts,omitempty"`
	Skill     *SkillInvocation `json:"skill_invocation,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

// ReviewVerdict is the reviewer's judgment of a plan, a step result, or the
// final deliverable.
type ReviewVerdict struct {
	Approved       bool   `json:"approved"`
	Feedback       string `json:"feedback,omitempty"`
	RequiresReplan bool   `json:"requires_replan,omitempty"`
	Confidence     string `json:"confidence,omitempty"`
}

// ============================================================================
// RUN RECORD
// ============================================================================

// RunStatus is the terminal outcome of one task.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// StepRecord is one reviewed (Step, StepResult, ReviewVerdict) triple. Attempt
// is 1-based: the attempt of the executor that produced the approved result.
type StepRecord struct {
	Step    Step          `json:"step"`
	Result  StepResult    `json:"result"`
	Verdict ReviewVerdict `json:"verdict"`
	Attempt int           `json:"attempt"`
}

// TranscriptEntry is one agent turn, recorded in order for audit.
type TranscriptEntry struct {
	Agent     string    `json:"agent"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RunRecord accumulates everything one task produced. Append-only and owned
// exclusively by the workflow for the duration of the run.
type RunRecord struct {
	RunID         string            `json:"run_id"`
	Task          Task              `json:"task"`
	Status        RunStatus         `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	KickoffNote   string            `json:"kickoff_note,omitempty"`
	Plan          *Plan             `json:"plan,omitempty"`
	PlanRevisions int               `json:"plan_revisions"`
	Steps         []StepRecord      `json:"steps,omitempty"`
	FinalVerdict  *ReviewVerdict    `json:"final_verdict,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Transcript    []TranscriptEntry `json:"transcript,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at,omitempty"`
}

// ============================================================================
// STATES AND ERRORS
// ============================================================================

// State identifies where the workflow is in its loop. Exposed mainly for
// logging and tests.
type State int

const (
	StatePlanning State = iota
	StatePlanReview
	StateExecuting
	StateStepReview
	StateCoordinating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StatePlanReview:
		return "plan_review"
	case StateExecuting:
		return "executing"
	case StateStepReview:
		return "step_review"
	case StateCoordinating:
		return "coordinating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BoundExceededError reports a plan-revision or step-retry bound exhausted.
// It terminates only the current task, never the batch.
type BoundExceededError struct {
	Bound  string // "plan_revisions" or "step_retries"
	Limit  int
	Reason string
}

func (e *BoundExceededError) Error() string {
	return fmt.Sprintf("%s bound exceeded (limit %d): %s", e.Bound, e.Limit, e.Reason)
}

// ============================================================================
// ROLE CONTRACTS
// ============================================================================

// TurnObserver receives every agent turn as it happens; the workflow installs
// one to build the run transcript, the CLI chains console output onto it.
type TurnObserver func(agent, role, content string)

// Planner produces a plan from the task, incorporating reviewer feedback and
// the superseded plan on a replan (both zero-valued on the first attempt).
type Planner interface {
	ProposePlan(ctx context.Context, task Task, feedback string, previous *Plan) (*Plan, error)
}

// Executor carries out one step. ObserveSkillOutcome is the single extra
// round-trip after the workflow resolved a requested skill: failure is non-nil
// when the skill was unknown or failed, and the executor must fold the
// observation into its final result.
type Executor interface {
	ExecuteStep(ctx context.Context, task Task, step Step, plan *Plan, prior []StepRecord, feedback string) (*StepResult, error)
	ObserveSkillOutcome(ctx context.Context, inv SkillInvocation, outcome string, failure error) (*StepResult, error)
}

// Reviewer judges plans, step results, and the final deliverable. The final
// review is informational only; its verdict never triggers another loop.
type Reviewer interface {
	ReviewPlan(ctx context.Context, task Task, plan *Plan, revision int) (*ReviewVerdict, error)
	ReviewStep(ctx context.Context, task Task, step Step, result *StepResult, attempt int) (*ReviewVerdict, error)
	FinalReview(ctx context.Context, task Task, plan *Plan, steps []StepRecord) (*ReviewVerdict, error)
}

// Coordinator frames the run: an opening note before planning and a markdown
// summary at completion. Both are informational; their failures are demoted to
// notes, not task failures.
type Coordinator interface {
	Kickoff(ctx context.Context, task Task) (string, error)
	Summarize(ctx context.Context, task Task, record *RunRecord) (string, error)
}

// RoleSet is one task's worth of role instances. Instances carry per-task
// conversation history and must not be shared across tasks.
type RoleSet struct {
	Planner     Planner
	Executor    Executor
	Reviewer    Reviewer
	Coordinator Coordinator
}

// RoleProvider builds a fresh RoleSet per task. The observer must be invoked
// for every turn of every agent in the set.
type RoleProvider interface {
	Roles(task Task, observe TurnObserver) (*RoleSet, error)
}

// SkillInvoker resolves the executor's skill requests. pkg/skill's Registry
// satisfies it.
type SkillInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}
