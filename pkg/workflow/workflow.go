package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// DEFAULTS
// ============================================================================

const (
	DefaultMaxPlanRevisions = 3
	DefaultMaxStepRetries   = 2
)

// Metrics receives workflow events. pkg/observability provides the Prometheus
// implementation; the zero value of the workflow uses a no-op.
type Metrics interface {
	RoleInvocation(role string)
	SkillInvocation(skill string, ok bool)
	Replan()
	MalformedReply(role string)
	TaskOutcome(status RunStatus)
}

type nopMetrics struct{}

func (nopMetrics) RoleInvocation(string)        {}
func (nopMetrics) SkillInvocation(string, bool) {}
func (nopMetrics) Replan()                      {}
func (nopMetrics) MalformedReply(string)        {}
func (nopMetrics) TaskOutcome(RunStatus)        {}

// ============================================================================
// WORKFLOW
// ============================================================================

// AutomationWorkflow sequences the four roles over one task and guarantees
// termination through two bounds: a plan-revision counter that never resets,
// and a per-step retry counter that resets whenever a new plan is adopted.
type AutomationWorkflow struct {
	roles            RoleProvider
	skills           SkillInvoker
	maxPlanRevisions int
	maxStepRetries   int
	metrics          Metrics
	logger           *slog.Logger
	observers        []TurnObserver
}

// Option configures an AutomationWorkflow.
type Option func(*AutomationWorkflow)

// WithBounds overrides the default termination bounds. Negative values keep
// the defaults.
func WithBounds(maxPlanRevisions, maxStepRetries int) Option {
	return func(w *AutomationWorkflow) {
		if maxPlanRevisions >= 0 {
			w.maxPlanRevisions = maxPlanRevisions
		}
		if maxStepRetries >= 0 {
			w.maxStepRetries = maxStepRetries
		}
	}
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(w *AutomationWorkflow) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *AutomationWorkflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithObserver adds a turn observer invoked for every agent turn of every
// task, in addition to the transcript the workflow records itself.
func WithObserver(observe TurnObserver) Option {
	return func(w *AutomationWorkflow) {
		if observe != nil {
			w.observers = append(w.observers, observe)
		}
	}
}

// New creates a workflow over the given role provider and skill invoker.
// skills may be nil when no skills are registered; executor skill requests
// then resolve to a failure observation.
func New(roles RoleProvider, skills SkillInvoker, opts ...Option) (*AutomationWorkflow, error) {
	if roles == nil {
		return nil, fmt.Errorf("role provider is required")
	}
	w := &AutomationWorkflow{
		roles:            roles,
		skills:           skills,
		maxPlanRevisions: DefaultMaxPlanRevisions,
		maxStepRetries:   DefaultMaxStepRetries,
		metrics:          nopMetrics{},
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ============================================================================
// RUN
// ============================================================================

// Run drives one task to a terminal state. The returned RunRecord is always
// non-nil; err is non-nil only for bound exhaustion or unrecoverable
// collaborator failure, in which case the record carries the same reason.
func (w *AutomationWorkflow) Run(ctx context.Context, task Task) (*RunRecord, error) {
	record := &RunRecord{
		RunID:     uuid.NewString(),
		Task:      task,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	logger := w.logger.With("task", task.Name, "run_id", record.RunID)

	if err := task.Validate(); err != nil {
		return record, w.fail(record, logger, fmt.Sprintf("invalid task: %v", err), err)
	}

	observe := func(agent, role, content string) {
		record.Transcript = append(record.Transcript, TranscriptEntry{
			Agent:     agent,
			Role:      role,
			Content:   content,
			Timestamp: time.Now(),
		})
		for _, o := range w.observers {
			o(agent, role, content)
		}
	}

	set, err := w.roles.Roles(task, observe)
	if err != nil {
		return record, w.fail(record, logger, fmt.Sprintf("role setup failed: %v", err), err)
	}

	// Kickoff is informational; its failure is a note, not a task failure.
	w.metrics.RoleInvocation("coordinator")
	if note, err := set.Coordinator.Kickoff(ctx, task); err != nil {
		logger.Warn("coordinator kickoff failed", "error", err)
	} else {
		record.KickoffNote = note
	}

	var (
		candidate *Plan // plan proposed but not yet approved
		stepIndex int
		retries   int
		feedback  string
		result    *StepResult
		attempt   int
	)
	state := StatePlanning

	for {
		if ctx.Err() != nil {
			return record, w.fail(record, logger, fmt.Sprintf("run aborted: %v", ctx.Err()), ctx.Err())
		}
		logger.Debug("state transition", "state", state.String(),
			"plan_revisions", record.PlanRevisions, "step", stepIndex, "retries", retries)

		switch state {

		case StatePlanning:
			w.metrics.RoleInvocation("planner")
			plan, err := set.Planner.ProposePlan(ctx, task, feedback, record.Plan)
			if err == nil {
				err = plan.Validate()
			}
			if err != nil {
				w.metrics.MalformedReply("planner")
				logger.Warn("planner produced no usable plan", "error", err)
				if failErr := w.countReplan(record, fmt.Sprintf("planner failure: %v", err)); failErr != nil {
					return record, w.fail(record, logger, failErr.Error(), failErr)
				}
				continue // stay in StatePlanning with the same feedback
			}
			candidate = plan
			state = StatePlanReview

		case StatePlanReview:
			w.metrics.RoleInvocation("reviewer")
			verdict, err := set.Reviewer.ReviewPlan(ctx, task, candidate, record.PlanRevisions)
			if err != nil {
				w.metrics.MalformedReply("reviewer")
				logger.Warn("plan review failed", "error", err)
				if failErr := w.countReplan(record, fmt.Sprintf("plan review failure: %v", err)); failErr != nil {
					return record, w.fail(record, logger, failErr.Error(), failErr)
				}
				state = StatePlanning
				continue
			}
			if !verdict.Approved {
				if failErr := w.countReplan(record, "plan not approvable within bound: "+verdict.Feedback); failErr != nil {
					return record, w.fail(record, logger, failErr.Error(), failErr)
				}
				feedback = verdict.Feedback
				state = StatePlanning
				continue
			}
			// Adopt the plan: discard everything gathered under its
			// predecessor and restart execution from the first step.
			record.Plan = candidate
			record.Steps = nil
			stepIndex = 0
			retries = 0
			feedback = ""
			logger.Info("plan approved", "steps", len(candidate.Steps), "revisions", record.PlanRevisions)
			state = StateExecuting

		case StateExecuting:
			step := record.Plan.Steps[stepIndex]
			attempt = retries + 1
			res, err := w.executeStep(ctx, set, task, step, record, feedback)
			if err != nil {
				w.metrics.MalformedReply("executor")
				logger.Warn("executor produced no usable result", "step", step.ID, "error", err)
				next, failErr := w.countRetry(record, &retries, step.ID, fmt.Sprintf("executor failure: %v", err))
				if failErr != nil {
					return record, w.fail(record, logger, failErr.Error(), failErr)
				}
				if next == StatePlanning {
					feedback = "step " + step.ID + " repeatedly produced unusable results"
				} else {
					feedback = ""
				}
				state = next
				continue
			}
			result = res
			state = StateStepReview

		case StateStepReview:
			step := record.Plan.Steps[stepIndex]
			w.metrics.RoleInvocation("reviewer")
			verdict, err := set.Reviewer.ReviewStep(ctx, task, step, result, attempt)
			if err != nil {
				w.metrics.MalformedReply("reviewer")
				logger.Warn("step review failed", "step", step.ID, "error", err)
				next, failErr := w.countRetry(record, &retries, step.ID, fmt.Sprintf("step review failure: %v", err))
				if failErr != nil {
					return record, w.fail(record, logger, failErr.Error(), failErr)
				}
				if next == StatePlanning {
					feedback = "step " + step.ID + " could not be reviewed"
				} else {
					feedback = ""
				}
				state = next
				continue
			}

			switch {
			case verdict.Approved:
				record.Steps = append(record.Steps, StepRecord{
					Step:    step,
					Result:  *result,
					Verdict: *verdict,
					Attempt: attempt,
				})
				logger.Info("step approved", "step", step.ID, "attempt", attempt)
				retries = 0
				feedback = ""
				stepIndex++
				if stepIndex >= len(record.Plan.Steps) {
					state = StateCoordinating
				} else {
					state = StateExecuting
				}

			case verdict.RequiresReplan:
				logger.Info("reviewer demanded replan", "step", step.ID, "feedback", verdict.Feedback)
				if failErr := w.countReplan(record, "replan demanded at step "+step.ID+": "+verdict.Feedback); failErr != nil {
					return record, w.fail(record, logger, failErr.Error(), failErr)
				}
				retries = 0
				feedback = verdict.Feedback
				state = StatePlanning

			default:
				next, failErr := w.countRetry(record, &retries, step.ID, "step "+step.ID+" not approvable: "+verdict.Feedback)
				if failErr != nil {
					return record, w.fail(record, logger, failErr.Error(), failErr)
				}
				if next == StatePlanning {
					feedback = "step " + step.ID + " could not be completed acceptably: " + verdict.Feedback
				} else {
					feedback = verdict.Feedback
				}
				state = next
			}

		case StateCoordinating:
			// Final review of the assembled deliverable, informational only.
			w.metrics.RoleInvocation("reviewer")
			if verdict, err := set.Reviewer.FinalReview(ctx, task, record.Plan, record.Steps); err != nil {
				logger.Warn("final review failed", "error", err)
			} else {
				record.FinalVerdict = verdict
			}

			w.metrics.RoleInvocation("coordinator")
			if summary, err := set.Coordinator.Summarize(ctx, task, record); err != nil {
				logger.Warn("coordinator summary failed", "error", err)
				record.Summary = fmt.Sprintf("Summary unavailable: %v", err)
			} else {
				record.Summary = summary
			}

			record.Status = StatusCompleted
			record.CompletedAt = time.Now()
			w.metrics.TaskOutcome(StatusCompleted)
			logger.Info("task completed", "steps", len(record.Steps), "plan_revisions", record.PlanRevisions)
			return record, nil
		}
	}
}

// RunAll processes a batch of tasks sequentially. A task ending in FAILED
// never blocks the remaining tasks; only context cancellation stops the batch.
func (w *AutomationWorkflow) RunAll(ctx context.Context, tasks []Task) []*RunRecord {
	records := make([]*RunRecord, 0, len(tasks))
	for _, task := range tasks {
		record, err := w.Run(ctx, task)
		if err != nil {
			w.logger.Error("task failed", "task", task.Name, "error", err)
		}
		records = append(records, record)
		if ctx.Err() != nil {
			break
		}
	}
	return records
}

// ============================================================================
// HELPERS
// ============================================================================

// executeStep runs the executor on one step, resolving at most one skill
// round-trip. Unknown or failing skills become observations fed back to the
// executor, never task failures.
func (w *AutomationWorkflow) executeStep(ctx context.Context, set *RoleSet, task Task, step Step, record *RunRecord, feedback string) (*StepResult, error) {
	w.metrics.RoleInvocation("executor")
	result, err := set.Executor.ExecuteStep(ctx, task, step, record.Plan, record.Steps, feedback)
	if err != nil {
		return nil, err
	}
	if result.Skill == nil {
		return result, nil
	}

	inv := *result.Skill
	var outcome string
	var invErr error
	if w.skills == nil {
		invErr = fmt.Errorf("no skills are registered")
	} else {
		outcome, invErr = w.skills.Invoke(ctx, inv.Skill, inv.Arguments)
	}
	w.metrics.SkillInvocation(inv.Skill, invErr == nil)
	if invErr != nil {
		w.logger.Warn("skill invocation failed", "skill", inv.Skill, "error", invErr)
	}

	w.metrics.RoleInvocation("executor")
	final, err := set.Executor.ObserveSkillOutcome(ctx, inv, outcome, invErr)
	if err != nil {
		return nil, err
	}
	// One round-trip per attempt: any further request in the follow-up reply
	// is kept as audit data but not resolved.
	if final.Skill == nil {
		final.Skill = &inv
	}
	return final, nil
}

// countReplan increments the plan-revision counter, which is monotone for the
// whole task. It returns a BoundExceededError when the bound is crossed.
func (w *AutomationWorkflow) countReplan(record *RunRecord, reason string) error {
	record.PlanRevisions++
	w.metrics.Replan()
	if record.PlanRevisions > w.maxPlanRevisions {
		return &BoundExceededError{Bound: "plan_revisions", Limit: w.maxPlanRevisions, Reason: reason}
	}
	return nil
}

// countRetry increments the per-step retry counter. Within the bound it sends
// the workflow back to StateExecuting on the same step; past the bound it
// forces a replan (resetting the counter), which itself counts against the
// plan-revision bound so the task still terminates.
func (w *AutomationWorkflow) countRetry(record *RunRecord, retries *int, stepID, reason string) (State, error) {
	*retries++
	if *retries <= w.maxStepRetries {
		return StateExecuting, nil
	}
	w.logger.Info("step retries exhausted, forcing replan", "step", stepID, "retries", *retries-1)
	*retries = 0
	if err := w.countReplan(record, reason); err != nil {
		return StateFailed, err
	}
	return StatePlanning, nil
}

// fail marks the record failed and records the outcome.
func (w *AutomationWorkflow) fail(record *RunRecord, logger *slog.Logger, reason string, err error) error {
	record.Status = StatusFailed
	record.FailureReason = reason
	record.CompletedAt = time.Now()
	w.metrics.TaskOutcome(StatusFailed)
	logger.Error("task failed", "reason", reason)
	return err
}
