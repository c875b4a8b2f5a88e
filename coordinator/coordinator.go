// Package coordinator implements the coordinator state machine (C10): it
// sequences perception, retrieval, planning, execution, and HITL gates for
// one session's query, writing every transition through the Blackboard and
// driving all user-visible output through an ioh.Handler. Grounded in
// original_source/coordinator.py's Coordinator.run.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/decision"
	"qa-orchestrator/executor"
	"qa-orchestrator/ioh"
	"qa-orchestrator/memory"
	"qa-orchestrator/model"
	"qa-orchestrator/perception"
	"qa-orchestrator/retriever"
	"qa-orchestrator/telemetry"
)

// MaxSteps bounds the execution loop. A failed step still consumes budget:
// step_count increments unconditionally at the top of the loop, regardless
// of the step's eventual outcome.
const MaxSteps = 20

// Coordinator owns one session's run from query to conclusion.
type Coordinator struct {
	perception *perception.Agent
	decision   *decision.Agent
	executor   executor.ToolCaller
	retriever  *retriever.Retriever
	session    *memory.SessionStore
	io         ioh.Handler
	debugRoot  string
	logger     telemetry.Logger
}

// New builds a Coordinator with a no-op logger. debugRoot is the directory
// debug snapshots are written to on conclusion (e.g. "memory").
func New(p *perception.Agent, d *decision.Agent, toolCaller executor.ToolCaller, r *retriever.Retriever, session *memory.SessionStore, handler ioh.Handler, debugRoot string) *Coordinator {
	return NewWithLogger(p, d, toolCaller, r, session, handler, debugRoot, telemetry.NewNoopLogger())
}

// NewWithLogger builds a Coordinator that reports step timing and turn
// outcomes through logger (e.g. telemetry.NewSlogLogger for production use).
func NewWithLogger(p *perception.Agent, d *decision.Agent, toolCaller executor.ToolCaller, r *retriever.Retriever, session *memory.SessionStore, handler ioh.Handler, debugRoot string, logger telemetry.Logger) *Coordinator {
	if debugRoot == "" {
		debugRoot = "memory"
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Coordinator{perception: p, decision: d, executor: toolCaller, retriever: r, session: session, io: handler, debugRoot: debugRoot, logger: logger}
}

// Run drives one session to a terminal answer (a conclusion, a max-steps
// exhaustion message, an abort-by-user message, or an error disposition).
// It never returns an error: every internal failure is folded into the
// returned user-visible text, matching the reference coordinator's
// blanket try/except around the whole run.
func (c *Coordinator) Run(ctx context.Context, sessionID, query string, hitl blackboard.HITLConfig) string {
	bb := blackboard.New(sessionID, query, hitl)

	c.io.Output(ctx, ioh.KindLog, fmt.Sprintf("Starting coordinator for query: %s", query))
	c.logger.Info(ctx, "run started", "session_id", sessionID)
	start := time.Now()

	answer, err := c.run(ctx, bb, query)
	if err != nil {
		conclusion := errorDisposition(err)
		c.io.Output(ctx, ioh.KindError, fmt.Sprintf("Critical error during execution: %v", err))
		c.io.Output(ctx, ioh.KindAnswer, map[string]string{"answer": conclusion, "source": "Error Handler"})
		c.logger.Error(ctx, "run failed", "session_id", sessionID, "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		return conclusion
	}
	c.logger.Info(ctx, "run concluded", "session_id", sessionID, "duration_ms", time.Since(start).Milliseconds())
	return answer
}

func (c *Coordinator) run(ctx context.Context, bb *blackboard.Blackboard, query string) (string, error) {
	c.io.Output(ctx, ioh.KindPerception, map[string]string{"type": "User Query"})
	snap := c.perception.Run(ctx, bb, query, blackboard.PerceptionUserQuery)
	bb.UpdatePerception(snap)
	c.io.Output(ctx, ioh.KindLog, fmt.Sprintf("Goal: %s", snap.ResultRequirement))

	if snap.RequireGroundTruth {
		bb.SetContext("require_ground_truth", blackboard.ContextEntry{RequireGroundTruth: true})
		c.io.Output(ctx, ioh.KindLog, "Perception: ground truth required, prioritizing local documents")
	}

	if snap.OriginalGoalAchieved {
		return c.concludeFromPerception(ctx, bb, query, snap)
	}

	c.io.Output(ctx, ioh.KindRetrieval, nil)
	if err := c.retriever.Run(ctx, bb, query); err != nil {
		return "", err
	}

	c.io.Output(ctx, ioh.KindDecision, map[string]string{"mode": "Initial Plan"})
	step, err := c.decision.Run(ctx, bb, decision.ModeInitial)
	if err != nil {
		return "", err
	}

	if bb.HITLConfig().RequirePlanApproval {
		step, err = c.planApprovalLoop(ctx, bb, step)
		if err != nil {
			return "", err
		}
	}

	return c.executionLoop(ctx, bb, query, step)
}

// planApprovalLoop repeats decision replans until the user approves the
// pending plan with empty feedback.
func (c *Coordinator) planApprovalLoop(ctx context.Context, bb *blackboard.Blackboard, step blackboard.PlanStep) (blackboard.PlanStep, error) {
	for {
		c.io.Output(ctx, ioh.KindPlan, map[string]any{
			"step_index": step.StepIndex, "description": step.Description, "code": step.Code,
		})
		feedback, err := c.io.Input(ctx, "Approve this plan? (Enter to approve, or type feedback to replan)", map[string]any{
			"step_index": step.StepIndex, "description": step.Description, "code": step.Code,
		})
		if err != nil {
			return blackboard.PlanStep{}, err
		}
		if strings.TrimSpace(feedback) == ioh.FeedbackApprove {
			c.io.Output(ctx, ioh.KindLog, "Plan approved.")
			return step, nil
		}
		c.io.Output(ctx, ioh.KindLog, fmt.Sprintf("Feedback received: %q. Replanning...", feedback))
		bb.AppendFeedback(feedback)
		step, err = c.decision.Run(ctx, bb, decision.ModeReplan)
		if err != nil {
			return blackboard.PlanStep{}, err
		}
	}
}

// executionLoop drives steps to completion, replanning after each one,
// until a CONCLUDE step, a user abort, or MaxSteps is reached.
func (c *Coordinator) executionLoop(ctx context.Context, bb *blackboard.Blackboard, query string, step blackboard.PlanStep) (string, error) {
	stepCount := 0
	for stepCount < MaxSteps {
		stepCount++

		outcome, aborted, err := c.runStep(ctx, bb, step)
		if err != nil {
			return "", err
		}
		if aborted {
			return "Execution aborted by user.", nil
		}
		step = outcome

		if step.Type == blackboard.StepConclude {
			return c.concludeFromStep(ctx, bb, query, step)
		}

		if step.Type == blackboard.StepAskUser {
			feedback, err := c.io.Input(ctx, fmt.Sprintf("Agent request: %s", step.Description), map[string]any{
				"step_index": step.StepIndex, "description": step.Description,
			})
			if err != nil {
				return "", err
			}
			c.io.Output(ctx, ioh.KindLog, fmt.Sprintf("User feedback: %s", feedback))
			bb.AppendFeedback(feedback)
			c.io.Output(ctx, ioh.KindDecision, map[string]string{"mode": "Replan (user feedback)"})
			step, err = c.decision.Run(ctx, bb, decision.ModeReplan)
			if err != nil {
				return "", err
			}
			continue
		}

		c.io.Output(ctx, ioh.KindPerception, map[string]string{"type": "Step Result"})
		snap := c.perception.Run(ctx, bb, fmt.Sprintf("Step: %s\nResult: %s", step.Description, step.ExecutionResult), blackboard.PerceptionStepResult)
		bb.UpdatePerception(snap)

		if snap.OriginalGoalAchieved {
			return c.concludeFromPerception(ctx, bb, query, snap)
		}

		c.io.Output(ctx, ioh.KindDecision, map[string]string{"mode": "Next Step"})
		var err2 error
		step, err2 = c.decision.Run(ctx, bb, decision.ModeReplan)
		if err2 != nil {
			return "", err2
		}
	}

	c.io.Output(ctx, ioh.KindError, "Max steps reached without conclusion.")
	return "Max steps reached.", nil
}

// runStep applies the step-approval HITL gate (if configured) and executes
// the step's code, recording the transition on the blackboard.
func (c *Coordinator) runStep(ctx context.Context, bb *blackboard.Blackboard, step blackboard.PlanStep) (outcome blackboard.PlanStep, aborted bool, err error) {
	if bb.HITLConfig().RequireStepApproval {
		c.io.Output(ctx, ioh.KindLog, fmt.Sprintf("About to execute step %d: %s", step.StepIndex, step.Description))
		feedback, ferr := c.io.Input(ctx, "Approve execution? (Enter to approve, 'skip' to skip, 'stop' to abort)", map[string]any{
			"step_index": step.StepIndex, "description": step.Description, "code": step.Code,
		})
		if ferr != nil {
			return blackboard.PlanStep{}, false, ferr
		}
		switch strings.ToLower(strings.TrimSpace(feedback)) {
		case ioh.FeedbackStop:
			c.io.Output(ctx, ioh.KindLog, "Execution aborted by user.")
			return blackboard.PlanStep{}, true, nil
		case ioh.FeedbackSkip:
			c.io.Output(ctx, ioh.KindLog, "Step skipped by user.")
			if uerr := bb.UpdateStep(step.StepIndex, blackboard.StatusSkipped, "Skipped by user", 0); uerr != nil {
				return blackboard.PlanStep{}, false, uerr
			}
			return bb.CurrentPlan()[step.StepIndex], false, nil
		}
	}

	c.io.Output(ctx, ioh.KindStep, map[string]any{
		"step_index": step.StepIndex, "description": step.Description, "code": step.Code,
	})
	return c.execute(ctx, bb, step)
}

// execute runs a CODE step through the executor, or marks CONCLUDE/NOP/
// ASK_USER steps completed without running anything (only CODE steps carry
// a snippet).
func (c *Coordinator) execute(ctx context.Context, bb *blackboard.Blackboard, step blackboard.PlanStep) (blackboard.PlanStep, bool, error) {
	if step.Type != blackboard.StepCode {
		result := step.Conclusion
		if result == "" {
			result = step.Description
		}
		if err := bb.UpdateStep(step.StepIndex, blackboard.StatusCompleted, result, 0); err != nil {
			return blackboard.PlanStep{}, false, err
		}
		return bb.CurrentPlan()[step.StepIndex], false, nil
	}

	start := time.Now()
	res, runErr := executor.Run(ctx, step.Code, c.executor)
	elapsed := time.Since(start)

	if runErr != nil {
		c.logger.Warn(ctx, "step failed", "step_index", step.StepIndex, "duration_ms", elapsed.Milliseconds(), "error", runErr.Error())
		if err := bb.UpdateStep(step.StepIndex, blackboard.StatusFailed, fmt.Sprintf("TOOL_FAILURE: %v", runErr), elapsed); err != nil {
			return blackboard.PlanStep{}, false, err
		}
		return bb.CurrentPlan()[step.StepIndex], false, nil
	}

	c.logger.Debug(ctx, "step completed", "step_index", step.StepIndex, "duration_ms", elapsed.Milliseconds(), "call_count", res.CallCount)
	text := fmt.Sprintf("%v", res.Value)
	if err := bb.UpdateStep(step.StepIndex, blackboard.StatusCompleted, text, elapsed); err != nil {
		return blackboard.PlanStep{}, false, err
	}
	return bb.CurrentPlan()[step.StepIndex], false, nil
}

// concludeFromPerception finalizes a run where perception itself judged
// the original goal achieved (either from the initial query or after a
// step's result), per the success path shared at three call sites in the
// reference coordinator.
func (c *Coordinator) concludeFromPerception(ctx context.Context, bb *blackboard.Blackboard, query string, snap blackboard.PerceptionSnapshot) (string, error) {
	source := c.sourceOf(bb)
	c.io.Output(ctx, ioh.KindAnswer, map[string]string{"answer": snap.SolutionSummary, "source": sourceDisplay(source)})

	bb.SetFinalAnswer(snap.SolutionSummary)
	if c.session != nil {
		c.session.AddTurn(query, snap.SolutionSummary, snap.Confidence, source, true, nil)
		_ = c.session.Save()
	}
	if c.retriever != nil {
		_ = c.retriever.IndexAnswer(ctx, bb.SessionID(), query, snap.SolutionSummary, source, snap.Confidence, true)
	}
	return snap.SolutionSummary, nil
}

// concludeFromStep finalizes a run that reached an explicit CONCLUDE step.
// A CONCLUDE step's confidence is pinned at 1.0 — it is a deliberate,
// model-authored statement rather than a perception judgment.
func (c *Coordinator) concludeFromStep(ctx context.Context, bb *blackboard.Blackboard, query string, step blackboard.PlanStep) (string, error) {
	source := c.sourceOf(bb)
	c.io.Output(ctx, ioh.KindAnswer, map[string]string{"answer": step.Conclusion, "source": sourceDisplay(source)})

	bb.SetFinalAnswer(step.Conclusion)
	if c.session != nil {
		c.session.AddTurn(query, step.Conclusion, 1.0, source, true, nil)
		_ = c.session.Save()
	}
	if err := writeDebugSnapshot(c.debugRoot, bb); err != nil {
		c.io.Output(ctx, ioh.KindLog, fmt.Sprintf("debug snapshot failed: %v", err))
	}
	return step.Conclusion, nil
}

func (c *Coordinator) sourceOf(bb *blackboard.Blackboard) string {
	if entry, ok := bb.ContextData()["initial_retrieval"]; ok && entry.Source != "" {
		return entry.Source
	}
	return "reasoning"
}

func sourceDisplay(source string) string {
	switch source {
	case "session":
		return "Tier 1 (Session Memory)"
	case "memory":
		return "Tier 2 (Conversation Memory)"
	case "documents":
		return "Tier 3 (Local Documents)"
	case "web":
		return "Web Search"
	default:
		return "Reasoning/Tool"
	}
}

// errorDisposition maps an internal error to the user-visible conclusion
// text: rate-limit errors get the high-traffic message, everything else
// gets a generic message carrying the original text.
func errorDisposition(err error) string {
	msg := err.Error()
	if isRateLimited(err) || strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return "The system is currently experiencing high traffic (rate limit exceeded). Please try again in a few minutes."
	}
	return fmt.Sprintf("An unexpected error occurred: %s", msg)
}

func isRateLimited(err error) bool {
	return errors.Is(err, model.ErrRateLimited)
}
