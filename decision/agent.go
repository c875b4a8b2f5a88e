// Package decision implements the decision agent (C8): planner and answer
// synthesizer. It turns the latest perception snapshot, retrieved context,
// and execution history into the single next PlanStep, applies the
// tool-priority and failure-handling rules, and never raises — a model or
// parse failure yields a NOP step instead of propagating an error.
// Grounded in original_source/agents/decision_agent.py's DecisionAgent.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/jsonvalidate"
	"qa-orchestrator/model"
)

// stepSchema constrains the model's plan-step output to one of the four
// recognized step types before it is unmarshaled.
const stepSchema = `{
  "type": "object",
  "required": ["description", "type"],
  "properties": {
    "description": {"type": "string"},
    "type": {"type": "string", "enum": ["CODE", "CONCLUDE", "NOP", "ASK_USER"]},
    "code": {"type": "string"},
    "conclusion": {"type": "string"}
  }
}`

var stepValidator = jsonvalidate.MustCompile("plan_step.json", stepSchema)

// Mode distinguishes the initial plan-creation call from a replan call
// that appends to the existing plan version.
type Mode string

const (
	ModeInitial Mode = "initial"
	ModeReplan  Mode = "replan"
)

// prompt carries the data-source priority, tool-call conventions, and
// dynamic-HITL failure rule the reference planner enforces.
const prompt = `You are the decision stage of a multi-agent system: planner and answer synthesizer. Given the latest perception, retrieved context, and prior tool runs, decide the single most useful next action.

All tools are already registered and available as snippet functions. Do not import external search or HTTP libraries; use the registered tools directly.

DATA SOURCE PRIORITY (always follow this order):
1. FIRST: check if the answer is already in the context data (retriever/memory). If the user asks a follow-up question, the answer is very likely already there — do not search again if it is.
2. SECOND: if not found, search stored documents before searching the web.
3. LAST RESORT: only use web search if the information is not available in memory or local documents.

FAILURE HANDLING (dynamic human-in-the-loop):
If the most recent tool result starts with a tool-failure marker or contains "Error": you MUST output type="ASK_USER" requesting human guidance. Do not retry silently. Set description to explain the tool failed and ask how to proceed. Do not output code for ASK_USER.

Variables defined in one CODE step are not available in the next step: combine steps that depend on each other's variables into a single snippet using loops and local functions rather than splitting across steps.

OUTPUT (JSON object with exactly these fields):
{
  "description": "...",
  "type": "CODE" | "CONCLUDE" | "NOP" | "ASK_USER",
  "code": "snippet code, only when type == CODE",
  "conclusion": "final short answer, only when type == CONCLUDE"
}
Always cite which source (tool/context) the conclusion relied on.`

// Agent produces the next PlanStep against a model client.
type Agent struct {
	client model.Client
}

// New builds a decision Agent around client.
func New(client model.Client) *Agent {
	return &Agent{client: client}
}

type rawStep struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	Conclusion  string `json:"conclusion"`
}

// Run decides the next step for bb's session and records it: in
// ModeInitial, it starts a new plan version; in ModeReplan, it appends to
// the current plan version. Either way, the returned step's status starts
// pending and its StepIndex is assigned by the blackboard.
func (a *Agent) Run(ctx context.Context, bb *blackboard.Blackboard, mode Mode) (blackboard.PlanStep, error) {
	userPrompt := a.buildPrompt(bb, mode)

	resp, err := a.client.Complete(ctx, model.Request{
		SystemPrompt: prompt,
		UserPrompt:   userPrompt,
		Temperature:  0,
		MaxTokens:    2048,
	})
	if err != nil {
		return a.record(bb, mode, nopStep(fmt.Sprintf("decision failed: %v", err)))
	}

	if err := stepValidator.Validate([]byte(resp.Text)); err != nil {
		return a.record(bb, mode, nopStep(fmt.Sprintf("decision failed: %v", err)))
	}

	var raw rawStep
	if err := json.Unmarshal([]byte(resp.Text), &raw); err != nil {
		return a.record(bb, mode, nopStep(fmt.Sprintf("decision failed: invalid JSON: %v", err)))
	}

	step := blackboard.PlanStep{
		Description: raw.Description,
		Type:        blackboard.StepType(raw.Type),
		Code:        raw.Code,
		Conclusion:  raw.Conclusion,
		Status:      blackboard.StatusPending,
	}

	if forced, reason := forceAskUserOnFailure(bb); forced {
		step = blackboard.PlanStep{
			Description: reason,
			Type:        blackboard.StepAskUser,
			Status:      blackboard.StatusPending,
		}
	}

	return a.record(bb, mode, step)
}

// record commits step to the blackboard per mode and returns the stored
// copy (with its StepIndex assigned).
func (a *Agent) record(bb *blackboard.Blackboard, mode Mode, step blackboard.PlanStep) (blackboard.PlanStep, error) {
	if mode == ModeInitial {
		bb.AddPlanVersion([]blackboard.PlanStep{step})
		return bb.CurrentPlan()[0], nil
	}
	stored, err := bb.AppendStep(step)
	if err != nil {
		return blackboard.PlanStep{}, err
	}
	return *stored, nil
}

func nopStep(reason string) blackboard.PlanStep {
	return blackboard.PlanStep{
		Description:     "decision failed",
		Type:            blackboard.StepNOP,
		Status:          blackboard.StatusPending,
		ExecutionResult: reason,
	}
}

// forceAskUserOnFailure implements the dynamic-HITL rule: if the most
// recently recorded step result signals failure, the next step must be
// ASK_USER regardless of what the model decided.
func forceAskUserOnFailure(bb *blackboard.Blackboard) (bool, string) {
	plan := bb.CurrentPlan()
	for i := len(plan) - 1; i >= 0; i-- {
		result := plan[i].ExecutionResult
		if result == "" {
			continue
		}
		if strings.HasPrefix(result, "TOOL_FAILURE") || strings.Contains(result, "Error") {
			return true, "The tool failed. Should I try a different approach?"
		}
		return false, ""
	}
	return false, ""
}

func (a *Agent) buildPrompt(bb *blackboard.Blackboard, mode Mode) string {
	perception := bb.LatestPerception()
	perceptionText := "None"
	if perception != nil {
		if b, err := json.MarshalIndent(perception, "", "  "); err == nil {
			perceptionText = string(b)
		}
	}

	contextText := "None"
	if ctxData := bb.ContextData(); len(ctxData) > 0 {
		if b, err := json.MarshalIndent(ctxData, "", "  "); err == nil {
			contextText = string(b)
		}
	}

	recentResult := "None"
	plan := bb.CurrentPlan()
	for i := len(plan) - 1; i >= 0; i-- {
		if plan[i].ExecutionResult != "" {
			recentResult = plan[i].ExecutionResult
			break
		}
	}

	feedbackText := "None"
	if fb := bb.UserFeedback(); len(fb) > 0 {
		if b, err := json.MarshalIndent(fb, "", "  "); err == nil {
			feedbackText = string(b)
		}
	}

	return fmt.Sprintf(
		"--- PERCEPTION ---\n%s\n\n--- CONTEXT DATA ---\n%s\n\n--- MOST RECENT TOOL RESULT ---\n%s\n\n--- HISTORY ---\n%s\n\n--- USER FEEDBACK ---\n%s\n\n--- MODE ---\n%s",
		perceptionText, contextText, recentResult, bb.HistoryText(200), feedbackText, mode,
	)
}
