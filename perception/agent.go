// Package perception implements the perception agent (C7): it produces an
// ERORLL snapshot from either the raw user query or the result of the most
// recently executed step, and never propagates a model or parse failure —
// a perception run always returns a usable, if low-confidence, snapshot.
// Grounded in original_source/agents/perception_agent.py's PerceptionAgent.
package perception

import (
	"context"
	"encoding/json"
	"fmt"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/jsonvalidate"
	"qa-orchestrator/model"
)

// snapshotSchema constrains the model's ERORLL output to the required
// shape before it is unmarshaled: a response missing a required field is
// treated the same as a parse failure rather than silently zero-valued.
const snapshotSchema = `{
  "type": "object",
  "required": ["result_requirement", "original_goal_achieved", "local_goal_achieved", "confidence"],
  "properties": {
    "entities": {"type": "array", "items": {"type": "string"}},
    "result_requirement": {"type": "string"},
    "original_goal_achieved": {"type": "boolean"},
    "reasoning": {"type": "string"},
    "local_goal_achieved": {"type": "boolean"},
    "local_reasoning": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "solution_summary": {"type": "string"},
    "require_ground_truth": {"type": "boolean"}
  }
}`

var snapshotValidator = jsonvalidate.MustCompile("perception_snapshot.json", snapshotSchema)

// prompt is the ERORLL critique instruction given to the underlying model.
// Kept verbatim in spirit (not translated) from the agent this package is
// grounded on: analyze the conversation state and produce a structured
// snapshot, strict about not hallucinating success.
const prompt = `You are the perception stage of a multi-agent system. Your job is to analyze the current state of the conversation and produce a structured "ERORLL" snapshot.

INPUT:
1. Snapshot Type: "user_query" or "step_result"
2. Raw Input: the user's query OR the result of the last executed step
3. Context: previous conversation history and memory
4. Current Plan: the active plan, if any

OUTPUT (JSON object with exactly these fields):
{
  "entities": ["list", "of", "key", "entities"],
  "result_requirement": "what exactly does the user want, be specific",
  "original_goal_achieved": boolean,
  "reasoning": "why is the goal achieved or not",
  "local_goal_achieved": boolean,
  "local_reasoning": "why was the last step successful or not",
  "confidence": float between 0.0 and 1.0,
  "solution_summary": "a concise summary of the answer so far",
  "require_ground_truth": boolean
}

CRITICAL:
- If the tool output contains the answer, set original_goal_achieved=true.
- If the tool failed, set local_goal_achieved=false and explain why in local_reasoning.
- Be strict. Do not hallucinate success.`

// rawSnapshot mirrors the model's JSON output shape before Kind is
// overwritten with the caller-supplied, trusted value.
type rawSnapshot struct {
	Entities             []string `json:"entities"`
	ResultRequirement    string   `json:"result_requirement"`
	OriginalGoalAchieved bool     `json:"original_goal_achieved"`
	Reasoning            string   `json:"reasoning"`
	LocalGoalAchieved    bool     `json:"local_goal_achieved"`
	LocalReasoning       string   `json:"local_reasoning"`
	Confidence           float64  `json:"confidence"`
	SolutionSummary      string   `json:"solution_summary"`
	RequireGroundTruth   bool     `json:"require_ground_truth"`
}

// Agent produces perception snapshots against a model client.
type Agent struct {
	client model.Client
}

// New builds a perception Agent around client.
func New(client model.Client) *Agent {
	return &Agent{client: client}
}

// Run analyzes rawInput (a user query or a step's execution result) against
// bb's history and returns an ERORLL snapshot. kind is never taken from the
// model's own output — it is set defensively from the caller's intent, the
// same "enforce type safety" guard the reference agent applies.
func (a *Agent) Run(ctx context.Context, bb *blackboard.Blackboard, rawInput string, kind blackboard.PerceptionKind) blackboard.PerceptionSnapshot {
	history := bb.HistoryText(200)
	userPrompt := fmt.Sprintf("--- CONTEXT ---\n%s\n\n--- CURRENT INPUT ---\nType: %s\nContent: %s", history, kind, rawInput)

	resp, err := a.client.Complete(ctx, model.Request{
		SystemPrompt: prompt,
		UserPrompt:   userPrompt,
		Temperature:  0,
		MaxTokens:    1024,
	})
	if err != nil {
		return fallback(kind, fmt.Sprintf("perception failed: %v", err))
	}

	if err := snapshotValidator.Validate([]byte(resp.Text)); err != nil {
		return fallback(kind, fmt.Sprintf("perception failed: %v", err))
	}

	var raw rawSnapshot
	if err := json.Unmarshal([]byte(resp.Text), &raw); err != nil {
		return fallback(kind, fmt.Sprintf("perception failed: invalid JSON: %v", err))
	}

	return blackboard.PerceptionSnapshot{
		Kind:                 kind,
		Entities:             raw.Entities,
		ResultRequirement:    raw.ResultRequirement,
		OriginalGoalAchieved: raw.OriginalGoalAchieved,
		LocalGoalAchieved:    raw.LocalGoalAchieved,
		Reasoning:            raw.Reasoning,
		LocalReasoning:       raw.LocalReasoning,
		Confidence:           raw.Confidence,
		SolutionSummary:      raw.SolutionSummary,
		RequireGroundTruth:   raw.RequireGroundTruth,
	}
}

// fallback builds the low-confidence synthetic snapshot returned whenever
// the model call or its JSON output cannot be trusted. It never blocks the
// coordinator: goal-achieved flags default to false so the caller treats
// the step/query as unresolved rather than silently succeeding.
func fallback(kind blackboard.PerceptionKind, reason string) blackboard.PerceptionSnapshot {
	return blackboard.PerceptionSnapshot{
		Kind:       kind,
		Reasoning:  reason,
		Confidence: 0,
	}
}
