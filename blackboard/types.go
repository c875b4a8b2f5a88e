// Package blackboard holds the shared, per-session mutable state that the
// coordinator and its agents read and write. A single coordinator goroutine
// owns a Blackboard for the lifetime of one query; it is not safe for
// concurrent use by multiple goroutines.
package blackboard

import "time"

// PerceptionKind distinguishes a perception run over the initial user query
// from one run over a completed step's result.
type PerceptionKind string

const (
	PerceptionUserQuery  PerceptionKind = "user_query"
	PerceptionStepResult PerceptionKind = "step_result"
)

// PerceptionSnapshot is the ERORLL critique record produced by the
// perception agent once per coordinator cycle.
type PerceptionSnapshot struct {
	Kind                 PerceptionKind `json:"kind"`
	Entities             []string       `json:"entities"`
	ResultRequirement    string         `json:"result_requirement"`
	OriginalGoalAchieved bool           `json:"original_goal_achieved"`
	LocalGoalAchieved    bool           `json:"local_goal_achieved"`
	Reasoning            string         `json:"reasoning"`
	LocalReasoning       string         `json:"local_reasoning"`
	Confidence           float64        `json:"confidence"`
	SolutionSummary      string         `json:"solution_summary"`
	RequireGroundTruth   bool           `json:"require_ground_truth"`
	Timestamp            time.Time      `json:"timestamp"`
}

// StepType enumerates the kinds of action a PlanStep can carry.
type StepType string

const (
	StepCode     StepType = "CODE"
	StepConclude StepType = "CONCLUDE"
	StepNOP      StepType = "NOP"
	StepAskUser  StepType = "ASK_USER"
)

// StepStatus tracks a PlanStep's execution lifecycle. A step transitions at
// most once per attempt, from Pending to one of the terminal states.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// PlanStep is one unit of intended action, produced by the decision agent
// and mutated by the executor as it runs.
type PlanStep struct {
	StepIndex      int           `json:"step_index"`
	Description    string        `json:"description"`
	Type           StepType      `json:"type"`
	Code           string        `json:"code,omitempty"`
	Conclusion     string        `json:"conclusion,omitempty"`
	Status         StepStatus    `json:"status"`
	Attempts       int           `json:"attempts"`
	ExecutionResult string       `json:"execution_result,omitempty"`
	ExecutionTime  time.Duration `json:"execution_time,omitempty"`
}

// HITLConfig controls which coordinator gates require human approval.
type HITLConfig struct {
	RequirePlanApproval bool `json:"require_plan_approval"`
	RequireStepApproval bool `json:"require_step_approval"`
}

// ContextEntry is one retrieved piece of context: free text, tagged with the
// tier it came from and any flags the retriever attached.
type ContextEntry struct {
	Text               string `json:"text"`
	Source             string `json:"source"`
	RequireGroundTruth bool   `json:"require_ground_truth"`
}

// FailureRecord is one logged failure, kept in the session trace log.
type FailureRecord struct {
	Query     string    `json:"query"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the full per-session record owned by the Blackboard (C9).
// PlanVersions is an append-only log: a replan appends a new []PlanStep,
// never rewriting an earlier version.
type State struct {
	SessionID         string          `json:"session_id"`
	OriginalQuery     string          `json:"original_query"`
	PlanVersions      [][]PlanStep    `json:"plan_versions"`
	CurrentPlanIndex  int             `json:"current_plan_index"`
	LatestPerception  *PerceptionSnapshot `json:"latest_perception,omitempty"`
	ContextData       map[string]ContextEntry `json:"context_data"`
	SessionMemory     []FailureRecord `json:"session_memory"`
	UserFeedback      []string        `json:"user_feedback"`
	HITLConfig        HITLConfig      `json:"hitl_config"`
	FinalAnswer       string          `json:"final_answer"`
}
