package model

import "time"

// RunStatus represents the current state of a discovery run. The non-terminal
// values follow the pipeline state machine in order.
type RunStatus string

const (
	RunStatusPlanning   RunStatus = "planning"
	RunStatusSearching  RunStatus = "searching"
	RunStatusScraping   RunStatus = "scraping"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusDeduping   RunStatus = "deduping"
	RunStatusEnriching  RunStatus = "enriching"
	RunStatusDone       RunStatus = "done"
	RunStatusFailed     RunStatus = "failed"
)

// Stages returns the non-terminal run states in execution order.
func Stages() []RunStatus {
	return []RunStatus{
		RunStatusPlanning,
		RunStatusSearching,
		RunStatusScraping,
		RunStatusExtracting,
		RunStatusDeduping,
		RunStatusEnriching,
	}
}

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// Request identifies what a run is searching for.
type Request struct {
	Industry string `json:"industry"`
	Location string `json:"location"`
	K        int    `json:"k,omitempty"`
}

// Run represents a single discovery run.
type Run struct {
	ID        string         `json:"id"`
	Request   Request        `json:"request"`
	Status    RunStatus      `json:"status"`
	Records   []MergedRecord `json:"records,omitempty"`
	Error     string         `json:"error,omitempty"`
	Phases    []PhaseResult  `json:"phases,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RunPhase represents a stage within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the state of a pipeline stage.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// PhaseResult holds the outcome of a pipeline stage.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
