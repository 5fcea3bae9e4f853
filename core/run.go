package core

import "time"

// RunStatus is the lifecycle status of a persisted PipelineRun. The only
// allowed mutation path is draft -> published; archived is terminal.
type RunStatus string

const (
	RunStatusDraft     RunStatus = "draft"
	RunStatusPublished RunStatus = "published"
	RunStatusArchived  RunStatus = "archived"
)

// RunState tracks the orchestrator's in-memory state machine for one run.
// Failed is an absorbing state reachable from any non-terminal state.
type RunState string

const (
	StateInitialized    RunState = "initialized"
	StateStreamsRunning RunState = "streams-running"
	StateMerging        RunState = "merging"
	StateSynthesizing   RunState = "synthesizing-tips"
	StatePersisting     RunState = "persisting"
	StateCompleted      RunState = "completed"
	StateFailed         RunState = "failed"
)

// StoragePaths records where the run's artifacts live in durable storage.
// Reports are referenced by these paths after persistence, never re-mutated.
type StoragePaths struct {
	MergedReport string            `json:"merged_report"`
	TipsAlerts   string            `json:"tips_alerts_json"`
	PerDomain    map[Stream]string `json:"per_domain_paths"`
}

// PipelineRun is the persisted record of one completed pipeline run.
type PipelineRun struct {
	ReportID      string       `json:"report_id"`
	UserRef       string       `json:"user_ref"`
	StreamDomains []Stream     `json:"stream_domains"`
	Status        RunStatus    `json:"status"`
	TipCount      int          `json:"tip_count"`
	AlertCount    int          `json:"alert_count"`
	StoragePaths  StoragePaths `json:"storage_paths"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
