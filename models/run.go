package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

const (
	TriggerSchedule = "schedule"
	TriggerCommand  = "command"
	TriggerManual   = "manual"
	TriggerAPI      = "api"
)

// SyncRun is the bookkeeping row written for every orchestrator run.
type SyncRun struct {
	RunID            uuid.UUID  `json:"run_id" db:"run_id"`
	Trigger          string     `json:"trigger" db:"trigger"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	LeadsFetched     int        `json:"leads_fetched" db:"leads_fetched"`
	LeadsQualifying  int        `json:"leads_qualifying" db:"leads_qualifying"`
	DealsNew         int        `json:"deals_new" db:"deals_new"`
	EnrichmentErrors int        `json:"enrichment_errors" db:"enrichment_errors"`
	Error            string     `json:"error,omitempty" db:"error"`
}

// RunResult is what a caller of a sync run gets back.
type RunResult struct {
	RunID   uuid.UUID `json:"run_id"`
	Found   bool      `json:"found"`
	Summary string    `json:"summary"`
	Deals   []Deal    `json:"deals,omitempty"`
}

// RunReport travels from the scheduler to the notifier.
type RunReport struct {
	Trigger string
	Result  *RunResult
	Err     error
	At      time.Time
}
