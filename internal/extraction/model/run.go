package model

import "time"

// Run status values.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Project outcome status values.
const (
	ProjectSucceeded = "succeeded"
	ProjectFailed    = "failed"
)

// ApplyResult counts the effect of merging one batch into the store.
type ApplyResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Add accumulates another result into this one.
func (r *ApplyResult) Add(other ApplyResult) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
}

// ProjectOutcome is the per-project record inside a run summary.
type ProjectOutcome struct {
	Project      string `json:"project"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Repositories int    `json:"repositories"`
	Inserted     int    `json:"inserted"`
	Updated      int    `json:"updated"`
	Unchanged    int    `json:"unchanged"`
	Skipped      int    `json:"skipped"`
}

// RunSummary is the durable record of one invocation. It is produced exactly
// once per run, persisted even on total failure.
type RunSummary struct {
	ID              int64            `gorm:"primaryKey;column:id;autoIncrement"          json:"id"`
	Mode            string           `gorm:"column:mode;type:varchar(32);not null"       json:"mode"`
	StartedAt       time.Time        `gorm:"column:started_at;not null"                  json:"started_at"`
	FinishedAt      time.Time        `gorm:"column:finished_at;not null"                 json:"finished_at"`
	Status          string           `gorm:"column:status;type:varchar(32);not null"     json:"status"`
	FirstFatalError string           `gorm:"column:first_fatal_error;type:text"          json:"first_fatal_error,omitempty"`
	Projects        []ProjectOutcome `gorm:"column:projects;serializer:json"             json:"projects"`
	Inserted        int              `gorm:"column:inserted;not null"                    json:"inserted"`
	Updated         int              `gorm:"column:updated;not null"                     json:"updated"`
	Unchanged       int              `gorm:"column:unchanged;not null"                   json:"unchanged"`
	Skipped         int              `gorm:"column:skipped;not null"                     json:"skipped"`
}

// TableName specifies the table name for GORM.
func (RunSummary) TableName() string {
	return "runs"
}

// AddOutcome records one project outcome and folds its counts into the run
// totals. The first failed project's error becomes FirstFatalError.
func (s *RunSummary) AddOutcome(outcome ProjectOutcome) {
	s.Projects = append(s.Projects, outcome)
	s.Inserted += outcome.Inserted
	s.Updated += outcome.Updated
	s.Unchanged += outcome.Unchanged
	s.Skipped += outcome.Skipped

	if outcome.Status == ProjectFailed {
		s.Status = RunFailed
		if s.FirstFatalError == "" {
			s.FirstFatalError = outcome.Error
		}
	}
}

// Succeeded reports whether every project completed without failure.
func (s *RunSummary) Succeeded() bool {
	return s.Status == RunSucceeded
}
