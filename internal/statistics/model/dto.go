// Package model provides data transfer objects for the statistics module.
package model

import (
	"time"

	extractionModel "github.com/prmetrics/extractor/internal/extraction/model"
)

// Overview represents aggregate counts over all persisted pull requests.
type Overview struct {
	TotalPRs             int     `json:"total_prs"`
	OpenPRs              int     `json:"open_prs"`
	CompletedPRs         int     `json:"completed_prs"`
	AbandonedPRs         int     `json:"abandoned_prs"`
	AverageCycleTimeMins float64 `json:"average_cycle_time_minutes"`
	Repositories         int     `json:"repositories"`
	Users                int     `json:"users"`
}

// RepositoryStatistics represents per-repository rollups.
type RepositoryStatistics struct {
	RepositoryID         string  `json:"repository_id"`
	RepositoryName       string  `json:"repository_name"`
	Project              string  `json:"project"`
	TotalPRs             int     `json:"total_prs"`
	OpenPRs              int     `json:"open_prs"`
	CompletedPRs         int     `json:"completed_prs"`
	AbandonedPRs         int     `json:"abandoned_prs"`
	AverageCycleTimeMins float64 `json:"average_cycle_time_minutes"`
}

// VoteStatistics represents the reviewer vote distribution.
type VoteStatistics struct {
	Vote  string `json:"vote"`
	Count int    `json:"count"`
}

// OverviewResponse represents the response for the overview endpoint.
type OverviewResponse struct {
	Overview Overview `json:"overview"`
}

// RepositoriesResponse represents the response for per-repository rollups.
type RepositoriesResponse struct {
	Repositories []RepositoryStatistics `json:"repositories"`
	Total        int                    `json:"total"`
}

// VotesResponse represents the response for the vote distribution.
type VotesResponse struct {
	Votes []VoteStatistics `json:"votes"`
}

// Manifest is the rollup artifact consumed by the dashboard.
type Manifest struct {
	GeneratedAt  time.Time                   `json:"generated_at"`
	Overview     Overview                    `json:"overview"`
	Repositories []RepositoryStatistics      `json:"repositories"`
	Votes        []VoteStatistics            `json:"votes"`
	LastRun      *extractionModel.RunSummary `json:"last_run,omitempty"`
}
