// Package repository provides data access layer for the statistics module.
package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	extractionModel "github.com/prmetrics/extractor/internal/extraction/model"
	"github.com/prmetrics/extractor/internal/statistics/model"
)

// Repository defines the interface for statistics data access operations.
type Repository interface {
	// GetOverview returns aggregate counts over all pull requests.
	GetOverview(ctx context.Context) (*model.Overview, error)

	// GetRepositoryStatistics returns per-repository rollups.
	GetRepositoryStatistics(ctx context.Context) ([]model.RepositoryStatistics, error)

	// GetVoteDistribution returns reviewer vote counts.
	GetVoteDistribution(ctx context.Context) ([]model.VoteStatistics, error)

	// GetLastRun returns the most recent run summary, or nil when no run has
	// been recorded yet.
	GetLastRun(ctx context.Context) (*extractionModel.RunSummary, error)
}

type repository struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// New creates a new statistics repository instance.
func New(db *gorm.DB, logger *zap.SugaredLogger) Repository {
	return &repository{db: db, logger: logger}
}

// GetOverview returns aggregate counts over all pull requests.
func (r *repository) GetOverview(ctx context.Context) (*model.Overview, error) {
	var result struct {
		TotalPRs     int64   `gorm:"column:total_prs"`
		OpenPRs      int64   `gorm:"column:open_prs"`
		CompletedPRs int64   `gorm:"column:completed_prs"`
		AbandonedPRs int64   `gorm:"column:abandoned_prs"`
		AvgCycleTime float64 `gorm:"column:avg_cycle_time"`
	}

	err := r.db.WithContext(ctx).
		Table("pull_requests").
		Select(`
			COUNT(*) as total_prs,
			SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END) as open_prs,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) as completed_prs,
			SUM(CASE WHEN status = 'abandoned' THEN 1 ELSE 0 END) as abandoned_prs,
			COALESCE(AVG(cycle_time_minutes), 0) as avg_cycle_time
		`).
		Scan(&result).Error
	if err != nil {
		r.logger.Errorw("GetOverview database error", "error", err)
		return nil, err
	}

	var repositories int64
	if err := r.db.WithContext(ctx).
		Model(&extractionModel.Repository{}).Count(&repositories).Error; err != nil {
		return nil, err
	}

	var users int64
	if err := r.db.WithContext(ctx).
		Model(&extractionModel.User{}).Count(&users).Error; err != nil {
		return nil, err
	}

	return &model.Overview{
		TotalPRs:             int(result.TotalPRs),
		OpenPRs:              int(result.OpenPRs),
		CompletedPRs:         int(result.CompletedPRs),
		AbandonedPRs:         int(result.AbandonedPRs),
		AverageCycleTimeMins: result.AvgCycleTime,
		Repositories:         int(repositories),
		Users:                int(users),
	}, nil
}

// GetRepositoryStatistics returns per-repository rollups.
func (r *repository) GetRepositoryStatistics(ctx context.Context) ([]model.RepositoryStatistics, error) {
	var rows []struct {
		RepositoryID   string  `gorm:"column:repository_id"`
		RepositoryName string  `gorm:"column:repository_name"`
		Project        string  `gorm:"column:project"`
		TotalPRs       int64   `gorm:"column:total_prs"`
		OpenPRs        int64   `gorm:"column:open_prs"`
		CompletedPRs   int64   `gorm:"column:completed_prs"`
		AbandonedPRs   int64   `gorm:"column:abandoned_prs"`
		AvgCycleTime   float64 `gorm:"column:avg_cycle_time"`
	}

	err := r.db.WithContext(ctx).
		Table("repositories").
		Select(`
			repositories.repository_id,
			repositories.repository_name,
			repositories.project,
			COALESCE(COUNT(pull_requests.pull_request_uid), 0) as total_prs,
			COALESCE(SUM(CASE WHEN pull_requests.status = 'open' THEN 1 ELSE 0 END), 0) as open_prs,
			COALESCE(SUM(CASE WHEN pull_requests.status = 'completed' THEN 1 ELSE 0 END), 0) as completed_prs,
			COALESCE(SUM(CASE WHEN pull_requests.status = 'abandoned' THEN 1 ELSE 0 END), 0) as abandoned_prs,
			COALESCE(AVG(pull_requests.cycle_time_minutes), 0) as avg_cycle_time
		`).
		Joins("LEFT JOIN pull_requests ON repositories.repository_id = pull_requests.repository_id").
		Group("repositories.repository_id, repositories.repository_name, repositories.project").
		Order("repositories.project ASC, repositories.repository_name ASC").
		Scan(&rows).Error
	if err != nil {
		r.logger.Errorw("GetRepositoryStatistics database error", "error", err)
		return nil, err
	}

	stats := make([]model.RepositoryStatistics, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, model.RepositoryStatistics{
			RepositoryID:         row.RepositoryID,
			RepositoryName:       row.RepositoryName,
			Project:              row.Project,
			TotalPRs:             int(row.TotalPRs),
			OpenPRs:              int(row.OpenPRs),
			CompletedPRs:         int(row.CompletedPRs),
			AbandonedPRs:         int(row.AbandonedPRs),
			AverageCycleTimeMins: row.AvgCycleTime,
		})
	}
	return stats, nil
}

// GetVoteDistribution returns reviewer vote counts.
func (r *repository) GetVoteDistribution(ctx context.Context) ([]model.VoteStatistics, error) {
	var rows []struct {
		Vote  string `gorm:"column:vote"`
		Count int64  `gorm:"column:count"`
	}

	err := r.db.WithContext(ctx).
		Table("reviewers").
		Select("vote, COUNT(*) as count").
		Group("vote").
		Order("vote ASC").
		Scan(&rows).Error
	if err != nil {
		r.logger.Errorw("GetVoteDistribution database error", "error", err)
		return nil, err
	}

	votes := make([]model.VoteStatistics, 0, len(rows))
	for _, row := range rows {
		votes = append(votes, model.VoteStatistics{Vote: row.Vote, Count: int(row.Count)})
	}
	return votes, nil
}

// GetLastRun returns the most recent run summary.
func (r *repository) GetLastRun(ctx context.Context) (*extractionModel.RunSummary, error) {
	var run extractionModel.RunSummary
	err := r.db.WithContext(ctx).Order("id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
