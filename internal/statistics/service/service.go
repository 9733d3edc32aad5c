// Package service provides business logic layer for the statistics module.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prmetrics/extractor/internal/statistics/model"
	"github.com/prmetrics/extractor/internal/statistics/repository"
)

// Service defines the interface for statistics business logic operations.
type Service interface {
	// GetOverview returns aggregate counts over all pull requests.
	GetOverview(ctx context.Context) (*model.OverviewResponse, error)

	// GetRepositoryStatistics returns per-repository rollups.
	GetRepositoryStatistics(ctx context.Context) (*model.RepositoriesResponse, error)

	// GetVoteDistribution returns reviewer vote counts.
	GetVoteDistribution(ctx context.Context) (*model.VotesResponse, error)

	// BuildManifest assembles the full rollup artifact for the dashboard.
	BuildManifest(ctx context.Context) (*model.Manifest, error)
}

type service struct {
	repo   repository.Repository
	logger *zap.SugaredLogger
}

// New creates a new statistics service instance.
func New(repo repository.Repository, logger *zap.SugaredLogger) Service {
	return &service{repo: repo, logger: logger}
}

// GetOverview returns aggregate counts over all pull requests.
func (s *service) GetOverview(ctx context.Context) (*model.OverviewResponse, error) {
	overview, err := s.repo.GetOverview(ctx)
	if err != nil {
		s.logger.Errorw("GetOverview failed", "error", err)
		return nil, err
	}
	return &model.OverviewResponse{Overview: *overview}, nil
}

// GetRepositoryStatistics returns per-repository rollups.
func (s *service) GetRepositoryStatistics(ctx context.Context) (*model.RepositoriesResponse, error) {
	stats, err := s.repo.GetRepositoryStatistics(ctx)
	if err != nil {
		s.logger.Errorw("GetRepositoryStatistics failed", "error", err)
		return nil, err
	}
	if stats == nil {
		stats = []model.RepositoryStatistics{}
	}
	return &model.RepositoriesResponse{Repositories: stats, Total: len(stats)}, nil
}

// GetVoteDistribution returns reviewer vote counts.
func (s *service) GetVoteDistribution(ctx context.Context) (*model.VotesResponse, error) {
	votes, err := s.repo.GetVoteDistribution(ctx)
	if err != nil {
		s.logger.Errorw("GetVoteDistribution failed", "error", err)
		return nil, err
	}
	if votes == nil {
		votes = []model.VoteStatistics{}
	}
	return &model.VotesResponse{Votes: votes}, nil
}

// BuildManifest assembles the full rollup artifact for the dashboard.
func (s *service) BuildManifest(ctx context.Context) (*model.Manifest, error) {
	overview, err := s.repo.GetOverview(ctx)
	if err != nil {
		return nil, err
	}
	repos, err := s.repo.GetRepositoryStatistics(ctx)
	if err != nil {
		return nil, err
	}
	votes, err := s.repo.GetVoteDistribution(ctx)
	if err != nil {
		return nil, err
	}
	lastRun, err := s.repo.GetLastRun(ctx)
	if err != nil {
		return nil, err
	}

	if repos == nil {
		repos = []model.RepositoryStatistics{}
	}
	if votes == nil {
		votes = []model.VoteStatistics{}
	}

	return &model.Manifest{
		GeneratedAt:  time.Now().UTC(),
		Overview:     *overview,
		Repositories: repos,
		Votes:        votes,
		LastRun:      lastRun,
	}, nil
}
