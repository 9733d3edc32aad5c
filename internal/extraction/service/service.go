// Package service provides the run orchestrator: it sequences collection,
// normalization and persistence across all configured projects, isolating
// failures per project and producing exactly one run summary per invocation.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/prmetrics/extractor/internal/config"
	"github.com/prmetrics/extractor/internal/devops"
	"github.com/prmetrics/extractor/internal/extraction/model"
	"github.com/prmetrics/extractor/internal/extraction/normalize"
	"github.com/prmetrics/extractor/internal/extraction/repository"
	"github.com/prmetrics/extractor/pkg/logger"
)

// Collector is the listing surface the orchestrator consumes.
type Collector interface {
	Projects(ctx context.Context) ([]devops.RawProject, error)
	Repositories(ctx context.Context, project string) ([]devops.RawRepository, error)
	PullRequests(
		ctx context.Context,
		project, repositoryID string,
		since *time.Time,
		fn func(devops.RawPullRequest) error,
	) error
}

// Service orchestrates one extraction run. Projects are processed strictly
// sequentially; no shared mutable state crosses project boundaries except the
// summary accumulator.
type Service struct {
	collector Collector
	repo      repository.Repository
	cfg       *config.Config
	logger    *zap.SugaredLogger
	redactor  *logger.Redactor

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a new orchestrator instance.
func New(
	collector Collector,
	repo repository.Repository,
	cfg *config.Config,
	log *zap.SugaredLogger,
	redactor *logger.Redactor,
) *Service {
	return &Service{
		collector: collector,
		repo:      repo,
		cfg:       cfg,
		logger:    log,
		redactor:  redactor,
		now:       time.Now,
	}
}

// Run executes one extraction pass over all configured projects. The summary
// is produced and persisted unconditionally, including on total failure; no
// project's error aborts the remaining projects.
func (s *Service) Run(ctx context.Context, mode repository.Mode) *model.RunSummary {
	summary := &model.RunSummary{
		Mode:      string(mode),
		StartedAt: s.now().UTC(),
		Status:    model.RunSucceeded,
	}

	state, err := s.repo.DetectState(ctx)
	if err != nil {
		// Cannot even begin: the summary is still the durable record.
		summary.Status = model.RunFailed
		summary.FirstFatalError = s.redactor.Sanitize(err).Error()
		s.finish(ctx, summary)
		return summary
	}

	if state.Fresh {
		s.logger.Infow("fresh store detected, running full historical backfill",
			"default_start_date", s.cfg.Extract.DefaultStartDate)
	}

	projects, err := s.resolveProjects(ctx)
	if err != nil {
		summary.Status = model.RunFailed
		summary.FirstFatalError = s.redactor.Sanitize(err).Error()
		s.finish(ctx, summary)
		return summary
	}

	for _, project := range projects {
		s.logger.Infow("extracting project", "project", project, "mode", string(mode))
		outcome := s.runProject(ctx, project, state, mode)
		summary.AddOutcome(outcome)
		s.logger.Infow("project finished",
			"project", project,
			"status", outcome.Status,
			"repositories", outcome.Repositories,
			"inserted", outcome.Inserted,
			"updated", outcome.Updated,
			"unchanged", outcome.Unchanged,
			"skipped", outcome.Skipped,
		)
	}

	s.finish(ctx, summary)
	return summary
}

// resolveProjects returns the configured project list; with no projects
// configured, every project visible to the credential is discovered from the
// remote listing.
func (s *Service) resolveProjects(ctx context.Context) ([]string, error) {
	if len(s.cfg.Projects) > 0 {
		return s.cfg.Projects, nil
	}

	raw, err := s.collector.Projects(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	for _, project := range raw {
		if project.Name == "" {
			continue
		}
		names = append(names, project.Name)
	}
	s.logger.Infow("discovered projects", "count", len(names))
	return names, nil
}

// finish stamps and persists the summary.
func (s *Service) finish(ctx context.Context, summary *model.RunSummary) {
	summary.FinishedAt = s.now().UTC()
	if err := s.repo.SaveRun(ctx, summary); err != nil {
		s.logger.Errorw("failed to persist run summary", "error", s.redactor.Sanitize(err))
	}
}

// runProject extracts every repository of one project. Repository failures
// are isolated; an authentication rejection fails the project immediately
// since the credential is presumed invalid for the whole scope.
func (s *Service) runProject(
	ctx context.Context,
	project string,
	state *repository.DatabaseState,
	mode repository.Mode,
) model.ProjectOutcome {
	outcome := model.ProjectOutcome{Project: project, Status: model.ProjectSucceeded}

	repos, err := s.collector.Repositories(ctx, project)
	if err != nil {
		outcome.Status = model.ProjectFailed
		outcome.Error = s.redactor.Sanitize(err).Error()
		return outcome
	}

	var firstErr error
	for _, rawRepo := range repos {
		if rawRepo.IsDisabled {
			continue
		}

		result, skipped, err := s.extractRepository(ctx, project, rawRepo, state, mode)
		outcome.Repositories++
		outcome.Skipped += skipped

		if err != nil {
			s.logger.Errorw("repository extraction failed",
				"project", project,
				"repository_id", rawRepo.ID,
				"error", s.redactor.Sanitize(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			if devops.IsAuth(err) {
				// No point trying the remaining repositories with a
				// rejected credential.
				break
			}
			continue
		}

		outcome.Inserted += result.Inserted
		outcome.Updated += result.Updated
		outcome.Unchanged += result.Unchanged
	}

	if firstErr != nil {
		outcome.Status = model.ProjectFailed
		outcome.Error = s.redactor.Sanitize(firstErr).Error()
	}
	return outcome
}

// extractRepository runs one repository's collect → normalize → apply pass
// and advances the high-water mark only after the batch has committed.
func (s *Service) extractRepository(
	ctx context.Context,
	project string,
	rawRepo devops.RawRepository,
	state *repository.DatabaseState,
	mode repository.Mode,
) (*model.ApplyResult, int, error) {
	repoEntity, err := normalize.Repository(s.cfg.Organization, rawRepo)
	if err != nil {
		return nil, 0, err
	}

	since, err := repository.ResolveWindow(state, repoEntity.RepositoryID, mode, s.cfg.Extract, s.now())
	if err != nil {
		return nil, 0, err
	}

	endDate, err := s.cfg.Extract.EndDateTime()
	if err != nil {
		return nil, 0, err
	}

	batch := &repository.Batch{
		Organization: model.Organization{Name: s.cfg.Organization},
		Project:      model.Project{Organization: s.cfg.Organization, Name: project},
		Repository:   repoEntity,
		Reviewers:    make(map[string][]model.Reviewer),
	}

	seenUsers := make(map[string]bool)
	skipped := 0
	var maxUpdated time.Time

	err = s.collector.PullRequests(ctx, project, repoEntity.RepositoryID, &since,
		func(raw devops.RawPullRequest) error {
			pr, reviewers, users, err := normalize.PullRequest(
				s.cfg.Organization, project, repoEntity.RepositoryID, raw)
			if err != nil {
				var schemaErr *normalize.SchemaError
				if errors.As(err, &schemaErr) {
					// One malformed remote record must not block the
					// repository; skip it and surface the count.
					skipped++
					s.logger.Warnw("skipping malformed record",
						"project", project,
						"repository_id", repoEntity.RepositoryID,
						"error", err,
					)
					return nil
				}
				return err
			}

			// Client-side window filter: the server-side filter cannot be
			// trusted to be exact when combined with a continuation cursor.
			if !pr.LastUpdated.After(since) {
				return nil
			}
			if endDate != nil && pr.LastUpdated.After(*endDate) {
				return nil
			}

			batch.PullRequests = append(batch.PullRequests, pr)
			batch.Reviewers[pr.UID] = reviewers
			for _, user := range users {
				if !seenUsers[user.UserID] {
					seenUsers[user.UserID] = true
					batch.Users = append(batch.Users, user)
				}
			}
			if pr.LastUpdated.After(maxUpdated) {
				maxUpdated = pr.LastUpdated
			}
			return nil
		})
	if err != nil {
		return nil, skipped, err
	}

	result, err := s.repo.Apply(ctx, batch)
	if err != nil {
		return nil, skipped, err
	}

	// The mark moves only after the transaction above has committed, so a
	// failed batch is always re-requested on the next run.
	if !maxUpdated.IsZero() {
		if err := s.repo.AdvanceHighWaterMark(ctx, repoEntity.RepositoryID, maxUpdated); err != nil {
			return nil, skipped, err
		}
	}

	return result, skipped, nil
}
