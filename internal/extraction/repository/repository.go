// Package repository provides the incremental persistence engine: idempotent
// merge of canonical entities into the local store, high-water mark
// management and run summary persistence.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prmetrics/extractor/internal/config"
	"github.com/prmetrics/extractor/internal/extraction/model"
)

// Mode selects how the extraction window is determined.
type Mode string

const (
	// ModeIncremental fetches records modified since the stored high-water
	// mark, minus a safety overlap.
	ModeIncremental Mode = "incremental"
	// ModeBackfill re-scans a fixed trailing window regardless of the
	// high-water mark, to absorb late-arriving remote mutations.
	ModeBackfill Mode = "backfill"
)

// ErrReviewerRepositoryMismatch indicates a reviewer row whose repository id
// does not match its pull request's repository.
var ErrReviewerRepositoryMismatch = errors.New("reviewer repository does not match batch repository")

// DatabaseState is the explicit first-run/existing distinction, detected once
// per run instead of being inferred from errors.
type DatabaseState struct {
	// Fresh is true when no repository has ever committed a high-water mark.
	Fresh bool
	// Marks holds the stored high-water mark per repository id.
	Marks map[string]time.Time
}

// Batch is one repository's extraction pass: every entity observed for that
// repository, applied within a single transaction.
type Batch struct {
	Organization model.Organization
	Project      model.Project
	Repository   model.Repository
	Users        []model.User
	PullRequests []model.PullRequest
	// Reviewers holds the complete vote set per pull request UID; rows are
	// replaced wholesale because vote sets can shrink.
	Reviewers map[string][]model.Reviewer
}

// Repository defines the persistence engine operations.
type Repository interface {
	// DetectState reads the stored high-water marks and reports whether the
	// store is fresh.
	DetectState(ctx context.Context) (*DatabaseState, error)

	// Apply merges one repository batch into the store inside a single
	// transaction. On any failure the whole batch is rolled back.
	Apply(ctx context.Context, batch *Batch) (*model.ApplyResult, error)

	// AdvanceHighWaterMark moves a repository's mark forward. The mark never
	// decreases; a stale value is a no-op.
	AdvanceHighWaterMark(ctx context.Context, repositoryID string, mark time.Time) error

	// SaveRun persists the run summary. Called exactly once per invocation,
	// including on failure.
	SaveRun(ctx context.Context, summary *model.RunSummary) error
}

type repository struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// New creates a new persistence engine instance.
func New(db *gorm.DB, logger *zap.SugaredLogger) Repository {
	return &repository{db: db, logger: logger}
}

// ResolveWindow determines the lower bound of the fetch window for one
// repository. First run and never-seen repositories start from the configured
// default start date; incremental mode starts from the stored mark minus the
// safety overlap; backfill mode ignores the mark and re-scans a trailing
// window.
func ResolveWindow(
	state *DatabaseState,
	repositoryID string,
	mode Mode,
	cfg config.ExtractConfig,
	now time.Time,
) (time.Time, error) {
	if mode == ModeBackfill {
		return now.AddDate(0, 0, -cfg.BackfillDays).UTC(), nil
	}

	if mark, ok := state.Marks[repositoryID]; ok {
		return mark.Add(-cfg.Overlap).UTC(), nil
	}

	// First run for this repository: full historical backfill from the
	// configured start date.
	start, err := cfg.StartDate()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid default start date: %w", err)
	}
	return start.UTC(), nil
}

// DetectState reads the stored high-water marks.
func (r *repository) DetectState(ctx context.Context) (*DatabaseState, error) {
	var marks []model.HighWaterMark
	if err := r.db.WithContext(ctx).Find(&marks).Error; err != nil {
		return nil, fmt.Errorf("failed to read high-water marks: %w", err)
	}

	state := &DatabaseState{
		Fresh: len(marks) == 0,
		Marks: make(map[string]time.Time, len(marks)),
	}
	for _, mark := range marks {
		state.Marks[mark.RepositoryID] = mark.Mark
	}
	return state, nil
}

// Apply merges one repository batch inside a single transaction.
func (r *repository) Apply(ctx context.Context, batch *Batch) (*model.ApplyResult, error) {
	if batch == nil {
		return nil, fmt.Errorf("batch is nil")
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	result := &model.ApplyResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.upsertOrganization(tx, batch.Organization, result); err != nil {
			return err
		}
		if err := r.upsertProject(tx, batch.Project, result); err != nil {
			return err
		}
		if err := r.upsertRepository(tx, batch.Repository, result); err != nil {
			return err
		}
		for _, user := range batch.Users {
			if err := r.upsertUser(tx, user, result); err != nil {
				return err
			}
		}
		for _, pr := range batch.PullRequests {
			if err := r.upsertPullRequest(tx, pr, result); err != nil {
				return err
			}
			if err := r.replaceReviewers(tx, pr.UID, batch.Reviewers[pr.UID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply batch for repository %s: %w",
			batch.Repository.RepositoryID, err)
	}

	r.logger.Debugw("batch applied",
		"repository_id", batch.Repository.RepositoryID,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
	)
	return result, nil
}

// validateBatch enforces the reviewer/repository invariant before anything is
// written.
func validateBatch(batch *Batch) error {
	for uid, reviewers := range batch.Reviewers {
		for _, reviewer := range reviewers {
			if reviewer.RepositoryID != batch.Repository.RepositoryID {
				return fmt.Errorf("%w: pull request %s, reviewer %s",
					ErrReviewerRepositoryMismatch, uid, reviewer.UserID)
			}
		}
	}
	return nil
}

func (r *repository) upsertOrganization(tx *gorm.DB, org model.Organization, result *model.ApplyResult) error {
	var existing model.Organization
	err := tx.Where("name = ?", org.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		org.CreatedAt = time.Now().UTC()
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		result.Inserted++
		return nil
	}
	if err != nil {
		return err
	}
	// Organizations are immutable after creation.
	result.Unchanged++
	return nil
}

func (r *repository) upsertProject(tx *gorm.DB, project model.Project, result *model.ApplyResult) error {
	var existing model.Project
	err := tx.Where("organization = ? AND name = ?", project.Organization, project.Name).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		project.CreatedAt = time.Now().UTC()
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		result.Inserted++
		return nil
	}
	if err != nil {
		return err
	}
	// Project identity is immutable.
	result.Unchanged++
	return nil
}

func (r *repository) upsertRepository(tx *gorm.DB, repo model.Repository, result *model.ApplyResult) error {
	var existing model.Repository
	err := tx.Where("repository_id = ?", repo.RepositoryID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now().UTC()
		repo.CreatedAt = now
		repo.UpdatedAt = now
		if err := tx.Create(&repo).Error; err != nil {
			return err
		}
		result.Inserted++
		return nil
	}
	if err != nil {
		return err
	}

	if existing.ContentEquals(repo) {
		result.Unchanged++
		return nil
	}

	updates := map[string]interface{}{
		"repository_name": repo.Name,
		"project":         repo.Project,
		"organization":    repo.Organization,
		"updated_at":      time.Now().UTC(),
	}
	if err := tx.Model(&model.Repository{}).
		Where("repository_id = ?", repo.RepositoryID).
		Updates(updates).Error; err != nil {
		return err
	}
	result.Updated++
	return nil
}

func (r *repository) upsertUser(tx *gorm.DB, user model.User, result *model.ApplyResult) error {
	var existing model.User
	err := tx.Where("user_id = ?", user.UserID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user.CreatedAt = time.Now().UTC()
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		result.Inserted++
		return nil
	}
	if err != nil {
		return err
	}

	if existing.ContentEquals(user) {
		result.Unchanged++
		return nil
	}

	updates := map[string]interface{}{
		"display_name": user.DisplayName,
		"email":        user.Email,
	}
	if err := tx.Model(&model.User{}).
		Where("user_id = ?", user.UserID).
		Updates(updates).Error; err != nil {
		return err
	}
	result.Updated++
	return nil
}

func (r *repository) upsertPullRequest(tx *gorm.DB, pr model.PullRequest, result *model.ApplyResult) error {
	var existing model.PullRequest
	err := tx.Where("pull_request_uid = ?", pr.UID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now().UTC()
		pr.CreatedAt = now
		pr.UpdatedAt = now
		if err := tx.Create(&pr).Error; err != nil {
			return err
		}
		result.Inserted++
		return nil
	}
	if err != nil {
		return err
	}

	// Content-equality check keeps unchanged remote records byte-stable,
	// which the CSV export determinism contract depends on.
	if existing.ContentEquals(pr) {
		result.Unchanged++
		return nil
	}

	updates := map[string]interface{}{
		"title":              pr.Title,
		"description":        pr.Description,
		"status":             pr.Status,
		"author_id":          pr.AuthorID,
		"creation_date":      pr.CreationDate,
		"closed_date":        pr.ClosedDate,
		"cycle_time_minutes": pr.CycleTimeMinutes,
		"source_branch":      pr.SourceBranch,
		"target_branch":      pr.TargetBranch,
		"last_updated":       pr.LastUpdated,
		"updated_at":         time.Now().UTC(),
	}
	if err := tx.Model(&model.PullRequest{}).
		Where("pull_request_uid = ?", pr.UID).
		Updates(updates).Error; err != nil {
		return err
	}
	result.Updated++
	return nil
}

// replaceReviewers swaps the complete vote set for one pull request within
// the surrounding transaction. Delete-then-insert is required because a
// partial upsert cannot represent reviewer removal.
func (r *repository) replaceReviewers(tx *gorm.DB, pullRequestUID string, reviewers []model.Reviewer) error {
	if err := tx.Where("pull_request_uid = ?", pullRequestUID).
		Delete(&model.Reviewer{}).Error; err != nil {
		return err
	}
	if len(reviewers) == 0 {
		return nil
	}
	return tx.Create(&reviewers).Error
}

// AdvanceHighWaterMark moves a repository's mark forward monotonically.
func (r *repository) AdvanceHighWaterMark(ctx context.Context, repositoryID string, mark time.Time) error {
	if mark.IsZero() {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.HighWaterMark
		err := tx.Where("repository_id = ?", repositoryID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.HighWaterMark{
				RepositoryID: repositoryID,
				Mark:         mark.UTC(),
				UpdatedAt:    time.Now().UTC(),
			}).Error
		}
		if err != nil {
			return err
		}

		if !mark.After(existing.Mark) {
			// Monotonic: stale or equal marks never move the checkpoint.
			return nil
		}

		return tx.Model(&model.HighWaterMark{}).
			Where("repository_id = ?", repositoryID).
			Updates(map[string]interface{}{
				"mark":       mark.UTC(),
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

// SaveRun persists the run summary.
func (r *repository) SaveRun(ctx context.Context, summary *model.RunSummary) error {
	if err := r.db.WithContext(ctx).Create(summary).Error; err != nil {
		return fmt.Errorf("failed to persist run summary: %w", err)
	}
	return nil
}
