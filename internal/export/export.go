// Package export writes deterministic CSV artifacts from the persisted
// entities: fixed column order, stable row order, RFC3339 UTC timestamps.
// Two exports of identical stored data are byte-identical, which lets
// downstream consumers verify runs by diffing.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prmetrics/extractor/internal/extraction/model"
)

// pullRequestColumns is the fixed column order of the pull request export.
var pullRequestColumns = []string{
	"pull_request_uid",
	"organization",
	"project",
	"repository_id",
	"pull_request_id",
	"title",
	"status",
	"author_id",
	"creation_date",
	"closed_date",
	"cycle_time_minutes",
}

// reviewerColumns is the fixed column order of the reviewer export.
var reviewerColumns = []string{
	"pull_request_uid",
	"user_id",
	"repository_id",
	"vote",
}

// Exporter writes CSV artifacts from the store.
type Exporter struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// New creates a new exporter instance.
func New(db *gorm.DB, logger *zap.SugaredLogger) *Exporter {
	return &Exporter{db: db, logger: logger}
}

// WriteAll writes pull_requests.csv and reviewers.csv into dir.
func (e *Exporter) WriteAll(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := e.writeFile(filepath.Join(dir, "pull_requests.csv"), func(w io.Writer) error {
		return e.WritePullRequests(ctx, w)
	}); err != nil {
		return err
	}

	if err := e.writeFile(filepath.Join(dir, "reviewers.csv"), func(w io.Writer) error {
		return e.WriteReviewers(ctx, w)
	}); err != nil {
		return err
	}

	e.logger.Infow("export complete", "dir", dir)
	return nil
}

func (e *Exporter) writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WritePullRequests writes the pull request export to w, ordered by UID.
func (e *Exporter) WritePullRequests(ctx context.Context, w io.Writer) error {
	var prs []model.PullRequest
	if err := e.db.WithContext(ctx).
		Order("pull_request_uid ASC").
		Find(&prs).Error; err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(pullRequestColumns); err != nil {
		return err
	}

	for _, pr := range prs {
		record := []string{
			pr.UID,
			pr.Organization,
			pr.Project,
			pr.RepositoryID,
			strconv.FormatInt(pr.PullRequestID, 10),
			pr.Title,
			pr.Status,
			pr.AuthorID,
			formatTime(pr.CreationDate),
			formatTimePtr(pr.ClosedDate),
			formatInt64Ptr(pr.CycleTimeMinutes),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteReviewers writes the reviewer export to w, ordered by (UID, user).
func (e *Exporter) WriteReviewers(ctx context.Context, w io.Writer) error {
	var reviewers []model.Reviewer
	if err := e.db.WithContext(ctx).
		Order("pull_request_uid ASC, user_id ASC").
		Find(&reviewers).Error; err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(reviewerColumns); err != nil {
		return err
	}

	for _, reviewer := range reviewers {
		record := []string{
			reviewer.PullRequestUID,
			reviewer.UserID,
			reviewer.RepositoryID,
			reviewer.Vote,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
