package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prmetrics/extractor/internal/config"
	"github.com/prmetrics/extractor/internal/extraction/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Organization{},
		&model.Project{},
		&model.Repository{},
		&model.User{},
		&model.PullRequest{},
		&model.Reviewer{},
		&model.HighWaterMark{},
		&model.RunSummary{},
	))
	return db
}

func newTestRepository(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return New(db, zap.NewNop().Sugar()), db
}

func sampleBatch() *Batch {
	created := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	closed := time.Date(2025, 1, 3, 15, 30, 0, 0, time.UTC)
	uid := model.PullRequestUID("contoso", "platform", "r1", 7)

	pr := model.PullRequest{
		UID:           uid,
		PullRequestID: 7,
		RepositoryID:  "r1",
		Organization:  "contoso",
		Project:       "platform",
		Title:         "Add retry budget",
		Status:        model.StatusCompleted,
		AuthorID:      "u1",
		CreationDate:  created,
		ClosedDate:    &closed,
		SourceBranch:  "refs/heads/feature/retry",
		TargetBranch:  "refs/heads/main",
		LastUpdated:   closed,
	}
	pr.CycleTimeMinutes = model.CycleTimeMinutes(pr.Status, pr.CreationDate, pr.ClosedDate)

	return &Batch{
		Organization: model.Organization{Name: "contoso"},
		Project:      model.Project{Organization: "contoso", Name: "platform"},
		Repository: model.Repository{
			RepositoryID: "r1",
			Name:         "core",
			Project:      "platform",
			Organization: "contoso",
		},
		Users: []model.User{
			{UserID: "u1", DisplayName: "Alex", Email: "alex@contoso.com"},
			{UserID: "u2", DisplayName: "Sam", Email: "sam@contoso.com"},
		},
		PullRequests: []model.PullRequest{pr},
		Reviewers: map[string][]model.Reviewer{
			uid: {
				{PullRequestUID: uid, UserID: "u2", RepositoryID: "r1", Vote: model.VoteApproved},
			},
		},
	}
}

func TestRepository_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("first application inserts everything", func(t *testing.T) {
		repo, db := newTestRepository(t)

		result, err := repo.Apply(ctx, sampleBatch())

		require.NoError(t, err)
		// org + project + repo + 2 users + 1 pull request.
		assert.Equal(t, 6, result.Inserted)
		assert.Zero(t, result.Updated)
		assert.Zero(t, result.Unchanged)

		var reviewers []model.Reviewer
		require.NoError(t, db.Find(&reviewers).Error)
		assert.Len(t, reviewers, 1)
	})

	t.Run("reapplying the same batch changes nothing", func(t *testing.T) {
		repo, db := newTestRepository(t)

		_, err := repo.Apply(ctx, sampleBatch())
		require.NoError(t, err)

		var before model.PullRequest
		require.NoError(t, db.First(&before).Error)

		result, err := repo.Apply(ctx, sampleBatch())

		require.NoError(t, err)
		assert.Zero(t, result.Inserted)
		assert.Zero(t, result.Updated)
		assert.Equal(t, 6, result.Unchanged)

		var after model.PullRequest
		require.NoError(t, db.First(&after).Error)
		assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	})

	t.Run("changed pull request is updated in place", func(t *testing.T) {
		repo, db := newTestRepository(t)

		_, err := repo.Apply(ctx, sampleBatch())
		require.NoError(t, err)

		changed := sampleBatch()
		changed.PullRequests[0].Title = "Add retry budget (amended)"
		changed.PullRequests[0].LastUpdated = changed.PullRequests[0].LastUpdated.Add(time.Hour)

		result, err := repo.Apply(ctx, changed)

		require.NoError(t, err)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, 5, result.Unchanged)

		var stored model.PullRequest
		require.NoError(t, db.First(&stored).Error)
		assert.Equal(t, "Add retry budget (amended)", stored.Title)

		var count int64
		require.NoError(t, db.Model(&model.PullRequest{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})

	t.Run("reviewer set is replaced wholesale", func(t *testing.T) {
		repo, db := newTestRepository(t)

		first := sampleBatch()
		uid := first.PullRequests[0].UID
		first.Reviewers[uid] = append(first.Reviewers[uid],
			model.Reviewer{PullRequestUID: uid, UserID: "u3", RepositoryID: "r1", Vote: model.VoteWaiting})
		first.Users = append(first.Users,
			model.User{UserID: "u3", DisplayName: "Kim", Email: "kim@contoso.com"})

		_, err := repo.Apply(ctx, first)
		require.NoError(t, err)

		// Second pass: u3 no longer reviews, u2 flipped to rejected.
		second := sampleBatch()
		second.Reviewers[uid] = []model.Reviewer{
			{PullRequestUID: uid, UserID: "u2", RepositoryID: "r1", Vote: model.VoteRejected},
		}

		_, err = repo.Apply(ctx, second)
		require.NoError(t, err)

		var reviewers []model.Reviewer
		require.NoError(t, db.Find(&reviewers).Error)
		require.Len(t, reviewers, 1)
		assert.Equal(t, "u2", reviewers[0].UserID)
		assert.Equal(t, model.VoteRejected, reviewers[0].Vote)

		// The removed reviewer's user row stays; users are append-only.
		var users int64
		require.NoError(t, db.Model(&model.User{}).Count(&users).Error)
		assert.EqualValues(t, 3, users)
	})

	t.Run("reviewer repository mismatch is rejected before writing", func(t *testing.T) {
		repo, db := newTestRepository(t)

		batch := sampleBatch()
		uid := batch.PullRequests[0].UID
		batch.Reviewers[uid][0].RepositoryID = "other-repo"

		_, err := repo.Apply(ctx, batch)

		assert.ErrorIs(t, err, ErrReviewerRepositoryMismatch)

		var count int64
		require.NoError(t, db.Model(&model.PullRequest{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("mid-batch failure rolls back everything", func(t *testing.T) {
		repo, db := newTestRepository(t)

		// Force the reviewer write to fail after the earlier inserts
		// succeeded within the same transaction.
		require.NoError(t, db.Exec("DROP TABLE reviewers").Error)

		_, err := repo.Apply(ctx, sampleBatch())
		require.Error(t, err)

		var orgs, prs int64
		require.NoError(t, db.Model(&model.Organization{}).Count(&orgs).Error)
		require.NoError(t, db.Model(&model.PullRequest{}).Count(&prs).Error)
		assert.Zero(t, orgs)
		assert.Zero(t, prs)
	})

	t.Run("nil batch", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		_, err := repo.Apply(ctx, nil)
		assert.Error(t, err)
	})
}

func TestRepository_DetectState(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh store", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		state, err := repo.DetectState(ctx)

		require.NoError(t, err)
		assert.True(t, state.Fresh)
		assert.Empty(t, state.Marks)
	})

	t.Run("existing marks", func(t *testing.T) {
		repo, _ := newTestRepository(t)
		mark := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

		require.NoError(t, repo.AdvanceHighWaterMark(ctx, "r1", mark))

		state, err := repo.DetectState(ctx)

		require.NoError(t, err)
		assert.False(t, state.Fresh)
		require.Contains(t, state.Marks, "r1")
		assert.True(t, state.Marks["r1"].Equal(mark))
	})
}

func TestRepository_AdvanceHighWaterMark(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then advances", func(t *testing.T) {
		repo, _ := newTestRepository(t)
		first := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
		later := first.Add(2 * time.Hour)

		require.NoError(t, repo.AdvanceHighWaterMark(ctx, "r1", first))
		require.NoError(t, repo.AdvanceHighWaterMark(ctx, "r1", later))

		state, err := repo.DetectState(ctx)
		require.NoError(t, err)
		assert.True(t, state.Marks["r1"].Equal(later))
	})

	t.Run("stale mark never moves the checkpoint back", func(t *testing.T) {
		repo, _ := newTestRepository(t)
		current := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

		require.NoError(t, repo.AdvanceHighWaterMark(ctx, "r1", current))
		require.NoError(t, repo.AdvanceHighWaterMark(ctx, "r1", current.Add(-time.Hour)))
		require.NoError(t, repo.AdvanceHighWaterMark(ctx, "r1", current))

		state, err := repo.DetectState(ctx)
		require.NoError(t, err)
		assert.True(t, state.Marks["r1"].Equal(current))
	})

	t.Run("zero mark is a no-op", func(t *testing.T) {
		repo, _ := newTestRepository(t)

		require.NoError(t, repo.AdvanceHighWaterMark(ctx, "r1", time.Time{}))

		state, err := repo.DetectState(ctx)
		require.NoError(t, err)
		assert.True(t, state.Fresh)
	})
}

func TestRepository_SaveRun(t *testing.T) {
	repo, db := newTestRepository(t)

	summary := &model.RunSummary{
		Mode:       string(ModeIncremental),
		Status:     model.RunSucceeded,
		StartedAt:  time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 1, 10, 8, 3, 0, 0, time.UTC),
		Projects: []model.ProjectOutcome{
			{Project: "platform", Status: model.ProjectSucceeded, Repositories: 2, Inserted: 10},
		},
	}

	require.NoError(t, repo.SaveRun(context.Background(), summary))

	var stored model.RunSummary
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, model.RunSucceeded, stored.Status)
	require.Len(t, stored.Projects, 1)
	assert.Equal(t, "platform", stored.Projects[0].Project)
}

func TestResolveWindow(t *testing.T) {
	cfg := config.ExtractConfig{
		DefaultStartDate: "2020-01-01",
		BackfillDays:     30,
		Overlap:          6 * time.Hour,
	}
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	mark := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	state := &DatabaseState{Marks: map[string]time.Time{"r1": mark}}

	t.Run("incremental subtracts the overlap from the mark", func(t *testing.T) {
		since, err := ResolveWindow(state, "r1", ModeIncremental, cfg, now)

		require.NoError(t, err)
		assert.True(t, since.Equal(mark.Add(-6*time.Hour)))
	})

	t.Run("never-seen repository starts from the default start date", func(t *testing.T) {
		since, err := ResolveWindow(state, "r-new", ModeIncremental, cfg, now)

		require.NoError(t, err)
		assert.True(t, since.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("backfill ignores the mark", func(t *testing.T) {
		since, err := ResolveWindow(state, "r1", ModeBackfill, cfg, now)

		require.NoError(t, err)
		assert.True(t, since.Equal(now.AddDate(0, 0, -30)))
	})

	t.Run("invalid start date", func(t *testing.T) {
		bad := cfg
		bad.DefaultStartDate = "yesterday"

		_, err := ResolveWindow(&DatabaseState{Fresh: true, Marks: map[string]time.Time{}},
			"r1", ModeIncremental, bad, now)
		assert.Error(t, err)
	})
}
