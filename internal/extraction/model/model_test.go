package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullRequestUID(t *testing.T) {
	uid := PullRequestUID("contoso", "platform", "r1", 42)
	assert.Equal(t, "contoso/platform/r1/42", uid)
}

func TestCycleTimeMinutes(t *testing.T) {
	created := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	closed := created.Add(90 * time.Minute)

	t.Run("completed with closed date", func(t *testing.T) {
		minutes := CycleTimeMinutes(StatusCompleted, created, &closed)

		require.NotNil(t, minutes)
		assert.Equal(t, int64(90), *minutes)
	})

	t.Run("open has no cycle time", func(t *testing.T) {
		assert.Nil(t, CycleTimeMinutes(StatusOpen, created, nil))
	})

	t.Run("abandoned with closed date has no cycle time", func(t *testing.T) {
		assert.Nil(t, CycleTimeMinutes(StatusAbandoned, created, &closed))
	})

	t.Run("completed without closed date has no cycle time", func(t *testing.T) {
		assert.Nil(t, CycleTimeMinutes(StatusCompleted, created, nil))
	})
}

func TestPullRequest_ContentEquals(t *testing.T) {
	base := func() PullRequest {
		closed := time.Date(2025, 1, 3, 15, 0, 0, 0, time.UTC)
		cycle := int64(120)
		return PullRequest{
			UID:              "contoso/platform/r1/1",
			PullRequestID:    1,
			RepositoryID:     "r1",
			Organization:     "contoso",
			Project:          "platform",
			Title:            "a",
			Status:           StatusCompleted,
			AuthorID:         "u1",
			CreationDate:     closed.Add(-2 * time.Hour),
			ClosedDate:       &closed,
			CycleTimeMinutes: &cycle,
			LastUpdated:      closed,
		}
	}

	t.Run("identical content", func(t *testing.T) {
		assert.True(t, base().ContentEquals(base()))
	})

	t.Run("bookkeeping timestamps are ignored", func(t *testing.T) {
		a := base()
		b := base()
		b.CreatedAt = time.Now()
		b.UpdatedAt = time.Now()
		assert.True(t, a.ContentEquals(b))
	})

	t.Run("title change detected", func(t *testing.T) {
		b := base()
		b.Title = "b"
		assert.False(t, base().ContentEquals(b))
	})

	t.Run("nil versus set closed date", func(t *testing.T) {
		b := base()
		b.ClosedDate = nil
		b.CycleTimeMinutes = nil
		assert.False(t, base().ContentEquals(b))
	})

	t.Run("equal times in different locations", func(t *testing.T) {
		b := base()
		b.CreationDate = b.CreationDate.In(time.FixedZone("UTC+3", 3*3600))
		assert.True(t, base().ContentEquals(b))
	})
}

func TestRunSummary_AddOutcome(t *testing.T) {
	summary := &RunSummary{Status: RunSucceeded}

	summary.AddOutcome(ProjectOutcome{
		Project: "alpha", Status: ProjectSucceeded,
		Inserted: 3, Updated: 1, Unchanged: 2, Skipped: 1,
	})
	summary.AddOutcome(ProjectOutcome{
		Project: "beta", Status: ProjectFailed, Error: "listing failed",
	})
	summary.AddOutcome(ProjectOutcome{
		Project: "gamma", Status: ProjectFailed, Error: "another failure",
	})

	assert.Equal(t, 3, summary.Inserted)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Equal(t, 1, summary.Skipped)

	assert.False(t, summary.Succeeded())
	// Only the first failure is promoted.
	assert.Equal(t, "listing failed", summary.FirstFatalError)
	assert.Len(t, summary.Projects, 3)
}
