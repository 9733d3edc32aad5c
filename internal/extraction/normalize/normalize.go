// Package normalize maps raw remote payloads into the canonical entity
// schema. All functions are pure; a record missing required remote fields
// fails with SchemaError.
package normalize

import (
	"fmt"
	"time"

	"github.com/prmetrics/extractor/internal/devops"
	"github.com/prmetrics/extractor/internal/extraction/model"
)

// SchemaError indicates a remote record is missing a required field or
// carries a value outside the canonical schema.
type SchemaError struct {
	Kind   string
	Field  string
	Detail string
}

func (e *SchemaError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("schema error: %s record field %q: %s", e.Kind, e.Field, e.Detail)
	}
	return fmt.Sprintf("schema error: %s record missing required field %q", e.Kind, e.Field)
}

// Repository normalizes a raw repository payload.
func Repository(organization string, raw devops.RawRepository) (model.Repository, error) {
	if raw.ID == "" {
		return model.Repository{}, &SchemaError{Kind: "repository", Field: "id"}
	}
	if raw.Name == "" {
		return model.Repository{}, &SchemaError{Kind: "repository", Field: "name"}
	}
	if raw.Project.Name == "" {
		return model.Repository{}, &SchemaError{Kind: "repository", Field: "project.name"}
	}

	return model.Repository{
		RepositoryID: raw.ID,
		Name:         raw.Name,
		Project:      raw.Project.Name,
		Organization: organization,
	}, nil
}

// User normalizes a raw identity payload. The display name falls back to the
// unique name when absent.
func User(raw devops.RawIdentity) (model.User, error) {
	if raw.ID == "" {
		return model.User{}, &SchemaError{Kind: "user", Field: "id"}
	}

	displayName := raw.DisplayName
	if displayName == "" {
		displayName = raw.UniqueName
	}

	return model.User{
		UserID:      raw.ID,
		DisplayName: displayName,
		Email:       raw.UniqueName,
	}, nil
}

// PullRequest normalizes a raw pull request payload into the canonical pull
// request, its reviewer vote rows and the users it references. The composite
// UID is deterministic, so the same remote record always maps to the same
// local identity.
func PullRequest(
	organization, project, repositoryID string,
	raw devops.RawPullRequest,
) (model.PullRequest, []model.Reviewer, []model.User, error) {
	if raw.PullRequestID == 0 {
		return model.PullRequest{}, nil, nil,
			&SchemaError{Kind: "pull_request", Field: "pullRequestId"}
	}
	if raw.CreationDate.IsZero() {
		return model.PullRequest{}, nil, nil,
			&SchemaError{Kind: "pull_request", Field: "creationDate"}
	}

	status, err := Status(raw.Status)
	if err != nil {
		return model.PullRequest{}, nil, nil, err
	}

	author, err := User(raw.CreatedBy)
	if err != nil {
		return model.PullRequest{}, nil, nil,
			&SchemaError{Kind: "pull_request", Field: "createdBy.id"}
	}

	uid := model.PullRequestUID(organization, project, repositoryID, raw.PullRequestID)

	pr := model.PullRequest{
		UID:           uid,
		PullRequestID: raw.PullRequestID,
		RepositoryID:  repositoryID,
		Organization:  organization,
		Project:       project,
		Title:         raw.Title,
		Description:   raw.Description,
		Status:        status,
		AuthorID:      author.UserID,
		CreationDate:  raw.CreationDate.UTC(),
		ClosedDate:    normalizeTimePtr(raw.ClosedDate),
		SourceBranch:  raw.SourceRefName,
		TargetBranch:  raw.TargetRefName,
		LastUpdated:   lastUpdated(raw),
	}
	pr.CycleTimeMinutes = model.CycleTimeMinutes(pr.Status, pr.CreationDate, pr.ClosedDate)

	users := []model.User{author}
	reviewers := make([]model.Reviewer, 0, len(raw.Reviewers))
	for _, rawReviewer := range raw.Reviewers {
		reviewer, reviewerUser, err := Reviewer(uid, repositoryID, rawReviewer)
		if err != nil {
			return model.PullRequest{}, nil, nil, err
		}
		reviewers = append(reviewers, reviewer)
		users = append(users, reviewerUser)
	}

	return pr, reviewers, users, nil
}

// Reviewer normalizes a raw reviewer entry into a vote row and its user.
func Reviewer(
	pullRequestUID, repositoryID string,
	raw devops.RawReviewer,
) (model.Reviewer, model.User, error) {
	user, err := User(raw.RawIdentity)
	if err != nil {
		return model.Reviewer{}, model.User{},
			&SchemaError{Kind: "reviewer", Field: "id"}
	}

	return model.Reviewer{
		PullRequestUID: pullRequestUID,
		UserID:         user.UserID,
		RepositoryID:   repositoryID,
		Vote:           Vote(raw.Vote),
	}, user, nil
}

// Status maps a remote status value to the canonical schema.
func Status(raw string) (string, error) {
	switch raw {
	case "active":
		return model.StatusOpen, nil
	case "completed":
		return model.StatusCompleted, nil
	case "abandoned":
		return model.StatusAbandoned, nil
	default:
		return "", &SchemaError{
			Kind:   "pull_request",
			Field:  "status",
			Detail: fmt.Sprintf("unknown value %q", raw),
		}
	}
}

// Vote maps a remote integer vote to the canonical vote value.
func Vote(vote int) string {
	switch {
	case vote >= 5:
		return model.VoteApproved
	case vote <= -10:
		return model.VoteRejected
	case vote < 0:
		return model.VoteWaiting
	default:
		return model.VoteNone
	}
}

// lastUpdated picks the remote modification timestamp, falling back to the
// closed or creation date when the listing omits it.
func lastUpdated(raw devops.RawPullRequest) time.Time {
	if !raw.LastUpdateTime.IsZero() {
		return raw.LastUpdateTime.UTC()
	}
	if raw.ClosedDate != nil && !raw.ClosedDate.IsZero() {
		return raw.ClosedDate.UTC()
	}
	return raw.CreationDate.UTC()
}

func normalizeTimePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
