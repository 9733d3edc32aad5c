package devops

import "time"

// Raw wire payloads for the listing endpoints. Unknown remote fields are
// ignored by json decoding, which keeps the client forward-compatible with
// remote API evolution.

// RawProject is a project as returned by the projects listing endpoint.
type RawProject struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	State          string    `json:"state"`
	LastUpdateTime time.Time `json:"lastUpdateTime"`
}

// RawRepository is a repository as returned by the repositories listing endpoint.
type RawRepository struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	DefaultBranch string     `json:"defaultBranch"`
	IsDisabled    bool       `json:"isDisabled"`
	Project       RawProject `json:"project"`
}

// RawIdentity is a user reference embedded in pull request payloads.
type RawIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// RawReviewer is a reviewer entry with its current vote.
// Vote values: 10 approved, 5 approved with suggestions, 0 no vote,
// -5 waiting for author, -10 rejected.
type RawReviewer struct {
	RawIdentity
	Vote int `json:"vote"`
}

// RawPullRequest is a pull request as returned by the pull request listing
// endpoint, with reviewers inline.
type RawPullRequest struct {
	PullRequestID  int64         `json:"pullRequestId"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Status         string        `json:"status"`
	CreatedBy      RawIdentity   `json:"createdBy"`
	CreationDate   time.Time     `json:"creationDate"`
	ClosedDate     *time.Time    `json:"closedDate"`
	LastUpdateTime time.Time     `json:"lastUpdateTime"`
	SourceRefName  string        `json:"sourceRefName"`
	TargetRefName  string        `json:"targetRefName"`
	Reviewers      []RawReviewer `json:"reviewers"`
}

type projectList struct {
	Count int          `json:"count"`
	Value []RawProject `json:"value"`
}

type repositoryList struct {
	Count int             `json:"count"`
	Value []RawRepository `json:"value"`
}

type pullRequestList struct {
	Count int              `json:"count"`
	Value []RawPullRequest `json:"value"`
}
