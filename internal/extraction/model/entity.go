// Package model provides the canonical entity schema for extracted data.
package model

import (
	"fmt"
	"time"
)

// Pull request status values in the canonical schema.
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// Reviewer vote values in the canonical schema.
const (
	VoteApproved = "approved"
	VoteRejected = "rejected"
	VoteWaiting  = "waiting"
	VoteNone     = "none"
)

// Organization is the root of the entity hierarchy. Never mutated after
// creation.
type Organization struct {
	Name      string    `gorm:"primaryKey;column:name;type:varchar(255)" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;not null"               json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Organization) TableName() string {
	return "organizations"
}

// Project identity is (organization, name); created on first sight and
// immutable afterwards.
type Project struct {
	Organization string    `gorm:"primaryKey;column:organization;type:varchar(255)" json:"organization"`
	Name         string    `gorm:"primaryKey;column:name;type:varchar(255)"         json:"name"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"                       json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Project) TableName() string {
	return "projects"
}

// Repository is keyed by the remote-assigned repository id, which is globally
// stable and joins pull requests to their repository.
type Repository struct {
	RepositoryID string    `gorm:"primaryKey;column:repository_id;type:varchar(255)"                   json:"repository_id"`
	Name         string    `gorm:"column:repository_name;type:varchar(255);not null"                   json:"repository_name"`
	Project      string    `gorm:"column:project;type:varchar(255);not null;index:idx_repos_project"   json:"project"`
	Organization string    `gorm:"column:organization;type:varchar(255);not null"                      json:"organization"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"                                          json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"                                          json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Repository) TableName() string {
	return "repositories"
}

// ContentEquals reports whether the mutable content of two repository rows is
// identical.
func (r Repository) ContentEquals(other Repository) bool {
	return r.Name == other.Name &&
		r.Project == other.Project &&
		r.Organization == other.Organization
}

// User is an append-only dimension referenced by pull request authors and
// reviewer votes.
type User struct {
	UserID      string    `gorm:"primaryKey;column:user_id;type:varchar(255)"     json:"user_id"`
	DisplayName string    `gorm:"column:display_name;type:varchar(255);not null"  json:"display_name"`
	Email       string    `gorm:"column:email;type:varchar(255)"                  json:"email"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"                      json:"created_at"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// ContentEquals reports whether the mutable content of two user rows is
// identical.
func (u User) ContentEquals(other User) bool {
	return u.DisplayName == other.DisplayName && u.Email == other.Email
}

// PullRequest is keyed by a deterministic composite UID because remote pull
// request ids are only unique within a repository. Mutable fields are
// overwritten on every run that observes the same remote record changed.
type PullRequest struct {
	UID              string     `gorm:"primaryKey;column:pull_request_uid;type:varchar(512)"                      json:"pull_request_uid"`
	PullRequestID    int64      `gorm:"column:pull_request_id;not null"                                           json:"pull_request_id"`
	RepositoryID     string     `gorm:"column:repository_id;type:varchar(255);not null;index:idx_prs_repository"  json:"repository_id"`
	Organization     string     `gorm:"column:organization;type:varchar(255);not null"                            json:"organization"`
	Project          string     `gorm:"column:project;type:varchar(255);not null"                                 json:"project"`
	Title            string     `gorm:"column:title;type:varchar(512);not null"                                   json:"title"`
	Description      string     `gorm:"column:description;type:text"                                              json:"description"`
	Status           string     `gorm:"column:status;type:varchar(32);not null;index:idx_prs_status"              json:"status"`
	AuthorID         string     `gorm:"column:author_id;type:varchar(255);not null;index:idx_prs_author"          json:"author_id"`
	CreationDate     time.Time  `gorm:"column:creation_date;not null"                                             json:"creation_date"`
	ClosedDate       *time.Time `gorm:"column:closed_date"                                                        json:"closed_date,omitempty"`
	CycleTimeMinutes *int64     `gorm:"column:cycle_time_minutes"                                                 json:"cycle_time_minutes,omitempty"`
	SourceBranch     string     `gorm:"column:source_branch;type:varchar(512)"                                    json:"source_branch"`
	TargetBranch     string     `gorm:"column:target_branch;type:varchar(512)"                                    json:"target_branch"`
	LastUpdated      time.Time  `gorm:"column:last_updated;not null;index:idx_prs_last_updated"                   json:"last_updated"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"                                                json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null"                                                json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (PullRequest) TableName() string {
	return "pull_requests"
}

// ContentEquals reports whether the mutable content of two pull request rows
// is identical. Local bookkeeping timestamps are excluded so unchanged remote
// records stay byte-stable across runs.
func (p PullRequest) ContentEquals(other PullRequest) bool {
	return p.PullRequestID == other.PullRequestID &&
		p.RepositoryID == other.RepositoryID &&
		p.Organization == other.Organization &&
		p.Project == other.Project &&
		p.Title == other.Title &&
		p.Description == other.Description &&
		p.Status == other.Status &&
		p.AuthorID == other.AuthorID &&
		p.CreationDate.Equal(other.CreationDate) &&
		equalTimePtr(p.ClosedDate, other.ClosedDate) &&
		equalInt64Ptr(p.CycleTimeMinutes, other.CycleTimeMinutes) &&
		p.SourceBranch == other.SourceBranch &&
		p.TargetBranch == other.TargetBranch &&
		p.LastUpdated.Equal(other.LastUpdated)
}

// Reviewer is a vote record keyed by (pull_request_uid, user_id). Rows for a
// pull request are replaced wholesale on every pass that touches it, since a
// partial upsert cannot represent reviewer removal.
type Reviewer struct {
	PullRequestUID string `gorm:"primaryKey;column:pull_request_uid;type:varchar(512)"                              json:"pull_request_uid"`
	UserID         string `gorm:"primaryKey;column:user_id;type:varchar(255)"                                       json:"user_id"`
	RepositoryID   string `gorm:"column:repository_id;type:varchar(255);not null;index:idx_reviewers_repository"    json:"repository_id"`
	Vote           string `gorm:"column:vote;type:varchar(32);not null"                                             json:"vote"`
}

// TableName specifies the table name for GORM.
func (Reviewer) TableName() string {
	return "reviewers"
}

// HighWaterMark records the latest successfully committed modification time
// per repository. Advanced only after a repository batch commits; never
// decreases.
type HighWaterMark struct {
	RepositoryID string    `gorm:"primaryKey;column:repository_id;type:varchar(255)" json:"repository_id"`
	Mark         time.Time `gorm:"column:mark;not null"                              json:"mark"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"                        json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (HighWaterMark) TableName() string {
	return "high_water_marks"
}

// PullRequestUID builds the deterministic composite surrogate key for a pull
// request, so the same remote record always normalizes to the same local
// identity across runs.
func PullRequestUID(organization, project, repositoryID string, pullRequestID int64) string {
	return fmt.Sprintf("%s/%s/%s/%d", organization, project, repositoryID, pullRequestID)
}

// CycleTimeMinutes derives the completed-PR cycle time. Returns nil unless
// the record is completed with a closed date.
func CycleTimeMinutes(status string, creationDate time.Time, closedDate *time.Time) *int64 {
	if status != StatusCompleted || closedDate == nil {
		return nil
	}
	minutes := int64(closedDate.Sub(creationDate).Minutes())
	return &minutes
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
