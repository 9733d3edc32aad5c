package devops

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// continuationHeader carries the server-side continuation token for the next
// page. An empty value means the listing is exhausted.
const continuationHeader = "X-Ms-Continuation-Token"

// Collector walks the paginated listing endpoints. Each call is independent
// and restartable; a transient failure mid-walk fails the entire collection
// rather than silently resuming with a gap.
type Collector struct {
	client   *Client
	pageSize int
	logger   *zap.SugaredLogger
}

// NewCollector creates a collector on top of an API client.
func NewCollector(client *Client, log *zap.SugaredLogger) *Collector {
	pageSize := client.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Collector{client: client, pageSize: pageSize, logger: log}
}

// Projects lists all projects of the organization.
func (c *Collector) Projects(ctx context.Context) ([]RawProject, error) {
	var projects []RawProject

	token := ""
	for {
		params := c.pageParams(token)

		var page projectList
		header, err := c.client.GetJSON(ctx, "_apis/projects", params, &page)
		if err != nil {
			if IsNotFound(err) {
				return projects, nil
			}
			return nil, err
		}

		projects = append(projects, page.Value...)

		token = header.Get(continuationHeader)
		if token == "" || len(page.Value) == 0 {
			return projects, nil
		}
	}
}

// Repositories lists all repositories of a project. A 404 means the project
// has no repositories visible to the credential and yields an empty result.
func (c *Collector) Repositories(ctx context.Context, project string) ([]RawRepository, error) {
	var repos []RawRepository

	path := fmt.Sprintf("%s/_apis/git/repositories", url.PathEscape(project))
	token := ""
	for {
		params := c.pageParams(token)

		var page repositoryList
		header, err := c.client.GetJSON(ctx, path, params, &page)
		if err != nil {
			if IsNotFound(err) {
				return repos, nil
			}
			return nil, err
		}

		repos = append(repos, page.Value...)

		token = header.Get(continuationHeader)
		if token == "" || len(page.Value) == 0 {
			return repos, nil
		}
	}
}

// PullRequests walks all pull requests of a repository, invoking fn for each
// record. When since is set it is pushed down as a server-side minimum
// modification time filter; callers must still apply their own client-side
// filter because the pagination contract over a combined cursor and time
// filter is ambiguous on some deployments.
func (c *Collector) PullRequests(
	ctx context.Context,
	project, repositoryID string,
	since *time.Time,
	fn func(RawPullRequest) error,
) error {
	path := fmt.Sprintf(
		"%s/_apis/git/repositories/%s/pullrequests",
		url.PathEscape(project),
		url.PathEscape(repositoryID),
	)

	pages := 0
	total := 0
	token := ""
	for {
		params := c.pageParams(token)
		params.Set("searchCriteria.status", "all")
		// A stable explicit sort order must always accompany pagination
		// parameters, or the continuation can skip or repeat records.
		params.Set("$orderby", "creationDate asc")
		if since != nil {
			params.Set("searchCriteria.minTime", since.UTC().Format(time.RFC3339))
			params.Set("searchCriteria.queryTimeRangeType", "updated")
		}

		var page pullRequestList
		header, err := c.client.GetJSON(ctx, path, params, &page)
		if err != nil {
			if IsNotFound(err) {
				// Deleted or empty repository: explicit empty result.
				return nil
			}
			return err
		}

		for _, pr := range page.Value {
			if err := fn(pr); err != nil {
				return err
			}
		}

		pages++
		total += len(page.Value)

		token = header.Get(continuationHeader)
		if token == "" || len(page.Value) == 0 {
			c.logger.Debugw("pull request listing complete",
				"project", project,
				"repository_id", repositoryID,
				"pages", pages,
				"records", total,
			)
			return nil
		}
	}
}

// pageParams builds the shared pagination parameters.
func (c *Collector) pageParams(token string) url.Values {
	params := url.Values{}
	params.Set("$top", strconv.Itoa(c.pageSize))
	if token != "" {
		params.Set("continuationToken", token)
	}
	return params
}
