package devops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCollector(t *testing.T, serverURL string) *Collector {
	t.Helper()
	return NewCollector(testClient(t, serverURL), zap.NewNop().Sugar())
}

func writePage(t *testing.T, w http.ResponseWriter, token string, value interface{}) {
	t.Helper()
	if token != "" {
		w.Header().Set(continuationHeader, token)
	}
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	_, _ = fmt.Fprintf(w, `{"count":0,"value":%s}`, raw)
}

func TestCollector_Projects(t *testing.T) {
	t.Run("walks continuation pages", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("continuationToken") {
			case "":
				writePage(t, w, "page2", []RawProject{{ID: "p1", Name: "alpha"}})
			case "page2":
				writePage(t, w, "", []RawProject{{ID: "p2", Name: "beta"}})
			default:
				t.Errorf("unexpected continuation token %q", r.URL.Query().Get("continuationToken"))
			}
		}))
		defer server.Close()

		projects, err := testCollector(t, server.URL).Projects(context.Background())

		require.NoError(t, err)
		require.Len(t, projects, 2)
		assert.Equal(t, "alpha", projects[0].Name)
		assert.Equal(t, "beta", projects[1].Name)
	})

	t.Run("empty organization", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writePage(t, w, "", []RawProject{})
		}))
		defer server.Close()

		projects, err := testCollector(t, server.URL).Projects(context.Background())

		require.NoError(t, err)
		assert.Empty(t, projects)
	})
}

func TestCollector_Repositories(t *testing.T) {
	t.Run("lists project repositories", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/contoso/platform/_apis/git/repositories", r.URL.Path)
			writePage(t, w, "", []RawRepository{
				{ID: "r1", Name: "core"},
				{ID: "r2", Name: "tools", IsDisabled: true},
			})
		}))
		defer server.Close()

		repos, err := testCollector(t, server.URL).Repositories(context.Background(), "platform")

		require.NoError(t, err)
		require.Len(t, repos, 2)
		assert.True(t, repos[1].IsDisabled)
	})

	t.Run("missing project yields empty result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		repos, err := testCollector(t, server.URL).Repositories(context.Background(), "ghost")

		require.NoError(t, err)
		assert.Empty(t, repos)
	})
}

func TestCollector_PullRequests(t *testing.T) {
	newPR := func(id int64) RawPullRequest {
		return RawPullRequest{
			PullRequestID: id,
			Title:         fmt.Sprintf("PR %d", id),
			Status:        "active",
			CreationDate:  time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		}
	}

	t.Run("streams records across pages", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "all", r.URL.Query().Get("searchCriteria.status"))
			assert.Equal(t, "creationDate asc", r.URL.Query().Get("$orderby"))
			assert.Equal(t, "100", r.URL.Query().Get("$top"))

			switch r.URL.Query().Get("continuationToken") {
			case "":
				writePage(t, w, "next", []RawPullRequest{newPR(1), newPR(2)})
			case "next":
				writePage(t, w, "", []RawPullRequest{newPR(3)})
			}
		}))
		defer server.Close()

		var seen []int64
		err := testCollector(t, server.URL).PullRequests(
			context.Background(), "platform", "r1", nil,
			func(pr RawPullRequest) error {
				seen = append(seen, pr.PullRequestID)
				return nil
			},
		)

		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, seen)
	})

	t.Run("pushes the time filter down to the server", func(t *testing.T) {
		since := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2025-01-01T18:00:00Z", r.URL.Query().Get("searchCriteria.minTime"))
			assert.Equal(t, "updated", r.URL.Query().Get("searchCriteria.queryTimeRangeType"))
			writePage(t, w, "", []RawPullRequest{})
		}))
		defer server.Close()

		err := testCollector(t, server.URL).PullRequests(
			context.Background(), "platform", "r1", &since,
			func(RawPullRequest) error { return nil },
		)

		require.NoError(t, err)
	})

	t.Run("callback error aborts the walk", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writePage(t, w, "more", []RawPullRequest{newPR(1), newPR(2)})
		}))
		defer server.Close()

		calls := 0
		err := testCollector(t, server.URL).PullRequests(
			context.Background(), "platform", "r1", nil,
			func(RawPullRequest) error {
				calls++
				return fmt.Errorf("stop here")
			},
		)

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("deleted repository yields no records", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		err := testCollector(t, server.URL).PullRequests(
			context.Background(), "platform", "gone", nil,
			func(RawPullRequest) error {
				t.Error("callback must not run")
				return nil
			},
		)

		require.NoError(t, err)
	})
}
