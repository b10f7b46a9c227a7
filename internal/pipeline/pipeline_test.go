package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab2dash/internal/checkpoint"
	"gitlab2dash/internal/config"
	"gitlab2dash/internal/gitlab"
	"gitlab2dash/internal/report"
)

// mockGitLab serves a two-project instance: "web" is active with CI, MRs,
// issues, and a release; "legacy" has been idle for 100 days and uses
// nothing.
func mockGitLab(requests *int32) http.HandlerFunc {
	now := time.Now().UTC()
	recent := now.Add(-time.Hour).Format(time.RFC3339)
	idle := now.AddDate(0, 0, -100).Format(time.RFC3339)
	created := now.AddDate(-1, 0, 0).Format(time.RFC3339)

	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		p := r.URL.Path

		switch {
		case p == "/api/v4/projects":
			fmt.Fprintf(w, `[
				{"id":1,"name":"web","path_with_namespace":"team/web","default_branch":"main",
				 "visibility":"private","created_at":%q,"last_activity_at":%q,
				 "star_count":4,"forks_count":1,"open_issues_count":2,
				 "namespace":{"id":10,"name":"team","path":"team","kind":"group"},
				 "statistics":{"commit_count":250,"storage_size":1073741824}},
				{"id":2,"name":"legacy","path_with_namespace":"team/legacy","default_branch":"master",
				 "visibility":"private","created_at":%q,"last_activity_at":%q,
				 "star_count":0,"forks_count":0,"open_issues_count":0,
				 "namespace":{"id":10,"name":"team","path":"team","kind":"group"},
				 "statistics":{"commit_count":40,"storage_size":52428800}}
			]`, created, recent, created, idle)

		case strings.HasSuffix(p, "/pipelines"):
			if strings.Contains(p, "/1/") {
				fmt.Fprintf(w, `[{"id":11,"status":"success","updated_at":%q},{"id":12,"status":"failed","updated_at":%q}]`, recent, recent)
				return
			}
			fmt.Fprint(w, `[]`)

		case strings.HasSuffix(p, "/repository/commits"):
			if strings.Contains(p, "/1/") {
				fmt.Fprintf(w, `[{"id":"c1","author_name":"Alice","author_email":"alice@example.com","created_at":%q}]`, recent)
				return
			}
			fmt.Fprint(w, `[]`)

		case strings.HasSuffix(p, "/repository/contributors"):
			fmt.Fprint(w, `[{"name":"Alice","email":"alice@example.com","commits":5,"additions":100,"deletions":20}]`)

		case strings.HasSuffix(p, "/languages"):
			if strings.Contains(p, "/1/") {
				fmt.Fprint(w, `{"Go":90.0,"Shell":10.0}`)
				return
			}
			fmt.Fprint(w, `{}`)

		case strings.HasSuffix(p, "/issues"):
			if strings.Contains(p, "/1/") {
				fmt.Fprintf(w, `[{"id":21,"state":"closed","created_at":%q,"closed_at":%q}]`,
					now.AddDate(0, 0, -10).Format(time.RFC3339), now.AddDate(0, 0, -8).Format(time.RFC3339))
				return
			}
			fmt.Fprint(w, `[]`)

		case strings.HasSuffix(p, "/repository/branches"):
			fmt.Fprint(w, `[{"name":"main","default":true}]`)

		case strings.HasSuffix(p, "/releases"):
			if strings.Contains(p, "/1/") {
				fmt.Fprintf(w, `[{"tag_name":"v1.0.0","released_at":%q}]`, recent)
				return
			}
			fmt.Fprint(w, `[]`)

		case strings.HasSuffix(p, "/merge_requests"):
			if strings.Contains(p, "/1/") {
				fmt.Fprintf(w, `[{"id":31,"state":"merged","created_at":%q,"merged_at":%q,
					"author":{"username":"alice"},"user_notes_count":6}]`,
					now.AddDate(0, 0, -5).Format(time.RFC3339), now.AddDate(0, 0, -3).Format(time.RFC3339))
				return
			}
			fmt.Fprint(w, `[]`)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func testConfig(baseURL, outputDir string) *config.Config {
	return &config.Config{
		GitLab: config.GitLab{URL: baseURL, Token: "test-token"},
		Analysis: config.Analysis{
			LookbackDays: 90,
			AllReports:   true,
			OutputDir:    outputDir,
			PerPage:      100,
			MaxPages:     100,
		},
	}
}

func newTestRunner(t *testing.T, cfg *config.Config) (*Runner, *checkpoint.FileStore) {
	t.Helper()

	client := gitlab.NewClient(gitlab.Options{
		BaseURL:     cfg.GitLab.URL,
		Token:       cfg.GitLab.Token,
		MinInterval: time.Nanosecond,
	}, zap.NewNop(), nil)

	sig := checkpoint.Signature{
		InstanceURL:  cfg.GitLab.URL,
		LookbackDays: cfg.Analysis.LookbackDays,
		SecurityData: cfg.Analysis.SecurityData,
		AllReports:   cfg.Analysis.AllReports,
	}
	store, err := checkpoint.NewFileStore(cfg.Analysis.OutputDir, sig, cfg.Analysis.ForceRestart, zap.NewNop())
	require.NoError(t, err)

	return NewRunner(cfg, client, store, zap.NewNop(), nil, nil, report.DefaultPolicy()), store
}

func TestRunner_FullRun(t *testing.T) {
	t.Parallel()

	var requests int32
	srv := httptest.NewServer(mockGitLab(&requests))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir())
	runner, store := newTestRunner(t, cfg)

	results, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, results.Projects, 2)
	assert.Equal(t, "team/web", results.Projects[0].Path)
	assert.Equal(t, int64(250), results.Projects[0].CommitCount)

	// Security is gated off, everything else produces one record per project.
	assert.Empty(t, results.Security)
	require.Len(t, results.Quality, 2)
	require.Len(t, results.Cost, 2)
	require.Len(t, results.Tech, 2)
	require.Len(t, results.Lifecycle, 2)
	require.Len(t, results.Business, 2)
	require.Len(t, results.Adoption, 2)
	require.Len(t, results.Collaboration, 2)
	require.Len(t, results.Maturity, 2)
	require.Len(t, results.Barriers, 2)

	// One success and one failure out of two pipelines.
	assert.Equal(t, 0.5, results.Quality[0].SuccessRate)
	assert.Zero(t, results.Quality[1].PipelineCount)

	// Contributors aggregate across both projects.
	require.Len(t, results.Team, 1)
	assert.Equal(t, "alice@example.com", results.Team[0].Email)
	assert.Equal(t, 10, results.Team[0].Commits)
	assert.Equal(t, 2, results.Team[0].Projects)

	assert.Equal(t, "Go", results.Tech[0].PrimaryLanguage)
	assert.True(t, results.Tech[0].HasCI)
	assert.False(t, results.Tech[1].HasCI)

	// The active project uses every feature, the idle one uses none.
	assert.Equal(t, 100.0, results.Adoption[0].AdoptionScore)
	assert.Equal(t, 0.0, results.Adoption[1].AdoptionScore)

	assert.Empty(t, results.Barriers[0].Barriers)
	assert.ElementsMatch(t,
		[]string{"inactive", "no_ci", "no_code_review", "no_issue_tracking", "no_releases"},
		results.Barriers[1].Barriers)

	assert.Equal(t, "active", results.Lifecycle[0].Phase)
	assert.Equal(t, "dormant", results.Lifecycle[1].Phase)

	meta := store.Metadata()
	assert.Equal(t, checkpoint.StatusCompleted, meta.Stages[StageProjects].Status)
	assert.Equal(t, checkpoint.StatusSkipped, meta.Stages[StageSecurity].Status)
	assert.Equal(t, checkpoint.StatusCompleted, meta.Stages[StageBarriers].Status)
	assert.Len(t, meta.Stages, len(StageOrder))
}

func TestRunner_ResumeMakesNoAPICalls(t *testing.T) {
	t.Parallel()

	var requests int32
	srv := httptest.NewServer(mockGitLab(&requests))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir())

	first, _ := newTestRunner(t, cfg)
	firstResults, err := first.Run(context.Background())
	require.NoError(t, err)

	atomic.StoreInt32(&requests, 0)

	second, store := newTestRunner(t, cfg)
	secondResults, err := second.Run(context.Background())
	require.NoError(t, err)

	// Everything came back from checkpoints.
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
	assert.Equal(t, firstResults.Projects, secondResults.Projects)
	assert.Equal(t, firstResults.Barriers, secondResults.Barriers)

	meta := store.Metadata()
	assert.Equal(t, checkpoint.StatusRestored, meta.Stages[StageProjects].Status)
	assert.Equal(t, checkpoint.StatusSkipped, meta.Stages[StageSecurity].Status)
	assert.Equal(t, checkpoint.StatusRestored, meta.Stages[StageMaturity].Status)
}

func TestRunner_ForceRestartRecomputes(t *testing.T) {
	t.Parallel()

	var requests int32
	srv := httptest.NewServer(mockGitLab(&requests))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir())

	first, _ := newTestRunner(t, cfg)
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	atomic.StoreInt32(&requests, 0)
	cfg.Analysis.ForceRestart = true

	second, store := newTestRunner(t, cfg)
	_, err = second.Run(context.Background())
	require.NoError(t, err)

	assert.Greater(t, atomic.LoadInt32(&requests), int32(0))
	assert.Equal(t, checkpoint.StatusCompleted, store.Metadata().Stages[StageProjects].Status)
}

func TestRunner_NoProjectsIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir())
	runner, _ := newTestRunner(t, cfg)

	_, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoProjects)
}

func TestRunner_MaxProjectsTruncates(t *testing.T) {
	t.Parallel()

	var requests int32
	srv := httptest.NewServer(mockGitLab(&requests))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir())
	cfg.Analysis.MaxProjects = 1

	runner, _ := newTestRunner(t, cfg)
	results, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, results.Projects, 1)
	assert.Equal(t, "team/web", results.Projects[0].Path)
	require.Len(t, results.Barriers, 1)
}

func TestRunner_SecurityFailSoft(t *testing.T) {
	t.Parallel()

	var requests int32
	base := mockGitLab(&requests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/vulnerability_findings") {
			if strings.Contains(r.URL.Path, "/1/") {
				fmt.Fprint(w, `[{"id":1,"severity":"critical"},{"id":2,"severity":"high"},{"id":3,"severity":"low"}]`)
				return
			}
			// Feature not available on this project.
			w.WriteHeader(http.StatusForbidden)
			return
		}
		base(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir())
	cfg.Analysis.SecurityData = true

	runner, _ := newTestRunner(t, cfg)
	results, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, results.Security, 2)
	assert.Equal(t, 1, results.Security[0].Critical)
	assert.Equal(t, 1, results.Security[0].High)
	assert.Equal(t, 1, results.Security[0].Low)
	assert.Equal(t, 3, results.Security[0].TotalFindings)
	assert.Equal(t, 100-25-10-1.0, results.Security[0].SecurityScore)

	// The 403 project degrades to an empty finding set instead of failing.
	assert.Zero(t, results.Security[1].TotalFindings)
	assert.Equal(t, 100.0, results.Security[1].SecurityScore)
}

func TestRunner_ContextCancellation(t *testing.T) {
	t.Parallel()

	var requests int32
	srv := httptest.NewServer(mockGitLab(&requests))
	defer srv.Close()

	cfg := testConfig(srv.URL, t.TempDir())
	runner, _ := newTestRunner(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
