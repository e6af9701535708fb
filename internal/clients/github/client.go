package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"gha-exporter/internal/models"
)

const (
	jobsPerPage  = 100
	maxRedirects = 10
)

// Client wraps the GitHub Actions API calls used by the exporter.
type Client struct {
	gh *github.Client
	// download fetches pre-signed archive URLs without API credentials.
	download *http.Client
	logger   *slog.Logger
}

// NewClient creates a GitHub client. baseURL may point at a GitHub Enterprise API root; an
// empty token sends unauthenticated requests.
func NewClient(baseURL, token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	gh := github.NewClient(httpClient)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		gh.BaseURL = u
	}

	return &Client{
		gh:       gh,
		download: &http.Client{Timeout: 5 * time.Minute},
		logger:   logger,
	}, nil
}

// SplitRepo splits "owner/repo" into its parts.
func SplitRepo(full string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(full, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repo format: %s (expected owner/repo)", full)
	}
	return owner, repo, nil
}

// GetWorkflowRun fetches a single workflow run.
func (c *Client) GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (models.WorkflowRun, error) {
	run, _, err := c.gh.Actions.GetWorkflowRunByID(ctx, owner, repo, runID)
	if err != nil {
		return models.WorkflowRun{}, fmt.Errorf("failed to get workflow run %d: %w", runID, err)
	}
	return toRun(run), nil
}

// ListJobs returns every job of the run's latest attempt, following pagination until the last
// page. A job repeated across pages is kept once.
func (c *Client) ListJobs(ctx context.Context, owner, repo string, runID int64) ([]models.Job, error) {
	opts := &github.ListWorkflowJobsOptions{
		ListOptions: github.ListOptions{PerPage: jobsPerPage},
	}

	var jobs []models.Job
	seen := make(map[int64]bool)
	for {
		page, resp, err := c.gh.Actions.ListWorkflowJobs(ctx, owner, repo, runID, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs for run %d (page %d): %w", runID, opts.Page, err)
		}

		for _, j := range page.Jobs {
			if seen[j.GetID()] {
				continue
			}
			seen[j.GetID()] = true
			jobs = append(jobs, toJob(j))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug("Listed workflow jobs", "run_id", runID, "jobs", len(jobs))
	return jobs, nil
}

// CommitsIncluded returns the SHAs of the commits between the previous completed push run on
// branch and run. It returns nil when there is no earlier run to compare against.
func (c *Client) CommitsIncluded(ctx context.Context, owner, repo string, run models.WorkflowRun, branch string) ([]string, error) {
	runs, _, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, &github.ListWorkflowRunsOptions{
		Branch: branch,
		Event:  "push",
		Status: "completed",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs for branch %s: %w", branch, err)
	}

	var base string
	for _, r := range runs.WorkflowRuns {
		if r.GetID() != run.ID && r.GetHeadSHA() != run.HeadSHA {
			base = r.GetHeadSHA()
			break
		}
	}
	if base == "" {
		return nil, nil
	}

	cmp, _, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, base, run.HeadSHA, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compare %s...%s: %w", base, run.HeadSHA, err)
	}

	shas := make([]string, 0, len(cmp.Commits))
	for _, commit := range cmp.Commits {
		shas = append(shas, commit.GetSHA())
	}
	return shas, nil
}

// DownloadRunLogs fetches the zip archive holding every step log of the run.
func (c *Client) DownloadRunLogs(ctx context.Context, owner, repo string, runID int64) ([]byte, error) {
	archiveURL, _, err := c.gh.Actions.GetWorkflowRunLogs(ctx, owner, repo, runID, maxRedirects)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs URL for run %d: %w", runID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch log archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read log archive: %w", err)
	}

	c.logger.Debug("Downloaded run logs", "run_id", runID, "bytes", len(data))
	return data, nil
}

func toRun(r *github.WorkflowRun) models.WorkflowRun {
	return models.WorkflowRun{
		ID:         r.GetID(),
		Name:       r.GetName(),
		RunNumber:  r.GetRunNumber(),
		RunAttempt: r.GetRunAttempt(),
		Event:      r.GetEvent(),
		Status:     r.GetStatus(),
		Conclusion: models.Conclusion(r.GetConclusion()),
		HeadSHA:    r.GetHeadSHA(),
		HeadBranch: r.GetHeadBranch(),
		HTMLURL:    r.GetHTMLURL(),
		Actor:      r.GetActor().GetLogin(),
		StartedAt:  r.GetRunStartedAt().Time,
		UpdatedAt:  r.GetUpdatedAt().Time,
	}
}

func toJob(j *github.WorkflowJob) models.Job {
	job := models.Job{
		ID:          j.GetID(),
		RunID:       j.GetRunID(),
		Name:        j.GetName(),
		Status:      j.GetStatus(),
		Conclusion:  models.Conclusion(j.GetConclusion()),
		HeadSHA:     j.GetHeadSHA(),
		HeadBranch:  j.GetHeadBranch(),
		RunnerName:  j.GetRunnerName(),
		Labels:      j.Labels,
		HTMLURL:     j.GetHTMLURL(),
		StartedAt:   j.GetStartedAt().Time,
		CompletedAt: j.GetCompletedAt().Time,
	}
	for _, s := range j.Steps {
		job.Steps = append(job.Steps, models.Step{
			Number:      s.GetNumber(),
			Name:        s.GetName(),
			Status:      s.GetStatus(),
			Conclusion:  models.Conclusion(s.GetConclusion()),
			StartedAt:   s.GetStartedAt().Time,
			CompletedAt: s.GetCompletedAt().Time,
		})
	}
	return job
}
