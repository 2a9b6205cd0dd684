package issues

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/models"
)

// defaultAPIBaseURL is the issue tracker's REST endpoint.
const defaultAPIBaseURL = "https://api.github.com"

// GitHubClient fetches issues from the GitHub REST API.
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewGitHubClient creates an HTTP client for the issue tracker.
// token may be empty (public repos only, lower rate limits).
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultAPIBaseURL,
		token:      token,
		logger:     slog.Default(),
	}
}

// NewGitHubClientWithBaseURL is NewGitHubClient with an endpoint
// override, for GitHub Enterprise hosts and tests.
func NewGitHubClientWithBaseURL(token, baseURL string) *GitHubClient {
	c := NewGitHubClient(token)
	c.baseURL = baseURL
	return c
}

// githubIssue is the subset of the GitHub issue record we consume.
type githubIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// FetchIssue retrieves one issue and normalizes it to the canonical
// schema: issue_id "owner/repo#number", label names only, source tag
// remote, URL taken verbatim.
func (c *GitHubClient) FetchIssue(ctx context.Context, owner, repo string, number int) (*models.Issue, error) {
	if owner == "" || repo == "" || number < 1 {
		return nil, fault.Newf(fault.KindInvalidInput,
			"remote selector requires owner, repo and a positive issue number")
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.baseURL, owner, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fault.New(fault.KindUpstreamFailed, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	c.setAuthHeader(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.New(fault.KindUpstreamFailed, fmt.Errorf("fetch issue from %s: %w", apiURL, err))
	}
	defer resp.Body.Close()

	c.logger.Debug("Issue tracker call completed",
		"url", apiURL, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fault.Newf(fault.KindNotFound, "issue %s/%s#%d does not exist", owner, repo, number)
	case resp.StatusCode != http.StatusOK:
		return nil, fault.Newf(fault.KindUpstreamFailed,
			"issue tracker returned HTTP %d for %s", resp.StatusCode, apiURL)
	}

	var remote githubIssue
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, fault.New(fault.KindUpstreamFailed, fmt.Errorf("decode issue response: %w", err))
	}

	labels := make([]string, 0, len(remote.Labels))
	for _, l := range remote.Labels {
		labels = append(labels, l.Name)
	}

	issue := &models.Issue{
		IssueID:     fmt.Sprintf("%s/%s#%d", owner, repo, number),
		Repo:        fmt.Sprintf("%s/%s", owner, repo),
		IssueNumber: remote.Number,
		Title:       remote.Title,
		Body:        remote.Body,
		Labels:      labels,
		URL:         remote.HTMLURL,
		Source:      models.SourceRemote,
	}
	if issue.IssueNumber == 0 {
		issue.IssueNumber = number
	}
	if err := issue.Validate(); err != nil {
		return nil, fault.New(fault.KindUpstreamFailed,
			fmt.Errorf("issue tracker record did not normalize: %w", err))
	}
	return issue, nil
}

func (c *GitHubClient) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
