package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRepoNotFound is returned by Resolve for an unknown repository.
var ErrRepoNotFound = errors.New("repository not found")

// Activity holds contribution counts for one handle in one repository.
type Activity struct {
	Commits      int
	Issues       int
	PullRequests int
}

func (a Activity) Summary() string {
	return fmt.Sprintf("Commits=%d, Issues=%d, PRs=%d", a.Commits, a.Issues, a.PullRequests)
}

// Repo identifies the repository an activity query is scoped to. It is
// passed explicitly to every call; the client keeps no ambient state.
type Repo struct {
	Owner string
	Name  string
}

func (r *Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// Client is a read-only GitHub API client scoped to one credential.
type Client struct {
	client *resty.Client
}

func New(token string) *Client {
	return NewWithBaseURL(token, "https://api.github.com")
}

func NewWithBaseURL(token, baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token).
			SetHeader("Accept", "application/vnd.github+json"),
	}
}

// Validate checks that the configured token is usable. Called once at
// startup; a failure here is fatal.
func (c *Client) Validate(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/user")
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// Resolve looks up a repository by "owner/name".
func (c *Client) Resolve(ctx context.Context, fullName string) (*Repo, error) {
	type repoResponse struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&repoResponse{}).
		Get(fmt.Sprintf("/repos/%s", fullName))
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrRepoNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	result := resp.Result().(*repoResponse)
	return &Repo{Owner: result.Owner.Login, Name: result.Name}, nil
}

// TotalActivity returns all-time counts: commits from the commits
// listing (exact, unbounded) and issues/PRs from one GraphQL query
// filtered by author.
func (c *Client) TotalActivity(ctx context.Context, repo *Repo, handle string) (Activity, error) {
	commits, err := c.countCommits(ctx, repo, handle, time.Time{})
	if err != nil {
		return Activity{}, fmt.Errorf("counting commits: %w", err)
	}

	issues, prs, err := c.totalIssuesAndPRs(ctx, repo, handle)
	if err != nil {
		return Activity{}, fmt.Errorf("counting issues and prs: %w", err)
	}

	return Activity{Commits: commits, Issues: issues, PullRequests: prs}, nil
}

// DeltaActivity returns counts strictly after since. Commits use the
// commits listing and are exact over full history; issues/PRs use the
// search API restricted by creation date, which upstream bounds to a
// recent window. The asymmetry matches how the totals were awarded.
func (c *Client) DeltaActivity(ctx context.Context, repo *Repo, handle string, since time.Time) (Activity, error) {
	commits, err := c.countCommits(ctx, repo, handle, since)
	if err != nil {
		return Activity{}, fmt.Errorf("counting commits: %w", err)
	}

	date := since.UTC().Format("2006-01-02")
	issues, err := c.searchCount(ctx, fmt.Sprintf(
		"repo:%s is:issue author:%s created:>%s", repo.FullName(), handle, date))
	if err != nil {
		return Activity{}, fmt.Errorf("searching issues: %w", err)
	}
	prs, err := c.searchCount(ctx, fmt.Sprintf(
		"repo:%s is:pr author:%s created:>%s", repo.FullName(), handle, date))
	if err != nil {
		return Activity{}, fmt.Errorf("searching prs: %w", err)
	}

	return Activity{Commits: commits, Issues: issues, PullRequests: prs}, nil
}

var lastPageRe = regexp.MustCompile(`[?&]page=(\d+)>; rel="last"`)

// countCommits lists one commit per page and reads the total from the
// rel="last" page number. A zero since means all-time.
func (c *Client) countCommits(ctx context.Context, repo *Repo, handle string, since time.Time) (int, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("author", handle).
		SetQueryParam("per_page", "1")
	if !since.IsZero() {
		req.SetQueryParam("since", since.UTC().Format(time.RFC3339))
	}

	resp, err := req.Get(fmt.Sprintf("/repos/%s/%s/commits", repo.Owner, repo.Name))
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	// GitHub answers 409 for a repository with no commits at all.
	if resp.StatusCode() == http.StatusConflict {
		return 0, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	if m := lastPageRe.FindStringSubmatch(resp.Header().Get("Link")); m != nil {
		count, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("parsing last page number: %w", err)
		}
		return count, nil
	}

	// No pagination: the single page is the whole result.
	var page []struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return 0, fmt.Errorf("decoding commits page: %w", err)
	}
	return len(page), nil
}

func (c *Client) searchCount(ctx context.Context, query string) (int, error) {
	type searchResponse struct {
		TotalCount int `json:"total_count"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("per_page", "1").
		SetResult(&searchResponse{}).
		Get("/search/issues")
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	return resp.Result().(*searchResponse).TotalCount, nil
}

func (c *Client) totalIssuesAndPRs(ctx context.Context, repo *Repo, handle string) (int, int, error) {
	type graphqlResponse struct {
		Data struct {
			Repository struct {
				Issues struct {
					TotalCount int `json:"totalCount"`
				} `json:"issues"`
				PullRequests struct {
					TotalCount int `json:"totalCount"`
				} `json:"pullRequests"`
			} `json:"repository"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	query := fmt.Sprintf(`{
  repository(owner:%q, name:%q) {
    issues(first:0, filterBy:{createdBy:%q}, states:[OPEN,CLOSED]) { totalCount }
    pullRequests(first:0, filterBy:{createdBy:%q}, states:[OPEN,CLOSED]) { totalCount }
  }
}`, repo.Owner, repo.Name, handle, handle)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"query": query}).
		SetResult(&graphqlResponse{}).
		Post("/graphql")
	if err != nil {
		return 0, 0, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, 0, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	result := resp.Result().(*graphqlResponse)
	if len(result.Errors) > 0 {
		return 0, 0, fmt.Errorf("graphql error: %s", result.Errors[0].Message)
	}

	return result.Data.Repository.Issues.TotalCount,
		result.Data.Repository.PullRequests.TotalCount,
		nil
}
