// Package github implements the GitHub side of the Provider Gateway: pull
// request metadata, raw file content at a commit, and posting reviews back
// through the Pull Request Reviews API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/rlmlabs/rlmreview/internal/transport"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultRawBaseURL = "https://raw.githubusercontent.com"
)

// Client is an HTTP client for the GitHub REST API's pull request surface.
type Client struct {
	token      string
	baseURL    string
	rawBaseURL string
	httpClient *http.Client
	retryConf  transport.RetryConfig
}

// NewClient creates a GitHub API client. apiBase, if non-empty, overrides
// the public api.github.com host (GitHub Enterprise Server).
func NewClient(token, apiBase string) *Client {
	base := defaultBaseURL
	if apiBase != "" {
		base = strings.TrimRight(apiBase, "/")
	}
	return &Client{
		token:      token,
		baseURL:    base,
		rawBaseURL: defaultRawBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryConf:  providerRetryConfig(),
	}
}

// SetRawBaseURL overrides the raw-content host FetchFile reads from,
// normally raw.githubusercontent.com; GitHub Enterprise Server exposes raw
// content under its own host instead.
func (c *Client) SetRawBaseURL(url string) { c.rawBaseURL = strings.TrimRight(url, "/") }

func providerRetryConfig() transport.RetryConfig {
	return transport.RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

type pullResponse struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Draft  bool   `json:"draft"`
	Base   struct {
		SHA string `json:"sha"`
		Ref string `json:"ref"`
	} `json:"base"`
	Head struct {
		SHA string `json:"sha"`
		Ref string `json:"ref"`
	} `json:"head"`
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

type fileEntry struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

type commitEntry struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commit"`
}

type issueCommentEntry struct {
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// LoadPR fetches pull request metadata, files, commits, and comments and
// assembles a provider-neutral PRInfo.
func (c *Client) LoadPR(ctx context.Context, repo domain.RepoRef, number int) (domain.PRInfo, error) {
	var pr pullResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, number), &pr); err != nil {
		return domain.PRInfo{}, err
	}

	files, err := c.listFiles(ctx, repo, number)
	if err != nil {
		return domain.PRInfo{}, err
	}
	commits, err := c.listCommits(ctx, repo, number)
	if err != nil {
		return domain.PRInfo{}, err
	}
	comments, err := c.listComments(ctx, repo, number)
	if err != nil {
		return domain.PRInfo{}, err
	}

	return domain.PRInfo{
		Provider:  domain.ProviderGitHub,
		Repo:      repo,
		Number:    number,
		Title:     pr.Title,
		Body:      pr.Body,
		BaseSHA:   pr.Base.SHA,
		HeadSHA:   pr.Head.SHA,
		BaseRef:   pr.Base.Ref,
		HeadRef:   pr.Head.Ref,
		State:     pr.State,
		Draft:     pr.Draft,
		Files:     files,
		Commits:   commits,
		Comments:  comments,
		Additions: pr.Additions,
		Deletions: pr.Deletions,
	}, nil
}

func (c *Client) listFiles(ctx context.Context, repo domain.RepoRef, number int) ([]domain.PRFile, error) {
	var entries []fileEntry
	if err := c.getJSONPaginated(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/files", repo.Owner, repo.Name, number), &entries); err != nil {
		return nil, err
	}
	out := make([]domain.PRFile, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.PRFile{
			Path:      e.Filename,
			Status:    mapFileStatus(e.Status),
			Additions: e.Additions,
			Deletions: e.Deletions,
			Patch:     e.Patch,
		})
	}
	return out, nil
}

func mapFileStatus(s string) domain.PRFileStatus {
	switch s {
	case "added":
		return domain.FileAdded
	case "removed":
		return domain.FileRemoved
	case "renamed":
		return domain.FileRenamed
	default:
		return domain.FileModified
	}
}

func (c *Client) listCommits(ctx context.Context, repo domain.RepoRef, number int) ([]domain.Commit, error) {
	var entries []commitEntry
	if err := c.getJSONPaginated(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/commits", repo.Owner, repo.Name, number), &entries); err != nil {
		return nil, err
	}
	out := make([]domain.Commit, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Commit{SHA: e.SHA, Message: e.Commit.Message, Author: e.Commit.Author.Name})
	}
	return out, nil
}

func (c *Client) listComments(ctx context.Context, repo domain.RepoRef, number int) ([]domain.Comment, error) {
	var entries []issueCommentEntry
	if err := c.getJSONPaginated(ctx, fmt.Sprintf("/repos/%s/%s/issues/%d/comments", repo.Owner, repo.Name, number), &entries); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Comment{Author: e.User.Login, Body: e.Body, CreatedAt: e.CreatedAt})
	}
	return out, nil
}

// FetchFile retrieves raw file content at sha, decoding it as UTF-8 with
// replacement for invalid sequences rather than failing the whole
// capability call on a single bad byte.
func (c *Client) FetchFile(ctx context.Context, repo domain.RepoRef, sha, path string) ([]byte, error) {
	rawURL := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawBaseURL,
		url.PathEscape(repo.Owner), url.PathEscape(repo.Name), url.PathEscape(sha), path)

	var body []byte
	err := provider.RetryWithFullJitter(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return domain.Wrap(domain.ErrTransport, "build request", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.Wrap(domain.ErrTransport, err.Error(), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return domain.NewError(domain.ErrNotFound, fmt.Sprintf("%s not found at %s", path, sha))
		}
		if resp.StatusCode >= 400 {
			raw, _ := io.ReadAll(resp.Body)
			return provider.MapHTTPStatus(resp.StatusCode, raw)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.Wrap(domain.ErrTransport, "read body", err)
		}
		body = decodeUTF8WithReplacement(raw)
		return nil
	}, c.retryConf)

	return body, err
}

// decodeUTF8WithReplacement replaces invalid UTF-8 byte sequences with the
// Unicode replacement character instead of failing the fetch outright.
func decodeUTF8WithReplacement(raw []byte) []byte {
	decoded, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), raw)
	if err != nil {
		return raw
	}
	return decoded
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.doGet(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Wrap(domain.ErrParseError, "decode github response", err)
	}
	return nil
}

// getJSONPaginated follows Link: rel="next" headers, appending each page's
// array elements into out (which must point to a slice).
func (c *Client) getJSONPaginated(ctx context.Context, path string, out interface{}) error {
	nextURL := c.baseURL + path
	if strings.Contains(nextURL, "?") {
		nextURL += "&per_page=100"
	} else {
		nextURL += "?per_page=100"
	}

	combined := json.RawMessage("[]")
	for nextURL != "" {
		body, link, err := c.doGetWithLink(ctx, nextURL)
		if err != nil {
			return err
		}
		combined, err = mergeJSONArrays(combined, body)
		if err != nil {
			return domain.Wrap(domain.ErrParseError, "merge paginated response", err)
		}
		nextURL = parseNextLink(link, c.baseURL)
	}
	return json.Unmarshal(combined, out)
}

func mergeJSONArrays(a, b json.RawMessage) (json.RawMessage, error) {
	var av, bv []json.RawMessage
	if err := json.Unmarshal(a, &av); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return nil, err
	}
	av = append(av, bv...)
	return json.Marshal(av)
}

// ReviewEvent is GitHub's review submission event (APPROVE, REQUEST_CHANGES,
// COMMENT).
type ReviewEvent string

const (
	ReviewEventApprove        ReviewEvent = "APPROVE"
	ReviewEventRequestChanges ReviewEvent = "REQUEST_CHANGES"
	ReviewEventComment        ReviewEvent = "COMMENT"
)

// ReviewComment is one inline comment anchored to a diff position.
type ReviewComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Side string `json:"side,omitempty"` // "LEFT" or "RIGHT"
	Body string `json:"body"`
}

type createReviewRequest struct {
	CommitID string          `json:"commit_id"`
	Body     string          `json:"body"`
	Event    ReviewEvent     `json:"event"`
	Comments []ReviewComment `json:"comments,omitempty"`
}

type createReviewResponse struct {
	ID      int64  `json:"id"`
	HTMLURL string `json:"html_url"`
}

// CreateReview posts a pull request review: a summary body plus zero or
// more inline comments, submitted with the given event.
func (c *Client) CreateReview(ctx context.Context, repo domain.RepoRef, number int, commitSHA, body string, event ReviewEvent, comments []ReviewComment) (reviewID int64, htmlURL string, err error) {
	reqBody, err := json.Marshal(createReviewRequest{CommitID: commitSHA, Body: body, Event: event, Comments: comments})
	if err != nil {
		return 0, "", domain.Wrap(domain.ErrValidationError, "encode review request", err)
	}

	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", repo.Owner, repo.Name, number)
	raw, err := c.doPost(ctx, c.baseURL+path, reqBody)
	if err != nil {
		return 0, "", err
	}

	var resp createReviewResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, "", domain.Wrap(domain.ErrParseError, "decode create review response", err)
	}
	return resp.ID, resp.HTMLURL, nil
}

func (c *Client) doPost(ctx context.Context, fullURL string, body []byte) ([]byte, error) {
	var respBody []byte
	err := provider.RetryWithFullJitter(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(string(body)))
		if err != nil {
			return domain.Wrap(domain.ErrTransport, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		req.Header.Set("Content-Type", "application/json")

		resp, callErr := c.httpClient.Do(req)
		if callErr != nil {
			return domain.Wrap(domain.ErrTransport, callErr.Error(), callErr)
		}
		defer resp.Body.Close()

		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return domain.Wrap(domain.ErrTransport, "read body", readErr)
		}
		if resp.StatusCode >= 400 {
			return provider.MapHTTPStatus(resp.StatusCode, raw)
		}
		respBody = raw
		return nil
	}, c.retryConf)
	return respBody, err
}

func (c *Client) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	body, _, err := c.doGetWithLink(ctx, fullURL)
	return body, err
}

func (c *Client) doGetWithLink(ctx context.Context, fullURL string) ([]byte, string, error) {
	var body []byte
	var link string
	err := provider.RetryWithFullJitter(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return domain.Wrap(domain.ErrTransport, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, callErr := c.httpClient.Do(req)
		if callErr != nil {
			return domain.Wrap(domain.ErrTransport, callErr.Error(), callErr)
		}
		defer resp.Body.Close()

		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return domain.Wrap(domain.ErrTransport, "read body", readErr)
		}
		if resp.StatusCode >= 400 {
			return provider.MapHTTPStatus(resp.StatusCode, raw)
		}
		body = raw
		link = resp.Header.Get("Link")
		return nil
	}, c.retryConf)
	return body, link, err
}

// parseNextLink extracts the "next" URL from a GitHub Link header, and
// rejects any URL that doesn't resolve to the configured API host to
// prevent a manipulated header redirecting subsequent pagination fetches.
func parseNextLink(linkHeader, trustedBase string) string {
	if linkHeader == "" {
		return ""
	}
	for _, part := range strings.Split(linkHeader, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		if !strings.Contains(segs[1], `rel="next"`) {
			continue
		}
		raw := strings.TrimSpace(segs[0])
		raw = strings.TrimPrefix(raw, "<")
		raw = strings.TrimSuffix(raw, ">")

		parsed, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		base, err := url.Parse(trustedBase)
		if err != nil || parsed.Host != base.Host {
			return ""
		}
		return raw
	}
	return ""
}
