// Package gitlab implements the GitLab side of the Provider Gateway (C1):
// merge request metadata and raw file content at a commit, built against
// the GitLab REST API v4 in the same retry/error-mapping shape as the
// sibling github package (the pack carries no GitLab client to adapt from).
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/rlmlabs/rlmreview/internal/transport"
)

const defaultBaseURL = "https://gitlab.com/api/v4"

// Client is an HTTP client for the GitLab REST API v4's merge request surface.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retryConf  transport.RetryConfig
}

// NewClient creates a GitLab API client. apiBase, if non-empty, overrides
// the public gitlab.com host (self-managed GitLab).
func NewClient(token, apiBase string) *Client {
	base := defaultBaseURL
	if apiBase != "" {
		base = strings.TrimRight(apiBase, "/")
	}
	return &Client{
		token:      token,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryConf:  provider.DefaultRetryConfig(),
	}
}

type mergeRequestResponse struct {
	IID          int    `json:"iid"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	State        string `json:"state"`
	Draft        bool   `json:"draft"`
	TargetBranch string `json:"target_branch"`
	SourceBranch string `json:"source_branch"`
	DiffRefs     struct {
		BaseSHA string `json:"base_sha"`
		HeadSHA string `json:"head_sha"`
	} `json:"diff_refs"`
}

type mrChangeEntry struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
	RenamedFile bool   `json:"renamed_file"`
	Diff        string `json:"diff"`
}

type mrChangesResponse struct {
	Changes []mrChangeEntry `json:"changes"`
}

type mrCommitEntry struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	AuthorName string `json:"author_name"`
}

type mrNoteEntry struct {
	Author struct {
		Username string `json:"username"`
	} `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	System    bool      `json:"system"`
}

// LoadPR fetches merge request metadata, changes, commits, and non-system
// notes and assembles a provider-neutral PRInfo. repo.Name carries the
// URL-encoded "namespace/project" path; repo.Owner is unused for GitLab,
// whose projects are identified by full path alone.
func (c *Client) LoadPR(ctx context.Context, repo domain.RepoRef, number int) (domain.PRInfo, error) {
	project := projectPath(repo)

	var mr mergeRequestResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d", project, number), &mr); err != nil {
		return domain.PRInfo{}, err
	}

	var changes mrChangesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d/changes", project, number), &changes); err != nil {
		return domain.PRInfo{}, err
	}

	commits, err := c.listCommits(ctx, project, number)
	if err != nil {
		return domain.PRInfo{}, err
	}
	comments, err := c.listNotes(ctx, project, number)
	if err != nil {
		return domain.PRInfo{}, err
	}

	files := make([]domain.PRFile, 0, len(changes.Changes))
	var additions, deletions int
	for _, ch := range changes.Changes {
		add, del := countDiffLines(ch.Diff)
		additions += add
		deletions += del
		files = append(files, domain.PRFile{
			Path:      ch.NewPath,
			Status:    mapChangeStatus(ch),
			Additions: add,
			Deletions: del,
			Patch:     ch.Diff,
		})
	}

	return domain.PRInfo{
		Provider:  domain.ProviderGitLab,
		Repo:      repo,
		Number:    number,
		Title:     mr.Title,
		Body:      mr.Description,
		BaseSHA:   mr.DiffRefs.BaseSHA,
		HeadSHA:   mr.DiffRefs.HeadSHA,
		BaseRef:   mr.TargetBranch,
		HeadRef:   mr.SourceBranch,
		State:     mr.State,
		Draft:     mr.Draft,
		Files:     files,
		Commits:   commits,
		Comments:  comments,
		Additions: additions,
		Deletions: deletions,
	}, nil
}

func mapChangeStatus(ch mrChangeEntry) domain.PRFileStatus {
	switch {
	case ch.NewFile:
		return domain.FileAdded
	case ch.DeletedFile:
		return domain.FileRemoved
	case ch.RenamedFile:
		return domain.FileRenamed
	default:
		return domain.FileModified
	}
}

// countDiffLines derives additions/deletions from a unified diff body,
// since the GitLab changes endpoint does not report them per file.
func countDiffLines(diff string) (additions, deletions int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

func (c *Client) listCommits(ctx context.Context, project string, number int) ([]domain.Commit, error) {
	var entries []mrCommitEntry
	if err := c.getJSONPaginated(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d/commits", project, number), &entries); err != nil {
		return nil, err
	}
	out := make([]domain.Commit, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Commit{SHA: e.ID, Message: e.Message, Author: e.AuthorName})
	}
	return out, nil
}

func (c *Client) listNotes(ctx context.Context, project string, number int) ([]domain.Comment, error) {
	var entries []mrNoteEntry
	if err := c.getJSONPaginated(ctx, fmt.Sprintf("/projects/%s/merge_requests/%d/notes", project, number), &entries); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(entries))
	for _, e := range entries {
		if e.System {
			continue
		}
		out = append(out, domain.Comment{Author: e.Author.Username, Body: e.Body, CreatedAt: e.CreatedAt})
	}
	return out, nil
}

// FetchFile retrieves raw file content at sha via the repository files API,
// decoding it as UTF-8 with replacement for invalid sequences.
func (c *Client) FetchFile(ctx context.Context, repo domain.RepoRef, sha, path string) ([]byte, error) {
	project := projectPath(repo)
	rawPath := fmt.Sprintf("/projects/%s/repository/files/%s/raw?ref=%s", project, url.PathEscape(path), url.QueryEscape(sha))

	var body []byte
	err := provider.RetryWithFullJitter(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+rawPath, nil)
		if err != nil {
			return domain.Wrap(domain.ErrTransport, "build request", err)
		}
		req.Header.Set("PRIVATE-TOKEN", c.token)
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

func decodeUTF8WithReplacement(raw []byte) []byte {
	decoded, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), raw)
	if err != nil {
		return raw
	}
	return decoded
}

// projectPath builds the URL-encoded "namespace/project" path GitLab's API
// requires in place of a numeric project ID.
func projectPath(repo domain.RepoRef) string {
	path := repo.Name
	if repo.Owner != "" {
		path = repo.Owner + "/" + repo.Name
	}
	return url.PathEscape(path)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, _, err := c.doGetWithHeader(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Wrap(domain.ErrParseError, "decode gitlab response", err)
	}
	return nil
}

// getJSONPaginated follows GitLab's X-Next-Page response header across
// pages, appending each page's array elements into out.
func (c *Client) getJSONPaginated(ctx context.Context, path string, out interface{}) error {
	page := 1
	combined := json.RawMessage("[]")
	for page > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		pageURL := fmt.Sprintf("%s%s%sper_page=100&page=%d", c.baseURL, path, sep, page)

		body, headers, err := c.doGetWithHeader(ctx, pageURL)
		if err != nil {
			return err
		}
		combined, err = mergeJSONArrays(combined, body)
		if err != nil {
			return domain.Wrap(domain.ErrParseError, "merge paginated response", err)
		}

		next := headers.Get("X-Next-Page")
		if next == "" {
			break
		}
		n, err := strconv.Atoi(next)
		if err != nil || n <= page {
			break
		}
		page = n
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

func (c *Client) doGetWithHeader(ctx context.Context, fullURL string) ([]byte, http.Header, error) {
	var body []byte
	var headers http.Header
	err := provider.RetryWithFullJitter(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return domain.Wrap(domain.ErrTransport, "build request", err)
		}
		req.Header.Set("PRIVATE-TOKEN", c.token)

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
		headers = resp.Header
		return nil
	}, c.retryConf)
	return body, headers, err
}
