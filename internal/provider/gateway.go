package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rlmlabs/rlmreview/internal/cache"
	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider/github"
	"github.com/rlmlabs/rlmreview/internal/provider/gitlab"
	"github.com/rlmlabs/rlmreview/internal/provider/search"
)

// redactor is the narrow surface Gateway needs from internal/redaction,
// kept local to avoid a dependency from this package's constructor onto a
// concrete engine type.
type redactor interface {
	Redact(input string) (string, error)
}

// MaxFetchFileBytes caps the size of a single file blob fetch_file will
// return; larger blobs fail with BinaryTooLarge rather than flooding the
// sandbox's observation buffer.
const MaxFetchFileBytes = 5 * 1024 * 1024

// hostClient is the per-provider surface every code host adapter satisfies.
type hostClient interface {
	LoadPR(ctx context.Context, repo domain.RepoRef, number int) (domain.PRInfo, error)
	FetchFile(ctx context.Context, repo domain.RepoRef, sha, path string) ([]byte, error)
}

// Gateway is the Provider Gateway (C1): the single entry point the RLM
// sandbox's interceptor calls for parse_url/load_pr/fetch_file/search,
// dispatching to the GitHub or GitLab adapter by provider and caching
// fetched content and search results through C2.
type Gateway struct {
	github *github.Client
	gitlab *gitlab.Client
	cache  *cache.Cache

	redactor   redactor
	denyGlobs  []string
	allowGlobs []string
}

// NewGateway builds a Gateway. githubToken/gitlabToken may be empty for
// unauthenticated (rate-limited) access.
func NewGateway(githubToken, githubAPIBase, gitlabToken, gitlabAPIBase string, c *cache.Cache) *Gateway {
	return &Gateway{
		github: github.NewClient(githubToken, githubAPIBase),
		gitlab: gitlab.NewClient(gitlabToken, gitlabAPIBase),
		cache:  c,
	}
}

// SetRedaction wires a secret-redaction engine into fetch_file: fetched
// content is scrubbed before it is cached or returned to the sandbox, so
// secrets never reach the LLM prompt. allowGlobs restricts redaction to
// matching paths when non-empty; denyGlobs always exempts matching paths,
// checked first.
func (g *Gateway) SetRedaction(r redactor, denyGlobs, allowGlobs []string) {
	g.redactor = r
	g.denyGlobs = denyGlobs
	g.allowGlobs = allowGlobs
}

func (g *Gateway) shouldRedact(path string) bool {
	if g.redactor == nil {
		return false
	}
	for _, pattern := range g.denyGlobs {
		if ok, _ := filepath.Match(pattern, path); ok {
			return false
		}
	}
	if len(g.allowGlobs) == 0 {
		return true
	}
	for _, pattern := range g.allowGlobs {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// ResolvePR parses a PR/MR URL and loads its full metadata in one call,
// combining URL parsing and PR loading.
func (g *Gateway) ResolvePR(ctx context.Context, rawURL string) (domain.PRInfo, error) {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return domain.PRInfo{}, err
	}
	client := g.clientFor(ref.Provider)
	return client.LoadPR(ctx, ref.Repo, ref.Number)
}

// FetchFile returns a file's content at sha, serving from cache when
// present and rejecting blobs over MaxFetchFileBytes as BinaryTooLarge.
func (g *Gateway) FetchFile(ctx context.Context, p domain.Provider, repo domain.RepoRef, sha, path string) ([]byte, error) {
	key := cache.Key(string(p), repoKey(repo), sha, path)
	if entry, ok := g.cache.Get(key); ok {
		return entry.Bytes, nil
	}

	client := g.clientFor(p)
	content, err := client.FetchFile(ctx, repo, sha, path)
	if err != nil {
		return nil, err
	}
	if len(content) > MaxFetchFileBytes {
		return nil, domain.NewError(domain.ErrBinaryTooLarge,
			fmt.Sprintf("%s exceeds %d byte fetch cap", path, MaxFetchFileBytes))
	}

	if g.shouldRedact(path) {
		redacted, err := g.redactor.Redact(string(content))
		if err == nil {
			content = []byte(redacted)
		}
	}

	g.cache.Put(key, content)
	return content, nil
}

// Search runs a ranked text search over repo at sha, serving from cache
// when present. GitHub/GitLab code-search endpoints require broader scopes
// than a PR-scoped token typically carries, so this always uses the
// local-grep fallback against the provider's public clone URL.
func (g *Gateway) Search(ctx context.Context, p domain.Provider, repo domain.RepoRef, sha, query string) ([]search.Match, error) {
	key := cache.SearchKey(string(p), repoKey(repo), sha, query)
	if entry, ok := g.cache.Get(key); ok {
		var matches []search.Match
		if err := json.Unmarshal(entry.Bytes, &matches); err == nil {
			return matches, nil
		}
	}

	searcher := search.NewLocalGrepSearcher(cloneURLFor(p, repo))
	matches, err := searcher.Search(ctx, sha, query)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(matches); err == nil {
		g.cache.Put(key, encoded)
	}
	return matches, nil
}

// PostReview posts a GitHub pull request review. GitLab posting is out of
// scope: its merge request "discussions" API has no equivalent
// single-review-with-event primitive to map onto.
func (g *Gateway) PostReview(ctx context.Context, repo domain.RepoRef, number int, commitSHA, body string, event github.ReviewEvent, comments []github.ReviewComment) (reviewID int64, htmlURL string, err error) {
	return g.github.CreateReview(ctx, repo, number, commitSHA, body, event, comments)
}

func (g *Gateway) clientFor(p domain.Provider) hostClient {
	if p == domain.ProviderGitLab {
		return g.gitlab
	}
	return g.github
}

func repoKey(repo domain.RepoRef) string {
	if repo.Owner == "" {
		return repo.Name
	}
	return repo.Owner + "/" + repo.Name
}

func cloneURLFor(p domain.Provider, repo domain.RepoRef) string {
	if p == domain.ProviderGitLab {
		return fmt.Sprintf("https://gitlab.com/%s.git", repoKey(repo))
	}
	return fmt.Sprintf("https://github.com/%s.git", repoKey(repo))
}
