package provider

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rlmlabs/rlmreview/internal/cache"
	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider/github"
	"github.com/rlmlabs/rlmreview/internal/provider/gitlab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, githubSrv *httptest.Server) *Gateway {
	t.Helper()
	ghClient := github.NewClient("token", githubSrv.URL)
	ghClient.SetRawBaseURL(githubSrv.URL)
	return &Gateway{
		github: ghClient,
		gitlab: gitlab.NewClient("token", githubSrv.URL),
		cache:  cache.New(0, nil),
	}
}

func TestGateway_FetchFile_CacheMiss_PopulatesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("package main\n"))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)
	repo := domain.RepoRef{Owner: "acme", Name: "widgets"}

	content, err := g.FetchFile(t.Context(), domain.ProviderGitHub, repo, "sha1", "main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(content))
	assert.Equal(t, 1, g.cache.Len())
}

func TestGateway_FetchFile_CacheHit_SkipsClient(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte("should not be fetched"))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)
	repo := domain.RepoRef{Owner: "acme", Name: "widgets"}
	key := cache.Key(string(domain.ProviderGitHub), "acme/widgets", "sha1", "main.go")
	g.cache.Put(key, []byte("cached content"))

	content, err := g.FetchFile(t.Context(), domain.ProviderGitHub, repo, "sha1", "main.go")
	require.NoError(t, err)
	assert.Equal(t, "cached content", string(content))
	assert.False(t, called, "cache hit must not reach the host client")
}

func TestGateway_FetchFile_BinaryTooLarge(t *testing.T) {
	big := make([]byte, MaxFetchFileBytes+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(big)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)
	repo := domain.RepoRef{Owner: "acme", Name: "widgets"}

	_, err := g.FetchFile(t.Context(), domain.ProviderGitHub, repo, "sha1", "big.bin")
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrBinaryTooLarge, derr.Code)
	assert.Equal(t, 0, g.cache.Len(), "oversized content must not be cached")
}

func TestGateway_FetchFile_NotFound_Propagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)
	repo := domain.RepoRef{Owner: "acme", Name: "widgets"}

	_, err := g.FetchFile(t.Context(), domain.ProviderGitHub, repo, "sha1", "missing.go")
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrNotFound, derr.Code)
}

type fakeRedactor struct{ calls int }

func (f *fakeRedactor) Redact(input string) (string, error) {
	f.calls++
	return "[REDACTED]" + input, nil
}

func TestGateway_FetchFile_RedactsWhenAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret=abc123"))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)
	redactor := &fakeRedactor{}
	g.SetRedaction(redactor, nil, nil)

	content, err := g.FetchFile(t.Context(), domain.ProviderGitHub, domain.RepoRef{Owner: "acme", Name: "widgets"}, "sha1", "config.env")
	require.NoError(t, err)
	assert.Equal(t, 1, redactor.calls)
	assert.Contains(t, string(content), "[REDACTED]")
}

func TestGateway_FetchFile_DenyGlobSkipsRedaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("package main\n"))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)
	redactor := &fakeRedactor{}
	g.SetRedaction(redactor, []string{"*.go"}, nil)

	content, err := g.FetchFile(t.Context(), domain.ProviderGitHub, domain.RepoRef{Owner: "acme", Name: "widgets"}, "sha1", "main.go")
	require.NoError(t, err)
	assert.Equal(t, 0, redactor.calls)
	assert.Equal(t, "package main\n", string(content))
}

func TestGateway_FetchFile_AllowGlobRestrictsRedaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv)
	redactor := &fakeRedactor{}
	g.SetRedaction(redactor, nil, []string{"*.env"})

	content, err := g.FetchFile(t.Context(), domain.ProviderGitHub, domain.RepoRef{Owner: "acme", Name: "widgets"}, "sha1", "main.go")
	require.NoError(t, err)
	assert.Equal(t, 0, redactor.calls, "main.go does not match the allow-list, so it should not be redacted")
	assert.Equal(t, "content", string(content))
}

func TestGateway_Search_CacheHit_SkipsClone(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	g := newTestGateway(t, srv)
	repo := domain.RepoRef{Owner: "acme", Name: "widgets"}
	key := cache.SearchKey(string(domain.ProviderGitHub), "acme/widgets", "sha1", "TODO")
	g.cache.Put(key, []byte(`[{"path":"main.go","line":3,"snippet":"// TODO: fix"}]`))

	matches, err := g.Search(t.Context(), domain.ProviderGitHub, repo, "sha1", "TODO")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "main.go", matches[0].Path)
	assert.False(t, called, "search cache hit must not make an HTTP call")
}

func TestGateway_ResolvePR_InvalidURL(t *testing.T) {
	g := newTestGateway(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	_, err := g.ResolvePR(t.Context(), "not a pr url")
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrUrlInvalid, derr.Code)
}

func TestShouldRedact(t *testing.T) {
	g := &Gateway{}
	assert.False(t, g.shouldRedact("any/path.go"), "no redactor wired means never redact")

	g.SetRedaction(&fakeRedactor{}, nil, nil)
	assert.True(t, g.shouldRedact("any/path.go"), "no globs means redact everything")

	g.SetRedaction(&fakeRedactor{}, []string{"*.md"}, nil)
	assert.False(t, g.shouldRedact("README.md"), "deny glob exempts matching paths")
	assert.True(t, g.shouldRedact("main.go"))

	g.SetRedaction(&fakeRedactor{}, nil, []string{"*.env"})
	assert.True(t, g.shouldRedact("secrets.env"))
	assert.False(t, g.shouldRedact("main.go"), "allow list restricts redaction to matching paths")
}
