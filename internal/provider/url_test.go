package provider_test

import (
	"testing"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL_GitHub(t *testing.T) {
	ref, err := provider.ParseURL("https://github.com/acme/widgets/pull/42")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGitHub, ref.Provider)
	assert.Equal(t, "", ref.APIBase)
	assert.Equal(t, domain.RepoRef{Owner: "acme", Name: "widgets"}, ref.Repo)
	assert.Equal(t, 42, ref.Number)
}

func TestParseURL_GitHub_TrailingSlash(t *testing.T) {
	ref, err := provider.ParseURL("https://github.com/acme/widgets/pull/42/")
	require.NoError(t, err)
	assert.Equal(t, 42, ref.Number)
}

func TestParseURL_GitHubEnterprise(t *testing.T) {
	ref, err := provider.ParseURL("https://ghe.acme.internal/acme/widgets/pull/7")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGitHub, ref.Provider)
	assert.Equal(t, "https://ghe.acme.internal/api/v3", ref.APIBase)
	assert.Equal(t, domain.RepoRef{Owner: "acme", Name: "widgets"}, ref.Repo)
	assert.Equal(t, 7, ref.Number)
}

func TestParseURL_GitLab(t *testing.T) {
	ref, err := provider.ParseURL("https://gitlab.com/acme/group/widgets/-/merge_requests/9")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGitLab, ref.Provider)
	assert.Equal(t, "", ref.APIBase)
	assert.Equal(t, domain.RepoRef{Name: "acme/group/widgets"}, ref.Repo)
	assert.Equal(t, 9, ref.Number)
}

func TestParseURL_GitLabSelfHosted(t *testing.T) {
	ref, err := provider.ParseURL("https://gitlab.acme.internal/acme/widgets/-/merge_requests/3")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGitLab, ref.Provider)
	assert.Equal(t, "https://gitlab.acme.internal/api/v4", ref.APIBase)
	assert.Equal(t, domain.RepoRef{Name: "acme/widgets"}, ref.Repo)
	assert.Equal(t, 3, ref.Number)
}

func TestParseURL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "empty", url: ""},
		{name: "not a URL", url: "not a url at all"},
		{name: "github repo without PR", url: "https://github.com/acme/widgets"},
		{name: "github issue not PR", url: "https://github.com/acme/widgets/issues/1"},
		{name: "unrelated host", url: "https://example.com/acme/widgets/pull/1"},
		{name: "non-numeric PR number", url: "https://github.com/acme/widgets/pull/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.ParseURL(tt.url)
			require.Error(t, err)
			var derr *domain.Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, domain.ErrUrlInvalid, derr.Code)
		})
	}
}
