// Package provider implements the Provider Gateway (C1): parsing a PR/MR
// URL, loading its metadata, fetching file content at a specific commit,
// and a local-grep search fallback — all behind a single host-neutral
// interface so the RLM sandbox's capabilities don't need to know whether
// they are talking to GitHub or GitLab.
package provider

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// Ref identifies a single pull/merge request by provider, repo, and number.
type Ref struct {
	Provider domain.Provider
	APIBase  string // empty selects the provider's public default
	Repo     domain.RepoRef
	Number   int
}

var (
	githubPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/pull/(\d+)/?`)
	gitlabPattern = regexp.MustCompile(`^https://gitlab\.com/([^/]+(?:/[^/]+)*)/-/merge_requests/(\d+)/?`)
	// GitHub Enterprise Server and self-managed GitLab use the same path
	// shape on a different host; capture the host so callers can derive
	// an API base from it.
	ghEnterprisePattern = regexp.MustCompile(`^https://([^/]+)/([^/]+)/([^/]+)/pull/(\d+)/?`)
	glSelfHostedPattern = regexp.MustCompile(`^https://([^/]+)/([^/]+(?:/[^/]+)*)/-/merge_requests/(\d+)/?`)
)

// ParseURL recognizes github.com, GitHub Enterprise, gitlab.com, and
// self-managed GitLab PR/MR URLs. Returns UrlInvalid for anything else,
// including URLs that merely resemble one of these hosts.
func ParseURL(raw string) (Ref, error) {
	if m := githubPattern.FindStringSubmatch(raw); m != nil {
		return newGitHubRef("", m[1], m[2], m[3])
	}
	if m := gitlabPattern.FindStringSubmatch(raw); m != nil {
		return newGitLabRef("", m[1], m[2])
	}
	if m := ghEnterprisePattern.FindStringSubmatch(raw); m != nil && m[1] != "github.com" {
		return newGitHubRef(fmt.Sprintf("https://%s/api/v3", m[1]), m[2], m[3], m[4])
	}
	if m := glSelfHostedPattern.FindStringSubmatch(raw); m != nil && m[1] != "gitlab.com" {
		return newGitLabRef(fmt.Sprintf("https://%s/api/v4", m[1]), m[2], m[3])
	}
	return Ref{}, domain.NewError(domain.ErrUrlInvalid, fmt.Sprintf("unrecognized PR/MR URL: %s", raw))
}

func newGitHubRef(apiBase, owner, repo, numStr string) (Ref, error) {
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return Ref{}, domain.NewError(domain.ErrUrlInvalid, "non-numeric pull request number")
	}
	return Ref{
		Provider: domain.ProviderGitHub,
		APIBase:  apiBase,
		Repo:     domain.RepoRef{Owner: owner, Name: repo},
		Number:   n,
	}, nil
}

func newGitLabRef(apiBase, projectPath, numStr string) (Ref, error) {
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return Ref{}, domain.NewError(domain.ErrUrlInvalid, "non-numeric merge request number")
	}
	return Ref{
		Provider: domain.ProviderGitLab,
		APIBase:  apiBase,
		Repo:     domain.RepoRef{Name: projectPath},
		Number:   n,
	}, nil
}
