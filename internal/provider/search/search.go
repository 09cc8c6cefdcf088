// Package search implements the sandbox's "search" capability: a ranked
// text search over a repository tree at a given commit, lazily
// materialized with go-git's in-memory object store rather than a full
// working-tree clone.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// Match is one ranked hit of a repository search: the file path, matching
// line number, and a short snippet of context.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

const (
	maxMatches    = 50
	maxSnippetLen = 200
)

// LocalGrepSearcher runs a text search over a single commit's tree, cloning
// just enough of the remote history into memory to resolve that one commit.
type LocalGrepSearcher struct {
	cloneURL string
}

// NewLocalGrepSearcher builds a searcher against a single remote, identified
// by its clone URL (e.g. https://github.com/owner/repo.git).
func NewLocalGrepSearcher(cloneURL string) *LocalGrepSearcher {
	return &LocalGrepSearcher{cloneURL: cloneURL}
}

// Search greps every text blob reachable from sha's tree for query,
// returning at most maxMatches hits ordered by path then line.
func (s *LocalGrepSearcher) Search(ctx context.Context, sha, query string) ([]Match, error) {
	if query == "" {
		return nil, domain.NewError(domain.ErrValidationError, "search query must not be empty")
	}

	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:        s.cloneURL,
		Depth:      1,
		NoCheckout: true,
		Tags:       git.NoTags,
	})
	if err != nil {
		return nil, domain.Wrap(domain.ErrTransport, "clone for search", err)
	}

	hash := plumbing.NewHash(sha)
	if hash.IsZero() {
		resolved, resolveErr := repo.ResolveRevision(plumbing.Revision(sha))
		if resolveErr != nil {
			return nil, domain.Wrap(domain.ErrNotFound, fmt.Sprintf("resolve %s", sha), resolveErr)
		}
		hash = *resolved
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, domain.Wrap(domain.ErrNotFound, fmt.Sprintf("commit %s", sha), err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, domain.Wrap(domain.ErrTransport, "read tree", err)
	}

	var matches []Match
	walkErr := tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Size > 1<<20 || isBinaryBlob(f) {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return nil
		}
		matches = append(matches, grepFile(f.Name, content, query)...)
		return nil
	})
	if walkErr != nil {
		return nil, domain.Wrap(domain.ErrTransport, "walk tree", walkErr)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Line < matches[j].Line
	})
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches, nil
}

func isBinaryBlob(f *object.File) bool {
	isBinary, err := f.IsBinary()
	return err == nil && isBinary
}

func grepFile(path, content, query string) []Match {
	needle := strings.ToLower(query)
	var out []Match
	for i, line := range strings.Split(content, "\n") {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		snippet := strings.TrimSpace(line)
		if len(snippet) > maxSnippetLen {
			snippet = snippet[:maxSnippetLen] + "..."
		}
		out = append(out, Match{Path: path, Line: i + 1, Snippet: snippet})
	}
	return out
}
