package provider

import (
	"context"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/sandbox"
)

// sandboxGateway adapts *Gateway to sandbox.Gateway, translating between
// search.Match and sandbox.SearchMatch so the sandbox package does not need
// to import provider/search just to describe its own capability surface.
type sandboxGateway struct {
	gateway *Gateway
}

// AsSandboxGateway exposes g through the narrow interface the sandbox
// executor's capability interceptor depends on.
func AsSandboxGateway(g *Gateway) sandbox.Gateway {
	return sandboxGateway{gateway: g}
}

func (a sandboxGateway) FetchFile(ctx context.Context, p domain.Provider, repo domain.RepoRef, sha, path string) ([]byte, error) {
	return a.gateway.FetchFile(ctx, p, repo, sha, path)
}

func (a sandboxGateway) Search(ctx context.Context, p domain.Provider, repo domain.RepoRef, sha, query string) ([]sandbox.SearchMatch, error) {
	matches, err := a.gateway.Search(ctx, p, repo, sha, query)
	if err != nil {
		return nil, err
	}
	out := make([]sandbox.SearchMatch, len(matches))
	for i, m := range matches {
		out[i] = sandbox.SearchMatch{Path: m.Path, Line: m.Line, Snippet: m.Snippet}
	}
	return out, nil
}
