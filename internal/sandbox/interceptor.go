package sandbox

import (
	"context"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// MaxLLMQueriesPerIteration bounds nested llm_query calls per iteration.
const MaxLLMQueriesPerIteration = 4

// Gateway is the subset of the Provider Gateway (C1) the sandbox needs:
// fetch_file and search, already routed through the C2 cache.
type Gateway interface {
	FetchFile(ctx context.Context, provider domain.Provider, repo domain.RepoRef, sha, path string) ([]byte, error)
	Search(ctx context.Context, provider domain.Provider, repo domain.RepoRef, sha, query string) ([]SearchMatch, error)
}

// SearchMatch mirrors provider/search.Match without importing that package
// directly, keeping the sandbox's Gateway dependency narrow.
type SearchMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

// LLMQuery is the single-shot, tool-free nested call the sandbox's
// llm_query capability forwards to; recursion depth is statically one.
// The callback itself must not have sandbox/capability access — it is a
// plain prompt-in, text-out function the RLM controller supplies.
type LLMQuery func(ctx context.Context, prompt, system string) (string, error)

// Interceptor is the only channel out of the guest runtime: it mediates
// fetch_file/search against the provider gateway and llm_query against a
// single-shot callback, and drops every capability call received after
// answer(...) has fired (B1).
type Interceptor struct {
	ctx      context.Context
	gateway  Gateway
	provider domain.Provider
	repo     domain.RepoRef
	baseSHA  string
	headSHA  string
	llmQuery LLMQuery

	queries atomic.Int32
	done    atomic.Bool
}

// NewInterceptor builds an Interceptor scoped to one sandbox execution.
func NewInterceptor(ctx context.Context, gateway Gateway, provider domain.Provider, repo domain.RepoRef, baseSHA, headSHA string, llmQuery LLMQuery) *Interceptor {
	return &Interceptor{
		ctx: ctx, gateway: gateway, provider: provider, repo: repo,
		baseSHA: baseSHA, headSHA: headSHA, llmQuery: llmQuery,
	}
}

// Register installs fetch_file, search, llm_query, and answer on runtime's
// global object. onAnswer is invoked exactly once, the first time answer()
// is called; every capability call after that is a silent no-op (B1).
func (ic *Interceptor) Register(runtime *goja.Runtime, onAnswer func([]domain.AnswerBlock)) {
	_ = runtime.Set("fetch_file", func(call goja.FunctionCall) goja.Value {
		if ic.done.Load() {
			return goja.Undefined()
		}
		path := call.Argument(0).String()
		sha := ic.resolveSHA(call.Argument(1))

		content, err := ic.gateway.FetchFile(ic.ctx, ic.provider, ic.repo, sha, path)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		return runtime.ToValue(string(content))
	})

	_ = runtime.Set("search", func(call goja.FunctionCall) goja.Value {
		if ic.done.Load() {
			return goja.Undefined()
		}
		query := call.Argument(0).String()
		sha := ic.resolveSHA(call.Argument(1))

		matches, err := ic.gateway.Search(ic.ctx, ic.provider, ic.repo, sha, query)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		return runtime.ToValue(matches)
	})

	_ = runtime.Set("llm_query", func(call goja.FunctionCall) goja.Value {
		if ic.done.Load() {
			return goja.Undefined()
		}
		if ic.queries.Add(1) > MaxLLMQueriesPerIteration {
			panic(runtime.NewGoError(domain.NewError(domain.ErrBudgetExceeded, "llm_query quota exceeded for this iteration")))
		}

		prompt := call.Argument(0).String()
		system := ""
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Argument(1)) {
			system = call.Argument(1).String()
		}

		text, err := ic.llmQuery(ic.ctx, prompt, system)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		return runtime.ToValue(text)
	})

	_ = runtime.Set("answer", func(call goja.FunctionCall) goja.Value {
		if ic.done.Swap(true) {
			return goja.Undefined()
		}
		blocks := decodeAnswerBlocks(call.Argument(0))
		onAnswer(blocks)
		return goja.Undefined()
	})
}

func (ic *Interceptor) resolveSHA(arg goja.Value) string {
	if arg == nil || goja.IsUndefined(arg) {
		return ic.headSHA
	}
	sha := arg.String()
	if sha == "" {
		return ic.headSHA
	}
	return sha
}

func decodeAnswerBlocks(arg goja.Value) []domain.AnswerBlock {
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) {
		return nil
	}
	raw := arg.Export()
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	blocks := make([]domain.AnswerBlock, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		block := domain.AnswerBlock{
			Type:    domain.AnswerBlockType(stringField(m, "type")),
			Content: stringField(m, "content"),
		}
		if lang := stringField(m, "language"); lang != "" {
			block.Language = lang
		}
		if block.Type == "" {
			block.Type = domain.BlockMarkdown
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
