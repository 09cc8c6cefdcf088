package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/rlmlabs/rlmreview/internal/cache"
	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/rlm"
)

type loadPRRequest struct {
	PRUrl string `json:"prUrl"`
}

// handleLoadPR implements POST /api/github/load_pr: {prUrl} -> PRInfo. It
// creates the ReviewSession the other endpoints address by reviewId.
func (s *Server) handleLoadPR(w http.ResponseWriter, r *http.Request) {
	var req loadPRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Wrap(domain.ErrValidationError, "invalid request body", err))
		return
	}

	pr, err := s.gateway.ResolvePR(r.Context(), req.PRUrl)
	if err != nil {
		writeError(w, err)
		return
	}

	session := &domain.ReviewSession{
		ReviewID: uuid.NewString(),
		PRInfo:   pr,
		Status:   domain.StatusRunning,
	}
	s.sessions.put(session)

	writeJSON(w, http.StatusOK, pr)
}

type fileContent struct {
	Name     string `json:"name"`
	Contents string `json:"contents"`
	CacheKey string `json:"cacheKey"`
}

type fileResponse struct {
	OldFile *fileContent `json:"oldFile"`
	NewFile *fileContent `json:"newFile"`
}

// handleFile implements GET /api/github/file?reviewId&path: {oldFile,
// newFile} where each is {name, contents, cacheKey} | null.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	reviewID := r.URL.Query().Get("reviewId")
	path := r.URL.Query().Get("path")

	session, ok := s.sessions.get(reviewID)
	if !ok {
		writeError(w, domain.NewError(domain.ErrNotFound, "unknown reviewId"))
		return
	}
	if !session.PRInfo.HasFile(path) {
		writeError(w, domain.NewError(domain.ErrNotFound, "path not in pr_info.files"))
		return
	}

	resp := fileResponse{
		OldFile: s.loadSide(r, session, path, session.PRInfo.BaseSHA),
		NewFile: s.loadSide(r, session, path, session.PRInfo.HeadSHA),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadSide(r *http.Request, session *domain.ReviewSession, path, sha string) *fileContent {
	content, err := s.gateway.FetchFile(r.Context(), session.PRInfo.Provider, session.PRInfo.Repo, sha, path)
	if err != nil {
		return nil
	}
	return &fileContent{
		Name:     path,
		Contents: string(content),
		CacheKey: cache.Key(string(session.PRInfo.Provider), repoKey(session.PRInfo.Repo), sha, path),
	}
}

func repoKey(repo domain.RepoRef) string {
	if repo.Owner == "" {
		return repo.Name
	}
	return repo.Owner + "/" + repo.Name
}

// handleReview implements POST /api/diff/review?reviewId: {issues:
// [ReviewIssue]}.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	reviewID := r.URL.Query().Get("reviewId")
	session, ok := s.sessions.get(reviewID)
	if !ok {
		writeError(w, domain.NewError(domain.ErrNotFound, "unknown reviewId"))
		return
	}

	report, err := s.pipeline.ReviewSession(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type askRequest struct {
	ReviewID     string            `json:"reviewId"`
	Question     string            `json:"question"`
	Conversation []string          `json:"conversation"`
	Selection    *domain.Selection `json:"selection"`
}

type sseFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// handleAskStream implements POST /api/diff/ask/stream: {reviewId,
// question, conversation, selection} -> SSE frames {type, data}. The
// stream always ends with a type:"end" frame.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Wrap(domain.ErrValidationError, "invalid request body", err))
		return
	}

	session, ok := s.sessions.get(req.ReviewID)
	if !ok {
		writeError(w, domain.NewError(domain.ErrNotFound, "unknown reviewId"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	events, err := s.controller.Ask(r.Context(), session, req.Question, req.Conversation, req.Selection, 0, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	for ev := range events {
		writeSSEFrame(bw, eventToFrame(ev))
		flusher.Flush()
	}
}

func eventToFrame(ev rlm.Event) sseFrame {
	switch ev.Type {
	case rlm.EventIteration:
		return sseFrame{Type: string(ev.Type), Data: ev.Iteration}
	case rlm.EventBlock:
		return sseFrame{Type: string(ev.Type), Data: ev.Block}
	case rlm.EventError:
		return sseFrame{Type: string(ev.Type), Data: map[string]string{"error": ev.Error}}
	case rlm.EventEnd:
		return sseFrame{Type: string(ev.Type), Data: map[string]string{"status": string(ev.Status), "error": ev.Error}}
	default:
		return sseFrame{Type: string(ev.Type)}
	}
}

// writeSSEFrame writes one "data: <json>\n\n" frame of the streaming wire
// format.
func writeSSEFrame(w *bufio.Writer, frame sseFrame) {
	encoded, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(encoded)
	_, _ = w.Write([]byte("\n\n"))
	_ = w.Flush()
}

type suggestionsRequest struct {
	ReviewID     string   `json:"reviewId"`
	Conversation []string `json:"conversation"`
	LastAnswer   string   `json:"lastAnswer"`
}

type suggestionsResponseBody struct {
	Suggestions []string `json:"suggestions"`
}

// handleSuggestions implements POST /api/suggestions: {reviewId,
// conversation, lastAnswer} -> {suggestions:[string]}.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Wrap(domain.ErrValidationError, "invalid request body", err))
		return
	}
	if _, ok := s.sessions.get(req.ReviewID); !ok {
		writeError(w, domain.NewError(domain.ErrNotFound, "unknown reviewId"))
		return
	}

	conversation := req.Conversation
	if req.LastAnswer != "" {
		conversation = append(append([]string{}, conversation...), req.LastAnswer)
	}

	suggestions, err := s.suggester.Suggest(r.Context(), conversation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestionsResponseBody{Suggestions: suggestions})
}
