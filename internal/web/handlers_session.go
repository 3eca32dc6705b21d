package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
)

// maxJSONBody bounds question and draft bodies.
const maxJSONBody = 1 << 20

var errBadRequestBody = errors.New("invalid request body")

type questionRequest struct {
	Question string `json:"question"`
}

type draftRequest struct {
	Draft string `json:"draft"`
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}

// handleCreateSession opens a new empty conversation.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessions.Create()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, map[string]any{
		"session_id": c.ID(),
		"state":      c.State(),
	})
}

// handleGetSession returns the session snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	c, r, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, c.Snapshot())
}

// handleDeleteSession disposes the session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, id := withSession(r)
	if err := s.sessions.Delete(id); err != nil {
		s.respondError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, map[string]string{"status": "disposed"})
}

// handleListMessages returns the conversation so far.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	c, r, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	writeJSON(w, map[string]any{
		"session_id": c.ID(),
		"state":      c.State(),
		"messages":   c.Messages(),
	})
}

// handleSubmitQuestion accepts a question and answers 202; the reply
// arrives on the event stream.
func (s *Server) handleSubmitQuestion(w http.ResponseWriter, r *http.Request) {
	c, r, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := c.SubmitQuestion(req.Question); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("question accepted",
		"tokens", core.EstimateTokens(req.Question),
	)

	writeJSONStatus(w, http.StatusAccepted, map[string]any{
		"session_id":    c.ID(),
		"state":         c.State(),
		"message_count": len(c.Messages()),
	})
}

// handleSetDraft stores the unsent input and echoes its token estimate.
func (s *Server) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	c, r, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req draftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	c.SetDraft(req.Draft)

	writeJSON(w, map[string]any{
		"draft":  req.Draft,
		"tokens": core.EstimateTokens(req.Draft),
	})
}

// tokenEstimate is the body of GET /api/tokens.
type tokenEstimate struct {
	Tokens        int     `json:"tokens"`
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// handleTokens estimates the token count of ?text= for display.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	model := r.URL.Query().Get("model")
	if model == "" {
		model = s.cfg.Backend.OpenAIModel
	}

	tokens := core.EstimateTokens(text)
	writeJSON(w, tokenEstimate{
		Tokens:        tokens,
		Model:         model,
		EstimatedCost: core.EstimateCost(tokens, core.PricePer1K(model)),
	})
}
