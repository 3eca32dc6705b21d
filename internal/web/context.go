package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dataghost/internal/logging"
	"github.com/JonMunkholm/dataghost/internal/session"
)

// withSession tags the request context with the session id from the URL so
// every log line for the request carries it.
func withSession(r *http.Request) (context.Context, string) {
	id := chi.URLParam(r, "sessionID")
	return logging.WithSessionID(r.Context(), id), id
}

// lookupSession resolves the {sessionID} URL parameter. On failure the error
// response has already been written.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Controller, *http.Request, bool) {
	ctx, id := withSession(r)
	r = r.WithContext(ctx)

	c, err := s.sessions.Get(id)
	if err != nil {
		s.respondError(w, r, err)
		return nil, r, false
	}
	return c, r, true
}
