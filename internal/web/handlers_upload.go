package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
	"github.com/JonMunkholm/dataghost/internal/session"
)

// multipartOverhead is allowed on top of the file size limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// sseHeartbeat keeps idle event streams open through proxies.
const sseHeartbeat = 15 * time.Second

var (
	errNoFile           = errors.New("no file provided")
	errUnsupportedMedia = errors.New("unsupported media type: expected a CSV file")
)

// csvMediaTypes are the content types accepted for files without a .csv
// extension.
var csvMediaTypes = map[string]bool{
	"text/csv":                    true,
	"application/csv":             true,
	"text/comma-separated-values": true,
	"application/vnd.ms-excel":    true,
}

// uploadResponse is the body of a successful upload.
type uploadResponse struct {
	SessionID string        `json:"session_id"`
	FileName  string        `json:"file_name"`
	Headers   []string      `json:"headers"`
	TotalRows int           `json:"total_rows"`
	State     session.State `json:"state"`
}

// handleUpload ingests a CSV file locally and loads it into the session.
// The file is streamed through the parser; it is never buffered whole.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	c, r, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			err = fmt.Errorf("%w: %v", core.ErrInputTooLarge, err)
		case errors.Is(err, http.ErrMissingFile):
			err = errNoFile
		default:
			err = fmt.Errorf("%w: %v", errBadRequestBody, err)
		}
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	if !isCSVUpload(header) {
		s.respondError(w, r, fmt.Errorf("%w, got %q", errUnsupportedMedia, header.Filename))
		return
	}

	logger := logging.WithFields(r.Context(),
		"file", header.Filename,
		"size", header.Size,
	)
	logger.Info("ingest started")
	start := time.Now()

	data, err := s.sessions.Ingest(r.Context(), c.ID(), file)
	if err != nil {
		logger.Warn("ingest failed", "category", core.FailureCategory(err), "error", err)
		s.respondError(w, r, err)
		return
	}

	logger.Info("ingest completed",
		"rows", data.TotalRows,
		"columns", len(data.Headers),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, uploadResponse{
		SessionID: c.ID(),
		FileName:  header.Filename,
		Headers:   data.Headers,
		TotalRows: data.TotalRows,
		State:     c.State(),
	})
}

// isCSVUpload accepts a .csv extension or a CSV-like media type.
func isCSVUpload(header *multipart.FileHeader) bool {
	if strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	return err == nil && csvMediaTypes[strings.ToLower(mediaType)]
}

// handleSessionEvents streams session events via Server-Sent Events.
// Supports resumption via the Last-Event-ID header or lastEventId query
// parameter: the event id is the number of messages the client has seen,
// and any messages after it are replayed before live events.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	c, r, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	seen, _ := strconv.Atoi(lastEventIDStr)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Replay what a reconnecting client missed. Live message events at or
	// below the replayed count are skipped below.
	if lastEventIDStr != "" {
		msgs := c.Messages()
		seen = clampSeen(seen, len(msgs))
		for i := seen; i < len(msgs); i++ {
			m := msgs[i]
			writeSSE(w, session.Event{
				Type:      session.EventMessage,
				SessionID: c.ID(),
				State:     c.State(),
				Message:   &m,
				Index:     i,
			})
			seen = i + 1
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Channel closed - session disposed
				fmt.Fprintf(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			if ev.Type == session.EventMessage {
				if lastEventIDStr != "" && ev.Index < seen {
					continue
				}
				seen = ev.Index + 1
			}
			writeSSE(w, ev)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// clampSeen bounds a client-supplied resume id to the messages that exist.
// Negative ids replay everything.
func clampSeen(seen, total int) int {
	if seen < 0 {
		return 0
	}
	if seen > total {
		return total
	}
	return seen
}

// writeSSE writes one event frame. Message events carry an id so clients
// can resume.
func writeSSE(w http.ResponseWriter, ev session.Event) {
	data, _ := json.Marshal(ev)
	if ev.Type == session.EventMessage {
		fmt.Fprintf(w, "id: %d\n", ev.Index+1)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
