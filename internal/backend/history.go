package backend

import (
	"sync"
	"time"
)

// maxHistoryPerSession bounds the queries kept for one session id.
const maxHistoryPerSession = 100

// QueryRecord is one answered question.
type QueryRecord struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// History keeps answered questions per caller-supplied session id in memory.
type History struct {
	mu       sync.Mutex
	sessions map[string][]QueryRecord
}

// NewHistory returns an empty store.
func NewHistory() *History {
	return &History{sessions: make(map[string][]QueryRecord)}
}

// Append records a query, dropping the oldest past the per-session cap.
// An empty sessionID is not recorded.
func (h *History) Append(sessionID string, rec QueryRecord) {
	if sessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	records := append(h.sessions[sessionID], rec)
	if len(records) > maxHistoryPerSession {
		records = records[len(records)-maxHistoryPerSession:]
	}
	h.sessions[sessionID] = records
}

// Get returns a copy of the session's queries, oldest first.
func (h *History) Get(sessionID string) []QueryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := h.sessions[sessionID]
	out := make([]QueryRecord, len(records))
	copy(out, records)
	return out
}

// Clear drops a session's queries.
func (h *History) Clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// Len reports how many sessions have history.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
