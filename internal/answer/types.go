// Package answer holds the Answer Service wire types and an HTTP client
// for them. The gateway and the terminal client consume the service through
// Client; the backend serves the same types.
package answer

import "time"

// QueryRequest is the body of POST /ask.
type QueryRequest struct {
	Question  string `json:"question"`
	Context   string `json:"context,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse is the body returned by POST /ask. Only Answer is required.
type QueryResponse struct {
	Answer         string   `json:"answer"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	ProcessingTime *float64 `json:"processing_time,omitempty"`
}

// HealthStatus is the body of GET /health/.
type HealthStatus struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment,omitempty"`
}

// ComponentHealth describes one dependency in GET /health/detailed.
type ComponentHealth struct {
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// DetailedHealth is the body of GET /health/detailed.
type DetailedHealth struct {
	HealthStatus
	Components map[string]ComponentHealth `json:"components"`
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DataSummary describes an uploaded CSV.
type DataSummary struct {
	TotalRows    int      `json:"total_rows"`
	TotalColumns int      `json:"total_columns"`
	Headers      []string `json:"headers"`
	Summary      string   `json:"summary"`
}

// UploadResponse is the body returned by POST /upload.
type UploadResponse struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	FileID      string       `json:"file_id,omitempty"`
	FileName    string       `json:"file_name,omitempty"`
	FileSize    int64        `json:"file_size,omitempty"`
	DataSummary *DataSummary `json:"data_summary,omitempty"`
}

// FileInfo describes one stored upload.
type FileInfo struct {
	FileID         string    `json:"file_id"`
	FileName       string    `json:"file_name"`
	StoredFilename string    `json:"stored_filename"`
	FileSize       int64     `json:"file_size"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// FileList is the body of GET /upload/files.
type FileList struct {
	Files      []FileInfo `json:"files"`
	TotalCount int        `json:"total_count"`
}

// ErrorResponse is the body of every non-2xx backend response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}
