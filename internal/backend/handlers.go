package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dataghost/internal/answer"
	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
)

// maxAskBody bounds a question request, data context included.
const maxAskBody = 32 << 20

// multipartOverhead is allowed on top of the file size limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// Error codes carried in answer.ErrorResponse.
const (
	codeValidation = "VALIDATION_ERROR"
	codeParse      = "PARSE_ERROR"
	codeNotFound   = "NOT_FOUND"
	codeTooLarge   = "FILE_TOO_LARGE"
	codeInternal   = "INTERNAL_ERROR"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Data Ghost Backend API",
		"version": s.cfg.Backend.Version,
		"health":  "/health/detailed",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Health())
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.DetailedHealth(r.Context()))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req answer.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody))
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, codeValidation, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	resp, err := s.service.Ask(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmptyQuestion) {
			respondError(w, r, http.StatusBadRequest, codeValidation, "Question is required")
			return
		}
		respondError(w, r, http.StatusInternalServerError, codeInternal, "Query processing failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"queries":    s.service.SessionHistory(id),
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s.service.ClearSession(id)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s cleared successfully", id),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Backend.MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(w, r, http.StatusRequestEntityTooLarge, codeTooLarge,
				fmt.Sprintf("File too large. Maximum size is %d bytes", s.cfg.Backend.MaxFileSize))
		case errors.Is(err, http.ErrMissingFile):
			respondError(w, r, http.StatusBadRequest, codeValidation, "No file provided")
		default:
			respondError(w, r, http.StatusBadRequest, codeValidation, fmt.Sprintf("Invalid upload: %v", err))
		}
		return
	}
	defer file.Close()

	resp, err := s.service.Upload(r.Context(), header.Filename, file)
	if err != nil {
		status, code := uploadStatus(err)
		msg := err.Error()
		switch status {
		case http.StatusInternalServerError:
			msg = "Upload failed: " + msg
		case http.StatusBadRequest:
			msg = capitalize(msg)
		}
		respondError(w, r, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// uploadStatus maps an upload failure to a status and error code.
func uploadStatus(err error) (int, string) {
	var parseErr *core.ParseError
	switch {
	case errors.Is(err, ErrFileTooLarge), errors.Is(err, core.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge, codeTooLarge
	case errors.Is(err, ErrNoFilename), errors.Is(err, ErrInvalidFileType), errors.Is(err, ErrEmptyFile):
		return http.StatusBadRequest, codeValidation
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, codeParse
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListFiles(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, codeInternal, "Failed to list files: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")

	if err := s.service.DeleteFile(r.Context(), id); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			respondError(w, r, http.StatusNotFound, codeNotFound, fmt.Sprintf("File %s not found", id))
			return
		}
		respondError(w, r, http.StatusInternalServerError, codeInternal, "Failed to delete file: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("File %s deleted successfully", id),
	})
}

// respondError logs and writes an answer.ErrorResponse.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	logger := logging.FromContext(r.Context())
	if status >= 500 {
		logger.Error("request failed", "status", status, "code", code, "detail", detail)
	} else {
		logger.Warn("request rejected", "status", status, "code", code, "detail", detail)
	}

	writeJSON(w, status, answer.ErrorResponse{
		Error:     http.StatusText(status),
		Detail:    detail,
		ErrorCode: code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
