// Package backend implements the Answer Service: it answers questions about
// CSV data through a language model and stores uploaded CSV files.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/dataghost/internal/answer"
	"github.com/JonMunkholm/dataghost/internal/core"
)

// defaultConfidence is reported with every answer; the provider gives no score.
const defaultConfidence = 0.85

// ErrEmptyQuestion rejects a blank question.
var ErrEmptyQuestion = errors.New("question is required")

// Info is the service banner reported by health endpoints.
type Info struct {
	Name        string
	Version     string
	Environment string
}

// Options configures a Service. Provider and Store are required.
type Options struct {
	Info     Info
	Provider Provider
	Store    *FileStore
	Index    FileIndex
	Cache    AnswerCache
	History  *History
	Parser   *core.Parser
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service is the Answer Service domain logic behind the HTTP handlers.
type Service struct {
	info     Info
	provider Provider
	store    *FileStore
	index    FileIndex
	cache    AnswerCache
	history  *History
	parser   *core.Parser
	logger   *slog.Logger
	now      func() time.Time
}

// NewService fills unset optional dependencies with in-memory defaults.
func NewService(opts Options) *Service {
	if opts.Provider == nil {
		panic("backend: Options.Provider is required")
	}
	if opts.Store == nil {
		panic("backend: Options.Store is required")
	}
	if opts.Index == nil {
		opts.Index = NewMemoryIndex()
	}
	if opts.Cache == nil {
		opts.Cache = NoopCache{}
	}
	if opts.History == nil {
		opts.History = NewHistory()
	}
	if opts.Parser == nil {
		opts.Parser = core.NewParser(core.ParseOptions{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		info:     opts.Info,
		provider: opts.Provider,
		store:    opts.Store,
		index:    opts.Index,
		cache:    opts.Cache,
		history:  opts.History,
		parser:   opts.Parser,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Ask answers a question, consulting the cache first. The answer is
// recorded in the session history when req.SessionID is set.
func (s *Service) Ask(ctx context.Context, req answer.QueryRequest) (answer.QueryResponse, error) {
	start := s.now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return answer.QueryResponse{}, ErrEmptyQuestion
	}

	key := CacheKey(s.provider.Name(), question, req.Context)
	text, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("answer cache unavailable", "cache", s.cache.Name(), "error", err)
	}

	if !hit {
		text, err = s.provider.Complete(ctx, Prompt{
			System: SystemPrompt,
			User:   BuildUserPrompt(question, req.Context),
		})
		if err != nil {
			return answer.QueryResponse{}, err
		}
		if err := s.cache.Set(ctx, key, text); err != nil {
			s.logger.Warn("answer cache write failed", "cache", s.cache.Name(), "error", err)
		}
	}

	s.history.Append(req.SessionID, QueryRecord{
		Question:  question,
		Answer:    text,
		Timestamp: s.now(),
	})

	elapsed := s.now().Sub(start).Seconds()
	confidence := defaultConfidence

	s.logger.Info("processed query",
		"provider", s.provider.Name(),
		"cached", hit,
		"question_tokens", core.EstimateTokens(question),
		"duration_ms", int64(elapsed*1000),
	)

	return answer.QueryResponse{
		Answer:         text,
		Confidence:     &confidence,
		Sources:        []string{},
		SessionID:      req.SessionID,
		ProcessingTime: &elapsed,
	}, nil
}

// SessionHistory returns the recorded queries for a session id.
func (s *Service) SessionHistory(sessionID string) []QueryRecord {
	return s.history.Get(sessionID)
}

// ClearSession drops a session's recorded queries.
func (s *Service) ClearSession(sessionID string) {
	s.history.Clear(sessionID)
}

// Upload stores a CSV file, parses it and indexes it. Nothing is kept when
// any step fails.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (answer.UploadResponse, error) {
	if filename == "" {
		return answer.UploadResponse{}, ErrNoFilename
	}
	if ext := FileExtension(filename); ext != "csv" {
		return answer.UploadResponse{}, fmt.Errorf("%w. Expected CSV, got %s", ErrInvalidFileType, strings.ToUpper(ext))
	}

	stored, err := s.store.Save(filename, r)
	if err != nil {
		return answer.UploadResponse{}, err
	}

	data, err := s.parseStored(stored.Path)
	if err != nil {
		s.discard(stored)
		return answer.UploadResponse{}, err
	}

	if err := s.index.Add(ctx, stored); err != nil {
		s.discard(stored)
		return answer.UploadResponse{}, err
	}

	s.logger.Info("stored upload",
		"file", filename,
		"file_id", stored.ID,
		"stored_as", stored.StoredFilename,
		"size", stored.Size,
		"rows", data.TotalRows,
	)

	summary := Summarize(data)
	return answer.UploadResponse{
		Success:     true,
		Message:     "File uploaded and processed successfully",
		FileID:      stored.ID,
		FileName:    filename,
		FileSize:    stored.Size,
		DataSummary: &summary,
	}, nil
}

func (s *Service) parseStored(path string) (core.CSVData, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.CSVData{}, fmt.Errorf("open stored file: %w", err)
	}
	defer f.Close()
	return s.parser.Parse(f)
}

func (s *Service) discard(f StoredFile) {
	if err := s.store.Delete(f.ID); err != nil && !errors.Is(err, ErrFileNotFound) {
		s.logger.Error("failed to remove stored file", "file_id", f.ID, "error", err)
	}
}

// ListFiles returns the indexed uploads, newest first.
func (s *Service) ListFiles(ctx context.Context) (answer.FileList, error) {
	files, err := s.index.List(ctx)
	if err != nil {
		return answer.FileList{}, err
	}

	list := answer.FileList{Files: make([]answer.FileInfo, 0, len(files))}
	for _, f := range files {
		list.Files = append(list.Files, answer.FileInfo{
			FileID:         f.ID,
			FileName:       f.OriginalName,
			StoredFilename: f.StoredFilename,
			FileSize:       f.Size,
			UploadedAt:     f.UploadedAt,
		})
	}
	list.TotalCount = len(list.Files)
	return list, nil
}

// DeleteFile removes a stored upload and its index entry. It returns
// ErrFileNotFound only when neither existed.
func (s *Service) DeleteFile(ctx context.Context, id string) error {
	storeErr := s.store.Delete(id)
	if storeErr != nil && !errors.Is(storeErr, ErrFileNotFound) {
		return storeErr
	}

	indexErr := s.index.Remove(ctx, id)
	if indexErr != nil && !errors.Is(indexErr, ErrFileNotFound) {
		return indexErr
	}

	if storeErr != nil && indexErr != nil {
		return storeErr
	}

	s.logger.Info("deleted upload", "file_id", id)
	return nil
}

// Restore indexes stored files the index does not know about, such as
// uploads kept on disk across a restart of a memory-indexed service.
func (s *Service) Restore(ctx context.Context) (int, error) {
	onDisk, err := s.store.Scan()
	if err != nil {
		return 0, err
	}
	indexed, err := s.index.List(ctx)
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(indexed))
	for _, f := range indexed {
		known[f.ID] = true
	}

	restored := 0
	for _, f := range onDisk {
		if known[f.ID] {
			continue
		}
		if err := s.index.Add(ctx, f); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// Health is the basic liveness report.
func (s *Service) Health() answer.HealthStatus {
	return answer.HealthStatus{
		Status:      answer.StatusHealthy,
		Service:     s.info.Name,
		Version:     s.info.Version,
		Environment: s.info.Environment,
	}
}

// DetailedHealth checks storage, the file index and the answer cache. Any
// unhealthy component degrades the overall status.
func (s *Service) DetailedHealth(ctx context.Context) answer.DetailedHealth {
	health := answer.DetailedHealth{
		HealthStatus: s.Health(),
		Components:   make(map[string]answer.ComponentHealth),
	}

	record := func(name string, details map[string]any, err error) {
		if err != nil {
			health.Components[name] = answer.ComponentHealth{Status: answer.StatusUnhealthy, Error: err.Error()}
			health.Status = answer.StatusDegraded
			return
		}
		health.Components[name] = answer.ComponentHealth{Status: answer.StatusHealthy, Details: details}
	}

	stats, err := s.store.Stats()
	record("file_storage", map[string]any{
		"total_files":   stats.TotalFiles,
		"total_size_mb": stats.TotalMB,
	}, err)

	record("file_index", map[string]any{"backend": s.index.Name()}, s.index.Ping(ctx))
	record("answer_cache", map[string]any{"backend": s.cache.Name()}, s.cache.Ping(ctx))

	health.Components["llm"] = answer.ComponentHealth{
		Status:  answer.StatusHealthy,
		Details: map[string]any{"model": s.provider.Name()},
	}

	return health
}
