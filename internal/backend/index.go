package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FileIndex records stored uploads with their original names.
type FileIndex interface {
	// Name identifies the backend in health output.
	Name() string
	Add(ctx context.Context, f StoredFile) error
	// List returns files newest first.
	List(ctx context.Context) ([]StoredFile, error)
	// Remove returns ErrFileNotFound when id is not indexed.
	Remove(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// MemoryIndex is a process-local FileIndex.
type MemoryIndex struct {
	mu    sync.RWMutex
	files map[string]StoredFile
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{files: make(map[string]StoredFile)}
}

func (m *MemoryIndex) Name() string { return "memory" }

func (m *MemoryIndex) Add(_ context.Context, f StoredFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.ID] = f
	return nil
}

func (m *MemoryIndex) List(_ context.Context) ([]StoredFile, error) {
	m.mu.RLock()
	files := make([]StoredFile, 0, len(m.files))
	for _, f := range m.files {
		files = append(files, f)
	}
	m.mu.RUnlock()

	sortNewestFirst(files)
	return files, nil
}

func (m *MemoryIndex) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	delete(m.files, id)
	return nil
}

func (m *MemoryIndex) Ping(context.Context) error { return nil }

func sortNewestFirst(files []StoredFile) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})
}

// PostgresIndex keeps the file index in the uploaded_files table.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex creates the table if it does not exist.
func NewPostgresIndex(ctx context.Context, pool *pgxpool.Pool) (*PostgresIndex, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS uploaded_files (
			id UUID PRIMARY KEY,
			original_filename TEXT NOT NULL,
			stored_filename TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_uploaded_files_uploaded_at ON uploaded_files(uploaded_at DESC)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return &PostgresIndex{pool: pool}, nil
}

func (p *PostgresIndex) Name() string { return "postgres" }

func (p *PostgresIndex) Add(ctx context.Context, f StoredFile) error {
	query := `INSERT INTO uploaded_files (id, original_filename, stored_filename, file_path, file_size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	if _, err := p.pool.Exec(ctx, query,
		f.ID, f.OriginalName, f.StoredFilename, f.Path, f.Size, f.UploadedAt,
	); err != nil {
		return fmt.Errorf("index file: %w", err)
	}
	return nil
}

func (p *PostgresIndex) List(ctx context.Context) ([]StoredFile, error) {
	query := `SELECT id::text, original_filename, stored_filename, file_path, file_size, uploaded_at
		FROM uploaded_files ORDER BY uploaded_at DESC, id`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []StoredFile
	for rows.Next() {
		var f StoredFile
		if err := rows.Scan(&f.ID, &f.OriginalName, &f.StoredFilename, &f.Path, &f.Size, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (p *PostgresIndex) Remove(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM uploaded_files WHERE id::text = $1", id)
	if err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return nil
}

func (p *PostgresIndex) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
