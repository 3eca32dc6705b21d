package backend

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxFilenameLen caps a sanitized filename, extension included.
const maxFilenameLen = 255

// storedTimeLayout prefixes every stored filename.
const storedTimeLayout = "20060102_150405"

var (
	ErrEmptyFile       = errors.New("empty file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileNotFound    = errors.New("file not found")
	ErrNoFilename      = errors.New("no filename provided")
	ErrInvalidFileType = errors.New("invalid file type")
)

// StoredFile describes a file written by FileStore.Save.
type StoredFile struct {
	ID             string
	OriginalName   string
	StoredFilename string
	Path           string
	Size           int64
	UploadedAt     time.Time
}

// StorageStats summarizes the upload directory.
type StorageStats struct {
	Dir        string  `json:"upload_directory"`
	TotalFiles int     `json:"total_files"`
	TotalBytes int64   `json:"total_size_bytes"`
	TotalMB    float64 `json:"total_size_mb"`
}

// FileStore keeps uploaded files in a single directory. Stored names are
// "<YYYYMMDD_HHMMSS>_<uuid><ext>" so the id can be recovered from the name.
type FileStore struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

// NewFileStore creates dir if needed. maxSize <= 0 disables the size limit.
func NewFileStore(dir string, maxSize int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir, maxSize: maxSize, now: time.Now}, nil
}

// Dir returns the upload directory.
func (s *FileStore) Dir() string { return s.dir }

// Save streams r into a new stored file. A partial file is removed on error.
func (s *FileStore) Save(originalName string, r io.Reader) (StoredFile, error) {
	if originalName == "" {
		return StoredFile{}, ErrNoFilename
	}

	id := uuid.NewString()
	now := s.now()
	ext := filepath.Ext(SanitizeFilename(originalName))
	name := fmt.Sprintf("%s_%s%s", now.Format(storedTimeLayout), id, ext)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create stored file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		err = fmt.Errorf("write stored file: %w", err)
	case n == 0:
		err = ErrEmptyFile
	case s.maxSize > 0 && n > s.maxSize:
		err = fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxSize)
	}
	if err != nil {
		os.Remove(path)
		return StoredFile{}, err
	}

	return StoredFile{
		ID:             id,
		OriginalName:   originalName,
		StoredFilename: name,
		Path:           path,
		Size:           n,
		UploadedAt:     now,
	}, nil
}

// Path finds the stored file for id.
func (s *FileStore) Path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*_"+id+".*"))
	if err != nil {
		return "", fmt.Errorf("find stored file: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return matches[0], nil
}

// Delete removes the stored file for id.
func (s *FileStore) Delete(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, id)
		}
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// Scan lists the stored files on disk. Original names are not kept on disk,
// so OriginalName is the stored name.
func (s *FileStore) Scan() ([]StoredFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}

	var files []StoredFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id, ok := storedID(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, StoredFile{
			ID:             id,
			OriginalName:   e.Name(),
			StoredFilename: e.Name(),
			Path:           filepath.Join(s.dir, e.Name()),
			Size:           info.Size(),
			UploadedAt:     info.ModTime(),
		})
	}
	return files, nil
}

// Stats totals the regular files in the upload directory.
func (s *FileStore) Stats() (StorageStats, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return StorageStats{}, fmt.Errorf("read upload dir: %w", err)
	}

	stats := StorageStats{Dir: s.dir}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.TotalFiles++
		stats.TotalBytes += info.Size()
	}
	stats.TotalMB = math.Round(float64(stats.TotalBytes)/(1024*1024)*100) / 100
	return stats, nil
}

// storedID extracts the uuid from a stored filename.
func storedID(name string) (string, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) < len(storedTimeLayout)+1+36 {
		return "", false
	}
	id := base[len(base)-36:]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// SanitizeFilename replaces characters unsafe in filenames with "_" and
// caps the length, keeping the extension.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)

	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) >= maxFilenameLen {
			ext = ""
		}
		name = name[:maxFilenameLen-len(ext)] + ext
	}
	return name
}

// FileExtension returns the lowercase extension of name without the dot.
func FileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
