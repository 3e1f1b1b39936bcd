// Package storage handles the server-local uploads area.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	cherrors "chat-relay/errors"
)

// UploadStore writes received file bytes under collision-safe names.
// Name resolution and file creation happen under one lock with O_EXCL, so
// two concurrent uploads of "report.txt" get "report.txt" and
// "report_1.txt" rather than racing for the same path.
type UploadStore struct {
	mu  sync.Mutex
	dir string
	log *slog.Logger
}

func NewUploadStore(dir string, log *slog.Logger) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &UploadStore{dir: dir, log: log}, nil
}

// Save stores data under a name derived from filename and returns the name
// actually used. Existing files are never overwritten: on collision an
// incrementing "_1", "_2", ... suffix is inserted before the extension.
func (s *UploadStore) Save(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", cherrors.ErrEmptyFilePayload
	}
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "unknown_file"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := base
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for counter := 1; ; counter++ {
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if _, werr := f.Write(data); werr != nil {
				_ = f.Close()
				return "", fmt.Errorf("write %s: %w", name, werr)
			}
			if cerr := f.Close(); cerr != nil {
				return "", fmt.Errorf("close %s: %w", name, cerr)
			}
			s.log.Info("Stored upload",
				"name", name,
				"bytes", len(data),
				"mime", mimetype.Detect(data).String())
			return name, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		name = fmt.Sprintf("%s_%d%s", stem, counter, ext)
	}
}

// Dir returns the uploads directory path.
func (s *UploadStore) Dir() string {
	return s.dir
}
