package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

const (
	fileMode    = 0o600
	dirMode     = 0o755
	lockSuffix  = ".lock"
	tempPattern = ".apikeys-*.tmp"
)

// FileStore keeps every record in one pretty-printed JSON document.
//
// Writers hold an exclusive flock on a sidecar "<path>.lock" file for the
// whole read-modify-write and replace the document with an atomic rename,
// so several processes may share one file. A missing or undecodable
// document reads as empty.
type FileStore struct {
	path   string
	logger observability.Logger
	mu     sync.RWMutex
}

// FileOption is a functional option for FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the logger for the file store.
func WithFileLogger(logger observability.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// NewFileStore creates a store backed by the JSON document at path.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}

	s := &FileStore{
		path:   filepath.Clean(path),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the document path.
func (s *FileStore) Path() string {
	return s.path
}

// GetAll implements apikey.Store.
func (s *FileStore) GetAll(_ context.Context) (map[string]*apikey.Record, error) {
	var out map[string]*apikey.Record
	err := s.withLock(unix.LOCK_SH, func() error {
		var err error
		out, err = s.load()
		return err
	})
	return out, err
}

// SetAll implements apikey.Store.
func (s *FileStore) SetAll(_ context.Context, records map[string]*apikey.Record) error {
	return s.withLock(unix.LOCK_EX, func() error {
		return s.save(records)
	})
}

// Get implements apikey.Store.
func (s *FileStore) Get(ctx context.Context, keyID string) (*apikey.Record, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	record, ok := all[keyID]
	if !ok {
		return nil, apikey.ErrRecordNotFound
	}
	return record, nil
}

// Set implements apikey.Store.
func (s *FileStore) Set(_ context.Context, keyID string, record *apikey.Record) error {
	if record == nil {
		return errors.New("record is required")
	}
	return s.withLock(unix.LOCK_EX, func() error {
		all, err := s.load()
		if err != nil {
			return err
		}
		all[keyID] = record
		return s.save(all)
	})
}

// Delete implements apikey.Store.
func (s *FileStore) Delete(_ context.Context, keyID string) (bool, error) {
	existed := false
	err := s.withLock(unix.LOCK_EX, func() error {
		all, err := s.load()
		if err != nil {
			return err
		}
		if _, existed = all[keyID]; !existed {
			return nil
		}
		delete(all, keyID)
		return s.save(all)
	})
	return existed, err
}

// withLock runs fn while holding both the in-process mutex and a flock of
// the given mode on the sidecar lock file.
func (s *FileStore) withLock(how int, fn func() error) error {
	if how == unix.LOCK_EX {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", s.path, err)
	}

	lock, err := os.OpenFile(s.path+lockSuffix, os.O_CREATE|os.O_RDWR, fileMode)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lock.Close()

	fd := int(lock.Fd()) //nolint:gosec // file descriptors fit in int
	if err := unix.Flock(fd, how); err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.path, err)
	}
	defer func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
	}()

	return fn()
}

// load reads the document. Must be called under withLock.
func (s *FileStore) load() (map[string]*apikey.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*apikey.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("API key file is not a JSON object, treating as empty",
			observability.String("path", s.path),
			observability.Error(err),
		)
		return map[string]*apikey.Record{}, nil
	}

	docs := make(map[string][]byte, len(raw))
	for id, doc := range raw {
		docs[id] = doc
	}
	return decodeEach(docs, s.logger), nil
}

// save atomically replaces the document. Must be called under an
// exclusive withLock.
func (s *FileStore) save(records map[string]*apikey.Record) error {
	clean := make(map[string]*apikey.Record, len(records))
	for id, r := range records {
		if r != nil {
			clean[id] = r
		}
	}

	data, err := json.MarshalIndent(clean, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode API keys: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

var _ apikey.Store = (*FileStore)(nil)
