package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/groupcart/group/session"
)

// File stores one JSON document per session in a directory. A single process
// owns the directory; the mutex serialises writers within it.
type File struct {
	dir string
	mu  sync.RWMutex
}

// NewFile creates a file-backed store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("sessions directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) Create(ctx context.Context, s *session.Session) error {
	if err := checkNew(s); err != nil {
		return err
	}
	if !safeName(s.Code) {
		return fmt.Errorf("%w: code %q is not a valid file name", session.ErrInvalidInput, s.Code)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path(s.Code), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to create session file: %w", err)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		os.Remove(f.path(s.Code))
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return fh.Close()
}

func (f *File) Get(ctx context.Context, code string) (*session.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.load(session.NormalizeCode(code))
}

func (f *File) Exists(ctx context.Context, code string) (bool, error) {
	code = session.NormalizeCode(code)
	if !safeName(code) {
		return false, nil
	}
	_, err := os.Stat(f.path(code))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat session file: %w", err)
	}
}

func (f *File) ActiveForParticipant(ctx context.Context, userID string) (*session.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	all, err := f.loadAll()
	if err != nil {
		return nil, err
	}
	var newest *session.Session
	for _, s := range all {
		if activeMember(s, userID) && (newest == nil || s.CreatedAt.After(newest.CreatedAt)) {
			newest = s
		}
	}
	if newest == nil {
		return nil, session.ErrSessionNotFound
	}
	return newest, nil
}

func (f *File) Save(ctx context.Context, s *session.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	code := session.NormalizeCode(s.Code)
	cur, err := f.load(code)
	if err != nil {
		return err
	}
	if cur.Version != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	if err := f.write(s); err != nil {
		s.Version--
		return err
	}
	return nil
}

func (f *File) Update(ctx context.Context, code string, fn UpdateFunc) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.load(session.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	next, changed, err := apply(cur, fn)
	if err != nil || !changed {
		return next, err
	}
	next.Version++
	if err := f.write(next); err != nil {
		return nil, err
	}
	return next, nil
}

func (f *File) Delete(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	code = session.NormalizeCode(code)
	if !safeName(code) {
		return session.ErrSessionNotFound
	}
	err := os.Remove(f.path(code))
	if errors.Is(err, os.ErrNotExist) {
		return session.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (f *File) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.loadAll()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range all {
		if !s.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.path(s.Code)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove session file: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (f *File) Close() error { return nil }

func (f *File) load(code string) (*session.Session, error) {
	if !safeName(code) {
		return nil, session.ErrSessionNotFound
	}
	data, err := os.ReadFile(f.path(code))
	if errors.Is(err, os.ErrNotExist) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", code, err)
	}
	return &s, nil
}

func (f *File) loadAll() ([]*session.Session, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}
	var out []*session.Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		s, err := f.load(strings.TrimSuffix(name, ".json"))
		if errors.Is(err, session.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// write replaces the document via a temp file and rename so readers never see a partial file.
func (f *File) write(s *session.Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, s.Code+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(s.Code)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// safeName keeps lookups inside the sessions directory.
func safeName(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (f *File) path(code string) string {
	return filepath.Join(f.dir, code+".json")
}

var _ Store = (*File)(nil)
