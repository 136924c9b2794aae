// Package store persists group-order sessions.
//
// Every backend exposes the same contract: codes are unique and looked up
// case-insensitively, Update is an atomic read-modify-write, and Save is a
// full-document replace guarded by the document version.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/groupcart/group/session"
)

var (
	ErrDuplicateCode   = fmt.Errorf("%w: session code already in use", session.ErrConflict)
	ErrVersionConflict = fmt.Errorf("%w: session was modified concurrently", session.ErrConflict)

	// ErrNoChange may be returned by an UpdateFunc to skip the write. Update
	// then returns the current document and a nil error.
	ErrNoChange = errors.New("no change")
)

// UpdateFunc mutates a private copy of a session.
type UpdateFunc func(s *session.Session) error

// Store is the persistence contract used by the group service.
type Store interface {
	// Create inserts a new session. It fails with ErrDuplicateCode when the code is taken.
	Create(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, code string) (*session.Session, error)
	Exists(ctx context.Context, code string) (bool, error)
	// ActiveForParticipant returns the newest active session in which userID
	// is an active participant. Both left and kicked entries are skipped, so a
	// kicked user has no active session even though they are not "left".
	// Returns session.ErrSessionNotFound when there is none.
	ActiveForParticipant(ctx context.Context, userID string) (*session.Session, error)
	// Save replaces the stored document. s.Version must match the stored
	// version; on success it is advanced.
	Save(ctx context.Context, s *session.Session) error
	Update(ctx context.Context, code string, fn UpdateFunc) (*session.Session, error)
	Delete(ctx context.Context, code string) error
	// DeleteCreatedBefore removes every session created before cutoff, whatever its status.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Driver      string
	DataDir     string
	DatabaseURL string
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		return NewFile(opts.DataDir)
	case DriverSQLite:
		return OpenSQLite(ctx, opts.DataDir)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
