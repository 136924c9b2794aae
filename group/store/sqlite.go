package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/wricardo/groupcart/group/session"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

const (
	sqliteFile        = "groupcart.db"
	sqliteBusyTimeout = 5000 // milliseconds
	sqliteMaxConns    = 10
)

// SQLite stores sessions as JSON documents in a SQLite database, with a
// membership side table for participant lookups.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database under dataDir.
func OpenSQLite(ctx context.Context, dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		filepath.Join(dataDir, sqliteFile), sqliteBusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(sqliteMaxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (st *SQLite) Create(ctx context.Context, s *session.Session) error {
	if err := checkNew(s); err != nil {
		return err
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return st.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO group_sessions (code, status, created_at, version, doc) VALUES (?, ?, ?, ?, ?)`,
			s.Code, string(s.Status), s.CreatedAt.UnixNano(), s.Version, string(doc))
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return replaceMembersSQLite(ctx, tx, s)
	})
}

func (st *SQLite) Get(ctx context.Context, code string) (*session.Session, error) {
	var doc string
	err := st.db.QueryRowContext(ctx,
		`SELECT doc FROM group_sessions WHERE code = ?`, session.NormalizeCode(code)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSession([]byte(doc))
}

func (st *SQLite) Exists(ctx context.Context, code string) (bool, error) {
	var n int
	err := st.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM group_sessions WHERE code = ?`, session.NormalizeCode(code)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return n > 0, nil
}

func (st *SQLite) ActiveForParticipant(ctx context.Context, userID string) (*session.Session, error) {
	var doc string
	err := st.db.QueryRowContext(ctx, `
		SELECT s.doc FROM group_sessions s
		JOIN group_session_members m ON m.code = s.code
		WHERE m.user_id = ? AND m.status = ? AND s.status = ?
		ORDER BY s.created_at DESC
		LIMIT 1`,
		userID, string(session.ParticipantActive), string(session.StatusActive)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return decodeSession([]byte(doc))
}

func (st *SQLite) Save(ctx context.Context, s *session.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	next := s.Clone()
	next.Code = session.NormalizeCode(next.Code)
	next.Version = s.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = st.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE group_sessions SET status = ?, version = ?, doc = ? WHERE code = ? AND version = ?`,
			string(next.Status), next.Version, string(doc), next.Code, s.Version)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM group_sessions WHERE code = ?`, next.Code).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check session: %w", err)
			}
			if exists == 0 {
				return session.ErrSessionNotFound
			}
			return ErrVersionConflict
		}
		return replaceMembersSQLite(ctx, tx, next)
	})
	if err != nil {
		return err
	}
	s.Version = next.Version
	return nil
}

func (st *SQLite) Update(ctx context.Context, code string, fn UpdateFunc) (*session.Session, error) {
	return updateCAS(ctx, st, code, fn)
}

func (st *SQLite) Delete(ctx context.Context, code string) error {
	code = session.NormalizeCode(code)
	return st.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM group_sessions WHERE code = ?`, code)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return session.ErrSessionNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_session_members WHERE code = ?`, code); err != nil {
			return fmt.Errorf("failed to delete members: %w", err)
		}
		return nil
	})
}

func (st *SQLite) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int64
	err := st.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM group_session_members
			WHERE code IN (SELECT code FROM group_sessions WHERE created_at < ?)`, cutoff.UnixNano()); err != nil {
			return fmt.Errorf("failed to delete expired members: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM group_sessions WHERE created_at < ?`, cutoff.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to delete expired sessions: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return int(removed), err
}

func (st *SQLite) Close() error {
	return st.db.Close()
}

func (st *SQLite) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func replaceMembersSQLite(ctx context.Context, tx *sql.Tx, s *session.Session) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_session_members WHERE code = ?`, s.Code); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	for _, p := range s.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_session_members (code, user_id, status) VALUES (?, ?, ?)`,
			s.Code, p.UserID, string(p.Status)); err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

func decodeSession(doc []byte) (*session.Session, error) {
	var s session.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

var _ Store = (*SQLite)(nil)
