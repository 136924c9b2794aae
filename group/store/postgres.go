package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wricardo/groupcart/group/session"
)

//go:embed schema/postgres.sql
var postgresSchema string

// Postgres stores sessions as JSONB documents. Update locks the row with
// SELECT ... FOR UPDATE so concurrent writers queue instead of retrying.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and runs migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required for the postgres store")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	st := &Postgres{pool: pool}
	if err := st.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return st, nil
}

// RunMigrations creates the tables if they do not exist.
func (st *Postgres) RunMigrations(ctx context.Context) error {
	_, err := st.pool.Exec(ctx, postgresSchema)
	return err
}

func (st *Postgres) Create(ctx context.Context, s *session.Session) error {
	if err := checkNew(s); err != nil {
		return err
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tx, err := st.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO group_sessions (code, status, created_at, version, doc) VALUES ($1, $2, $3, $4, $5)`,
		s.Code, string(s.Status), s.CreatedAt, s.Version, doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if err := replaceMembersPostgres(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (st *Postgres) Get(ctx context.Context, code string) (*session.Session, error) {
	return st.getFrom(ctx, st.pool, session.NormalizeCode(code), false)
}

func (st *Postgres) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := st.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_sessions WHERE code = $1)`, session.NormalizeCode(code)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists, nil
}

func (st *Postgres) ActiveForParticipant(ctx context.Context, userID string) (*session.Session, error) {
	var doc []byte
	err := st.pool.QueryRow(ctx, `
		SELECT s.doc FROM group_sessions s
		JOIN group_session_members m ON m.code = s.code
		WHERE m.user_id = $1 AND m.status = $2 AND s.status = $3
		ORDER BY s.created_at DESC
		LIMIT 1`,
		userID, string(session.ParticipantActive), string(session.StatusActive)).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return decodeSession(doc)
}

func (st *Postgres) Save(ctx context.Context, s *session.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	tx, err := st.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := st.getFrom(ctx, tx, session.NormalizeCode(s.Code), true)
	if err != nil {
		return err
	}
	if cur.Version != s.Version {
		return ErrVersionConflict
	}
	next := s.Clone()
	next.Code = cur.Code
	next.Version = cur.Version + 1
	if err := st.write(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.Version = next.Version
	return nil
}

func (st *Postgres) Update(ctx context.Context, code string, fn UpdateFunc) (*session.Session, error) {
	tx, err := st.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := st.getFrom(ctx, tx, session.NormalizeCode(code), true)
	if err != nil {
		return nil, err
	}
	next, changed, err := apply(cur, fn)
	if err != nil || !changed {
		return next, err
	}
	next.Version++
	if err := st.write(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

func (st *Postgres) Delete(ctx context.Context, code string) error {
	tag, err := st.pool.Exec(ctx, `DELETE FROM group_sessions WHERE code = $1`, session.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (st *Postgres) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := st.pool.Exec(ctx, `DELETE FROM group_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (st *Postgres) Close() error {
	st.pool.Close()
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (st *Postgres) getFrom(ctx context.Context, q pgQuerier, code string, lock bool) (*session.Session, error) {
	query := `SELECT doc FROM group_sessions WHERE code = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var doc []byte
	err := q.QueryRow(ctx, query, code).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSession(doc)
}

func (st *Postgres) write(ctx context.Context, tx pgx.Tx, s *session.Session) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE group_sessions SET status = $2, version = $3, doc = $4 WHERE code = $1`,
		s.Code, string(s.Status), s.Version, doc); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return replaceMembersPostgres(ctx, tx, s)
}

func replaceMembersPostgres(ctx context.Context, tx pgx.Tx, s *session.Session) error {
	if _, err := tx.Exec(ctx, `DELETE FROM group_session_members WHERE code = $1`, s.Code); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	batch := &pgx.Batch{}
	for _, p := range s.Participants {
		batch.Queue(`INSERT INTO group_session_members (code, user_id, status) VALUES ($1, $2, $3)`,
			s.Code, p.UserID, string(p.Status))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert members: %w", err)
	}
	return nil
}

var _ Store = (*Postgres)(nil)
