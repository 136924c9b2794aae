package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/groupcart/group/session"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(code, host string, created time.Time) *session.Session {
	return session.New(code, session.Identity{UserID: host, DisplayName: host}, "", created)
}

func addParticipant(userID string) UpdateFunc {
	return func(s *session.Session) error {
		s.Participants = append(s.Participants, session.Participant{
			UserID: userID, DisplayName: userID, Status: session.ParticipantActive, Items: []session.CartItem{},
		})
		return nil
	}
}

func TestMemoryStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestFileStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		st, err := NewFile(t.TempDir())
		require.NoError(t, err)
		return st
	})
}

func TestSQLiteStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		st, err := OpenSQLite(context.Background(), t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("GROUPCART_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GROUPCART_TEST_DATABASE_URL not set")
	}
	runContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		st, err := OpenPostgres(ctx, url)
		require.NoError(t, err)
		_, err = st.pool.Exec(ctx, `TRUNCATE group_sessions CASCADE`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))

		got, err := st.Get(ctx, "abc234")
		require.NoError(t, err)
		assert.Equal(t, "ABC234", got.Code)
		assert.Equal(t, "host", got.HostID)
		assert.True(t, got.CreatedAt.Equal(base))

		ok, err := st.Exists(ctx, "Abc234")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing session", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Get(ctx, "ZZZZZZ")
		assert.ErrorIs(t, err, session.ErrNotFound)

		ok, err := st.Exists(ctx, "ZZZZZZ")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = st.Update(ctx, "ZZZZZZ", addParticipant("p"))
		assert.ErrorIs(t, err, session.ErrNotFound)
		assert.ErrorIs(t, st.Delete(ctx, "ZZZZZZ"), session.ErrNotFound)
	})

	t.Run("duplicate code", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "h1", base)))

		err := st.Create(ctx, newSession("abc234", "h2", base))
		assert.ErrorIs(t, err, ErrDuplicateCode)
		assert.ErrorIs(t, err, session.ErrConflict)
	})

	t.Run("update persists and bumps version", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))

		updated, err := st.Update(ctx, "ABC234", addParticipant("guest"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)

		got, err := st.Get(ctx, "ABC234")
		require.NoError(t, err)
		assert.Len(t, got.Participants, 2)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("update callback error leaves document untouched", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))
		boom := errors.New("boom")

		_, err := st.Update(ctx, "ABC234", func(s *session.Session) error {
			s.RestaurantRef = "r1"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := st.Get(ctx, "ABC234")
		require.NoError(t, err)
		assert.Empty(t, got.RestaurantRef)
		assert.Equal(t, int64(0), got.Version)
	})

	t.Run("update no change skips write", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))

		got, err := st.Update(ctx, "ABC234", func(s *session.Session) error { return ErrNoChange })
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Version)
	})

	t.Run("update rejects invalid documents", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))

		_, err := st.Update(ctx, "ABC234", func(s *session.Session) error {
			s.HostID = "someone-else"
			return nil
		})
		assert.ErrorIs(t, err, session.ErrInvalidInput)
	})

	t.Run("save detects stale version", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))

		a, err := st.Get(ctx, "ABC234")
		require.NoError(t, err)
		b, err := st.Get(ctx, "ABC234")
		require.NoError(t, err)

		a.RestaurantRef = "r1"
		require.NoError(t, st.Save(ctx, a))
		assert.Equal(t, int64(1), a.Version)

		b.RestaurantRef = "r2"
		assert.ErrorIs(t, st.Save(ctx, b), ErrVersionConflict)

		got, err := st.Get(ctx, "ABC234")
		require.NoError(t, err)
		assert.Equal(t, "r1", got.RestaurantRef)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))

		const writers = 8
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := st.Update(ctx, "ABC234", addParticipant(fmt.Sprintf("user-%d", i)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := st.Get(ctx, "ABC234")
		require.NoError(t, err)
		assert.Len(t, got.Participants, writers+1)
		assert.Equal(t, int64(writers), got.Version)
	})

	t.Run("active for participant", func(t *testing.T) {
		st := newStore(t)
		older := newSession("AAAAAA", "host", base)
		newer := newSession("BBBBBB", "host", base.Add(time.Hour))
		closed := newSession("CCCCCC", "host", base.Add(2*time.Hour))
		require.NoError(t, st.Create(ctx, older))
		require.NoError(t, st.Create(ctx, newer))
		require.NoError(t, st.Create(ctx, closed))
		_, err := st.Update(ctx, "CCCCCC", func(s *session.Session) error { return s.Transition(session.StatusCancelled) })
		require.NoError(t, err)

		got, err := st.ActiveForParticipant(ctx, "host")
		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", got.Code)

		_, err = st.Update(ctx, "BBBBBB", addParticipant("guest"))
		require.NoError(t, err)
		got, err = st.ActiveForParticipant(ctx, "guest")
		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", got.Code)

		_, err = st.Update(ctx, "BBBBBB", func(s *session.Session) error {
			s.Participant("guest").Status = session.ParticipantLeft
			return nil
		})
		require.NoError(t, err)
		_, err = st.ActiveForParticipant(ctx, "guest")
		assert.ErrorIs(t, err, session.ErrNotFound)

		_, err = st.ActiveForParticipant(ctx, "nobody")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("active for participant skips kicked", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))
		_, err := st.Update(ctx, "ABC234", addParticipant("guest"))
		require.NoError(t, err)
		_, err = st.Update(ctx, "ABC234", func(s *session.Session) error {
			s.Participant("guest").Status = session.ParticipantKicked
			return nil
		})
		require.NoError(t, err)

		_, err = st.ActiveForParticipant(ctx, "guest")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("delete created before", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("AAAAAA", "h", base.Add(-48*time.Hour))))
		require.NoError(t, st.Create(ctx, newSession("BBBBBB", "h", base.Add(-25*time.Hour))))
		require.NoError(t, st.Create(ctx, newSession("CCCCCC", "h", base.Add(-time.Hour))))

		n, err := st.DeleteCreatedBefore(ctx, base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		for code, want := range map[string]bool{"AAAAAA": false, "BBBBBB": false, "CCCCCC": true} {
			ok, err := st.Exists(ctx, code)
			require.NoError(t, err)
			assert.Equal(t, want, ok, code)
		}
		_, err = st.ActiveForParticipant(ctx, "h")
		require.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Create(ctx, newSession("ABC234", "host", base)))
		require.NoError(t, st.Delete(ctx, "abc234"))

		_, err := st.Get(ctx, "ABC234")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestFileStore_RejectsPathLikeCodes(t *testing.T) {
	st, err := NewFile(t.TempDir())
	require.NoError(t, err)

	_, err = st.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, session.ErrNotFound)

	err = st.Create(context.Background(), newSession("../X", "h", base))
	assert.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	st, err = Open(context.Background(), Options{Driver: DriverFile, DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, st)

	_, err = Open(context.Background(), Options{Driver: "cassandra"})
	assert.Error(t, err)
}
