package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/wricardo/groupcart/group/session"
)

const casAttempts = 10

// apply runs fn on a copy of cur and checks the result. changed is false when
// fn asked to skip the write.
func apply(cur *session.Session, fn UpdateFunc) (next *session.Session, changed bool, err error) {
	next = cur.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return cur.Clone(), false, nil
		}
		return nil, false, err
	}
	if next.Code != cur.Code || next.HostID != cur.HostID || !next.CreatedAt.Equal(cur.CreatedAt) {
		return nil, false, fmt.Errorf("%w: code, host and creation time are immutable", session.ErrInvalidInput)
	}
	next.Version = cur.Version
	if err := next.Validate(); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// updateCAS implements Update on top of Get and a version-checked Save,
// retrying when another writer wins the race.
func updateCAS(ctx context.Context, st Store, code string, fn UpdateFunc) (*session.Session, error) {
	var lastErr error
	for i := 0; i < casAttempts; i++ {
		cur, err := st.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		next, changed, err := apply(cur, fn)
		if err != nil {
			return nil, err
		}
		if !changed {
			return next, nil
		}
		err = st.Save(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("update %s gave up after %d attempts: %w", code, casAttempts, lastErr)
}

func checkNew(s *session.Session) error {
	if s == nil {
		return fmt.Errorf("%w: session cannot be nil", session.ErrInvalidInput)
	}
	s.Code = session.NormalizeCode(s.Code)
	return s.Validate()
}

// activeMember reports whether s is active and userID is an active participant in it.
func activeMember(s *session.Session, userID string) bool {
	return s.Status == session.StatusActive && s.IsMember(userID)
}
