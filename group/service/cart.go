package service

import (
	"context"
	"fmt"

	"github.com/wricardo/groupcart/group/session"
)

// Sync replaces the caller's cart with items. The last write wins per
// participant; there is no merge and no version token.
func (s *Service) Sync(ctx context.Context, code string, actor Actor, items []session.CartItem) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	items, err = session.ValidateItems(items)
	if err != nil {
		return nil, err
	}

	doc, err := s.store.Update(ctx, code, func(doc *session.Session) error {
		if doc.Status != session.StatusActive {
			return session.ErrNotActive
		}
		p := doc.Participant(actor.UserID)
		switch {
		case p == nil:
			return session.ErrNotParticipant
		case p.Status == session.ParticipantKicked:
			return session.ErrKicked
		case p.Status != session.ParticipantActive:
			return session.ErrNotParticipant
		}
		p.Items = items
		doc.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync cart in %s: %w", code, err)
	}

	view := s.view(ctx, doc)
	s.log.Debug().Str("code", code).Str("user_id", actor.UserID).Int("lines", len(items)).Msg("cart synced")
	s.publish(ctx, session.EventCartUpdate, view, actor)
	return view, nil
}
