package service

import (
	"context"
	"fmt"

	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/group/store"
)

// Join adds the caller to an active session. A participant who left is
// reactivated with their cart intact; an already active participant gets the
// current view and no event is published.
func (s *Service) Join(ctx context.Context, code string, actor Actor) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var changed bool
	doc, err := s.store.Update(ctx, code, func(doc *session.Session) error {
		changed = false
		if doc.Status != session.StatusActive {
			return session.ErrNotActive
		}

		p := doc.Participant(actor.UserID)
		switch {
		case p == nil:
			doc.Participants = append(doc.Participants, session.Participant{
				UserID:      actor.UserID,
				DisplayName: actor.DisplayName,
				AvatarRef:   actor.AvatarRef,
				Status:      session.ParticipantActive,
				Items:       []session.CartItem{},
				JoinedAt:    s.clock(),
			})
		case p.Status == session.ParticipantActive:
			return store.ErrNoChange
		case p.Status == session.ParticipantKicked:
			return session.ErrKicked
		default:
			p.Status = session.ParticipantActive
			p.DisplayName = actor.DisplayName
			p.AvatarRef = actor.AvatarRef
		}
		doc.UpdatedAt = s.clock()
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", code, err)
	}

	view := s.view(ctx, doc)
	if changed {
		s.log.Info().Str("code", code).Str("user_id", actor.UserID).Msg("participant joined")
		s.publish(ctx, session.EventJoin, view, actor)
	}
	return view, nil
}

// Leave marks the caller as left. Their items stay in the session but no
// longer count toward checkout. Leaving twice is a no-op.
func (s *Service) Leave(ctx context.Context, code string, actor Actor) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var changed bool
	doc, err := s.store.Update(ctx, code, func(doc *session.Session) error {
		changed = false
		if doc.Status != session.StatusActive {
			return session.ErrNotActive
		}
		p := doc.Participant(actor.UserID)
		switch {
		case p == nil:
			return session.ErrNotParticipant
		case p.Status == session.ParticipantLeft:
			return store.ErrNoChange
		case p.Status == session.ParticipantKicked:
			return session.ErrKicked
		}
		p.Status = session.ParticipantLeft
		doc.UpdatedAt = s.clock()
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("leave %s: %w", code, err)
	}

	view := s.view(ctx, doc)
	if changed {
		s.log.Info().Str("code", code).Str("user_id", actor.UserID).Msg("participant left")
		s.publish(ctx, session.EventLeave, view, actor)
	}
	return view, nil
}

// Kick removes userID from the session. Only the host may kick, and a kicked
// participant cannot rejoin.
func (s *Service) Kick(ctx context.Context, code string, actor Actor, userID string) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, invalid("user_id is required")
	}
	if userID == actor.UserID {
		return nil, invalid("the host cannot kick themselves")
	}

	var changed bool
	doc, err := s.store.Update(ctx, code, func(doc *session.Session) error {
		changed = false
		if !doc.IsHost(actor.UserID) {
			return session.ErrNotHost
		}
		if doc.Status != session.StatusActive {
			return session.ErrNotActive
		}
		p := doc.Participant(userID)
		if p == nil {
			return fmt.Errorf("%w: %s is not in this session", session.ErrNotFound, userID)
		}
		if p.Status == session.ParticipantKicked {
			return store.ErrNoChange
		}
		p.Status = session.ParticipantKicked
		doc.UpdatedAt = s.clock()
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kick %s from %s: %w", userID, code, err)
	}

	view := s.view(ctx, doc)
	if changed {
		s.log.Info().Str("code", code).Str("user_id", userID).Msg("participant kicked")
		s.publish(ctx, session.EventKick, view, actor)
	}
	return view, nil
}

// CheckActive returns the newest active session in which userID is an
// active participant.
func (s *Service) CheckActive(ctx context.Context, userID string) (*SessionView, error) {
	if userID == "" {
		return nil, invalid("user id is required")
	}
	doc, err := s.store.ActiveForParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("active session for %s: %w", userID, err)
	}
	return s.view(ctx, doc), nil
}
