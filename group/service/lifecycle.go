package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wricardo/groupcart/group/codegen"
	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/group/store"
)

// Create opens a session hosted by the caller, who becomes its only
// participant. Codes that lose a creation race are retried with a fresh code.
func (s *Service) Create(ctx context.Context, actor Actor, restaurantRef string) (*SessionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	attempts := s.createAttempts
	if attempts <= 0 {
		attempts = DefaultCreateAttempts
	}

	for i := 0; i < attempts; i++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			if codegen.IsExhausted(err) {
				s.log.Error().Err(err).Msg("session code space exhausted")
			}
			return nil, fmt.Errorf("create session: %w", err)
		}

		doc := session.New(code, actor.Identity, restaurantRef, s.clock())
		err = s.store.Create(ctx, doc)
		if errors.Is(err, store.ErrDuplicateCode) {
			s.log.Debug().Str("code", code).Msg("session code taken, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}

		s.log.Info().Str("code", doc.Code).Str("host_id", actor.UserID).Msg("session created")
		return s.view(ctx, doc), nil
	}

	s.log.Error().Int("attempts", attempts).Msg("failed to allocate a unique session code")
	return nil, fmt.Errorf("%w: could not allocate a unique session code after %d attempts", session.ErrConflict, attempts)
}

// SetRestaurant locks the session to a restaurant. The first value wins;
// setting the same value again is a no-op and a different one is a conflict.
func (s *Service) SetRestaurant(ctx context.Context, code string, actor Actor, restaurantRef string) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	restaurantRef = strings.TrimSpace(restaurantRef)
	if restaurantRef == "" {
		return nil, invalid("restaurant_ref is required")
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
		switch doc.RestaurantRef {
		case restaurantRef:
			return store.ErrNoChange
		case "":
		default:
			return fmt.Errorf("%w: restaurant already set to %s", session.ErrConflict, doc.RestaurantRef)
		}
		doc.RestaurantRef = restaurantRef
		doc.UpdatedAt = s.clock()
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set restaurant for %s: %w", code, err)
	}

	view := s.view(ctx, doc)
	if changed {
		s.publish(ctx, session.EventRestaurantSet, view, actor)
	}
	return view, nil
}

// Complete finalizes the session with the checkout's order reference. Only
// the host may complete, and only while the session is active.
func (s *Service) Complete(ctx context.Context, code string, actor Actor, orderRef string) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return nil, invalid("order_ref is required")
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	doc, err := s.store.Update(ctx, code, func(doc *session.Session) error {
		if !doc.IsHost(actor.UserID) {
			return session.ErrNotHost
		}
		if doc.Status != session.StatusActive {
			return session.ErrNotActive
		}
		if err := doc.Transition(session.StatusCompleted); err != nil {
			return err
		}
		doc.FinalOrderRef = orderRef
		doc.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", code, err)
	}

	view := s.view(ctx, doc)
	s.log.Info().Str("code", code).Str("order_ref", orderRef).Msg("session completed")
	s.publish(ctx, session.EventOrderPlaced, view, actor)
	return view, nil
}

// Cancel abandons an active session. The host or a moderator may cancel.
func (s *Service) Cancel(ctx context.Context, code string, actor Actor) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	doc, err := s.store.Update(ctx, code, func(doc *session.Session) error {
		if !doc.IsHost(actor.UserID) && !actor.Moderator {
			return session.ErrNotHost
		}
		if doc.Status != session.StatusActive {
			return session.ErrNotActive
		}
		if err := doc.Transition(session.StatusCancelled); err != nil {
			return err
		}
		doc.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", code, err)
	}

	view := s.view(ctx, doc)
	s.log.Info().Str("code", code).Str("by", actor.UserID).Msg("session cancelled")
	s.publish(ctx, session.EventSessionCancelled, view, actor)
	return view, nil
}

// GetDetails returns the decorated session.
func (s *Service) GetDetails(ctx context.Context, code string) (*SessionView, error) {
	code, err := requireCode(code)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", code, err)
	}
	return s.view(ctx, doc), nil
}
