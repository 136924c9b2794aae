package session

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the caller snapshot captured when a participant joins. It is not
// a live reference: renaming a user elsewhere does not change past sessions.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// CartItem is one line in a participant's cart.
type CartItem struct {
	ProductRef string `json:"product_ref"`
	// UnitPriceSnapshot is the price the client saw, in minor units. Display only.
	UnitPriceSnapshot *int64 `json:"unit_price_snapshot,omitempty"`
	Quantity          int    `json:"quantity"`
	VariantRef        string `json:"variant_ref,omitempty"`
	Note              string `json:"note,omitempty"`
}

// Participant is a member of a session. Items are owned exclusively by this
// participant.
type Participant struct {
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name"`
	AvatarRef   string            `json:"avatar_ref,omitempty"`
	Status      ParticipantStatus `json:"status"`
	Items       []CartItem        `json:"items"`
	JoinedAt    time.Time         `json:"joined_at"`
}

// Session is a collaborative group-order document.
type Session struct {
	Code          string        `json:"code"`
	HostID        string        `json:"host_id"`
	RestaurantRef string        `json:"restaurant_ref,omitempty"`
	Status        Status        `json:"status"`
	Participants  []Participant `json:"participants"`
	FinalOrderRef string        `json:"final_order_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Version       int64         `json:"version"`
}

// New builds an active session hosted by host, who is its sole participant.
func New(code string, host Identity, restaurantRef string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		Code:          NormalizeCode(code),
		HostID:        host.UserID,
		RestaurantRef: strings.TrimSpace(restaurantRef),
		Status:        StatusActive,
		Participants: []Participant{{
			UserID:      host.UserID,
			DisplayName: host.DisplayName,
			AvatarRef:   host.AvatarRef,
			Status:      ParticipantActive,
			Items:       []CartItem{},
			JoinedAt:    now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeCode upper-cases and trims a user-supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Participant returns the participant entry for userID, or nil.
// The returned pointer aliases the session's slice.
func (s *Session) Participant(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// IsHost reports whether userID is the session host.
func (s *Session) IsHost(userID string) bool {
	return userID != "" && s.HostID == userID
}

// IsMember reports whether userID is a participant with active status.
func (s *Session) IsMember(userID string) bool {
	p := s.Participant(userID)
	return p != nil && p.Status == ParticipantActive
}

// Transition moves the session to status to, enforcing forward-only progress.
func (s *Session) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, s.Status, to)
	}
	s.Status = to
	return nil
}

// CheckoutItems returns the items that count toward the order: only active
// participants contribute. Items of left or kicked participants stay in the
// session but are excluded here.
func (s *Session) CheckoutItems() []CartItem {
	var items []CartItem
	for _, p := range s.Participants {
		if p.Status != ParticipantActive {
			continue
		}
		items = append(items, p.Items...)
	}
	return items
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		p.Items = cloneItems(p.Items)
		c.Participants[i] = p
	}
	return &c
}

func cloneItems(items []CartItem) []CartItem {
	if items == nil {
		return nil
	}
	out := make([]CartItem, len(items))
	for i, it := range items {
		if it.UnitPriceSnapshot != nil {
			price := *it.UnitPriceSnapshot
			it.UnitPriceSnapshot = &price
		}
		out[i] = it
	}
	return out
}

// Validate checks the document invariants.
func (s *Session) Validate() error {
	if s.Code == "" {
		return invalidf("code is required")
	}
	if !s.Status.Valid() {
		return invalidf("unknown status %q", s.Status)
	}
	if (s.FinalOrderRef != "") != (s.Status == StatusCompleted) {
		return invalidf("final order ref must be set exactly when completed")
	}

	hosts := 0
	seen := make(map[string]struct{}, len(s.Participants))
	for _, p := range s.Participants {
		if p.UserID == "" {
			return invalidf("participant without user id")
		}
		if _, dup := seen[p.UserID]; dup {
			return invalidf("participant %s listed twice", p.UserID)
		}
		seen[p.UserID] = struct{}{}
		if !p.Status.Valid() {
			return invalidf("participant %s has unknown status %q", p.UserID, p.Status)
		}
		if p.UserID == s.HostID {
			hosts++
		}
	}
	if hosts != 1 {
		return invalidf("host %q must be exactly one participant", s.HostID)
	}
	return nil
}
