package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(v int64) *int64 { return &v }

func newTestSession() *Session {
	return New("abc234", Identity{UserID: "host", DisplayName: "Hana"}, "", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

func TestNew(t *testing.T) {
	s := newTestSession()

	assert.Equal(t, "ABC234", s.Code)
	assert.Equal(t, StatusActive, s.Status)
	require.Len(t, s.Participants, 1)
	assert.Equal(t, "host", s.Participants[0].UserID)
	assert.Equal(t, ParticipantActive, s.Participants[0].Status)
	assert.NotNil(t, s.Participants[0].Items)
	assert.True(t, s.IsHost("host"))
	assert.NoError(t, s.Validate())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusLocked, true},
		{StatusLocked, StatusOrdered, true},
		{StatusOrdered, StatusCompleted, true},
		{StatusCompleted, StatusActive, false},
		{StatusCancelled, StatusActive, false},
		{StatusLocked, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusActive, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_RejectsBackwards(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Transition(StatusCancelled))

	err := s.Transition(StatusActive)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, StatusCancelled, s.Status)
}

func TestClone_IsDeep(t *testing.T) {
	s := newTestSession()
	s.Participants[0].Items = []CartItem{{ProductRef: "p1", Quantity: 1, UnitPriceSnapshot: price(500)}}

	c := s.Clone()
	c.Participants[0].Items[0].Quantity = 9
	*c.Participants[0].Items[0].UnitPriceSnapshot = 1
	c.Participants[0].Status = ParticipantLeft

	assert.Equal(t, 1, s.Participants[0].Items[0].Quantity)
	assert.Equal(t, int64(500), *s.Participants[0].Items[0].UnitPriceSnapshot)
	assert.Equal(t, ParticipantActive, s.Participants[0].Status)
}

func TestCheckoutItems_OnlyActiveParticipants(t *testing.T) {
	s := newTestSession()
	s.Participants[0].Items = []CartItem{{ProductRef: "p1", Quantity: 2}}
	s.Participants = append(s.Participants,
		Participant{UserID: "gone", Status: ParticipantLeft, Items: []CartItem{{ProductRef: "p2", Quantity: 1}}},
		Participant{UserID: "bad", Status: ParticipantKicked, Items: []CartItem{{ProductRef: "p3", Quantity: 1}}},
	)

	items := s.CheckoutItems()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductRef)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Session)
	}{
		{"empty code", func(s *Session) { s.Code = "" }},
		{"unknown status", func(s *Session) { s.Status = "paused" }},
		{"completed without order ref", func(s *Session) { s.Status = StatusCompleted }},
		{"order ref while active", func(s *Session) { s.FinalOrderRef = "ORD-1" }},
		{"host missing", func(s *Session) { s.HostID = "someone-else" }},
		{"duplicate participant", func(s *Session) { s.Participants = append(s.Participants, s.Participants[0]) }},
		{"unknown participant status", func(s *Session) { s.Participants[0].Status = "away" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession()
			tt.mutate(s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidInput)
		})
	}
}

func TestValidateItems(t *testing.T) {
	tooMany := make([]CartItem, MaxCartLines+1)
	for i := range tooMany {
		tooMany[i] = CartItem{ProductRef: "p", Quantity: 1}
	}

	tests := []struct {
		name    string
		items   []CartItem
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty clears cart", []CartItem{}, false},
		{"valid", []CartItem{{ProductRef: "p1", Quantity: 2, UnitPriceSnapshot: price(1299)}}, false},
		{"blank product", []CartItem{{ProductRef: "  ", Quantity: 1}}, true},
		{"zero quantity", []CartItem{{ProductRef: "p1", Quantity: 0}}, true},
		{"quantity too large", []CartItem{{ProductRef: "p1", Quantity: MaxItemQuantity + 1}}, true},
		{"negative price", []CartItem{{ProductRef: "p1", Quantity: 1, UnitPriceSnapshot: price(-1)}}, true},
		{"too many lines", tooMany, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ValidateItems(tt.items)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Len(t, out, len(tt.items))
		})
	}
}

func TestValidateItems_TrimsAndCopies(t *testing.T) {
	in := []CartItem{{ProductRef: " p1 ", VariantRef: " large ", Note: " no onions ", Quantity: 1, UnitPriceSnapshot: price(100)}}

	out, err := ValidateItems(in)
	require.NoError(t, err)

	assert.Equal(t, "p1", out[0].ProductRef)
	assert.Equal(t, "large", out[0].VariantRef)
	assert.Equal(t, "no onions", out[0].Note)

	*out[0].UnitPriceSnapshot = 7
	assert.Equal(t, int64(100), *in[0].UnitPriceSnapshot)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{ErrSessionNotFound, KindNotFound},
		{ErrNotActive, KindNotFound},
		{ErrNotHost, KindForbidden},
		{ErrKicked, KindForbidden},
		{fmt.Errorf("wrapped: %w", ErrNotParticipant), KindForbidden},
		{invalidf("bad %s", "thing"), KindInvalidInput},
		{ErrInvalidStatus, KindConflict},
		{errors.New("disk on fire"), KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "KindOf(%v)", tt.err)
	}
}
