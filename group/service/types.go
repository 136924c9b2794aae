package service

import (
	"context"
	"time"

	"github.com/wricardo/groupcart/group/catalog"
	"github.com/wricardo/groupcart/group/session"
)

// GroupService defines all group-order operations.
type GroupService interface {
	// Lifecycle
	Create(ctx context.Context, actor Actor, restaurantRef string) (*SessionView, error)
	SetRestaurant(ctx context.Context, code string, actor Actor, restaurantRef string) (*SessionView, error)
	Complete(ctx context.Context, code string, actor Actor, orderRef string) (*SessionView, error)
	Cancel(ctx context.Context, code string, actor Actor) (*SessionView, error)
	GetDetails(ctx context.Context, code string) (*SessionView, error)

	// Participants
	Join(ctx context.Context, code string, actor Actor) (*SessionView, error)
	Leave(ctx context.Context, code string, actor Actor) (*SessionView, error)
	Kick(ctx context.Context, code string, actor Actor, userID string) (*SessionView, error)
	CheckActive(ctx context.Context, userID string) (*SessionView, error)

	// Cart
	Sync(ctx context.Context, code string, actor Actor, items []session.CartItem) (*SessionView, error)
}

// Actor is the authenticated caller.
type Actor struct {
	session.Identity
	// Moderator may cancel sessions they do not host.
	Moderator bool
}

// Broadcaster publishes session events to subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, code string, eventType session.EventType, payload any) error
}

// Catalog resolves product references for display.
type Catalog interface {
	Lookup(ctx context.Context, restaurantRef, productRef, variantRef string) (catalog.ProductInfo, bool)
}

// EventPayload is the body of every published event.
type EventPayload struct {
	Session *SessionView `json:"session"`
	Actor   ActorRef     `json:"actor"`
}

// ActorRef names who triggered an event.
type ActorRef struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// SessionView is the decorated read model returned to clients.
type SessionView struct {
	Code          string            `json:"code"`
	HostID        string            `json:"host_id"`
	RestaurantRef string            `json:"restaurant_ref,omitempty"`
	Status        session.Status    `json:"status"`
	Participants  []ParticipantView `json:"participants"`
	FinalOrderRef string            `json:"final_order_ref,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Version       int64             `json:"version"`
	Checkout      CheckoutSummary   `json:"checkout"`
}

// ParticipantView is one participant with decorated items.
type ParticipantView struct {
	UserID        string                    `json:"user_id"`
	DisplayName   string                    `json:"display_name"`
	AvatarRef     string                    `json:"avatar_ref,omitempty"`
	Status        session.ParticipantStatus `json:"status"`
	IsHost        bool                      `json:"is_host"`
	JoinedAt      time.Time                 `json:"joined_at"`
	Items         []ItemView                `json:"items"`
	SubtotalCents int64                     `json:"subtotal_cents"`
}

// ItemView is a cart line plus its catalog decoration, when one was found.
type ItemView struct {
	session.CartItem
	Product        *catalog.ProductInfo `json:"product,omitempty"`
	LineTotalCents int64                `json:"line_total_cents"`
}

// CheckoutSummary totals the lines that count toward the order. Only active
// participants contribute.
type CheckoutSummary struct {
	ParticipantCount int   `json:"participant_count"`
	LineCount        int   `json:"line_count"`
	ItemCount        int   `json:"item_count"`
	SubtotalCents    int64 `json:"subtotal_cents"`
	// UnpricedLines counts lines with neither a catalog price nor a snapshot.
	UnpricedLines int `json:"unpriced_lines"`
}
