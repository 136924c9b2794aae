package session

// EventType names a message published on a session channel.
type EventType string

const (
	EventJoin             EventType = "JOIN"
	EventCartUpdate       EventType = "CART_UPDATE"
	EventLeave            EventType = "LEAVE"
	EventOrderPlaced      EventType = "ORDER_PLACED"
	EventKick             EventType = "KICK"
	EventSessionCancelled EventType = "SESSION_CANCELLED"
	EventRestaurantSet    EventType = "RESTAURANT_SET"
)
