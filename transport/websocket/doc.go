// Package websocket fans session events out to WebSocket subscribers.
//
// A central Hub owns the subscriber set, keyed by session code, and runs a
// single event loop that serialises register, unregister and broadcast.
// Each connection gets a read goroutine (which only processes control
// frames) and a write goroutine that drains a buffered send channel and
// keeps the connection alive with pings.
//
// Message Protocol:
//
// Every outgoing frame is a JSON Envelope:
//
//	{"id": "<uuid>", "type": "CART_UPDATE", "code": "ABC234",
//	 "payload": {...}, "sent_at": "2026-01-02T03:04:05Z"}
//
// Clients do not send application messages.
//
// Delivery:
//
// Delivery is best effort and at most once. Publish never blocks the caller:
// if the broadcast queue is full the event is dropped with a warning, and a
// subscriber whose send buffer is full is disconnected. Clients are expected
// to refetch the session after reconnecting.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.WithLogger(log))
//	go hub.Run(ctx)
//
//	svc := service.New(st, service.WithBroadcaster(hub))
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("code"), userID)
//	})
package websocket
