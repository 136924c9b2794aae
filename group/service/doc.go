// Package service implements group-order operations on top of a session store.
//
// Service ties together the pieces a group order needs:
//   - participant membership (join, rejoin, leave, kick)
//   - cart sync, where each participant's cart is replaced wholesale
//   - the session lifecycle (create, set restaurant, complete, cancel)
//   - read-only views decorated from the menu catalog
//
// Every mutation is one atomic store.Update call. Status checks run inside
// the update callback, so a sync that races a completion fails once the
// completion has been persisted. After a successful write the service
// publishes an event carrying the full decorated session; publish errors are
// logged and never returned to the caller.
//
// Usage:
//
//	st := store.NewMemory()
//	svc := service.New(st,
//		service.WithBroadcaster(hub),
//		service.WithCatalog(menus),
//		service.WithLogger(logger),
//	)
//
//	view, err := svc.Create(ctx, host, "demo-pizzeria")
//	view, err = svc.Join(ctx, view.Code, guest)
//	view, err = svc.Sync(ctx, view.Code, guest, items)
//	view, err = svc.Complete(ctx, view.Code, host, "ORD-99")
package service
