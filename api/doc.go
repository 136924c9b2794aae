// Package api serves the group-order REST API and the WebSocket endpoint.
//
// Endpoints (all under /api/group-orders require a bearer JWT):
//
//	POST /api/group-orders/create      {restaurant_ref?}
//	POST /api/group-orders/join        {code}
//	POST /api/group-orders/sync        {code, items[]}
//	POST /api/group-orders/leave       {code}
//	POST /api/group-orders/complete    {code, order_ref}
//	POST /api/group-orders/cancel      {code}
//	POST /api/group-orders/kick        {code, user_id}
//	POST /api/group-orders/restaurant  {code, restaurant_ref}
//	GET  /api/group-orders/active
//	GET  /api/group-orders/{code}
//	GET  /ws?code=ABC234&access_token=...
//	GET  /healthz
//
// Successful calls return the decorated session view. Errors are JSON with
// the HTTP status derived from the error kind:
//
//	{"error": "session not found", "kind": "not_found"}
//
// not_found maps to 404, forbidden to 403, invalid_input to 400, conflict to
// 409 and anything else to 500 with the message masked.
//
// Identity comes only from the token: the subject is the user id, and the
// name, avatar and mod claims fill in the display snapshot and moderator
// flag. Body fields never override it.
package api
