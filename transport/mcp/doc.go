// Package mcp exposes group ordering to AI agents over the Model Context
// Protocol.
//
// The Client is a thin proxy: every tool call becomes a request against the
// REST API, authenticated with a bearer token. In stdio mode the token comes
// from configuration; behind the HTTP /mcp endpoint the caller's own token is
// attached to the request context with WithToken.
//
// Tools:
//   - create_group_order
//   - join_group_order
//   - sync_cart (full replace)
//   - leave_group_order
//   - complete_group_order
//   - cancel_group_order
//   - get_group_order
//   - active_group_order
//
// Results are rendered as plain text summaries of the session, including each
// participant's cart and the checkout subtotal.
package mcp
