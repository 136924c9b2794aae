package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/groupcart/group/service"
	"github.com/wricardo/groupcart/group/session"
)

const apiPrefix = "/api/group-orders"

type tokenKey struct{}

// WithToken attaches a bearer token to ctx. It takes precedence over the
// client's default token for calls made with that context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// APIError is a failed REST call.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
	}
	return e.Message
}

// NewClient creates a new MCP client that calls the REST API at baseURL,
// authenticating with token unless the call context carries its own.
func NewClient(baseURL, token string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"GroupCart",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`GroupCart - collaborative group ordering

A host creates a group order and shares its 6-character code. Friends join
with the code, each fills their own cart, and the host completes the order
with the reference returned by checkout.

AVAILABLE TOOLS:
- create_group_order: Start a group order (you become the host)
- join_group_order: Join with a code
- sync_cart: Replace your cart with the given items
- leave_group_order: Leave (your cart is kept if you rejoin)
- complete_group_order: Host only, records the final order reference
- cancel_group_order: Host only, cancels the order
- get_group_order: Show a group order with every participant's cart
- active_group_order: Show the group order you are currently in

sync_cart always sends the full cart. Items not in the list are removed.`),
	)

	c.registerTools()
}

func codeProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Group order code, e.g. ABC234",
	}
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_group_order",
		Description: "Create a new group order hosted by the caller",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"restaurant_ref": map[string]interface{}{
					"type":        "string",
					"description": "Restaurant menu to order from (optional)",
				},
			},
		},
	}, c.handleCreate)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "join_group_order",
		Description: "Join an active group order by code",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"code": codeProperty()},
			Required:   []string{"code"},
		},
	}, c.handleJoin)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "sync_cart",
		Description: "Replace the caller's cart in a group order",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": codeProperty(),
				"items": map[string]interface{}{
					"type":        "array",
					"description": "Full cart contents; an empty array clears the cart",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"product_ref":         map[string]interface{}{"type": "string"},
							"quantity":            map[string]interface{}{"type": "integer", "minimum": 1, "maximum": session.MaxItemQuantity},
							"variant_ref":         map[string]interface{}{"type": "string"},
							"note":                map[string]interface{}{"type": "string"},
							"unit_price_snapshot": map[string]interface{}{"type": "integer"},
						},
						"required": []string{"product_ref", "quantity"},
					},
				},
			},
			Required: []string{"code", "items"},
		},
	}, c.handleSync)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "leave_group_order",
		Description: "Leave a group order",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"code": codeProperty()},
			Required:   []string{"code"},
		},
	}, c.handleLeave)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "complete_group_order",
		Description: "Mark a group order as ordered (host only)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": codeProperty(),
				"order_ref": map[string]interface{}{
					"type":        "string",
					"description": "Reference of the placed order",
				},
			},
			Required: []string{"code", "order_ref"},
		},
	}, c.handleComplete)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "cancel_group_order",
		Description: "Cancel a group order (host only)",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"code": codeProperty()},
			Required:   []string{"code"},
		},
	}, c.handleCancel)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_group_order",
		Description: "Get a group order with all participants and carts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"code": codeProperty()},
			Required:   []string{"code"},
		},
	}, c.handleGet)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "active_group_order",
		Description: "Get the active group order the caller participates in, if any",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleActive)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.token
	if t, ok := ctx.Value(tokenKey{}).(string); ok && t != "" {
		token = t
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			errResp.Error = fmt.Sprintf("API error: %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Kind: errResp.Kind, Message: errResp.Error}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func stringArg(request mcp.CallToolRequest, name string) string {
	args, _ := request.Params.Arguments.(map[string]interface{})
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

func (c *Client) sessionCall(ctx context.Context, method, path string, body interface{}) (*mcp.CallToolResult, error) {
	var view service.SessionView
	if err := c.apiCall(ctx, method, path, body, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSession(&view)), nil
}

func (c *Client) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{}
	if ref := stringArg(request, "restaurant_ref"); ref != "" {
		body["restaurant_ref"] = ref
	}
	return c.sessionCall(ctx, http.MethodPost, apiPrefix+"/create", body)
}

func (c *Client) handleJoin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := stringArg(request, "code")
	if code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}
	return c.sessionCall(ctx, http.MethodPost, apiPrefix+"/join", map[string]string{"code": code})
}

func (c *Client) handleSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := stringArg(request, "code")
	if code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}

	args, _ := request.Params.Arguments.(map[string]interface{})
	raw, ok := args["items"]
	if !ok || raw == nil {
		return mcp.NewToolResultError("items is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid items: %v", err)), nil
	}
	items := []session.CartItem{}
	if err := json.Unmarshal(data, &items); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid items: %v", err)), nil
	}

	body := map[string]interface{}{"code": code, "items": items}
	return c.sessionCall(ctx, http.MethodPost, apiPrefix+"/sync", body)
}

func (c *Client) handleLeave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.sessionCall(ctx, http.MethodPost, apiPrefix+"/leave", map[string]string{"code": stringArg(request, "code")})
}

func (c *Client) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{
		"code":      stringArg(request, "code"),
		"order_ref": stringArg(request, "order_ref"),
	}
	return c.sessionCall(ctx, http.MethodPost, apiPrefix+"/complete", body)
}

func (c *Client) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.sessionCall(ctx, http.MethodPost, apiPrefix+"/cancel", map[string]string{"code": stringArg(request, "code")})
}

func (c *Client) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := stringArg(request, "code")
	if code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}
	return c.sessionCall(ctx, http.MethodGet, apiPrefix+"/"+url.PathEscape(code), nil)
}

func (c *Client) handleActive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp struct {
		Session *service.SessionView `json:"session"`
	}
	if err := c.apiCall(ctx, http.MethodGet, apiPrefix+"/active", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if resp.Session == nil {
		return mcp.NewToolResultText("You are not in an active group order."), nil
	}
	return mcp.NewToolResultText(formatSession(resp.Session)), nil
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// formatSession renders a session for a chat transcript.
func formatSession(v *service.SessionView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Group order %s (%s)\n", v.Code, v.Status)
	if v.RestaurantRef != "" {
		fmt.Fprintf(&b, "Restaurant: %s\n", v.RestaurantRef)
	}
	if v.FinalOrderRef != "" {
		fmt.Fprintf(&b, "Order: %s\n", v.FinalOrderRef)
	}
	if !v.ExpiresAt.IsZero() && v.Status == session.StatusActive {
		fmt.Fprintf(&b, "Expires: %s\n", v.ExpiresAt.Format(time.RFC3339))
	}

	b.WriteString("\nParticipants:\n")
	for _, p := range v.Participants {
		name := p.DisplayName
		if name == "" {
			name = p.UserID
		}
		tag := ""
		if p.IsHost {
			tag = " [host]"
		}
		if p.Status != session.ParticipantActive {
			tag += fmt.Sprintf(" [%s]", p.Status)
		}
		fmt.Fprintf(&b, "• %s%s: %s\n", name, tag, formatCents(p.SubtotalCents))

		for _, it := range p.Items {
			label := it.ProductRef
			if it.Product != nil && it.Product.Name != "" {
				label = it.Product.Name
				if it.Product.VariantName != "" {
					label += " (" + it.Product.VariantName + ")"
				}
			} else if it.VariantRef != "" {
				label += " (" + it.VariantRef + ")"
			}
			fmt.Fprintf(&b, "    %d × %s  %s\n", it.Quantity, label, formatCents(it.LineTotalCents))
			if it.Note != "" {
				fmt.Fprintf(&b, "      note: %s\n", it.Note)
			}
		}
	}

	co := v.Checkout
	fmt.Fprintf(&b, "\nCheckout: %d items from %d participants, subtotal %s\n",
		co.ItemCount, co.ParticipantCount, formatCents(co.SubtotalCents))
	if co.UnpricedLines > 0 {
		fmt.Fprintf(&b, "%d lines have no known price\n", co.UnpricedLines)
	}
	return b.String()
}
