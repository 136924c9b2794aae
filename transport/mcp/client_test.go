package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/groupcart/api"
	"github.com/wricardo/groupcart/group/catalog"
	"github.com/wricardo/groupcart/group/service"
	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/group/store"
	"github.com/wricardo/groupcart/transport/websocket"
)

func testView() service.SessionView {
	price := int64(1250)
	return service.SessionView{
		Code:   "ABC234",
		HostID: "host",
		Status: session.StatusActive,
		Participants: []service.ParticipantView{
			{
				UserID:      "host",
				DisplayName: "Hana",
				Status:      session.ParticipantActive,
				IsHost:      true,
				Items: []service.ItemView{{
					CartItem:       session.CartItem{ProductRef: "margherita", Quantity: 2, UnitPriceSnapshot: &price},
					Product:        &catalog.ProductInfo{Name: "Margherita", PriceCents: 1250},
					LineTotalCents: 2500,
				}},
				SubtotalCents: 2500,
			},
			{UserID: "p", DisplayName: "Pat", Status: session.ParticipantLeft},
		},
		Checkout: service.CheckoutSummary{ParticipantCount: 1, LineCount: 1, ItemCount: 2, SubtotalCents: 2500},
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/", "tok")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall_SendsToken(t *testing.T) {
	var gotAuth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "default-token")
	ctx := context.Background()

	if err := client.apiCall(ctx, http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if err := client.apiCall(WithToken(ctx, "caller-token"), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}

	if gotAuth[0] != "Bearer default-token" {
		t.Errorf("Expected default token, got %q", gotAuth[0])
	}
	if gotAuth[1] != "Bearer caller-token" {
		t.Errorf("Expected context token, got %q", gotAuth[1])
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"only the host can complete","kind":"forbidden"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	err := client.apiCall(context.Background(), http.MethodPost, "/x", map[string]string{}, nil)

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Kind != "forbidden" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "only the host") {
		t.Errorf("Expected server message in error, got %v", err)
	}
}

func TestClient_apiCall_HTTPErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	err := client.apiCall(context.Background(), http.MethodGet, "/x", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "API error: 500") {
		t.Errorf("Expected 'API error: 500', got %v", err)
	}
}

func TestClient_handleCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/group-orders/create" {
			t.Errorf("Expected POST /api/group-orders/create, got %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["restaurant_ref"] != "demo-pizzeria" {
			t.Errorf("Expected restaurant_ref forwarded, got %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(testView())
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	result, err := client.handleCreate(context.Background(), call("create_group_order", map[string]interface{}{
		"restaurant_ref": "demo-pizzeria",
	}))
	if err != nil {
		t.Fatalf("handleCreate failed: %v", err)
	}

	text := textOf(t, result)
	if !strings.Contains(text, "ABC234") {
		t.Errorf("Expected code in result, got: %s", text)
	}
}

func TestClient_handleSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code  string             `json:"code"`
			Items []session.CartItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Code != "ABC234" || len(body.Items) != 1 || body.Items[0].Quantity != 2 {
			t.Errorf("unexpected sync body %+v", body)
		}
		json.NewEncoder(w).Encode(testView())
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	result, err := client.handleSync(context.Background(), call("sync_cart", map[string]interface{}{
		"code": "ABC234",
		"items": []interface{}{
			map[string]interface{}{"product_ref": "margherita", "quantity": 2},
		},
	}))
	if err != nil {
		t.Fatalf("handleSync failed: %v", err)
	}
	if result.IsError {
		t.Errorf("unexpected tool error: %s", textOf(t, result))
	}
}

func TestClient_handleSync_MissingItems(t *testing.T) {
	client := NewClient("http://localhost:0", "")

	result, err := client.handleSync(context.Background(), call("sync_cart", map[string]interface{}{"code": "ABC234"}))
	if err != nil {
		t.Fatalf("handleSync failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error for missing items")
	}
}

func TestClient_handleActive_None(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"session":null}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	result, err := client.handleActive(context.Background(), call("active_group_order", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleActive failed: %v", err)
	}
	if !strings.Contains(textOf(t, result), "not in an active group order") {
		t.Errorf("unexpected text %q", textOf(t, result))
	}
}

func TestClient_handleActive_AgainstAPI(t *testing.T) {
	auth := api.NewAuthenticator("mcp-test-secret", time.Hour)
	backend := httptest.NewServer(api.NewServer(service.New(store.NewMemory()), websocket.NewHub(), auth))
	defer backend.Close()

	token, err := auth.IssueToken(session.Identity{UserID: "p", DisplayName: "Pat"}, false)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	client := NewClient(backend.URL, token)

	result, err := client.handleActive(context.Background(), call("active_group_order", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleActive failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected no tool error, got %q", textOf(t, result))
	}
	if !strings.Contains(textOf(t, result), "not in an active group order") {
		t.Errorf("unexpected text %q", textOf(t, result))
	}

	if _, err := client.handleCreate(context.Background(), call("create_group_order", map[string]interface{}{})); err != nil {
		t.Fatalf("handleCreate failed: %v", err)
	}
	result, err = client.handleActive(context.Background(), call("active_group_order", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleActive failed: %v", err)
	}
	if !strings.Contains(textOf(t, result), "Group order") {
		t.Errorf("Expected session summary, got %q", textOf(t, result))
	}
}

func TestClient_handleComplete_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"not the host","kind":"forbidden"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	result, err := client.handleComplete(context.Background(), call("complete_group_order", map[string]interface{}{
		"code": "ABC234", "order_ref": "ORD-1",
	}))
	if err != nil {
		t.Fatalf("handleComplete failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error")
	}
}

func TestFormatSession(t *testing.T) {
	v := testView()
	text := formatSession(&v)

	for _, want := range []string{
		"Group order ABC234 (active)",
		"Hana [host]: 25.00",
		"2 × Margherita  25.00",
		"Pat [left]",
		"subtotal 25.00",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestFormatCents(t *testing.T) {
	tests := map[int64]string{0: "0.00", 5: "0.05", 1299: "12.99", -150: "-1.50"}
	for in, want := range tests {
		if got := formatCents(in); got != want {
			t.Errorf("formatCents(%d) = %s, want %s", in, got, want)
		}
	}
}
