package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/groupcart/api"
	"github.com/wricardo/groupcart/group/catalog"
	"github.com/wricardo/groupcart/group/reaper"
	"github.com/wricardo/groupcart/group/service"
	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/group/store"
	"github.com/wricardo/groupcart/transport/amqprelay"
	"github.com/wricardo/groupcart/transport/mcp"
	"github.com/wricardo/groupcart/transport/websocket"
)

// core is the wired domain: store, hub, optional relay and the service.
type core struct {
	store   store.Store
	hub     *websocket.Hub
	relay   *amqprelay.Relay
	service *service.Service
	reaper  *reaper.Reaper
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:      a.cfg.StoreDriver,
		DataDir:     a.cfg.DataDir,
		DatabaseURL: a.cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.StoreDriver, err)
	}
	return st, nil
}

// newCore wires the store, catalog, hub, relay, service and reaper.
func (a *app) newCore(ctx context.Context) (*core, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	c := &core{store: st}
	c.hub = websocket.NewHub(
		websocket.WithLogger(a.log),
		websocket.WithCheckOrigin(originChecker(a.cfg.AllowedOrigins)),
	)

	var events service.Broadcaster = c.hub
	if a.cfg.AMQPURL != "" {
		relay, err := amqprelay.Dial(a.cfg.AMQPURL, a.cfg.AMQPExchange, c.hub, a.log)
		if err != nil {
			st.Close()
			return nil, err
		}
		c.relay = relay
		events = relay
	}

	opts := []service.Option{
		service.WithBroadcaster(events),
		service.WithLogger(a.log),
		service.WithTTL(a.cfg.SessionTTL),
	}
	menus, err := catalog.NewManager(a.cfg.MenuDir)
	if err != nil {
		a.log.Warn().Err(err).Msg("menus unavailable, items will not be decorated")
	} else {
		opts = append(opts, service.WithCatalog(menus))
	}
	c.service = service.New(st, opts...)

	c.reaper = reaper.New(st,
		reaper.WithTTL(a.cfg.SessionTTL),
		reaper.WithInterval(a.cfg.ReapInterval),
		reaper.WithLogger(a.log),
	)
	return c, nil
}

func (c *core) Close() error {
	var errs []error
	if c.relay != nil {
		errs = append(errs, c.relay.Close())
	}
	errs = append(errs, c.store.Close())
	return errors.Join(errs...)
}

// run starts the hub, relay consumer and reaper on g.
func (c *core) run(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return c.hub.Run(ctx) })
	g.Go(func() error { return c.reaper.Run(ctx) })
	if c.relay != nil {
		g.Go(func() error { return c.relay.Run(ctx) })
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// mcpHandler serves MCP JSON-RPC over HTTP, forwarding the caller's bearer
// token to the REST API.
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		ctx := mcp.WithToken(r.Context(), api.BearerToken(r))
		response := client.GetMCPServer().HandleMessage(ctx, body)

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

func (a *app) serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server with REST API, WebSocket and MCP endpoint (default)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ngrok", Usage: "expose the server through an ngrok tunnel (NGROK_ENABLED)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (NGROK_DOMAIN)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.IsSet("ngrok") {
				a.cfg.NgrokEnabled = c.Bool("ngrok")
			}
			if c.IsSet("ngrok-domain") {
				a.cfg.NgrokDomain = c.String("ngrok-domain")
			}
			return a.serve(ctx)
		},
	}
}

// serve runs the HTTP server, background workers and optional ngrok tunnel
// until SIGINT or SIGTERM.
func (a *app) serve(ctx context.Context) error {
	if a.cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := a.newCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	auth := api.NewAuthenticator(a.cfg.JWTSecret, a.cfg.TokenTTL)
	apiServer := api.NewServer(c.service, c.hub, auth,
		api.WithLogger(a.log),
		api.WithAllowedOrigins(a.cfg.AllowedOrigins),
	)

	addr := a.cfg.Addr()
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr), a.cfg.MCPToken)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcpClient))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	c.run(gctx, g)

	g.Go(func() error {
		a.log.Info().
			Str("addr", addr).
			Str("store", a.cfg.StoreDriver).
			Bool("relay", c.relay != nil).
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.cfg.NgrokEnabled {
		g.Go(func() error { return a.runNgrok(gctx, mainRouter) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info().Msg("server stopped")
	return nil
}

// runNgrok serves handler through an ngrok tunnel. A missing auth token only
// disables the tunnel.
func (a *app) runNgrok(ctx context.Context, handler http.Handler) error {
	if a.cfg.NgrokAuthToken == "" {
		a.log.Warn().Msg("ngrok enabled but NGROK_AUTHTOKEN is not set, skipping tunnel")
		return nil
	}

	tunnel := ngrokConfig.HTTPEndpoint()
	if a.cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(a.cfg.NgrokDomain))
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(a.cfg.NgrokAuthToken))
	if err != nil {
		a.log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return nil
	}

	a.log.Info().Str("url", tun.URL()).Msg("ngrok tunnel established")

	go func() {
		<-ctx.Done()
		tun.Close()
	}()
	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		a.log.Warn().Err(err).Msg("ngrok server stopped")
	}
	return nil
}

func (a *app) stdioMCPCmd() *cli.Command {
	return &cli.Command{
		Name:    "stdio-mcp",
		Aliases: []string{"mcp"},
		Usage:   "Run an MCP stdio server",
		Description: `Proxies MCP tool calls to the REST API at MCP_BASE_URL using MCP_TOKEN.
Without MCP_BASE_URL an internal API is started on a loopback port and a
token is issued for --user.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Value: "mcp-agent", Usage: "user id for the internal API token"},
			&cli.StringFlag{Name: "name", Value: "Agent", Usage: "display name for the internal API token"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return a.runStdioMCP(ctx, session.Identity{UserID: c.String("user"), DisplayName: c.String("name")})
		},
	}
}

// runStdioMCP serves MCP over stdio. Logs go to stderr so stdout stays the
// protocol stream.
func (a *app) runStdioMCP(ctx context.Context, id session.Identity) error {
	baseURL, token := a.cfg.MCPBaseURL, a.cfg.MCPToken

	if baseURL == "" {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		secret := a.cfg.JWTSecret
		if secret == "" {
			secret = randomSecret()
		}
		auth := api.NewAuthenticator(secret, a.cfg.TokenTTL)

		c, err := a.newCore(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		httpServer := &http.Server{Handler: api.NewServer(c.service, c.hub, auth, api.WithLogger(a.log))}

		g, gctx := errgroup.WithContext(ctx)
		c.run(gctx, g)
		g.Go(func() error {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		defer func() {
			httpServer.Close()
			cancel()
			g.Wait()
		}()

		baseURL = "http://" + listener.Addr().String()
		if token == "" {
			if token, err = auth.IssueToken(id, false); err != nil {
				return err
			}
		}
		a.log.Info().Str("addr", listener.Addr().String()).Str("user_id", id.UserID).Msg("internal API started for MCP stdio")
	}

	client := mcp.NewClient(baseURL, token)
	a.log.Info().Str("api", baseURL).Msg("MCP stdio server ready")
	return mcpserver.ServeStdio(client.GetMCPServer())
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
