// Command groupcart runs the collaborative group-ordering server.
//
// Commands:
//  1. "serve" (default) runs the HTTP server exposing the REST API, the
//     WebSocket channel and an /mcp HTTP endpoint
//  2. "stdio-mcp" runs an MCP stdio server against an existing API, or an
//     internal one when none is configured
//  3. "reap", "token" and "validate-menus" are one-shot maintenance tools
//
// Settings come from the environment (and .env); global flags override them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/groupcart/config"
	"github.com/wricardo/groupcart/logging"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "groupcart"
)

// app holds the state shared by every command once Before has run.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	closeLog func()
}

func newApp() *cli.Command {
	a := &app{closeLog: func() {}}

	root := &cli.Command{
		Name:    AppName,
		Usage:   "Collaborative group ordering sessions",
		Version: Version,
		Description: `groupcart lets a host open a shared cart, invite friends with a short
code, and place one order with everyone's items.

Run 'groupcart' with no arguments to start the server.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "HTTP server host (HOST)"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port (PORT)"},
			&cli.StringFlag{Name: "log-level", Usage: "log level: debug, info, warn, error (LOG_LEVEL)"},
			&cli.BoolFlag{Name: "log-pretty", Usage: "human-readable console logs (LOG_PRETTY)"},
			&cli.StringFlag{Name: "store", Usage: "session store: memory, file, sqlite, postgres (STORE_DRIVER)"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory for file and sqlite stores (DATA_DIR)"},
			&cli.StringFlag{Name: "menu-dir", Usage: "directory containing restaurant menus (MENU_DIR)"},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load()
			if err != nil {
				return ctx, err
			}
			applyFlags(cfg, c)
			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid configuration: %w", err)
			}

			logger, closer, err := logging.New(cfg.LogLevel, cfg.LogPretty, cfg.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			a.cfg, a.log, a.closeLog = cfg, logger, closer
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			a.closeLog()
			return nil
		},
		Commands: []*cli.Command{
			a.serveCmd(),
			a.stdioMCPCmd(),
			a.reapCmd(),
			a.tokenCmd(),
			a.validateMenusCmd(),
		},
	}

	root.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run '%s --help' for usage", c.Args().First(), AppName)
		}
		return a.serve(ctx)
	}
	return root
}

// applyFlags copies explicitly set global flags over the environment config.
func applyFlags(cfg *config.Config, c *cli.Command) {
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = int(c.Int("port"))
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-pretty") {
		cfg.LogPretty = c.Bool("log-pretty")
	}
	if c.IsSet("store") {
		cfg.StoreDriver = c.String("store")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("menu-dir") {
		cfg.MenuDir = c.String("menu-dir")
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
