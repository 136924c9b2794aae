package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/groupcart/api"
	"github.com/wricardo/groupcart/group/catalog"
	"github.com/wricardo/groupcart/group/reaper"
	"github.com/wricardo/groupcart/group/session"
)

func (a *app) reapCmd() *cli.Command {
	return &cli.Command{
		Name:  "reap",
		Usage: "Delete expired sessions once and exit",
		Description: `Removes every session created more than SESSION_TTL ago, whatever its
status. The server runs the same sweep every REAP_INTERVAL.`,
		Action: func(ctx context.Context, c *cli.Command) error {
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			removed, err := reaper.New(st,
				reaper.WithTTL(a.cfg.SessionTTL),
				reaper.WithLogger(a.log),
			).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Removed %d expired session(s)\n", removed)
			return nil
		},
	}
}

func (a *app) tokenCmd() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Issue a bearer token for development",
		UsageText: "groupcart token --user u1 [--name Uma] [--avatar ref] [--mod]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "user id (token subject)"},
			&cli.StringFlag{Name: "name", Usage: "display name"},
			&cli.StringFlag{Name: "avatar", Usage: "avatar reference"},
			&cli.BoolFlag{Name: "mod", Usage: "grant moderator rights"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (defaults to TOKEN_TTL)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if a.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to issue tokens")
			}
			ttl := a.cfg.TokenTTL
			if c.IsSet("ttl") {
				ttl = c.Duration("ttl")
			}

			tok, err := api.NewAuthenticator(a.cfg.JWTSecret, ttl).IssueToken(session.Identity{
				UserID:      c.String("user"),
				DisplayName: c.String("name"),
				AvatarRef:   c.String("avatar"),
			}, c.Bool("mod"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, tok)
			return nil
		},
	}
}

func (a *app) validateMenusCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate-menus",
		Usage:     "Validate restaurant menu files",
		UsageText: "groupcart validate-menus [path ...]",
		Description: `Checks every .yaml, .yml and .json menu in the given files or
directories (MENU_DIR by default) and exits non-zero if any is invalid.`,
		Action: func(ctx context.Context, c *cli.Command) error {
			paths := c.Args().Slice()
			if len(paths) == 0 {
				paths = []string{a.cfg.MenuDir}
			}

			var results []catalog.ValidationResult
			for _, p := range paths {
				info, err := os.Stat(p)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					results = append(results, catalog.ValidateFile(p))
					continue
				}
				dirResults, err := catalog.ValidateDir(p)
				if err != nil {
					return err
				}
				results = append(results, dirResults...)
			}

			w := c.Root().Writer
			invalid := 0
			for _, r := range results {
				status := "OK  "
				if !r.Valid {
					status = "FAIL"
					invalid++
				}
				fmt.Fprintf(w, "%s %s\n", status, r.File)
				for _, msg := range r.Messages {
					fmt.Fprintf(w, "     %s\n", msg)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d menu(s) invalid", invalid, len(results))
			}
			fmt.Fprintf(w, "%d menu(s) valid\n", len(results))
			return nil
		},
	}
}
