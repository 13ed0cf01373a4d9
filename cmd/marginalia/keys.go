package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/custodia-labs/marginalia/internal/adapters/driven/auth"
	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func hashKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-key",
		Usage:     "Print the bcrypt hash of an API key for auth.api_key_hash",
		ArgsUsage: "[key]",
		Action: func(c *cli.Context) error {
			key := c.Args().First()
			if key == "" {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key from stdin: %w", err)
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return fmt.Errorf("%w: empty key", domain.ErrInvalidInput)
			}

			hash, err := auth.NewAdapter("").HashKey(key)
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token signed with auth.jwt_secret",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Usage: "Token subject", Required: true},
			&cli.StringFlag{Name: "kind", Usage: "Author kind: human or agent", Value: string(domain.AuthorKindHuman)},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime (defaults to auth.token_ttl)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("%w: auth.jwt_secret is not set", domain.ErrInvalidInput)
			}

			kind := domain.AuthorKind(c.String("kind"))
			if kind != domain.AuthorKindHuman && kind != domain.AuthorKindAgent {
				return fmt.Errorf("%w: unknown author kind %q", domain.ErrInvalidInput, kind)
			}
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			if ttl <= 0 {
				ttl = 12 * time.Hour
			}

			token, claims, err := auth.NewAdapter(cfg.Auth.JWTSecret).Issue(c.String("subject"), kind, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			fmt.Fprintf(c.App.ErrWriter, "expires %s\n", time.Unix(claims.ExpiresAt, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
}
