package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/facemood/internal/auth"
	"github.com/ent0n29/facemood/internal/config"
)

type tokenOptions struct {
	secret string
	ttl    time.Duration
}

func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue or verify session tokens",
	}
	cmd.PersistentFlags().StringVar(&opts.secret, "secret", "", "signing secret (defaults to AUTH_SECRET)")
	cmd.PersistentFlags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (defaults to AUTH_TOKEN_TTL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "issue <subject>",
		Short: "Print a signed token for subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := opts.gate()
			if err != nil {
				return err
			}
			token, err := gate.IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Validate a token and print its subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, err := opts.gate()
			if err != nil {
				return err
			}
			subject, err := gate.Validate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), subject)
			return nil
		},
	})
	return cmd
}

// gate prefers flags and falls back to the server configuration so tokens
// match what the server will accept.
func (o *tokenOptions) gate() (*auth.JWTGate, error) {
	secret, ttl := strings.TrimSpace(o.secret), o.ttl
	if secret == "" || ttl <= 0 {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if secret == "" {
			secret = cfg.AuthSecret
		}
		if ttl <= 0 {
			ttl = cfg.AuthTokenTTL
		}
	}
	if secret == "" {
		return nil, fmt.Errorf("no signing secret: pass --secret or set AUTH_SECRET")
	}
	return auth.NewJWTGate(secret, ttl)
}
