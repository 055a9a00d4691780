// Package cli defines the Cobra commands for facemoodctl.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev" // set via ldflags at build time

type rootOptions struct {
	server  string
	token   string
	timeout time.Duration
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "facemoodctl",
		Short: "Operate a facemood emotion inference server",
		Long: `facemoodctl issues and checks session tokens and queries a running
facemood server for persisted emotion observations.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("FACEMOOD_SERVER", "http://127.0.0.1:8080"), "facemood base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("FACEMOOD_TOKEN"), "bearer token for authenticated servers")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP request timeout")

	root.AddCommand(newTokenCommand())
	root.AddCommand(newLatestCommand(opts))
	root.AddCommand(newRecentCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
