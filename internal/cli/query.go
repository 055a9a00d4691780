package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/facemood/internal/store"
)

func newLatestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <subject>",
		Short: "Show the latest persisted emotion for a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var obs store.Observation
			path := "/v1/subjects/" + url.PathEscape(args[0])
			if err := opts.getJSON(cmd.Context(), path, &obs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", args[0], obs.Label, obs.ObservedAt.Format("2006-01-02T15:04:05.000Z07:00"))
			return nil
		},
	}
}

func newRecentCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent observations from the event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Observations []store.Observation `json:"observations"`
			}
			if err := opts.getJSON(cmd.Context(), fmt.Sprintf("/v1/observations?limit=%d", limit), &out); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, obs := range out.Observations {
				subject := obs.Subject
				if subject == "" {
					subject = "-"
				}
				fmt.Fprintf(w, "%s\t%-10s\t%s\n", obs.ObservedAt.Format("2006-01-02T15:04:05.000Z07:00"), obs.Label, subject)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum observations to list")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server backends and readiness checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st struct {
				Backends struct {
					Classifier string `json:"classifier"`
					Detector   string `json:"detector"`
					Store      string `json:"store"`
				} `json:"backends"`
				PersistMode    string `json:"persist_mode"`
				ActiveSessions int    `json:"active_sessions"`
				Checks         []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Detail string `json:"detail"`
					Fix    string `json:"fix"`
				} `json:"checks"`
			}
			if err := opts.getJSON(cmd.Context(), "/v1/status", &st); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "classifier=%s detector=%s store=%s persist=%s sessions=%d\n",
				st.Backends.Classifier, st.Backends.Detector, st.Backends.Store, st.PersistMode, st.ActiveSessions)
			for _, c := range st.Checks {
				fmt.Fprintf(w, "  %-5s %-11s %s\n", c.Status, c.ID, c.Detail)
				if c.Fix != "" {
					fmt.Fprintf(w, "        fix: %s\n", c.Fix)
				}
			}
			return nil
		},
	}
}

func (o *rootOptions) getJSON(ctx context.Context, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	base := strings.TrimRight(strings.TrimSpace(o.server), "/")
	if base == "" {
		return fmt.Errorf("--server is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	if tok := strings.TrimSpace(o.token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	client := &http.Client{Timeout: o.timeout}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("HTTP %d %s: %s", res.StatusCode, apiErr.Code, apiErr.Error)
		}
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
