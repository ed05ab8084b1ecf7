// Package main implements signalctl, a CLI for manual operations against
// the signald HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the persistent flags shared by every command.
type cli struct {
	serverURL string
	workspace string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "signalctl",
		Short: "CLI for signald HTTP server operations",
		Long: `signalctl is a command-line interface for the signald HTTP server.
It ingests feedback, triggers processing and classification, and reviews
duplicates, clusters and notifications.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.serverURL, "server", "http://localhost:9191", "signald server URL")
	root.PersistentFlags().StringVarP(&c.workspace, "workspace", "w", "default", "workspace identifier")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		c.healthCmd(),
		c.ingestCmd(),
		c.processCmd(),
		c.classifyCmd(),
		c.similarCmd(),
		c.mergeCmd(),
		c.dismissCmd(),
		c.duplicatesCmd(),
		c.clustersCmd(),
		c.notificationsCmd(),
		c.initiativeCmd(),
	)
	return root
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check signald server health",
		Long: `Check the health status of the signald HTTP server.

Examples:
  # Check health
  signalctl health

  # Check health on a different server
  signalctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Status  string `json:"status"`
				Storage string `json:"storage"`
			}
			if err := c.do(http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Storage: %s\n", resp.Storage)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", c.serverURL)
			return nil
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		severity  string
		frequency string
		segment   string
		sourceRef string
		tags      []string
	)
	cmd := &cobra.Command{
		Use:   "ingest [text|-]",
		Short: "Ingest a signal",
		Long: `Ingest a piece of customer feedback as a pending signal.

Examples:
  # Ingest from an argument
  signalctl ingest -w acme "CSV export times out on large accounts"

  # Ingest from stdin with hints
  cat ticket.txt | signalctl ingest -w acme --severity high -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			body := map[string]any{
				"verbatim":    text,
				"severity":    severity,
				"frequency":   frequency,
				"userSegment": segment,
				"sourceRef":   sourceRef,
			}
			if len(tags) > 0 {
				body["tags"] = tags
			}
			var out map[string]any
			if err := c.do(http.MethodPost, c.wsPath("/signals"), body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "", "severity hint: critical, high, medium or low")
	cmd.Flags().StringVar(&frequency, "frequency", "", "frequency hint: common, occasional or rare")
	cmd.Flags().StringVar(&segment, "segment", "", "user segment")
	cmd.Flags().StringVar(&sourceRef, "source-ref", "", "external reference used to ignore re-deliveries")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	return cmd
}

func (c *cli) processCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process [signal-id...]",
		Short: "Process signals",
		Long: `Run extraction and embedding for the given signals. Without ids, every
unprocessed signal of the workspace is processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out any
			var err error
			if len(args) == 1 {
				var sig map[string]any
				err = c.do(http.MethodPost, "/api/v1/signals/"+url.PathEscape(args[0])+"/process", nil, &sig)
				out = sig
			} else {
				body := map[string]any{"ids": args}
				if len(args) == 0 {
					body = map[string]any{"workspaceId": c.workspace, "limit": limit}
				}
				var res map[string]any
				err = c.do(http.MethodPost, "/api/v1/signals/process", body, &res)
				out = res
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum signals to process when no ids are given")
	return cmd
}

func (c *cli) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <signal-id>",
		Short: "Classify a processed signal against the workspace initiatives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := c.do(http.MethodPost, "/api/v1/signals/"+url.PathEscape(args[0])+"/classify", nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func (c *cli) similarCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "similar <signal-id>",
		Short: "List near-duplicates of a signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []map[string]any
			path := fmt.Sprintf("/api/v1/signals/%s/similar?limit=%d", url.PathEscape(args[0]), limit)
			if err := c.do(http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum matches")
	return cmd
}

func (c *cli) mergeCmd() *cobra.Command {
	var (
		actor string
		auto  bool
	)
	cmd := &cobra.Command{
		Use:   "merge <primary-id> <secondary-id>",
		Short: "Merge a duplicate signal into another",
		Long: `Merge the secondary signal into the primary. With --auto the older of the
two signals is kept as primary regardless of argument order.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			body := map[string]any{"primaryId": args[0], "secondaryId": args[1], "actorId": actor, "auto": auto}
			if err := c.do(http.MethodPost, "/api/v1/signals/merge", body, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged into %v\n", out["primaryId"])
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", currentUser(), "who performed the merge")
	cmd.Flags().BoolVar(&auto, "auto", false, "keep the older signal as primary")
	return cmd
}

func (c *cli) dismissCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "dismiss <signal-id> <other-id>",
		Short: "Mark two signals as not duplicates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"signalId": args[0], "otherId": args[1], "actorId": actor}
			if err := c.do(http.MethodPost, "/api/v1/signals/dismiss", body, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Dismissed")
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", currentUser(), "who dismissed the pair")
	return cmd
}

func (c *cli) duplicatesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List near-duplicate pairs in the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out []map[string]any
			if err := c.do(http.MethodGet, c.wsPath(fmt.Sprintf("/duplicates?limit=%d", limit)), nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum pairs")
	return cmd
}

func (c *cli) clustersCmd() *cobra.Command {
	var (
		minSize int
		notify  bool
	)
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Find clusters of pending signals",
		Long: `Cluster the workspace's pending signals. With --notify every cluster is
run through the notification filter and qualifying ones are recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			method, path := http.MethodGet, "/clusters"
			if notify {
				method, path = http.MethodPost, "/clusters/notify"
			}
			if minSize > 0 {
				path += fmt.Sprintf("?minSize=%d", minSize)
			}
			var out map[string]any
			if err := c.do(method, c.wsPath(path), nil, &out); err != nil {
				return err
			}
			if s, ok := out["summary"].(string); ok {
				fmt.Fprintln(cmd.ErrOrStderr(), s)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&minSize, "min-size", 0, "minimum cluster size (server default when 0)")
	cmd.Flags().BoolVar(&notify, "notify", false, "send notifications for qualifying clusters")
	return cmd
}

func (c *cli) notificationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List recent notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out []map[string]any
			if err := c.do(http.MethodGet, c.wsPath(fmt.Sprintf("/notifications?limit=%d", limit)), nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum notifications")
	return cmd
}

func (c *cli) initiativeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initiative",
		Short: "Manage workspace initiatives",
	}

	var description string
	set := &cobra.Command{
		Use:   "set <id> <name>",
		Short: "Create or update an initiative",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Embedded bool   `json:"embedded"`
				Warning  string `json:"warning"`
			}
			body := map[string]any{"name": args[1], "description": description}
			if err := c.do(http.MethodPut, c.wsPath("/initiatives/"+url.PathEscape(args[0])), body, &out); err != nil {
				return err
			}
			if out.Warning != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "[signalctl] warning: %s\n", out.Warning)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved initiative %s (embedded: %t)\n", args[0], out.Embedded)
			return nil
		},
	}
	set.Flags().StringVar(&description, "description", "", "initiative description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List initiatives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out []map[string]any
			if err := c.do(http.MethodGet, c.wsPath("/initiatives"), nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one initiative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := c.do(http.MethodGet, c.wsPath("/initiatives/"+url.PathEscape(args[0])), nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	reembed := &cobra.Command{
		Use:   "reembed",
		Short: "Retry embeddings for initiatives saved without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Embedded int    `json:"embedded"`
				Warning  string `json:"warning"`
			}
			if err := c.do(http.MethodPost, c.wsPath("/initiatives/reembed"), nil, &out); err != nil {
				return err
			}
			if out.Warning != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "[signalctl] warning: %s\n", out.Warning)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d initiative(s)\n", out.Embedded)
			return nil
		},
	}

	cmd.AddCommand(set, list, get, reembed)
	return cmd
}

func (c *cli) wsPath(suffix string) string {
	return "/api/v1/workspaces/" + url.PathEscape(c.workspace) + suffix
}

// do sends body as JSON and decodes a 2xx response into out when out is
// non-nil.
func (c *cli) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	target := strings.TrimRight(c.serverURL, "/") + path
	httpReq, err := http.NewRequest(method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: c.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readText returns the single argument, or stdin when it is "-" or absent.
func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	content, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("no content to ingest")
	}
	return text, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "signalctl"
}
