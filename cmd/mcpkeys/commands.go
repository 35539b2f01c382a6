package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
)

const timeLayout = "2006-01-02 15:04:05"

func newCreateCmd(c *cli) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "create <label> [scopes]",
		Short: "Create a new API key",
		Long: `Create a new API key. Scopes are comma separated and default to "read".
The token is printed once and cannot be recovered later.`,
		Example: `  mcpkeys create "Production API" read,write,admin
  mcpkeys create "Temp Key" read --ttl 1h`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl < 0 {
				return errors.New("--ttl must not be negative")
			}
			scopes := []string{"read"}
			if len(args) == 2 {
				scopes = splitScopes(args[1])
			}

			issued, err := c.keys.CreateKey(cmd.Context(), args[0], scopes, ttl)
			if err != nil {
				return err
			}
			info, err := c.keys.GetKey(cmd.Context(), issued.KeyID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput {
				return writeJSON(out, struct {
					*apikey.KeyInfo
					Token string `json:"api_key"`
				}{info, issued.Token})
			}

			fmt.Fprintln(out, "API key created.")
			fmt.Fprintln(out)
			printKey(out, info)
			fmt.Fprintf(out, "\n  API Key:   %s\n\n", issued.Token)
			fmt.Fprintln(out, "Store this key securely; it cannot be retrieved later.")
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime of the key (e.g. 1h, 720h); zero never expires")
	return cmd
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := c.keys.ListKeys(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput {
				return writeJSON(out, keys)
			}
			if len(keys) == 0 {
				fmt.Fprintln(out, "No API keys found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY ID\tLABEL\tSCOPES\tCREATED\tLAST USED\tEXPIRES")
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					k.ID,
					truncate(k.Label, 20),
					truncate(strings.Join(k.Scopes, ","), 25),
					formatUnix(k.Created),
					formatOptional(k.LastUsed, "-"),
					formatOptional(k.Expires, "never"),
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Total: %d key(s)\n", len(keys))
			return nil
		},
	}
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key-id>",
		Short: "Show a single API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := c.keys.GetKey(cmd.Context(), args[0])
			if errors.Is(err, apikey.ErrKeyNotFound) {
				return fmt.Errorf("key %q not found", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput {
				return writeJSON(out, info)
			}
			printKey(out, info)
			return nil
		},
	}
}

func newRevokeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			existed, err := c.keys.RevokeKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !existed {
				return fmt.Errorf("key %q not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key %q has been revoked.\n", args[0])
			return nil
		},
	}
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <token>",
		Short: "Validate an API key",
		Long:  "Validate an API key. A successful validation updates the key's last use time.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := c.keys.Validate(cmd.Context(), args[0])
			if errors.Is(err, apikey.ErrInvalidKey) {
				return errors.New("invalid or expired API key")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput {
				return writeJSON(out, info)
			}
			fmt.Fprintln(out, "Valid API key.")
			fmt.Fprintln(out)
			printKey(out, info)
			return nil
		},
	}
}

// printKey prints the fields of info, one per line.
func printKey(w io.Writer, info *apikey.KeyInfo) {
	fmt.Fprintf(w, "  Key ID:    %s\n", info.ID)
	fmt.Fprintf(w, "  Label:     %s\n", info.Label)
	fmt.Fprintf(w, "  Scopes:    %s\n", strings.Join(info.Scopes, ", "))
	fmt.Fprintf(w, "  Created:   %s\n", formatUnix(info.Created))
	if info.LastUsed != nil {
		fmt.Fprintf(w, "  Last Used: %s\n", formatUnix(*info.LastUsed))
	}
	if info.Expires != nil {
		fmt.Fprintf(w, "  Expires:   %s\n", formatUnix(*info.Expires))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitScopes splits a comma separated scope list, dropping blanks.
func splitScopes(s string) []string {
	parts := strings.Split(s, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			scopes = append(scopes, p)
		}
	}
	return scopes
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(timeLayout)
}

func formatOptional(sec *int64, fallback string) string {
	if sec == nil {
		return fallback
	}
	return formatUnix(*sec)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
