package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show supportim status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "supportim %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			paths.Apply(&cfg)
			printSummary(out, cfg)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			if server == "" {
				server = defaultServerURL(cfg)
			}
			fmt.Fprintln(out)
			printLiveStatus(cmd.Context(), out, server, cfg.Gateway.SharedSecret)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server base URL (default from config)")
	return cmd
}

func printSummary(out io.Writer, cfg config.Config) {
	auth := "open"
	if cfg.Gateway.SharedSecret != "" {
		auth = "shared-secret"
	}
	fmt.Fprintf(out, "Gateway: port=%d bind=%s mode=%s auth=%s\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Mode, auth)

	switch cfg.Store.Backend {
	case "postgres":
		fmt.Fprintln(out, "Store:   postgres")
	case "memory":
		fmt.Fprintf(out, "Store:   memory snapshot=%s\n", cfg.Store.SnapshotPath)
	default:
		fmt.Fprintf(out, "Store:   sqlite path=%s\n", cfg.Store.Path)
	}

	shared := "local"
	if cfg.RateLimit.RedisURL != "" {
		shared = "redis"
	}
	fmt.Fprintf(out, "Limits:  write=%d upload=%d per %s (%s)\n",
		cfg.RateLimit.WriteMax, cfg.RateLimit.UploadMax, cfg.RateLimit.Window, shared)

	providers := cfg.Translate.Providers
	if len(providers) == 0 {
		providers = config.DefaultProviders
	}
	fmt.Fprintf(out, "Translate: %s -> %s\n", strings.Join(providers, ", "), cfg.Translate.Target)

	if cfg.Notify.IRC != nil {
		irc := cfg.Notify.IRC
		fmt.Fprintf(out, "IRC:     server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		fmt.Fprintln(out, "IRC:     (not configured)")
	}
}

// printLiveStatus queries a running server's health and version endpoints.
func printLiveStatus(ctx context.Context, out io.Writer, server, secret string) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c := newAdminClient(server, secret)
	var info version.Build
	if err := c.do(ctx, "GET", "/api/version", nil, &info); err != nil {
		fmt.Fprintf(out, "Server:  not reachable at %s\n", server)
		return
	}
	fmt.Fprintf(out, "Server:  up at %s (version %s, protocol %d)\n", server, info.Version, info.Protocol)

	var threads []json.RawMessage
	if err := c.do(ctx, "GET", "/api/conversations", nil, &threads); err == nil {
		fmt.Fprintf(out, "Threads: %d\n", len(threads))
	}
}
