package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/gateway"
	"github.com/soyeahso/supportim/internal/geo"
	"github.com/soyeahso/supportim/internal/hooks"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/notify"
	"github.com/soyeahso/supportim/internal/notify/irc"
	"github.com/soyeahso/supportim/internal/ratelimit"
	"github.com/soyeahso/supportim/internal/store"
	"github.com/soyeahso/supportim/internal/translate"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	port    int
	bind    string
	backend string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	addServeFlags(cmd, &f)
	return cmd
}

// newGatewayCmd keeps "gateway run" working as an alias of serve.
func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "gateway",
		Short:  "Manage the chat server",
		Hidden: true,
	}
	var f serveFlags
	run := &cobra.Command{
		Use:   "run",
		Short: "Start the chat server (same as serve)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	addServeFlags(run, &f)
	cmd.AddCommand(run)
	return cmd
}

func addServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().IntVar(&f.port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&f.bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().StringVar(&f.backend, "store", "", "override store backend (sqlite, postgres, memory)")
}

func runServe(f serveFlags) error {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}
	if f.port != 0 {
		cfg.Gateway.Port = f.port
	}
	if f.bind != "" {
		cfg.Gateway.Bind = f.bind
	}
	if f.backend != "" {
		cfg.Store.Backend = f.backend
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("creating data directories: %w", err)
	}
	paths.Apply(&cfg)

	root, closer, err := logging.Open(logging.Options{
		Level: cfg.Logging.Level,
		Style: cfg.Logging.ConsoleStyle,
		File:  cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer closer.Close()

	// Block until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.Open(ctx, cfg.Store, root)
	defer st.Close()

	hookMgr := hooks.NewManager(root)
	opts := []gateway.ServerOption{
		gateway.WithHooks(hookMgr),
		gateway.WithGeo(geo.New(cfg.Geo, root)),
	}

	chain, err := translate.FromConfig(ctx, cfg.Translate, root)
	if err != nil {
		root.Warn().Err(err).Msg("translation disabled")
	} else {
		opts = append(opts, gateway.WithTranslator(chain))
	}

	if cfg.RateLimit.RedisURL != "" {
		counter, err := ratelimit.NewRedisCounter(cfg.RateLimit.RedisURL)
		if err != nil {
			return err
		}
		defer counter.Close()
		if err := counter.Ping(ctx); err != nil {
			root.Warn().Err(err).Msg("redis unreachable, limits stay per-process until it recovers")
		}
		opts = append(opts, gateway.WithCounter(counter))
	}

	if cfg.Notify.IRC != nil {
		notifiers := notify.NewRegistry(root)
		notifiers.Register(irc.New(*cfg.Notify.IRC, root))
		opts = append(opts, gateway.WithNotifiers(notifiers))
	}

	srv := gateway.New(cfg, st, root, opts...)
	return srv.Start(ctx)
}
