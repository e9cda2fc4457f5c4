package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm/hxnet"
	"github.com/pthm/hxnet/lib/config"
	"github.com/pthm/hxnet/lib/demo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Serve the demo site",
		Long: `Serve the demo site until interrupted.

Examples:
  hxnet serve                       # Serve on :8080
  hxnet serve -p 3000 --debug       # Diagnostic placeholders for failed renders
  hxnet serve --static ./public     # Serve files from ./public as well`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", 8080, "port to serve on")
	flags.String("host", "", "host to bind to")
	flags.String("static", "", "directory of static files")
	flags.Bool("compress", true, "gzip responses")
	flags.Bool("csrf", true, "require the HX-Request header on mutating requests")
	flags.Bool("debug", false, "render diagnostic placeholders for failed components")
	flags.String("key", "", "key signing component parameters (random if empty)")

	bind(v, "server.port", flags.Lookup("port"))
	bind(v, "server.host", flags.Lookup("host"))
	bind(v, "site.static_dir", flags.Lookup("static"))
	bind(v, "site.compression", flags.Lookup("compress"))
	bind(v, "site.csrf", flags.Lookup("csrf"))
	bind(v, "site.debug", flags.Lookup("debug"))
	bind(v, "site.key", flags.Lookup("key"))
	return cmd
}

// newSite builds the demo website described by cfg.
func newSite(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*hxnet.Website, error) {
	opts := []hxnet.WebsiteOption{
		hxnet.WithSiteLogger(logger),
		hxnet.WithSiteDebug(cfg.Site.Debug),
		hxnet.WithCompression(cfg.Site.Compression),
		hxnet.WithCSRFProtection(cfg.Site.CSRF),
	}
	if cfg.Site.StaticDir != "" {
		opts = append(opts, hxnet.WithStaticDir(cfg.Site.StaticDir))
	}
	if cfg.Site.Key != "" {
		opts = append(opts, hxnet.WithKey([]byte(cfg.Site.Key)))
	}

	site, err := hxnet.NewWebsite(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := site.AddPage(ctx, "/", demo.Home(&demo.Stats{})); err != nil {
		return nil, fmt.Errorf("add demo page: %w", err)
	}
	return site, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	site, err := newSite(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Site.Key == "" {
		logger.Warn("no key configured, component parameters will not survive restarts")
	}
	return site.Serve(ctx, cfg.Addr())
}
