package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/tokengate/internal/server"
)

const banner = `
 _        _                          _
| |_ ___ | | _____ _ __   __ _  __ _| |_ ___
| __/ _ \| |/ / _ \ '_ \ / _' |/ _' | __/ _ \
| || (_) |   <  __/ | | | (_| | (_| | ||  __/
 \__\___/|_|\_\___|_| |_|\__, |\__,_|\__\___|
                         |___/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tokengate API server",
		Long:  "Start the HTTP server that exposes the configured models behind token resolution and ACL checks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = viper.GetInt("server.port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = viper.GetString("server.host")
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, banner)
	fmt.Fprintln(out)

	logger := newLogger(cfg.Logging, dev)

	// 1. Open the store holding tokens, roles and stored rules
	store, err := cfg.Store.OpenStore()
	if err != nil {
		return fmt.Errorf("init config store: %w", err)
	}
	driver, _ := cfg.Store.StoreDSN()
	logger.Info("config store initialized", "driver", driver, "data_dir", cfg.Store.DataDir)

	// 2. Wire token service, registry and server
	ctx := context.Background()
	srv, err := server.NewFromYAML(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}

	// 3. Drop tokens that expired while the server was down
	if purged, err := srv.Tokens().PurgeExpired(ctx); err != nil {
		logger.Warn("failed to purge expired tokens", "error", err)
	} else if purged > 0 {
		logger.Info("purged expired tokens", "count", purged)
	}

	fmt.Fprintf(out, "→ tokengate %s\n", versionString())
	fmt.Fprintf(out, "→ Listening on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "→ OpenAPI:    http://%s:%d/openapi.json\n", displayHost(cfg.Server.Host), cfg.Server.Port)
	fmt.Fprintf(out, "→ Health:     http://%s:%d/healthz\n", displayHost(cfg.Server.Host), cfg.Server.Port)
	fmt.Fprintf(out, "→ Models:     %d\n", len(srv.Dispatcher().Registry().Models()))
	fmt.Fprintln(out)

	return srv.ListenAndServe()
}
