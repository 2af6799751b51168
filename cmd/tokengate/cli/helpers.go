package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/faucetdb/tokengate/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// TOKENGATE_DATA_DIR env var, or ~/.tokengate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TOKENGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tokengate")
}

// envOverrides lists the settings that TOKENGATE_* environment variables
// may replace, e.g. TOKENGATE_STORE_DSN for store.dsn.
var envOverrides = map[string]func(cfg *config.YAMLConfig){
	"server.host":        func(cfg *config.YAMLConfig) { cfg.Server.Host = viper.GetString("server.host") },
	"server.port":        func(cfg *config.YAMLConfig) { cfg.Server.Port = viper.GetInt("server.port") },
	"server.rate_limit":  func(cfg *config.YAMLConfig) { cfg.Server.RateLimit = viper.GetInt("server.rate_limit") },
	"store.driver":       func(cfg *config.YAMLConfig) { cfg.Store.Driver = viper.GetString("store.driver") },
	"store.dsn":          func(cfg *config.YAMLConfig) { cfg.Store.DSN = viper.GetString("store.dsn") },
	"auth.cookie_secret": func(cfg *config.YAMLConfig) { cfg.Auth.CookieSecret = viper.GetString("auth.cookie_secret") },
	"auth.default_ttl":   func(cfg *config.YAMLConfig) { cfg.Auth.DefaultTTL = viper.GetInt64("auth.default_ttl") },
	"logging.level":      func(cfg *config.YAMLConfig) { cfg.Logging.Level = viper.GetString("logging.level") },
	"logging.format":     func(cfg *config.YAMLConfig) { cfg.Logging.Format = viper.GetString("logging.format") },
}

func envName(key string) string {
	return "TOKENGATE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// loadConfig reads the config file viper located, or the defaults when there
// is none, then applies environment overrides. The file itself is parsed by
// config.LoadYAMLConfig so ${VAR} expansion and rule validation apply.
func loadConfig() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for key, apply := range envOverrides {
		if _, ok := os.LookupEnv(envName(key)); ok {
			apply(cfg)
		}
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = resolveDataDir()
	}
	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openConfigStore loads the configuration and opens its store.
func openConfigStore() (*config.Store, *config.YAMLConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := cfg.Store.OpenStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open config store: %w", err)
	}
	return store, cfg, nil
}

// newLogger builds the process logger from the logging block. dev forces
// debug level.
func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// writeJSON pretty-prints v for --json output.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// displayHost maps a wildcard listen address to one a browser can open.
func displayHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::":
		return "localhost"
	}
	return host
}
