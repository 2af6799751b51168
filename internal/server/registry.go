package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/faucetdb/tokengate/internal/config"
	"github.com/faucetdb/tokengate/internal/remote"
	"github.com/faucetdb/tokengate/internal/service"
)

// BuildRegistry registers every model declared in cfg with the standard
// methods over an in-memory repository, plus the built-in AccessToken model.
// A declared AccessToken entry adds its settings and rules to the built-in
// model instead of replacing it.
func BuildRegistry(cfg *config.YAMLConfig, tokens *service.TokenService) (*remote.Registry, error) {
	registry := remote.NewRegistry()

	var tokenModel *config.ModelYAML
	for i := range cfg.Models {
		decl := cfg.Models[i]
		if decl.Name == remote.AccessTokenModelName {
			tokenModel = &cfg.Models[i]
			continue
		}
		settings, err := decl.Settings()
		if err != nil {
			return nil, err
		}
		m := remote.ExposeStandardMethods(remote.NewModel(decl.Name, settings), remote.NewMemoryRepository())
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("register model %s: %w", decl.Name, err)
		}
	}

	var decl config.ModelYAML
	if tokenModel != nil {
		decl = *tokenModel
	}
	decl.Name = remote.AccessTokenModelName
	settings, err := decl.Settings()
	if err != nil {
		return nil, err
	}
	if err := registry.Register(remote.NewAccessTokenModel(tokens, settings, cfg.Auth.DefaultTTL)); err != nil {
		return nil, fmt.Errorf("register model %s: %w", remote.AccessTokenModelName, err)
	}
	return registry, nil
}

// ConfigFromYAML converts the file configuration into a server Config. The
// cookie secret is resolved separately since it may live in the store.
func ConfigFromYAML(cfg *config.YAMLConfig) (Config, error) {
	app, err := cfg.AppSettings()
	if err != nil {
		return Config{}, err
	}
	bodyLimit, err := cfg.Server.BodyLimit()
	if err != nil {
		return Config{}, err
	}
	shutdown, err := cfg.Server.ShutdownDuration()
	if err != nil {
		return Config{}, err
	}

	srvCfg := DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.ShutdownTimeout = shutdown
	srvCfg.MaxBodySize = bodyLimit
	srvCfg.RateLimit = cfg.Server.RateLimit
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}
	if len(cfg.Server.CORS.Methods) > 0 {
		srvCfg.CORSMethods = cfg.Server.CORS.Methods
	}
	srvCfg.App = app
	srvCfg.TokenParams = cfg.Auth.Params
	srvCfg.TokenHeaders = cfg.Auth.Headers
	srvCfg.TokenCookies = cfg.Auth.Cookies
	return srvCfg, nil
}

// NewFromYAML wires a Server from a loaded configuration file: token
// service over store, registry from the declared models and the cookie
// secret from the file or the store.
func NewFromYAML(ctx context.Context, cfg *config.YAMLConfig, store *config.Store, logger *slog.Logger) (*Server, error) {
	srvCfg, err := ConfigFromYAML(cfg)
	if err != nil {
		return nil, err
	}
	secret, err := store.CookieSecret(ctx, cfg.Auth.CookieSecret)
	if err != nil {
		return nil, fmt.Errorf("cookie secret: %w", err)
	}
	srvCfg.CookieSecret = secret

	tokens := service.NewTokenService(store)
	registry, err := BuildRegistry(cfg, tokens)
	if err != nil {
		return nil, err
	}
	return New(srvCfg, store, tokens, registry, logger), nil
}
