package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faucetdb/tokengate/internal/model"
)

// YAMLConfig represents the top-level tokengate configuration file.
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	ACL     ACLConfig     `yaml:"acl"`
	Models  []ModelYAML   `yaml:"models"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	MaxBodySize     string     `yaml:"max_body_size"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	RateLimit       int        `yaml:"rate_limit"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls where access tokens are looked for and how the
// authorization cookie is signed.
type AuthConfig struct {
	CookieSecret string   `yaml:"cookie_secret"`
	Params       []string `yaml:"params"`
	Headers      []string `yaml:"headers"`
	Cookies      []string `yaml:"cookies"`
	// DefaultTTL is the lifetime in seconds given to tokens issued through
	// the CLI or the AccessToken model when none is supplied. Zero means no
	// expiry.
	DefaultTTL int64 `yaml:"default_ttl"`
}

// StoreConfig selects the database that holds tokens, roles and ACL rules.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// ACLConfig holds app-wide authorization defaults.
type ACLConfig struct {
	ErrorStatus       int    `yaml:"error_status"`
	DefaultPermission string `yaml:"default_permission"`
}

// ModelYAML declares a model, its static ACLs and per-model overrides.
type ModelYAML struct {
	Name              string          `yaml:"name"`
	ACLErrorStatus    int             `yaml:"acl_error_status,omitempty"`
	DefaultPermission string          `yaml:"default_permission,omitempty"`
	AuthRequired      []string        `yaml:"auth_required,omitempty"`
	ACLs              []model.ACLRule `yaml:"acls,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Missing fields keep their defaults.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseYAMLConfig(data)
}

// ParseYAMLConfig parses configuration bytes on top of DefaultYAMLConfig.
func ParseYAMLConfig(data []byte) (*YAMLConfig, error) {
	content := expandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR_NAME} references only. Bare $names are left
// alone because dynamic role ids such as $everyone use that form.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "1MB",
			ShutdownTimeout: "30s",
			RateLimit:       100,
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
		},
		Auth: AuthConfig{
			Params:     []string{"access_token"},
			Headers:    []string{"Authorization", "X-Access-Token"},
			Cookies:    []string{"authorization"},
			DefaultTTL: 1209600,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	cfg.Models = []ModelYAML{{
		Name:           "widget",
		ACLErrorStatus: 403,
		AuthRequired:   []string{"WRITE"},
		ACLs: []model.ACLRule{
			{AccessType: model.AccessAll, Permission: model.PermissionDeny, PrincipalType: model.PrincipalRole, PrincipalID: model.RoleEveryone},
			{AccessType: model.AccessRead, Permission: model.PermissionAllow, PrincipalType: model.PrincipalRole, PrincipalID: model.RoleEveryone},
			{AccessType: model.AccessAll, Permission: model.PermissionAllow, PrincipalType: model.PrincipalRole, PrincipalID: model.RoleAuthenticated},
		},
	}}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the enum values in the file so that a bad rule fails at
// load time rather than on the first request.
func (c *YAMLConfig) Validate() error {
	var errs []error
	if _, err := c.Server.BodyLimit(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Server.ShutdownDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.AppSettings(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			errs = append(errs, errors.New("models: name is required"))
			continue
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Errorf("models: duplicate model %q", m.Name))
		}
		seen[m.Name] = true
		if _, err := m.Settings(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AppSettings converts the acl block into model.AppSettings.
func (c *YAMLConfig) AppSettings() (model.AppSettings, error) {
	var s model.AppSettings
	if c.ACL.ErrorStatus != 0 {
		if err := checkStatus(c.ACL.ErrorStatus); err != nil {
			return s, fmt.Errorf("acl.error_status: %w", err)
		}
		s.ACLErrorStatus = model.Ptr(c.ACL.ErrorStatus)
	}
	if c.ACL.DefaultPermission != "" {
		p, err := model.ParsePermission(c.ACL.DefaultPermission)
		if err != nil {
			return s, fmt.Errorf("acl.default_permission: %w", err)
		}
		s.DefaultPermission = &p
	}
	return s, nil
}

// Settings converts a model declaration into model.ModelSettings with
// normalized, validated rules.
func (m ModelYAML) Settings() (model.ModelSettings, error) {
	var s model.ModelSettings
	if m.ACLErrorStatus != 0 {
		if err := checkStatus(m.ACLErrorStatus); err != nil {
			return s, fmt.Errorf("model %s: acl_error_status: %w", m.Name, err)
		}
		s.ACLErrorStatus = model.Ptr(m.ACLErrorStatus)
	}
	if m.DefaultPermission != "" {
		p, err := model.ParsePermission(m.DefaultPermission)
		if err != nil {
			return s, fmt.Errorf("model %s: default_permission: %w", m.Name, err)
		}
		s.DefaultPermission = &p
	}
	for _, at := range m.AuthRequired {
		parsed, err := model.ParseAccessType(at)
		if err != nil {
			return s, fmt.Errorf("model %s: auth_required: %w", m.Name, err)
		}
		s.AuthRequired = append(s.AuthRequired, parsed)
	}
	for i, r := range m.ACLs {
		rule := r.Normalize()
		rule.Model = m.Name
		if err := rule.Validate(); err != nil {
			return s, fmt.Errorf("model %s: acls[%d]: %w", m.Name, i, err)
		}
		s.ACLs = append(s.ACLs, rule)
	}
	return s, nil
}

// BodyLimit parses max_body_size. Accepted forms are a byte count or a
// number followed by KB, MB or GB. Empty means no limit.
func (c ServerConfig) BodyLimit() (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(c.MaxBodySize))
	if v == "" {
		return 0, nil
	}
	mult := int64(1)
	for _, unit := range []struct {
		suffix string
		size   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(v, unit.suffix) {
			v = strings.TrimSpace(strings.TrimSuffix(v, unit.suffix))
			mult = unit.size
			break
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("server.max_body_size: invalid size %q", c.MaxBodySize)
	}
	return n * mult, nil
}

// ShutdownDuration parses shutdown_timeout. Empty means 30s.
func (c ServerConfig) ShutdownDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	return d, nil
}

func checkStatus(code int) error {
	if code < 400 || code > 599 {
		return fmt.Errorf("status %d is not an HTTP error status", code)
	}
	return nil
}

// StoreDSN returns the driver and DSN to open. A sqlite store without a DSN
// lives in DataDir, or in memory when DataDir is empty.
func (c StoreConfig) StoreDSN() (driver, dsn string) {
	driver = strings.ToLower(c.Driver)
	if driver == "" {
		driver = "sqlite"
	}
	return driver, c.DSN
}

// OpenStore opens the store described by the configuration.
func (c StoreConfig) OpenStore() (*Store, error) {
	driver, dsn := c.StoreDSN()
	if driver == "sqlite" && dsn == "" {
		return NewStore(c.DataDir)
	}
	return Open(driver, dsn)
}
