package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/faucetdb/tokengate/internal/model"
)

func TestParseYAMLConfig(t *testing.T) {
	t.Setenv("TOKENGATE_TEST_SECRET", "s3cret")

	data := []byte(`
server:
  port: 9090
auth:
  cookie_secret: ${TOKENGATE_TEST_SECRET}
  headers: [X-Token]
acl:
  error_status: 403
  default_permission: deny
models:
  - name: widget
    acl_error_status: 404
    auth_required: [write]
    acls:
      - access_type: all
        permission: deny
        principal_type: role
        principal_id: $everyone
      - property: "*"
        access_type: read
        permission: allow
        principal_type: role
        principal_id: $everyone
`)

	cfg, err := ParseYAMLConfig(data)
	if err != nil {
		t.Fatalf("ParseYAMLConfig: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Auth.CookieSecret != "s3cret" {
		t.Errorf("CookieSecret = %q, want env expansion", cfg.Auth.CookieSecret)
	}
	if len(cfg.Auth.Headers) != 1 || cfg.Auth.Headers[0] != "X-Token" {
		t.Errorf("Headers = %v, want [X-Token]", cfg.Auth.Headers)
	}
	if len(cfg.Auth.Params) != 1 || cfg.Auth.Params[0] != "access_token" {
		t.Errorf("Params = %v, want default", cfg.Auth.Params)
	}

	app, err := cfg.AppSettings()
	if err != nil {
		t.Fatalf("AppSettings: %v", err)
	}
	if model.ACLErrorStatus(model.ModelSettings{}, app) != 403 {
		t.Errorf("app error status = %d, want 403", model.ACLErrorStatus(model.ModelSettings{}, app))
	}
	if model.DefaultPermission(model.ModelSettings{}, app) != model.PermissionDeny {
		t.Error("expected app default permission DENY")
	}

	if len(cfg.Models) != 1 {
		t.Fatalf("got %d models, want 1", len(cfg.Models))
	}
	settings, err := cfg.Models[0].Settings()
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if model.ACLErrorStatus(settings, app) != 404 {
		t.Errorf("model error status = %d, want 404", model.ACLErrorStatus(settings, app))
	}
	if !settings.RequiresAuth(model.AccessWrite) {
		t.Error("expected WRITE to require auth")
	}
	if len(settings.ACLs) != 2 {
		t.Fatalf("got %d acls, want 2", len(settings.ACLs))
	}
	first := settings.ACLs[0]
	if first.Model != "widget" || first.AccessType != model.AccessAll || first.PrincipalType != model.PrincipalRole {
		t.Errorf("first rule = %+v", first)
	}
	if first.PrincipalID != model.RoleEveryone {
		t.Errorf("PrincipalID = %q, want %q left unexpanded", first.PrincipalID, model.RoleEveryone)
	}
	if settings.ACLs[1].Property != "" {
		t.Errorf("Property = %q, want empty for *", settings.ACLs[1].Property)
	}
}

func TestParseYAMLConfigRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown permission",
			yaml: "models:\n  - name: w\n    acls:\n      - access_type: READ\n        permission: MAYBE\n",
			want: "unknown permission",
		},
		{
			name: "unknown access type",
			yaml: "models:\n  - name: w\n    acls:\n      - access_type: DELETE\n        permission: ALLOW\n",
			want: "unknown access type",
		},
		{
			name: "bad status",
			yaml: "acl:\n  error_status: 200\n",
			want: "not an HTTP error status",
		},
		{
			name: "duplicate model",
			yaml: "models:\n  - name: w\n  - name: w\n",
			want: "duplicate model",
		},
		{
			name: "principal id without type",
			yaml: "models:\n  - name: w\n    default_permission: DENY\n    acls:\n      - principal_id: alice\n        access_type: \"*\"\n        permission: ALLOW\n",
			want: "needs a principal_type",
		},
		{
			name: "missing name",
			yaml: "models:\n  - acl_error_status: 403\n",
			want: "name is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAMLConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokengate.yaml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Name != "widget" {
		t.Errorf("Models = %+v", cfg.Models)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Store.Driver)
	}
}

func TestServerLimits(t *testing.T) {
	tests := []struct {
		size    string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"1024", 1024, false},
		{"512KB", 512 << 10, false},
		{"1MB", 1 << 20, false},
		{"2 mb", 2 << 20, false},
		{"1GB", 1 << 30, false},
		{"lots", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			got, err := ServerConfig{MaxBodySize: tt.size}.BodyLimit()
			if (err != nil) != tt.wantErr {
				t.Fatalf("BodyLimit(%q) error = %v, wantErr %v", tt.size, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BodyLimit(%q) = %d, want %d", tt.size, got, tt.want)
			}
		})
	}

	d, err := ServerConfig{}.ShutdownDuration()
	if err != nil || d.Seconds() != 30 {
		t.Errorf("default shutdown = (%v, %v), want 30s", d, err)
	}
	if _, err := ParseYAMLConfig([]byte("server:\n  shutdown_timeout: soon\n")); err == nil {
		t.Error("expected error for bad shutdown_timeout")
	}
}
