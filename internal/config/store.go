package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/tokengate/internal/model"
)

// Store persists access tokens, roles, role mappings, store-managed ACL rules
// and key-value settings. SQLite is the default backend; Postgres and MySQL
// are supported for shared deployments.
type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// NewStore creates a SQLite-backed store in dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "tokengate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open("sqlite", dsn)
}

// Open connects to the store using one of the supported drivers: "sqlite",
// "postgres" or "mysql".
func Open(driver, dsn string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	sqlDriver := driver
	switch driver {
	case "postgres":
		sqlDriver = "pgx"
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the store driver name.
func (s *Store) Driver() string {
	return s.dialect.name
}

func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

// ---------------------------------------------------------------------------
// Access tokens
// ---------------------------------------------------------------------------

// CreateToken inserts a new access token. The caller generates the ID and
// sets Created.
func (s *Store) CreateToken(ctx context.Context, tok *model.AccessToken) error {
	const q = `INSERT INTO access_tokens (id, ttl, user_id, app_id, created)
		VALUES (:id, :ttl, :user_id, :app_id, :created)`

	if _, err := s.db.NamedExecContext(ctx, q, tok); err != nil {
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

// GetToken returns an access token by its exact ID. Expiry is not checked
// here.
func (s *Store) GetToken(ctx context.Context, id string) (*model.AccessToken, error) {
	var tok model.AccessToken
	q := s.rebind("SELECT id, ttl, user_id, app_id, created FROM access_tokens WHERE id = ?")
	if err := s.db.GetContext(ctx, &tok, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get access token: %w", err)
	}
	return &tok, nil
}

// ListTokens returns all access tokens, newest first. A non-empty userID
// restricts the result to that user's tokens.
func (s *Store) ListTokens(ctx context.Context, userID string) ([]model.AccessToken, error) {
	var (
		tokens []model.AccessToken
		err    error
	)
	if userID == "" {
		err = s.db.SelectContext(ctx, &tokens,
			"SELECT id, ttl, user_id, app_id, created FROM access_tokens ORDER BY created DESC")
	} else {
		err = s.db.SelectContext(ctx, &tokens,
			s.rebind("SELECT id, ttl, user_id, app_id, created FROM access_tokens WHERE user_id = ? ORDER BY created DESC"),
			userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list access tokens: %w", err)
	}
	return tokens, nil
}

// DeleteToken removes an access token by ID.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM access_tokens WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete access token rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTokensByUser removes every token issued to userID and returns how
// many were deleted.
func (s *Store) DeleteTokensByUser(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM access_tokens WHERE user_id = ?"), userID)
	if err != nil {
		return 0, fmt.Errorf("delete user access tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user access tokens rows affected: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// CreateRole inserts a new role. CreatedAt is populated on success.
func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	if model.IsDynamicRole(role.Name) {
		return fmt.Errorf("insert role: %q is a reserved role name", role.Name)
	}
	role.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO roles (name, description, created_at)
		VALUES (:name, :description, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, role); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

// GetRole returns a role by name.
func (s *Store) GetRole(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := s.db.GetContext(ctx, &role, s.rebind("SELECT name, description, created_at FROM roles WHERE name = ?"), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &role, nil
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.SelectContext(ctx, &roles, "SELECT name, description, created_at FROM roles ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// DeleteRole removes a role. Its mappings are cascade deleted by the foreign
// key constraint.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM roles WHERE name = ?"), name)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Role mappings
// ---------------------------------------------------------------------------

// GrantRole maps a role to a user or app. Granting an existing mapping is a
// no-op. The role must exist.
func (s *Store) GrantRole(ctx context.Context, role string, principalType model.PrincipalType, principalID string) error {
	if _, err := s.GetRole(ctx, role); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(s.dialect.grantRole),
		role, string(principalType), principalID, time.Now().UTC()); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// RevokeRole removes a role mapping.
func (s *Store) RevokeRole(ctx context.Context, role string, principalType model.PrincipalType, principalID string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM role_mappings WHERE role = ? AND principal_type = ? AND principal_id = ?"),
		role, string(principalType), principalID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke role rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRoleMappings returns the mappings for a role, or every mapping when role
// is empty.
func (s *Store) ListRoleMappings(ctx context.Context, role string) ([]model.RoleMapping, error) {
	var (
		mappings []model.RoleMapping
		err      error
	)
	const cols = "SELECT role, principal_type, principal_id, created_at FROM role_mappings"
	if role == "" {
		err = s.db.SelectContext(ctx, &mappings, cols+" ORDER BY role, principal_type, principal_id")
	} else {
		err = s.db.SelectContext(ctx, &mappings,
			s.rebind(cols+" WHERE role = ? ORDER BY principal_type, principal_id"), role)
	}
	if err != nil {
		return nil, fmt.Errorf("list role mappings: %w", err)
	}
	return mappings, nil
}

// RolesFor returns the names of roles granted to a principal.
func (s *Store) RolesFor(ctx context.Context, principalType model.PrincipalType, principalID string) ([]string, error) {
	var roles []string
	if err := s.db.SelectContext(ctx, &roles,
		s.rebind("SELECT role FROM role_mappings WHERE principal_type = ? AND principal_id = ? ORDER BY role"),
		string(principalType), principalID); err != nil {
		return nil, fmt.Errorf("roles for principal: %w", err)
	}
	return roles, nil
}

// ---------------------------------------------------------------------------
// ACL rules
// ---------------------------------------------------------------------------

// CreateACLRule validates and inserts a store-managed ACL rule. ID and
// CreatedAt are populated on success.
func (s *Store) CreateACLRule(ctx context.Context, rule *model.ACLRule) error {
	normalized := rule.Normalize()
	if err := normalized.Validate(); err != nil {
		return err
	}
	if normalized.Model == "" {
		return errors.New("acl rule: model is required")
	}
	normalized.ID = uuid.Must(uuid.NewV7()).String()
	normalized.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO acl_rules
		(id, model, property, access_type, permission, principal_type, principal_id, created_at)
		VALUES
		(:id, :model, :property, :access_type, :permission, :principal_type, :principal_id, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, normalized); err != nil {
		return fmt.Errorf("insert acl rule: %w", err)
	}
	*rule = normalized
	return nil
}

// ListACLRules returns the rules that apply to modelName, including rules
// stored for all models. An empty modelName returns every rule.
func (s *Store) ListACLRules(ctx context.Context, modelName string) ([]model.ACLRule, error) {
	var (
		rules []model.ACLRule
		err   error
	)
	const cols = `SELECT id, model, property, access_type, permission, principal_type, principal_id, created_at
		FROM acl_rules`
	if modelName == "" {
		err = s.db.SelectContext(ctx, &rules, cols+" ORDER BY created_at, id")
	} else {
		err = s.db.SelectContext(ctx, &rules,
			s.rebind(cols+" WHERE model = ? OR model = ? ORDER BY created_at, id"),
			modelName, model.AllModels)
	}
	if err != nil {
		return nil, fmt.Errorf("list acl rules: %w", err)
	}
	return rules, nil
}

// DeleteACLRule removes a store-managed ACL rule by ID.
func (s *Store) DeleteACLRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM acl_rules WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete acl rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete acl rule rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns a setting value, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, s.rebind("SELECT value FROM settings WHERE name = ?"), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting creates or replaces a setting value.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(s.dialect.upsertSetting), name, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
