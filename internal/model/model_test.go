package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAccessTokenExpiry(t *testing.T) {
	created := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	ttl := int64(60)
	tok := &AccessToken{ID: "abc", Created: created, TTL: &ttl}

	exp, ok := tok.ExpiresAt()
	if !ok {
		t.Fatal("expected token with ttl to have an expiry")
	}
	if !exp.Equal(created.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", exp, created.Add(time.Minute))
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before expiry", created.Add(30 * time.Second), false},
		{"exactly at expiry", created.Add(time.Minute), false},
		{"after expiry", created.Add(time.Minute + time.Nanosecond), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.ExpiredAt(tt.now); got != tt.want {
				t.Errorf("ExpiredAt(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestAccessTokenWithoutTTLNeverExpires(t *testing.T) {
	tok := &AccessToken{ID: "abc", Created: time.Unix(0, 0)}
	if _, ok := tok.ExpiresAt(); ok {
		t.Error("expected no expiry without ttl")
	}
	if tok.ExpiredAt(time.Now().Add(100 * 365 * 24 * time.Hour)) {
		t.Error("token without ttl should never expire")
	}
}

func TestAccessTokenJSONOmitsEmptyOptionalFields(t *testing.T) {
	b, err := json.Marshal(AccessToken{ID: "abc", Created: time.Now()})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	for _, key := range []string{"ttl", "user_id", "app_id"} {
		if _, ok := m[key]; ok {
			t.Errorf("expected %q to be omitted when empty", key)
		}
	}
	if m["id"] != "abc" {
		t.Errorf("id = %v, want %q", m["id"], "abc")
	}
}

func TestACLRuleNormalize(t *testing.T) {
	r := ACLRule{
		Property:      "*",
		AccessType:    "all",
		Permission:    "deny",
		PrincipalType: "role",
		PrincipalID:   RoleEveryone,
	}.Normalize()

	if r.Property != "" {
		t.Errorf("Property = %q, want empty", r.Property)
	}
	if r.AccessType != AccessAll {
		t.Errorf("AccessType = %q, want %q", r.AccessType, AccessAll)
	}
	if r.Permission != PermissionDeny {
		t.Errorf("Permission = %q, want %q", r.Permission, PermissionDeny)
	}
	if r.PrincipalType != PrincipalRole {
		t.Errorf("PrincipalType = %q, want %q", r.PrincipalType, PrincipalRole)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestACLRuleNormalizeUntypedDynamicRole(t *testing.T) {
	r := ACLRule{AccessType: "read", Permission: "allow", PrincipalType: "any", PrincipalID: RoleAuthenticated}.Normalize()
	if r.PrincipalType != PrincipalRole {
		t.Errorf("PrincipalType = %q, want %q", r.PrincipalType, PrincipalRole)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	named := ACLRule{AccessType: "read", Permission: "allow", PrincipalType: "any", PrincipalID: "alice"}.Normalize()
	if named.PrincipalType != PrincipalAny {
		t.Errorf("PrincipalType = %q, want it left untyped", named.PrincipalType)
	}
	if err := named.Validate(); err == nil {
		t.Error("expected an untyped rule naming alice to be rejected")
	}
}

func TestACLRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    ACLRule
		wantErr bool
	}{
		{"any principal", ACLRule{AccessType: AccessRead, Permission: PermissionAllow}, false},
		{"role rule", ACLRule{AccessType: AccessAll, Permission: PermissionDeny, PrincipalType: PrincipalRole, PrincipalID: "admin"}, false},
		{"missing principal id", ACLRule{AccessType: AccessAll, Permission: PermissionDeny, PrincipalType: PrincipalUser}, true},
		{"bad permission", ACLRule{AccessType: AccessAll, Permission: "MAYBE"}, true},
		{"bad access type", ACLRule{AccessType: "DELETE", Permission: PermissionAllow}, true},
		{"bad principal type", ACLRule{AccessType: AccessAll, Permission: PermissionAllow, PrincipalType: "GROUP", PrincipalID: "x"}, true},
		{"principal id without type", ACLRule{AccessType: AccessAll, Permission: PermissionAllow, PrincipalID: "alice"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveSettings(t *testing.T) {
	tests := []struct {
		name     string
		modelVal *int
		appVal   *int
		want     int
	}{
		{"default", nil, nil, 401},
		{"app level", nil, Ptr(403), 403},
		{"model level", Ptr(404), nil, 404},
		{"model overrides app", Ptr(404), Ptr(403), 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ACLErrorStatus(ModelSettings{ACLErrorStatus: tt.modelVal}, AppSettings{ACLErrorStatus: tt.appVal})
			if got != tt.want {
				t.Errorf("ACLErrorStatus = %d, want %d", got, tt.want)
			}
		})
	}

	if got := DefaultPermission(ModelSettings{}, AppSettings{}); got != PermissionAllow {
		t.Errorf("DefaultPermission = %q, want %q", got, PermissionAllow)
	}
	deny := PermissionDeny
	if got := DefaultPermission(ModelSettings{}, AppSettings{DefaultPermission: &deny}); got != PermissionDeny {
		t.Errorf("DefaultPermission = %q, want %q", got, PermissionDeny)
	}
}

func TestRequiresAuth(t *testing.T) {
	s := ModelSettings{AuthRequired: []AccessType{AccessWrite}}
	if !s.RequiresAuth(AccessWrite) {
		t.Error("expected WRITE to require auth")
	}
	if s.RequiresAuth(AccessRead) {
		t.Error("expected READ not to require auth")
	}
	all := ModelSettings{AuthRequired: []AccessType{AccessAll}}
	if !all.RequiresAuth(AccessExecute) {
		t.Error("expected ALL to cover EXECUTE")
	}
}

func TestPrincipalHasRole(t *testing.T) {
	p := &Principal{UserID: "u1", Roles: []string{"admin"}}
	if !p.HasRole("admin") {
		t.Error("expected admin role")
	}
	if p.HasRole("editor") {
		t.Error("unexpected editor role")
	}
	var nilPrincipal *Principal
	if nilPrincipal.HasRole("admin") {
		t.Error("nil principal should have no roles")
	}
}
