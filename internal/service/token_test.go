package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faucetdb/tokengate/internal/config"
	"github.com/faucetdb/tokengate/internal/model"
)

func newTestService(t *testing.T) (*TokenService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewTokenService(store), store
}

type failingRepo struct{ err error }

func (f failingRepo) CreateToken(context.Context, *model.AccessToken) error { return f.err }
func (f failingRepo) GetToken(context.Context, string) (*model.AccessToken, error) {
	return nil, f.err
}
func (f failingRepo) ListTokens(context.Context, string) ([]model.AccessToken, error) {
	return nil, f.err
}
func (f failingRepo) DeleteToken(context.Context, string) error { return f.err }
func (f failingRepo) DeleteTokensByUser(context.Context, string) (int64, error) {
	return 0, f.err
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func TestCreateGeneratesUniqueIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 10000
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		tok, err := svc.Create(ctx, TokenAttrs{})
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		if len(tok.ID) != model.TokenIDLength {
			t.Fatalf("id length = %d, want %d", len(tok.ID), model.TokenIDLength)
		}
		if !isHex(tok.ID) {
			t.Fatalf("id %q is not lowercase hex", tok.ID)
		}
		if seen[tok.ID] {
			t.Fatalf("duplicate id %q", tok.ID)
		}
		seen[tok.ID] = true
	}
}

func TestCreateSetsNonDecreasingCreated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A clock that steps backwards must not produce earlier timestamps.
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	i := 0
	svc.WithClock(func() time.Time {
		ts := ticks[i%len(ticks)]
		i++
		return ts
	})

	var prev time.Time
	for range ticks {
		tok, err := svc.Create(ctx, TokenAttrs{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if tok.Created.Before(prev) {
			t.Errorf("created %v is before previous %v", tok.Created, prev)
		}
		prev = tok.Created
	}
}

func TestCreateRejectsNonPositiveTTL(t *testing.T) {
	svc, _ := newTestService(t)
	for _, ttl := range []int64{0, -5} {
		_, err := svc.Create(context.Background(), TokenAttrs{TTL: &ttl})
		if !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("Create(ttl=%d) error = %v, want ErrInvalidTTL", ttl, err)
		}
	}
}

func TestFindByID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	ttl := int64(60)
	tok, err := svc.Create(ctx, TokenAttrs{TTL: &ttl, UserID: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.FindByID(ctx, tok.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want %q", got.UserID, "alice")
	}

	if _, err := svc.FindByID(ctx, "unknown"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("FindByID(unknown) error = %v, want ErrTokenNotFound", err)
	}
	if _, err := svc.FindByID(ctx, tok.ID[:10]); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("FindByID(prefix) error = %v, want ErrTokenNotFound", err)
	}

	now = now.Add(61 * time.Second)
	if _, err := svc.FindByID(ctx, tok.ID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("FindByID(expired) error = %v, want ErrTokenNotFound", err)
	}
}

func TestValidate(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	ttl := int64(10)
	tests := []struct {
		name string
		tok  *model.AccessToken
		want bool
	}{
		{"nil token", nil, false},
		{"no ttl", &model.AccessToken{ID: "a", Created: now.Add(-24 * time.Hour)}, true},
		{"within ttl", &model.AccessToken{ID: "b", TTL: &ttl, Created: now.Add(-5 * time.Second)}, true},
		{"at boundary", &model.AccessToken{ID: "c", TTL: &ttl, Created: now.Add(-10 * time.Second)}, true},
		{"expired", &model.AccessToken{ID: "d", TTL: &ttl, Created: now.Add(-11 * time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before model.AccessToken
			if tt.tok != nil {
				before = *tt.tok
			}
			first := svc.Validate(tt.tok)
			second := svc.Validate(tt.tok)
			if first != tt.want || second != tt.want {
				t.Errorf("Validate = %v, %v; want %v twice", first, second, tt.want)
			}
			if tt.tok != nil && (tt.tok.ID != before.ID || !tt.tok.Created.Equal(before.Created) || tt.tok.TTL != before.TTL) {
				t.Error("Validate mutated the token")
			}
		})
	}
}

func TestRevokeAndPurge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	short := int64(5)
	if _, err := svc.Create(ctx, TokenAttrs{TTL: &short}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	keep, err := svc.Create(ctx, TokenAttrs{UserID: "bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	revoked, err := svc.Create(ctx, TokenAttrs{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Revoke(ctx, revoked.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := svc.Revoke(ctx, revoked.ID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("second Revoke error = %v, want ErrTokenNotFound", err)
	}

	now = now.Add(time.Minute)
	n, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}

	remaining, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keep.ID {
		t.Errorf("remaining = %+v, want only %s", remaining, keep.ID)
	}
}

func TestRevokeUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, user := range []string{"alice", "alice", "bob"} {
		if _, err := svc.Create(ctx, TokenAttrs{UserID: user}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := svc.RevokeUser(ctx, "alice")
	if err != nil {
		t.Fatalf("RevokeUser: %v", err)
	}
	if n != 2 {
		t.Errorf("revoked %d, want 2", n)
	}

	left, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(left) != 1 || left[0].UserID != "bob" {
		t.Errorf("remaining = %+v, want only bob's token", left)
	}

	if _, err := svc.RevokeUser(ctx, ""); err == nil {
		t.Error("expected an error for an empty user id")
	}
}

func TestPersistenceErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	svc := NewTokenService(failingRepo{err: boom})
	ctx := context.Background()

	_, err := svc.Create(ctx, TokenAttrs{})
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Create error = %v, want *PersistenceError", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected PersistenceError to unwrap to the store error")
	}

	_, err = svc.FindByID(ctx, "abc")
	if !errors.As(err, &pe) {
		t.Errorf("FindByID error = %v, want *PersistenceError", err)
	}
	if errors.Is(err, ErrTokenNotFound) {
		t.Error("persistence failure must not look like a missing token")
	}

	if _, err := svc.RevokeUser(ctx, "alice"); !errors.As(err, &pe) {
		t.Errorf("RevokeUser error = %v, want *PersistenceError", err)
	}
}
