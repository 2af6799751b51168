package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/faucetdb/tokengate/internal/config"
	"github.com/faucetdb/tokengate/internal/model"
)

var (
	// ErrTokenNotFound is returned when no valid token matches an id. Expired
	// tokens are reported the same way as missing ones.
	ErrTokenNotFound = errors.New("access token not found")
	ErrInvalidTTL    = errors.New("ttl must be a positive number of seconds")
)

// PersistenceError wraps a failure of the backing store. It is the only token
// error that should surface to a caller as a server error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("token store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TokenRepository is the storage the token service needs. *config.Store
// satisfies it.
type TokenRepository interface {
	CreateToken(ctx context.Context, tok *model.AccessToken) error
	GetToken(ctx context.Context, id string) (*model.AccessToken, error)
	ListTokens(ctx context.Context, userID string) ([]model.AccessToken, error)
	DeleteToken(ctx context.Context, id string) error
	DeleteTokensByUser(ctx context.Context, userID string) (int64, error)
}

// TokenAttrs are the caller-supplied fields of a new token.
type TokenAttrs struct {
	TTL    *int64
	UserID string
	AppID  string
}

// TokenService issues, looks up and revokes access tokens.
type TokenService struct {
	repo TokenRepository
	now  func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewTokenService(repo TokenRepository) *TokenService {
	return &TokenService{repo: repo, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Create issues a new token with a fresh random id.
func (s *TokenService) Create(ctx context.Context, attrs TokenAttrs) (*model.AccessToken, error) {
	if attrs.TTL != nil && *attrs.TTL <= 0 {
		return nil, ErrInvalidTTL
	}

	id, err := generateTokenID()
	if err != nil {
		return nil, &PersistenceError{Op: "generate id", Err: err}
	}

	tok := &model.AccessToken{
		ID:      id,
		TTL:     attrs.TTL,
		UserID:  attrs.UserID,
		AppID:   attrs.AppID,
		Created: s.created(),
	}
	if err := s.repo.CreateToken(ctx, tok); err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}
	return tok, nil
}

// created returns the current time, never earlier than the previous call so
// that tokens issued in sequence have non-decreasing creation times.
func (s *TokenService) created() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}

// FindByID returns the token with exactly this id if it exists and has not
// expired.
func (s *TokenService) FindByID(ctx context.Context, id string) (*model.AccessToken, error) {
	if id == "" {
		return nil, ErrTokenNotFound
	}
	tok, err := s.repo.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	if !s.Validate(tok) {
		return nil, ErrTokenNotFound
	}
	return tok, nil
}

// Validate reports whether tok is usable right now. It does not modify the
// token.
func (s *TokenService) Validate(tok *model.AccessToken) bool {
	return tok != nil && !tok.ExpiredAt(s.now())
}

// Revoke deletes a token. Revoking an unknown id returns ErrTokenNotFound.
func (s *TokenService) Revoke(ctx context.Context, id string) error {
	if err := s.repo.DeleteToken(ctx, id); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return ErrTokenNotFound
		}
		return &PersistenceError{Op: "revoke", Err: err}
	}
	return nil
}

// RevokeUser deletes every token issued to userID and returns how many were
// removed.
func (s *TokenService) RevokeUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errors.New("revoke user tokens: user id is required")
	}
	n, err := s.repo.DeleteTokensByUser(ctx, userID)
	if err != nil {
		return 0, &PersistenceError{Op: "revoke user", Err: err}
	}
	return int(n), nil
}

// List returns stored tokens, including expired ones, optionally restricted
// to a user.
func (s *TokenService) List(ctx context.Context, userID string) ([]model.AccessToken, error) {
	tokens, err := s.repo.ListTokens(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return tokens, nil
}

// PurgeExpired deletes every expired token and returns how many were removed.
func (s *TokenService) PurgeExpired(ctx context.Context) (int, error) {
	tokens, err := s.List(ctx, "")
	if err != nil {
		return 0, err
	}
	now := s.now()
	purged := 0
	for i := range tokens {
		if !tokens[i].ExpiredAt(now) {
			continue
		}
		if err := s.repo.DeleteToken(ctx, tokens[i].ID); err != nil {
			if errors.Is(err, config.ErrNotFound) {
				continue
			}
			return purged, &PersistenceError{Op: "purge", Err: err}
		}
		purged++
	}
	return purged, nil
}

func generateTokenID() (string, error) {
	b := make([]byte, model.TokenIDLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
