package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const cookieSecretSetting = "cookie_secret"

// CookieSecret returns the key used to sign the authorization cookie. A
// configured secret wins; otherwise a random key is generated on first use
// and kept in the settings table so restarts keep existing cookies valid.
func (s *Store) CookieSecret(ctx context.Context, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	stored, err := s.GetSetting(ctx, cookieSecretSetting)
	if err == nil {
		key, decodeErr := hex.DecodeString(stored)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode stored cookie secret: %w", decodeErr)
		}
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate cookie secret: %w", err)
	}
	if err := s.SetSetting(ctx, cookieSecretSetting, hex.EncodeToString(key)); err != nil {
		return nil, err
	}
	return key, nil
}
