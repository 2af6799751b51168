package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// SignedCookies signs and verifies cookie values with an HMAC key. Values are
// readable by the client but cannot be altered without detection.
type SignedCookies struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewSignedCookies creates a cookie signer. secure sets the Secure flag on
// issued cookies.
func NewSignedCookies(hashKey []byte, secure bool) *SignedCookies {
	codec := securecookie.New(hashKey, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(0)
	return &SignedCookies{codec: codec, secure: secure}
}

// Encode signs value for the named cookie.
func (c *SignedCookies) Encode(name, value string) (string, error) {
	return c.codec.Encode(name, value)
}

// Decode verifies and returns the value of the named cookie.
func (c *SignedCookies) Decode(name, encoded string) (string, error) {
	var value string
	if err := c.codec.Decode(name, encoded, &value); err != nil {
		return "", err
	}
	return value, nil
}

// Verified returns the verified values of the named cookies present on r.
// Cookies with a missing or invalid signature are left out.
func (c *SignedCookies) Verified(r *http.Request, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		ck, err := r.Cookie(name)
		if err != nil {
			continue
		}
		if v, err := c.Decode(name, ck.Value); err == nil {
			out[name] = v
		}
	}
	return out
}

// Set writes a signed cookie. A zero maxAge makes a session cookie.
func (c *SignedCookies) Set(w http.ResponseWriter, name, value string, maxAge time.Duration) error {
	encoded, err := c.Encode(name, value)
	if err != nil {
		return err
	}
	ck := &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		ck.MaxAge = int(maxAge.Seconds())
		ck.Expires = time.Now().Add(maxAge)
	}
	http.SetCookie(w, ck)
	return nil
}

// Clear expires the named cookie on the client.
func (c *SignedCookies) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
