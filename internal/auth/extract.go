package auth

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ErrMalformedCredential is returned by an extractor whose source carries a
// value that cannot be decoded, such as a bearer token with invalid base64.
var ErrMalformedCredential = errors.New("malformed credential")

// Default token locations, in the order they are consulted.
const (
	DefaultParam  = "access_token"
	DefaultCookie = "authorization"
)

// DefaultHeaders are the request headers searched for a token.
var DefaultHeaders = []string{"Authorization", "X-Access-Token"}

// Surface is the part of an inbound request a token can be read from.
// Cookies must already have had their signatures verified.
type Surface struct {
	Query   url.Values
	Header  http.Header
	Cookies map[string]string
}

// Extractor reads a candidate token id from one location. It returns "" when
// the location is empty.
type Extractor func(*Surface) (string, error)

// FromQuery reads a query string parameter.
func FromQuery(name string) Extractor {
	return func(s *Surface) (string, error) {
		if s.Query == nil {
			return "", nil
		}
		return s.Query.Get(name), nil
	}
}

// FromHeader reads a request header. Values of the form "Bearer <base64>"
// are decoded.
func FromHeader(name string) Extractor {
	return func(s *Surface) (string, error) {
		if s.Header == nil {
			return "", nil
		}
		v := strings.TrimSpace(s.Header.Get(name))
		if v == "" {
			return "", nil
		}
		return decodeBearer(v)
	}
}

// FromCookie reads a verified cookie value.
func FromCookie(name string) Extractor {
	return func(s *Surface) (string, error) {
		return s.Cookies[name], nil
	}
}

// Extractors builds the extractor list for the given locations, keeping the
// order params, then headers, then cookies. A nil slice selects the default
// for that category; an empty slice disables it.
func Extractors(params, headers, cookies []string) []Extractor {
	if params == nil {
		params = []string{DefaultParam}
	}
	if headers == nil {
		headers = DefaultHeaders
	}
	if cookies == nil {
		cookies = []string{DefaultCookie}
	}

	out := make([]Extractor, 0, len(params)+len(headers)+len(cookies))
	for _, p := range params {
		out = append(out, FromQuery(p))
	}
	for _, h := range headers {
		out = append(out, FromHeader(h))
	}
	for _, c := range cookies {
		out = append(out, FromCookie(c))
	}
	return out
}

// DefaultExtractors returns the standard search order: query access_token,
// Authorization header, X-Access-Token header, authorization cookie.
func DefaultExtractors() []Extractor {
	return Extractors(nil, nil, nil)
}

const bearerPrefix = "bearer "

// decodeBearer strips a Bearer scheme and base64-decodes its payload. Values
// without the scheme are returned as is.
func decodeBearer(v string) (string, error) {
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return v, nil
	}
	payload := strings.TrimSpace(v[len(bearerPrefix):])
	if payload == "" {
		return "", ErrMalformedCredential
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(payload); err == nil && len(b) > 0 {
			return string(b), nil
		}
	}
	return "", ErrMalformedCredential
}

// EncodeBearer returns the Authorization header value for a token id.
func EncodeBearer(id string) string {
	return "Bearer " + base64.StdEncoding.EncodeToString([]byte(id))
}
