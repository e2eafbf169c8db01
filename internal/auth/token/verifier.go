// Package token verifies bearer tokens issued by the directory service.
package token

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"identity-link/internal/cache"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// CacheKey is the cache entry holding the signing key set.
	CacheKey = "aws_idp"
	// CacheTTL bounds how long a fetched key set is trusted.
	CacheTTL = 4 * time.Hour
	// Algorithm is the only accepted signing algorithm.
	Algorithm = "RS256"

	maxKeySetSize = 1 << 20
)

// JWKSURL returns the key set location of a user pool.
func JWKSURL(region, poolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, poolID)
}

// Claims is a verified token.
type Claims struct {
	Payload map[string]any
	Header  map[string]any
}

// Subject returns the remote identity id carried by the token.
func (c *Claims) Subject() string {
	if c == nil {
		return ""
	}
	sub, _ := c.Payload["sub"].(string)
	return sub
}

// Verifier checks token signatures against the published key set.
type Verifier struct {
	url    string
	cache  cache.Cache
	client *http.Client
	log    *slog.Logger
}

type Option func(*Verifier)

// WithCache keeps the key set in c. Without a cache every Decode fetches it.
func WithCache(c cache.Cache) Option {
	return func(v *Verifier) { v.cache = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// NewVerifier returns a verifier for the key set published at jwksURL.
func NewVerifier(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		url:    jwksURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = slog.Default()
	}
	return v
}

// Decode verifies raw and returns its claims. Any failure is logged once and
// reported as false; it is never returned as an error.
func (v *Verifier) Decode(ctx context.Context, raw string) (*Claims, bool) {
	claims, err := v.decode(ctx, raw)
	if err != nil {
		v.log.ErrorContext(ctx, "token verification failed", "error", err.Error())
		return nil, false
	}
	return claims, true
}

func (v *Verifier) decode(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.New("token: empty token")
	}

	set, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	payload := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, payload, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		keys := set.Key(kid)
		if len(keys) == 0 {
			return nil, fmt.Errorf("token: unknown key id %q", kid)
		}
		pub, ok := keys[0].Key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("token: key %q is not an RSA public key", kid)
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{Algorithm}))
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	return &Claims{Payload: payload, Header: tok.Header}, nil
}

func (v *Verifier) keySet(ctx context.Context) (*jose.JSONWebKeySet, error) {
	var (
		doc []byte
		err error
	)
	if v.cache != nil {
		doc, err = v.cache.Fetch(ctx, CacheKey, CacheTTL, v.fetch)
	} else {
		doc, err = v.fetch(ctx)
	}
	if err != nil {
		return nil, err
	}
	return parseKeySet(doc)
}

// fetch downloads the key set and refuses documents that would not parse,
// so a broken response is never cached.
func (v *Verifier) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, fmt.Errorf("token: build key set request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token: fetch key set: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token: key set endpoint returned status %d", resp.StatusCode)
	}
	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("token: read key set: %w", err)
	}
	if _, err := parseKeySet(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseKeySet(doc []byte) (*jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(doc, &set); err != nil {
		return nil, fmt.Errorf("token: parse key set: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, errors.New("token: key set has no keys")
	}
	return &set, nil
}
