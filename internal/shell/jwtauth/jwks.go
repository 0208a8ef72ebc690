package jwtauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Defaults for JWKS fetching.
const (
	DefaultJWKSTimeout  = 10 * time.Second
	DefaultJWKSCacheTTL = 5 * time.Minute

	// DefaultJWKSMinRefresh is the shortest gap between two fetches.
	DefaultJWKSMinRefresh = 30 * time.Second
)

// ErrKeyNotFound is returned when no JWKS key matches the token's kid.
var ErrKeyNotFound = errors.New("no matching key found in JWKS")

// JWKSClient fetches and caches RSA verification keys from a JWKS endpoint.
// Concurrent refreshes are collapsed into a single request, and fetches are
// spaced at least minRefresh apart.
type JWKSClient struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	logger     *slog.Logger
	now        func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
}

// NewJWKSClient creates a client for url. A nil client gets a 10s timeout.
func NewJWKSClient(url string, client *http.Client, logger *slog.Logger) *JWKSClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultJWKSTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JWKSClient{
		url:        url,
		client:     client,
		ttl:        DefaultJWKSCacheTTL,
		minRefresh: DefaultJWKSMinRefresh,
		logger:     logger.With("component", "jwks"),
		now:        time.Now,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Key returns the key for kid, refreshing the key set when the cache is stale
// or does not know kid. Within minRefresh of the last fetch the cache is
// answered as is.
func (c *JWKSClient) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, fresh := c.cached(kid)
	if key != nil && fresh {
		return key, nil
	}
	if c.throttled() {
		if key != nil {
			return key, nil
		}
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	if err := c.refresh(ctx); err != nil {
		if key, _ := c.cached(kid); key != nil {
			c.logger.Warn("using stale JWKS key", "kid", kid, "error", err)
			return key, nil
		}
		return nil, err
	}

	if key, _ := c.cached(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (c *JWKSClient) cached(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fresh := !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl
	return c.keys[kid], fresh
}

func (c *JWKSClient) throttled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.attemptedAt.IsZero() && c.now().Sub(c.attemptedAt) < c.minRefresh
}

func (c *JWKSClient) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("jwks", func() (any, error) {
		keys, err := c.fetch(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			if ctx.Err() == nil {
				c.attemptedAt = c.now()
			}
			return nil, err
		}
		c.attemptedAt = c.now()
		c.keys = keys
		c.fetchedAt = c.attemptedAt
		c.logger.Debug("JWKS refreshed", "keys", len(keys))
		return nil, nil
	})
	return err
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *JWKSClient) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch JWKS: status %d: %s", resp.StatusCode, body)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := k.rsaKey()
		if err != nil {
			c.logger.Warn("skipping malformed JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 || exp.Int64() < 3 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
