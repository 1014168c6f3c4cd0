package bearer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// KeySource supplies the verification keys for tokens signed by an external
// issuer. The key for a token is selected by its kid header.
type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

// DefaultRefreshTTL is how long a RemoteKeySet serves a fetched JWKS.
const DefaultRefreshTTL = 15 * time.Minute

// maxKeySetBytes caps the JWKS response body.
const maxKeySetBytes = 1 << 20

// RemoteKeySet fetches a JWKS document over HTTP and caches it. A longer
// Cache-Control max-age from the server extends the cache lifetime.
type RemoteKeySet struct {
	uri        string
	client     *http.Client
	refreshTTL time.Duration
	now        func() time.Time

	mu        sync.Mutex
	set       jwk.Set
	expiresAt time.Time
}

// RemoteOption configures a RemoteKeySet.
type RemoteOption func(*RemoteKeySet) error

// WithHTTPClient sets the client used to fetch the JWKS.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteKeySet) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		r.client = c
		return nil
	}
}

// WithRefreshTTL sets the minimum cache lifetime of a fetched JWKS.
//
// Default: DefaultRefreshTTL
func WithRefreshTTL(ttl time.Duration) RemoteOption {
	return func(r *RemoteKeySet) error {
		if ttl <= 0 {
			return errors.New("refresh ttl must be positive")
		}
		r.refreshTTL = ttl
		return nil
	}
}

// NewRemoteKeySet returns a KeySource backed by the JWKS document at uri.
func NewRemoteKeySet(uri string, opts ...RemoteOption) (*RemoteKeySet, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse jwks uri: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported jwks uri scheme %q", u.Scheme)
	}

	r := &RemoteKeySet{
		uri:        u.String(),
		client:     &http.Client{Timeout: 30 * time.Second},
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return r, nil
}

// KeySet returns the cached JWKS, fetching it when the cache is empty or
// expired. Concurrent callers share one fetch.
func (r *RemoteKeySet) KeySet(ctx context.Context) (jwk.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.set != nil && now.Before(r.expiresAt) {
		return r.set, nil
	}

	set, maxAge, err := r.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch JWKS: %w", err)
	}

	ttl := r.refreshTTL
	if maxAge > ttl {
		ttl = maxAge
	}
	r.set = set
	r.expiresAt = now.Add(ttl)
	return set, nil
}

func (r *RemoteKeySet) fetch(ctx context.Context) (jwk.Set, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("request returned status %d, expected 200", resp.StatusCode)
	}

	set, err := jwk.ParseReader(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return set, maxAge(resp.Header.Get("Cache-Control")), nil
}

// maxAge returns the max-age directive of a Cache-Control header, or 0 when
// it is absent or outside [1s, 7d].
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		value, ok := strings.CutPrefix(strings.TrimSpace(directive), "max-age=")
		if !ok {
			continue
		}
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err != nil || seconds <= 0 {
			continue
		}
		ttl := time.Duration(seconds) * time.Second
		if ttl > 7*24*time.Hour {
			return 0
		}
		return ttl
	}
	return 0
}
