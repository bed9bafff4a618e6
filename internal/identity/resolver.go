// Package identity resolves the stable visitor identity that deterministic
// bucketing hashes on.
package identity

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"splitlab/internal/bucket"
)

// CookieName carries the visitor id across requests.
const CookieName = "slid"

const defaultCookieTTL = 365 * 24 * time.Hour

// Resolver extracts or mints the visitor identity for a request.
type Resolver struct {
	cookieTTL time.Duration
	secure    bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCookieTTL sets how long the identity cookie lives.
func WithCookieTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cookieTTL = ttl
	}
}

// WithSecureCookies marks the identity cookie Secure. Enable behind TLS.
func WithSecureCookies(secure bool) Option {
	return func(r *Resolver) {
		r.secure = secure
	}
}

// NewResolver constructs a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{cookieTTL: defaultCookieTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve returns the visitor identity for the request. An existing cookie
// wins; otherwise a fresh id is minted and set on the response so the next
// request hashes to the same buckets.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) string {
	if c, err := req.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(r.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Derived fingerprints a client that cannot hold cookies. The same address
// and user agent always derive the same identity, so bucketing stays sticky
// within a session even without storage.
func Derived(remoteAddr, userAgent string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return "anon-" + strconv.FormatUint(uint64(bucket.Hash(host+"|"+userAgent)), 36)
}

// Device classifies a user agent into the device classes targeting rules
// match against.
func Device(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	switch {
	case parsed.Bot():
		return "bot"
	case parsed.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}
