// Package auth verifies identity assertions issued by the trusted identity
// provider and exposes the verified email to HTTP handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/user/codeflare/pkg/logger"
)

// HeaderName is the request header carrying the signed identity assertion.
const HeaderName = "Cf-Access-Jwt-Assertion"

// keySetTimeout bounds a single key set fetch.
const keySetTimeout = 10 * time.Second

var (
	ErrMissingToken      = errors.New("no token provided")
	ErrKeyNotFound       = errors.New("signing key not found")
	ErrMissingEmail      = errors.New("invalid token payload")
	ErrInvalidAudience   = errors.New("token has invalid audience")
	ErrKeySetUnavailable = errors.New("key set unavailable")
)

// Identity is the verified caller.
type Identity struct {
	Email string `json:"email"`
}

// claims are the assertion claims this service relies on.
type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks RS256 identity assertions against the provider's key set.
type Verifier struct {
	certsURL string
	audience string
	client   *http.Client
	ttl      time.Duration
	parser   *jwt.Parser

	mu sync.Mutex
	// jwks is the shared, background-refreshed key set. It stays nil when
	// caching is disabled; the key set is then fetched per verification.
	jwks *keyfunc.JWKS
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient sets the client used to fetch the key set.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithKeySetTTL keeps the fetched key set and refreshes it every ttl, and
// whenever a token names an unknown key. Zero disables caching.
func WithKeySetTTL(ttl time.Duration) Option {
	return func(v *Verifier) { v.ttl = ttl }
}

// NewVerifier creates a verifier for assertions whose signing keys are
// published at certsURL and whose audience must contain audience. An empty
// audience accepts no token.
func NewVerifier(certsURL, audience string, opts ...Option) *Verifier {
	v := &Verifier{
		certsURL: certsURL,
		audience: audience,
		client:   http.DefaultClient,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}
	for _, opt := range opts {
		opt(v)
	}
	if audience == "" {
		logger.Warn().Msg("Identity audience is empty, every assertion will be rejected")
	}
	return v
}

// Verify validates token and returns the identity it asserts. Key set
// fetches are bounded by their own timeout rather than ctx.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var c claims
	_, err := v.parser.ParseWithClaims(token, &c, v.key)
	if err != nil {
		return Identity{}, unwrapValidation(err)
	}

	if v.audience == "" || !c.VerifyAudience(v.audience, true) {
		return Identity{}, ErrInvalidAudience
	}
	if c.Email == "" {
		return Identity{}, ErrMissingEmail
	}

	return Identity{Email: c.Email}, nil
}

// Close stops the background key set refresh.
func (v *Verifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.jwks != nil {
		v.jwks.EndBackground()
		v.jwks = nil
	}
}

func (v *Verifier) key(t *jwt.Token) (interface{}, error) {
	jwks, err := v.keySet()
	if err != nil {
		return nil, err
	}
	key, err := jwks.Keyfunc(t)
	if errors.Is(err, keyfunc.ErrKIDNotFound) || errors.Is(err, keyfunc.ErrKID) {
		return nil, ErrKeyNotFound
	}
	return key, err
}

func (v *Verifier) keySet() (*keyfunc.JWKS, error) {
	if v.ttl <= 0 {
		return v.fetch(keyfunc.Options{})
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.jwks != nil {
		return v.jwks, nil
	}
	jwks, err := v.fetch(keyfunc.Options{
		RefreshInterval:   v.ttl,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn().Err(err).Str("url", v.certsURL).Msg("Failed to refresh identity key set")
		},
	})
	if err != nil {
		return nil, err
	}
	v.jwks = jwks
	return jwks, nil
}

func (v *Verifier) fetch(opts keyfunc.Options) (*keyfunc.JWKS, error) {
	opts.Client = v.client
	opts.RefreshTimeout = keySetTimeout
	jwks, err := keyfunc.Get(v.certsURL, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	return jwks, nil
}

// unwrapValidation surfaces the keyfunc's own error from jwt's wrapper so
// callers can match it with errors.Is.
func unwrapValidation(err error) error {
	var verr *jwt.ValidationError
	if errors.As(err, &verr) && verr.Inner != nil {
		return verr.Inner
	}
	return err
}
