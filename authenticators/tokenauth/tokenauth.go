// Package tokenauth provides a JWT-backed session authenticator.
//
// It does not talk to a backend itself: the caller obtains a signed token
// (login endpoint, OAuth exchange) and hands it in under the "token" option.
// The authenticator validates the signature and registered claims, derives
// session content from them, and revalidates the same token on restore.
//
// When a TokenSource is configured the authenticator re-issues the token
// shortly before expiry and pushes the fresh content to the bound session.
// Without a source, expiry is pushed as an invalidation instead.
package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goSession "github.com/kvistad/goSession"
)

var (
	// ErrMissingToken is returned when the options carry no "token" string.
	ErrMissingToken = errors.New("missing token option")
	// ErrNoToken is returned on restore when the persisted data has no token.
	ErrNoToken = errors.New("no token in session data")
)

// TokenKey is the option and content key carrying the signed token.
const TokenKey = "token"

// refreshTimeout bounds a single background token refresh call.
const refreshTimeout = 10 * time.Second

// TokenSource produces a fresh signed token for the background refresh loop.
type TokenSource func(ctx context.Context) (string, error)

// Config controls token validation and the optional refresh loop.
type Config struct {
	// Secret is the HS256 signing key. Required.
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Audience, when set, must match one of the token's aud claims.
	Audience string
	// Leeway tolerates clock skew on exp/nbf validation. At most 2 minutes.
	Leeway time.Duration
	// RefreshAhead re-issues the token this long before it expires. Zero
	// disables the refresh loop even when Source is set.
	RefreshAhead time.Duration
	// Source produces replacement tokens for the refresh loop.
	Source TokenSource
}

// Authenticator is a JWT implementation of [goSession.Authenticator].
type Authenticator struct {
	goSession.AuthenticatorEvents

	config Config

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// New validates the configuration and returns an idle authenticator.
func New(cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a secret")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.RefreshAhead < 0 {
		return nil, errors.New("invalid refresh ahead configuration")
	}
	return &Authenticator{config: cfg}, nil
}

// Authenticate validates the signed token passed under the "token" option
// and returns content derived from its claims.
func (a *Authenticator) Authenticate(_ context.Context, options goSession.Content) (goSession.Content, error) {
	token, _ := options[TokenKey].(string)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := a.parse(token)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}

	a.arm(claims)
	return contentFrom(token, claims), nil
}

// Restore revalidates the persisted token. A token that expired while the
// session was away fails here, which makes the session discard it.
func (a *Authenticator) Restore(_ context.Context, data goSession.Content) (goSession.Content, error) {
	token, _ := data[TokenKey].(string)
	if token == "" {
		return nil, ErrNoToken
	}

	claims, err := a.parse(token)
	if err != nil {
		return nil, fmt.Errorf("revalidate token: %w", err)
	}

	a.arm(claims)
	return contentFrom(token, claims), nil
}

// Invalidate stops the refresh loop. The token itself is stateless, so
// there is nothing to revoke on a backend.
func (a *Authenticator) Invalidate(context.Context, goSession.Content) error {
	a.disarm()
	return nil
}

// Close stops the refresh loop permanently.
func (a *Authenticator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return nil
}

func (a *Authenticator) parse(token string) (*jwt.RegisteredClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(a.config.Leeway))
	}
	if a.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		options = append(options, jwt.WithAudience(a.config.Audience))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// arm schedules the next timer action for the given claims: a refresh when a
// source is configured, an invalidation broadcast otherwise. Any previously
// armed timer is replaced.
func (a *Authenticator) arm(claims *jwt.RegisteredClaims) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.closed || claims.ExpiresAt == nil {
		return
	}

	expiry := claims.ExpiresAt.Time
	if a.config.Source != nil && a.config.RefreshAhead > 0 {
		delay := time.Until(expiry.Add(-a.config.RefreshAhead))
		if delay < 0 {
			delay = 0
		}
		a.timer = time.AfterFunc(delay, a.refresh)
		return
	}

	delay := time.Until(expiry)
	if delay < 0 {
		delay = 0
	}
	a.timer = time.AfterFunc(delay, a.EmitInvalidated)
}

func (a *Authenticator) disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// refresh runs on the timer goroutine. A refresh that fails or yields an
// invalid token degrades to an invalidation broadcast; the session clears
// itself the same way it would for a backend-pushed logout.
func (a *Authenticator) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	token, err := a.config.Source(ctx)
	if err != nil {
		a.EmitInvalidated()
		return
	}
	claims, err := a.parse(token)
	if err != nil {
		a.EmitInvalidated()
		return
	}

	a.arm(claims)
	a.EmitUpdated(contentFrom(token, claims))
}

func contentFrom(token string, claims *jwt.RegisteredClaims) goSession.Content {
	content := goSession.Content{TokenKey: token}
	if claims.Subject != "" {
		content["subject"] = claims.Subject
	}
	if claims.Issuer != "" {
		content["issuer"] = claims.Issuer
	}
	if claims.ExpiresAt != nil {
		content["expiresAt"] = claims.ExpiresAt.Time
	}
	return content
}
