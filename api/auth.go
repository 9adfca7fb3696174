/*
auth.go - Request identity

PURPOSE:
  Resolves the caller of every /api request to a planning.User and stores
  it on the request context. Handlers read it back with userFrom.

TOKENS:
  Authorization: Bearer <jwt>, or ?token=<jwt> for the websocket feed
  (browsers cannot set headers on upgrade requests).
  RS256 when a public key is configured, HS256 with the shared secret
  otherwise. The sub claim is the identity provider's user id and is
  matched against users.clerk_id, falling back to the email claim.

DEV HEADER:
  With auth.dev_header set, a request without a token may name its user
  with X-User-ID. Never enable in production.

SEE ALSO:
  - config/config.go: AuthConfig
  - server.go: Where the middleware is mounted
*/
package api

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/warp/backoffice/config"
	"github.com/warp/backoffice/planning"
)

// DevUserHeader names the user id header accepted in dev mode.
const DevUserHeader = "X-User-ID"

var (
	errNoCredentials = errors.New("missing credentials")
	errUnknownUser   = errors.New("no user matches the token")
)

// UserLookup is the slice of the directory the authenticator needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*planning.User, error)
	GetUserByClerkID(ctx context.Context, clerkID string) (*planning.User, error)
	GetUserByEmail(ctx context.Context, email string) (*planning.User, error)
}

// Claims are the token claims we read.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	Users UserLookup
	Log   zerolog.Logger

	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
	devHeader bool
}

func NewAuthenticator(users UserLookup, cfg config.AuthConfig, log zerolog.Logger) (*Authenticator, error) {
	a := &Authenticator{
		Users:     users,
		Log:       log,
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.Issuer,
		devHeader: cfg.DevHeader,
	}
	if cfg.PublicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		a.publicKey = key
	}
	return a, nil
}

// Middleware rejects requests without a known, active user.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.identify(r)
		switch {
		case errors.Is(err, errNoCredentials), errors.Is(err, errUnknownUser):
			writeError(w, http.StatusUnauthorized, "Unauthorized", err)
			return
		case err != nil:
			var ve *jwt.ValidationError
			if errors.As(err, &ve) {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}
			a.Log.Error().Err(err).Msg("identity lookup failed")
			writeError(w, http.StatusInternalServerError, "Failed to identify user", err)
			return
		}
		if !user.Active {
			writeError(w, http.StatusForbidden, "Account is deactivated", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), *user)))
	})
}

func (a *Authenticator) identify(r *http.Request) (*planning.User, error) {
	ctx := r.Context()
	token := bearerToken(r)
	if token == "" {
		if id := r.Header.Get(DevUserHeader); a.devHeader && id != "" {
			u, err := a.Users.GetUser(ctx, id)
			if err != nil {
				return nil, err
			}
			if u == nil {
				return nil, errUnknownUser
			}
			return u, nil
		}
		return nil, errNoCredentials
	}

	claims, err := a.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := a.Users.GetUserByClerkID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if u == nil && claims.Email != "" {
		if u, err = a.Users.GetUserByEmail(ctx, strings.ToLower(claims.Email)); err != nil {
			return nil, err
		}
	}
	if u == nil {
		return nil, errUnknownUser
	}
	return u, nil
}

// Parse verifies a token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if a.publicKey != nil {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		if a.publicKey != nil {
			return a.publicKey, nil
		}
		if len(a.secret) == 0 {
			return nil, errors.New("no signing key configured")
		}
		return a.secret, nil
	}, jwt.WithValidMethods(methods))
	if err != nil {
		return nil, err
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, jwt.NewValidationError("unexpected issuer", jwt.ValidationErrorIssuer)
	}
	if claims.Subject == "" {
		return nil, jwt.NewValidationError("token has no subject", jwt.ValidationErrorClaimsInvalid)
	}
	return &claims, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// =============================================================================
// CONTEXT
// =============================================================================

type userKey struct{}

func withUser(ctx context.Context, u planning.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func userFrom(ctx context.Context) (planning.User, bool) {
	u, ok := ctx.Value(userKey{}).(planning.User)
	return u, ok
}

// requireAdmin must be mounted after the authenticator.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userFrom(r.Context())
		if !ok || u.Role != planning.RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
