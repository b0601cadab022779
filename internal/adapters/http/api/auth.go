package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/padel/internal/domain/model"
)

const tokenIssuer = "padel"

// Claims are the bearer token claims. Subject carries the user id.
type Claims struct {
	ClubID string `json:"club_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator keyed by secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for id that expires after ttl.
func (a *Authenticator) IssueToken(id model.Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrUnauthenticated)
	}
	now := a.now()
	claims := &Claims{
		ClubID: id.ClubID,
		Role:   string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a token and resolves the identity it carries.
func (a *Authenticator) Verify(token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return model.Identity{}, fmt.Errorf("%w: token has expired", ErrUnauthenticated)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return model.Identity{}, fmt.Errorf("%w: token signature is invalid", ErrUnauthenticated)
		}
		return model.Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return model.Identity{}, fmt.Errorf("%w: subject claim is missing", ErrUnauthenticated)
	}

	role := model.Role(strings.ToUpper(claims.Role))
	switch role {
	case "":
		role = model.RolePlayer
	case model.RolePlayer, model.RoleAdmin:
	default:
		return model.Identity{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}
	return model.Identity{UserID: claims.Subject, ClubID: claims.ClubID, Role: role}, nil
}

type identityKey struct{}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(model.Identity)
	return id, ok
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Middleware rejects requests without a valid token. Browsers cannot set
// headers on websocket upgrades, so the token may also come in ?token=.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Verify(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
