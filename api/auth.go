package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wricardo/groupcart/group/service"
	"github.com/wricardo/groupcart/group/session"
)

// Claims carries the caller identity. The subject is the user id.
type Claims struct {
	DisplayName string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Moderator   bool   `json:"mod,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into a service actor.
func (c *Claims) Actor() service.Actor {
	return service.Actor{
		Identity: session.Identity{
			UserID:      c.Subject,
			DisplayName: c.DisplayName,
			AvatarRef:   c.Avatar,
		},
		Moderator: c.Moderator,
	}
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for id.
func (a *Authenticator) IssueToken(id session.Identity, moderator bool) (string, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", errors.New("user id is required")
	}
	now := a.now()
	claims := &Claims{
		DisplayName: id.DisplayName,
		Avatar:      id.AvatarRef,
		Moderator:   moderator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a token.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

type claimsKey struct{}

// ClaimsFrom returns the verified claims stored by Middleware.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// BearerToken extracts the token from the Authorization header, or from the
// access_token query parameter for WebSocket clients that cannot set headers.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// Middleware rejects requests without a valid token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := BearerToken(r)
		if tokenString == "" {
			respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token", Kind: "unauthorized"})
			return
		}

		claims, err := a.Verify(tokenString)
		if err != nil {
			respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token", Kind: "unauthorized"})
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
