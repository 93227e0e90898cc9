package gateway

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/user"
)

const userContextKey = "gateway.user"

// Claims are the JWT claims carried by gateway access tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues, verifies and revokes gateway access tokens. Tokens are
// HMAC-signed JWTs; logout revokes the token's jti until it would have
// expired anyway.
type TokenManager struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	revokeMu sync.Mutex
	revoked  map[string]time.Time
}

// NewTokenManager creates a token manager signing with secret.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// Issue creates a signed token for u.
func (m *TokenManager) Issue(u user.User) (string, error) {
	now := m.now()
	claims := Claims{
		Username: u.Username,
		Role:     u.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", u.ID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning its claims.
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w: %w", err, errs.ErrAuthRequired)
	}
	if !token.Valid {
		return nil, errs.ErrAuthRequired
	}

	m.revokeMu.Lock()
	_, isRevoked := m.revoked[claims.ID]
	m.revokeMu.Unlock()
	if isRevoked {
		return nil, fmt.Errorf("token revoked: %w", errs.ErrAuthRequired)
	}
	return claims, nil
}

// Revoke invalidates a token by jti. Expired entries are pruned on the way.
func (m *TokenManager) Revoke(claims *Claims) {
	m.revokeMu.Lock()
	defer m.revokeMu.Unlock()

	now := m.now()
	for jti, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, jti)
		}
	}
	m.revoked[claims.ID] = claims.ExpiresAt.Time
}

// requireAuth resolves the bearer token and stores the user in the request
// context.
func (g *Gateway) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return RespondError(c, err)
		}

		claims, err := g.tokens.Verify(tokenString)
		if err != nil {
			return RespondError(c, err)
		}

		u, ok := g.store.UserByUsername(claims.Username)
		if !ok {
			return RespondError(c, errs.ErrAuthRequired)
		}

		c.Set(userContextKey, u)
		return next(c)
	}
}

// currentUser returns the authenticated user stored by requireAuth.
func currentUser(c echo.Context) (user.User, bool) {
	u, ok := c.Get(userContextKey).(user.User)
	return u, ok
}

// bearerToken extracts the token from the Authorization header or, for
// WebSocket upgrades where headers are awkward, the token query parameter.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", fmt.Errorf("malformed authorization header: %w", errs.ErrAuthRequired)
		}
		return token, nil
	}
	if token := c.QueryParam("token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("missing credentials: %w", errs.ErrAuthRequired)
}
