package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultTokenTTL is how long issued tokens stay valid
const DefaultTokenTTL = 24 * time.Hour

const revocationCleanupInterval = 10 * time.Minute

var (
	// ErrTokenRevoked is returned when a logged-out token is presented again
	ErrTokenRevoked = errors.New("token has been revoked")
)

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	ClientID string `json:"client_id"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth handles JWT token creation, validation and revocation.
// Revoked token IDs are kept in a TTL cache until the token would have expired anyway.
type JWTAuth struct {
	secretKey []byte
	tokenTTL  time.Duration
	revoked   *gocache.Cache
}

// NewJWTAuth creates a new JWT authentication handler
func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{
		secretKey: []byte(secretKey),
		tokenTTL:  DefaultTokenTTL,
		revoked:   gocache.New(DefaultTokenTTL, revocationCleanupInterval),
	}
}

// GenerateToken creates a new JWT token for a client
func (j *JWTAuth) GenerateToken(clientID string, isAdmin bool) (string, time.Time, error) {
	if clientID == "" {
		return "", time.Time{}, errors.New("clientID cannot be empty")
	}

	now := time.Now()
	expiresAt := now.Add(j.tokenTTL)

	claims := JWTClaims{
		ClientID: clientID,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return nil, errors.New("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if claims.ID != "" {
		if _, revoked := j.revoked.Get(claims.ID); revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// Revoke invalidates the token the claims were issued with.
func (j *JWTAuth) Revoke(claims *JWTClaims) error {
	if claims == nil || claims.ID == "" {
		return errors.New("claims carry no token ID")
	}

	ttl := j.tokenTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		// Already expired, nothing left to revoke
		return nil
	}

	j.revoked.Set(claims.ID, struct{}{}, ttl)
	return nil
}

// RevokedCount returns the number of tokens currently held as revoked.
func (j *JWTAuth) RevokedCount() int {
	return j.revoked.ItemCount()
}
