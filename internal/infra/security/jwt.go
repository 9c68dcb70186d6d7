package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims carried by issued session tokens. The jti
// registered claim doubles as the ticket ID in the revocation store.
type SessionClaims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// JWTManager signs and parses HS256 session tokens.
type JWTManager struct {
	secret []byte
	issuer string
}

// NewJWTManager constructs a manager with the shared signing secret.
func NewJWTManager(secret, issuer string) (*JWTManager, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	return &JWTManager{secret: []byte(secret), issuer: issuer}, nil
}

// Sign produces a signed token for the user with the supplied ticket ID
// and validity window.
func (m *JWTManager) Sign(userID int64, ticketID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ticketID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Parse verifies the signature, issuer, and expiry, returning the claims.
func (m *JWTManager) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	return claims, nil
}
