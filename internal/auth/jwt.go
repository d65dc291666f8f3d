package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that fail validation for any reason
var ErrInvalidToken = errors.New("invalid token")

// AdminTokenTTL is how long an admin session token stays valid
const AdminTokenTTL = 15 * time.Minute

// AdminClaims are the claims carried by an admin session token. Actor is the
// audit-log identity of the operator.
type AdminClaims struct {
	Actor string   `json:"actor"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// GenerateAdminJWT creates a short-lived admin session token.
func GenerateAdminJWT(actor string, roles []string, secret []byte) (string, int64, error) {
	expiresAt := time.Now().Add(AdminTokenTTL)
	claims := &AdminClaims{
		Actor: actor,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt.Unix(), nil
}

// ValidateAdminJWT verifies an admin session token and returns its claims.
// Rejects tokens signed with an unexpected method.
func ValidateAdminJWT(tokenString string, secret []byte) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
