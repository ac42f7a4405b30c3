// Package auth validates the bearer tokens that gate the event stream
// endpoints. Token issuance lives in the chat API service; this side only
// verifies signatures and resolves the user identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails signature,
// expiration, or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload shared with the chat API service.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier checks HS256-signed tokens against a shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates tokenString and returns the user ID it
// carries.
func (v *Verifier) Verify(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	if v.issuer != "" {
		if iss, err := claims.GetIssuer(); err != nil || iss != v.issuer {
			return 0, fmt.Errorf("%w: wrong issuer", ErrInvalidToken)
		}
	}
	if claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}

	return claims.UserID, nil
}

// GenerateToken mints a signed token for the given user. The server never
// issues tokens in production; this exists for the eventgen tool and tests.
func (v *Verifier) GenerateToken(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
