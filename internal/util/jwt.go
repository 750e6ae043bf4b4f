package util

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerificationPurpose is the subject of email verification tokens.
const VerificationPurpose = "email_verification"

// VerificationClaims is the payload of an email verification token.
type VerificationClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// GenerateVerificationToken signs a short-lived email verification token.
func GenerateVerificationToken(secret string, userID uint, email string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("verification secret is empty")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := time.Now()
	claims := &VerificationClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   VerificationPurpose,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseVerificationToken validates signature, expiry and purpose.
func ParseVerificationToken(secret, tokenStr string) (*VerificationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &VerificationClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(VerificationPurpose))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*VerificationClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
