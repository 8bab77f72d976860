package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload accepted by JWTVerifier.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier builds a verifier; an empty issuer disables the issuer check.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses the token, checks signature and expiry and returns the subject.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Subject, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Subject{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Subject{}, ErrInvalidToken
	}
	return Subject{UID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Sign issues a token for the subject. Used by tests and local tooling.
func (v *JWTVerifier) Sign(subject Subject, ttl time.Duration) (string, error) {
	if subject.UID == "" {
		return "", errors.New("subject uid is required")
	}
	now := time.Now()
	claims := Claims{
		Email: subject.Email,
		Name:  subject.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
