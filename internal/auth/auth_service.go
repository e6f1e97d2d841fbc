package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrSecretMissing indicates the signing secret was not configured. Raised
// when a token must be issued or verified, never at config-load time.
var ErrSecretMissing = errors.New("jwt signing secret is not configured")

// Service handles password hashing and JWT issuance/verification with a
// shared HMAC secret.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
}

// TokenClaims carries the authenticated identity through the request context.
type TokenClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// NewService constructs the auth service. An empty secret is accepted here;
// signing and verification fail with ErrSecretMissing instead. A zero TTL
// falls back to 24 hours; a negative TTL is honored and issues tokens that
// are already expired.
func NewService(secret string, tokenTTL time.Duration) *Service {
	if tokenTTL == 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// HashPassword hashes a password with bcrypt.
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash reports whether password matches the stored hash.
func (s *Service) CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken issues a signed bearer token for the given user.
func (s *Service) GenerateToken(userID uint, email string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrSecretMissing
	}

	now := time.Now()
	claims := TokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, including expiry.
func (s *Service) ValidateToken(tokenString string) (*TokenClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrSecretMissing
	}
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// TokenTTL exposes the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
