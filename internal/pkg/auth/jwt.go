// Package auth validates bearer tokens issued by the marketplace auth service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Token validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role claim")
)

// Claims are the JWT claims read by the service. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role"`
}

// Config contains token validation configuration.
type Config struct {
	SecretKey string
	Issuer    string
	// Leeway tolerates clock skew between issuer and this service.
	Leeway time.Duration
}

// Validator checks HS256 tokens and implements httputil.TokenValidator.
type Validator struct {
	config Config
	parser *jwt.Parser
}

// NewValidator creates a token validator.
func NewValidator(config Config) (*Validator, error) {
	if config.SecretKey == "" {
		return nil, errors.New("auth: secret key is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	return &Validator{
		config: config,
		parser: jwt.NewParser(opts...),
	}, nil
}

// ValidateToken returns the user ID and role carried by token.
func (v *Validator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(v.config.SecretKey), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.IsValid() {
		return "", "", ErrInvalidRole
	}
	return claims.Subject, role, nil
}

// Sign issues a token for userID. Tokens are normally minted by the auth
// service; Sign exists for local tooling and tests.
func Sign(config Config, userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
