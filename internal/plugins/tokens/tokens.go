// Package tokens is the built-in API token utility. It issues and
// verifies the bearer tokens the control API accepts: short-lived HS256
// JWTs signed with the platform secret, plus long-lived static operator
// tokens checked against bcrypt hashes from configuration.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/botmesh/botmesh/pkg/plugin"
)

// Name is the plugin name declared in descriptors.
const Name = "tokens"

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("token secret must be at least 32 characters")
	ErrTokenTooShort       = errors.New("static token must be at least 8 characters")
	ErrTokenTooLong        = errors.New("static token must be at most 72 characters")
)

// Roles carried in token claims.
const (
	// RoleAdmin may call mutating control API routes.
	RoleAdmin = "admin"
	// RoleViewer may only call read routes.
	RoleViewer = "viewer"
)

// StaticSubject is the subject reported for static operator tokens,
// which carry no identity of their own.
const StaticSubject = "static-operator"

// DefaultBcryptCost balances hashing time against brute-force cost for
// static operator tokens.
const DefaultBcryptCost = 10

// Static token length constraints. bcrypt silently truncates input at
// 72 bytes, so the upper bound is enforced rather than ignored.
const (
	MinTokenLength = 8
	MaxTokenLength = 72
)

// Claims are the JWT claims BotMesh tokens carry.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the operator role ("admin" or "viewer").
	Role string `json:"role"`
}

// IsAdmin returns true if the token may call mutating routes.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Config holds the settings for the token service.
type Config struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "botmesh".
	Issuer string

	// TokenTTL is the lifetime of issued tokens. Default: 1 hour.
	TokenTTL time.Duration

	// StaticTokenHashes are bcrypt hashes of long-lived operator tokens.
	// A presented token matching any hash verifies as an admin.
	StaticTokenHashes []string
}

// Issued describes a freshly issued token.
type Issued struct {
	// Token is the signed JWT.
	Token string `json:"token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// ExpiresAt is the token expiration time.
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues and verifies bearer tokens.
type Service struct {
	config Config
	log    *slog.Logger
}

// NewService validates the configuration and returns the token service.
func NewService(config Config, log *slog.Logger) (*Service, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}

	if config.Issuer == "" {
		config.Issuer = "botmesh"
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = time.Hour
	}

	log.Info("Token service ready",
		"issuer", config.Issuer,
		"token_ttl", config.TokenTTL,
		"static_tokens", len(config.StaticTokenHashes),
	)

	return &Service{config: config, log: log}, nil
}

// Factory builds the token service from its plugin settings.
func Factory(_ context.Context, deps *plugin.Dependencies) (any, error) {
	cfg := Config{
		Secret:            deps.StringSetting("secret", ""),
		Issuer:            deps.StringSetting("issuer", ""),
		TokenTTL:          deps.DurationSetting("token_ttl", 0),
		StaticTokenHashes: deps.StringSliceSetting("static_token_hashes"),
	}
	return NewService(cfg, deps.Logger())
}

// Issue creates a signed JWT for the given subject and role.
func (s *Service) Issue(subject, role string) (*Issued, error) {
	if subject == "" {
		return nil, fmt.Errorf("token subject must not be empty")
	}
	if role != RoleAdmin && role != RoleViewer {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	now := time.Now()
	expiresAt := now.Add(s.config.TokenTTL)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, ErrTokenSigningFailed
	}

	return &Issued{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(s.config.TokenTTL.Seconds()),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a presented bearer token. JWTs are tried first; a token
// that is not a valid JWT is compared against the static token hashes
// and verifies as an admin on a match.
func (s *Service) Verify(token string) (*Claims, error) {
	claims, jwtErr := s.verifyJWT(token)
	if jwtErr == nil {
		return claims, nil
	}

	if s.matchStatic(token) {
		return &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:  s.config.Issuer,
				Subject: StaticSubject,
			},
			Role: RoleAdmin,
		}, nil
	}

	return nil, jwtErr
}

func (s *Service) verifyJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyStatic reports whether the presented token matches one of the
// configured static operator token hashes. Unlike Verify it never
// accepts a JWT, so it gates operations reserved for the long-lived
// operator credential.
func (s *Service) VerifyStatic(token string) bool {
	return s.matchStatic(token)
}

func (s *Service) matchStatic(token string) bool {
	if token == "" {
		return false
	}
	for _, hash := range s.config.StaticTokenHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			return true
		}
	}
	return false
}

// TokenTTL returns the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.config.TokenTTL
}

// HashToken creates a bcrypt hash of a static operator token, for
// placing in the static_token_hashes setting.
func HashToken(token string) (string, error) {
	if len(token) < MinTokenLength {
		return "", ErrTokenTooShort
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), DefaultBcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
