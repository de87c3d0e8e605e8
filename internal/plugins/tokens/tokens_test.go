package tokens

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/pkg/plugin"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	s, err := NewService(cfg, logger.Named(Name))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s
}

func TestNewServiceValidatesSecret(t *testing.T) {
	if _, err := NewService(Config{Secret: "too-short"}, logger.Named(Name)); !errors.Is(err, ErrInvalidSecretLength) {
		t.Errorf("NewService error = %v, want ErrInvalidSecretLength", err)
	}

	s := newService(t, Config{})
	if s.config.Issuer != "botmesh" {
		t.Errorf("default issuer = %q, want botmesh", s.config.Issuer)
	}
	if s.TokenTTL() != time.Hour {
		t.Errorf("default TTL = %v, want 1h", s.TokenTTL())
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	s := newService(t, Config{Issuer: "test-issuer", TokenTTL: 30 * time.Minute})

	issued, err := s.Issue("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if issued.Token == "" {
		t.Fatal("issued token must not be empty")
	}
	if issued.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", issued.TokenType)
	}
	if issued.ExpiresIn != int64((30 * time.Minute).Seconds()) {
		t.Errorf("expires_in = %d, want 1800", issued.ExpiresIn)
	}

	claims, err := s.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("subject = %q, want alice", claims.Subject)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("issuer = %q, want test-issuer", claims.Issuer)
	}
	if !claims.IsAdmin() {
		t.Error("admin token must report IsAdmin")
	}

	viewer, err := s.Issue("bob", RoleViewer)
	if err != nil {
		t.Fatalf("Issue viewer failed: %v", err)
	}
	vc, err := s.Verify(viewer.Token)
	if err != nil {
		t.Fatalf("Verify viewer failed: %v", err)
	}
	if vc.IsAdmin() {
		t.Error("viewer token must not report IsAdmin")
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	s := newService(t, Config{})

	if _, err := s.Issue("", RoleAdmin); err == nil {
		t.Error("Issue must reject an empty subject")
	}
	if _, err := s.Issue("alice", "superuser"); err == nil {
		t.Error("Issue must reject an unknown role")
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	s := newService(t, Config{})
	other := newService(t, Config{Secret: "ffffffffffffffffffffffffffffffff"})

	foreign, err := other.Issue("mallory", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := s.Verify(foreign.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify error = %v, want ErrInvalidToken", err)
	}

	if _, err := s.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	// A negative TTL backdates the expiry claim, so the token is born
	// expired and the test never sleeps.
	s := newService(t, Config{TokenTTL: -time.Minute})

	issued, err := s.Issue("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := s.Verify(issued.Token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify error = %v, want ErrExpiredToken", err)
	}
}

func TestStaticOperatorTokens(t *testing.T) {
	hash, err := HashToken("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	s := newService(t, Config{StaticTokenHashes: []string{hash}})

	if !s.VerifyStatic("correct-horse-battery") {
		t.Error("VerifyStatic must accept the hashed token")
	}
	if s.VerifyStatic("wrong-token") {
		t.Error("VerifyStatic must reject a non-matching token")
	}
	if s.VerifyStatic("") {
		t.Error("VerifyStatic must reject an empty token")
	}

	claims, err := s.Verify("correct-horse-battery")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != StaticSubject {
		t.Errorf("subject = %q, want %q", claims.Subject, StaticSubject)
	}
	if !claims.IsAdmin() {
		t.Error("static operator tokens must verify as admin")
	}
}

func TestVerifyStaticIgnoresJWTs(t *testing.T) {
	hash, err := HashToken("operator-secret")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	s := newService(t, Config{StaticTokenHashes: []string{hash}})

	issued, err := s.Issue("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if s.VerifyStatic(issued.Token) {
		t.Error("VerifyStatic must never accept a JWT")
	}
}

func TestHashTokenBounds(t *testing.T) {
	if _, err := HashToken("short"); !errors.Is(err, ErrTokenTooShort) {
		t.Errorf("HashToken error = %v, want ErrTokenTooShort", err)
	}
	if _, err := HashToken(strings.Repeat("x", MaxTokenLength+1)); !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("HashToken error = %v, want ErrTokenTooLong", err)
	}
	if _, err := HashToken(strings.Repeat("x", MaxTokenLength)); err != nil {
		t.Errorf("HashToken at the length cap failed: %v", err)
	}
}

func TestFactoryBuildsFromSettings(t *testing.T) {
	hash, err := HashToken("operator-secret")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	deps := plugin.NewDependencies(Name, logger.Named(Name), map[string]any{
		"secret":              testSecret,
		"issuer":              "factory-issuer",
		"token_ttl":           "30m",
		"static_token_hashes": []any{hash},
	}, nil)

	v, err := Factory(context.Background(), deps)
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	s, ok := v.(*Service)
	if !ok {
		t.Fatalf("Factory returned %T, want *Service", v)
	}

	if s.TokenTTL() != 30*time.Minute {
		t.Errorf("TTL = %v, want 30m", s.TokenTTL())
	}
	if !s.VerifyStatic("operator-secret") {
		t.Error("static token from settings must verify")
	}

	issued, err := s.Issue("alice", RoleViewer)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := s.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Issuer != "factory-issuer" {
		t.Errorf("issuer = %q, want factory-issuer", claims.Issuer)
	}
}

func TestFactoryRequiresSecret(t *testing.T) {
	deps := plugin.NewDependencies(Name, logger.Named(Name), nil, nil)
	if _, err := Factory(context.Background(), deps); !errors.Is(err, ErrInvalidSecretLength) {
		t.Errorf("Factory error = %v, want ErrInvalidSecretLength", err)
	}
}
