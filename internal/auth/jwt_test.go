package auth

import (
	"testing"
	"time"

	"callmgr/internal/config"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:   "test-secret",
		JWTIssuer:   "callmgr",
		JWTAudience: "ops",
		TokenTTL:    15 * time.Minute,
	}
}

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now()
	tok, err := m.Issue(now, "provisioner")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := m.Verify(tok, now)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.ServiceID != "provisioner" {
		t.Fatalf("service id: got %q", claims.ServiceID)
	}
	if claims.Issuer != "callmgr" {
		t.Fatalf("issuer: got %q", claims.Issuer)
	}
}

func TestIssueRequiresServiceID(t *testing.T) {
	m, _ := NewManager(testConfig())
	if _, err := m.Issue(time.Now(), ""); err == nil {
		t.Fatalf("expected error for empty service id")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuerCfg := testConfig()
	m1, _ := NewManager(issuerCfg)

	otherCfg := testConfig()
	otherCfg.JWTSecret = "another-secret"
	m2, _ := NewManager(otherCfg)

	now := time.Now()
	tok, err := m1.Issue(now, "provisioner")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := m2.Verify(tok, now); err == nil {
		t.Fatalf("token signed with another secret must fail")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.TokenTTL = -time.Hour
	m, _ := NewManager(cfg)

	now := time.Now()
	tok, err := m.Issue(now, "provisioner")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expired token must fail")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	cfg := testConfig()
	cfg.JWTIssuer = "someone-else"
	other, _ := NewManager(cfg)

	m, _ := NewManager(testConfig())

	now := time.Now()
	tok, err := other.Issue(now, "provisioner")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("token from another issuer must fail")
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	if _, err := NewManager(cfg); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}
