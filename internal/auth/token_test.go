package auth

import (
	"errors"
	"testing"

	"aichat/internal/domain"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", false)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, err := issuer.Sign("user-1", "alice", true)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Username != "alice" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret-a", false)
	other, _ := NewTokenIssuer("secret-b", false)

	token, err := issuer.Sign("user-1", "alice", false)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := other.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Verify with wrong secret = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", false)
	if _, err := issuer.Verify("not.a.token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Verify garbage = %v, want ErrUnauthorized", err)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewTokenIssuer("", false); err == nil {
		t.Error("empty secret should be rejected")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "hunter2hunter2") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong-password") {
		t.Error("wrong password accepted")
	}
}
