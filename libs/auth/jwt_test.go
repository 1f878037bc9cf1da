package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	secret := "test-secret"
	claims := Claims{
		Role:     "doctor",
		DoctorID: "doc-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
		},
	}

	token, err := Sign(claims, secret, time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	parsed, err := ParseAndVerify(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerify failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.Role != "doctor" || parsed.DoctorID != "doc-1" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	if _, err := ParseAndVerify(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	secret := "test-secret"
	claims := Claims{
		Role: "patient",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := ParseAndVerify(signed, secret); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	secret := "test-secret"
	token, err := Sign(Claims{Role: "admin"}, secret, time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := ParseAndVerify(token, secret); err == nil {
		t.Fatal("expected token without subject to be rejected")
	}
}
