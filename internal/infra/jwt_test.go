package infra

import (
	"context"
	"testing"
	"time"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	raw, err := SignJWT("s3cret", "driver-1", "driver", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tok, err := v.VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.UID != "driver-1" || tok.Claims["role"] != "driver" {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestJWTVerifierRejectsWrongSecret(t *testing.T) {
	v, _ := NewJWTVerifier("right")
	raw, _ := SignJWT("wrong", "u1", "customer", time.Minute)
	if _, err := v.VerifyIDToken(context.Background(), raw); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestJWTVerifierRejectsExpired(t *testing.T) {
	v, _ := NewJWTVerifier("k")
	raw, _ := SignJWT("k", "u1", "customer", -time.Minute)
	if _, err := v.VerifyIDToken(context.Background(), raw); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
