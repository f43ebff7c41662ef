package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestFormatClock(t *testing.T) {
	tests := map[int]string{
		0:    "00:00",
		5:    "00:05",
		59:   "00:59",
		60:   "01:00",
		120:  "02:00",
		300:  "05:00",
		6001: "100:01",
		-3:   "00:00",
	}
	for in, want := range tests {
		if got := FormatClock(in); got != want {
			t.Errorf("FormatClock(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")
	t.Cleanup(func() { SetJWTSecret("") })

	token, err := GenerateJWTToken("alice")
	if err != nil {
		t.Fatalf("GenerateJWTToken: %v", err)
	}
	id, err := GetUserIDFromToken(token)
	if err != nil {
		t.Fatalf("GetUserIDFromToken: %v", err)
	}
	if id != "alice" {
		t.Errorf("user id = %q", id)
	}

	if _, err := ParseJWTToken(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token err = %v", err)
	}
}

func TestJWTExpired(t *testing.T) {
	SetJWTSecret("test-secret")
	t.Cleanup(func() { SetJWTSecret("") })

	claims := &Claims{
		UserID: "bob",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseJWTToken(signed); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestJWTWithoutSecret(t *testing.T) {
	SetJWTSecret("")
	if JWTEnabled() {
		t.Fatal("JWTEnabled with empty secret")
	}
	if _, err := GenerateJWTToken("x"); !errors.Is(err, ErrNoJWTSecret) {
		t.Errorf("err = %v, want ErrNoJWTSecret", err)
	}
}
