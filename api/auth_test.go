package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestLocalAuthOwnerFromAuthHeader(t *testing.T) {
	auth := NewLocalAuth([]byte(testSecret))
	owner, err := auth.OwnerFromAuthHeader("Bearer " + testToken(t, "owner-1"))
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if owner != "owner-1" {
		t.Fatalf("owner = %q", owner)
	}
}

func TestLocalAuthRejectsInvalidTokens(t *testing.T) {
	auth := NewLocalAuth([]byte(testSecret))

	sign := func(claims jwt.MapClaims, secret string) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: sign(jwt.MapClaims{"sub": "o", "exp": time.Now().Add(time.Hour).Unix()}, "other")},
		{name: "expired", token: sign(jwt.MapClaims{"sub": "o", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret)},
		{name: "no expiry", token: sign(jwt.MapClaims{"sub": "o"}, testSecret)},
		{name: "missing sub", token: sign(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testSecret)},
		{name: "not a jwt", token: "a.b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.OwnerFromToken(tt.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAuthChecksAudienceAndIssuer(t *testing.T) {
	auth := NewLocalAuth([]byte(testSecret))
	auth.Audience = "board"
	auth.Issuer = "https://issuer/"

	good := jwt.MapClaims{"sub": "o", "exp": time.Now().Add(time.Hour).Unix(), "aud": "board", "iss": "https://issuer/"}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, good).SignedString([]byte(testSecret))
	if _, err := auth.OwnerFromToken(tok); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}

	bad := jwt.MapClaims{"sub": "o", "exp": time.Now().Add(time.Hour).Unix(), "aud": "other", "iss": "https://issuer/"}
	tok, _ = jwt.NewWithClaims(jwt.SigningMethodHS256, bad).SignedString([]byte(testSecret))
	if _, err := auth.OwnerFromToken(tok); err == nil {
		t.Fatal("expected audience mismatch")
	}
}

func TestAuthWithoutJWKSRejectsRS256(t *testing.T) {
	auth := NewAuth(nil, "aud", "iss", 0)
	if auth.keyCacheTTL != defaultJWKSCacheTTL {
		t.Fatalf("expected default cache ttl, got %v", auth.keyCacheTTL)
	}
	if _, err := auth.OwnerFromAuthHeader("Bearer " + testToken(t, "o")); err == nil {
		t.Fatal("expected HS256 token to be rejected by RS256 auth")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "valid", header: "Bearer a.b.c", want: "a.b.c"},
		{name: "padded", header: "  Bearer a.b.c  ", want: "a.b.c"},
		{name: "empty", header: "", wantErr: errMissingAuthorization},
		{name: "blank", header: "   ", wantErr: errMissingAuthorization},
		{name: "basic", header: "Basic a.b.c", wantErr: errBadAuthorization},
		{name: "prefix only", header: "Bearer ", wantErr: errBadAuthorization},
		{name: "not jwt", header: "Bearer abc", wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("bearerToken(%q) error = %v, want %v", tt.header, err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("bearerToken(%q) = %q, %v", tt.header, got, err)
			}
		})
	}
}
