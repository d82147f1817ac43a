package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return c
}

func TestNewCodec_RejectsWeakSettings(t *testing.T) {
	if _, err := NewCodec("short", time.Hour); err == nil {
		t.Error("NewCodec() should reject a short secret")
	}
	if _, err := NewCodec(testSecret, 0); err == nil {
		t.Error("NewCodec() should reject a zero ttl")
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	token, expiresAt, err := c.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Errorf("expiresAt is %v from now, want about 1h", until)
	}

	userID, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("Verify() = %q, want user-123", userID)
	}
}

func TestCodec_IssueUniqueTokens(t *testing.T) {
	c := newTestCodec(t)
	a, _, _ := c.Issue("u")
	b, _, _ := c.Issue("u")
	if a == b {
		t.Error("two credentials for the same user should differ (jti)")
	}
}

func TestCodec_IssueEmptyUser(t *testing.T) {
	if _, _, err := newTestCodec(t).Issue(""); err == nil {
		t.Error("Issue(\"\") should fail")
	}
}

func TestCodec_FlippedByteFails(t *testing.T) {
	c := newTestCodec(t)
	token, _, err := c.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	for i := 0; i < len(token); i++ {
		b := []byte(token)
		b[i] ^= 0x01
		if _, err := c.Verify(string(b)); err == nil {
			t.Fatalf("Verify() accepted token with byte %d flipped", i)
		}
	}
}

func TestCodec_VerifyRejects(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	sign := func(method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing test token: %v", err)
		}
		return s
	}

	valid := jwt.RegisteredClaims{
		Subject:   "user-123",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte(strings.Repeat("x", 40)), valid)},
		{"wrong algorithm", sign(jwt.SigningMethodHS512, []byte(testSecret), valid)},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid)},
		{"expired", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		})},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Subject: "user-123",
		})},
		{"missing subject", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := c.Verify(tt.token)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
			}
			if userID != "" {
				t.Errorf("Verify() returned partial identity %q", userID)
			}
		})
	}
}

func TestCodec_ExpiryUsesClock(t *testing.T) {
	c := newTestCodec(t)
	token, _, err := c.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := c.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() after expiry error = %v, want ErrTokenInvalid", err)
	}
}
