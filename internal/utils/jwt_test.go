package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("secret")
	want := session.Session{UserID: "u1", Name: "Asha", Role: models.RoleCustomer}

	token, err := svc.GenerateToken(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.ExtractSession(token)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("session = %+v, want %+v", got, want)
	}
}

func TestExtractSessionRejects(t *testing.T) {
	svc := NewJWTService("secret")
	farmer := session.Session{UserID: "f1", Name: "Ramesh", Role: models.RoleFarmer}

	expired := NewJWTService("secret").WithTTL(time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredToken, err := expired.GenerateToken(farmer)
	if err != nil {
		t.Fatal(err)
	}

	otherKey, err := NewJWTService("other").GenerateToken(farmer)
	if err != nil {
		t.Fatal(err)
	}

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "f1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expiredToken},
		{"wrong key", otherKey},
		{"no role", noRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ExtractSession(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNumericUserID(t *testing.T) {
	svc := NewJWTService("secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"name":    "Ramesh",
		"role":    "farmer",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	sess, err := svc.ExtractSession(token)
	if err != nil {
		t.Fatal(err)
	}
	if sess.UserID != "42" || !sess.IsFarmer() {
		t.Errorf("session = %+v", sess)
	}
}
