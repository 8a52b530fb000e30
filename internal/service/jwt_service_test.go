package service

import (
	"errors"
	"testing"
	"time"

	"authcore/internal/domain"
)

func jwtTestUser() domain.User {
	verifiedAt := time.Now().UTC()
	return domain.User{
		ID:              "user-1",
		Email:           "a@example.com",
		EmailVerifiedAt: &verifiedAt,
		SessionVersion:  3,
	}
}

func TestJWTService_GenerateAndParse(t *testing.T) {
	svc := NewJWTService("secret", 15*time.Minute, time.Hour)

	pair, err := svc.GeneratePair(jwtTestUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens: %+v", pair)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expires_in: %d", pair.ExpiresIn)
	}

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.EmailVerified {
		t.Fatalf("expected email_verified claim")
	}
	if claims.SessionVersion != 3 {
		t.Fatalf("expected session version 3, got %d", claims.SessionVersion)
	}
}

func TestJWTService_ParseRejectsWrongInput(t *testing.T) {
	svc := NewJWTService("secret", 15*time.Minute, time.Hour)
	pair, err := svc.GeneratePair(jwtTestUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	// Un refresh token no sirve como access token.
	if _, err := svc.ParseAccessToken(pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for refresh token, got %v", err)
	}
	if _, err := svc.ParseAccessToken(""); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for empty token, got %v", err)
	}
	if _, err := svc.ParseAccessToken(pair.AccessToken + "x"); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for tampered token, got %v", err)
	}

	other := NewJWTService("another secret", 15*time.Minute, time.Hour)
	if _, err := other.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid under different secret, got %v", err)
	}
}

func TestJWTService_ExpiredAccessToken(t *testing.T) {
	svc := NewJWTService("secret", time.Nanosecond, time.Hour)
	pair, err := svc.GeneratePair(jwtTestUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
}

func TestJWTService_RefreshRotation(t *testing.T) {
	svc := NewJWTService("secret", 15*time.Minute, time.Hour)
	pair, err := svc.GeneratePair(jwtTestUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	claims, err := svc.ConsumeRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("consume refresh: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionVersion != 3 {
		t.Fatalf("unexpected refresh claims: %+v", claims)
	}

	// Consumir revoca: el mismo refresh no vale dos veces.
	if _, err := svc.ConsumeRefreshToken(pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid on reuse, got %v", err)
	}

	// Un access token tampoco pasa por el camino de refresh.
	if _, err := svc.ConsumeRefreshToken(pair.AccessToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for access token, got %v", err)
	}
}

func TestJWTService_RevokeRefresh(t *testing.T) {
	svc := NewJWTService("secret", 15*time.Minute, time.Hour)
	pair, err := svc.GeneratePair(jwtTestUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if err := svc.RevokeRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("revoke refresh: %v", err)
	}
	if _, err := svc.ConsumeRefreshToken(pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid after revoke, got %v", err)
	}
}
