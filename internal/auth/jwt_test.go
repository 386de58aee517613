package auth

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// resetJWTSecret resets the package-level sync.Once so tests can set a fresh secret.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	os.Setenv("PA_JWT_SECRET", "test-jwt-secret-that-is-32-chars-!")
	os.Exit(m.Run())
}

func TestValidateJWTSecret(t *testing.T) {
	t.Run("valid secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv("PA_JWT_SECRET", "exactly-32-char-secret-for-test!!")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
	})

	t.Run("production mode requires secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv("PA_JWT_SECRET", "")
		t.Setenv("PA_DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("ValidateJWTSecret() expected error without secret, got nil")
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv("PA_JWT_SECRET", "")
		t.Setenv("PA_DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error in dev mode: %v", err)
		}
		if GetJWTSecret() == "" {
			t.Error("GetJWTSecret() returned empty string after dev mode init")
		}
	})

	resetJWTSecret()
}

const (
	testTenant = "0b6f3c2e-5a41-4d8e-9c1f-7e2a9b4d6c10"
	testUser   = "9d2e7f14-3b6a-4c58-8e09-1f4a6b7c2d35"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	resetJWTSecret()
	t.Setenv("PA_JWT_SECRET", "test-jwt-secret-that-is-32-chars-!")

	t.Run("round trip", func(t *testing.T) {
		token, err := GenerateJWT(testTenant, testUser, "pm@example.com", "", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		claims, err := ValidateJWT(token, DefaultIssuer)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		if claims.TenantID != testTenant {
			t.Errorf("claims.TenantID = %q, want %q", claims.TenantID, testTenant)
		}
		if claims.UserID != testUser {
			t.Errorf("claims.UserID = %q, want %q", claims.UserID, testUser)
		}
		if claims.Issuer != DefaultIssuer {
			t.Errorf("claims.Issuer = %q, want %q", claims.Issuer, DefaultIssuer)
		}
	})

	t.Run("default expiry when zero duration", func(t *testing.T) {
		token, err := GenerateJWT(testTenant, testUser, "", "", 0)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		claims, err := ValidateJWT(token, "")
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		remaining := time.Until(claims.ExpiresAt.Time)
		if remaining < 50*time.Minute || remaining > 70*time.Minute {
			t.Errorf("default expiry remaining = %v, want ~1h", remaining)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := GenerateJWT(testTenant, testUser, "", "", -time.Second)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		if _, err := ValidateJWT(token, ""); err == nil {
			t.Error("ValidateJWT() expected error for expired token, got nil")
		}
	})

	t.Run("wrong issuer is rejected", func(t *testing.T) {
		token, err := GenerateJWT(testTenant, testUser, "", "someone-else", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		if _, err := ValidateJWT(token, DefaultIssuer); err == nil {
			t.Error("ValidateJWT() expected error for foreign issuer, got nil")
		}
	})

	t.Run("token without tenant is rejected", func(t *testing.T) {
		claims := &Claims{
			UserID: testUser,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
		if err != nil {
			t.Fatalf("SignedString() error: %v", err)
		}
		if _, err := ValidateJWT(token, ""); !errors.Is(err, ErrMissingTenant) {
			t.Errorf("ValidateJWT() error = %v, want ErrMissingTenant", err)
		}
	})

	t.Run("non-uuid tenant or user is rejected", func(t *testing.T) {
		for _, ids := range [][2]string{
			{"tenant-1", testUser},
			{testTenant, "user-1"},
			{"{" + testTenant + "}", testUser},
		} {
			token, err := GenerateJWT(ids[0], ids[1], "", "", time.Hour)
			if err != nil {
				t.Fatalf("GenerateJWT() error: %v", err)
			}
			if _, err := ValidateJWT(token, ""); !errors.Is(err, ErrMalformedIdentity) {
				t.Errorf("ValidateJWT(%v) error = %v, want ErrMalformedIdentity", ids, err)
			}
		}
	})

	t.Run("garbage and empty tokens", func(t *testing.T) {
		for _, tok := range []string{"not.a.valid.token", ""} {
			if _, err := ValidateJWT(tok, ""); err == nil {
				t.Errorf("ValidateJWT(%q) expected error, got nil", tok)
			}
		}
	})

	t.Run("token signed with different secret is rejected", func(t *testing.T) {
		token, err := GenerateJWT(testTenant, testUser, "", "", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		resetJWTSecret()
		t.Setenv("PA_JWT_SECRET", "completely-different-secret-32ch!")

		if _, err := ValidateJWT(token, ""); err == nil {
			t.Error("ValidateJWT() expected error for token signed with different secret, got nil")
		}

		resetJWTSecret()
		t.Setenv("PA_JWT_SECRET", "test-jwt-secret-that-is-32-chars-!")
	})
}
