package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propaudit/propaudit/internal/auth"
)

func TestMain(m *testing.M) {
	os.Setenv("PA_JWT_SECRET", "test-jwt-secret-that-is-32-chars-!")
	os.Exit(m.Run())
}

const (
	devTenant = "d4c3b2a1-0f9e-4d8c-b7a6-958473625140"
	devUser   = "e5d4c3b2-1a0f-4e9d-8c7b-a69584736251"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMint_TokenValidatesWithServerRules(t *testing.T) {
	out, err := execute(t, "mint", "--tenant", devTenant, "--user", devUser, "--email", "inspector@example.com")
	require.NoError(t, err)

	claims, err := auth.ValidateJWT(strings.TrimSpace(out), auth.DefaultIssuer)
	require.NoError(t, err)
	assert.Equal(t, devTenant, claims.TenantID)
	assert.Equal(t, devUser, claims.UserID)
	assert.Equal(t, "inspector@example.com", claims.Email)
}

func TestMint_RequiresTenantAndUser(t *testing.T) {
	_, err := execute(t, "mint", "--user", devUser)
	assert.Error(t, err)

	_, err = execute(t, "mint", "--tenant", " ", "--user", devUser)
	assert.Error(t, err)
}

func TestMint_RejectsNonUUIDIdentity(t *testing.T) {
	_, err := execute(t, "mint", "--tenant", "tenant-1", "--user", devUser)
	assert.ErrorContains(t, err, "--tenant must be a uuid")

	_, err = execute(t, "mint", "--tenant", devTenant, "--user", "user-1")
	assert.ErrorContains(t, err, "--user must be a uuid")
}

func TestMint_RejectsNonPositiveTTL(t *testing.T) {
	_, err := execute(t, "mint", "--tenant", devTenant, "--user", devUser, "--ttl", "0s")
	assert.Error(t, err)
}

func TestSmoke_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-Request-ID", "req-1")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"templates":[]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := smoke(&out, srv.Client(), srv.URL+"/api/v1/checklists/templates", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Contains(t, out.String(), "Request ID: req-1")
	assert.Contains(t, out.String(), `{"templates":[]}`)
}

func TestSmoke_ErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"UNAUTHORIZED"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := smoke(&out, srv.Client(), srv.URL, "tok")
	assert.Error(t, err)
	assert.Contains(t, out.String(), "UNAUTHORIZED")
}
