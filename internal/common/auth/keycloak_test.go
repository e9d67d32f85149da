// internal/common/auth/keycloak_test.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"dealdesk/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestClient(t *testing.T, handler http.Handler) *KeycloakClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewKeycloakClient(srv.URL, "dealdesk", "client-id", "client-secret")
}

// ==========================
// Sign-In Tests
// ==========================

func TestSignIn_InvalidGrantMapsToInvalidCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/dealdesk/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid user credentials",
		})
	})

	client := createTestClient(t, mux)
	_, err := client.SignIn(context.Background(), "who@example.com", "wrong")

	require.Error(t, err)
	var authErr *errors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, errors.ErrCodeInvalidCredentials, authErr.Code)
}

func TestSignIn_SuccessReturnsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/dealdesk/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "acc", RefreshToken: "ref", ExpiresIn: 300})
	})

	client := createTestClient(t, mux)
	tok, err := client.SignIn(context.Background(), "u@example.com", "pw")

	require.NoError(t, err)
	assert.Equal(t, "acc", tok.AccessToken)
	assert.Equal(t, "ref", tok.RefreshToken)
}

// ==========================
// Token Introspection Tests
// ==========================

func TestValidateToken_ActiveToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/dealdesk/protocol/openid-connect/token/introspect", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenInfo{Active: true, Sub: "u1", Email: "u1@example.com"})
	})

	client := createTestClient(t, mux)
	info, err := client.ValidateToken(context.Background(), "tok")

	require.NoError(t, err)
	assert.Equal(t, "u1", info.Sub)
}

func TestValidateToken_InactiveTokenRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/dealdesk/protocol/openid-connect/token/introspect", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenInfo{Active: false})
	})

	client := createTestClient(t, mux)
	_, err := client.ValidateToken(context.Background(), "revoked")

	require.Error(t, err)
	var authErr *errors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, errors.ErrCodeInvalidCredentials, authErr.Code)
}

// ==========================
// Admin Token Tests
// ==========================

func TestGetAdminToken_RetriesOnceOnTransientStatus(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/dealdesk/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&tokenCalls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "admin-tok", ExpiresIn: 300})
	})
	mux.HandleFunc("/admin/realms/dealdesk/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]User{{ID: "u1", Email: r.URL.Query().Get("email")}})
	})

	client := createTestClient(t, mux)
	user, err := client.GetUserByEmail(context.Background(), "u1@example.com")

	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
}

func TestGetAdminToken_DoesNotRetryClientErrors(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/dealdesk/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"unauthorized_client"}`)
	})

	client := createTestClient(t, mux)
	_, err := client.GetUserByEmail(context.Background(), "u1@example.com")

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

// ==========================
// Transient Classification Tests
// ==========================

func TestIsTransientHTTPError(t *testing.T) {
	assert.True(t, IsTransientHTTPError(http.StatusServiceUnavailable))
	assert.True(t, IsTransientHTTPError(http.StatusBadGateway))
	assert.True(t, IsTransientHTTPError(http.StatusGatewayTimeout))
	assert.True(t, IsTransientHTTPError(http.StatusInternalServerError))
	assert.False(t, IsTransientHTTPError(http.StatusUnauthorized))
	assert.False(t, IsTransientHTTPError(http.StatusConflict))
}
