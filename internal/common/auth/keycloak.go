// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealdesk/internal/common/errors"
	httpclient "dealdesk/internal/common/http"
)

// KeycloakClient provides methods to interact with Keycloak for user
// management and authentication.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *httpclient.Client
	adminToken   string
	tokenExpiry  time.Time
}

// User represents a user in Keycloak.
type User struct {
	ID            string              `json:"id,omitempty"`
	Email         string              `json:"email"`
	Username      string              `json:"username"`
	Enabled       bool                `json:"enabled"`
	EmailVerified bool                `json:"emailVerified"`
	Credentials   []Credential        `json:"credentials,omitempty"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

// Credential is a password credential attached at user creation.
type Credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// TokenResponse holds the response from Keycloak's token endpoint.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
}

// keycloakError is the error body Keycloak returns on failed requests.
type keycloakError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorMessage     string `json:"errorMessage"`
}

// NewKeycloakClient creates a new instance of KeycloakClient.
func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpclient.NewClient(30 * time.Second),
	}
}

// getAdminToken fetches a new access token using the client credentials flow.
// It caches the token until expiry. A transient provider status gets one
// immediate retry; other failures surface as-is.
func (k *KeycloakClient) getAdminToken(ctx context.Context) error {
	if k.tokenExpiry.After(time.Now()) && k.adminToken != "" {
		return nil
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	var lastStatus int
	var lastBody []byte
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := k.httpClient.PostForm(ctx, tokenURL, data)
		if err != nil {
			return fmt.Errorf("failed to execute token request: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var tokenResp TokenResponse
			err := json.NewDecoder(resp.Body).Decode(&tokenResp)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to decode token response: %w", err)
			}

			k.adminToken = tokenResp.AccessToken
			k.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
			return nil
		}

		lastBody, _ = io.ReadAll(resp.Body)
		lastStatus = resp.StatusCode
		resp.Body.Close()

		if !IsTransientHTTPError(resp.StatusCode) {
			break
		}
	}

	return fmt.Errorf("keycloak token request failed with status %d: %s", lastStatus, string(lastBody))
}

// SignIn exchanges an email and password for tokens using the resource
// owner password grant.
func (k *KeycloakClient) SignIn(ctx context.Context, email, password string) (*TokenResponse, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)
	data.Set("username", email)
	data.Set("password", password)

	resp, err := k.httpClient.PostForm(ctx, tokenURL, data)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		var kcErr keycloakError
		_ = json.Unmarshal(body, &kcErr)
		// invalid_grant covers wrong password, unknown user and disabled user
		if kcErr.Error == "invalid_grant" || resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.NewAuthError(errors.ErrCodeInvalidCredentials, kcErr.ErrorDescription)
		}
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	return &tokenResp, nil
}

// SignUp creates a new user in Keycloak with a password credential.
// On success the created user's ID is taken from the Location header.
func (k *KeycloakClient) SignUp(ctx context.Context, email, password string, attributes map[string][]string) (*User, error) {
	if err := k.getAdminToken(ctx); err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	user := &User{
		Email:         email,
		Username:      email,
		Enabled:       true,
		EmailVerified: false,
		Attributes:    attributes,
		Credentials: []Credential{
			{Type: "password", Value: password, Temporary: false},
		},
	}

	userURL := fmt.Sprintf("%s/admin/realms/%s/users", k.baseURL, k.realm)

	jsonData, err := json.Marshal(user)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, "POST", userURL, strings.NewReader(string(jsonData)))
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+k.adminToken)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	if resp.StatusCode != http.StatusCreated {
		var kcErr keycloakError
		_ = json.Unmarshal(body, &kcErr)
		switch {
		case resp.StatusCode == http.StatusConflict:
			return nil, errors.NewAuthError(errors.ErrCodeEmailInUse, kcErr.ErrorMessage)
		case strings.Contains(strings.ToLower(kcErr.ErrorMessage), "password"):
			return nil, errors.NewAuthError(errors.ErrCodeWeakPassword, kcErr.ErrorMessage)
		default:
			return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, string(body))
		}
	}

	// Keycloak returns an empty body on 201; the new user's ID is in the
	// Location header.
	location := resp.Header.Get("Location")
	if location != "" {
		parts := strings.Split(location, "/")
		user.ID = parts[len(parts)-1]
	}
	user.Credentials = nil

	return user, nil
}

// SignOut revokes a user's refresh token.
func (k *KeycloakClient) SignOut(ctx context.Context, refreshToken string) error {
	logoutURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/logout", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)
	data.Set("refresh_token", refreshToken)

	resp, err := k.httpClient.PostForm(ctx, logoutURL, data)
	if err != nil {
		return errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errors.NewAuthError(errors.ErrCodeAuthUnknown,
			fmt.Sprintf("logout failed with status %d: %s", resp.StatusCode, string(body)))
	}

	return nil
}

// ValidateToken checks if an access token is valid and active.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	resp, err := k.httpClient.PostForm(ctx, introspectURL, data)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}
	defer resp.Body.Close()

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	if !tokenInfo.Active {
		return nil, errors.NewAuthError(errors.ErrCodeInvalidCredentials, "token is not active")
	}

	return &tokenInfo, nil
}

// GetUserByEmail retrieves a user by their email address.
func (k *KeycloakClient) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if err := k.getAdminToken(ctx); err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	searchURL := fmt.Sprintf("%s/admin/realms/%s/users?email=%s&exact=true", k.baseURL, k.realm, url.QueryEscape(email))

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	req.Header.Set("Authorization", "Bearer "+k.adminToken)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, string(body))
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, errors.NewAuthError(errors.ErrCodeAuthUnknown, err.Error())
	}

	if len(users) == 0 {
		return nil, errors.NewAuthError(errors.ErrCodeInvalidCredentials,
			fmt.Sprintf("no user found with email: %s", email))
	}

	return &users[0], nil
}

// IsTransientHTTPError returns true if the HTTP status code indicates a
// potentially transient error.
func IsTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
}
