package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/credential"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

func testSession() *Session {
	return &Session{
		AuthData:         AuthData{SessionToken: "tok-1", TeamID: "team-1"},
		BundleIdentifier: "com.acme.app",
		Username:         "ci@acme.dev",
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Authenticate_Success(t *testing.T) {
	var captured authRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/auth/session", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, AuthData{SessionToken: "tok-xyz", TeamID: "team-9"})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	data, err := c.Authenticate(context.Background(), Account{Username: "u", Password: "p", TeamID: "team-9"})
	require.NoError(t, err)
	assert.Equal(t, "tok-xyz", data.SessionToken)
	assert.Equal(t, "u", captured.Username)
	assert.Equal(t, "team-9", captured.TeamID)
}

func TestClient_Authenticate_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, portalErrorResponse{Error: "invalid_credentials"})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	_, err := c.Authenticate(context.Background(), Account{Username: "u", Password: "bad"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuthentication))
	assert.Contains(t, err.Error(), "invalid_credentials")
}

func TestClient_Authenticate_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, AuthData{})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	_, err := c.Authenticate(context.Background(), Account{Username: "u", Password: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuthentication))
}

func TestClient_EnsureAppExists(t *testing.T) {
	var captured registerAppRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/apps", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	err := c.EnsureAppExists(context.Background(), testSession(), "@acme/app", "com.acme.app")
	require.NoError(t, err)
	assert.Equal(t, "@acme/app", captured.Name)
	assert.Equal(t, "com.acme.app", captured.BundleIdentifier)
}

func TestClient_EnsureAppExists_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, portalErrorResponse{Message: "team quota exceeded"})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	err := c.EnsureAppExists(context.Background(), testSession(), "@acme/app", "com.acme.app")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAppRegistration))
	assert.Contains(t, err.Error(), "team quota exceeded")
}

func TestClient_Generate(t *testing.T) {
	var captured generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/credentials/generate", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, generateResponse{Credentials: map[string]string{
			"provisioningProfile": "generated-profile",
		}})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	meta := map[string]string{"distCertSerialNumber": "ABC123"}
	got, err := c.Generate(context.Background(), testSession(), []credential.Kind{credential.ProvisioningProfile}, meta)
	require.NoError(t, err)
	assert.Equal(t, credential.Set{credential.ProvisioningProfile: "generated-profile"}, got)
	assert.Equal(t, []string{"provisioningProfile"}, captured.Kinds)
	assert.Equal(t, "ABC123", captured.Metadata["distCertSerialNumber"])
}

func TestClient_Generate_UnknownKindRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, generateResponse{Credentials: map[string]string{"teamKey": "x"}})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	_, err := c.Generate(context.Background(), testSession(), []credential.Kind{credential.PushKey}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrGeneration))
}

func TestClient_Revoke(t *testing.T) {
	var captured revokeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/credentials/revoke", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	kinds := credential.NewKindSet(credential.DistributionCert, credential.PushKey)
	require.NoError(t, c.Revoke(context.Background(), testSession(), kinds))
	assert.Equal(t, []string{"distributionCert", "pushKey"}, captured.Kinds)
}
