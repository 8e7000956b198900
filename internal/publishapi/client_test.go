package publishapi

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

	"github.com/buildharbor/signing-adapter/pkg/model"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchMetadata_HostedExperience(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/experiences/@acme%2Fapp/metadata", r.URL.EscapedPath())
		assert.Equal(t, "ios", r.URL.Query().Get("platform"))
		writeJSON(w, model.ProjectMetadata{
			Username:         "acme",
			ExperienceName:   "@acme/app",
			BundleIdentifier: "com.acme.app",
			SDKVersion:       "52.0.0",
		})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	meta, err := c.FetchMetadata(context.Background(), model.BuildRequest{
		ClientID:       "client-1",
		ExperienceName: "@acme/app",
		Platform:       "ios",
	})
	require.NoError(t, err)
	assert.Equal(t, "com.acme.app", meta.BundleIdentifier)
	assert.Equal(t, "acme", meta.Username)
}

func TestFetchMetadata_PublicURLBypassesLookup(t *testing.T) {
	manifest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/manifest.json", r.URL.Path)
		writeJSON(w, model.ProjectMetadata{
			ExperienceName:   "@acme/selfhosted",
			BundleIdentifier: "com.acme.selfhosted",
		})
	}))
	defer manifest.Close()

	c := NewClient(zap.NewNop(), nil, "http://publish.invalid")
	meta, err := c.FetchMetadata(context.Background(), model.BuildRequest{
		ClientID:  "client-1",
		Platform:  "ios",
		PublicURL: manifest.URL + "/manifest.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "com.acme.selfhosted", meta.BundleIdentifier)
}

func TestFetchMetadata_MissingBundleIdentifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, model.ProjectMetadata{ExperienceName: "@acme/app"})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	_, err := c.FetchMetadata(context.Background(), model.BuildRequest{
		ExperienceName: "@acme/app",
		Platform:       "ios",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMetadataFetch))
}

func TestFetchMetadata_BackendErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, publishErrorResponse{Message: "experience not found"})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	_, err := c.FetchMetadata(context.Background(), model.BuildRequest{
		ExperienceName: "@acme/gone",
		Platform:       "ios",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMetadataFetch))
	assert.Contains(t, err.Error(), "experience not found")
}

func TestEnsureReleaseExists(t *testing.T) {
	var captured releasesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/releases/ensure", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, releasesResponse{PublishedIDs: []string{"pub-1", "pub-2"}})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	ids, err := c.EnsureReleaseExists(context.Background(), "@acme/app", "ios")
	require.NoError(t, err)
	assert.Equal(t, []string{"pub-1", "pub-2"}, ids)
	assert.Equal(t, "@acme/app", captured.ExperienceName)
	assert.Equal(t, "ios", captured.Platform)
}

func TestEnsureReleaseExists_EmptyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, releasesResponse{})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	_, err := c.EnsureReleaseExists(context.Background(), "@acme/app", "ios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no published release")
}
