package scheduler

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

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/jobs/status", r.URL.Path)
		assert.Equal(t, "client-1", r.URL.Query().Get("clientId"))
		assert.Equal(t, "ios", r.URL.Query().Get("platform"))
		assert.Equal(t, "52.0.0", r.URL.Query().Get("sdkVersion"))
		writeJSON(w, JobStatus{InProgress: true, JobID: "job-5"})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	status, err := c.Status(context.Background(), "client-1", "@acme/app", "ios", "52.0.0")
	require.NoError(t, err)
	assert.True(t, status.InProgress)
	assert.Equal(t, "job-5", status.JobID)
}

func TestClient_Schedule(t *testing.T) {
	var captured ScheduleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/jobs", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, scheduleResponse{JobID: "job-9"})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	jobID, err := c.Schedule(context.Background(), ScheduleRequest{
		ClientID:       "client-1",
		ExperienceName: "@acme/app",
		Platform:       "ios",
		SDKVersion:     "52.0.0",
		PublishedIDs:   []string{"pub-1"},
		ExtraArgs:      map[string]string{"bundleIdentifier": "com.acme.app"},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-9", jobID)
	assert.Equal(t, []string{"pub-1"}, captured.PublishedIDs)
	assert.Equal(t, "com.acme.app", captured.ExtraArgs["bundleIdentifier"])
}

func TestClient_Schedule_EmptyJobIDIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, scheduleResponse{})
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop(), nil, srv.URL)
	_, err := c.Schedule(context.Background(), ScheduleRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job id")
}

type fakeChecker struct {
	status JobStatus
	err    error

	seenSDK string
}

func (f *fakeChecker) Status(_ context.Context, _, _, _ string, sdkVersion string) (JobStatus, error) {
	f.seenSDK = sdkVersion
	return f.status, f.err
}

func TestGuard_PassesWhenIdle(t *testing.T) {
	checker := &fakeChecker{status: JobStatus{InProgress: false}}
	g := NewGuard(zap.NewNop(), checker)
	require.NoError(t, g.EnsureNoConflict(context.Background(), "client-1", "@acme/app", "ios", "52.0.0"))
	assert.Equal(t, "52.0.0", checker.seenSDK, "conflict check is scoped per SDK version")
}

func TestGuard_RejectsInFlightBuild(t *testing.T) {
	g := NewGuard(zap.NewNop(), &fakeChecker{status: JobStatus{InProgress: true, JobID: "job-5"}})
	err := g.EnsureNoConflict(context.Background(), "client-1", "@acme/app", "ios", "52.0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBuildInProgress))
	assert.Contains(t, err.Error(), "job-5")
}

func TestGuard_PropagatesStatusError(t *testing.T) {
	boom := errors.New("scheduler unreachable")
	g := NewGuard(zap.NewNop(), &fakeChecker{err: boom})
	err := g.EnsureNoConflict(context.Background(), "client-1", "@acme/app", "ios", "52.0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}
