package portal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/pkg/model"
)

// fakeAuthenticator counts logins and can be made slow to force overlap.
type fakeAuthenticator struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, account Account) (AuthData, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return AuthData{}, f.err
	}
	return AuthData{SessionToken: "tok-" + account.Username, TeamID: "team-1"}, nil
}

func testAccount() Account {
	return Account{Username: "ci@acme.dev", Password: "pw", TeamID: "team-1"}
}

// ─── Memoization: one login, reference-equal sessions ─────────────────────────

func TestSessionProvider_AuthenticatesOnce(t *testing.T) {
	auth := &fakeAuthenticator{}
	p := NewSessionProvider(auth, testAccount(), zap.NewNop())

	s1, err := p.Session(context.Background(), "com.acme.app", "ci@acme.dev")
	require.NoError(t, err)
	s2, err := p.Session(context.Background(), "com.acme.app", "ci@acme.dev")
	require.NoError(t, err)

	assert.Same(t, s1, s2, "repeat calls must return the same session instance")
	assert.EqualValues(t, 1, auth.calls.Load(), "exactly one login per run")
	assert.Equal(t, "tok-ci@acme.dev", s1.AuthData.SessionToken)
}

// ─── Identity merge on the cached session ─────────────────────────────────────

func TestSessionProvider_MergesIdentityOntoCachedSession(t *testing.T) {
	auth := &fakeAuthenticator{}
	p := NewSessionProvider(auth, testAccount(), zap.NewNop())

	s1, err := p.Session(context.Background(), "com.acme.app", "ci@acme.dev")
	require.NoError(t, err)
	assert.Equal(t, "com.acme.app", s1.BundleIdentifier)

	s2, err := p.Session(context.Background(), "com.acme.other", "ci@acme.dev")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, "com.acme.other", s2.BundleIdentifier, "later identity wins on the shared session")
	assert.EqualValues(t, 1, auth.calls.Load())
}

// ─── Single-flight under concurrent first use ─────────────────────────────────

func TestSessionProvider_SingleFlightUnderConcurrency(t *testing.T) {
	auth := &fakeAuthenticator{delay: 30 * time.Millisecond}
	p := NewSessionProvider(auth, testAccount(), zap.NewNop())

	const n = 8
	sessions := make([]*Session, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = p.Session(context.Background(), "com.acme.app", "ci@acme.dev")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
	assert.EqualValues(t, 1, auth.calls.Load(), "overlapping first requests must share one login")
}

// ─── Login failure is fatal and not cached ────────────────────────────────────

func TestSessionProvider_AuthFailureNotCached(t *testing.T) {
	auth := &fakeAuthenticator{err: model.ErrAuthentication}
	p := NewSessionProvider(auth, testAccount(), zap.NewNop())

	_, err := p.Session(context.Background(), "com.acme.app", "ci@acme.dev")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuthentication))

	// The failed attempt must not leave a usable session behind.
	auth.err = nil
	s, err := p.Session(context.Background(), "com.acme.app", "ci@acme.dev")
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.EqualValues(t, 2, auth.calls.Load())
}
