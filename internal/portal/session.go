package portal

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Authenticator performs the portal login. Satisfied by *Client.
type Authenticator interface {
	Authenticate(ctx context.Context, account Account) (AuthData, error)
}

// SessionProvider lazily acquires and memoizes one authenticated portal
// session. It is created fresh for each signing run and owns the session for
// that run's lifetime.
//
// The contract is at most one authentication side effect per run even when
// several steps request the session before the first login resolves, so the
// initial acquisition goes through a single-flight group instead of a bare
// presence check.
type SessionProvider struct {
	logger  *zap.Logger
	auth    Authenticator
	account Account

	sf singleflight.Group
	mu sync.Mutex
	// session is non-nil once a login succeeded. Failed logins are not cached.
	session *Session
}

// NewSessionProvider creates a provider bound to one team's portal account.
func NewSessionProvider(auth Authenticator, account Account, logger *zap.Logger) *SessionProvider {
	return &SessionProvider{
		logger:  logger,
		auth:    auth,
		account: account,
	}
}

// Session returns the run's portal session, authenticating on first use. Every
// call returns the same *Session instance with the given bundle identifier and
// username merged onto it.
func (p *SessionProvider) Session(ctx context.Context, bundleID, username string) (*Session, error) {
	p.mu.Lock()
	if p.session != nil {
		s := p.session
		s.BundleIdentifier = bundleID
		s.Username = username
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	v, err, shared := p.sf.Do("portal-auth", func() (any, error) {
		account := p.account
		if username != "" {
			account.Username = username
		}

		data, err := p.auth.Authenticate(ctx, account)
		if err != nil {
			return nil, err
		}

		s := &Session{AuthData: data}
		p.mu.Lock()
		p.session = s
		p.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		p.logger.Debug("portal.session_shared")
	}

	s := v.(*Session)
	p.mu.Lock()
	s.BundleIdentifier = bundleID
	s.Username = username
	p.mu.Unlock()
	return s, nil
}
