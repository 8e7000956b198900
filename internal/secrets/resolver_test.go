package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/portal"
	pkgsecrets "github.com/buildharbor/signing-adapter/pkg/secrets"
)

type fakeProvider struct {
	secrets map[string]map[string]string
	names   []string
	calls   int
}

func (f *fakeProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	f.calls++
	s, ok := f.secrets[key]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return s, nil
}

func (f *fakeProvider) ListSecrets(_ context.Context, prefix string) ([]string, error) {
	return f.names, nil
}

func newPortalResolver(p *fakeProvider) *AWSResolver[portal.Account] {
	cache := pkgsecrets.NewCache[portal.Account](time.Minute)
	return NewAWSResolver(zap.NewNop(), "prod", "portal", p, cache)
}

func TestResolve_PortalAccount(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"prod/client-1/portal": {
			"username": "ci@acme.dev",
			"password": "pw",
			"team_id":  "team-1",
		},
	}}
	r := newPortalResolver(p)

	account, err := r.Resolve(context.Background(), "client-1", ParsePortalAccount)
	require.NoError(t, err)
	assert.Equal(t, "ci@acme.dev", account.Username)
	assert.Equal(t, "team-1", account.TeamID)
}

func TestResolve_CachesSecondLookup(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"prod/client-1/portal": {
			"username": "u", "password": "p", "team_id": "t",
		},
	}}
	r := newPortalResolver(p)

	_, err := r.Resolve(context.Background(), "client-1", ParsePortalAccount)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "client-1", ParsePortalAccount)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls, "second resolve must hit the cache")
}

func TestResolve_MissingSecret(t *testing.T) {
	r := newPortalResolver(&fakeProvider{})
	_, err := r.Resolve(context.Background(), "client-x", ParsePortalAccount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client-x")
}

func TestParsePortalAccount_Validation(t *testing.T) {
	_, err := ParsePortalAccount(map[string]string{"username": "u", "password": "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team_id")

	_, err = ParsePortalAccount(map[string]string{"team_id": "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username or password")
}

func TestDiscoverClients_FiltersByServiceSuffix(t *testing.T) {
	p := &fakeProvider{names: []string{
		"prod/client-1/portal",
		"prod/client-2/portal",
		"prod/client-3/otherservice",
		"prod/nested/client/portal",
	}}
	r := newPortalResolver(p)

	clients, err := r.DiscoverClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1", "client-2"}, clients)
}
