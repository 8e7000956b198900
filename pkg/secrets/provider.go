package secrets

import "context"

// Provider is the backend-agnostic secrets interface. The service ships an
// AWS Secrets Manager implementation; anything that can return a flat
// key-value secret and enumerate names by prefix can stand in for it.
type Provider interface {
	// GetSecret retrieves one secret by name and returns its key-value body.
	GetSecret(ctx context.Context, key string) (map[string]string, error)

	// ListSecrets returns the names of all secrets under the given prefix.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}
