package credstore

import (
	"context"

	"github.com/buildharbor/signing-adapter/internal/credential"
)

// Target identifies whose stored credentials an operation acts on.
type Target struct {
	ClientID       string
	ExperienceName string
}

// Store is the persisted-credential façade the lifecycle runs against. All
// reads return fresh state; callers never mutate what they are handed back.
//
// Clear returns the set of kinds that actually existed and were removed,
// which may be smaller than what was asked for. DetermineMissing returns nil
// when the stored set already satisfies every requirement; a nil result is
// the signal that the whole credential phase is done.
type Store interface {
	Fetch(ctx context.Context, target Target) (credential.Set, error)
	Clear(ctx context.Context, target Target, kinds credential.KindSet) (credential.KindSet, error)
	DetermineMissing(ctx context.Context, target Target) ([]credential.Kind, error)
	DistCertSerialNumber(ctx context.Context, target Target) (string, error)
	Update(ctx context.Context, target Target, creds credential.Set, metadata map[string]string, userCredentialIDs []string) error
}
