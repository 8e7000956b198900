package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/credential"
	"github.com/buildharbor/signing-adapter/internal/credstore"
	"github.com/buildharbor/signing-adapter/internal/portal"
	"github.com/buildharbor/signing-adapter/internal/prompt"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

// Portal is the slice of signing-authority operations the lifecycle needs.
// *portal.Client satisfies it.
type Portal interface {
	EnsureAppExists(ctx context.Context, session *portal.Session, experienceName, bundleID string) error
	Revoke(ctx context.Context, session *portal.Session, kinds credential.KindSet) error
	Generate(ctx context.Context, session *portal.Session, kinds []credential.Kind, metadata map[string]string) (credential.Set, error)
}

// Sessions hands out the run's memoized portal session. *portal.SessionProvider
// satisfies it; a fresh provider is built per run so sessions never leak
// across runs.
type Sessions interface {
	Session(ctx context.Context, bundleID, username string) (*portal.Session, error)
}

// Orchestrator drives the credential phase of a signing run: clearing,
// revocation, requirement analysis, prompting, generation and persistence.
// Every step is fail-fast; an error aborts the run immediately and earlier
// remote effects (revocations, registrations) are deliberately left standing.
type Orchestrator struct {
	logger *zap.Logger
	store  credstore.Store
	portal Portal
}

// New creates a lifecycle orchestrator over the given store and portal.
func New(logger *zap.Logger, store credstore.Store, p Portal) *Orchestrator {
	return &Orchestrator{
		logger: logger,
		store:  store,
		portal: p,
	}
}

// Run executes the credential lifecycle for one target and returns the
// credential set the build will sign with.
//
// Portal authentication is lazy: no login happens unless a step actually
// needs the portal, and the provider memoizes it so at most one login is
// performed per run regardless of how many steps follow.
func (o *Orchestrator) Run(
	ctx context.Context,
	target credstore.Target,
	meta model.ProjectMetadata,
	opts model.CredentialOptions,
	sessions Sessions,
	prompter prompt.Prompter,
) (credential.Set, error) {
	log := o.logger.With(
		zap.String("client_id", target.ClientID),
		zap.String("experience", target.ExperienceName))

	// Clearing. A nil set means no clear flag was set at all, which skips the
	// store call entirely; an explicit clear of kinds that turn out not to be
	// stored still counts as "requested" for the revoke decision below.
	toClear := credential.ComputeClear(opts)
	if toClear != nil {
		removed, err := o.store.Clear(ctx, target, toClear)
		if err != nil {
			return nil, err
		}
		log.Info("lifecycle.cleared",
			zap.Strings("requested", toClear.Strings()),
			zap.Strings("removed", removed.Strings()))

		// Revocation fires only when something was actually removed, but it
		// covers every requested kind so the portal can invalidate remote
		// records even where the local copy was already gone.
		if removed.Len() >= 1 && opts.RevokeCredentials {
			session, err := sessions.Session(ctx, meta.BundleIdentifier, meta.Username)
			if err != nil {
				return nil, err
			}
			if err := o.portal.Revoke(ctx, session, toClear); err != nil {
				return nil, err
			}
		}
	}

	existing, err := o.store.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	missing, err := o.store.DetermineMissing(ctx, target)
	if err != nil {
		return nil, err
	}
	if missing == nil {
		log.Info("lifecycle.satisfied", zap.Int("stored", len(existing)))
		return existing, nil
	}
	log.Info("lifecycle.missing", zap.Strings("kinds", kindNames(missing)))

	// Generation metadata. When a provisioning profile will be produced
	// against an already-stored distribution certificate, the profile must be
	// bound to that certificate's serial number.
	genMeta := make(map[string]string)
	if containsKind(missing, credential.ProvisioningProfile) {
		if _, ok := existing[credential.DistributionCert]; ok {
			serial, err := o.store.DistCertSerialNumber(ctx, target)
			if err != nil {
				return nil, err
			}
			if serial != "" {
				genMeta["distCertSerialNumber"] = serial
			}
		}
	}

	session, err := sessions.Session(ctx, meta.BundleIdentifier, meta.Username)
	if err != nil {
		return nil, err
	}

	if err := o.portal.EnsureAppExists(ctx, session, meta.ExperienceName, meta.BundleIdentifier); err != nil {
		return nil, err
	}

	plan, err := prompter.Plan(ctx, missing)
	if err != nil {
		return nil, err
	}
	// Prompt-gathered metadata wins over what was derived above.
	for k, v := range plan.Metadata {
		genMeta[k] = v
	}

	var generated credential.Set
	if len(plan.Generate) > 0 {
		generated, err = o.portal.Generate(ctx, session, plan.Generate, genMeta)
		if err != nil {
			return nil, err
		}
	}

	provided := make(credential.Set, len(plan.Provided))
	var userCredentialIDs []string
	for _, kind := range credential.AllKinds {
		p, ok := plan.Provided[kind]
		if !ok {
			continue
		}
		provided[kind] = p.Value
		if p.CredentialID != "" {
			userCredentialIDs = append(userCredentialIDs, p.CredentialID)
		}
	}

	// Only what this run produced gets persisted: stored entries are already
	// in the backend, and re-sending them would turn the userCredentialIds
	// bind into a duplicate. A generated value wins a collision with a
	// provided one so the build never signs with a credential the portal
	// just superseded.
	updated := credential.Merge(provided, generated)

	if err := o.store.Update(ctx, target, updated, genMeta, userCredentialIDs); err != nil {
		return nil, err
	}

	merged := credential.Merge(existing, updated)

	log.Info("lifecycle.completed",
		zap.Int("stored", len(merged)),
		zap.Int("generated", len(generated)),
		zap.Int("provided", len(provided)))
	return merged, nil
}

func containsKind(kinds []credential.Kind, want credential.Kind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func kindNames(kinds []credential.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
