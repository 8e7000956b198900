package credential

import "github.com/buildharbor/signing-adapter/pkg/model"

// ComputeClear derives the set of credential kinds to clear from the request
// options. ClearCredentials forces every kind regardless of the individual
// flags (a kind is cleared if ClearCredentials OR its own flag is set).
//
// Returns nil when no flag selects any kind. The nil/non-nil distinction is
// load-bearing: a nil result means clearing was never requested, so the
// revocation decision downstream must not fire.
func ComputeClear(opts model.CredentialOptions) KindSet {
	flags := map[Kind]bool{
		DistributionCert:    opts.ClearCredentials || opts.ClearDistCert,
		PushKey:             opts.ClearCredentials || opts.ClearPushKey,
		PushCert:            opts.ClearCredentials || opts.ClearPushCert,
		ProvisioningProfile: opts.ClearCredentials || opts.ClearProvisioningProfile,
	}

	var set KindSet
	for _, k := range AllKinds {
		if flags[k] {
			if set == nil {
				set = NewKindSet()
			}
			set.Add(k)
		}
	}
	return set
}
