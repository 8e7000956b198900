package credential

// Kind identifies one of the signing credential kinds managed for an iOS build.
type Kind string

const (
	DistributionCert    Kind = "distributionCert"
	PushKey             Kind = "pushKey"
	PushCert            Kind = "pushCert" // deprecated predecessor of PushKey, kept for back-compat
	ProvisioningProfile Kind = "provisioningProfile"
)

// AllKinds lists every credential kind in canonical order.
var AllKinds = []Kind{DistributionCert, PushKey, PushCert, ProvisioningProfile}

// IsValid reports whether k names a known credential kind.
func (k Kind) IsValid() bool {
	switch k {
	case DistributionCert, PushKey, PushCert, ProvisioningProfile:
		return true
	}
	return false
}

// KindSet is a set of credential kinds. A nil KindSet carries meaning distinct
// from an empty one: nil signals "not requested at all" (e.g. no clearing was
// asked for), which downstream decisions such as revocation depend on.
type KindSet map[Kind]struct{}

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether k is in the set. Safe on a nil set.
func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Add inserts k into the set.
func (s KindSet) Add(k Kind) {
	s[k] = struct{}{}
}

// Len returns the number of kinds in the set. Safe on a nil set.
func (s KindSet) Len() int { return len(s) }

// Kinds returns the members in canonical order, for deterministic wire
// payloads and log lines.
func (s KindSet) Kinds() []Kind {
	out := make([]Kind, 0, len(s))
	for _, k := range AllKinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Strings returns the members in canonical order as plain strings.
func (s KindSet) Strings() []string {
	kinds := s.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// Set maps each existing credential kind to its opaque value or identifier.
// Sets are never mutated in place: every transition builds a new one.
type Set map[Kind]string

// Merge returns a new Set containing every entry of base overlaid with every
// entry of over. On key collision the value from over wins.
func Merge(base, over Set) Set {
	out := make(Set, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Kinds returns the kinds present in the set, in canonical order.
func (s Set) Kinds() []Kind {
	out := make([]Kind, 0, len(s))
	for _, k := range AllKinds {
		if _, ok := s[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
