package model

import "time"

// ID is the opaque, store-assigned handle every entity carries. It is never
// constructed by core logic — only the store layer (internal/store) mints
// IDs on Create.
type ID string

// Revision is the optimistic-concurrency counter of spec.md §3: every
// update must present the row's current revision, and a successful update
// increments it by exactly one.
type Revision int64

// Entity is embedded by every persisted row for the id/rev bookkeeping
// common to all of them.
type Entity struct {
	ID  ID
	Rev Revision
}

// Policy is spec.md §3's named, per-zone cryptographic policy.
type Policy struct {
	Entity

	Name string

	// Signature timing, seconds.
	ResignInterval   uint32
	RefreshInterval  uint32
	Jitter           uint32
	InceptionOffset  uint32
	ValidityDefault  uint32
	ValidityDenial   uint32
	ValidityKeyset   *uint32 // nil => inherit ValidityDefault, DESIGN.md Open Question #1

	KeyTTL        uint32
	PublishSafety uint32
	RetireSafety  uint32
	PurgeAfter    uint32

	ZonePropagationDelay uint32
	SOATTL               uint32
	SOAMinimum           uint32
	SerialStyle          SerialStyle

	ParentPropagationDelay uint32
	ParentDSTTL            uint32
	ParentSOATTL           uint32
	ParentSOAMinimum       uint32
	RegistrationDelay      uint32

	Denial DenialPolicy

	KeysShared  bool
	Passthrough bool
}

// SignaturesValidityKeyset resolves the Open Question #1 fallback: an unset
// ValidityKeyset inherits ValidityDefault.
func (p *Policy) SignaturesValidityKeyset() uint32 {
	if p.ValidityKeyset != nil {
		return *p.ValidityKeyset
	}
	return p.ValidityDefault
}

// DenialPolicy captures NSEC/NSEC3 parameters (spec.md §3).
type DenialPolicy struct {
	Type             DenialType
	OptOut           bool
	Iterations       uint16
	SaltLength       uint8
	Algorithm        uint8
	ResaltInterval   uint32
	SaltLastChange   time.Time
	Salt             string
}

// NeedsResalt reports whether the current salt has aged past the policy's
// resalt interval (spec.md §4.2 step 3; NSEC3 only).
func (d *DenialPolicy) NeedsResalt(now time.Time) bool {
	if d.Type != DenialNSEC3 {
		return false
	}
	return now.Sub(d.SaltLastChange) >= time.Duration(d.ResaltInterval)*time.Second
}

// PolicyKey is one per-policy key-slot specification (spec.md §3).
type PolicyKey struct {
	Entity

	PolicyID ID

	Role      Role
	Algorithm uint8
	Bits      int

	Lifetime uint32 // seconds; 0 means "no automatic successor triggering"

	Repository string

	Standby         int
	ManualRollover  bool
	RFC5011         bool
	Minimize        Minimize
}

// Multiplicity is the number of live keys this slot wants at once
// (spec.md §4.3: "1 + standby").
func (pk *PolicyKey) Multiplicity() int {
	return 1 + pk.Standby
}

// HsmKey is an individual key-material reference (spec.md §3). The key
// itself lives in the HSM; this row is the only persistent handle the core
// holds for it.
type HsmKey struct {
	Entity

	Algorithm  uint8
	Bits       int
	Role       Role
	Repository string

	// HSMUUID is the opaque HSM-side handle (spec.md §3 "Ownership").
	HSMUUID string

	Inception time.Time
	State     HsmKeyState
	Backup    bool
	KeyType   string // e.g. "RSA"

	// PolicyID is the policy this key is allocated to, or the policy id of
	// the shared pool when that policy's KeysShared flag is set.
	PolicyID ID
}

// Slot identifies an HsmKey inventory slot: (policy, role, algorithm, bits,
// repository), per the inventory invariant of spec.md §3.
type Slot struct {
	PolicyID   ID
	Role       Role
	Algorithm  uint8
	Bits       int
	Repository string
}

func (k *HsmKey) Slot() Slot {
	return Slot{
		PolicyID:   k.PolicyID,
		Role:       k.Role,
		Algorithm:  k.Algorithm,
		Bits:       k.Bits,
		Repository: k.Repository,
	}
}

// Zone is a single DNSSEC-managed zone (spec.md §3).
type Zone struct {
	Entity

	Name     string
	PolicyID ID

	SignconfPath         string
	SignconfNeedsWriting bool

	NextChange time.Time

	DNSKEYTTLEnd time.Time
	DSTTLEnd     time.Time
	RRSIGTTLEnd  time.Time

	RollKSKNow bool
	RollZSKNow bool
	RollCSKNow bool

	InputAdapterType  string
	InputAdapterURI   string
	OutputAdapterType string
	OutputAdapterURI  string

	NextKSKRoll time.Time
	NextZSKRoll time.Time
	NextCSKRoll time.Time

	// Status is an operator-visible field, not persisted by the original
	// schema but derivable on read: "ok" | "waiting-for-operator" | "blocked".
	Status string
}

// KeyData binds a Zone to an HsmKey (spec.md §3).
type KeyData struct {
	Entity

	ZoneID  ID
	HsmKeyID ID

	Role        Role
	Introducing bool
	ShouldRevoke bool
	Standby     bool
	ActiveKSK   bool
	ActiveZSK   bool
	Keytag      uint16
	Minimize    Minimize

	DSAtParent DSAtParent

	// Inception mirrors the bound HsmKey's inception time, cached here so
	// policy evaluation (spec.md §4.3: "now >= inception + lifetime") does
	// not need a join for the common case.
	Inception time.Time
}

// KeyState is one (KeyData, RecordType) row (spec.md §3).
type KeyState struct {
	Entity

	KeyDataID  ID
	Type       RecordType
	State      KeyStateValue
	LastChange time.Time
	DesiredTTL uint32
	Minimize   bool
}

// EarliestExit returns the earliest time this KeyState may legally leave
// RUMOURED or UNRETENTIVE, per spec.md §3's invariant and §4.1's timing
// gates. gate is the record-type-specific gate length already resolved by
// the caller (propagation-delay+publish-safety or propagation-delay+
// retire-safety, or the parent-side equivalents for DS).
func (ks *KeyState) EarliestExit(gate time.Duration) time.Time {
	return ks.LastChange.Add(time.Duration(ks.DesiredTTL)*time.Second).Add(gate)
}

// KeyDependency is a directed edge recording that a predecessor's state
// must remain until a successor supersedes it (spec.md §3).
type KeyDependency struct {
	Entity

	ZoneID ID

	FromKeyDataID ID
	ToKeyDataID   ID
	Type          RecordType
}
