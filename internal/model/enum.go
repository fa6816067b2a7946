// Package model defines the persistent entities of the key and signing
// policy data model (spec.md §3): Policy, PolicyKey, HsmKey, Zone, KeyData,
// KeyState and KeyDependency, along with the bijective string<->enum
// mapping that the store layer is required to preserve verbatim (spec.md
// §6).
package model

import "fmt"

// Role identifies the function a key slot or key serves.
type Role string

const (
	RoleKSK Role = "KSK"
	RoleZSK Role = "ZSK"
	RoleCSK Role = "CSK"
)

func (r Role) Valid() bool {
	switch r {
	case RoleKSK, RoleZSK, RoleCSK:
		return true
	}
	return false
}

// RecordType is one of the four record kinds a KeyState tracks visibility
// for. The textual tokens are fixed by spec.md §6 and must round-trip
// through storage unchanged.
type RecordType string

const (
	RecordDS          RecordType = "DS"
	RecordDNSKEY      RecordType = "DNSKEY"
	RecordRRSIGDNSKEY RecordType = "RRSIGDNSKEY"
	RecordRRSIG       RecordType = "RRSIG"
)

var allRecordTypes = [...]RecordType{RecordDS, RecordDNSKEY, RecordRRSIGDNSKEY, RecordRRSIG}

// RecordTypesForRole reports which record types are applicable (not NA)
// for a key of the given role, per spec.md §3's invariant:
// "DS/DNSKEY/RRSIG-of-DNSKEY for KSK/CSK; DNSKEY/RRSIG for ZSK/CSK".
func RecordTypesForRole(r Role) []RecordType {
	switch r {
	case RoleKSK:
		return []RecordType{RecordDS, RecordDNSKEY, RecordRRSIGDNSKEY}
	case RoleZSK:
		return []RecordType{RecordDNSKEY, RecordRRSIG}
	case RoleCSK:
		return []RecordType{RecordDS, RecordDNSKEY, RecordRRSIGDNSKEY, RecordRRSIG}
	default:
		return nil
	}
}

// AppliesToRole reports whether a record type is active (non-NA) for a role.
func (rt RecordType) AppliesToRole(r Role) bool {
	for _, t := range RecordTypesForRole(r) {
		if t == rt {
			return true
		}
	}
	return false
}

// RecordTypePriority implements the deterministic ordering of spec.md §4.1
// step 2: "DS < DNSKEY < RRSIG-of-DNSKEY < RRSIG".
func RecordTypePriority(rt RecordType) int {
	switch rt {
	case RecordDS:
		return 0
	case RecordDNSKEY:
		return 1
	case RecordRRSIGDNSKEY:
		return 2
	case RecordRRSIG:
		return 3
	default:
		return 99
	}
}

// KeyStateValue is the lifecycle state of one KeyState row.
type KeyStateValue string

const (
	StateHidden      KeyStateValue = "HIDDEN"
	StateRumoured    KeyStateValue = "RUMOURED"
	StateOmnipresent KeyStateValue = "OMNIPRESENT"
	StateUnretentive KeyStateValue = "UNRETENTIVE"
	StateNA          KeyStateValue = "NA"
)

// legalNext enumerates the only legal forward transitions of spec.md §3:
// "HIDDEN -> RUMOURED -> OMNIPRESENT -> UNRETENTIVE -> HIDDEN; NA is
// terminal". NA never transitions.
var legalNext = map[KeyStateValue]KeyStateValue{
	StateHidden:      StateRumoured,
	StateRumoured:    StateOmnipresent,
	StateOmnipresent: StateUnretentive,
	StateUnretentive: StateHidden,
}

// NextState returns the single legal successor of s, or "" if s has none
// (NA, or an unrecognized value).
func (s KeyStateValue) NextState() KeyStateValue {
	return legalNext[s]
}

// CanTransitionTo reports whether s -> next is a legal single-step
// transition under the state machine of spec.md §3.
func (s KeyStateValue) CanTransitionTo(next KeyStateValue) bool {
	return s != StateNA && legalNext[s] == next
}

// DSAtParent is KeyData's view of the parent-zone DS record. spec.md §6
// fixes six canonical on-disk tokens; see DESIGN.md Open Question #4 for why
// the seventh value spec.md §3 mentions (UNRETENTIVE) is not a distinct
// stored token here.
type DSAtParent string

const (
	DSUnsubmitted DSAtParent = "UNSUBMITTED"
	DSSubmit      DSAtParent = "SUBMIT"
	DSSubmitted   DSAtParent = "SUBMITTED"
	DSSeen        DSAtParent = "SEEN"
	DSRetract     DSAtParent = "RETRACT"
	DSRetracted   DSAtParent = "RETRACTED"
)

// DenialType selects the zone's negative-answer mechanism.
type DenialType string

const (
	DenialNSEC  DenialType = "NSEC"
	DenialNSEC3 DenialType = "NSEC3"
)

// SerialStyle controls how a zone's SOA serial is advanced.
type SerialStyle string

const (
	SerialCounter    SerialStyle = "counter"
	SerialDateCounter SerialStyle = "datecounter"
	SerialUnixTime   SerialStyle = "unixtime"
	SerialKeep       SerialStyle = "keep"
)

// HsmKeyState is the lifecycle state of an HsmKey row (spec.md §3).
type HsmKeyState string

const (
	HsmGenerate HsmKeyState = "GENERATE"
	HsmPublish  HsmKeyState = "PUBLISH"
	HsmReady    HsmKeyState = "READY"
	HsmActive   HsmKeyState = "ACTIVE"
	HsmRetire   HsmKeyState = "RETIRE"
	HsmDead     HsmKeyState = "DEAD"
	HsmUnused   HsmKeyState = "UNUSED"
)

// IsTerminal reports whether a state counts as "terminal" for the purposes
// of the HsmKey inventory invariant (spec.md §3): DEAD and UNUSED keys
// don't count toward a slot's required supply.
func (s HsmKeyState) IsTerminal() bool {
	return s == HsmDead || s == HsmUnused
}

// Minimize is a bitmask over record types, spec.md §3's "subset of {RRSIG,
// DNSKEY, DS, DS∧RRSIG}".
type Minimize uint8

const (
	MinimizeNone        Minimize = 0
	MinimizeRRSIG       Minimize = 1 << 0
	MinimizeDNSKEY      Minimize = 1 << 1
	MinimizeDS          Minimize = 1 << 2
	MinimizeDSAndRRSIG  Minimize = MinimizeDS | MinimizeRRSIG
)

// AppliesTo derives the per-record-type minimize flag a KeyState should
// carry, given the KeyData's minimize bitmask and the record type in
// question (spec.md §3 KeyState.minimize: "derived from the KeyData
// minimize bitmask and the record type").
func (m Minimize) AppliesTo(rt RecordType) bool {
	switch rt {
	case RecordDS:
		return m&MinimizeDS != 0
	case RecordDNSKEY:
		return m&MinimizeDNSKEY != 0
	case RecordRRSIG, RecordRRSIGDNSKEY:
		return m&MinimizeRRSIG != 0
	default:
		return false
	}
}

// EnumError reports an unrecognized value read back from storage, a
// Configuration-class error per spec.md §7 ("unknown enum value on read").
type EnumError struct {
	Field string
	Value string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("model: unknown value %q for enum field %q", e.Value, e.Field)
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", &EnumError{Field: "role", Value: s}
	}
	return r, nil
}

func ParseRecordType(s string) (RecordType, error) {
	for _, t := range allRecordTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &EnumError{Field: "keyState.type", Value: s}
}

func ParseKeyStateValue(s string) (KeyStateValue, error) {
	switch KeyStateValue(s) {
	case StateHidden, StateRumoured, StateOmnipresent, StateUnretentive, StateNA:
		return KeyStateValue(s), nil
	}
	return "", &EnumError{Field: "keyState.state", Value: s}
}

func ParseDSAtParent(s string) (DSAtParent, error) {
	switch DSAtParent(s) {
	case DSUnsubmitted, DSSubmit, DSSubmitted, DSSeen, DSRetract, DSRetracted:
		return DSAtParent(s), nil
	}
	return "", &EnumError{Field: "keyData.dsAtParent", Value: s}
}

func ParseHsmKeyState(s string) (HsmKeyState, error) {
	switch HsmKeyState(s) {
	case HsmGenerate, HsmPublish, HsmReady, HsmActive, HsmRetire, HsmDead, HsmUnused:
		return HsmKeyState(s), nil
	}
	return "", &EnumError{Field: "hsmKey.state", Value: s}
}
