package lifecycle

import "github.com/johanix/keyenforcer/internal/model"

// safe reports whether it is safe for ks (a KeyState bound to key kd) to
// leave OMNIPRESENT, per spec.md §4.1's chain-of-trust safety predicate.
// Two conditions must both hold:
//
//   - every outstanding KeyDependency recorded against (kd, ks.Type) has
//     its successor already OMNIPRESENT, i.e. the successor has actually
//     taken over the predecessor's function;
//   - the zone retains at least one DS -> DNSKEY -> RRSIGDNSKEY -> RRSIG
//     chain of trust with (kd, ks.Type) itself no longer counted as
//     relied upon.
//
// The dependency check catches a specific predecessor retiring ahead of
// its recorded successor; the chain check catches the case of no
// successor ever having been recorded (e.g. the zone's last surviving
// entry point being retired outright).
func safe(in Input, kd model.KeyData, ks model.KeyState, idx map[stateKey]model.KeyState) bool {
	if ks.State != model.StateOmnipresent {
		return true // the predicate only gates departure from OMNIPRESENT
	}
	for _, dep := range in.Deps {
		if dep.FromKeyDataID != kd.ID || dep.Type != ks.Type {
			continue
		}
		succ, ok := idx[stateKey{dep.ToKeyDataID, dep.Type}]
		if !ok || succ.State != model.StateOmnipresent {
			return false
		}
	}
	return chainSurvivesWithout(in.KeyData, idx, stateKey{kd.ID, ks.Type})
}

type stateKey struct {
	KeyDataID model.ID
	Type      model.RecordType
}

func indexStates(states []model.KeyState) map[stateKey]model.KeyState {
	idx := make(map[stateKey]model.KeyState, len(states))
	for _, s := range states {
		idx[stateKey{s.KeyDataID, s.Type}] = s
	}
	return idx
}

// chainSurvivesWithout reports whether the zone still has at least one
// DS -> DNSKEY -> RRSIGDNSKEY -> RRSIG chain of trust (spec.md §4.1) if the
// KeyState named by without were no longer relied upon: a secure entry
// point (some KSK/CSK with DS, DNSKEY and RRSIGDNSKEY all visible) and a
// signer (some ZSK/CSK with DNSKEY and RRSIG both visible) must both
// exist. Every other KeyState counts as visible in its current
// {RUMOURED, OMNIPRESENT, UNRETENTIVE} state, per the predicate's literal
// "possibly visible" rule.
func chainSurvivesWithout(allKeyData []model.KeyData, idx map[stateKey]model.KeyState, without stateKey) bool {
	hasSecureEntry, hasSigner := false, false
	for _, kd := range allKeyData {
		if kd.Role == model.RoleKSK || kd.Role == model.RoleCSK {
			if visibleExcept(idx, without, kd.ID, model.RecordDS) &&
				visibleExcept(idx, without, kd.ID, model.RecordDNSKEY) &&
				visibleExcept(idx, without, kd.ID, model.RecordRRSIGDNSKEY) {
				hasSecureEntry = true
			}
		}
		if kd.Role == model.RoleZSK || kd.Role == model.RoleCSK {
			if visibleExcept(idx, without, kd.ID, model.RecordDNSKEY) &&
				visibleExcept(idx, without, kd.ID, model.RecordRRSIG) {
				hasSigner = true
			}
		}
	}
	return hasSecureEntry && hasSigner
}

func visibleExcept(idx map[stateKey]model.KeyState, without stateKey, id model.ID, rt model.RecordType) bool {
	key := stateKey{id, rt}
	if key == without {
		return false
	}
	ks, ok := idx[key]
	if !ok {
		return false
	}
	switch ks.State {
	case model.StateRumoured, model.StateOmnipresent, model.StateUnretentive:
		return true
	default:
		return false
	}
}
