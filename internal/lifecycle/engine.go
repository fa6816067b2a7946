// Package lifecycle implements the per-(key, record-type) state machine of
// spec.md §3/§4.1: HIDDEN -> RUMOURED -> OMNIPRESENT -> UNRETENTIVE ->
// HIDDEN, gated by propagation-delay/publish-safety/retire-safety timing
// and a chain-of-trust safety predicate, run to a deterministic fixed
// point every tick.
package lifecycle

import (
	"sort"
	"time"

	"github.com/johanix/keyenforcer/internal/model"
)

// Input is everything the engine needs for one zone's worth of work in one
// tick. PolicyKeys is indexed by PolicyKeyID via KeyData's implicit link
// (KeyData doesn't carry PolicyKeyID directly; callers resolve it by Role
// for gate selection, matching spec.md §4.1's per-role gate table).
type Input struct {
	Zone       model.Zone
	Policy     model.Policy
	PolicyKeys map[model.ID]model.PolicyKey // by PolicyKey.ID, RFC5011/standby lookups
	KeyData    []model.KeyData
	KeyStates  []model.KeyState
	Deps       []model.KeyDependency
	Now        time.Time
}

// Output is the set of state rows that changed and any dependency edges
// that should be recorded or cleared as a result.
type Output struct {
	Changed     []model.KeyState
	NewDeps     []model.KeyDependency
	RetiredDeps []model.ID // KeyDependency IDs whose From key has reached HIDDEN and can be dropped
}

// rfc5011ForRole's answer is resolved by the caller (internal/zoneupdate) from the
// zone's policy key config and passed in via Input.PolicyKeys; the engine
// looks it up per KeyData.Role since KeyData itself doesn't carry a
// PolicyKeyID reference.
func rfc5011ForRole(in Input, role model.Role) bool {
	for _, pk := range in.PolicyKeys {
		if pk.Role == role {
			return pk.RFC5011
		}
	}
	return false
}

// Step runs the state machine to a fixed point for every (KeyData,
// RecordType) pair in in.KeyStates, applying at most one transition per
// pair per pass and repeating passes until none fire or len(states)+1
// passes have run; a state whose next gate is already open can advance
// more than once in one call.
func Step(in Input) Output {
	states := append([]model.KeyState(nil), in.KeyStates...)
	dataByID := make(map[model.ID]model.KeyData, len(in.KeyData))
	for _, kd := range in.KeyData {
		dataByID[kd.ID] = kd
	}
	existingDeps := make(map[depKey]bool, len(in.Deps))
	for _, d := range in.Deps {
		existingDeps[depKey{d.FromKeyDataID, d.ToKeyDataID, d.Type}] = true
	}

	var out Output
	maxPasses := len(states) + 1
	for pass := 0; pass < maxPasses; pass++ {
		idx := indexStates(states)
		order := orderedIndices(states, dataByID)
		changedThisPass := false

		for _, i := range order {
			ks := states[i]
			kd, ok := dataByID[ks.KeyDataID]
			if !ok || ks.State == model.StateNA {
				continue
			}
			next, fire := nextTransition(in, kd, ks, idx)
			if !fire {
				continue
			}
			prev := ks.State
			ks.State = next
			ks.LastChange = in.Now
			states[i] = ks
			out.Changed = append(out.Changed, ks)
			changedThisPass = true

			switch {
			case prev == model.StateHidden && next == model.StateRumoured:
				out.NewDeps = append(out.NewDeps, predecessorDeps(in, idx, kd, ks, existingDeps)...)
			case prev == model.StateUnretentive && next == model.StateHidden:
				out.RetiredDeps = append(out.RetiredDeps, retiredDepIDs(in, kd, ks)...)
			}
		}
		if !changedThisPass {
			break
		}
	}
	return out
}

type depKey struct {
	From, To model.ID
	Type     model.RecordType
}

// predecessorDeps records a KeyDependency from every other KeyData of the
// same role still actively serving ks.Type (not HIDDEN/NA) to kd, at the
// moment kd starts taking over that role (spec.md §3: "created... at the
// moment a successor starts taking over a predecessor's function").
func predecessorDeps(in Input, idx map[stateKey]model.KeyState, kd model.KeyData, ks model.KeyState, existing map[depKey]bool) []model.KeyDependency {
	var deps []model.KeyDependency
	for _, pred := range in.KeyData {
		if pred.ID == kd.ID || pred.Role != kd.Role {
			continue
		}
		predState, ok := idx[stateKey{pred.ID, ks.Type}]
		if !ok || predState.State == model.StateHidden || predState.State == model.StateNA {
			continue
		}
		key := depKey{pred.ID, kd.ID, ks.Type}
		if existing[key] {
			continue
		}
		existing[key] = true
		deps = append(deps, model.KeyDependency{ZoneID: in.Zone.ID, FromKeyDataID: pred.ID, ToKeyDataID: kd.ID, Type: ks.Type})
	}
	return deps
}

// retiredDepIDs returns the IDs of outstanding KeyDependency rows whose
// From side is (kd, ks.Type), now that it has reached HIDDEN (spec.md §3:
// "deleted when the predecessor's corresponding KeyState reaches HIDDEN").
func retiredDepIDs(in Input, kd model.KeyData, ks model.KeyState) []model.ID {
	var ids []model.ID
	for _, d := range in.Deps {
		if d.FromKeyDataID == kd.ID && d.Type == ks.Type {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// orderedIndices returns state indices sorted by RecordType priority, then
// key introduction time (KeyData.Inception), then keytag, with KeyDataID as
// the final tie-break, the deterministic ordering spec.md §4.1 step 2
// requires.
func orderedIndices(states []model.KeyState, dataByID map[model.ID]model.KeyData) []int {
	order := make([]int, len(states))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := states[order[a]], states[order[b]]
		pa, pb := model.RecordTypePriority(sa.Type), model.RecordTypePriority(sb.Type)
		if pa != pb {
			return pa < pb
		}
		ka, kb := dataByID[sa.KeyDataID], dataByID[sb.KeyDataID]
		if !ka.Inception.Equal(kb.Inception) {
			return ka.Inception.Before(kb.Inception)
		}
		if ka.Keytag != kb.Keytag {
			return ka.Keytag < kb.Keytag
		}
		return sa.KeyDataID < sb.KeyDataID
	})
	return order
}

// nextTransition decides the single candidate next state for ks, or
// fire=false if no transition is currently legal/due.
func nextTransition(in Input, kd model.KeyData, ks model.KeyState, idx map[stateKey]model.KeyState) (model.KeyStateValue, bool) {
	switch ks.State {
	case model.StateHidden:
		if kd.Introducing {
			return model.StateRumoured, true
		}
	case model.StateRumoured:
		if ks.Type == model.RecordDS && kd.DSAtParent != model.DSSeen {
			break // parent must confirm publication before DS may go OMNIPRESENT (spec.md §4.1)
		}
		gate := enterOmnipresentGate(in, kd, ks)
		if !in.Now.Before(ks.EarliestExit(gate)) {
			if ks.Minimize && kd.ShouldRevoke && chainSurvivesWithout(in.KeyData, idx, stateKey{kd.ID, ks.Type}) {
				return model.StateUnretentive, true // minimize: skip the OMNIPRESENT coexistence phase where it's already safe to (spec.md §4.1)
			}
			return model.StateOmnipresent, true
		}
	case model.StateOmnipresent:
		if kd.ShouldRevoke && safe(in, kd, ks, idx) {
			return model.StateUnretentive, true
		}
	case model.StateUnretentive:
		if ks.Type == model.RecordDS && kd.DSAtParent != model.DSRetracted {
			break // parent must confirm removal before DS may go HIDDEN (spec.md §4.1)
		}
		gate := leaveGate(in, kd, ks)
		if !in.Now.Before(ks.EarliestExit(gate)) {
			return model.StateHidden, true
		}
	}
	return "", false
}

// enterOmnipresentGate computes the hold time a RUMOURED record must wait
// before it may be considered OMNIPRESENT: propagation delay plus publish
// safety for zone-side record types, the parent-side equivalents plus
// registration delay for DS, plus any RFC5011 hold-down for a
// trust-anchor KSK's DNSKEY.
func enterOmnipresentGate(in Input, kd model.KeyData, ks model.KeyState) time.Duration {
	p := in.Policy
	var base time.Duration
	switch ks.Type {
	case model.RecordDS:
		base = time.Duration(p.ParentPropagationDelay)*time.Second + time.Duration(p.ParentDSTTL)*time.Second + time.Duration(p.RegistrationDelay)*time.Second
	default:
		base = time.Duration(p.ZonePropagationDelay)*time.Second + time.Duration(p.PublishSafety)*time.Second
	}
	if ks.Type == model.RecordDNSKEY && kd.Role != model.RoleZSK {
		base += rfc5011Extra(rfc5011ForRole(in, kd.Role))
	}
	return base
}

// leaveGate computes the hold time an UNRETENTIVE record must wait before
// it may be considered HIDDEN: propagation delay plus retire safety, or
// the parent-side equivalents for DS.
func leaveGate(in Input, kd model.KeyData, ks model.KeyState) time.Duration {
	p := in.Policy
	switch ks.Type {
	case model.RecordDS:
		return time.Duration(p.ParentPropagationDelay)*time.Second + time.Duration(p.ParentDSTTL)*time.Second
	default:
		return time.Duration(p.ZonePropagationDelay)*time.Second + time.Duration(p.RetireSafety)*time.Second
	}
}
