// Package policyeval is the pure policy evaluator of spec.md §4.3: given a
// policy, the current time and a zone's existing KeyData, it computes the
// desired key-slot multiset and which existing keys satisfy it, with no
// store or HSM access of its own.
package policyeval

import (
	"time"

	"github.com/johanix/keyenforcer/internal/model"
)

// DesiredSlot is one (PolicyKey, instance-index) the evaluator wants a live
// key for. Two DesiredSlots with the same Slot but different Index
// represent standby multiplicity (spec.md §4.3: "1 + standby").
type DesiredSlot struct {
	model.Slot
	PolicyKeyID model.ID
	Index       int
}

// Satisfaction pairs a DesiredSlot with the existing KeyData that already
// fulfils it, if any.
type Satisfaction struct {
	Desired DesiredSlot
	Current *model.KeyData // nil if unsatisfied
}

// Result is the evaluator's full output for one zone tick.
type Result struct {
	Satisfactions []Satisfaction
	// Retiring holds KeyData present in the zone but no longer wanted by
	// any DesiredSlot (e.g. a PolicyKey's Lifetime has elapsed, or the
	// policy no longer declares this role at all) — these should begin
	// UNRETENTIVE rather than be deleted outright.
	Retiring []model.KeyData
}

// Evaluate computes Result for one zone. keys is the policy's PolicyKey
// rows; existing is the zone's current KeyData rows. now drives the
// Lifetime-elapsed check (spec.md §4.3: "now >= inception + lifetime
// triggers successor generation").
func Evaluate(policyID model.ID, keys []model.PolicyKey, existing []model.KeyData, now time.Time) Result {
	var res Result
	satisfiedIDs := make(map[model.ID]bool)

	for _, pk := range keys {
		slot := model.Slot{
			PolicyID:   policyID,
			Role:       pk.Role,
			Algorithm:  pk.Algorithm,
			Bits:       pk.Bits,
			Repository: pk.Repository,
		}
		candidates := candidatesFor(pk, existing, now)

		for idx := 0; idx < pk.Multiplicity(); idx++ {
			desired := DesiredSlot{Slot: slot, PolicyKeyID: pk.ID, Index: idx}
			var current *model.KeyData
			if idx < len(candidates) {
				kd := candidates[idx]
				current = &kd
				satisfiedIDs[kd.ID] = true
			}
			res.Satisfactions = append(res.Satisfactions, Satisfaction{Desired: desired, Current: current})
		}
	}

	for _, kd := range existing {
		if !satisfiedIDs[kd.ID] {
			res.Retiring = append(res.Retiring, kd)
		}
	}
	return res
}

// candidatesFor returns the existing KeyData bound to pk's role that have
// not yet exceeded pk.Lifetime, oldest first, so the earliest-introduced
// key fills Index 0 (the active slot) and later ones fill standby slots.
func candidatesFor(pk model.PolicyKey, existing []model.KeyData, now time.Time) []model.KeyData {
	var out []model.KeyData
	for _, kd := range existing {
		if kd.Role != pk.Role {
			continue
		}
		if pk.Lifetime > 0 && !kd.Inception.IsZero() {
			age := now.Sub(kd.Inception)
			if age >= time.Duration(pk.Lifetime)*time.Second {
				continue // past lifetime: falls into Retiring, a successor is wanted instead
			}
		}
		out = append(out, kd)
	}
	// Oldest-first so Index 0 is always the longest-lived (active) instance.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Inception.Before(out[j-1].Inception); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
