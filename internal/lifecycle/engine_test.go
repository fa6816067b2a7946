package lifecycle

import (
	"testing"
	"time"

	"github.com/johanix/keyenforcer/internal/model"
)

func basePolicy() model.Policy {
	return model.Policy{
		ZonePropagationDelay: 60,
		PublishSafety:        60,
		RetireSafety:         60,
		ParentPropagationDelay: 60,
		ParentDSTTL:            60,
	}
}

func TestStepIntroducesHiddenToRumoured(t *testing.T) {
	now := time.Now()
	kd := model.KeyData{Entity: model.Entity{ID: "kd1"}, Role: model.RoleZSK, Introducing: true}
	ks := model.KeyState{Entity: model.Entity{ID: "ks1"}, KeyDataID: kd.ID, Type: model.RecordDNSKEY, State: model.StateHidden, LastChange: now}

	out := Step(Input{
		Policy: basePolicy(), KeyData: []model.KeyData{kd}, KeyStates: []model.KeyState{ks}, Now: now,
	})
	if len(out.Changed) != 1 || out.Changed[0].State != model.StateRumoured {
		t.Fatalf("Changed = %+v, want one RUMOURED transition", out.Changed)
	}
}

func TestStepWaitsForGateBeforeOmnipresent(t *testing.T) {
	now := time.Now()
	kd := model.KeyData{Entity: model.Entity{ID: "kd1"}, Role: model.RoleZSK}
	ks := model.KeyState{
		Entity: model.Entity{ID: "ks1"}, KeyDataID: kd.ID, Type: model.RecordDNSKEY,
		State: model.StateRumoured, LastChange: now, DesiredTTL: 3600,
	}
	out := Step(Input{Policy: basePolicy(), KeyData: []model.KeyData{kd}, KeyStates: []model.KeyState{ks}, Now: now})
	if len(out.Changed) != 0 {
		t.Fatalf("expected no transition before the gate elapses, got %+v", out.Changed)
	}

	later := now.Add(2 * time.Hour)
	out = Step(Input{Policy: basePolicy(), KeyData: []model.KeyData{kd}, KeyStates: []model.KeyState{ks}, Now: later})
	if len(out.Changed) != 1 || out.Changed[0].State != model.StateOmnipresent {
		t.Fatalf("Changed = %+v, want OMNIPRESENT once the gate elapses", out.Changed)
	}
}

// entryPoint returns a stable KSK and its three always-OMNIPRESENT
// KeyStates, standing in for the zone's unrelated secure entry point so the
// chain-of-trust half of safe() (spec.md §4.1) isn't what's under test here.
func entryPoint(now time.Time) (model.KeyData, []model.KeyState) {
	ksk := model.KeyData{Entity: model.Entity{ID: "ksk1"}, Role: model.RoleKSK}
	states := []model.KeyState{
		{Entity: model.Entity{ID: "ksk1-ds"}, KeyDataID: ksk.ID, Type: model.RecordDS, State: model.StateOmnipresent, LastChange: now},
		{Entity: model.Entity{ID: "ksk1-dnskey"}, KeyDataID: ksk.ID, Type: model.RecordDNSKEY, State: model.StateOmnipresent, LastChange: now},
		{Entity: model.Entity{ID: "ksk1-sigdnskey"}, KeyDataID: ksk.ID, Type: model.RecordRRSIGDNSKEY, State: model.StateOmnipresent, LastChange: now},
	}
	return ksk, states
}

func TestSafetyPredicateBlocksRetireWithoutSuccessor(t *testing.T) {
	now := time.Now()
	ksk, ep := entryPoint(now)
	predecessor := model.KeyData{Entity: model.Entity{ID: "pred"}, Role: model.RoleZSK, ShouldRevoke: true}
	successor := model.KeyData{Entity: model.Entity{ID: "succ"}, Role: model.RoleZSK}
	predDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "ks-pred-dnskey"}, KeyDataID: predecessor.ID, Type: model.RecordDNSKEY,
		State: model.StateOmnipresent, LastChange: now,
	}
	predRRSIG := model.KeyState{
		Entity: model.Entity{ID: "ks-pred-rrsig"}, KeyDataID: predecessor.ID, Type: model.RecordRRSIG,
		State: model.StateOmnipresent, LastChange: now,
	}
	dep := model.KeyDependency{
		FromKeyDataID: predecessor.ID, ToKeyDataID: successor.ID, Type: model.RecordDNSKEY,
	}
	succDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "ks-succ-dnskey"}, KeyDataID: successor.ID, Type: model.RecordDNSKEY,
		State: model.StateRumoured, LastChange: now,
	}

	out := Step(Input{
		Policy:    basePolicy(),
		KeyData:   []model.KeyData{ksk, predecessor, successor},
		KeyStates: append([]model.KeyState{predDNSKEY, predRRSIG, succDNSKEY}, ep...),
		Deps:      []model.KeyDependency{dep},
		Now:       now,
	})
	if len(out.Changed) != 0 {
		t.Fatalf("expected the predecessor to stay OMNIPRESENT until the successor is OMNIPRESENT too, got %+v", out.Changed)
	}
}

func TestSafetyPredicateAllowsRetireOnceSuccessorOmnipresent(t *testing.T) {
	now := time.Now()
	ksk, ep := entryPoint(now)
	predecessor := model.KeyData{Entity: model.Entity{ID: "pred"}, Role: model.RoleZSK, ShouldRevoke: true}
	successor := model.KeyData{Entity: model.Entity{ID: "succ"}, Role: model.RoleZSK}
	predDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "ks-pred-dnskey"}, KeyDataID: predecessor.ID, Type: model.RecordDNSKEY,
		State: model.StateOmnipresent, LastChange: now,
	}
	predRRSIG := model.KeyState{
		Entity: model.Entity{ID: "ks-pred-rrsig"}, KeyDataID: predecessor.ID, Type: model.RecordRRSIG,
		State: model.StateOmnipresent, LastChange: now,
	}
	dep := model.KeyDependency{FromKeyDataID: predecessor.ID, ToKeyDataID: successor.ID, Type: model.RecordDNSKEY}
	succDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "ks-succ-dnskey"}, KeyDataID: successor.ID, Type: model.RecordDNSKEY,
		State: model.StateOmnipresent, LastChange: now,
	}
	succRRSIG := model.KeyState{
		Entity: model.Entity{ID: "ks-succ-rrsig"}, KeyDataID: successor.ID, Type: model.RecordRRSIG,
		State: model.StateOmnipresent, LastChange: now,
	}

	out := Step(Input{
		Policy:    basePolicy(),
		KeyData:   []model.KeyData{ksk, predecessor, successor},
		KeyStates: append([]model.KeyState{predDNSKEY, predRRSIG, succDNSKEY, succRRSIG}, ep...),
		Deps:      []model.KeyDependency{dep},
		Now:       now,
	})
	if len(out.Changed) != 2 {
		t.Fatalf("Changed = %+v, want predecessor DNSKEY and RRSIG UNRETENTIVE", out.Changed)
	}
	for _, ks := range out.Changed {
		if ks.KeyDataID != predecessor.ID || ks.State != model.StateUnretentive {
			t.Fatalf("Changed = %+v, want predecessor DNSKEY and RRSIG UNRETENTIVE", out.Changed)
		}
	}
}

// TestSafetyPredicateBlocksRetiringLastEntryPoint covers the case review
// comment (a) called out specifically: no KeyDependency was ever recorded
// (e.g. the operator revoked the zone's only KSK outright), so the
// dependency loop alone would find nothing to object to. The chain
// enumeration must still refuse, since retiring it leaves no DS/DNSKEY/
// RRSIGDNSKEY entry point at all.
func TestSafetyPredicateBlocksRetiringLastEntryPoint(t *testing.T) {
	now := time.Now()
	ksk := model.KeyData{Entity: model.Entity{ID: "ksk1"}, Role: model.RoleKSK, ShouldRevoke: true}
	zsk := model.KeyData{Entity: model.Entity{ID: "zsk1"}, Role: model.RoleZSK}
	states := []model.KeyState{
		{Entity: model.Entity{ID: "ksk1-ds"}, KeyDataID: ksk.ID, Type: model.RecordDS, State: model.StateOmnipresent, LastChange: now},
		{Entity: model.Entity{ID: "ksk1-dnskey"}, KeyDataID: ksk.ID, Type: model.RecordDNSKEY, State: model.StateOmnipresent, LastChange: now},
		{Entity: model.Entity{ID: "ksk1-sigdnskey"}, KeyDataID: ksk.ID, Type: model.RecordRRSIGDNSKEY, State: model.StateOmnipresent, LastChange: now},
		{Entity: model.Entity{ID: "zsk1-dnskey"}, KeyDataID: zsk.ID, Type: model.RecordDNSKEY, State: model.StateOmnipresent, LastChange: now},
		{Entity: model.Entity{ID: "zsk1-rrsig"}, KeyDataID: zsk.ID, Type: model.RecordRRSIG, State: model.StateOmnipresent, LastChange: now},
	}

	out := Step(Input{
		Policy:    basePolicy(),
		KeyData:   []model.KeyData{ksk, zsk},
		KeyStates: states,
		Now:       now,
	})
	for _, ks := range out.Changed {
		if ks.KeyDataID == ksk.ID {
			t.Fatalf("expected the zone's last DS/DNSKEY to stay OMNIPRESENT with no recorded successor, got %+v", ks)
		}
	}
}

// TestStepRecordsDependencyWhenSuccessorTakesOver covers spec.md §3/§4.1
// step 3: a KeyDependency edge must appear the moment a successor starts
// taking over a still-serving predecessor's function (HIDDEN -> RUMOURED).
func TestStepRecordsDependencyWhenSuccessorTakesOver(t *testing.T) {
	now := time.Now()
	predecessor := model.KeyData{Entity: model.Entity{ID: "pred"}, Role: model.RoleZSK}
	successor := model.KeyData{Entity: model.Entity{ID: "succ"}, Role: model.RoleZSK, Introducing: true}
	predDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "ks-pred"}, KeyDataID: predecessor.ID, Type: model.RecordDNSKEY,
		State: model.StateOmnipresent, LastChange: now,
	}
	succDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "ks-succ"}, KeyDataID: successor.ID, Type: model.RecordDNSKEY,
		State: model.StateHidden, LastChange: now,
	}

	out := Step(Input{
		Policy:    basePolicy(),
		KeyData:   []model.KeyData{predecessor, successor},
		KeyStates: []model.KeyState{predDNSKEY, succDNSKEY},
		Now:       now,
	})
	if len(out.NewDeps) != 1 {
		t.Fatalf("NewDeps = %+v, want exactly one edge recorded", out.NewDeps)
	}
	dep := out.NewDeps[0]
	if dep.FromKeyDataID != predecessor.ID || dep.ToKeyDataID != successor.ID || dep.Type != model.RecordDNSKEY {
		t.Fatalf("dep = %+v, want pred -> succ DNSKEY", dep)
	}
}

// TestStepRetiresDependencyOnceHidden covers the matching teardown half of
// the same step: a KeyDependency is dropped once its From side reaches
// HIDDEN, per spec.md §3 ("deleted when the predecessor's corresponding
// KeyState reaches HIDDEN").
func TestStepRetiresDependencyOnceHidden(t *testing.T) {
	now := time.Now().Add(-2 * time.Hour)
	predecessor := model.KeyData{Entity: model.Entity{ID: "pred"}, Role: model.RoleZSK}
	predDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "ks-pred"}, KeyDataID: predecessor.ID, Type: model.RecordDNSKEY,
		State: model.StateUnretentive, LastChange: now, DesiredTTL: 0,
	}
	dep := model.KeyDependency{Entity: model.Entity{ID: "dep1"}, FromKeyDataID: predecessor.ID, ToKeyDataID: "succ", Type: model.RecordDNSKEY}

	out := Step(Input{
		Policy:    basePolicy(),
		KeyData:   []model.KeyData{predecessor},
		KeyStates: []model.KeyState{predDNSKEY},
		Deps:      []model.KeyDependency{dep},
		Now:       time.Now(),
	})
	if len(out.Changed) != 1 || out.Changed[0].State != model.StateHidden {
		t.Fatalf("Changed = %+v, want predecessor HIDDEN", out.Changed)
	}
	if len(out.RetiredDeps) != 1 || out.RetiredDeps[0] != dep.ID {
		t.Fatalf("RetiredDeps = %+v, want [%s]", out.RetiredDeps, dep.ID)
	}
}

// TestStepGatesDSOnDSAtParentSeen covers review requirement that DS never
// auto-advances to OMNIPRESENT on a timer alone; it must wait for operator
// confirmation that the parent has published it (spec.md §4.1).
func TestStepGatesDSOnDSAtParentSeen(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	ksk := model.KeyData{Entity: model.Entity{ID: "ksk1"}, Role: model.RoleKSK, DSAtParent: model.DSSubmitted}
	ds := model.KeyState{Entity: model.Entity{ID: "ks-ds"}, KeyDataID: ksk.ID, Type: model.RecordDS, State: model.StateRumoured, LastChange: past}

	out := Step(Input{Policy: basePolicy(), KeyData: []model.KeyData{ksk}, KeyStates: []model.KeyState{ds}, Now: time.Now()})
	if len(out.Changed) != 0 {
		t.Fatalf("expected DS to stay RUMOURED while dsAtParent is only SUBMITTED, got %+v", out.Changed)
	}

	ksk.DSAtParent = model.DSSeen
	out = Step(Input{Policy: basePolicy(), KeyData: []model.KeyData{ksk}, KeyStates: []model.KeyState{ds}, Now: time.Now()})
	if len(out.Changed) != 1 || out.Changed[0].State != model.StateOmnipresent {
		t.Fatalf("Changed = %+v, want DS OMNIPRESENT once dsAtParent is SEEN", out.Changed)
	}
}

// TestStepGatesDSRetireOnDSAtParentRetracted mirrors the above for the
// teardown side: UNRETENTIVE -> HIDDEN must wait for the parent to confirm
// the DS record is actually gone.
func TestStepGatesDSRetireOnDSAtParentRetracted(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	ksk := model.KeyData{Entity: model.Entity{ID: "ksk1"}, Role: model.RoleKSK, DSAtParent: model.DSRetract}
	ds := model.KeyState{Entity: model.Entity{ID: "ks-ds"}, KeyDataID: ksk.ID, Type: model.RecordDS, State: model.StateUnretentive, LastChange: past}

	out := Step(Input{Policy: basePolicy(), KeyData: []model.KeyData{ksk}, KeyStates: []model.KeyState{ds}, Now: time.Now()})
	if len(out.Changed) != 0 {
		t.Fatalf("expected DS to stay UNRETENTIVE while dsAtParent is only RETRACT, got %+v", out.Changed)
	}

	ksk.DSAtParent = model.DSRetracted
	out = Step(Input{Policy: basePolicy(), KeyData: []model.KeyData{ksk}, KeyStates: []model.KeyState{ds}, Now: time.Now()})
	if len(out.Changed) != 1 || out.Changed[0].State != model.StateHidden {
		t.Fatalf("Changed = %+v, want DS HIDDEN once dsAtParent is RETRACTED", out.Changed)
	}
}

// TestStepMinimizeSkipsOmnipresentWhenSafe covers the spec.md §4.1 minimize
// preference: a RUMOURED record already flagged for revocation may jump
// straight to UNRETENTIVE, skipping the OMNIPRESENT coexistence phase,
// provided the chain of trust survives without it.
func TestStepMinimizeSkipsOmnipresentWhenSafe(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	ksk, ep := entryPoint(past)
	stable := model.KeyData{Entity: model.Entity{ID: "stable"}, Role: model.RoleZSK}
	stableDNSKEY := model.KeyState{Entity: model.Entity{ID: "stable-dnskey"}, KeyDataID: stable.ID, Type: model.RecordDNSKEY, State: model.StateOmnipresent, LastChange: past}
	stableRRSIG := model.KeyState{Entity: model.Entity{ID: "stable-rrsig"}, KeyDataID: stable.ID, Type: model.RecordRRSIG, State: model.StateOmnipresent, LastChange: past}

	minimized := model.KeyData{Entity: model.Entity{ID: "short"}, Role: model.RoleZSK, ShouldRevoke: true}
	minimizedDNSKEY := model.KeyState{
		Entity: model.Entity{ID: "short-dnskey"}, KeyDataID: minimized.ID, Type: model.RecordDNSKEY,
		State: model.StateRumoured, LastChange: past, Minimize: true,
	}

	out := Step(Input{
		Policy:    basePolicy(),
		KeyData:   []model.KeyData{ksk, stable, minimized},
		KeyStates: append([]model.KeyState{stableDNSKEY, stableRRSIG, minimizedDNSKEY}, ep...),
		Now:       time.Now(),
	})
	var found bool
	for _, ks := range out.Changed {
		if ks.KeyDataID == minimized.ID {
			found = true
			if ks.State != model.StateUnretentive {
				t.Fatalf("minimized KeyState = %+v, want UNRETENTIVE directly from RUMOURED", ks)
			}
		}
	}
	if !found {
		t.Fatal("expected the minimized KeyState to transition this tick")
	}
}
