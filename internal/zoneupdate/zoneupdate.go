// Package zoneupdate implements the zone update loop of spec.md §4.2: one
// transaction-scoped pass over a zone that resalts denial parameters,
// evaluates policy against the key factory, runs the lifecycle engine to a
// fixed point, writes the signer configuration when needed, garbage
// collects retired material and computes the zone's next wakeup time.
// Grounded on the teacher's ZoneStepFsm transaction-scoped step pattern
// (music/fsmops.go, music/zoneops.go).
package zoneupdate

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/johanix/keyenforcer/internal/enferrors"
	"github.com/johanix/keyenforcer/internal/hsm"
	"github.com/johanix/keyenforcer/internal/keyfactory"
	"github.com/johanix/keyenforcer/internal/lifecycle"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/policyeval"
	"github.com/johanix/keyenforcer/internal/signconf"
	"github.com/johanix/keyenforcer/internal/store"
)

// DefaultTick is the wakeup interval used when nothing in a zone is
// currently progressing through a timing gate.
const DefaultTick = 5 * time.Minute

// maxRetries bounds the optimistic-concurrency retry loop for one call to
// Update (spec.md §4.5: "commit with bounded retry on stale revision").
const maxRetries = 3

// Update runs one transaction-scoped pass over zoneID and returns when it
// should next be reconsidered.
func Update(ctx context.Context, db store.Store, factory *keyfactory.Factory, backend hsm.Backend, zoneID model.ID, now time.Time) (time.Time, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		next, err := attemptUpdate(ctx, db, factory, backend, zoneID, now)
		if err == nil {
			return next, nil
		}
		if err != store.ErrStaleRevision {
			return time.Time{}, err
		}
		lastErr = err
	}
	return time.Time{}, enferrors.Transient("zoneupdate.Update", fmt.Errorf("exhausted retries: %w", lastErr))
}

func attemptUpdate(ctx context.Context, db store.Store, factory *keyfactory.Factory, backend hsm.Backend, zoneID model.ID, now time.Time) (time.Time, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return time.Time{}, enferrors.External("zoneupdate.attemptUpdate", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	zone, err := loadZone(ctx, tx, zoneID)
	if err != nil {
		return time.Time{}, err
	}

	policy, err := loadPolicy(ctx, tx, zone.PolicyID)
	if err != nil {
		return time.Time{}, err
	}

	// Step: passthrough short-circuit (spec.md §4.2 step 1).
	if policy.Passthrough {
		if err := tx.Commit(); err != nil {
			return time.Time{}, enferrors.External("zoneupdate.attemptUpdate", err)
		}
		committed = true
		return now.Add(DefaultTick), nil
	}

	// Step: resalt (spec.md §4.2 step 3; NSEC3 only).
	if policy.Denial.NeedsResalt(now) {
		if err := resalt(ctx, tx, &policy, now); err != nil {
			return time.Time{}, err
		}
	}

	policyKeys, err := loadPolicyKeys(ctx, tx, policy.ID)
	if err != nil {
		return time.Time{}, err
	}
	keyData, err := loadKeyData(ctx, tx, zone.ID)
	if err != nil {
		return time.Time{}, err
	}
	keyStates, err := loadKeyStatesFor(ctx, tx, keyData)
	if err != nil {
		return time.Time{}, err
	}
	deps, err := loadKeyDependencies(ctx, tx, zone.ID)
	if err != nil {
		return time.Time{}, err
	}

	changed := false

	// Step: manual-roll handling (spec.md §4.2 step 4).
	if rolled, err := applyManualRolls(ctx, tx, &zone, keyData); err != nil {
		return time.Time{}, err
	} else if rolled {
		changed = true
	}

	// Step: evaluator + factory call (spec.md §4.2 step 2).
	eval := policyeval.Evaluate(policy.ID, policyKeys, keyData, now)
	introduced, err := satisfySlots(ctx, tx, factory, backend, zone, eval, policyKeys, now)
	if err != nil {
		return time.Time{}, err
	}
	if len(introduced) > 0 {
		keyData = append(keyData, introduced...)
		for _, kd := range introduced {
			for _, ks := range initialKeyStates(kd, policy, now) {
				id, err := tx.Create(ctx, store.TableKeyState, keyStateFields, encodeKeyStateValues(ks))
				if err != nil {
					return time.Time{}, enferrors.External("zoneupdate.satisfySlots", err)
				}
				ks.ID = model.ID(id)
				ks.Rev = 1
				keyStates = append(keyStates, ks)
			}
		}
		changed = true
	}
	for _, kd := range eval.Retiring {
		if !kd.ShouldRevoke {
			kd.ShouldRevoke = true
			if err := tx.Update(ctx, store.TableKeyData, []string{"shouldRevoke"}, []store.Value{store.Uint32(1)},
				store.WithRevision(store.Eq("id", store.PrimaryKey(string(kd.ID))), int64(kd.Rev))); err != nil {
				return time.Time{}, wrapStoreErr("zoneupdate.satisfySlots.retire", err)
			}
			changed = true
		}
	}

	// Step: lifecycle engine run (spec.md §4.2 step 5).
	pkByID := make(map[model.ID]model.PolicyKey, len(policyKeys))
	for _, pk := range policyKeys {
		pkByID[pk.ID] = pk
	}
	out := lifecycle.Step(lifecycle.Input{
		Zone: zone, Policy: policy, PolicyKeys: pkByID,
		KeyData: keyData, KeyStates: keyStates, Deps: deps, Now: now,
	})
	for _, ks := range out.Changed {
		if err := tx.Update(ctx, store.TableKeyState, []string{"state", "lastChange"},
			[]store.Value{store.Enum(string(ks.State)), store.Int64(now.Unix())},
			store.WithRevision(store.Eq("id", store.PrimaryKey(string(ks.ID))), int64(ks.Rev))); err != nil {
			return time.Time{}, wrapStoreErr("zoneupdate.lifecycle", err)
		}
	}
	for _, dep := range out.NewDeps {
		if _, err := tx.Create(ctx, store.TableKeyDependency, keyDependencyFields, encodeKeyDependencyValues(dep)); err != nil {
			return time.Time{}, enferrors.External("zoneupdate.lifecycle.deps", err)
		}
	}
	for _, id := range out.RetiredDeps {
		if err := tx.Delete(ctx, store.TableKeyDependency, store.Eq("id", store.PrimaryKey(string(id)))); err != nil {
			return time.Time{}, enferrors.External("zoneupdate.lifecycle.deps", err)
		}
	}
	if len(out.Changed) > 0 || len(out.NewDeps) > 0 || len(out.RetiredDeps) > 0 {
		changed = true
	}

	// Step: automatic DS submission bookkeeping (spec.md §6: SUBMIT ->
	// SUBMITTED once the DS record is actually published).
	if dsChanged, err := advanceDSSubmissions(ctx, tx, keyData, keyStatesAfter(keyStates, out.Changed)); err != nil {
		return time.Time{}, err
	} else if dsChanged {
		changed = true
	}

	// Step: signer configuration (spec.md §4.2 step 7; DESIGN.md Open
	// Question #2: flag cleared only after a successful write, same tx).
	if changed {
		zone.SignconfNeedsWriting = true
	}
	if zone.SignconfNeedsWriting {
		hsmUUIDs, err := loadHsmUUIDs(ctx, tx, keyData)
		if err != nil {
			return time.Time{}, err
		}
		doc := signconf.Build(zone, policy.Denial, keyData, keyStatesAfter(keyStates, out.Changed), hsmUUIDs, now)
		if err := signconf.Write(zone.SignconfPath, doc); err != nil {
			return time.Time{}, enferrors.External("zoneupdate.signconf", err)
		}
		zone.SignconfNeedsWriting = false
	}

	// Step: garbage collection (spec.md §4.2 step 8).
	if err := collectGarbage(ctx, tx, backend, policy, keyData, keyStatesAfter(keyStates, out.Changed)); err != nil {
		return time.Time{}, err
	}

	// Step: wakeup computation (spec.md §4.2 step 9).
	next := computeWakeup(policy, keyStatesAfter(keyStates, out.Changed), now)

	if err := persistZone(ctx, tx, zone); err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, enferrors.External("zoneupdate.attemptUpdate", err)
	}
	committed = true
	return next, nil
}

func wrapStoreErr(op string, err error) error {
	if err == store.ErrStaleRevision {
		return err
	}
	return enferrors.External(op, err)
}

func resalt(ctx context.Context, tx store.Tx, policy *model.Policy, now time.Time) error {
	salt := make([]byte, policy.Denial.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return enferrors.External("zoneupdate.resalt", err)
	}
	policy.Denial.Salt = fmt.Sprintf("%x", salt)
	policy.Denial.SaltLastChange = now
	if err := tx.Update(ctx, store.TablePolicy, []string{"denialSalt", "denialSaltLastChange"},
		[]store.Value{store.Text(policy.Denial.Salt), store.Int64(now.Unix())},
		store.WithRevision(store.Eq("id", store.PrimaryKey(string(policy.ID))), int64(policy.Rev))); err != nil {
		return wrapStoreErr("zoneupdate.resalt", err)
	}
	return nil
}

func applyManualRolls(ctx context.Context, tx store.Tx, zone *model.Zone, keyData []model.KeyData) (bool, error) {
	rolled := false
	rollFor := func(role model.Role, want bool) error {
		if !want {
			return nil
		}
		for _, kd := range keyData {
			if kd.Role != role || kd.ShouldRevoke || !(kd.ActiveKSK || kd.ActiveZSK) {
				continue
			}
			if err := tx.Update(ctx, store.TableKeyData, []string{"shouldRevoke"}, []store.Value{store.Uint32(1)},
				store.WithRevision(store.Eq("id", store.PrimaryKey(string(kd.ID))), int64(kd.Rev))); err != nil {
				return wrapStoreErr("zoneupdate.applyManualRolls", err)
			}
			rolled = true
		}
		return nil
	}
	if err := rollFor(model.RoleKSK, zone.RollKSKNow); err != nil {
		return false, err
	}
	if err := rollFor(model.RoleZSK, zone.RollZSKNow); err != nil {
		return false, err
	}
	if err := rollFor(model.RoleCSK, zone.RollCSKNow); err != nil {
		return false, err
	}
	if zone.RollKSKNow || zone.RollZSKNow || zone.RollCSKNow {
		zone.RollKSKNow, zone.RollZSKNow, zone.RollCSKNow = false, false, false
		rolled = true
	}
	return rolled, nil
}

// keyStatesAfter overlays out.Changed onto the original keyStates slice so
// downstream steps (signconf, GC, wakeup) see post-transition values
// without a re-read.
func keyStatesAfter(original []model.KeyState, changed []model.KeyState) []model.KeyState {
	if len(changed) == 0 {
		return original
	}
	byID := make(map[model.ID]model.KeyState, len(changed))
	for _, ks := range changed {
		byID[ks.ID] = ks
	}
	out := make([]model.KeyState, len(original))
	for i, ks := range original {
		if c, ok := byID[ks.ID]; ok {
			out[i] = c
		} else {
			out[i] = ks
		}
	}
	return out
}

func computeWakeup(policy model.Policy, states []model.KeyState, now time.Time) time.Time {
	earliest := now.Add(DefaultTick)
	for _, ks := range states {
		var gate time.Duration
		switch ks.State {
		case model.StateRumoured:
			gate = time.Duration(policy.ZonePropagationDelay)*time.Second + time.Duration(policy.PublishSafety)*time.Second
			if ks.Type == model.RecordDS {
				gate = time.Duration(policy.ParentPropagationDelay)*time.Second + time.Duration(policy.ParentDSTTL)*time.Second + time.Duration(policy.RegistrationDelay)*time.Second
			}
		case model.StateUnretentive:
			gate = time.Duration(policy.ZonePropagationDelay)*time.Second + time.Duration(policy.RetireSafety)*time.Second
			if ks.Type == model.RecordDS {
				gate = time.Duration(policy.ParentPropagationDelay)*time.Second + time.Duration(policy.ParentDSTTL)*time.Second
			}
		default:
			continue
		}
		candidate := ks.EarliestExit(gate)
		if candidate.Before(earliest) {
			earliest = candidate
		}
	}
	return earliest
}

// initialKeyStates seeds one HIDDEN KeyState per record type the role
// publishes, with DesiredTTL set to the TTL that record type will carry on
// the wire so the lifecycle engine's timing gates (EarliestExit) use the
// real propagation time instead of zero.
func initialKeyStates(kd model.KeyData, policy model.Policy, now time.Time) []model.KeyState {
	var out []model.KeyState
	for _, rt := range model.RecordTypesForRole(kd.Role) {
		out = append(out, model.KeyState{
			KeyDataID:  kd.ID,
			Type:       rt,
			State:      model.StateHidden,
			LastChange: now,
			Minimize:   kd.Minimize.AppliesTo(rt),
			DesiredTTL: desiredTTLFor(rt, policy),
		})
	}
	return out
}

func desiredTTLFor(rt model.RecordType, policy model.Policy) uint32 {
	switch rt {
	case model.RecordDS:
		return policy.ParentDSTTL
	case model.RecordDNSKEY:
		return policy.KeyTTL
	case model.RecordRRSIGDNSKEY:
		return policy.SignaturesValidityKeyset()
	case model.RecordRRSIG:
		return policy.ValidityDefault
	default:
		return policy.KeyTTL
	}
}
