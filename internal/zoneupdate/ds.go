package zoneupdate

import (
	"context"
	"fmt"

	"github.com/johanix/keyenforcer/internal/enferrors"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/store"
)

// The engine never advances a KeyData's DSAtParent past SUBMITTED or
// RETRACT on its own (DESIGN.md Open Question #3); these four entry points
// are the only operator-driven way DSAtParent changes, through
// cmd/enforcer-cli. SUBMIT -> SUBMITTED is the one automatic step, fired by
// advanceDSSubmissions once the DS KeyState is actually published
// (spec.md §6: "SUBMIT -> SUBMITTED -> SEEN").

// DSSubmit marks a KSK's DS record as ready for the parent to see,
// UNSUBMITTED -> SUBMIT.
func DSSubmit(ctx context.Context, db store.Store, keyDataID model.ID) error {
	return transitionDS(ctx, db, keyDataID, model.DSUnsubmitted, model.DSSubmit)
}

// DSSeen records operator confirmation that the parent has published the
// DS record, SUBMITTED -> SEEN.
func DSSeen(ctx context.Context, db store.Store, keyDataID model.ID) error {
	return transitionDS(ctx, db, keyDataID, model.DSSubmitted, model.DSSeen)
}

// DSRetract marks a DS record for removal from the parent, SEEN ->
// RETRACT.
func DSRetract(ctx context.Context, db store.Store, keyDataID model.ID) error {
	return transitionDS(ctx, db, keyDataID, model.DSSeen, model.DSRetract)
}

// DSGone records operator confirmation that the parent has removed the DS
// record, RETRACT -> RETRACTED.
func DSGone(ctx context.Context, db store.Store, keyDataID model.ID) error {
	return transitionDS(ctx, db, keyDataID, model.DSRetract, model.DSRetracted)
}

func transitionDS(ctx context.Context, db store.Store, keyDataID model.ID, from, to model.DSAtParent) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return enferrors.External("zoneupdate.transitionDS", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	it, err := tx.Read(ctx, store.TableKeyData, nil, store.Eq("id", store.PrimaryKey(string(keyDataID))), nil)
	if err != nil {
		return enferrors.External("zoneupdate.transitionDS", err)
	}
	if !it.Next() {
		it.Close()
		return enferrors.Configuration("zoneupdate.transitionDS", store.ErrNotFound)
	}
	kd := decodeKeyData(it.Row())
	it.Close()

	if kd.DSAtParent != from {
		return enferrors.PolicyViolation("zoneupdate.transitionDS",
			fmt.Errorf("keyData %s: dsAtParent is %s, expected %s", keyDataID, kd.DSAtParent, from))
	}

	if err := tx.Update(ctx, store.TableKeyData, []string{"dsAtParent"}, []store.Value{store.Enum(string(to))},
		store.WithRevision(store.Eq("id", store.PrimaryKey(string(keyDataID))), int64(kd.Rev))); err != nil {
		return wrapStoreErr("zoneupdate.transitionDS", err)
	}

	if err := tx.Commit(); err != nil {
		return enferrors.External("zoneupdate.transitionDS", err)
	}
	committed = true
	return nil
}

// advanceDSSubmissions fires the one non-operator-driven DSAtParent step:
// a KeyData the operator has already marked SUBMIT (spec.md §6) moves on
// to SUBMITTED as soon as its DS KeyState is actually published (RUMOURED
// or further), i.e. once the enforcer itself has put the record out rather
// than merely having been told to. It returns true if anything changed.
func advanceDSSubmissions(ctx context.Context, tx store.Tx, keyData []model.KeyData, keyStates []model.KeyState) (bool, error) {
	dsStateByKeyData := make(map[model.ID]model.KeyState, len(keyData))
	for _, ks := range keyStates {
		if ks.Type == model.RecordDS {
			dsStateByKeyData[ks.KeyDataID] = ks
		}
	}

	changed := false
	for _, kd := range keyData {
		if kd.DSAtParent != model.DSSubmit {
			continue
		}
		ds, ok := dsStateByKeyData[kd.ID]
		if !ok || ds.State == model.StateHidden || ds.State == model.StateNA {
			continue
		}
		if err := tx.Update(ctx, store.TableKeyData, []string{"dsAtParent"}, []store.Value{store.Enum(string(model.DSSubmitted))},
			store.WithRevision(store.Eq("id", store.PrimaryKey(string(kd.ID))), int64(kd.Rev))); err != nil {
			return false, wrapStoreErr("zoneupdate.advanceDSSubmissions", err)
		}
		changed = true
	}
	return changed, nil
}
