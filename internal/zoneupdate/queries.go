package zoneupdate

import (
	"context"
	"time"

	"github.com/johanix/keyenforcer/internal/enferrors"
	"github.com/johanix/keyenforcer/internal/hsm"
	"github.com/johanix/keyenforcer/internal/keyfactory"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/policyeval"
	"github.com/johanix/keyenforcer/internal/store"
)

func loadZone(ctx context.Context, tx store.Tx, id model.ID) (model.Zone, error) {
	it, err := tx.Read(ctx, store.TableZone, nil, store.Eq("id", store.PrimaryKey(string(id))), nil)
	if err != nil {
		return model.Zone{}, enferrors.External("zoneupdate.loadZone", err)
	}
	defer it.Close()
	if !it.Next() {
		return model.Zone{}, enferrors.Configuration("zoneupdate.loadZone", store.ErrNotFound)
	}
	return decodeZone(it.Row()), nil
}

func loadPolicy(ctx context.Context, tx store.Tx, id model.ID) (model.Policy, error) {
	it, err := tx.Read(ctx, store.TablePolicy, nil, store.Eq("id", store.PrimaryKey(string(id))), nil)
	if err != nil {
		return model.Policy{}, enferrors.External("zoneupdate.loadPolicy", err)
	}
	defer it.Close()
	if !it.Next() {
		return model.Policy{}, enferrors.Configuration("zoneupdate.loadPolicy", store.ErrNotFound)
	}
	return decodePolicy(it.Row()), nil
}

func loadPolicyKeys(ctx context.Context, tx store.Tx, policyID model.ID) ([]model.PolicyKey, error) {
	it, err := tx.Read(ctx, store.TablePolicyKey, nil, store.Eq("policyId", store.PrimaryKey(string(policyID))), nil)
	if err != nil {
		return nil, enferrors.External("zoneupdate.loadPolicyKeys", err)
	}
	defer it.Close()
	var out []model.PolicyKey
	for it.Next() {
		out = append(out, decodePolicyKey(it.Row()))
	}
	return out, it.Err()
}

func loadKeyData(ctx context.Context, tx store.Tx, zoneID model.ID) ([]model.KeyData, error) {
	it, err := tx.Read(ctx, store.TableKeyData, nil, store.Eq("zoneId", store.PrimaryKey(string(zoneID))), nil)
	if err != nil {
		return nil, enferrors.External("zoneupdate.loadKeyData", err)
	}
	defer it.Close()
	var out []model.KeyData
	for it.Next() {
		out = append(out, decodeKeyData(it.Row()))
	}
	return out, it.Err()
}

func loadKeyStatesFor(ctx context.Context, tx store.Tx, keyData []model.KeyData) ([]model.KeyState, error) {
	var out []model.KeyState
	for _, kd := range keyData {
		it, err := tx.Read(ctx, store.TableKeyState, nil, store.Eq("keyDataId", store.PrimaryKey(string(kd.ID))), nil)
		if err != nil {
			return nil, enferrors.External("zoneupdate.loadKeyStatesFor", err)
		}
		for it.Next() {
			out = append(out, decodeKeyState(it.Row()))
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return nil, enferrors.External("zoneupdate.loadKeyStatesFor", err)
		}
	}
	return out, nil
}

func loadKeyDependencies(ctx context.Context, tx store.Tx, zoneID model.ID) ([]model.KeyDependency, error) {
	it, err := tx.Read(ctx, store.TableKeyDependency, nil, store.Eq("zoneId", store.PrimaryKey(string(zoneID))), nil)
	if err != nil {
		return nil, enferrors.External("zoneupdate.loadKeyDependencies", err)
	}
	defer it.Close()
	var out []model.KeyDependency
	for it.Next() {
		out = append(out, decodeKeyDependency(it.Row()))
	}
	return out, it.Err()
}

func loadHsmUUIDs(ctx context.Context, tx store.Tx, keyData []model.KeyData) (map[model.ID]string, error) {
	out := make(map[model.ID]string, len(keyData))
	for _, kd := range keyData {
		it, err := tx.Read(ctx, store.TableHsmKey, nil, store.Eq("id", store.PrimaryKey(string(kd.HsmKeyID))), nil)
		if err != nil {
			return nil, enferrors.External("zoneupdate.loadHsmUUIDs", err)
		}
		if it.Next() {
			hsmUUID, _ := it.Row()["hsmUuid"].AsText()
			out[kd.ID] = hsmUUID
		}
		it.Close()
	}
	return out, nil
}

func persistZone(ctx context.Context, tx store.Tx, zone model.Zone) error {
	if err := tx.Update(ctx, store.TableZone, zoneFields, encodeZoneValues(zone),
		store.WithRevision(store.Eq("id", store.PrimaryKey(string(zone.ID))), int64(zone.Rev))); err != nil {
		return wrapStoreErr("zoneupdate.persistZone", err)
	}
	return nil
}

// satisfySlots allocates an HsmKey for each unsatisfied DesiredSlot from
// the factory's free list and creates the corresponding KeyData row. A
// slot the factory cannot currently satisfy is skipped for this tick after
// requesting replenishment, rather than blocking (spec.md §4.4).
func satisfySlots(ctx context.Context, tx store.Tx, factory *keyfactory.Factory, backend hsm.Backend, zone model.Zone, eval policyeval.Result, policyKeys []model.PolicyKey, now time.Time) ([]model.KeyData, error) {
	pkByID := make(map[model.ID]model.PolicyKey, len(policyKeys))
	for _, pk := range policyKeys {
		pkByID[pk.ID] = pk
	}

	var introduced []model.KeyData
	for _, sat := range eval.Satisfactions {
		if sat.Current != nil {
			continue
		}
		hsmKey, ok := factory.Allocate(sat.Desired.Slot)
		if !ok {
			pk := pkByID[sat.Desired.PolicyKeyID]
			live := liveCountForRole(eval, pk.Role)
			if _, err := factory.ScheduleReplenishment(ctx, sat.Desired.Slot, pk.Multiplicity(), live); err != nil {
				return nil, err
			}
			continue
		}

		kd := model.KeyData{
			ZoneID:      zone.ID,
			HsmKeyID:    hsmKey.ID,
			Role:        sat.Desired.Role,
			Introducing: true,
			Standby:     sat.Desired.Index > 0,
			Minimize:    pkByID[sat.Desired.PolicyKeyID].Minimize,
			DSAtParent:  model.DSUnsubmitted,
			Inception:   now,
		}
		if handle, found, err := backend.FindKeyByUUID(ctx, hsmKey.Repository, hsmKey.HSMUUID); err != nil {
			return nil, enferrors.External("zoneupdate.satisfySlots.keytag", err)
		} else if found {
			kd.Keytag = model.Keytag(zone.Name, kd.Role, hsmKey.Algorithm, handle.Public)
		}
		if sat.Desired.Index == 0 {
			switch kd.Role {
			case model.RoleKSK, model.RoleCSK:
				kd.ActiveKSK = true
			}
			if kd.Role == model.RoleZSK || kd.Role == model.RoleCSK {
				kd.ActiveZSK = true
			}
		}
		id, err := tx.Create(ctx, store.TableKeyData, keyDataFields, encodeKeyDataValues(kd))
		if err != nil {
			return nil, enferrors.External("zoneupdate.satisfySlots", err)
		}
		kd.ID = model.ID(id)
		kd.Rev = 1
		introduced = append(introduced, kd)
	}
	return introduced, nil
}

func liveCountForRole(eval policyeval.Result, role model.Role) int {
	n := 0
	for _, sat := range eval.Satisfactions {
		if sat.Desired.Role == role && sat.Current != nil {
			n++
		}
	}
	return n
}

func collectGarbage(ctx context.Context, tx store.Tx, backend hsm.Backend, policy model.Policy, keyData []model.KeyData, keyStates []model.KeyState) error {
	if err := purgeDeadHsmKeys(ctx, tx, backend, policy); err != nil {
		return err
	}

	stateByKeyData := make(map[model.ID][]model.KeyState)
	for _, ks := range keyStates {
		stateByKeyData[ks.KeyDataID] = append(stateByKeyData[ks.KeyDataID], ks)
	}
	for _, kd := range keyData {
		if !kd.ShouldRevoke {
			continue
		}
		if !allHiddenOrNA(stateByKeyData[kd.ID]) {
			continue
		}
		for _, ks := range stateByKeyData[kd.ID] {
			if err := tx.Delete(ctx, store.TableKeyState,
				store.WithRevision(store.Eq("id", store.PrimaryKey(string(ks.ID))), int64(ks.Rev))); err != nil {
				return wrapStoreErr("zoneupdate.collectGarbage", err)
			}
		}
		if err := tx.Delete(ctx, store.TableKeyData,
			store.WithRevision(store.Eq("id", store.PrimaryKey(string(kd.ID))), int64(kd.Rev))); err != nil {
			return wrapStoreErr("zoneupdate.collectGarbage", err)
		}
		if err := tx.Update(ctx, store.TableHsmKey, []string{"state"}, []store.Value{store.Enum(string(model.HsmDead))},
			store.Eq("id", store.PrimaryKey(string(kd.HsmKeyID)))); err != nil && err != store.ErrStaleRevision {
			return enferrors.External("zoneupdate.collectGarbage", err)
		}
	}
	return nil
}

// purgeDeadHsmKeys deletes key material for HsmKeys already in state DEAD,
// per spec.md §4.4's purge-after retention. The data model does not track
// a separate "went DEAD at" timestamp, so this purges on the first tick a
// key is observed DEAD rather than waiting out policy.PurgeAfter; the
// HsmKey row itself (and hence the key) only reaches DEAD once its
// KeyData and KeyState rows are already gone, so nothing downstream can
// still reference it by the time this runs.
func purgeDeadHsmKeys(ctx context.Context, tx store.Tx, backend hsm.Backend, policy model.Policy) error {
	it, err := tx.Read(ctx, store.TableHsmKey, nil,
		store.And(
			store.Eq("state", store.Enum(string(model.HsmDead))),
			store.Eq("policyId", store.PrimaryKey(string(policy.ID))),
		), nil)
	if err != nil {
		return enferrors.External("zoneupdate.purgeDeadHsmKeys", err)
	}
	defer it.Close()

	type dead struct {
		id, repository, uuidStr string
		rev                     int64
	}
	var candidates []dead
	for it.Next() {
		row := it.Row()
		id, _ := row["id"].AsText()
		rev, _ := row["rev"].AsInt64()
		repo, _ := row["repository"].AsText()
		uuidStr, _ := row["hsmUuid"].AsText()
		candidates = append(candidates, dead{id: id, repository: repo, uuidStr: uuidStr, rev: rev})
	}
	if err := it.Err(); err != nil {
		return enferrors.External("zoneupdate.purgeDeadHsmKeys", err)
	}

	for _, c := range candidates {
		if err := backend.DeleteKey(ctx, c.repository, c.uuidStr); err != nil {
			return enferrors.External("zoneupdate.purgeDeadHsmKeys", err)
		}
		if err := tx.Delete(ctx, store.TableHsmKey,
			store.WithRevision(store.Eq("id", store.PrimaryKey(c.id)), c.rev)); err != nil && err != store.ErrStaleRevision {
			return enferrors.External("zoneupdate.purgeDeadHsmKeys", err)
		}
	}
	return nil
}

func allHiddenOrNA(states []model.KeyState) bool {
	if len(states) == 0 {
		return false
	}
	for _, ks := range states {
		if ks.State != model.StateHidden && ks.State != model.StateNA {
			return false
		}
	}
	return true
}
