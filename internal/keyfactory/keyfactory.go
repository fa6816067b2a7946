// Package keyfactory is the HSM key factory of spec.md §4.4: it keeps a
// free list of pregenerated, UNUSED HsmKeys per slot and replenishes that
// list against policy-driven requirements, so the zone update loop never
// blocks on HSM key generation latency.
package keyfactory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/johanix/keyenforcer/internal/enferrors"
	"github.com/johanix/keyenforcer/internal/hsm"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/store"
)

// LookAhead is the number of extra keys per slot the factory tries to keep
// pregenerated beyond the policy's required standby count, absorbing HSM
// generation latency without stalling a roll (spec.md §4.4).
const LookAhead = 1

// Factory owns the free list and talks to both the store (for HsmKey
// bookkeeping) and the HSM backend (for actual key generation).
type Factory struct {
	mu      sync.Mutex
	db      store.Store
	backend hsm.Backend
	free    map[model.Slot][]model.HsmKey
}

// New constructs a Factory and preloads its free list from every HsmKey
// currently in state UNUSED, grounded on the original hsm_key_factory_new's
// preload of unused keys into a linked free list (spec.md §4.4;
// DESIGN.md's internal/keyfactory entry).
func New(ctx context.Context, db store.Store, backend hsm.Backend) (*Factory, error) {
	f := &Factory{db: db, backend: backend, free: make(map[model.Slot][]model.HsmKey)}
	if err := f.reload(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Factory) reload(ctx context.Context) error {
	it, err := f.db.Read(ctx, store.TableHsmKey, nil, store.Eq("state", store.Enum(string(model.HsmUnused))), nil)
	if err != nil {
		return enferrors.External("keyfactory.reload", err)
	}
	defer it.Close()
	for it.Next() {
		k, err := decodeHsmKey(it.Row())
		if err != nil {
			return enferrors.Configuration("keyfactory.reload", err)
		}
		f.free[k.Slot()] = append(f.free[k.Slot()], k)
	}
	return it.Err()
}

// Allocate removes and returns one free key matching slot, or ok=false if
// none is available — the caller (internal/policyeval's consumer in
// internal/zoneupdate) must then fall back to ScheduleReplenishment and
// retry on a later tick rather than block.
func (f *Factory) Allocate(slot model.Slot) (model.HsmKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.free[slot]
	if len(list) == 0 {
		return model.HsmKey{}, false
	}
	k := list[0]
	f.free[slot] = list[1:]
	return k, true
}

// ScheduleReplenishment computes the deficit for slot -- (required +
// LookAhead) - (free + live) -- and generates that many keys through the
// HSM backend, persisting each as an UNUSED HsmKey and adding it to the
// free list. required and live are supplied by the caller since only
// internal/policyeval and internal/zoneupdate know the zone's live key
// count for this slot.
func (f *Factory) ScheduleReplenishment(ctx context.Context, slot model.Slot, required, live int) (int, error) {
	if err := validate(slot); err != nil {
		return 0, enferrors.Configuration("keyfactory.ScheduleReplenishment", err)
	}

	f.mu.Lock()
	freeCount := len(f.free[slot])
	f.mu.Unlock()

	deficit := (required + LookAhead) - (freeCount + live)
	if deficit <= 0 {
		return 0, nil
	}

	generated := 0
	for i := 0; i < deficit; i++ {
		handle, err := f.backend.GenerateKey(ctx, slot.Repository, slot.Algorithm, slot.Bits)
		if err != nil {
			return generated, enferrors.External("keyfactory.ScheduleReplenishment", err)
		}
		k := model.HsmKey{
			Algorithm:  slot.Algorithm,
			Bits:       slot.Bits,
			Role:       slot.Role,
			Repository: slot.Repository,
			HSMUUID:    handle.UUID,
			Inception:  handle.Created,
			State:      model.HsmUnused,
			KeyType:    handle.KeyType,
			PolicyID:   slot.PolicyID,
		}
		id, err := f.db.Create(ctx, store.TableHsmKey, hsmKeyFields, hsmKeyValues(k))
		if err != nil {
			return generated, enferrors.External("keyfactory.ScheduleReplenishment", err)
		}
		k.ID = model.ID(id)
		k.Rev = 1

		f.mu.Lock()
		f.free[slot] = append(f.free[slot], k)
		f.mu.Unlock()
		generated++
	}
	return generated, nil
}

var hsmKeyFields = []string{
	"algorithm", "bits", "role", "repository", "hsmUuid", "inception",
	"state", "backup", "keyType", "policyId",
}

func hsmKeyValues(k model.HsmKey) []store.Value {
	return []store.Value{
		store.Uint32(uint32(k.Algorithm)),
		store.Int64(int64(k.Bits)),
		store.Enum(string(k.Role)),
		store.Text(k.Repository),
		store.Text(k.HSMUUID),
		store.Int64(k.Inception.Unix()),
		store.Enum(string(k.State)),
		store.Uint32(boolToUint32(k.Backup)),
		store.Text(k.KeyType),
		store.PrimaryKey(string(k.PolicyID)),
	}
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func decodeHsmKey(row store.Row) (model.HsmKey, error) {
	var k model.HsmKey
	id, _ := row["id"].AsText()
	k.ID = model.ID(id)
	rev, _ := row["rev"].AsInt64()
	k.Rev = model.Revision(rev)

	alg, _ := row["algorithm"].AsInt64()
	k.Algorithm = uint8(alg)
	bits, _ := row["bits"].AsInt64()
	k.Bits = int(bits)

	role, _ := row["role"].AsText()
	r, err := model.ParseRole(role)
	if err != nil {
		return k, err
	}
	k.Role = r

	repo, _ := row["repository"].AsText()
	k.Repository = repo
	uuidStr, _ := row["hsmUuid"].AsText()
	k.HSMUUID = uuidStr

	inc, _ := row["inception"].AsInt64()
	k.Inception = time.Unix(inc, 0).UTC()

	state, _ := row["state"].AsText()
	st, err := model.ParseHsmKeyState(state)
	if err != nil {
		return k, err
	}
	k.State = st

	backup, _ := row["backup"].AsInt64()
	k.Backup = backup != 0
	keyType, _ := row["keyType"].AsText()
	k.KeyType = keyType
	policyID, _ := row["policyId"].AsText()
	k.PolicyID = model.ID(policyID)

	return k, nil
}

// validate guards ScheduleReplenishment against a zero-valued Slot being
// used accidentally.
func validate(slot model.Slot) error {
	if slot.PolicyID == "" || slot.Repository == "" {
		return fmt.Errorf("keyfactory: incomplete slot %+v", slot)
	}
	return nil
}
