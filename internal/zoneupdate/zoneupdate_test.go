package zoneupdate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/johanix/keyenforcer/internal/hsm/mockhsm"
	"github.com/johanix/keyenforcer/internal/keyfactory"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/store"
	"github.com/johanix/keyenforcer/internal/store/sqlitestore"
)

func testPolicy() model.Policy {
	return model.Policy{
		Name:                 "default",
		ZonePropagationDelay: 60,
		PublishSafety:        60,
		RetireSafety:         60,
		ParentPropagationDelay: 60,
		ParentDSTTL:            60,
		KeyTTL:                 3600,
		ValidityDefault:        3600,
		Denial:                 model.DenialPolicy{Type: model.DenialNSEC},
	}
}

// TestUpdateAllocatesKeyAndWritesSignconf exercises one full zoneupdate.Update
// pass end to end against a real sqlitestore and mockhsm: the first tick
// only schedules HSM replenishment (the factory's free list starts empty),
// the second tick consumes the now-available free key, creates a KeyData,
// runs it to RUMOURED and writes the signer configuration.
func TestUpdateAllocatesKeyAndWritesSignconf(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitestore.Open(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	policy := testPolicy()
	policyID, err := db.Create(ctx, store.TablePolicy, policyFields, encodePolicyValues(policy))
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	policy.ID = model.ID(policyID)

	signconfPath := filepath.Join(t.TempDir(), "signconf.json")
	zone := model.Zone{Name: "example.com.", PolicyID: policy.ID, SignconfPath: signconfPath}
	zoneID, err := db.Create(ctx, store.TableZone, zoneFields, encodeZoneValues(zone))
	if err != nil {
		t.Fatalf("create zone: %v", err)
	}

	pk := model.PolicyKey{PolicyID: policy.ID, Role: model.RoleZSK, Algorithm: 8, Bits: 2048, Repository: "default"}
	if _, err := db.Create(ctx, store.TablePolicyKey, policyKeyFields, []store.Value{
		store.PrimaryKey(string(pk.PolicyID)), store.Enum(string(pk.Role)), store.Uint32(uint32(pk.Algorithm)),
		store.Int64(int64(pk.Bits)), store.Uint32(pk.Lifetime), store.Text(pk.Repository),
		store.Int64(int64(pk.Standby)), store.Uint32(0), store.Uint32(0), store.Uint32(uint32(pk.Minimize)),
	}); err != nil {
		t.Fatalf("create policyKey: %v", err)
	}

	backend := mockhsm.New("default")
	factory, err := keyfactory.New(ctx, db, backend)
	if err != nil {
		t.Fatalf("keyfactory.New: %v", err)
	}

	now := time.Now()
	if _, err := Update(ctx, db, factory, backend, model.ID(zoneID), now); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	tx0 := mustBegin(t, db)
	got, err := loadKeyData(ctx, tx0, model.ID(zoneID))
	tx0.Rollback()
	if err != nil {
		t.Fatalf("loadKeyData after first tick: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no KeyData yet after the first tick (factory free list was empty), got %d", len(got))
	}

	next, err := Update(ctx, db, factory, backend, model.ID(zoneID), now.Add(time.Second))
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if !next.After(now) {
		t.Fatalf("next wakeup = %v, want after %v", next, now)
	}

	tx := mustBegin(t, db)
	keyData, err := loadKeyData(ctx, tx, model.ID(zoneID))
	if err != nil {
		t.Fatalf("loadKeyData: %v", err)
	}
	tx.Rollback()
	if len(keyData) != 1 {
		t.Fatalf("KeyData count = %d, want 1", len(keyData))
	}
	if keyData[0].Keytag == 0 {
		t.Fatal("expected a nonzero keytag computed from the HSM public key")
	}
	if !keyData[0].Introducing {
		t.Fatal("expected the newly introduced key to have Introducing set")
	}

	tx = mustBegin(t, db)
	states, err := loadKeyStatesFor(ctx, tx, keyData)
	tx.Rollback()
	if err != nil {
		t.Fatalf("loadKeyStatesFor: %v", err)
	}
	for _, ks := range states {
		if ks.State != model.StateRumoured {
			t.Fatalf("KeyState %s for %s = %v, want RUMOURED (Introducing fires same tick)", ks.Type, ks.KeyDataID, ks.State)
		}
	}

	if _, err := os.Stat(signconfPath); err != nil {
		t.Fatalf("expected signconf written to %s: %v", signconfPath, err)
	}
}

func mustBegin(t *testing.T, db store.Store) store.Tx {
	t.Helper()
	tx, err := db.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return tx
}
