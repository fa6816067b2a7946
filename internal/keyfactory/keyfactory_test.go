package keyfactory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/johanix/keyenforcer/internal/hsm"
	"github.com/johanix/keyenforcer/internal/hsm/mockhsm"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/store/sqlitestore"
)

func TestScheduleReplenishmentFillsFreeList(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitestore.Open(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	backend := mockhsm.New("default")
	f, err := New(ctx, db, backend)
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}

	slot := model.Slot{PolicyID: "p1", Role: model.RoleZSK, Algorithm: 8, Bits: 2048, Repository: "default"}
	if _, ok := f.Allocate(slot); ok {
		t.Fatal("expected no free key before replenishment")
	}

	generated, err := f.ScheduleReplenishment(ctx, slot, 1, 0)
	if err != nil {
		t.Fatalf("ScheduleReplenishment: %v", err)
	}
	if generated != LookAhead+1 {
		t.Fatalf("generated = %d, want %d", generated, LookAhead+1)
	}

	k, ok := f.Allocate(slot)
	if !ok {
		t.Fatal("expected a key to be available after replenishment")
	}
	if k.State != model.HsmUnused {
		t.Fatalf("allocated key state = %v, want UNUSED", k.State)
	}
	if k.Repository != "default" {
		t.Fatalf("allocated key repository = %q", k.Repository)
	}
}

func TestScheduleReplenishmentNoDeficitIsNoop(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitestore.Open(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	f, err := New(ctx, db, mockhsm.New("default"))
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	slot := model.Slot{PolicyID: "p1", Role: model.RoleKSK, Algorithm: 8, Bits: 2048, Repository: "default"}

	generated, err := f.ScheduleReplenishment(ctx, slot, 1, 10)
	if err != nil {
		t.Fatalf("ScheduleReplenishment: %v", err)
	}
	if generated != 0 {
		t.Fatalf("generated = %d, want 0 when live count already covers requirement + look-ahead", generated)
	}
}

// TestScheduleReplenishmentCallsBackendExactlyForDeficit asserts the exact
// GenerateKey call count and arguments against a testify/mock Backend,
// rather than just observing the resulting free list, to pin down that
// ScheduleReplenishment never over- or under-generates against the
// deficit formula.
func TestScheduleReplenishmentCallsBackendExactlyForDeficit(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitestore.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	backend := &mockBackend{}
	slot := model.Slot{PolicyID: "p1", Role: model.RoleZSK, Algorithm: 8, Bits: 2048, Repository: "default"}
	for i := 0; i < 2; i++ {
		backend.On("GenerateKey", ctx, slot.Repository, slot.Algorithm, slot.Bits).
			Return(hsm.KeyHandle{UUID: fmt.Sprintf("uuid-%d", i), Repository: slot.Repository, Algorithm: slot.Algorithm, Bits: slot.Bits, KeyType: "RSA"}, nil).Once()
	}

	f, err := New(ctx, db, backend)
	require.NoError(t, err)

	generated, err := f.ScheduleReplenishment(ctx, slot, 1, 0)
	require.NoError(t, err)
	require.Equal(t, LookAhead+1, generated)
	backend.AssertExpectations(t)
	backend.AssertNumberOfCalls(t, "GenerateKey", LookAhead+1)
}
