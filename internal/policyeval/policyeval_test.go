package policyeval

import (
	"testing"
	"time"

	"github.com/johanix/keyenforcer/internal/model"
)

func TestEvaluateWantsKeyWhenNoneExist(t *testing.T) {
	policyID := model.ID("p1")
	pk := model.PolicyKey{
		Entity:    model.Entity{ID: "pk1"},
		PolicyID:  policyID,
		Role:      model.RoleKSK,
		Algorithm: 8,
		Bits:      2048,
		Lifetime:  0,
	}
	res := Evaluate(policyID, []model.PolicyKey{pk}, nil, time.Now())
	if len(res.Satisfactions) != 1 {
		t.Fatalf("Satisfactions = %d, want 1", len(res.Satisfactions))
	}
	if res.Satisfactions[0].Current != nil {
		t.Fatal("expected unsatisfied slot with no existing KeyData")
	}
}

func TestEvaluateSatisfiesWithExistingKey(t *testing.T) {
	policyID := model.ID("p1")
	pk := model.PolicyKey{Entity: model.Entity{ID: "pk1"}, PolicyID: policyID, Role: model.RoleZSK}
	now := time.Now()
	kd := model.KeyData{Entity: model.Entity{ID: "kd1"}, Role: model.RoleZSK, Inception: now.Add(-time.Hour)}

	res := Evaluate(policyID, []model.PolicyKey{pk}, []model.KeyData{kd}, now)
	if len(res.Satisfactions) != 1 || res.Satisfactions[0].Current == nil {
		t.Fatalf("expected the existing key to satisfy the slot")
	}
	if res.Satisfactions[0].Current.ID != kd.ID {
		t.Fatalf("satisfied by wrong key: %v", res.Satisfactions[0].Current.ID)
	}
	if len(res.Retiring) != 0 {
		t.Fatalf("Retiring = %v, want none", res.Retiring)
	}
}

func TestEvaluateRetiresKeyPastLifetime(t *testing.T) {
	policyID := model.ID("p1")
	pk := model.PolicyKey{Entity: model.Entity{ID: "pk1"}, PolicyID: policyID, Role: model.RoleZSK, Lifetime: 3600}
	now := time.Now()
	old := model.KeyData{Entity: model.Entity{ID: "kd-old"}, Role: model.RoleZSK, Inception: now.Add(-2 * time.Hour)}

	res := Evaluate(policyID, []model.PolicyKey{pk}, []model.KeyData{old}, now)
	if len(res.Retiring) != 1 || res.Retiring[0].ID != old.ID {
		t.Fatalf("Retiring = %v, want [%v]", res.Retiring, old.ID)
	}
	if res.Satisfactions[0].Current != nil {
		t.Fatal("expired key should not satisfy the slot; a successor should be wanted instead")
	}
}

func TestEvaluateStandbyMultiplicity(t *testing.T) {
	policyID := model.ID("p1")
	pk := model.PolicyKey{Entity: model.Entity{ID: "pk1"}, PolicyID: policyID, Role: model.RoleKSK, Standby: 1}
	res := Evaluate(policyID, []model.PolicyKey{pk}, nil, time.Now())
	if len(res.Satisfactions) != 2 {
		t.Fatalf("Satisfactions = %d, want 2 (active + 1 standby)", len(res.Satisfactions))
	}
}
