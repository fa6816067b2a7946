package sqlitestore

import (
	"context"
	"testing"

	"github.com/johanix/keyenforcer/internal/store"
)

func TestCreateReadUpdateDelete(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	fields := []string{
		"policyId", "role", "algorithm", "bits", "lifetime", "repository",
		"standby", "manualRollover", "rfc5011", "minimize",
	}
	values := []store.Value{
		store.PrimaryKey("p1"), store.Enum("KSK"), store.Uint32(8), store.Int64(2048),
		store.Uint32(0), store.Text("default"), store.Int64(0), store.Uint32(0),
		store.Uint32(0), store.Uint32(0),
	}
	id, err := db.Create(ctx, store.TablePolicyKey, fields, values)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	it, err := db.Read(ctx, store.TablePolicyKey, nil, store.Eq("id", store.PrimaryKey(id)), nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !it.Next() {
		t.Fatal("expected one row")
	}
	row := it.Row()
	rev, _ := row["rev"].AsInt64()
	if rev != 1 {
		t.Fatalf("rev = %d, want 1 on creation", rev)
	}
	role, _ := row["role"].AsText()
	if role != "KSK" {
		t.Fatalf("role = %q, want KSK", role)
	}
	it.Close()

	err = db.Update(ctx, store.TablePolicyKey, []string{"standby"}, []store.Value{store.Int64(1)},
		store.WithRevision(store.Eq("id", store.PrimaryKey(id)), rev))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.Update(ctx, store.TablePolicyKey, []string{"standby"}, []store.Value{store.Int64(2)},
		store.WithRevision(store.Eq("id", store.PrimaryKey(id)), rev)); err != store.ErrStaleRevision {
		t.Fatalf("Update with stale revision = %v, want ErrStaleRevision", err)
	}

	it, err = db.Read(ctx, store.TablePolicyKey, nil, store.Eq("id", store.PrimaryKey(id)), nil)
	if err != nil {
		t.Fatalf("Read after update: %v", err)
	}
	if !it.Next() {
		t.Fatal("expected one row after update")
	}
	row = it.Row()
	rev, _ = row["rev"].AsInt64()
	if rev != 2 {
		t.Fatalf("rev after update = %d, want 2", rev)
	}
	standby, _ := row["standby"].AsInt64()
	if standby != 1 {
		t.Fatalf("standby = %d, want 1", standby)
	}
	it.Close()

	count, err := db.Count(ctx, store.TablePolicyKey, nil, store.Eq("policyId", store.PrimaryKey("p1")))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count = %d, want 1", count)
	}

	if err := db.Delete(ctx, store.TablePolicyKey, store.Eq("id", store.PrimaryKey(id))); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	count, err = db.Count(ctx, store.TablePolicyKey, nil, store.Eq("policyId", store.PrimaryKey("p1")))
	if err != nil {
		t.Fatalf("Count after delete: %v", err)
	}
	if count != 0 {
		t.Fatalf("Count after delete = %d, want 0", count)
	}
}

func TestBeginCommitTransaction(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	id, err := tx.Create(ctx, store.TablePolicyKey,
		[]string{"policyId", "role", "algorithm", "bits", "lifetime", "repository", "standby", "manualRollover", "rfc5011", "minimize"},
		[]store.Value{store.PrimaryKey("p1"), store.Enum("ZSK"), store.Uint32(8), store.Int64(2048), store.Uint32(0), store.Text("default"), store.Int64(0), store.Uint32(0), store.Uint32(0), store.Uint32(0)})
	if err != nil {
		t.Fatalf("tx.Create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	count, err := db.Count(ctx, store.TablePolicyKey, nil, store.Eq("id", store.PrimaryKey(id)))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count after commit = %d, want 1", count)
	}
}
