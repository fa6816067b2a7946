package signconf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/johanix/keyenforcer/internal/model"
)

func TestBuildCollectsPresentRecordTypes(t *testing.T) {
	now := time.Now()
	zone := model.Zone{Entity: model.Entity{ID: "z1"}, Name: "example.com."}
	denial := model.DenialPolicy{Type: model.DenialNSEC3, Salt: "abcd"}
	kd := model.KeyData{Entity: model.Entity{ID: "kd1"}, Role: model.RoleKSK, ActiveKSK: true, Keytag: 12345}
	states := []model.KeyState{
		{KeyDataID: kd.ID, Type: model.RecordDNSKEY, State: model.StateOmnipresent},
		{KeyDataID: kd.ID, Type: model.RecordDS, State: model.StateHidden},
	}
	hsmUUIDs := map[model.ID]string{kd.ID: "hsm-uuid-1"}

	doc := Build(zone, denial, []model.KeyData{kd}, states, hsmUUIDs, now)

	if doc.Version != documentVersion {
		t.Fatalf("Version = %d, want %d", doc.Version, documentVersion)
	}
	if doc.Zone != "example.com." {
		t.Fatalf("Zone = %q", doc.Zone)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("Keys = %d, want 1", len(doc.Keys))
	}
	entry := doc.Keys[0]
	if entry.HsmKeyUUID != "hsm-uuid-1" || entry.Keytag != 12345 || !entry.Active {
		t.Fatalf("entry = %+v", entry)
	}
	if len(entry.Present) != 1 || entry.Present[0] != "DNSKEY" {
		t.Fatalf("Present = %v, want only DNSKEY (DS is HIDDEN)", entry.Present)
	}
}

func TestWriteRoundTripsAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signconf.json")
	doc := Document{Version: documentVersion, Zone: "example.com.", Generated: time.Now()}

	if err := Write(path, doc); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries after Write, want exactly the final file (no leftover temp file)", len(entries))
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got Document
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Zone != "example.com." {
		t.Fatalf("round-tripped Zone = %q", got.Zone)
	}
}
