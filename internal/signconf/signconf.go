// Package signconf serializes a zone's current key set and denial
// parameters to the JSON document the signer reads from zone.SignconfPath
// (spec.md §6). The signer's own consumption format and wire behavior are
// out of scope; this package owns only the core's side of writing it.
package signconf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johanix/keyenforcer/internal/model"
)

// Document is the versioned signer configuration document.
type Document struct {
	Version   int          `json:"version"`
	Zone      string       `json:"zone"`
	Generated time.Time    `json:"generated"`
	Denial    DenialConfig `json:"denial"`
	Keys      []KeyEntry   `json:"keys"`
}

// DenialConfig mirrors model.DenialPolicy for the signer's consumption.
type DenialConfig struct {
	Type           string `json:"type"`
	OptOut         bool   `json:"optOut,omitempty"`
	Iterations     uint16 `json:"iterations,omitempty"`
	SaltLength     uint8  `json:"saltLength,omitempty"`
	Algorithm      uint8  `json:"algorithm,omitempty"`
	Salt           string `json:"salt,omitempty"`
}

// KeyEntry describes one key the signer should use, along with which
// record types are currently wanted signed/present for it.
type KeyEntry struct {
	Role        string   `json:"role"`
	HsmKeyUUID  string   `json:"hsmKeyUuid"`
	Keytag      uint16   `json:"keytag"`
	Active      bool     `json:"active"`
	Introducing bool     `json:"introducing"`
	Retiring    bool     `json:"retiring"`
	Present     []string `json:"present"` // record types currently at least RUMOURED
}

const documentVersion = 1

// Build assembles a Document from a zone's current data-model view. hsmUUIDs
// maps KeyData.ID -> the bound HsmKey's HSMUUID, since KeyData itself only
// stores the foreign key.
func Build(zone model.Zone, denial model.DenialPolicy, keys []model.KeyData, states []model.KeyState, hsmUUIDs map[model.ID]string, now time.Time) Document {
	presentByKey := make(map[model.ID][]string)
	for _, ks := range states {
		if ks.State == model.StateHidden || ks.State == model.StateNA {
			continue
		}
		presentByKey[ks.KeyDataID] = append(presentByKey[ks.KeyDataID], string(ks.Type))
	}

	doc := Document{
		Version:   documentVersion,
		Zone:      zone.Name,
		Generated: now,
		Denial: DenialConfig{
			Type:       string(denial.Type),
			OptOut:     denial.OptOut,
			Iterations: denial.Iterations,
			SaltLength: denial.SaltLength,
			Algorithm:  denial.Algorithm,
			Salt:       denial.Salt,
		},
	}
	for _, kd := range keys {
		doc.Keys = append(doc.Keys, KeyEntry{
			Role:        string(kd.Role),
			HsmKeyUUID:  hsmUUIDs[kd.ID],
			Keytag:      kd.Keytag,
			Active:      kd.ActiveKSK || kd.ActiveZSK,
			Introducing: kd.Introducing,
			Retiring:    kd.ShouldRevoke,
			Present:     presentByKey[kd.ID],
		})
	}
	return doc
}

// Write renders doc as indented JSON and writes it atomically (write to a
// temp file in the same directory, then rename) to path, so a concurrent
// signer read never observes a partially written file.
func Write(path string, doc Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("signconf: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".signconf-*.tmp")
	if err != nil {
		return fmt.Errorf("signconf: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("signconf: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("signconf: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("signconf: rename into place: %w", err)
	}
	return nil
}
