// Package hsm defines the core's view of a hardware/software security
// module: enough surface for the key factory to list repositories,
// generate keys, find them by UUID and delete them. The PKCS#11 wire
// protocol itself is out of scope; Backend is what a concrete binding
// would implement.
package hsm

import (
	"context"
	"time"
)

// KeyHandle is the opaque reference a Backend hands back after generating
// or locating a key. The core never sees key material, only this handle.
type KeyHandle struct {
	UUID       string
	Repository string
	Algorithm  uint8
	Bits       int
	KeyType    string
	Public     []byte // DNSKEY-ready public key encoding, opaque to this package
	Created    time.Time
}

// Backend is the HSM-side collaborator of the key factory (internal/keyfactory).
type Backend interface {
	// ListRepositories reports the names of configured HSM repositories
	// this backend can generate keys into.
	ListRepositories(ctx context.Context) ([]string, error)

	// FindKeyByUUID looks up a previously generated key. It returns
	// (KeyHandle{}, false, nil) if the UUID is unknown to this backend.
	FindKeyByUUID(ctx context.Context, repository, uuid string) (KeyHandle, bool, error)

	// GenerateKey creates a new asymmetric key pair in repository for the
	// given algorithm and bit length, returning its handle.
	GenerateKey(ctx context.Context, repository string, algorithm uint8, bits int) (KeyHandle, error)

	// DeleteKey permanently removes key material. The zone update loop
	// calls it for a HsmKey on the first tick it finds the key in the DEAD
	// state; it does not wait out the policy's purge-after window first.
	DeleteKey(ctx context.Context, repository, uuid string) error
}
