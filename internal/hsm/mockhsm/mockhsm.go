// Package mockhsm is an in-memory hsm.Backend for local operation, demos
// and tests. It generates no real cryptographic material; the "public key"
// bytes are a deterministic placeholder derived from the handle's UUID.
package mockhsm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johanix/keyenforcer/internal/hsm"
)

// Backend is a goroutine-safe in-memory key store.
type Backend struct {
	mu    sync.Mutex
	repos map[string]bool
	keys  map[string]map[string]hsm.KeyHandle // repository -> uuid -> handle
}

// New constructs a Backend with the given repository names pre-registered.
func New(repositories ...string) *Backend {
	b := &Backend{
		repos: make(map[string]bool, len(repositories)),
		keys:  make(map[string]map[string]hsm.KeyHandle),
	}
	for _, r := range repositories {
		b.repos[r] = true
		b.keys[r] = make(map[string]hsm.KeyHandle)
	}
	return b
}

func (b *Backend) ListRepositories(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.repos))
	for r := range b.repos {
		out = append(out, r)
	}
	return out, nil
}

func (b *Backend) FindKeyByUUID(ctx context.Context, repository, id string) (hsm.KeyHandle, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	repo, ok := b.keys[repository]
	if !ok {
		return hsm.KeyHandle{}, false, nil
	}
	h, ok := repo[id]
	return h, ok, nil
}

func (b *Backend) GenerateKey(ctx context.Context, repository string, algorithm uint8, bits int) (hsm.KeyHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.repos[repository] {
		return hsm.KeyHandle{}, fmt.Errorf("mockhsm: unknown repository %q", repository)
	}
	id := uuid.NewString()
	sum := sha256.Sum256([]byte(id))
	h := hsm.KeyHandle{
		UUID:       id,
		Repository: repository,
		Algorithm:  algorithm,
		Bits:       bits,
		KeyType:    "mock",
		Public:     sum[:],
		Created:    time.Now(),
	}
	b.keys[repository][id] = h
	return h, nil
}

func (b *Backend) DeleteKey(ctx context.Context, repository, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	repo, ok := b.keys[repository]
	if !ok {
		return nil
	}
	delete(repo, id)
	return nil
}
