package keyfactory

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/johanix/keyenforcer/internal/hsm"
)

// mockBackend is a testify/mock hsm.Backend, grounded on the teacher's
// music/mocks.MockUpdater pattern (embed mock.Mock, record calls via
// m.Called, type-assert the configured return). Used where a test needs
// to assert exactly how many times, and with what arguments, the factory
// called into the HSM rather than just observing the resulting free list.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ListRepositories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var repos []string
	if r := args.Get(0); r != nil {
		repos = r.([]string)
	}
	return repos, args.Error(1)
}

func (m *mockBackend) FindKeyByUUID(ctx context.Context, repository, uuid string) (hsm.KeyHandle, bool, error) {
	args := m.Called(ctx, repository, uuid)
	var handle hsm.KeyHandle
	if h := args.Get(0); h != nil {
		handle = h.(hsm.KeyHandle)
	}
	return handle, args.Bool(1), args.Error(2)
}

func (m *mockBackend) GenerateKey(ctx context.Context, repository string, algorithm uint8, bits int) (hsm.KeyHandle, error) {
	args := m.Called(ctx, repository, algorithm, bits)
	var handle hsm.KeyHandle
	if h := args.Get(0); h != nil {
		handle = h.(hsm.KeyHandle)
	}
	return handle, args.Error(1)
}

func (m *mockBackend) DeleteKey(ctx context.Context, repository, uuid string) error {
	args := m.Called(ctx, repository, uuid)
	return args.Error(0)
}
