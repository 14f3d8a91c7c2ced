package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetSingleton() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		singleton.shutdownLocked()
	}
	singleton = nil
	singletonUsed = false
	mockRuntime = nil
}

func TestInitialize_IdempotentBeforeFirstAccess(t *testing.T) {
	resetSingleton()
	defer resetSingleton()

	cfg1 := DefaultConfig()
	cfg1.DiscoveryRoot = t.TempDir()
	_, err := Initialize(cfg1)
	require.NoError(t, err)

	cfg2 := DefaultConfig()
	cfg2.DiscoveryRoot = t.TempDir()
	rt2, err := Initialize(cfg2)
	require.NoError(t, err)

	assert.Same(t, rt2, Instance())
}

func TestInitialize_IgnoredAfterFirstAccess(t *testing.T) {
	resetSingleton()
	defer resetSingleton()

	cfg := DefaultConfig()
	cfg.DiscoveryRoot = t.TempDir()
	_, err := Initialize(cfg)
	require.NoError(t, err)

	first := Instance()

	cfg2 := DefaultConfig()
	cfg2.DiscoveryRoot = t.TempDir()
	second, err := Initialize(cfg2)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, Instance())
}

func TestInstance_LazyConstruction(t *testing.T) {
	resetSingleton()
	defer resetSingleton()

	rt := Instance()
	require.NotNil(t, rt)
	require.NotNil(t, rt.Facade())
}

func TestSetMockInstance(t *testing.T) {
	resetSingleton()
	defer resetSingleton()

	cfg := DefaultConfig()
	cfg.DiscoveryRoot = t.TempDir()
	real, err := Initialize(cfg)
	require.NoError(t, err)
	_ = real

	mock := &Runtime{}
	SetMockInstance(mock)
	assert.Same(t, mock, Instance())

	ClearMockInstance()
	assert.NotSame(t, mock, Instance())
}

func TestRuntime_SpawnAndClose(t *testing.T) {
	resetSingleton()
	defer resetSingleton()

	cfg := DefaultConfig()
	cfg.DiscoveryRoot = t.TempDir()
	rt, err := Initialize(cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	rt.Spawn(func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})

	require.NoError(t, rt.Close())
	<-done
}
