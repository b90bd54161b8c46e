package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bringyour/kvbroker/internal/platform"
)

func TestRegistryResolvesUnrecognizedPlatformToItsOtherSlot(t *testing.T) {
	r := NewRegistry()
	mem := NewMemory()
	r.Bind(platform.Other, mem)

	for _, ua := range []string{"deno", "electron", "some-future-runtime"} {
		p := platform.Detect(ua, "")
		adapter, err := r.Resolve(p)
		require.NoError(t, err, "unrecognized platform %q should still resolve", ua)
		assert.Same(t, mem, adapter, "every unrecognized platform shares the Other slot regardless of its raw hint")
	}
}

func TestRegistryRebindOverridesThePriorAdapterForThatKind(t *testing.T) {
	r := NewRegistry()
	mem := NewMemory()
	bridge := NewHostBridge("localhost:6379")
	r.Bind(platform.Other, mem)
	r.Bind(platform.Other, bridge)

	adapter, err := r.Resolve(platform.Detect("some-unknown-client", ""))
	require.NoError(t, err)
	assert.Same(t, bridge, adapter, "rebinding Other (e.g. to enable the host-bridge adapter) must take effect for every raw hint, not just an empty one")
}

func TestHostBridgeReachableThroughOtherPlatformSlot(t *testing.T) {
	r := NewRegistry()
	bridge := NewHostBridge("localhost:6379")
	r.Bind(platform.Other, bridge)

	p := platform.Detect("electron", "")
	adapter, err := r.Resolve(p)
	require.NoError(t, err)
	require.Same(t, bridge, adapter)

	// confirm the resolved adapter is actually the host-bridge type, not a
	// look-alike memory adapter left over from a prior Bind.
	_, ok := adapter.(*HostBridge)
	assert.True(t, ok, "an 'other' session must reach the configured host-bridge adapter, not a substitute")

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = adapter.Get(ctx, "cart", "u1", nil)
	assert.Error(t, err, "the host-bridge adapter honours the already-expired context and fails, where the in-memory adapter (which ignores ctx) would succeed")
}
