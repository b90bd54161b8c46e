package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTableTakeIsSingleOwner(t *testing.T) {
	table := newPendingTable()
	p := table.register(1)

	first, ok := table.take(1)
	require.True(t, ok)
	assert.Same(t, p, first)

	_, ok = table.take(1)
	assert.False(t, ok, "a second take for the same requestId must not see the entry again")
}

func TestPendingTableDrainAllClearsTable(t *testing.T) {
	table := newPendingTable()
	table.register(1)
	table.register(2)

	drained := table.drainAll()
	assert.Len(t, drained, 2)

	_, ok := table.take(1)
	assert.False(t, ok)

	empty := table.drainAll()
	assert.Empty(t, empty)
}

func TestPendingRequestCompleteUnblocksDone(t *testing.T) {
	p := &pendingRequest{done: make(chan struct{})}
	go p.complete([]byte(`{"ok":true}`), nil)
	<-p.done
	assert.Equal(t, `{"ok":true}`, string(p.data))
	assert.NoError(t, p.err)
}
