package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bringyour/kvbroker/internal/document"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v := document.NewObject(map[string]document.Value{
		"total": document.NewNumber(0),
	})
	_, err := m.Set(ctx, "cart", "u1", v, nil)
	assert.NoError(t, err)

	got, err := m.Get(ctx, "cart", "u1", nil)
	assert.NoError(t, err)
	assert.True(t, v.Equal(got))

	missing, err := m.Get(ctx, "cart", "u2", nil)
	assert.NoError(t, err)
	assert.True(t, missing.IsNull())
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Delete(ctx, "cart", "missing", nil)
	assert.NoError(t, err)

	_, err = m.Set(ctx, "cart", "u1", document.NewNumber(1), nil)
	assert.NoError(t, err)
	_, err = m.Delete(ctx, "cart", "u1", nil)
	assert.NoError(t, err)
	_, err = m.Delete(ctx, "cart", "u1", nil)
	assert.NoError(t, err)

	v, err := m.Get(ctx, "cart", "u1", nil)
	assert.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestMemoryQueryConjunctiveEquality(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, _ = m.Set(ctx, "c", "k1", document.NewObject(map[string]document.Value{"x": document.NewNumber(1), "y": document.NewString("a")}), nil)
	_, _ = m.Set(ctx, "c", "k2", document.NewObject(map[string]document.Value{"x": document.NewNumber(1), "y": document.NewString("b")}), nil)
	_, _ = m.Set(ctx, "c", "k3", document.NewObject(map[string]document.Value{"x": document.NewNumber(2)}), nil)

	rows, err := m.Query(ctx, "c", map[string]document.Value{"x": document.NewNumber(1)}, nil)
	assert.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "k1", rows[0].Key)
	assert.Equal(t, "k2", rows[1].Key)
}

func TestMemoryQueryStableInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"z", "a", "m"} {
		_, _ = m.Set(ctx, "c", k, document.NewObject(nil), nil)
	}
	rows, err := m.Query(ctx, "c", nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, keysOf(rows))
}

func keysOf(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}
