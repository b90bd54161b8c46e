package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bringyour/kvbroker/internal/document"
)

func TestFileTreeRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ft, err := NewFileTree(dir)
	require.NoError(t, err)
	defer ft.Close()

	v := document.NewObject(map[string]document.Value{"total": document.NewNumber(7)})
	_, err = ft.Set(ctx, "cart", "u1", v, nil)
	require.NoError(t, err)

	if _, err := os.Stat(filepath.Join(dir, "cart_u1.json")); err != nil {
		t.Fatalf("expected file cart_u1.json to exist: %v", err)
	}

	got, err := ft.Get(ctx, "cart", "u1", nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(got))
}

func TestFileTreeDeleteUnlinksFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ft, err := NewFileTree(dir)
	require.NoError(t, err)
	defer ft.Close()

	_, err = ft.Set(ctx, "cart", "u1", document.NewNumber(1), nil)
	require.NoError(t, err)
	_, err = ft.Delete(ctx, "cart", "u1", nil)
	require.NoError(t, err)

	if _, err := os.Stat(filepath.Join(dir, "cart_u1.json")); !os.IsNotExist(err) {
		t.Fatal("expected file to be removed")
	}

	v, err := ft.Get(ctx, "cart", "u1", nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestFileTreeQueryFiltersByPrefixAndPredicate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ft, err := NewFileTree(dir)
	require.NoError(t, err)
	defer ft.Close()

	_, _ = ft.Set(ctx, "cart", "u1", document.NewObject(map[string]document.Value{"x": document.NewNumber(1)}), nil)
	_, _ = ft.Set(ctx, "cart", "u2", document.NewObject(map[string]document.Value{"x": document.NewNumber(2)}), nil)
	_, _ = ft.Set(ctx, "other", "u1", document.NewObject(map[string]document.Value{"x": document.NewNumber(1)}), nil)

	rows, err := ft.Query(ctx, "cart", map[string]document.Value{"x": document.NewNumber(1)}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0].Key)
}
