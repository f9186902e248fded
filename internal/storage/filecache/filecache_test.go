package filecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amberlow/catalink/internal/resolver"
)

func TestSaveLoad(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	entry := &resolver.CacheEntry{
		Version:    resolver.CacheEntryVersion,
		ClientID:   "cust-1042",
		ResolvedAt: time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC),
		Transport:  "CAT1.H4sIAAAA.00000000",
	}
	require.NoError(t, s.Save(ctx, entry))

	got, err := s.Load(ctx, "cust-1042")
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestLoad_Miss(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, resolver.ErrCacheMiss)
}

func TestSave_Overwrites(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first := &resolver.CacheEntry{
		Version: resolver.CacheEntryVersion, ClientID: "c1",
		ResolvedAt: time.Unix(1_700_000_000, 0).UTC(), Transport: "CAT1.old.0",
	}
	second := &resolver.CacheEntry{
		Version: resolver.CacheEntryVersion, ClientID: "c1",
		ResolvedAt: time.Unix(1_800_000_000, 0).UTC(), Transport: "CAT1.new.0",
	}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "CAT1.new.0", got.Transport)
}

func TestPathTraversalNeutralized(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	entry := &resolver.CacheEntry{
		Version: resolver.CacheEntryVersion, ClientID: "../../etc/passwd",
		ResolvedAt: time.Unix(1_700_000_000, 0).UTC(), Transport: "CAT1.x.0",
	}
	require.NoError(t, s.Save(ctx, entry))

	// Everything stays inside dir.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(entries[0].Name()), entries[0].Name())

	got, err := s.Load(ctx, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "CAT1.x.0", got.Transport)
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	entry := &resolver.CacheEntry{
		Version: 99, ClientID: "c1",
		ResolvedAt: time.Unix(1_700_000_000, 0).UTC(), Transport: "CAT1.x.0",
	}
	require.NoError(t, s.Save(ctx, entry))

	_, err = s.Load(ctx, "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}
