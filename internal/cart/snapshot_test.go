package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	l := NewLedger(testCatalog())
	require.NoError(t, l.AddItem("p2", 3))
	require.NoError(t, l.AddItem("p1", 1))

	blob := l.Snapshot()

	restored := NewLedger(testCatalog())
	dropped, err := restored.Restore(blob)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Equal(t, l.Items(), restored.Items())
}

func TestRestore_DropsVanishedProducts(t *testing.T) {
	l := NewLedger(testCatalog())
	require.NoError(t, l.AddItem("p1", 2))
	require.NoError(t, l.AddItem("p3", 1))
	blob := l.Snapshot()

	// A newer catalog no longer carries p3.
	newer := testCatalog()
	newer.Products = newer.Products[:2]

	restored := NewLedger(newer)
	dropped, err := restored.Restore(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, dropped)
	assert.Equal(t, []LineItem{{ProductID: "p1", Quantity: 2}}, restored.Items())
}

func TestRestore_ReplacesExistingState(t *testing.T) {
	l := NewLedger(testCatalog())
	require.NoError(t, l.AddItem("p1", 2))
	blob := l.Snapshot()

	restored := NewLedger(testCatalog())
	require.NoError(t, restored.AddItem("p2", 9))
	_, err := restored.Restore(blob)
	require.NoError(t, err)
	assert.Equal(t, []LineItem{{ProductID: "p1", Quantity: 2}}, restored.Items())
}

func TestRestore_BadBlob(t *testing.T) {
	l := NewLedger(testCatalog())

	_, err := l.Restore([]byte("not json"))
	require.Error(t, err)

	_, err = l.Restore([]byte(`{"version":99,"items":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}
