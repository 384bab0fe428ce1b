package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	var state *DeploymentState
	for _, msg := range deploymentFlow(t, "Mod#token") {
		state, err = store.Apply(state, msg)
		require.NoError(t, err)
	}
	assert.Equal(t, StatusSuccess, state.ExecutionStates["Mod#token"].Status)

	// A fresh store over the same directory replays to the same state.
	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	replayed, err := reopened.Replay()
	require.NoError(t, err)
	assert.Equal(t, state, replayed)
}

func TestStoreReplayEmptyJournal(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	state, err := store.Replay()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStoreDurabilityPrecedesVisibility(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	// A message the reducer rejects must still have been written, because
	// the append happens first.
	_, err = store.Apply(nil, &Message{Type: MsgRunStart, RunID: "early"})
	require.Error(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "journal.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "RUN_START")
}

func TestStoreDeployedAddresses(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first := common.HexToAddress("0x1000000000000000000000000000000000000001")
	second := common.HexToAddress("0x1000000000000000000000000000000000000002")

	require.NoError(t, store.RecordDeployedAddress("Mod#a", first))
	require.NoError(t, store.RecordDeployedAddress("Mod#b", second))
	// Re-recording overwrites rather than duplicating.
	require.NoError(t, store.RecordDeployedAddress("Mod#a", first))

	addresses, err := store.DeployedAddresses()
	require.NoError(t, err)
	assert.Equal(t, map[string]common.Address{"Mod#a": first, "Mod#b": second}, addresses)
}
