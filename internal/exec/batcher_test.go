package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/plan"
)

func diamondPlan(t *testing.T) *plan.Plan {
	t.Helper()
	p, err := plan.NewBuilder().Module("Mod", func(m *plan.ModuleBuilder) error {
		a := m.Contract("A", nil)
		b := m.Contract("B", nil)
		c := m.Call(a, "setup", []any{b})
		m.Call(a, "finish", nil, plan.After(c), plan.WithID("check"))
		return nil
	})
	require.NoError(t, err)
	return p
}

func TestBatchesWaves(t *testing.T) {
	batches, err := Batches(diamondPlan(t), nil)
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Equal(t, []string{"Mod#A", "Mod#B"}, batches[0])
	assert.Equal(t, []string{"Mod#A_setup"}, batches[1])
	assert.Equal(t, []string{"Mod#check"}, batches[2])
}

func TestBatchesSkipTerminalStates(t *testing.T) {
	state := &journal.DeploymentState{
		ExecutionStates: map[string]*journal.ExecutionState{
			"Mod#A": {ID: "Mod#A", Status: journal.StatusSuccess},
			"Mod#B": {ID: "Mod#B", Status: journal.StatusFailed},
		},
	}

	batches, err := Batches(diamondPlan(t), state)
	require.NoError(t, err)

	// Terminal futures are out regardless of outcome; whether their
	// dependents may actually run is decided at execution time.
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"Mod#A_setup"}, batches[0])
	assert.Equal(t, []string{"Mod#check"}, batches[1])
}

func TestBatchesStartedStateStillScheduled(t *testing.T) {
	state := &journal.DeploymentState{
		ExecutionStates: map[string]*journal.ExecutionState{
			"Mod#A": {ID: "Mod#A", Status: journal.StatusStarted},
		},
	}

	batches, err := Batches(diamondPlan(t), state)
	require.NoError(t, err)
	require.NotEmpty(t, batches)
	assert.Contains(t, batches[0], "Mod#A")
}

func TestBatchesEmptyWhenEverythingIsDone(t *testing.T) {
	state := &journal.DeploymentState{
		ExecutionStates: map[string]*journal.ExecutionState{
			"Mod#A":       {Status: journal.StatusSuccess},
			"Mod#B":       {Status: journal.StatusSuccess},
			"Mod#A_setup": {Status: journal.StatusSuccess},
			"Mod#check":   {Status: journal.StatusSuccess},
		},
	}

	batches, err := Batches(diamondPlan(t), state)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
