package exec

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/plan"
)

var (
	reconcileAccounts = []common.Address{
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	}
	reconcileSender = reconcileAccounts[0]
)

func reconcilePlan(t *testing.T) *plan.Plan {
	t.Helper()
	p, err := plan.NewBuilder().Module("Mod", func(m *plan.ModuleBuilder) error {
		token := m.Contract("Token", []any{m.Param("supply", "1000")})
		m.Call(token, "transfer", []any{m.Account(1), "50"})
		return nil
	})
	require.NoError(t, err)
	return p
}

// recordJournal replays what a successful run of the plan would have left in
// the journal, resolved against the given parameters.
func recordJournal(t *testing.T, p *plan.Plan, strategy Strategy, params plan.DeploymentParameters) *journal.DeploymentState {
	t.Helper()

	state := &journal.DeploymentState{
		ChainID:         31337,
		ExecutionStates: map[string]*journal.ExecutionState{},
	}
	r := &resolver{
		state:         state,
		params:        params,
		accounts:      reconcileAccounts,
		defaultSender: reconcileSender,
	}

	for _, f := range p.AllFutures() {
		es, err := resolveDefinition(f, r)
		require.NoError(t, err)
		es.ID = f.ID()
		es.Status = journal.StatusSuccess
		es.Strategy = strategy.Name()
		es.StrategyConfig = strategy.Config()
		es.Dependencies = dependencyIDs(f)
		switch f.Type() {
		case plan.FutureTypeContractDeployment, plan.FutureTypeLibraryDeployment:
			address := common.BigToAddress(common.Big1)
			es.ContractAddress = &address
		}
		state.ExecutionStates[es.ID] = es
	}
	return state
}

func TestReconcileUnchangedPlan(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)

	verdict := Reconcile(p, state, BasicStrategy{}, nil, reconcileAccounts, reconcileSender)
	assert.True(t, verdict.OK())
	assert.Empty(t, verdict.Mismatches)
	assert.Empty(t, verdict.PreviousRuns)
}

func TestReconcileEmptyJournal(t *testing.T) {
	verdict := Reconcile(reconcilePlan(t), nil, BasicStrategy{}, nil, reconcileAccounts, reconcileSender)
	assert.True(t, verdict.OK())
}

func TestReconcileChangedParameterFlagsOneFuture(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)

	changed := plan.DeploymentParameters{"Mod": {"supply": "2000"}}
	verdict := Reconcile(p, state, BasicStrategy{}, changed, reconcileAccounts, reconcileSender)

	require.Len(t, verdict.Mismatches, 1)
	assert.Equal(t, "Mod#Token", verdict.Mismatches[0].FutureID)
	assert.Contains(t, verdict.Mismatches[0].Message, "resolved definition changed")
}

func TestReconcileChangedDefaultSender(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)

	verdict := Reconcile(p, state, BasicStrategy{}, nil, reconcileAccounts, reconcileAccounts[1])
	assert.False(t, verdict.OK())
	for _, mismatch := range verdict.Mismatches {
		assert.Contains(t, mismatch.Message, "resolved definition changed")
	}
}

func TestReconcileStrategyChanged(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)

	create2, err := NewCreate2Strategy(map[string]string{"factory": testFactory, "salt": testSalt})
	require.NoError(t, err)

	verdict := Reconcile(p, state, create2, nil, reconcileAccounts, reconcileSender)
	require.NotEmpty(t, verdict.Mismatches)
	assert.Contains(t, verdict.Mismatches[0].Message, "strategy changed")
}

func TestReconcileFailedAndTimedOutNeedWipe(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)
	state.ExecutionStates["Mod#Token"].Status = journal.StatusFailed
	state.ExecutionStates["Mod#Token_transfer"].Status = journal.StatusTimeout

	verdict := Reconcile(p, state, BasicStrategy{}, nil, reconcileAccounts, reconcileSender)
	require.Len(t, verdict.PreviousRuns, 2)
	assert.Contains(t, verdict.PreviousRuns[0].Message, "failed in a previous run")
	assert.Contains(t, verdict.PreviousRuns[1].Message, "timed out in a previous run")
	assert.False(t, verdict.OK())
}

func TestReconcileDanglingJournalState(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)
	state.ExecutionStates["Mod#ghost"] = &journal.ExecutionState{
		ID:     "Mod#ghost",
		Status: journal.StatusSuccess,
	}

	verdict := Reconcile(p, state, BasicStrategy{}, nil, reconcileAccounts, reconcileSender)
	require.Len(t, verdict.Mismatches, 1)
	assert.Equal(t, "Mod#ghost", verdict.Mismatches[0].FutureID)
	assert.Contains(t, verdict.Mismatches[0].Message, "missing from the plan")
}

func TestReconcileChangedDependencies(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)
	state.ExecutionStates["Mod#Token_transfer"].Dependencies = []string{"Mod#Token", "Mod#Other"}

	verdict := Reconcile(p, state, BasicStrategy{}, nil, reconcileAccounts, reconcileSender)
	require.Len(t, verdict.Mismatches, 1)
	assert.Equal(t, "Mod#Token_transfer", verdict.Mismatches[0].FutureID)
	assert.Contains(t, verdict.Mismatches[0].Message, "dependencies changed")
}

func TestReconcileTypeChanged(t *testing.T) {
	p := reconcilePlan(t)
	state := recordJournal(t, p, BasicStrategy{}, nil)
	state.ExecutionStates["Mod#Token"].FutureType = plan.FutureTypeContractAt

	verdict := Reconcile(p, state, BasicStrategy{}, nil, reconcileAccounts, reconcileSender)
	require.NotEmpty(t, verdict.Mismatches)
	assert.Contains(t, verdict.Mismatches[0].Message, "type changed")
}
