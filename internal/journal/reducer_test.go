package journal

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/chainplan/internal/plan"
)

func initMessage(id string, deps ...string) *Message {
	return &Message{
		Type: MsgExecutionStateInitialize,
		State: &ExecutionState{
			ID:           id,
			FutureType:   plan.FutureTypeContractDeployment,
			Strategy:     "basic",
			Status:       StatusStarted,
			Dependencies: deps,
			ContractName: "Token",
			From:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		},
	}
}

func deploymentFlow(t *testing.T, id string) []*Message {
	t.Helper()

	nonce := uint64(0)
	hash := common.HexToHash("0xaaaa")
	address := common.HexToAddress("0x2222222222222222222222222222222222222222")

	return []*Message{
		{Type: MsgDeploymentInitialize, ChainID: 31337},
		{Type: MsgRunStart, RunID: "run-1"},
		initMessage(id),
		{
			Type:     MsgNetworkInteractionRequest,
			FutureID: id,
			Interaction: &NetworkInteraction{
				ID:   1,
				Kind: InteractionOnchain,
				Data: []byte{0x60, 0x80},
			},
		},
		{
			Type:          MsgTransactionSend,
			FutureID:      id,
			InteractionID: 1,
			Nonce:         &nonce,
			Transaction:   &Transaction{Hash: hash},
		},
		{
			Type:          MsgTransactionConfirm,
			FutureID:      id,
			InteractionID: 1,
			Hash:          &hash,
			Receipt:       &Receipt{BlockNumber: 10, Status: 1, ContractAddress: &address},
		},
		{
			Type:     MsgExecutionStateComplete,
			FutureID: id,
			Result:   &ExecutionResult{Kind: ResultSuccess, Address: &address},
		},
	}
}

func TestReduceDeploymentFlow(t *testing.T) {
	state, err := ReduceAll(deploymentFlow(t, "Mod#token"))
	require.NoError(t, err)

	require.NotNil(t, state)
	assert.Equal(t, uint64(31337), state.ChainID)

	es := state.ExecutionStates["Mod#token"]
	require.NotNil(t, es)
	assert.Equal(t, StatusSuccess, es.Status)
	require.NotNil(t, es.ContractAddress)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), *es.ContractAddress)

	ni := es.LastInteraction()
	require.NotNil(t, ni)
	require.NotNil(t, ni.ConfirmedTransaction())
	assert.Equal(t, uint64(10), ni.ConfirmedTransaction().Receipt.BlockNumber)
}

func TestReduceReplayDeterminism(t *testing.T) {
	messages := deploymentFlow(t, "Mod#token")

	// Folding any prefix and then the rest must land on the same state as
	// one continuous fold.
	full, err := ReduceAll(messages)
	require.NoError(t, err)

	for split := 1; split < len(messages); split++ {
		state, err := ReduceAll(messages[:split])
		require.NoError(t, err)
		for _, msg := range messages[split:] {
			state, err = Reduce(state, msg)
			require.NoError(t, err)
		}
		assert.Equal(t, full, state, "split at %d diverged", split)
	}
}

func TestReduceTerminalStatusSticks(t *testing.T) {
	state, err := ReduceAll(deploymentFlow(t, "Mod#token"))
	require.NoError(t, err)

	_, err = Reduce(state, &Message{
		Type:     MsgExecutionStateComplete,
		FutureID: "Mod#token",
		Result:   &ExecutionResult{Kind: ResultRevert, Error: "nope"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal")
}

func TestReduceWipe(t *testing.T) {
	state, err := ReduceAll(deploymentFlow(t, "Mod#token"))
	require.NoError(t, err)

	state, err = Reduce(state, &Message{Type: MsgWipe, FutureID: "Mod#token"})
	require.NoError(t, err)
	assert.NotContains(t, state.ExecutionStates, "Mod#token")

	// A wiped future can be initialized again.
	state, err = Reduce(state, initMessage("Mod#token"))
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, state.ExecutionStates["Mod#token"].Status)

	_, err = Reduce(state, &Message{Type: MsgWipe, FutureID: "Mod#unknown"})
	assert.Error(t, err)
}

func TestReduceRejectsMalformedSequences(t *testing.T) {
	base := []*Message{
		{Type: MsgDeploymentInitialize, ChainID: 1},
		initMessage("Mod#a"),
	}

	t.Run("double deployment initialize", func(t *testing.T) {
		state, err := ReduceAll(base)
		require.NoError(t, err)
		_, err = Reduce(state, &Message{Type: MsgDeploymentInitialize, ChainID: 1})
		assert.Error(t, err)
	})

	t.Run("message before deployment initialize", func(t *testing.T) {
		_, err := Reduce(nil, initMessage("Mod#a"))
		assert.Error(t, err)
	})

	t.Run("double execution state initialize", func(t *testing.T) {
		state, err := ReduceAll(base)
		require.NoError(t, err)
		_, err = Reduce(state, initMessage("Mod#a"))
		assert.Error(t, err)
	})

	t.Run("initialize before dependency succeeded", func(t *testing.T) {
		state, err := ReduceAll(base)
		require.NoError(t, err)
		_, err = Reduce(state, initMessage("Mod#b", "Mod#a"))
		assert.Error(t, err)
	})

	t.Run("out of order interaction id", func(t *testing.T) {
		state, err := ReduceAll(base)
		require.NoError(t, err)
		_, err = Reduce(state, &Message{
			Type:        MsgNetworkInteractionRequest,
			FutureID:    "Mod#a",
			Interaction: &NetworkInteraction{ID: 2, Kind: InteractionOnchain},
		})
		assert.Error(t, err)
	})

	t.Run("nonce regression", func(t *testing.T) {
		state, err := ReduceAll(base)
		require.NoError(t, err)
		state, err = Reduce(state, &Message{
			Type:        MsgNetworkInteractionRequest,
			FutureID:    "Mod#a",
			Interaction: &NetworkInteraction{ID: 1, Kind: InteractionOnchain},
		})
		require.NoError(t, err)

		five, four := uint64(5), uint64(4)
		state, err = Reduce(state, &Message{
			Type: MsgTransactionSend, FutureID: "Mod#a", InteractionID: 1,
			Nonce: &five, Transaction: &Transaction{Hash: common.HexToHash("0x01")},
		})
		require.NoError(t, err)

		_, err = Reduce(state, &Message{
			Type: MsgTransactionSend, FutureID: "Mod#a", InteractionID: 1,
			Nonce: &four, Transaction: &Transaction{Hash: common.HexToHash("0x02")},
		})
		assert.Error(t, err)
	})
}

func TestReduceResendSemantics(t *testing.T) {
	nonce := uint64(7)
	state, err := ReduceAll([]*Message{
		{Type: MsgDeploymentInitialize, ChainID: 1},
		initMessage("Mod#a"),
		{
			Type:        MsgNetworkInteractionRequest,
			FutureID:    "Mod#a",
			Interaction: &NetworkInteraction{ID: 1, Kind: InteractionOnchain},
		},
		{
			Type: MsgTransactionSend, FutureID: "Mod#a", InteractionID: 1,
			Nonce: &nonce, Transaction: &Transaction{Hash: common.HexToHash("0x01")},
		},
	})
	require.NoError(t, err)

	ni := state.ExecutionStates["Mod#a"].LastInteraction()
	assert.False(t, ni.ShouldBeResent)

	t.Run("dropped keeps the nonce", func(t *testing.T) {
		next, err := Reduce(state, &Message{Type: MsgInteractionDropped, FutureID: "Mod#a", InteractionID: 1})
		require.NoError(t, err)
		ni := next.ExecutionStates["Mod#a"].LastInteraction()
		assert.True(t, ni.ShouldBeResent)
		require.NotNil(t, ni.Nonce)
		assert.Equal(t, uint64(7), *ni.Nonce)
	})

	t.Run("replacement releases the nonce", func(t *testing.T) {
		next, err := Reduce(state, &Message{Type: MsgInteractionReplaced, FutureID: "Mod#a", InteractionID: 1})
		require.NoError(t, err)
		ni := next.ExecutionStates["Mod#a"].LastInteraction()
		assert.True(t, ni.ShouldBeResent)
		assert.Nil(t, ni.Nonce)
	})

	t.Run("bump fees marks resend and send clears it", func(t *testing.T) {
		next, err := Reduce(state, &Message{Type: MsgTransactionBumpFees, FutureID: "Mod#a", InteractionID: 1})
		require.NoError(t, err)
		assert.True(t, next.ExecutionStates["Mod#a"].LastInteraction().ShouldBeResent)

		next, err = Reduce(next, &Message{
			Type: MsgTransactionSend, FutureID: "Mod#a", InteractionID: 1,
			Nonce: &nonce, Transaction: &Transaction{Hash: common.HexToHash("0x02")},
		})
		require.NoError(t, err)
		ni := next.ExecutionStates["Mod#a"].LastInteraction()
		assert.False(t, ni.ShouldBeResent)
		assert.Len(t, ni.Transactions, 2)
	})

	t.Run("timeout is terminal", func(t *testing.T) {
		next, err := Reduce(state, &Message{Type: MsgInteractionTimeout, FutureID: "Mod#a", InteractionID: 1})
		require.NoError(t, err)
		assert.Equal(t, StatusTimeout, next.ExecutionStates["Mod#a"].Status)
	})
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	messages := deploymentFlow(t, "Mod#token")
	state, err := ReduceAll(messages[:len(messages)-1])
	require.NoError(t, err)

	before := state.ExecutionStates["Mod#token"].Status
	next, err := Reduce(state, messages[len(messages)-1])
	require.NoError(t, err)

	assert.Equal(t, before, state.ExecutionStates["Mod#token"].Status)
	assert.Equal(t, StatusSuccess, next.ExecutionStates["Mod#token"].Status)
}

func TestReduceStaticCall(t *testing.T) {
	state, err := ReduceAll([]*Message{
		{Type: MsgDeploymentInitialize, ChainID: 1},
		{
			Type: MsgExecutionStateInitialize,
			State: &ExecutionState{
				ID:           "Mod#read",
				FutureType:   plan.FutureTypeStaticCall,
				Strategy:     "basic",
				Status:       StatusStarted,
				FunctionName: "totalSupply",
			},
		},
		{
			Type:        MsgNetworkInteractionRequest,
			FutureID:    "Mod#read",
			Interaction: &NetworkInteraction{ID: 1, Kind: InteractionStaticCall},
		},
		{
			Type:          MsgStaticCallComplete,
			FutureID:      "Mod#read",
			InteractionID: 1,
			CallResult:    &CallResult{Success: true, ReturnData: []byte{0x01}},
		},
		{
			Type:     MsgExecutionStateComplete,
			FutureID: "Mod#read",
			Result:   &ExecutionResult{Kind: ResultSuccess, Value: "1"},
		},
	})
	require.NoError(t, err)

	es := state.ExecutionStates["Mod#read"]
	assert.Equal(t, StatusSuccess, es.Status)
	require.NotNil(t, es.LastInteraction().Result)
	assert.True(t, es.LastInteraction().Result.Success)
}
