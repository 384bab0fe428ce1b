// Package journal implements the durable deployment journal: an append-only
// log of immutable messages and the pure reducer that folds them into the
// current deployment state. The log is the single source of truth; the
// in-memory state is always a replay of it.
package journal

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/chainplan/internal/plan"
)

// Status of a future's execution. SUCCESS, FAILED, TIMEOUT and HELD are
// terminal; only a wipe removes a terminal state.
type Status string

const (
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusTimeout Status = "TIMEOUT"
	StatusHeld    Status = "HELD"
)

// Terminal reports whether no further progress is possible without a wipe.
func (s Status) Terminal() bool {
	return s != StatusStarted
}

// InteractionKind distinguishes transaction lineages from static calls.
type InteractionKind string

const (
	InteractionOnchain    InteractionKind = "ONCHAIN_INTERACTION"
	InteractionStaticCall InteractionKind = "STATIC_CALL"
)

// ResultKind tags the terminal outcome of an execution state.
type ResultKind string

const (
	ResultSuccess         ResultKind = "SUCCESS"
	ResultRevert          ResultKind = "REVERT"
	ResultSimulationError ResultKind = "SIMULATION_ERROR"
	ResultStrategyError   ResultKind = "STRATEGY_ERROR"
	ResultHeld            ResultKind = "HELD"
)

type (
	// DeploymentState is the aggregate root rebuilt by folding the journal.
	DeploymentState struct {
		ChainID         uint64                     `json:"chainId"`
		ExecutionStates map[string]*ExecutionState `json:"executionStates"`
	}

	// ExecutionState is the durable per-future progress record. All
	// parameters are resolved (concrete) values; runtime placeholders never
	// reach the journal.
	ExecutionState struct {
		ID             string          `json:"id"`
		FutureType     plan.FutureType `json:"futureType"`
		Strategy       string          `json:"strategy"`
		StrategyConfig map[string]any  `json:"strategyConfig,omitempty"`
		Status         Status          `json:"status"`
		Dependencies   []string        `json:"dependencies"`

		// Deployment / library / contract-at fields.
		ContractName    string                    `json:"contractName,omitempty"`
		ConstructorArgs []any                     `json:"constructorArgs,omitempty"`
		Libraries       map[string]common.Address `json:"libraries,omitempty"`
		ContractAddress *common.Address           `json:"contractAddress,omitempty"`

		// Call / static-call / encode fields.
		FunctionName string `json:"functionName,omitempty"`
		Args         []any  `json:"args,omitempty"`
		NameOrIndex  string `json:"nameOrIndex,omitempty"`

		// Read-event fields.
		EventName      string          `json:"eventName,omitempty"`
		EventIndex     int             `json:"eventIndex,omitempty"`
		EmitterAddress *common.Address `json:"emitterAddress,omitempty"`
		TxToReadFrom   *common.Hash    `json:"txToReadFrom,omitempty"`

		// Send-data / shared transaction fields.
		To    *common.Address `json:"to,omitempty"`
		Data  hexutil.Bytes   `json:"data,omitempty"`
		Value *hexutil.Big    `json:"value,omitempty"`
		From  common.Address  `json:"from,omitempty"`

		NetworkInteractions []*NetworkInteraction `json:"networkInteractions,omitempty"`
		Result              *ExecutionResult      `json:"result,omitempty"`
	}

	// NetworkInteraction is one transaction lineage or one static call. A
	// transaction-based interaction accumulates attempts as fees are bumped;
	// at most one attempt is pending at a time but the full history is kept.
	NetworkInteraction struct {
		ID    uint64          `json:"id"`
		Kind  InteractionKind `json:"kind"`
		To    *common.Address `json:"to,omitempty"`
		Data  hexutil.Bytes   `json:"data,omitempty"`
		Value *hexutil.Big    `json:"value,omitempty"`
		From  common.Address  `json:"from,omitempty"`

		// Onchain-interaction fields.
		Nonce          *uint64        `json:"nonce,omitempty"`
		GasLimit       *hexutil.Big   `json:"gasLimit,omitempty"`
		Transactions   []*Transaction `json:"transactions,omitempty"`
		ShouldBeResent bool           `json:"shouldBeResent,omitempty"`

		// Static-call fields.
		Result *CallResult `json:"result,omitempty"`
	}

	// Transaction is one attempt of an onchain interaction.
	Transaction struct {
		Hash    common.Hash `json:"hash"`
		Fees    NetworkFees `json:"fees"`
		Receipt *Receipt    `json:"receipt,omitempty"`
	}

	// NetworkFees is either legacy (GasPrice set) or EIP-1559 (both max
	// fields set).
	NetworkFees struct {
		GasPrice             *hexutil.Big `json:"gasPrice,omitempty"`
		MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`
		MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`
	}

	// Receipt is the confirmed-transaction record kept in the journal.
	Receipt struct {
		BlockHash       common.Hash     `json:"blockHash"`
		BlockNumber     uint64          `json:"blockNumber"`
		Status          uint64          `json:"status"`
		ContractAddress *common.Address `json:"contractAddress,omitempty"`
		Logs            []Log           `json:"logs,omitempty"`
	}

	// Log is one event emitted by a confirmed transaction.
	Log struct {
		Address  common.Address `json:"address"`
		LogIndex uint64         `json:"logIndex"`
		Data     hexutil.Bytes  `json:"data"`
		Topics   []common.Hash  `json:"topics"`
	}

	// CallResult is the raw outcome of a static call or simulation.
	CallResult struct {
		Success    bool          `json:"success"`
		ReturnData hexutil.Bytes `json:"returnData"`
	}

	// ExecutionResult is the terminal result of an execution state.
	ExecutionResult struct {
		Kind    ResultKind      `json:"kind"`
		Address *common.Address `json:"address,omitempty"`
		Value   any             `json:"value,omitempty"`
		Error   string          `json:"error,omitempty"`
		HeldID  int             `json:"heldId,omitempty"`
		Reason  string          `json:"reason,omitempty"`
	}
)

// NewDeploymentState returns an empty state for the given chain.
func NewDeploymentState(chainID uint64) *DeploymentState {
	return &DeploymentState{
		ChainID:         chainID,
		ExecutionStates: map[string]*ExecutionState{},
	}
}

// PendingTransaction returns the latest attempt of the interaction, the one
// considered in-flight, or nil if nothing was sent yet.
func (n *NetworkInteraction) PendingTransaction() *Transaction {
	if len(n.Transactions) == 0 {
		return nil
	}
	return n.Transactions[len(n.Transactions)-1]
}

// ConfirmedTransaction returns the attempt that has a receipt, if any.
func (n *NetworkInteraction) ConfirmedTransaction() *Transaction {
	for _, tx := range n.Transactions {
		if tx.Receipt != nil {
			return tx
		}
	}
	return nil
}

// LastInteraction returns the most recent network interaction, or nil.
func (e *ExecutionState) LastInteraction() *NetworkInteraction {
	if len(e.NetworkInteractions) == 0 {
		return nil
	}
	return e.NetworkInteractions[len(e.NetworkInteractions)-1]
}

func (e *ExecutionState) clone() *ExecutionState {
	out := *e
	out.Dependencies = append([]string(nil), e.Dependencies...)
	out.NetworkInteractions = make([]*NetworkInteraction, len(e.NetworkInteractions))
	for i, ni := range e.NetworkInteractions {
		out.NetworkInteractions[i] = ni.clone()
	}
	return &out
}

func (n *NetworkInteraction) clone() *NetworkInteraction {
	out := *n
	out.Transactions = make([]*Transaction, len(n.Transactions))
	for i, tx := range n.Transactions {
		cloned := *tx
		out.Transactions[i] = &cloned
	}
	return &out
}

func (d *DeploymentState) clone() *DeploymentState {
	out := NewDeploymentState(d.ChainID)
	for id, es := range d.ExecutionStates {
		out.ExecutionStates[id] = es
	}
	return out
}
