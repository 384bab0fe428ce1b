package journal

import (
	"github.com/ethereum/go-ethereum/common"
)

// MessageType tags the closed set of journal messages. The on-disk journal is
// one JSON-encoded message per line, in application order; replaying the file
// through Reduce reconstructs the deployment state exactly.
type MessageType string

const (
	MsgDeploymentInitialize MessageType = "DEPLOYMENT_INITIALIZE"
	MsgRunStart             MessageType = "RUN_START"
	MsgWipe                 MessageType = "WIPE"

	MsgExecutionStateInitialize MessageType = "EXECUTION_STATE_INITIALIZE"
	MsgExecutionStateComplete   MessageType = "EXECUTION_STATE_COMPLETE"

	MsgNetworkInteractionRequest MessageType = "NETWORK_INTERACTION_REQUEST"
	MsgTransactionSend           MessageType = "TRANSACTION_SEND"
	MsgTransactionConfirm        MessageType = "TRANSACTION_CONFIRM"
	MsgTransactionBumpFees       MessageType = "TRANSACTION_BUMP_FEES"
	MsgInteractionDropped        MessageType = "ONCHAIN_INTERACTION_DROPPED"
	MsgInteractionReplaced       MessageType = "ONCHAIN_INTERACTION_REPLACED_BY_USER"
	MsgInteractionTimeout        MessageType = "ONCHAIN_INTERACTION_TIMEOUT"
	MsgStaticCallComplete        MessageType = "STATIC_CALL_COMPLETE"
)

// Message is one immutable state transition. Exactly the fields relevant to
// its Type are set; the reducer rejects malformed combinations.
type Message struct {
	Type     MessageType `json:"type"`
	FutureID string      `json:"futureId,omitempty"`

	// DEPLOYMENT_INITIALIZE / RUN_START.
	ChainID uint64 `json:"chainId,omitempty"`
	RunID   string `json:"runId,omitempty"`

	// EXECUTION_STATE_INITIALIZE: the fully-resolved initial state.
	State *ExecutionState `json:"state,omitempty"`

	// NETWORK_INTERACTION_REQUEST.
	Interaction *NetworkInteraction `json:"interaction,omitempty"`

	// Interaction-level messages.
	InteractionID uint64       `json:"interactionId,omitempty"`
	Nonce         *uint64      `json:"nonce,omitempty"`
	Transaction   *Transaction `json:"transaction,omitempty"`
	Hash          *common.Hash `json:"hash,omitempty"`
	Receipt       *Receipt     `json:"receipt,omitempty"`
	Fees          *NetworkFees `json:"fees,omitempty"`
	CallResult    *CallResult  `json:"callResult,omitempty"`

	// EXECUTION_STATE_COMPLETE / ONCHAIN_INTERACTION_TIMEOUT.
	Result *ExecutionResult `json:"result,omitempty"`
}
