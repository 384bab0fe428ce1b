package journal

import (
	"fmt"
)

// Reduce folds one message into the deployment state, returning a new state.
// The input state is never mutated: the touched execution state is cloned and
// swapped in, so previously-handed-out snapshots stay valid.
//
// Reduce is pure and total over well-formed logs; a malformed message is an
// invariant violation and fails the fold.
func Reduce(state *DeploymentState, msg *Message) (*DeploymentState, error) {
	if msg.Type == MsgDeploymentInitialize {
		if state != nil {
			return nil, invariant("DEPLOYMENT_INITIALIZE applied to an already-initialized deployment")
		}
		return NewDeploymentState(msg.ChainID), nil
	}
	if state == nil {
		return nil, invariant("message %q applied before DEPLOYMENT_INITIALIZE", msg.Type)
	}

	switch msg.Type {
	case MsgRunStart:
		// Journaled for audit; no effect on the projection.
		return state, nil

	case MsgWipe:
		if _, ok := state.ExecutionStates[msg.FutureID]; !ok {
			return nil, invariant("wipe of unknown future %q", msg.FutureID)
		}
		next := state.clone()
		delete(next.ExecutionStates, msg.FutureID)
		return next, nil

	case MsgExecutionStateInitialize:
		if msg.State == nil {
			return nil, invariant("initialize message without execution state")
		}
		if _, exists := state.ExecutionStates[msg.State.ID]; exists {
			return nil, invariant("execution state %q already initialized", msg.State.ID)
		}
		for _, dep := range msg.State.Dependencies {
			depState, ok := state.ExecutionStates[dep]
			if !ok || depState.Status != StatusSuccess {
				return nil, invariant("execution state %q initialized before dependency %q succeeded", msg.State.ID, dep)
			}
		}
		next := state.clone()
		next.ExecutionStates[msg.State.ID] = msg.State.clone()
		return next, nil
	}

	// All remaining messages address an existing, non-terminal execution state.
	es, ok := state.ExecutionStates[msg.FutureID]
	if !ok {
		return nil, invariant("message %q for unknown future %q", msg.Type, msg.FutureID)
	}
	if es.Status.Terminal() {
		return nil, invariant("message %q for future %q in terminal status %s", msg.Type, msg.FutureID, es.Status)
	}

	es = es.clone()
	next := state.clone()
	next.ExecutionStates[msg.FutureID] = es

	switch msg.Type {
	case MsgNetworkInteractionRequest:
		if msg.Interaction == nil {
			return nil, invariant("network interaction request without interaction for %q", msg.FutureID)
		}
		if want := uint64(len(es.NetworkInteractions) + 1); msg.Interaction.ID != want {
			return nil, invariant("out-of-order network interaction %d for %q, expected %d", msg.Interaction.ID, msg.FutureID, want)
		}
		es.NetworkInteractions = append(es.NetworkInteractions, msg.Interaction.clone())
		return next, nil

	case MsgTransactionSend:
		ni, err := onchainInteraction(es, msg)
		if err != nil {
			return nil, err
		}
		if msg.Transaction == nil || msg.Nonce == nil {
			return nil, invariant("transaction send without transaction or nonce for %q", msg.FutureID)
		}
		if ni.Nonce != nil && *msg.Nonce < *ni.Nonce {
			return nil, invariant("nonce regression on interaction %d of %q: %d after %d", ni.ID, msg.FutureID, *msg.Nonce, *ni.Nonce)
		}
		nonce := *msg.Nonce
		ni.Nonce = &nonce
		tx := *msg.Transaction
		ni.Transactions = append(ni.Transactions, &tx)
		ni.ShouldBeResent = false
		return next, nil

	case MsgTransactionConfirm:
		ni, err := onchainInteraction(es, msg)
		if err != nil {
			return nil, err
		}
		if msg.Hash == nil || msg.Receipt == nil {
			return nil, invariant("transaction confirm without hash or receipt for %q", msg.FutureID)
		}
		for _, tx := range ni.Transactions {
			if tx.Hash == *msg.Hash {
				receipt := *msg.Receipt
				tx.Receipt = &receipt
				return next, nil
			}
		}
		return nil, invariant("confirmation for unknown transaction %s of %q", msg.Hash, msg.FutureID)

	case MsgTransactionBumpFees:
		ni, err := onchainInteraction(es, msg)
		if err != nil {
			return nil, err
		}
		ni.ShouldBeResent = true
		return next, nil

	case MsgInteractionDropped:
		ni, err := onchainInteraction(es, msg)
		if err != nil {
			return nil, err
		}
		ni.ShouldBeResent = true
		return next, nil

	case MsgInteractionReplaced:
		ni, err := onchainInteraction(es, msg)
		if err != nil {
			return nil, err
		}
		// The observed transaction took our nonce; the next send must
		// allocate a fresh one.
		ni.Nonce = nil
		ni.ShouldBeResent = true
		return next, nil

	case MsgInteractionTimeout:
		if _, err := onchainInteraction(es, msg); err != nil {
			return nil, err
		}
		es.Status = StatusTimeout
		return next, nil

	case MsgStaticCallComplete:
		ni := es.LastInteraction()
		if ni == nil || ni.ID != msg.InteractionID || ni.Kind != InteractionStaticCall {
			return nil, invariant("static call result for invalid interaction %d of %q", msg.InteractionID, msg.FutureID)
		}
		if msg.CallResult == nil {
			return nil, invariant("static call complete without result for %q", msg.FutureID)
		}
		result := *msg.CallResult
		ni.Result = &result
		return next, nil

	case MsgExecutionStateComplete:
		if msg.Result == nil {
			return nil, invariant("completion without result for %q", msg.FutureID)
		}
		result := *msg.Result
		es.Result = &result
		switch result.Kind {
		case ResultSuccess:
			es.Status = StatusSuccess
			if result.Address != nil {
				address := *result.Address
				es.ContractAddress = &address
			}
		case ResultHeld:
			es.Status = StatusHeld
		case ResultRevert, ResultSimulationError, ResultStrategyError:
			es.Status = StatusFailed
		default:
			return nil, invariant("unknown result kind %q for %q", result.Kind, msg.FutureID)
		}
		return next, nil
	}

	return nil, invariant("unknown message type %q", msg.Type)
}

// ReduceAll replays an ordered message sequence from scratch.
func ReduceAll(messages []*Message) (*DeploymentState, error) {
	var state *DeploymentState
	var err error
	for i, msg := range messages {
		state, err = Reduce(state, msg)
		if err != nil {
			return nil, fmt.Errorf("failed to replay journal at message %d: %w", i, err)
		}
	}
	return state, nil
}

func onchainInteraction(es *ExecutionState, msg *Message) (*NetworkInteraction, error) {
	ni := es.LastInteraction()
	if ni == nil || ni.ID != msg.InteractionID {
		return nil, invariant("message %q for invalid interaction %d of %q", msg.Type, msg.InteractionID, msg.FutureID)
	}
	if ni.Kind != InteractionOnchain {
		return nil, invariant("message %q for non-onchain interaction %d of %q", msg.Type, msg.InteractionID, msg.FutureID)
	}
	return ni, nil
}

func invariant(format string, args ...any) error {
	return fmt.Errorf("journal invariant violation: "+format, args...)
}
