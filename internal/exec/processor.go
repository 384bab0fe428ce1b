package exec

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/chainplan/internal/artifact"
	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/plan"
	"github.com/compose-network/chainplan/internal/rpc"
)

// strategyPrecheck lets a strategy hold a deployment before anything is
// sent, e.g. when required chain infrastructure is missing.
type strategyPrecheck interface {
	Precheck(ctx context.Context, client ChainClient) (*journal.ExecutionResult, error)
}

// processor drives one future at a time to a terminal status. It computes
// the next journal message from the current state, applies it through the
// shared holder, and repeats; when no progress is possible it waits one
// polling interval. All durable effects go through the journal first.
type processor struct {
	artifacts *artifact.Store
	client    ChainClient
	store     *journal.Store
	holder    *stateHolder
	strategy  Strategy
	nonces    *NonceManager
	cfg       Config
	logger    *slog.Logger
	sink      EventSink

	mu     sync.Mutex
	sentAt map[common.Hash]time.Time
}

// ProcessFuture runs the future until its execution state is terminal.
func (p *processor) ProcessFuture(ctx context.Context, f plan.Future) (*journal.ExecutionState, error) {
	state := p.holder.current()

	es, ok := state.ExecutionStates[f.ID()]
	if !ok {
		var err error
		if es, err = p.initialize(ctx, f, state); err != nil {
			return nil, err
		}
	}

	for !es.Status.Terminal() {
		msg, err := p.nextMessage(ctx, es)
		if err != nil {
			return nil, fmt.Errorf("execution of %q failed: %w", f.ID(), err)
		}

		if msg == nil {
			if err := sleepCtx(ctx, p.cfg.BlockPollingInterval); err != nil {
				return nil, err
			}
			continue
		}

		state, err = p.holder.apply(msg)
		if err != nil {
			return nil, err
		}
		es = state.ExecutionStates[f.ID()]
		p.emitProgress(msg, es)
	}

	if es.Status == journal.StatusSuccess && es.ContractAddress != nil {
		if err := p.store.RecordDeployedAddress(es.ID, *es.ContractAddress); err != nil {
			return nil, err
		}
	}

	p.sink.emit(Event{Type: EventFutureComplete, FutureID: es.ID, Status: es.Status, Result: es.Result})
	return es, nil
}

func (p *processor) emitProgress(msg *journal.Message, es *journal.ExecutionState) {
	switch msg.Type {
	case journal.MsgTransactionSend:
		p.sink.emit(Event{Type: EventTransactionSent, FutureID: es.ID, Hash: msg.Transaction.Hash})
	case journal.MsgTransactionConfirm:
		p.sink.emit(Event{Type: EventTransactionConfirmed, FutureID: es.ID, Hash: *msg.Hash})
	case journal.MsgTransactionBumpFees:
		p.sink.emit(Event{Type: EventFeesBumped, FutureID: es.ID})
	}
}

// initialize resolves the future's runtime values against the current state
// and journals the initial execution state. Futures that need no network
// interaction are completed in the same step.
func (p *processor) initialize(ctx context.Context, f plan.Future, state *journal.DeploymentState) (*journal.ExecutionState, error) {
	r := &resolver{
		state:         state,
		params:        p.cfg.Parameters,
		accounts:      p.cfg.Accounts,
		defaultSender: p.cfg.DefaultSender,
	}

	es, completion, err := p.buildInitialState(f, r)
	if err != nil {
		return nil, fmt.Errorf("initialization of %q failed: %w", f.ID(), err)
	}

	p.sink.emit(Event{Type: EventFutureStart, FutureID: f.ID()})
	p.logger.Info("executing future", "future", f.ID(), "type", f.Type())

	state, err = p.holder.apply(&journal.Message{Type: journal.MsgExecutionStateInitialize, State: es})
	if err != nil {
		return nil, err
	}
	if es.ContractName != "" {
		art, err := p.artifacts.Load(es.ContractName)
		if err != nil {
			return nil, err
		}
		if err := p.store.StoreArtifact(f.ID(), art); err != nil {
			return nil, err
		}
	}

	if completion != nil {
		state, err = p.holder.apply(&journal.Message{
			Type:     journal.MsgExecutionStateComplete,
			FutureID: f.ID(),
			Result:   completion,
		})
		if err != nil {
			return nil, err
		}
	}

	return state.ExecutionStates[f.ID()], nil
}

// buildInitialState produces the resolved execution state and, for futures
// that complete without touching the chain, their immediate result.
func (p *processor) buildInitialState(f plan.Future, r *resolver) (*journal.ExecutionState, *journal.ExecutionResult, error) {
	es := &journal.ExecutionState{
		ID:             f.ID(),
		FutureType:     f.Type(),
		Strategy:       p.strategy.Name(),
		StrategyConfig: p.strategy.Config(),
		Status:         journal.StatusStarted,
		Dependencies:   dependencyIDs(f),
	}

	switch future := f.(type) {
	case *plan.ContractDeployment:
		return p.initDeployment(es, r, future.ContractName, future.Args, future.Libraries, future.Value, future.From)

	case *plan.LibraryDeployment:
		return p.initDeployment(es, r, future.ContractName, nil, future.Libraries, nil, future.From)

	case *plan.ContractCall:
		if err := p.initCallTarget(es, r, future.Contract); err != nil {
			return nil, nil, err
		}
		args, err := r.resolveArgs(future.Args)
		if err != nil {
			return nil, nil, err
		}
		value, err := r.resolveValue(future.Value)
		if err != nil {
			return nil, nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, nil, err
		}
		es.FunctionName = future.FunctionName
		es.Args = normalizeValues(args)
		es.Value = (*hexutil.Big)(value)
		es.From = from
		return es, nil, nil

	case *plan.StaticCall:
		if err := p.initCallTarget(es, r, future.Contract); err != nil {
			return nil, nil, err
		}
		args, err := r.resolveArgs(future.Args)
		if err != nil {
			return nil, nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, nil, err
		}
		es.FunctionName = future.FunctionName
		es.Args = normalizeValues(args)
		es.NameOrIndex = future.NameOrIndex
		es.From = from
		return es, nil, nil

	case *plan.EncodeFunctionCall:
		name, err := targetContractName(future.Contract)
		if err != nil {
			return nil, nil, err
		}
		args, err := r.resolveArgs(future.Args)
		if err != nil {
			return nil, nil, err
		}
		art, err := p.artifacts.Load(name)
		if err != nil {
			return nil, nil, err
		}
		data, err := callData(art, future.FunctionName, args)
		if err != nil {
			return nil, nil, err
		}
		es.ContractName = name
		es.FunctionName = future.FunctionName
		es.Args = normalizeValues(args)
		return es, &journal.ExecutionResult{
			Kind:  journal.ResultSuccess,
			Value: hexutil.Encode(data),
		}, nil

	case *plan.ContractAt:
		address, err := r.resolveAddress(future.Address)
		if err != nil {
			return nil, nil, err
		}
		es.ContractName = future.ContractName
		es.ContractAddress = &address
		return es, &journal.ExecutionResult{
			Kind:    journal.ResultSuccess,
			Address: &address,
		}, nil

	case *plan.ReadEventArgument:
		return p.initReadEvent(es, r, future)

	case *plan.SendData:
		to, err := r.resolveAddress(future.To)
		if err != nil {
			return nil, nil, err
		}
		data, err := r.resolveData(future.Data)
		if err != nil {
			return nil, nil, err
		}
		value, err := r.resolveValue(future.Value)
		if err != nil {
			return nil, nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, nil, err
		}
		es.To = &to
		es.Data = data
		es.Value = (*hexutil.Big)(value)
		es.From = from
		return es, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown future type %T", f)
	}
}

func (p *processor) initDeployment(
	es *journal.ExecutionState,
	r *resolver,
	contractName string,
	args []any,
	libraries map[string]plan.Future,
	value any,
	from any,
) (*journal.ExecutionState, *journal.ExecutionResult, error) {
	resolvedArgs, err := r.resolveArgs(args)
	if err != nil {
		return nil, nil, err
	}
	resolvedLibraries, err := r.resolveLibraries(libraries)
	if err != nil {
		return nil, nil, err
	}
	resolvedValue, err := r.resolveValue(value)
	if err != nil {
		return nil, nil, err
	}
	sender, err := r.resolveFrom(from)
	if err != nil {
		return nil, nil, err
	}

	es.ContractName = contractName
	es.ConstructorArgs = normalizeValues(resolvedArgs)
	es.Libraries = resolvedLibraries
	es.Value = (*hexutil.Big)(resolvedValue)
	es.From = sender
	return es, nil, nil
}

func (p *processor) initCallTarget(es *journal.ExecutionState, r *resolver, contract plan.Future) error {
	name, err := targetContractName(contract)
	if err != nil {
		return err
	}
	address, err := r.resolveAddress(contract)
	if err != nil {
		return err
	}
	es.ContractName = name
	es.To = &address
	return nil
}

func (p *processor) initReadEvent(
	es *journal.ExecutionState,
	r *resolver,
	future *plan.ReadEventArgument,
) (*journal.ExecutionState, *journal.ExecutionResult, error) {
	emitter, err := r.resolveAddress(future.Emitter)
	if err != nil {
		return nil, nil, err
	}
	emitterName, err := targetContractName(future.Emitter)
	if err != nil {
		return nil, nil, err
	}

	readFrom, ok := r.state.ExecutionStates[future.ReadFrom.ID()]
	if !ok {
		return nil, nil, fmt.Errorf("future %q has not executed yet", future.ReadFrom.ID())
	}
	ni := readFrom.LastInteraction()
	if ni == nil {
		return nil, nil, fmt.Errorf("future %q produced no transaction to read events from", future.ReadFrom.ID())
	}
	confirmed := ni.ConfirmedTransaction()
	if confirmed == nil || confirmed.Receipt == nil {
		return nil, nil, fmt.Errorf("future %q has no confirmed transaction", future.ReadFrom.ID())
	}

	art, err := p.artifacts.Load(emitterName)
	if err != nil {
		return nil, nil, err
	}
	value, err := readEventArgument(art, confirmed.Receipt, emitter, future.EventName, future.NameOrIndex, future.EventIndex)
	if err != nil {
		return nil, nil, err
	}

	hash := confirmed.Hash
	es.ContractName = emitterName
	es.EventName = future.EventName
	es.EventIndex = future.EventIndex
	es.EmitterAddress = &emitter
	es.TxToReadFrom = &hash
	es.NameOrIndex = future.NameOrIndex
	return es, &journal.ExecutionResult{Kind: journal.ResultSuccess, Value: value}, nil
}

// nextMessage computes the single next state transition for the future, or
// nil when the engine can only wait.
func (p *processor) nextMessage(ctx context.Context, es *journal.ExecutionState) (*journal.Message, error) {
	switch es.FutureType {
	case plan.FutureTypeContractAt, plan.FutureTypeReadEventArgument, plan.FutureTypeEncodeFunctionCall:
		return nil, fmt.Errorf("internal error: future of type %s entered the execution loop", es.FutureType)
	}

	ni := es.LastInteraction()
	if ni == nil {
		return p.requestMessage(ctx, es)
	}

	if ni.Kind == journal.InteractionStaticCall {
		if ni.Result == nil {
			return p.queryStaticCall(ctx, es, ni)
		}
		return p.completeStaticCall(es, ni)
	}

	if confirmed := ni.ConfirmedTransaction(); confirmed != nil {
		return p.completeOnchain(es, ni, confirmed)
	}
	if len(ni.Transactions) == 0 || ni.ShouldBeResent {
		return p.sendTransaction(ctx, es, ni)
	}
	return p.monitorTransaction(ctx, es, ni)
}

// requestMessage journals the future's network interaction: what will be
// sent, to whom, with how much gas.
func (p *processor) requestMessage(ctx context.Context, es *journal.ExecutionState) (*journal.Message, error) {
	ni := &journal.NetworkInteraction{
		ID:    uint64(len(es.NetworkInteractions) + 1),
		Kind:  journal.InteractionOnchain,
		From:  es.From,
		Value: es.Value,
	}

	switch es.FutureType {
	case plan.FutureTypeContractDeployment, plan.FutureTypeLibraryDeployment:
		if precheck, ok := p.strategy.(strategyPrecheck); ok {
			held, err := precheck.Precheck(ctx, p.client)
			if err != nil {
				return nil, err
			}
			if held != nil {
				return &journal.Message{Type: journal.MsgExecutionStateComplete, FutureID: es.ID, Result: held}, nil
			}
		}

		art, err := p.artifacts.Load(es.ContractName)
		if err != nil {
			return nil, err
		}
		initcode, err := constructorData(art, es.ConstructorArgs, es.Libraries)
		if err != nil {
			return nil, err
		}
		request, err := p.strategy.DeployRequest(es, initcode)
		if err != nil {
			return p.strategyFailure(es, err), nil
		}
		ni.To = request.To
		ni.Data = request.Data
		ni.Value = (*hexutil.Big)(request.Value)

	case plan.FutureTypeContractCall, plan.FutureTypeStaticCall:
		art, err := p.artifacts.Load(es.ContractName)
		if err != nil {
			return nil, err
		}
		data, err := callData(art, es.FunctionName, es.Args)
		if err != nil {
			return nil, err
		}
		ni.To = es.To
		ni.Data = data
		if es.FutureType == plan.FutureTypeStaticCall {
			ni.Kind = journal.InteractionStaticCall
		}

	case plan.FutureTypeSendData:
		ni.To = es.To
		ni.Data = es.Data
	}

	if ni.Kind == journal.InteractionOnchain {
		gasLimit, err := p.client.EstimateGas(ctx, rpc.CallParams{
			From:  ni.From,
			To:    ni.To,
			Data:  ni.Data,
			Value: bigValue(ni.Value),
		})
		if err != nil {
			if rpc.IsExecutionFailure(err) {
				return p.simulationFailure(es, err.Error()), nil
			}
			return nil, fmt.Errorf("gas estimation failed: %w", err)
		}
		ni.GasLimit = (*hexutil.Big)(new(big.Int).SetUint64(gasLimit))
	}

	return &journal.Message{Type: journal.MsgNetworkInteractionRequest, FutureID: es.ID, Interaction: ni}, nil
}

// sendTransaction simulates, allocates a nonce and submits one attempt.
func (p *processor) sendTransaction(ctx context.Context, es *journal.ExecutionState, ni *journal.NetworkInteraction) (*journal.Message, error) {
	fees, err := p.client.NetworkFees(ctx)
	if err != nil {
		return nil, err
	}
	if previous := ni.PendingTransaction(); previous != nil {
		fees = bumpFees(previous.Fees, fees)
	}

	simulation, err := p.client.Call(ctx, rpc.CallParams{
		From:  ni.From,
		To:    ni.To,
		Data:  ni.Data,
		Value: bigValue(ni.Value),
		Fees:  &fees,
	}, "pending")
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}
	if !simulation.Success {
		return p.simulationFailure(es, revertReason(simulation.ReturnData)), nil
	}

	var nonce uint64
	if ni.Nonce != nil {
		nonce = *ni.Nonce
	} else if nonce, err = p.nonces.Next(ctx, ni.From); err != nil {
		return nil, err
	}

	hash, err := p.client.SendTransaction(ctx, rpc.TransactionParams{
		From:     ni.From,
		To:       ni.To,
		Data:     ni.Data,
		Value:    bigValue(ni.Value),
		Nonce:    nonce,
		GasLimit: bigValue(ni.GasLimit).Uint64(),
		Fees:     fees,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	p.recordSent(hash)
	p.logger.Info("transaction sent", "future", es.ID, "hash", hash, "nonce", nonce)

	return &journal.Message{
		Type:          journal.MsgTransactionSend,
		FutureID:      es.ID,
		InteractionID: ni.ID,
		Nonce:         &nonce,
		Transaction:   &journal.Transaction{Hash: hash, Fees: toJournalFees(fees)},
	}, nil
}

// monitorTransaction watches an in-flight interaction for confirmation,
// replacement, drops and fee-bump deadlines.
func (p *processor) monitorTransaction(ctx context.Context, es *journal.ExecutionState, ni *journal.NetworkInteraction) (*journal.Message, error) {
	// Any attempt in the lineage may be the one that lands.
	for _, tx := range ni.Transactions {
		receipt, err := p.client.TransactionReceipt(ctx, tx.Hash)
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			continue
		}

		latest, err := p.client.LatestBlock(ctx)
		if err != nil {
			return nil, err
		}
		if latest.Number+1 < receipt.BlockNumber+p.cfg.RequiredConfirmations {
			return nil, nil // mined, waiting for confirmation depth
		}
		return &journal.Message{
			Type:          journal.MsgTransactionConfirm,
			FutureID:      es.ID,
			InteractionID: ni.ID,
			Hash:          &tx.Hash,
			Receipt:       toJournalReceipt(receipt),
		}, nil
	}

	// Nothing mined. A higher account nonce means a user transaction took
	// this interaction's slot.
	if ni.Nonce != nil {
		count, err := p.client.TransactionCount(ctx, ni.From, "latest")
		if err != nil {
			return nil, err
		}
		if count > *ni.Nonce {
			p.logger.Warn("transaction replaced by user", "future", es.ID, "nonce", *ni.Nonce)
			return &journal.Message{Type: journal.MsgInteractionReplaced, FutureID: es.ID, InteractionID: ni.ID}, nil
		}
	}

	pending := ni.PendingTransaction()
	info, err := p.client.TransactionByHash(ctx, pending.Hash)
	if err != nil {
		return nil, err
	}
	if info == nil {
		p.logger.Warn("transaction dropped from mempool", "future", es.ID, "hash", pending.Hash)
		return &journal.Message{Type: journal.MsgInteractionDropped, FutureID: es.ID, InteractionID: ni.ID}, nil
	}

	if time.Since(p.sentTime(pending.Hash)) < p.cfg.TimeBeforeBumpingFees {
		return nil, nil
	}
	if bumps := len(ni.Transactions) - 1; bumps >= p.cfg.MaxFeeBumps {
		p.logger.Warn("fee bump budget exhausted", "future", es.ID, "bumps", bumps)
		return &journal.Message{Type: journal.MsgInteractionTimeout, FutureID: es.ID, InteractionID: ni.ID}, nil
	}
	return &journal.Message{Type: journal.MsgTransactionBumpFees, FutureID: es.ID, InteractionID: ni.ID}, nil
}

func (p *processor) queryStaticCall(ctx context.Context, es *journal.ExecutionState, ni *journal.NetworkInteraction) (*journal.Message, error) {
	result, err := p.client.Call(ctx, rpc.CallParams{
		From: ni.From,
		To:   ni.To,
		Data: ni.Data,
	}, "latest")
	if err != nil {
		return nil, fmt.Errorf("static call failed: %w", err)
	}

	return &journal.Message{
		Type:          journal.MsgStaticCallComplete,
		FutureID:      es.ID,
		InteractionID: ni.ID,
		CallResult:    &journal.CallResult{Success: result.Success, ReturnData: result.ReturnData},
	}, nil
}

func (p *processor) completeStaticCall(es *journal.ExecutionState, ni *journal.NetworkInteraction) (*journal.Message, error) {
	if !ni.Result.Success {
		return &journal.Message{
			Type:     journal.MsgExecutionStateComplete,
			FutureID: es.ID,
			Result: &journal.ExecutionResult{
				Kind:  journal.ResultRevert,
				Error: revertReason(ni.Result.ReturnData),
			},
		}, nil
	}

	art, err := p.artifacts.Load(es.ContractName)
	if err != nil {
		return nil, err
	}
	value, err := decodeStaticResult(art, es.FunctionName, es.NameOrIndex, ni.Result.ReturnData)
	if err != nil {
		return nil, err
	}

	return &journal.Message{
		Type:     journal.MsgExecutionStateComplete,
		FutureID: es.ID,
		Result:   &journal.ExecutionResult{Kind: journal.ResultSuccess, Value: value},
	}, nil
}

func (p *processor) completeOnchain(es *journal.ExecutionState, ni *journal.NetworkInteraction, confirmed *journal.Transaction) (*journal.Message, error) {
	if confirmed.Receipt.Status == 0 {
		return &journal.Message{
			Type:     journal.MsgExecutionStateComplete,
			FutureID: es.ID,
			Result: &journal.ExecutionResult{
				Kind:  journal.ResultRevert,
				Error: fmt.Sprintf("transaction %s reverted", confirmed.Hash),
			},
		}, nil
	}

	result := &journal.ExecutionResult{Kind: journal.ResultSuccess}
	switch es.FutureType {
	case plan.FutureTypeContractDeployment, plan.FutureTypeLibraryDeployment:
		address, err := p.strategy.DeployResult(es, ni)
		if err != nil {
			return p.strategyFailure(es, err), nil
		}
		result.Address = &address
	}

	return &journal.Message{Type: journal.MsgExecutionStateComplete, FutureID: es.ID, Result: result}, nil
}

func (p *processor) simulationFailure(es *journal.ExecutionState, reason string) *journal.Message {
	return &journal.Message{
		Type:     journal.MsgExecutionStateComplete,
		FutureID: es.ID,
		Result:   &journal.ExecutionResult{Kind: journal.ResultSimulationError, Error: reason},
	}
}

func (p *processor) strategyFailure(es *journal.ExecutionState, err error) *journal.Message {
	return &journal.Message{
		Type:     journal.MsgExecutionStateComplete,
		FutureID: es.ID,
		Result:   &journal.ExecutionResult{Kind: journal.ResultStrategyError, Error: err.Error()},
	}
}

func (p *processor) recordSent(hash common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sentAt == nil {
		p.sentAt = map[common.Hash]time.Time{}
	}
	p.sentAt[hash] = time.Now()
}

// sentTime returns when the transaction was first seen in-flight. A hash
// inherited from an interrupted run starts its bump clock now.
func (p *processor) sentTime(hash common.Hash) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sentAt == nil {
		p.sentAt = map[common.Hash]time.Time{}
	}
	if at, ok := p.sentAt[hash]; ok {
		return at
	}
	p.sentAt[hash] = time.Now()
	return p.sentAt[hash]
}

func dependencyIDs(f plan.Future) []string {
	deps := f.Dependencies()
	ids := make([]string, len(deps))
	for i, dep := range deps {
		ids[i] = dep.ID()
	}
	return ids
}

// targetContractName resolves the contract name behind a future that stands
// for a deployed contract.
func targetContractName(f plan.Future) (string, error) {
	switch future := f.(type) {
	case *plan.ContractDeployment:
		return future.ContractName, nil
	case *plan.LibraryDeployment:
		return future.ContractName, nil
	case *plan.ContractAt:
		return future.ContractName, nil
	default:
		return "", fmt.Errorf("future %q does not represent a contract", f.ID())
	}
}

// normalizeValues rewrites resolved values into JSON-stable journal forms:
// addresses and byte strings as hex, big integers as decimal strings.
func normalizeValues(values []any) []any {
	if values == nil {
		return nil
	}
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []any:
		return normalizeValues(v)
	case map[string]any:
		normalized := make(map[string]any, len(v))
		for key, item := range v {
			normalized[key] = normalizeValue(item)
		}
		return normalized
	default:
		return journalValue(v)
	}
}

// revertReason decodes the standard Error(string) revert payload, falling
// back to the raw hex when the data has another shape.
func revertReason(data []byte) string {
	if len(data) == 0 {
		return "execution reverted"
	}

	errorSelector := []byte{0x08, 0xc3, 0x79, 0xa0}
	if len(data) > 4 && string(data[:4]) == string(errorSelector) {
		stringType, err := abi.NewType("string", "", nil)
		if err == nil {
			decoded, err := (abi.Arguments{{Type: stringType}}).Unpack(data[4:])
			if err == nil && len(decoded) == 1 {
				if reason, ok := decoded[0].(string); ok {
					return fmt.Sprintf("reverted with reason %q", reason)
				}
			}
		}
	}
	return fmt.Sprintf("reverted with data %s", hexutil.Encode(data))
}

func bigValue(amount *hexutil.Big) *big.Int {
	if amount == nil {
		return nil
	}
	return amount.ToInt()
}

func sleepCtx(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
