// Package exec runs deployment plans against a chain: it batches futures by
// dependency order, drives each one through its state machine, and records
// every durable step in the journal before acting on it.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/compose-network/chainplan/internal/artifact"
	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/logger"
	"github.com/compose-network/chainplan/internal/plan"
)

// ResultType classifies the overall outcome of a deployment run.
type ResultType string

const (
	ResultTypeValidationError     ResultType = "VALIDATION_ERROR"
	ResultTypeReconciliationError ResultType = "RECONCILIATION_ERROR"
	ResultTypePreviousRunError    ResultType = "PREVIOUS_RUN_ERROR"
	ResultTypeExecutionError      ResultType = "EXECUTION_ERROR"
	ResultTypeSuccessful          ResultType = "SUCCESSFUL"
)

type (
	// Config carries the per-run execution settings.
	Config struct {
		Parameters    plan.DeploymentParameters
		Accounts      []common.Address
		DefaultSender common.Address
		Strategy      Strategy

		RequiredConfirmations uint64
		BlockPollingInterval  time.Duration
		TimeBeforeBumpingFees time.Duration
		MaxFeeBumps           int
	}

	// DeployedContract is one successfully deployed or bound contract.
	DeployedContract struct {
		FutureID     string
		ContractName string
		Address      common.Address
	}

	// FutureOutcome records why a future did not succeed.
	FutureOutcome struct {
		FutureID string
		Error    string
	}

	// DeploymentResult is the five-way outcome of a run. Exactly the
	// fields matching Type are populated.
	DeploymentResult struct {
		Type ResultType

		Validation     []plan.ValidationFailure
		Reconciliation []Failure
		PreviousRuns   []Failure

		Contracts []DeployedContract
		Failed    []FutureOutcome
		TimedOut  []FutureOutcome
		Held      []FutureOutcome
		Skipped   []string
	}

	// Deployer owns one deployment directory and the chain connection and
	// runs plans against them.
	Deployer struct {
		store     *journal.Store
		client    ChainClient
		artifacts *artifact.Store
		cfg       Config
		logger    *slog.Logger
		sink      EventSink
	}
)

// Successful reports whether the run completed with every future succeeding.
func (r *DeploymentResult) Successful() bool {
	return r.Type == ResultTypeSuccessful
}

// NewDeployer wires a deployer. A nil sink disables progress events.
func NewDeployer(store *journal.Store, client ChainClient, artifacts *artifact.Store, cfg Config, sink EventSink) *Deployer {
	return &Deployer{
		store:     store,
		client:    client,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger.Named("deployer"),
		sink:      sink,
	}
}

// Deploy validates, reconciles and executes the plan, resuming from
// whatever the journal already recorded.
func (d *Deployer) Deploy(ctx context.Context, p *plan.Plan) (*DeploymentResult, error) {
	chainID, err := d.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	cfg := d.cfg
	if len(cfg.Accounts) == 0 {
		if cfg.Accounts, err = d.client.Accounts(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.DefaultSender == (common.Address{}) {
		if len(cfg.Accounts) == 0 {
			return nil, fmt.Errorf("no default sender configured and the node exposes no accounts")
		}
		cfg.DefaultSender = cfg.Accounts[0]
	}

	state, err := d.store.Replay()
	if err != nil {
		return nil, err
	}
	if state != nil && state.ChainID != chainID {
		return nil, fmt.Errorf("journal was written for chain %d but the node reports chain %d", state.ChainID, chainID)
	}

	if failures := plan.Validate(p, d.artifacts, cfg.Parameters, len(cfg.Accounts)); len(failures) > 0 {
		return &DeploymentResult{Type: ResultTypeValidationError, Validation: failures}, nil
	}

	reconciliation := Reconcile(p, state, cfg.Strategy, cfg.Parameters, cfg.Accounts, cfg.DefaultSender)
	if len(reconciliation.Mismatches) > 0 {
		return &DeploymentResult{Type: ResultTypeReconciliationError, Reconciliation: reconciliation.Mismatches}, nil
	}
	if len(reconciliation.PreviousRuns) > 0 {
		return &DeploymentResult{Type: ResultTypePreviousRunError, PreviousRuns: reconciliation.PreviousRuns}, nil
	}

	if state == nil {
		if state, err = d.store.Apply(nil, &journal.Message{Type: journal.MsgDeploymentInitialize, ChainID: chainID}); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	if state, err = d.store.Apply(state, &journal.Message{Type: journal.MsgRunStart, RunID: runID}); err != nil {
		return nil, err
	}
	d.sink.emit(Event{Type: EventRunStart, RunID: runID})
	d.logger.Info("starting deployment run", "run", runID, "chain", chainID, "futures", len(p.AllFutures()))

	batches, err := Batches(p, state)
	if err != nil {
		return nil, err
	}

	holder := &stateHolder{store: d.store, state: state}
	proc := &processor{
		artifacts: d.artifacts,
		client:    d.client,
		store:     d.store,
		holder:    holder,
		strategy:  cfg.Strategy,
		nonces:    NewNonceManager(d.client, state),
		cfg:       cfg,
		logger:    logger.Named("processor"),
		sink:      d.sink,
	}

	if err := d.runBatches(ctx, p, proc, holder, batches); err != nil {
		return nil, err
	}

	return d.buildResult(p, holder.current()), nil
}

// runBatches executes waves in order, futures within a wave concurrently.
// Execution stops after the first wave that leaves a failure behind; later
// waves could only be skipped anyway.
func (d *Deployer) runBatches(ctx context.Context, p *plan.Plan, proc *processor, holder *stateHolder, batches [][]string) error {
	for i, batch := range batches {
		d.sink.emit(Event{Type: EventBatchStart, Batch: i + 1})
		d.logger.Debug("executing batch", "batch", i+1, "futures", len(batch))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for _, id := range batch {
			f, ok := p.Future(id)
			if !ok {
				return fmt.Errorf("internal error: batched future %q is not in the plan", id)
			}
			if !dependenciesSucceeded(f, holder.current()) {
				continue
			}

			wg.Add(1)
			go func(f plan.Future) {
				defer wg.Done()
				if _, err := proc.ProcessFuture(ctx, f); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(f)
		}
		wg.Wait()

		if len(errs) > 0 {
			return errs[0]
		}
		if batchLeftFailures(holder.current(), batch) {
			break
		}
	}
	return nil
}

func dependenciesSucceeded(f plan.Future, state *journal.DeploymentState) bool {
	for _, dep := range f.Dependencies() {
		es, ok := state.ExecutionStates[dep.ID()]
		if !ok || es.Status != journal.StatusSuccess {
			return false
		}
	}
	return true
}

func batchLeftFailures(state *journal.DeploymentState, batch []string) bool {
	for _, id := range batch {
		es, ok := state.ExecutionStates[id]
		if !ok || es.Status != journal.StatusSuccess {
			return true
		}
	}
	return false
}

// buildResult classifies the final state of every plan future.
func (d *Deployer) buildResult(p *plan.Plan, state *journal.DeploymentState) *DeploymentResult {
	result := &DeploymentResult{Type: ResultTypeSuccessful}

	for _, f := range p.AllFutures() {
		es, ok := state.ExecutionStates[f.ID()]
		if !ok {
			result.Skipped = append(result.Skipped, f.ID())
			continue
		}

		switch es.Status {
		case journal.StatusSuccess:
			if es.ContractAddress != nil {
				result.Contracts = append(result.Contracts, DeployedContract{
					FutureID:     f.ID(),
					ContractName: es.ContractName,
					Address:      *es.ContractAddress,
				})
			}
		case journal.StatusFailed:
			result.Failed = append(result.Failed, FutureOutcome{FutureID: f.ID(), Error: resultError(es)})
		case journal.StatusTimeout:
			result.TimedOut = append(result.TimedOut, FutureOutcome{FutureID: f.ID(), Error: "transaction was not confirmed within the fee bump budget"})
		case journal.StatusHeld:
			result.Held = append(result.Held, FutureOutcome{FutureID: f.ID(), Error: resultError(es)})
		default:
			result.Skipped = append(result.Skipped, f.ID())
		}
	}

	if len(result.Failed) > 0 || len(result.TimedOut) > 0 || len(result.Held) > 0 || len(result.Skipped) > 0 {
		result.Type = ResultTypeExecutionError
	}
	return result
}

func resultError(es *journal.ExecutionState) string {
	if es.Result == nil {
		return "unknown failure"
	}
	if es.Result.Error != "" {
		return es.Result.Error
	}
	return es.Result.Reason
}

// Wipe removes a future's execution state so it can run fresh. Futures that
// other recorded states depend on cannot be wiped.
func (d *Deployer) Wipe(futureID string) error {
	if err := Wipe(d.store, futureID); err != nil {
		return err
	}
	d.sink.emit(Event{Type: EventWiped, FutureID: futureID})
	d.logger.Info("wiped future", "future", futureID)
	return nil
}

// Wipe removes one future's execution state from the journal.
func Wipe(store *journal.Store, futureID string) error {
	state, err := store.Replay()
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("deployment journal is empty")
	}
	if _, ok := state.ExecutionStates[futureID]; !ok {
		return fmt.Errorf("no execution state recorded for %q", futureID)
	}

	for id, es := range state.ExecutionStates {
		for _, dep := range es.Dependencies {
			if dep == futureID {
				return fmt.Errorf("cannot wipe %q: %q depends on it, wipe that first", futureID, id)
			}
		}
	}

	_, err = store.Apply(state, &journal.Message{Type: journal.MsgWipe, FutureID: futureID})
	return err
}

// Status returns the journaled state for inspection, nil when nothing ran.
func (d *Deployer) Status() (*journal.DeploymentState, error) {
	return d.store.Replay()
}

// stateHolder serializes journal writes from concurrently executing futures
// and hands out the latest folded state.
type stateHolder struct {
	store *journal.Store

	mu    sync.Mutex
	state *journal.DeploymentState
}

func (h *stateHolder) current() *journal.DeploymentState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *stateHolder) apply(msg *journal.Message) (*journal.DeploymentState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.store.Apply(h.state, msg)
	if err != nil {
		return nil, err
	}
	h.state = next
	return next, nil
}
