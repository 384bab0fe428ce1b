package exec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gowebpki/jcs"

	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/plan"
)

// A Failure flags one future whose definition no longer matches what the
// journal recorded for it.
type Failure struct {
	FutureID string
	Message  string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s", f.FutureID, f.Message)
}

// Reconciliation is the verdict on resuming a deployment: definition
// mismatches block the run until the plan is restored, previous-run
// failures block it until the affected futures are wiped.
type Reconciliation struct {
	Mismatches   []Failure
	PreviousRuns []Failure
}

// OK reports whether the run may proceed.
func (r Reconciliation) OK() bool {
	return len(r.Mismatches) == 0 && len(r.PreviousRuns) == 0
}

// Reconcile checks every journaled execution state against the current plan
// definition of the same future. Comparisons run on resolved values, so a
// changed parameter is caught even though the plan shape is identical.
func Reconcile(
	p *plan.Plan,
	state *journal.DeploymentState,
	strategy Strategy,
	params plan.DeploymentParameters,
	accounts []common.Address,
	defaultSender common.Address,
) Reconciliation {
	var out Reconciliation
	if state == nil {
		return out
	}

	r := &resolver{
		state:         state,
		params:        params,
		accounts:      accounts,
		defaultSender: defaultSender,
	}

	for _, f := range p.AllFutures() {
		es, ok := state.ExecutionStates[f.ID()]
		if !ok {
			continue
		}

		switch es.Status {
		case journal.StatusFailed:
			out.PreviousRuns = append(out.PreviousRuns, Failure{
				FutureID: f.ID(),
				Message:  "failed in a previous run, wipe it to retry",
			})
			continue
		case journal.StatusTimeout:
			out.PreviousRuns = append(out.PreviousRuns, Failure{
				FutureID: f.ID(),
				Message:  "timed out in a previous run, wipe it to retry",
			})
			continue
		}

		if mismatch := compareDefinition(f, es, r, strategy); mismatch != nil {
			out.Mismatches = append(out.Mismatches, *mismatch)
		}
	}

	for _, id := range danglingStates(p, state) {
		out.Mismatches = append(out.Mismatches, Failure{
			FutureID: id,
			Message:  "recorded in the journal but missing from the plan",
		})
	}

	return out
}

func compareDefinition(f plan.Future, es *journal.ExecutionState, r *resolver, strategy Strategy) *Failure {
	if es.FutureType != f.Type() {
		return &Failure{f.ID(), fmt.Sprintf("type changed from %s to %s", es.FutureType, f.Type())}
	}
	if es.Strategy != strategy.Name() {
		return &Failure{f.ID(), fmt.Sprintf("strategy changed from %q to %q", es.Strategy, strategy.Name())}
	}
	if !canonicalEqual(es.StrategyConfig, strategy.Config()) {
		return &Failure{f.ID(), "strategy configuration changed"}
	}

	declared := dependencyIDs(f)
	recorded := append([]string(nil), es.Dependencies...)
	sort.Strings(declared)
	sort.Strings(recorded)
	if !canonicalEqual(declared, recorded) {
		return &Failure{f.ID(), "dependencies changed"}
	}

	current, err := resolveDefinition(f, r)
	if err != nil {
		// Unresolvable now, e.g. a parameter lost its value. That is
		// itself a definition change.
		return &Failure{f.ID(), fmt.Sprintf("could not re-resolve definition: %v", err)}
	}

	if !canonicalEqual(comparableFields(current), comparableFields(es)) {
		return &Failure{f.ID(), "resolved definition changed since the journal was written"}
	}
	return nil
}

// resolveDefinition rebuilds just the definition-bearing fields of the
// execution state the current plan would initialize for this future.
func resolveDefinition(f plan.Future, r *resolver) (*journal.ExecutionState, error) {
	es := &journal.ExecutionState{FutureType: f.Type()}

	setCallTarget := func(contract plan.Future) error {
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

	switch future := f.(type) {
	case *plan.ContractDeployment:
		args, err := r.resolveArgs(future.Args)
		if err != nil {
			return nil, err
		}
		libraries, err := r.resolveLibraries(future.Libraries)
		if err != nil {
			return nil, err
		}
		value, err := r.resolveValue(future.Value)
		if err != nil {
			return nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, err
		}
		es.ContractName = future.ContractName
		es.ConstructorArgs = normalizeValues(args)
		es.Libraries = libraries
		es.Value = (*hexutil.Big)(value)
		es.From = from

	case *plan.LibraryDeployment:
		libraries, err := r.resolveLibraries(future.Libraries)
		if err != nil {
			return nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, err
		}
		es.ContractName = future.ContractName
		es.Libraries = libraries
		es.Value = (*hexutil.Big)(big.NewInt(0))
		es.From = from

	case *plan.ContractCall:
		if err := setCallTarget(future.Contract); err != nil {
			return nil, err
		}
		args, err := r.resolveArgs(future.Args)
		if err != nil {
			return nil, err
		}
		value, err := r.resolveValue(future.Value)
		if err != nil {
			return nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, err
		}
		es.FunctionName = future.FunctionName
		es.Args = normalizeValues(args)
		es.Value = (*hexutil.Big)(value)
		es.From = from

	case *plan.StaticCall:
		if err := setCallTarget(future.Contract); err != nil {
			return nil, err
		}
		args, err := r.resolveArgs(future.Args)
		if err != nil {
			return nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, err
		}
		es.FunctionName = future.FunctionName
		es.Args = normalizeValues(args)
		es.NameOrIndex = future.NameOrIndex
		es.From = from

	case *plan.EncodeFunctionCall:
		name, err := targetContractName(future.Contract)
		if err != nil {
			return nil, err
		}
		args, err := r.resolveArgs(future.Args)
		if err != nil {
			return nil, err
		}
		es.ContractName = name
		es.FunctionName = future.FunctionName
		es.Args = normalizeValues(args)

	case *plan.ContractAt:
		address, err := r.resolveAddress(future.Address)
		if err != nil {
			return nil, err
		}
		es.ContractName = future.ContractName
		es.ContractAddress = &address

	case *plan.ReadEventArgument:
		emitter, err := r.resolveAddress(future.Emitter)
		if err != nil {
			return nil, err
		}
		name, err := targetContractName(future.Emitter)
		if err != nil {
			return nil, err
		}
		es.ContractName = name
		es.EventName = future.EventName
		es.EventIndex = future.EventIndex
		es.NameOrIndex = future.NameOrIndex
		es.EmitterAddress = &emitter

	case *plan.SendData:
		to, err := r.resolveAddress(future.To)
		if err != nil {
			return nil, err
		}
		data, err := r.resolveData(future.Data)
		if err != nil {
			return nil, err
		}
		value, err := r.resolveValue(future.Value)
		if err != nil {
			return nil, err
		}
		from, err := r.resolveFrom(future.From)
		if err != nil {
			return nil, err
		}
		es.To = &to
		es.Data = data
		es.Value = (*hexutil.Big)(value)
		es.From = from

	default:
		return nil, fmt.Errorf("unknown future type %T", f)
	}

	return es, nil
}

// comparableFields picks the definition-bearing fields of an execution
// state, leaving out progress fields. A contract-at address is part of its
// definition; a deployment address is progress and is excluded.
func comparableFields(es *journal.ExecutionState) map[string]any {
	fields := map[string]any{
		"contractName": es.ContractName,
		"args":         es.Args,
		"libraries":    es.Libraries,
		"functionName": es.FunctionName,
		"nameOrIndex":  es.NameOrIndex,
		"eventName":    es.EventName,
		"eventIndex":   es.EventIndex,
		"emitter":      es.EmitterAddress,
		"to":           es.To,
		"data":         es.Data,
		"value":        es.Value,
		"from":         es.From,
	}
	if es.FutureType == plan.FutureTypeContractDeployment {
		fields["args"] = es.ConstructorArgs
	}
	if es.FutureType == plan.FutureTypeContractAt {
		fields["address"] = es.ContractAddress
	}
	return fields
}

// canonicalEqual compares two values by their RFC 8785 canonical JSON
// encoding, making the comparison independent of map order and numeric
// formatting drift.
func canonicalEqual(a, b any) bool {
	return bytes.Equal(canonicalJSON(a), canonicalJSON(b))
}

func canonicalJSON(value any) []byte {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	canonical, err := jcs.Transform(encoded)
	if err != nil {
		return encoded
	}
	return canonical
}

func danglingStates(p *plan.Plan, state *journal.DeploymentState) []string {
	var dangling []string
	for id := range state.ExecutionStates {
		if _, ok := p.Future(id); !ok {
			dangling = append(dangling, id)
		}
	}
	sort.Strings(dangling)
	return dangling
}
