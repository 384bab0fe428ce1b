package exec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/plan"
)

// resolver substitutes runtime placeholders (accounts, parameters, future
// references) with concrete values against the current deployment state.
// Resolution happens immediately before an execution state is initialized,
// so every referenced future is already terminal.
type resolver struct {
	state         *journal.DeploymentState
	params        plan.DeploymentParameters
	accounts      []common.Address
	defaultSender common.Address
}

// resolveArgs resolves a full argument list.
func (r *resolver) resolveArgs(args []any) ([]any, error) {
	resolved := make([]any, len(args))
	for i, arg := range args {
		value, err := r.resolve(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		resolved[i] = value
	}
	return resolved, nil
}

// resolve substitutes a single value, recursing into lists and maps.
func (r *resolver) resolve(value any) (any, error) {
	switch v := value.(type) {
	case plan.AccountValue:
		if v.Index < 0 || v.Index >= len(r.accounts) {
			return nil, fmt.Errorf("account index %d is out of range (%d account(s) available)", v.Index, len(r.accounts))
		}
		return r.accounts[v.Index], nil

	case plan.ParamValue:
		resolved, ok := r.params.Param(v.ModuleID, v.Name, v.Default)
		if !ok {
			return nil, fmt.Errorf("parameter %q of module %q was not provided and has no default", v.Name, v.ModuleID)
		}
		return r.resolve(resolved)

	case plan.Future:
		return r.futureResult(v)

	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			item, err := r.resolve(item)
			if err != nil {
				return nil, err
			}
			resolved[i] = item
		}
		return resolved, nil

	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, item := range v {
			item, err := r.resolve(item)
			if err != nil {
				return nil, err
			}
			resolved[key] = item
		}
		return resolved, nil

	default:
		return value, nil
	}
}

// futureResult reads the concrete value produced by an already-executed
// future. Referencing a future that has not succeeded is an ordering
// violation, not a user error.
func (r *resolver) futureResult(f plan.Future) (any, error) {
	es, ok := r.state.ExecutionStates[f.ID()]
	if !ok || es.Status != journal.StatusSuccess {
		return nil, fmt.Errorf("internal ordering violation: future %q was referenced before completing", f.ID())
	}

	switch f.Type() {
	case plan.FutureTypeContractDeployment, plan.FutureTypeLibraryDeployment, plan.FutureTypeContractAt:
		if es.ContractAddress == nil {
			return nil, fmt.Errorf("future %q succeeded without an address", f.ID())
		}
		return *es.ContractAddress, nil

	case plan.FutureTypeStaticCall, plan.FutureTypeReadEventArgument, plan.FutureTypeEncodeFunctionCall:
		if es.Result == nil {
			return nil, fmt.Errorf("future %q succeeded without a result", f.ID())
		}
		return es.Result.Value, nil

	default:
		return nil, fmt.Errorf("future %q of type %s produces no usable value", f.ID(), f.Type())
	}
}

// resolveAddress resolves a value that must end up as an address.
func (r *resolver) resolveAddress(value any) (common.Address, error) {
	resolved, err := r.resolve(value)
	if err != nil {
		return common.Address{}, err
	}
	return coerceAddress(resolved)
}

// resolveFrom resolves a sender, falling back to the configured default.
func (r *resolver) resolveFrom(value any) (common.Address, error) {
	if value == nil {
		return r.defaultSender, nil
	}
	return r.resolveAddress(value)
}

// resolveValue resolves a wei amount, nil meaning zero.
func (r *resolver) resolveValue(value any) (*big.Int, error) {
	if value == nil {
		return big.NewInt(0), nil
	}
	resolved, err := r.resolve(value)
	if err != nil {
		return nil, err
	}
	return toBig(resolved)
}

// resolveLibraries maps library futures to their deployed addresses.
func (r *resolver) resolveLibraries(libraries map[string]plan.Future) (map[string]common.Address, error) {
	if len(libraries) == 0 {
		return nil, nil
	}
	resolved := make(map[string]common.Address, len(libraries))
	for name, f := range libraries {
		address, err := r.resolveAddress(f)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", name, err)
		}
		resolved[name] = address
	}
	return resolved, nil
}

// resolveData resolves the calldata of a send-data future: a hex string or
// an encode-call future.
func (r *resolver) resolveData(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	resolved, err := r.resolve(value)
	if err != nil {
		return nil, err
	}
	return coerceBytes(resolved)
}
