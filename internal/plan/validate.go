package plan

import (
	"errors"
	"fmt"

	"github.com/compose-network/chainplan/internal/artifact"
)

// DeploymentParameters maps module id -> parameter name -> value.
type DeploymentParameters map[string]map[string]any

// Param looks up a parameter, falling back to the given default.
func (p DeploymentParameters) Param(moduleID, name string, defaultValue any) (any, bool) {
	if moduleValues, ok := p[moduleID]; ok {
		if value, ok := moduleValues[name]; ok {
			return value, true
		}
	}
	if defaultValue != nil {
		return defaultValue, true
	}
	return nil, false
}

// ValidationFailure names one future that failed validation.
type ValidationFailure struct {
	FutureID string
	Message  string
}

func (v ValidationFailure) String() string {
	return fmt.Sprintf("%s: %s", v.FutureID, v.Message)
}

// Validate checks every future of the plan against the available artifacts,
// deployment parameters and account list. It runs before any network
// interaction; any failure aborts the whole run.
func Validate(p *Plan, artifacts *artifact.Store, params DeploymentParameters, accountCount int) []ValidationFailure {
	var failures []ValidationFailure

	fail := func(f Future, format string, args ...any) {
		failures = append(failures, ValidationFailure{
			FutureID: f.ID(),
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for _, f := range p.AllFutures() {
		switch fut := f.(type) {
		case *ContractDeployment:
			art, err := artifacts.Load(fut.ContractName)
			if err != nil {
				fail(f, "artifact not found for contract %q", fut.ContractName)
				continue
			}
			parsed, err := art.Parsed()
			if err != nil {
				fail(f, "invalid ABI: %v", err)
				continue
			}
			if got, want := len(fut.Args), len(parsed.Constructor.Inputs); got != want {
				fail(f, "constructor of %q expects %d argument(s), got %d", fut.ContractName, want, got)
			}
			failures = append(failures, validateValues(f, params, accountCount, fut.Args, fut.Value, fut.From)...)

		case *LibraryDeployment:
			if _, err := artifacts.Load(fut.ContractName); err != nil {
				fail(f, "artifact not found for library %q", fut.ContractName)
			}
			failures = append(failures, validateValues(f, params, accountCount, nil, nil, fut.From)...)

		case *ContractCall:
			failures = append(failures, validateFunction(f, fut.Contract, fut.FunctionName, fut.Args, artifacts)...)
			failures = append(failures, validateValues(f, params, accountCount, fut.Args, fut.Value, fut.From)...)

		case *StaticCall:
			failures = append(failures, validateFunction(f, fut.Contract, fut.FunctionName, fut.Args, artifacts)...)
			failures = append(failures, validateValues(f, params, accountCount, fut.Args, nil, fut.From)...)

		case *EncodeFunctionCall:
			failures = append(failures, validateFunction(f, fut.Contract, fut.FunctionName, fut.Args, artifacts)...)
			failures = append(failures, validateValues(f, params, accountCount, fut.Args, nil, nil)...)

		case *ContractAt:
			if _, err := artifacts.Load(fut.ContractName); err != nil {
				fail(f, "artifact not found for contract %q", fut.ContractName)
			}
			failures = append(failures, validateValues(f, params, accountCount, []any{fut.Address}, nil, nil)...)

		case *ReadEventArgument:
			name := contractNameOf(fut.Emitter)
			if name == "" {
				fail(f, "emitter future %q does not resolve to a contract", fut.Emitter.ID())
				continue
			}
			art, err := artifacts.Load(name)
			if err != nil {
				fail(f, "artifact not found for emitter contract %q", name)
				continue
			}
			parsed, err := art.Parsed()
			if err != nil {
				fail(f, "invalid ABI: %v", err)
				continue
			}
			if _, ok := parsed.Events[fut.EventName]; !ok {
				fail(f, "contract %q has no event %q", name, fut.EventName)
			}

		case *SendData:
			failures = append(failures, validateValues(f, params, accountCount, []any{fut.To, fut.Data}, fut.Value, fut.From)...)
		}
	}

	return failures
}

func validateFunction(f Future, contract Future, functionName string, args []any, artifacts *artifact.Store) []ValidationFailure {
	name := contractNameOf(contract)
	if name == "" {
		return []ValidationFailure{{FutureID: f.ID(), Message: fmt.Sprintf("target future %q does not resolve to a contract", contract.ID())}}
	}
	art, err := artifacts.Load(name)
	if err != nil {
		return []ValidationFailure{{FutureID: f.ID(), Message: fmt.Sprintf("artifact not found for contract %q", name)}}
	}
	parsed, err := art.Parsed()
	if err != nil {
		return []ValidationFailure{{FutureID: f.ID(), Message: fmt.Sprintf("invalid ABI: %v", err)}}
	}
	method, ok := parsed.Methods[functionName]
	if !ok {
		return []ValidationFailure{{FutureID: f.ID(), Message: fmt.Sprintf("contract %q has no function %q", name, functionName)}}
	}
	if got, want := len(args), len(method.Inputs); got != want {
		return []ValidationFailure{{FutureID: f.ID(), Message: fmt.Sprintf("function %q expects %d argument(s), got %d", functionName, want, got)}}
	}
	return nil
}

// validateValues walks argument trees checking runtime values: account
// indices in bounds, parameters present or defaulted.
func validateValues(f Future, params DeploymentParameters, accountCount int, args []any, extra ...any) []ValidationFailure {
	var failures []ValidationFailure

	var walk func(value any)
	walk = func(value any) {
		switch v := value.(type) {
		case AccountValue:
			if v.Index < 0 || v.Index >= accountCount {
				failures = append(failures, ValidationFailure{
					FutureID: f.ID(),
					Message:  fmt.Sprintf("account index %d out of range: %d account(s) available", v.Index, accountCount),
				})
			}
		case ParamValue:
			if _, ok := params.Param(v.ModuleID, v.Name, v.Default); !ok {
				failures = append(failures, ValidationFailure{
					FutureID: f.ID(),
					Message:  fmt.Sprintf("missing deployment parameter %q for module %q", v.Name, v.ModuleID),
				})
			}
		case []any:
			for _, item := range v {
				walk(item)
			}
		case map[string]any:
			for _, item := range v {
				walk(item)
			}
		}
	}

	for _, arg := range args {
		walk(arg)
	}
	for _, value := range extra {
		if value != nil {
			walk(value)
		}
	}

	return failures
}

// contractNameOf resolves the contract name behind an address-resolvable
// future chain.
func contractNameOf(f Future) string {
	switch fut := f.(type) {
	case *ContractDeployment:
		return fut.ContractName
	case *LibraryDeployment:
		return fut.ContractName
	case *ContractAt:
		return fut.ContractName
	default:
		return ""
	}
}

// ErrValidation wraps validation failures for callers that want one error.
func ErrValidation(failures []ValidationFailure) error {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, len(failures))
	for i, failure := range failures {
		errs[i] = errors.New(failure.String())
	}
	return fmt.Errorf("plan validation failed: %w", errors.Join(errs...))
}
