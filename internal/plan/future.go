// Package plan models a deployment plan: an immutable DAG of futures with
// explicit dependency edges, built once ahead of a run.
package plan

import "math/big"

// FutureType tags the closed set of future variants.
type FutureType string

const (
	FutureTypeContractDeployment FutureType = "CONTRACT_DEPLOYMENT"
	FutureTypeLibraryDeployment  FutureType = "LIBRARY_DEPLOYMENT"
	FutureTypeContractCall       FutureType = "CONTRACT_CALL"
	FutureTypeStaticCall         FutureType = "STATIC_CALL"
	FutureTypeEncodeFunctionCall FutureType = "ENCODE_FUNCTION_CALL"
	FutureTypeContractAt         FutureType = "CONTRACT_AT"
	FutureTypeReadEventArgument  FutureType = "READ_EVENT_ARGUMENT"
	FutureTypeSendData           FutureType = "SEND_DATA"
)

// Future is one declarative unit of deployment work. Implementations are
// immutable once constructed; dependency edges reference futures owned by
// their module.
type Future interface {
	ID() string
	Type() FutureType
	ModuleID() string
	Dependencies() []Future
}

type baseFuture struct {
	id       string
	futType  FutureType
	moduleID string
	deps     []Future
	depSeen  map[string]struct{}
}

func (b *baseFuture) ID() string           { return b.id }
func (b *baseFuture) Type() FutureType     { return b.futType }
func (b *baseFuture) ModuleID() string     { return b.moduleID }
func (b *baseFuture) Dependencies() []Future {
	out := make([]Future, len(b.deps))
	copy(out, b.deps)
	return out
}

func (b *baseFuture) addDependency(f Future) {
	if f == nil {
		return
	}
	if b.depSeen == nil {
		b.depSeen = map[string]struct{}{}
	}
	if _, ok := b.depSeen[f.ID()]; ok {
		return
	}
	b.depSeen[f.ID()] = struct{}{}
	b.deps = append(b.deps, f)
}

// addValueDependencies walks an argument tree recording every future and the
// futures behind runtime values as dependencies.
func (b *baseFuture) addValueDependencies(value any) {
	switch v := value.(type) {
	case Future:
		b.addDependency(v)
	case []any:
		for _, item := range v {
			b.addValueDependencies(item)
		}
	case map[string]any:
		for _, item := range v {
			b.addValueDependencies(item)
		}
	}
}

type (
	// ContractDeployment deploys a contract from an artifact with constructor
	// arguments and optional library links.
	ContractDeployment struct {
		baseFuture
		ContractName string
		Args         []any
		Libraries    map[string]Future
		Value        any // *big.Int, ParamValue, or a value-producing Future
		From         any // string address or AccountValue
	}

	// LibraryDeployment deploys a library (no constructor args, no value).
	LibraryDeployment struct {
		baseFuture
		ContractName string
		Libraries    map[string]Future
		From         any
	}

	// ContractCall sends a state-mutating function call to a deployed contract.
	ContractCall struct {
		baseFuture
		Contract     Future
		FunctionName string
		Args         []any
		Value        any
		From         any
	}

	// StaticCall reads a value from a contract without sending a transaction.
	StaticCall struct {
		baseFuture
		Contract     Future
		FunctionName string
		Args         []any
		NameOrIndex  string
		From         any
	}

	// EncodeFunctionCall ABI-encodes a call without performing it. Completes
	// at initialization.
	EncodeFunctionCall struct {
		baseFuture
		Contract     Future
		FunctionName string
		Args         []any
	}

	// ContractAt binds a contract name to an existing address. Completes at
	// initialization.
	ContractAt struct {
		baseFuture
		ContractName string
		Address      any // string, ParamValue, or address-producing Future
	}

	// ReadEventArgument reads an argument from an event emitted by a prior
	// future's transaction. Completes at initialization.
	ReadEventArgument struct {
		baseFuture
		ReadFrom    Future
		Emitter     Future
		EventName   string
		NameOrIndex string
		EventIndex  int
	}

	// SendData sends a raw transaction with optional calldata and value.
	SendData struct {
		baseFuture
		To    any // string address, AccountValue, ParamValue, or Future
		Data  any // string hex or an EncodeFunctionCall future
		Value any
		From  any
	}
)

// Runtime values stand in for values only known at execution time. They are
// substituted with concrete values during resolution.
type (
	// AccountValue references an account by index in the node's account list.
	AccountValue struct {
		Index int
	}

	// ParamValue references a deployment parameter by module and name, with
	// an optional default.
	ParamValue struct {
		ModuleID string
		Name     string
		Default  any
	}
)

// Value wraps a wei amount literal for use in argument or value positions.
func Value(wei int64) *big.Int {
	return big.NewInt(wei)
}
