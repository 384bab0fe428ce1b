package exec

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/chainplan/internal/journal"
)

// A Strategy decides how a contract deployment reaches the chain and how its
// final address is derived. Calls, static calls and raw sends are not
// strategy-dependent; only deployments go through this interface.
type Strategy interface {
	Name() string
	// Config returns the strategy's reconciliation-relevant configuration.
	Config() map[string]any
	// DeployRequest turns initcode into the transaction request to send.
	DeployRequest(es *journal.ExecutionState, initcode []byte) (*DeployRequest, error)
	// DeployResult derives the deployed address from the confirmed
	// interaction.
	DeployResult(es *journal.ExecutionState, ni *journal.NetworkInteraction) (common.Address, error)
}

// DeployRequest is the transaction shape a strategy wants sent.
type DeployRequest struct {
	To    *common.Address // nil for a plain create
	Data  []byte
	Value *big.Int
}

// NewStrategy builds the named strategy from its raw configuration.
func NewStrategy(name string, config map[string]string) (Strategy, error) {
	switch name {
	case "basic", "":
		return BasicStrategy{}, nil
	case "create2":
		return NewCreate2Strategy(config)
	default:
		return nil, fmt.Errorf("unknown deployment strategy %q", name)
	}
}

// BasicStrategy deploys with a plain create transaction and reads the
// address from the receipt.
type BasicStrategy struct{}

func (BasicStrategy) Name() string           { return "basic" }
func (BasicStrategy) Config() map[string]any { return map[string]any{} }

func (BasicStrategy) DeployRequest(es *journal.ExecutionState, initcode []byte) (*DeployRequest, error) {
	var value *big.Int
	if es.Value != nil {
		value = es.Value.ToInt()
	}
	return &DeployRequest{Data: initcode, Value: value}, nil
}

func (BasicStrategy) DeployResult(es *journal.ExecutionState, ni *journal.NetworkInteraction) (common.Address, error) {
	confirmed := ni.ConfirmedTransaction()
	if confirmed == nil || confirmed.Receipt == nil || confirmed.Receipt.ContractAddress == nil {
		return common.Address{}, fmt.Errorf("deployment of %s confirmed without a contract address", es.ID)
	}
	return *confirmed.Receipt.ContractAddress, nil
}

// Create2Strategy deploys through a CREATE2 factory for deterministic
// addresses. The factory is expected to take salt-prefixed initcode as raw
// calldata, the convention of the widely deployed singleton factory.
type Create2Strategy struct {
	factory common.Address
	salt    common.Hash
}

// NewCreate2Strategy validates the factory address and 32-byte salt from
// the strategy configuration.
func NewCreate2Strategy(config map[string]string) (Create2Strategy, error) {
	rawFactory, ok := config["factory"]
	if !ok || !common.IsHexAddress(rawFactory) {
		return Create2Strategy{}, fmt.Errorf("create2 strategy requires a valid %q address in its configuration", "factory")
	}

	rawSalt, ok := config["salt"]
	if !ok {
		return Create2Strategy{}, fmt.Errorf("create2 strategy requires a %q in its configuration", "salt")
	}
	salt := common.FromHex(rawSalt)
	if len(salt) != common.HashLength {
		return Create2Strategy{}, fmt.Errorf("create2 salt must be exactly %d bytes, got %d", common.HashLength, len(salt))
	}

	return Create2Strategy{
		factory: common.HexToAddress(rawFactory),
		salt:    common.BytesToHash(salt),
	}, nil
}

func (s Create2Strategy) Name() string { return "create2" }

func (s Create2Strategy) Config() map[string]any {
	return map[string]any{
		"factory": s.factory.Hex(),
		"salt":    s.salt.Hex(),
	}
}

// Precheck holds the deployment when the factory is not present on the
// target chain, instead of burning gas on a transaction that cannot work.
func (s Create2Strategy) Precheck(ctx context.Context, client ChainClient) (*journal.ExecutionResult, error) {
	code, err := client.Code(ctx, s.factory)
	if err != nil {
		return nil, fmt.Errorf("failed to check CREATE2 factory code: %w", err)
	}
	if len(code) == 0 {
		return &journal.ExecutionResult{
			Kind:   journal.ResultHeld,
			HeldID: 1,
			Reason: fmt.Sprintf("CREATE2 factory %s has no code on this chain", s.factory),
		}, nil
	}
	return nil, nil
}

func (s Create2Strategy) DeployRequest(es *journal.ExecutionState, initcode []byte) (*DeployRequest, error) {
	if es.Value != nil && es.Value.ToInt().Sign() > 0 {
		return nil, fmt.Errorf("create2 deployments cannot carry value (%s)", es.ID)
	}

	factory := s.factory
	data := make([]byte, 0, common.HashLength+len(initcode))
	data = append(data, s.salt.Bytes()...)
	data = append(data, initcode...)
	return &DeployRequest{To: &factory, Data: data}, nil
}

func (s Create2Strategy) DeployResult(es *journal.ExecutionState, ni *journal.NetworkInteraction) (common.Address, error) {
	if len(ni.Data) <= common.HashLength {
		return common.Address{}, fmt.Errorf("create2 interaction of %s carries no initcode", es.ID)
	}
	salt := common.BytesToHash(ni.Data[:common.HashLength])
	initcodeHash := crypto.Keccak256(ni.Data[common.HashLength:])
	return crypto.CreateAddress2(s.factory, salt, initcodeHash), nil
}
