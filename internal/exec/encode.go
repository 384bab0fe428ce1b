package exec

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	bind "github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/compose-network/chainplan/internal/artifact"
	"github.com/compose-network/chainplan/internal/journal"
)

// constructorData builds the deployment initcode: linked bytecode followed by
// the ABI-encoded constructor arguments.
func constructorData(art *artifact.Artifact, args []any, libraries map[string]common.Address) ([]byte, error) {
	bytecode, err := art.LinkedBytecode(libraries)
	if err != nil {
		return nil, err
	}

	parsed, err := art.Parsed()
	if err != nil {
		return nil, err
	}

	coerced, err := coerceArgs(parsed.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("constructor of %s: %w", art.ContractName, err)
	}
	encoded, err := parsed.Constructor.Inputs.Pack(coerced...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode constructor arguments of %s: %w", art.ContractName, err)
	}

	return append(bytecode, encoded...), nil
}

// callData ABI-encodes a function call against the artifact's ABI.
func callData(art *artifact.Artifact, functionName string, args []any) ([]byte, error) {
	parsed, err := art.Parsed()
	if err != nil {
		return nil, err
	}

	method, ok := parsed.Methods[functionName]
	if !ok {
		return nil, fmt.Errorf("contract %s has no function %q", art.ContractName, functionName)
	}

	coerced, err := coerceArgs(method.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", art.ContractName, functionName, err)
	}
	encoded, err := parsed.Pack(functionName, coerced...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call to %s.%s: %w", art.ContractName, functionName, err)
	}

	return encoded, nil
}

// decodeStaticResult unpacks a static call's return data and picks the output
// selected by nameOrIndex (a decimal position or an output name).
func decodeStaticResult(art *artifact.Artifact, functionName, nameOrIndex string, returnData []byte) (any, error) {
	parsed, err := art.Parsed()
	if err != nil {
		return nil, err
	}

	method, ok := parsed.Methods[functionName]
	if !ok {
		return nil, fmt.Errorf("contract %s has no function %q", art.ContractName, functionName)
	}

	values, err := method.Outputs.Unpack(returnData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode return data of %s.%s: %w", art.ContractName, functionName, err)
	}

	if index, err := strconv.Atoi(nameOrIndex); err == nil {
		if index < 0 || index >= len(values) {
			return nil, fmt.Errorf("%s.%s has no output at position %d", art.ContractName, functionName, index)
		}
		return journalValue(values[index]), nil
	}

	for i, output := range method.Outputs {
		if output.Name == nameOrIndex {
			return journalValue(values[i]), nil
		}
	}
	return nil, fmt.Errorf("%s.%s has no output named %q", art.ContractName, functionName, nameOrIndex)
}

// readEventArgument finds the eventIndex-th occurrence of the event emitted
// by emitter in the receipt and extracts the argument named or positioned by
// nameOrIndex. Anonymous events are not supported.
func readEventArgument(
	art *artifact.Artifact,
	receipt *journal.Receipt,
	emitter common.Address,
	eventName, nameOrIndex string,
	eventIndex int,
) (any, error) {
	parsed, err := art.Parsed()
	if err != nil {
		return nil, err
	}

	event, ok := parsed.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("contract %s has no event %q", art.ContractName, eventName)
	}

	var matches []journal.Log
	for _, entry := range receipt.Logs {
		if entry.Address == emitter && len(entry.Topics) > 0 && entry.Topics[0] == event.ID {
			matches = append(matches, entry)
		}
	}
	if eventIndex < 0 || eventIndex >= len(matches) {
		return nil, fmt.Errorf("event %s was emitted %d time(s) by %s, index %d is out of range",
			eventName, len(matches), emitter, eventIndex)
	}
	entry := matches[eventIndex]

	values := map[string]any{}
	bound := bind.NewBoundContract(emitter, parsed, nil, nil, nil)
	if err := bound.UnpackLogIntoMap(values, eventName, toGethLog(entry)); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", eventName, err)
	}

	name := nameOrIndex
	if index, err := strconv.Atoi(nameOrIndex); err == nil {
		if index < 0 || index >= len(event.Inputs) {
			return nil, fmt.Errorf("event %s has no argument at position %d", eventName, index)
		}
		name = event.Inputs[index].Name
	}

	value, ok := values[name]
	if !ok {
		return nil, fmt.Errorf("event %s has no argument named %q", eventName, name)
	}
	return journalValue(value), nil
}

func toGethLog(entry journal.Log) types.Log {
	return types.Log{
		Address: entry.Address,
		Topics:  entry.Topics,
		Data:    entry.Data,
	}
}

// journalValue converts a decoded ABI value to a shape that survives a JSON
// round trip through the journal unchanged.
func journalValue(value any) any {
	switch v := value.(type) {
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case *big.Int:
		return v.String()
	case [32]byte:
		return common.BytesToHash(v[:]).Hex()
	case []byte:
		return "0x" + common.Bytes2Hex(v)
	default:
		return value
	}
}

// coerceArgs converts loosely-typed plan arguments into the exact Go types
// the ABI encoder expects.
func coerceArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("expected %d argument(s), got %d", len(inputs), len(args))
	}

	coerced := make([]any, len(args))
	for i, arg := range args {
		value, err := coerce(arg, inputs[i].Type)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		coerced[i] = value
	}
	return coerced, nil
}

func coerce(value any, typ abi.Type) (any, error) {
	switch typ.T {
	case abi.AddressTy:
		return coerceAddress(value)
	case abi.UintTy, abi.IntTy:
		return coerceInteger(value, typ)
	case abi.BoolTy:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot use %T as bool", value)
	case abi.StringTy:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("cannot use %T as string", value)
	case abi.BytesTy:
		return coerceBytes(value)
	case abi.FixedBytesTy:
		return coerceFixedBytes(value, typ.Size)
	case abi.SliceTy, abi.ArrayTy:
		return coerceList(value, typ)
	default:
		return nil, fmt.Errorf("unsupported ABI type %s", typ)
	}
}

func coerceAddress(value any) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	case string:
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("%q is not a valid address", v)
		}
		return common.HexToAddress(v), nil
	default:
		return common.Address{}, fmt.Errorf("cannot use %T as address", value)
	}
}

func coerceInteger(value any, typ abi.Type) (any, error) {
	amount, err := toBig(value)
	if err != nil {
		return nil, err
	}
	if typ.Size > 64 {
		return amount, nil
	}

	// Sub-word integers must be packed as their exact Go type.
	if typ.T == abi.UintTy {
		if !amount.IsUint64() {
			return nil, fmt.Errorf("%s does not fit in uint%d", amount, typ.Size)
		}
		raw := amount.Uint64()
		switch typ.Size {
		case 8:
			return uint8(raw), nil
		case 16:
			return uint16(raw), nil
		case 32:
			return uint32(raw), nil
		default:
			return raw, nil
		}
	}
	if !amount.IsInt64() {
		return nil, fmt.Errorf("%s does not fit in int%d", amount, typ.Size)
	}
	raw := amount.Int64()
	switch typ.Size {
	case 8:
		return int8(raw), nil
	case 16:
		return int16(raw), nil
	case 32:
		return int32(raw), nil
	default:
		return raw, nil
	}
}

func toBig(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return v, nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float64:
		// JSON-decoded parameters arrive as float64.
		amount, accuracy := big.NewFloat(v).Int(nil)
		if accuracy != big.Exact {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		return amount, nil
	case string:
		base := 10
		raw := v
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			base = 16
			raw = v[2:]
		}
		amount, ok := new(big.Int).SetString(raw, base)
		if !ok {
			return nil, fmt.Errorf("%q is not a valid integer", v)
		}
		return amount, nil
	default:
		return nil, fmt.Errorf("cannot use %T as integer", value)
	}
}

func coerceBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		if !strings.HasPrefix(v, "0x") {
			return nil, fmt.Errorf("byte strings must be 0x-prefixed hex, got %q", v)
		}
		return common.FromHex(v), nil
	default:
		return nil, fmt.Errorf("cannot use %T as bytes", value)
	}
}

func coerceFixedBytes(value any, size int) (any, error) {
	raw, err := coerceBytes(value)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, len(raw))
	}

	array := reflect.New(reflect.ArrayOf(size, reflect.TypeOf(byte(0)))).Elem()
	reflect.Copy(array, reflect.ValueOf(raw))
	return array.Interface(), nil
}

func coerceList(value any, typ abi.Type) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot use %T as %s", value, typ)
	}
	if typ.T == abi.ArrayTy && len(items) != typ.Size {
		return nil, fmt.Errorf("expected %d element(s), got %d", typ.Size, len(items))
	}

	var list reflect.Value
	if typ.T == abi.ArrayTy {
		list = reflect.New(typ.GetType()).Elem()
	} else {
		list = reflect.MakeSlice(typ.GetType(), len(items), len(items))
	}
	for i, item := range items {
		coerced, err := coerce(item, *typ.Elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		list.Index(i).Set(reflect.ValueOf(coerced))
	}
	return list.Interface(), nil
}
