// Package rpc wraps the chain's JSON-RPC interface behind typed, strongly
// validated calls. Every response shape is checked before it is trusted;
// a malformed response fails fast with a descriptive error.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/compose-network/chainplan/internal/logger"
)

// ErrFeeExceedsLimit is returned when the node reports fees above the
// configured cap; a safety valve against a misbehaving node.
var ErrFeeExceedsLimit = errors.New("network fees exceed the configured max-fee-per-gas-limit")

var defaultMaxPriorityFeePerGas = big.NewInt(1_000_000_000) // 1 gwei

type (
	// Config is the static fee policy for a client.
	Config struct {
		// GasPrice forces legacy pricing when set.
		GasPrice             *big.Int
		MaxPriorityFeePerGas *big.Int
		MaxFeePerGasLimit    *big.Int
		// LegacyFeeChains always use eth_gasPrice even when a base fee is
		// reported (polygon mainnet by default).
		LegacyFeeChains []uint64
		// BNBStyleChains report a zero base fee but still require a
		// priority fee, so the zero-fee shortcut must not apply.
		BNBStyleChains []uint64
	}

	// Client is a thin, validated JSON-RPC wrapper. It holds no state
	// beyond its provider handle and static config.
	Client struct {
		rpc    *gethrpc.Client
		cfg    Config
		logger *slog.Logger
	}

	// Block is the subset of a block header the engine needs.
	Block struct {
		Number        uint64
		Hash          common.Hash
		BaseFeePerGas *big.Int // nil on pre-fee-market chains
	}

	// NetworkFees is either legacy (GasPrice set) or EIP-1559 pricing.
	NetworkFees struct {
		GasPrice             *big.Int
		MaxFeePerGas         *big.Int
		MaxPriorityFeePerGas *big.Int
	}

	// CallParams describes an eth_call or simulation.
	CallParams struct {
		From  common.Address
		To    *common.Address
		Data  []byte
		Value *big.Int
		Nonce *uint64
		Fees  *NetworkFees
	}

	// TransactionParams describes an eth_sendTransaction.
	TransactionParams struct {
		From     common.Address
		To       *common.Address
		Data     []byte
		Value    *big.Int
		Nonce    uint64
		GasLimit uint64
		Fees     NetworkFees
	}

	// CallResult is the outcome of a call; a revert is a result, not an
	// error.
	CallResult struct {
		Success    bool
		ReturnData []byte
	}

	// TransactionInfo is the mempool view of a transaction.
	TransactionInfo struct {
		Hash common.Hash
		Fees NetworkFees
	}

	// TransactionReceipt is a validated receipt.
	TransactionReceipt struct {
		BlockHash       common.Hash
		BlockNumber     uint64
		Status          uint64
		ContractAddress *common.Address
		Logs            []ReceiptLog
	}

	// ReceiptLog is one validated receipt log entry.
	ReceiptLog struct {
		Address  common.Address
		LogIndex uint64
		Data     []byte
		Topics   []common.Hash
	}
)

// Legacy reports whether the fees use legacy gas pricing.
func (f NetworkFees) Legacy() bool {
	return f.GasPrice != nil
}

// Max returns the highest price these fees can pay per gas.
func (f NetworkFees) Max() *big.Int {
	if f.Legacy() {
		return f.GasPrice
	}
	return f.MaxFeePerGas
}

// Dial connects to the JSON-RPC endpoint.
func Dial(ctx context.Context, url string, cfg Config) (*Client, error) {
	inner, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial JSON-RPC endpoint %q: %w", url, err)
	}

	return &Client{
		rpc:    inner,
		cfg:    cfg,
		logger: logger.Named("rpc_client"),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain id via eth_chainId.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var raw string
	if err := c.rpc.CallContext(ctx, &raw, "eth_chainId"); err != nil {
		return 0, fmt.Errorf("eth_chainId failed: %w", err)
	}
	return quantityToUint64("eth_chainId", raw)
}

// Accounts returns the addresses the node can sign for.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var raw []string
	if err := c.rpc.CallContext(ctx, &raw, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts failed: %w", err)
	}

	accounts := make([]common.Address, len(raw))
	for i, account := range raw {
		if !common.IsHexAddress(account) {
			return nil, invalidResponse("eth_accounts", account)
		}
		accounts[i] = common.HexToAddress(account)
	}
	return accounts, nil
}

// LatestBlock returns the latest block via eth_getBlockByNumber.
func (c *Client) LatestBlock(ctx context.Context) (Block, error) {
	var raw struct {
		Number        *string `json:"number"`
		Hash          *string `json:"hash"`
		BaseFeePerGas *string `json:"baseFeePerGas"`
	}
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", "latest", false); err != nil {
		return Block{}, fmt.Errorf("eth_getBlockByNumber failed: %w", err)
	}
	if raw.Number == nil || raw.Hash == nil {
		return Block{}, invalidResponse("eth_getBlockByNumber", "missing number or hash")
	}

	number, err := quantityToUint64("eth_getBlockByNumber", *raw.Number)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Number: number,
		Hash:   common.HexToHash(*raw.Hash),
	}
	if raw.BaseFeePerGas != nil {
		baseFee, err := quantityToBig("eth_getBlockByNumber", *raw.BaseFeePerGas)
		if err != nil {
			return Block{}, err
		}
		block.BaseFeePerGas = baseFee
	}

	return block, nil
}

// Balance returns the balance of an address at the given block tag.
func (c *Client) Balance(ctx context.Context, address common.Address, blockTag string) (*big.Int, error) {
	var raw string
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBalance", address, blockTag); err != nil {
		return nil, fmt.Errorf("eth_getBalance failed: %w", err)
	}
	return quantityToBig("eth_getBalance", raw)
}

// Call performs an eth_call. A revert is reported as an unsuccessful result
// with the revert data; transport errors are returned as errors.
func (c *Client) Call(ctx context.Context, params CallParams, blockTag string) (CallResult, error) {
	var raw hexutil.Bytes
	err := c.rpc.CallContext(ctx, &raw, "eth_call", encodeCallParams(params), blockTag)
	if err == nil {
		return CallResult{Success: true, ReturnData: raw}, nil
	}

	if result, ok := revertResult(err); ok {
		return result, nil
	}
	return CallResult{}, fmt.Errorf("eth_call failed: %w", err)
}

// EstimateGas returns a gas estimate for the given transaction.
func (c *Client) EstimateGas(ctx context.Context, params CallParams) (uint64, error) {
	var raw string
	if err := c.rpc.CallContext(ctx, &raw, "eth_estimateGas", encodeCallParams(params)); err != nil {
		return 0, fmt.Errorf("eth_estimateGas failed: %w", err)
	}
	return quantityToUint64("eth_estimateGas", raw)
}

// SendTransaction submits a transaction signed by the node.
func (c *Client) SendTransaction(ctx context.Context, params TransactionParams) (common.Hash, error) {
	encoded := map[string]any{
		"from":  params.From,
		"data":  hexutil.Encode(params.Data),
		"value": bigToQuantity(params.Value),
		"nonce": hexutil.Uint64(params.Nonce),
		"gas":   hexutil.Uint64(params.GasLimit),
	}
	if params.To != nil {
		encoded["to"] = *params.To
	}
	for name, amount := range encodeFees(&params.Fees) {
		encoded[name] = amount
	}

	var raw string
	if err := c.rpc.CallContext(ctx, &raw, "eth_sendTransaction", encoded); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction failed: %w", err)
	}
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		return common.Hash{}, invalidResponse("eth_sendTransaction", raw)
	}
	return common.HexToHash(raw), nil
}

// SendRawTransaction submits a presigned transaction.
func (c *Client) SendRawTransaction(ctx context.Context, presigned []byte) (common.Hash, error) {
	var raw string
	if err := c.rpc.CallContext(ctx, &raw, "eth_sendRawTransaction", hexutil.Encode(presigned)); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction failed: %w", err)
	}
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		return common.Hash{}, invalidResponse("eth_sendRawTransaction", raw)
	}
	return common.HexToHash(raw), nil
}

// TransactionCount returns the nonce of an address at the given block tag
// ("latest", "pending", or a number).
func (c *Client) TransactionCount(ctx context.Context, address common.Address, blockTag string) (uint64, error) {
	var raw string
	if err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionCount", address, blockTag); err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount failed: %w", err)
	}
	return quantityToUint64("eth_getTransactionCount", raw)
}

// TransactionByHash returns mempool info for a transaction, or nil if the
// node no longer knows it.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*TransactionInfo, error) {
	var raw *struct {
		Hash                 *string `json:"hash"`
		GasPrice             *string `json:"gasPrice"`
		MaxFeePerGas         *string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas"`
	}
	if err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	if raw.Hash == nil {
		return nil, invalidResponse("eth_getTransactionByHash", "missing hash")
	}

	info := &TransactionInfo{Hash: common.HexToHash(*raw.Hash)}
	if raw.MaxFeePerGas != nil {
		if raw.MaxPriorityFeePerGas == nil {
			return nil, invalidResponse("eth_getTransactionByHash", "maxFeePerGas without maxPriorityFeePerGas")
		}
		maxFee, err := quantityToBig("eth_getTransactionByHash", *raw.MaxFeePerGas)
		if err != nil {
			return nil, err
		}
		priorityFee, err := quantityToBig("eth_getTransactionByHash", *raw.MaxPriorityFeePerGas)
		if err != nil {
			return nil, err
		}
		info.Fees = NetworkFees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: priorityFee}
		return info, nil
	}
	if raw.GasPrice == nil {
		return nil, invalidResponse("eth_getTransactionByHash", "missing fee fields")
	}
	gasPrice, err := quantityToBig("eth_getTransactionByHash", *raw.GasPrice)
	if err != nil {
		return nil, err
	}
	info.Fees = NetworkFees{GasPrice: gasPrice}
	return info, nil
}

// TransactionReceipt returns the receipt of a transaction, or nil if it is
// not mined yet.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*TransactionReceipt, error) {
	var raw *struct {
		BlockHash       *string `json:"blockHash"`
		BlockNumber     *string `json:"blockNumber"`
		Status          *string `json:"status"`
		ContractAddress *string `json:"contractAddress"`
		Logs            []struct {
			Address  *string  `json:"address"`
			LogIndex *string  `json:"logIndex"`
			Data     *string  `json:"data"`
			Topics   []string `json:"topics"`
		} `json:"logs"`
	}
	if err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	if raw.BlockHash == nil || raw.BlockNumber == nil || raw.Status == nil {
		return nil, invalidResponse("eth_getTransactionReceipt", "missing blockHash, blockNumber or status")
	}

	blockNumber, err := quantityToUint64("eth_getTransactionReceipt", *raw.BlockNumber)
	if err != nil {
		return nil, err
	}
	status, err := quantityToUint64("eth_getTransactionReceipt", *raw.Status)
	if err != nil {
		return nil, err
	}

	receipt := &TransactionReceipt{
		BlockHash:   common.HexToHash(*raw.BlockHash),
		BlockNumber: blockNumber,
		Status:      status,
	}
	if status == 1 && raw.ContractAddress != nil {
		address := common.HexToAddress(*raw.ContractAddress)
		receipt.ContractAddress = &address
	}

	for i, rawLog := range raw.Logs {
		if rawLog.Address == nil || rawLog.LogIndex == nil || rawLog.Data == nil {
			return nil, invalidResponse("eth_getTransactionReceipt", fmt.Sprintf("malformed log %d", i))
		}
		logIndex, err := quantityToUint64("eth_getTransactionReceipt", *rawLog.LogIndex)
		if err != nil {
			return nil, err
		}
		topics := make([]common.Hash, len(rawLog.Topics))
		for j, topic := range rawLog.Topics {
			topics[j] = common.HexToHash(topic)
		}
		receipt.Logs = append(receipt.Logs, ReceiptLog{
			Address:  common.HexToAddress(*rawLog.Address),
			LogIndex: logIndex,
			Data:     common.FromHex(*rawLog.Data),
			Topics:   topics,
		})
	}

	return receipt, nil
}

// Code returns the deployed bytecode at an address.
func (c *Client) Code(ctx context.Context, address common.Address) ([]byte, error) {
	var raw hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &raw, "eth_getCode", address, "latest"); err != nil {
		return nil, fmt.Errorf("eth_getCode failed: %w", err)
	}
	return raw, nil
}

// NetworkFees resolves the fees to attach to the next transaction per the
// configured policy, rejecting with ErrFeeExceedsLimit when the cap is hit.
func (c *Client) NetworkFees(ctx context.Context) (NetworkFees, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return NetworkFees{}, err
	}
	block, err := c.LatestBlock(ctx)
	if err != nil {
		return NetworkFees{}, err
	}

	fees, err := resolveFees(c.cfg, chainID, block, c.maxPriorityFeePerGas(ctx), c.gasPrice(ctx))
	if err != nil {
		return NetworkFees{}, err
	}

	if c.cfg.MaxFeePerGasLimit != nil && fees.Max().Cmp(c.cfg.MaxFeePerGasLimit) > 0 {
		return NetworkFees{}, fmt.Errorf("%w: %s", ErrFeeExceedsLimit, fees.Max())
	}

	return fees, nil
}

func (c *Client) maxPriorityFeePerGas(ctx context.Context) func() (*big.Int, error) {
	return func() (*big.Int, error) {
		var raw string
		if err := c.rpc.CallContext(ctx, &raw, "eth_maxPriorityFeePerGas"); err != nil {
			return nil, fmt.Errorf("eth_maxPriorityFeePerGas failed: %w", err)
		}
		return quantityToBig("eth_maxPriorityFeePerGas", raw)
	}
}

func (c *Client) gasPrice(ctx context.Context) func() (*big.Int, error) {
	return func() (*big.Int, error) {
		var raw string
		if err := c.rpc.CallContext(ctx, &raw, "eth_gasPrice"); err != nil {
			return nil, fmt.Errorf("eth_gasPrice failed: %w", err)
		}
		return quantityToBig("eth_gasPrice", raw)
	}
}

// resolveFees implements the fee policy. Order: explicit legacy override or
// legacy-only chain first; then EIP-1559 with the zero-base-fee shortcut;
// legacy eth_gasPrice as the final fallback.
func resolveFees(
	cfg Config,
	chainID uint64,
	block Block,
	queryPriorityFee func() (*big.Int, error),
	queryGasPrice func() (*big.Int, error),
) (NetworkFees, error) {
	if cfg.GasPrice != nil {
		return NetworkFees{GasPrice: cfg.GasPrice}, nil
	}

	if block.BaseFeePerGas != nil && !containsChain(cfg.LegacyFeeChains, chainID) {
		if block.BaseFeePerGas.Sign() == 0 && !containsChain(cfg.BNBStyleChains, chainID) {
			return NetworkFees{
				MaxFeePerGas:         big.NewInt(0),
				MaxPriorityFeePerGas: big.NewInt(0),
			}, nil
		}

		priorityFee := cfg.MaxPriorityFeePerGas
		if priorityFee == nil {
			queried, err := queryPriorityFee()
			if err != nil {
				// The RPC method is not supported by every chain.
				priorityFee = defaultMaxPriorityFeePerGas
			} else {
				priorityFee = queried
			}
		}

		maxFee := new(big.Int).Mul(block.BaseFeePerGas, big.NewInt(2))
		maxFee.Add(maxFee, priorityFee)
		return NetworkFees{
			MaxFeePerGas:         maxFee,
			MaxPriorityFeePerGas: priorityFee,
		}, nil
	}

	gasPrice, err := queryGasPrice()
	if err != nil {
		return NetworkFees{}, err
	}
	return NetworkFees{GasPrice: gasPrice}, nil
}

func containsChain(chains []uint64, chainID uint64) bool {
	for _, id := range chains {
		if id == chainID {
			return true
		}
	}
	return false
}

func encodeCallParams(params CallParams) map[string]any {
	encoded := map[string]any{
		"from": params.From,
		"data": hexutil.Encode(params.Data),
	}
	if params.To != nil {
		encoded["to"] = *params.To
	}
	if params.Value != nil {
		encoded["value"] = bigToQuantity(params.Value)
	}
	if params.Nonce != nil {
		encoded["nonce"] = hexutil.Uint64(*params.Nonce)
	}
	for name, amount := range encodeFees(params.Fees) {
		encoded[name] = amount
	}
	return encoded
}

func encodeFees(fees *NetworkFees) map[string]string {
	if fees == nil {
		return nil
	}
	if fees.Legacy() {
		return map[string]string{"gasPrice": bigToQuantity(fees.GasPrice)}
	}
	return map[string]string{
		"maxFeePerGas":         bigToQuantity(fees.MaxFeePerGas),
		"maxPriorityFeePerGas": bigToQuantity(fees.MaxPriorityFeePerGas),
	}
}

// IsExecutionFailure reports whether the error describes a failed execution
// (revert, invalid opcode) rather than a transport problem.
func IsExecutionFailure(err error) bool {
	_, ok := revertResult(err)
	return ok
}

// revertResult maps a node-reported execution failure to a CallResult,
// distinguishing it from transport errors.
func revertResult(err error) (CallResult, bool) {
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok && strings.HasPrefix(data, "0x") {
			return CallResult{Success: false, ReturnData: common.FromHex(data)}, true
		}
	}

	// Some nodes return a bare error without revert data.
	message := err.Error()
	if strings.Contains(message, "execution reverted") ||
		strings.Contains(message, "invalid opcode") ||
		strings.Contains(message, "revert") {
		return CallResult{Success: false}, true
	}

	return CallResult{}, false
}

// bigToQuantity encodes a big int as a JSON-RPC quantity: 0x-prefixed hex
// without leading zeros, "0x0" for zero.
func bigToQuantity(value *big.Int) string {
	if value == nil || value.Sign() == 0 {
		return "0x0"
	}
	return "0x" + value.Text(16)
}

func quantityToBig(method, raw string) (*big.Int, error) {
	value, err := hexutil.DecodeBig(raw)
	if err != nil {
		return nil, invalidResponse(method, raw)
	}
	return value, nil
}

func quantityToUint64(method, raw string) (uint64, error) {
	value, err := hexutil.DecodeUint64(raw)
	if err != nil {
		return 0, invalidResponse(method, raw)
	}
	return value, nil
}

func invalidResponse(method, detail string) error {
	return fmt.Errorf("invalid JSON-RPC response for %s: %s", method, detail)
}
