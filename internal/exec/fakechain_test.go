package exec

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/chainplan/internal/rpc"
)

// fakeChain is an in-memory ChainClient. Transactions are mined by the
// mine callback; a nil return keeps the transaction pending in the mempool.
type fakeChain struct {
	mu sync.Mutex

	chainID  uint64
	accounts []common.Address
	block    uint64
	code     map[common.Address][]byte

	sent     []rpc.TransactionParams
	mempool  map[common.Hash]bool
	receipts map[common.Hash]*rpc.TransactionReceipt
	pending  map[common.Address]uint64
	latest   map[common.Address]uint64

	call func(params rpc.CallParams, blockTag string) (rpc.CallResult, error)
	mine func(params rpc.TransactionParams, hash common.Hash) *rpc.TransactionReceipt

	// dropNext makes the next unmined transaction vanish from the mempool.
	dropNext bool
}

func newFakeChain() *fakeChain {
	f := &fakeChain{
		chainID: 31337,
		accounts: []common.Address{
			common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
			common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		},
		block:    1,
		code:     map[common.Address][]byte{},
		mempool:  map[common.Hash]bool{},
		receipts: map[common.Hash]*rpc.TransactionReceipt{},
		pending:  map[common.Address]uint64{},
		latest:   map[common.Address]uint64{},
	}
	f.mine = f.mineImmediately
	return f
}

// mineImmediately confirms every transaction in the next block, assigning
// create transactions a deterministic contract address.
func (f *fakeChain) mineImmediately(params rpc.TransactionParams, hash common.Hash) *rpc.TransactionReceipt {
	receipt := &rpc.TransactionReceipt{
		BlockHash:   common.BigToHash(big.NewInt(int64(f.block + 1))),
		BlockNumber: f.block + 1,
		Status:      1,
	}
	if params.To == nil {
		address := common.BytesToAddress(hash[12:])
		receipt.ContractAddress = &address
	}
	return receipt
}

func (f *fakeChain) ChainID(context.Context) (uint64, error) {
	return f.chainID, nil
}

func (f *fakeChain) Accounts(context.Context) ([]common.Address, error) {
	return f.accounts, nil
}

func (f *fakeChain) LatestBlock(context.Context) (rpc.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rpc.Block{Number: f.block, BaseFeePerGas: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeChain) Call(_ context.Context, params rpc.CallParams, blockTag string) (rpc.CallResult, error) {
	if f.call != nil {
		return f.call(params, blockTag)
	}
	return rpc.CallResult{Success: true}, nil
}

func (f *fakeChain) EstimateGas(context.Context, rpc.CallParams) (uint64, error) {
	return 50_000, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, params rpc.TransactionParams) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, params)
	hash := common.BigToHash(big.NewInt(int64(len(f.sent))))
	if params.Nonce+1 > f.pending[params.From] {
		f.pending[params.From] = params.Nonce + 1
	}

	if receipt := f.mine(params, hash); receipt != nil {
		f.receipts[hash] = receipt
		f.latest[params.From] = params.Nonce + 1
		if receipt.BlockNumber > f.block {
			f.block = receipt.BlockNumber
		}
	} else if f.dropNext {
		f.dropNext = false
	} else {
		f.mempool[hash] = true
	}
	return hash, nil
}

func (f *fakeChain) TransactionCount(_ context.Context, address common.Address, blockTag string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if blockTag == "pending" {
		return f.pending[address], nil
	}
	return f.latest[address], nil
}

func (f *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*rpc.TransactionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mempool[hash] || f.receipts[hash] != nil {
		return &rpc.TransactionInfo{Hash: hash}, nil
	}
	return nil, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*rpc.TransactionReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[hash], nil
}

func (f *fakeChain) Code(_ context.Context, address common.Address) ([]byte, error) {
	return f.code[address], nil
}

func (f *fakeChain) NetworkFees(context.Context) (rpc.NetworkFees, error) {
	return rpc.NetworkFees{
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}, nil
}

func (f *fakeChain) sentTransactions() []rpc.TransactionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpc.TransactionParams(nil), f.sent...)
}
