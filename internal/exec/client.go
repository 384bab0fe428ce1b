package exec

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/chainplan/internal/rpc"
)

// ChainClient is the slice of the JSON-RPC surface the execution engine
// needs. *rpc.Client satisfies it; tests substitute a fake chain.
type ChainClient interface {
	ChainID(ctx context.Context) (uint64, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	LatestBlock(ctx context.Context) (rpc.Block, error)
	Call(ctx context.Context, params rpc.CallParams, blockTag string) (rpc.CallResult, error)
	EstimateGas(ctx context.Context, params rpc.CallParams) (uint64, error)
	SendTransaction(ctx context.Context, params rpc.TransactionParams) (common.Hash, error)
	TransactionCount(ctx context.Context, address common.Address, blockTag string) (uint64, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*rpc.TransactionInfo, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error)
	Code(ctx context.Context, address common.Address) ([]byte, error)
	NetworkFees(ctx context.Context) (rpc.NetworkFees, error)
}
