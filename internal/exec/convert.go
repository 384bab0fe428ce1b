package exec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/rpc"
)

func toJournalFees(fees rpc.NetworkFees) journal.NetworkFees {
	if fees.Legacy() {
		return journal.NetworkFees{GasPrice: (*hexutil.Big)(fees.GasPrice)}
	}
	return journal.NetworkFees{
		MaxFeePerGas:         (*hexutil.Big)(fees.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(fees.MaxPriorityFeePerGas),
	}
}

func fromJournalFees(fees journal.NetworkFees) rpc.NetworkFees {
	if fees.GasPrice != nil {
		return rpc.NetworkFees{GasPrice: fees.GasPrice.ToInt()}
	}
	return rpc.NetworkFees{
		MaxFeePerGas:         fees.MaxFeePerGas.ToInt(),
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas.ToInt(),
	}
}

func toJournalReceipt(receipt *rpc.TransactionReceipt) *journal.Receipt {
	out := &journal.Receipt{
		BlockHash:       receipt.BlockHash,
		BlockNumber:     receipt.BlockNumber,
		Status:          receipt.Status,
		ContractAddress: receipt.ContractAddress,
	}
	for _, entry := range receipt.Logs {
		out.Logs = append(out.Logs, journal.Log{
			Address:  entry.Address,
			LogIndex: entry.LogIndex,
			Data:     entry.Data,
			Topics:   entry.Topics,
		})
	}
	return out
}

// bumpFees raises the previous attempt's fees by ten percent and takes the
// component-wise maximum against the network's current fees, so a resend is
// both a valid replacement and still competitive.
func bumpFees(previous journal.NetworkFees, current rpc.NetworkFees) rpc.NetworkFees {
	prev := fromJournalFees(previous)
	if prev.Legacy() {
		bumped := raiseTenPercent(prev.GasPrice)
		if current.GasPrice != nil && current.GasPrice.Cmp(bumped) > 0 {
			bumped = current.GasPrice
		}
		return rpc.NetworkFees{GasPrice: bumped}
	}

	maxFee := raiseTenPercent(prev.MaxFeePerGas)
	priorityFee := raiseTenPercent(prev.MaxPriorityFeePerGas)
	if current.MaxFeePerGas != nil && current.MaxFeePerGas.Cmp(maxFee) > 0 {
		maxFee = current.MaxFeePerGas
	}
	if current.MaxPriorityFeePerGas != nil && current.MaxPriorityFeePerGas.Cmp(priorityFee) > 0 {
		priorityFee = current.MaxPriorityFeePerGas
	}
	return rpc.NetworkFees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: priorityFee}
}

func raiseTenPercent(amount *big.Int) *big.Int {
	raised := new(big.Int).Mul(amount, big.NewInt(110))
	return raised.Div(raised, big.NewInt(100))
}
