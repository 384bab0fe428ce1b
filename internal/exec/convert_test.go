package exec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/chainplan/internal/journal"
	"github.com/compose-network/chainplan/internal/rpc"
)

func TestBumpFeesEIP1559(t *testing.T) {
	previous := journal.NetworkFees{
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(2_000_000_000)),
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1_000_000_000)),
	}

	t.Run("ten percent raise wins over a quiet network", func(t *testing.T) {
		current := rpc.NetworkFees{
			MaxFeePerGas:         big.NewInt(1_500_000_000),
			MaxPriorityFeePerGas: big.NewInt(500_000_000),
		}
		bumped := bumpFees(previous, current)
		assert.Equal(t, big.NewInt(2_200_000_000), bumped.MaxFeePerGas)
		assert.Equal(t, big.NewInt(1_100_000_000), bumped.MaxPriorityFeePerGas)
	})

	t.Run("network spike wins over the raise", func(t *testing.T) {
		current := rpc.NetworkFees{
			MaxFeePerGas:         big.NewInt(5_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(3_000_000_000),
		}
		bumped := bumpFees(previous, current)
		assert.Equal(t, big.NewInt(5_000_000_000), bumped.MaxFeePerGas)
		assert.Equal(t, big.NewInt(3_000_000_000), bumped.MaxPriorityFeePerGas)
	})

	t.Run("components are compared independently", func(t *testing.T) {
		current := rpc.NetworkFees{
			MaxFeePerGas:         big.NewInt(5_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(500_000_000),
		}
		bumped := bumpFees(previous, current)
		assert.Equal(t, big.NewInt(5_000_000_000), bumped.MaxFeePerGas)
		assert.Equal(t, big.NewInt(1_100_000_000), bumped.MaxPriorityFeePerGas)
	})
}

func TestBumpFeesLegacy(t *testing.T) {
	previous := journal.NetworkFees{GasPrice: (*hexutil.Big)(big.NewInt(1_000_000_000))}

	bumped := bumpFees(previous, rpc.NetworkFees{GasPrice: big.NewInt(900_000_000)})
	require.True(t, bumped.Legacy())
	assert.Equal(t, big.NewInt(1_100_000_000), bumped.GasPrice)

	bumped = bumpFees(previous, rpc.NetworkFees{GasPrice: big.NewInt(4_000_000_000)})
	assert.Equal(t, big.NewInt(4_000_000_000), bumped.GasPrice)
}

func TestJournalFeeRoundTrip(t *testing.T) {
	legacy := rpc.NetworkFees{GasPrice: big.NewInt(7)}
	assert.Equal(t, legacy, fromJournalFees(toJournalFees(legacy)))

	dynamic := rpc.NetworkFees{MaxFeePerGas: big.NewInt(20), MaxPriorityFeePerGas: big.NewInt(2)}
	assert.Equal(t, dynamic, fromJournalFees(toJournalFees(dynamic)))
}
