package rpc

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func noQuery(t *testing.T, method string) func() (*big.Int, error) {
	return func() (*big.Int, error) {
		t.Fatalf("unexpected %s query", method)
		return nil, nil
	}
}

func TestResolveFees(t *testing.T) {
	t.Run("configured gas price wins over everything", func(t *testing.T) {
		fees, err := resolveFees(
			Config{GasPrice: gwei(30)},
			1,
			Block{BaseFeePerGas: gwei(10)},
			noQuery(t, "priority fee"),
			noQuery(t, "gas price"),
		)
		require.NoError(t, err)
		assert.True(t, fees.Legacy())
		assert.Equal(t, gwei(30), fees.GasPrice)
	})

	t.Run("eip1559 uses twice the base fee plus configured priority fee", func(t *testing.T) {
		fees, err := resolveFees(
			Config{MaxPriorityFeePerGas: gwei(2)},
			1,
			Block{BaseFeePerGas: gwei(10)},
			noQuery(t, "priority fee"),
			noQuery(t, "gas price"),
		)
		require.NoError(t, err)
		assert.False(t, fees.Legacy())
		assert.Equal(t, gwei(22), fees.MaxFeePerGas)
		assert.Equal(t, gwei(2), fees.MaxPriorityFeePerGas)
	})

	t.Run("priority fee comes from the node when not configured", func(t *testing.T) {
		fees, err := resolveFees(
			Config{},
			1,
			Block{BaseFeePerGas: gwei(10)},
			func() (*big.Int, error) { return gwei(3), nil },
			noQuery(t, "gas price"),
		)
		require.NoError(t, err)
		assert.Equal(t, gwei(23), fees.MaxFeePerGas)
		assert.Equal(t, gwei(3), fees.MaxPriorityFeePerGas)
	})

	t.Run("falls back to one gwei when the node rejects the priority fee query", func(t *testing.T) {
		fees, err := resolveFees(
			Config{},
			1,
			Block{BaseFeePerGas: gwei(10)},
			func() (*big.Int, error) { return nil, errors.New("method not found") },
			noQuery(t, "gas price"),
		)
		require.NoError(t, err)
		assert.Equal(t, gwei(21), fees.MaxFeePerGas)
		assert.Equal(t, gwei(1), fees.MaxPriorityFeePerGas)
	})

	t.Run("zero base fee means free transactions on dev chains", func(t *testing.T) {
		fees, err := resolveFees(
			Config{BNBStyleChains: []uint64{56, 97}},
			31337,
			Block{BaseFeePerGas: big.NewInt(0)},
			noQuery(t, "priority fee"),
			noQuery(t, "gas price"),
		)
		require.NoError(t, err)
		assert.Zero(t, fees.MaxFeePerGas.Sign())
		assert.Zero(t, fees.MaxPriorityFeePerGas.Sign())
	})

	t.Run("bnb style chains still pay a priority fee at zero base fee", func(t *testing.T) {
		fees, err := resolveFees(
			Config{BNBStyleChains: []uint64{56, 97}},
			97,
			Block{BaseFeePerGas: big.NewInt(0)},
			func() (*big.Int, error) { return gwei(3), nil },
			noQuery(t, "gas price"),
		)
		require.NoError(t, err)
		assert.Equal(t, gwei(3), fees.MaxFeePerGas)
		assert.Equal(t, gwei(3), fees.MaxPriorityFeePerGas)
	})

	t.Run("legacy-only chains ignore the base fee", func(t *testing.T) {
		fees, err := resolveFees(
			Config{LegacyFeeChains: []uint64{137}},
			137,
			Block{BaseFeePerGas: gwei(10)},
			noQuery(t, "priority fee"),
			func() (*big.Int, error) { return gwei(40), nil },
		)
		require.NoError(t, err)
		assert.True(t, fees.Legacy())
		assert.Equal(t, gwei(40), fees.GasPrice)
	})

	t.Run("pre fee market chains use the reported gas price", func(t *testing.T) {
		fees, err := resolveFees(
			Config{},
			1,
			Block{},
			noQuery(t, "priority fee"),
			func() (*big.Int, error) { return gwei(12), nil },
		)
		require.NoError(t, err)
		assert.True(t, fees.Legacy())
		assert.Equal(t, gwei(12), fees.GasPrice)
	})
}

func TestBigToQuantity(t *testing.T) {
	assert.Equal(t, "0x0", bigToQuantity(nil))
	assert.Equal(t, "0x0", bigToQuantity(big.NewInt(0)))
	assert.Equal(t, "0x10", bigToQuantity(big.NewInt(16)))
}

func TestRevertResult(t *testing.T) {
	result, ok := revertResult(errors.New("execution reverted"))
	assert.True(t, ok)
	assert.False(t, result.Success)

	_, ok = revertResult(errors.New("connection refused"))
	assert.False(t, ok)
}
