package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/api3dao/airkeeper-go/internal/model"
)

func TestComputeEIP1559GasTarget(t *testing.T) {
	baseFee := big.NewInt(10_000_000_000) // 10 gwei
	options := model.ChainOptions{
		BaseFeeMultiplier: 2,
		PriorityFee:       model.PriorityFee{Value: 1, Unit: "gwei"},
	}

	target, err := computeEIP1559GasTarget(baseFee, options)
	require.NoError(t, err)
	require.Equal(t, model.TxTypeEIP1559, target.TxType)
	require.Equal(t, big.NewInt(21_000_000_000), target.MaxFeePerGas) // 10*2 + 1 gwei
	require.Equal(t, big.NewInt(1_000_000_000), target.MaxPriorityFeePerGas)
}

func TestComputeEIP1559GasTargetDefaultsMultiplierToOne(t *testing.T) {
	baseFee := big.NewInt(5_000_000_000)
	options := model.ChainOptions{PriorityFee: model.PriorityFee{Value: 0, Unit: "wei"}}

	target, err := computeEIP1559GasTarget(baseFee, options)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000_000_000), target.MaxFeePerGas)
}

func TestComputeEIP1559GasTargetAppliesCap(t *testing.T) {
	baseFee := big.NewInt(100_000_000_000)
	options := model.ChainOptions{
		BaseFeeMultiplier:   2,
		PriorityFee:         model.PriorityFee{Value: 1, Unit: "gwei"},
		MaxFeePerGasCapGwei: 50,
	}

	target, err := computeEIP1559GasTarget(baseFee, options)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50_000_000_000), target.MaxFeePerGas)
}
