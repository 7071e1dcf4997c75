package chain

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/api3dao/airkeeper-go/internal/model"
)

// GasTarget is either a legacy gasPrice or an EIP-1559 fee pair
// (spec.md §4.4). Exactly one branch is populated per TxType.
type GasTarget struct {
	TxType               model.TxType
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

var weiPerGwei = uint256.NewInt(1_000_000_000)

// toWei converts a PriorityFee's value/unit pair to a wei-denominated
// *uint256.Int. Only "wei" and "gwei" are accepted, the two units
// spec.md §6 names explicitly; an empty unit is treated as "wei".
func toWei(pf model.PriorityFee) (*uint256.Int, error) {
	switch pf.Unit {
	case "", "wei":
		return uint256.NewInt(uint64(pf.Value)), nil
	case "gwei":
		gwei, overflow := uint256.FromBig(big.NewInt(int64(pf.Value)))
		if overflow {
			return nil, errGasValueOverflow
		}
		return new(uint256.Int).Mul(gwei, weiPerGwei), nil
	default:
		return nil, errUnsupportedGasUnit(pf.Unit)
	}
}

// computeEIP1559GasTarget implements spec.md §4.4 and §6:
// maxFeePerGas = baseFeePerGas * baseFeeMultiplier + priorityFee,
// maxPriorityFeePerGas = priorityFee, both unsigned 256-bit arithmetic
// (gas values are never negative, so uint256 -- not the signed math/big
// used for deviation -- is the right fit here).
func computeEIP1559GasTarget(baseFeePerGas *big.Int, options model.ChainOptions) (GasTarget, error) {
	baseFee, overflow := uint256.FromBig(baseFeePerGas)
	if overflow {
		return GasTarget{}, errGasValueOverflow
	}

	priorityFee, err := toWei(options.PriorityFee)
	if err != nil {
		return GasTarget{}, err
	}

	multiplier := uint256.NewInt(uint64(options.BaseFeeMultiplier))
	if options.BaseFeeMultiplier <= 0 {
		multiplier = uint256.NewInt(1)
	}

	maxFee := new(uint256.Int).Mul(baseFee, multiplier)
	maxFee.Add(maxFee, priorityFee)

	if options.MaxFeePerGasCapGwei > 0 {
		capWei := new(uint256.Int).Mul(uint256.NewInt(uint64(options.MaxFeePerGasCapGwei)), weiPerGwei)
		if maxFee.Gt(capWei) {
			maxFee = capWei
		}
	}

	return GasTarget{
		TxType:               model.TxTypeEIP1559,
		MaxFeePerGas:         maxFee.ToBig(),
		MaxPriorityFeePerGas: priorityFee.ToBig(),
	}, nil
}

type gasErr string

func (e gasErr) Error() string { return string(e) }

const errGasValueOverflow = gasErr("chain: gas value overflows 256 bits")

func errUnsupportedGasUnit(unit string) error {
	return gasErr("chain: unsupported priority fee unit " + unit)
}
