package condition

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExceedsDeviationTrueWhenAboveThreshold(t *testing.T) {
	beacon := big.NewInt(100)
	api := big.NewInt(110) // 10% deviation

	require.True(t, ExceedsDeviation(beacon, api, 5))
}

func TestExceedsDeviationFalseWhenBelowThreshold(t *testing.T) {
	beacon := big.NewInt(100)
	api := big.NewInt(102) // 2% deviation

	require.False(t, ExceedsDeviation(beacon, api, 5))
}

func TestExceedsDeviationHandlesNegativeValues(t *testing.T) {
	beacon := big.NewInt(-100)
	api := big.NewInt(-80) // |beacon-api| = 20, beacon clamped to 1 -> huge deviation

	require.True(t, ExceedsDeviation(beacon, api, 5))
}

func TestExceedsDeviationRespectsTwoDecimalPrecision(t *testing.T) {
	beacon := big.NewInt(1_000_000)
	api := big.NewInt(1_005_300) // exactly 0.53% deviation

	require.False(t, ExceedsDeviation(beacon, api, 0.53))
	require.True(t, ExceedsDeviation(beacon, api, 0.52))
}
