package condition

import "math/big"

// deviationScale and percentageHundredth implement spec.md §4.5/§9's fixed
// 256-bit signed deviation arithmetic: deviation is computed as a
// fraction of the on-chain value scaled by 1e18, and deviationPercentage
// (supported to two decimal places) is compared against it after being
// converted to the same 1e18-of-100% scale: a percentage's "hundredths"
// integer times 1e14 (0.01% == 1e14, so 1% == 1e16).
var (
	deviationScale      = big.NewInt(1_000_000_000_000_000_000) // 1e18
	percentageHundredth = big.NewInt(100_000_000_000_000)       // 1e14
)

// ExceedsDeviation implements spec.md §4.5's RRP condition:
// deviation = |beacon - api| * 1e18 / max(beacon, 1); update only if
// deviation > deviationPercentage%. Uses signed math/big arithmetic
// throughout -- never floating point -- because beacon-api can be
// negative before the Abs.
func ExceedsDeviation(beaconValue, apiValue *big.Int, deviationPercentage float64) bool {
	diff := new(big.Int).Sub(beaconValue, apiValue)
	diff.Abs(diff)

	denom := beaconValue
	if denom.Cmp(big.NewInt(1)) < 0 {
		denom = big.NewInt(1)
	}

	deviationScaled := new(big.Int).Mul(diff, deviationScale)
	deviationScaled.Quo(deviationScaled, denom)

	hundredths := int64(deviationPercentage*100 + 0.5) // two-decimal precision, per spec.md §4.5
	threshold := new(big.Int).Mul(big.NewInt(hundredths), percentageHundredth)

	return deviationScaled.Cmp(threshold) > 0
}
