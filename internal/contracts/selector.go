package contracts

import "fmt"

// conditionSelectors is the fixed lookup table of known condition
// function selectors on DapiServer (spec.md §9: "represent the
// selector-to-function mapping as a lookup over a fixed set of known
// selectors plus a fallback error; do not reflect on ABI at runtime
// beyond this").
var conditionSelectors = buildConditionSelectors()

func buildConditionSelectors() map[[4]byte]string {
	table := map[[4]byte]string{}
	for _, name := range []string{"conditionPspBeaconUpdate"} {
		method, ok := DapiServerABI.Methods[name]
		if !ok {
			panic("contracts: missing method " + name + " in DapiServer ABI")
		}
		var sel [4]byte
		copy(sel[:], method.ID)
		table[sel] = name
	}
	return table
}

// ConditionFunctionName resolves a subscription's declared
// _conditionFunctionId selector to the DapiServer function name to
// call, or an error if the selector is not one of the known functions.
func ConditionFunctionName(selector [4]byte) (string, error) {
	name, ok := conditionSelectors[selector]
	if !ok {
		return "", fmt.Errorf("contracts: unknown condition function selector 0x%x", selector)
	}
	return name, nil
}
