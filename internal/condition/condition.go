// Package condition implements the Condition Checker (C5, spec.md §4.5):
// for PSP subscriptions it dispatches a read-only on-chain view call; for
// RRP beacon jobs it computes the deviation condition locally.
package condition

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/api3dao/airkeeper-go/internal/contracts"
)

// Caller is the subset of ethclient.Client a read-only condition call
// needs, narrowed so this package can be tested against a stub.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("condition: " + err.Error())
	}
	return typ
}

var (
	conditionArgs = abi.Arguments{{Type: mustType("bytes4")}, {Type: mustType("bytes")}}
	int256Args    = abi.Arguments{{Type: mustType("int256")}}
)

// CheckPSP implements spec.md §4.5: decode subscription.conditions
// (`_conditionFunctionId bytes4, _conditionParameters bytes`), select the
// DapiServer function whose selector matches, and invoke it read-only
// with `data = abiEncode(["int256"], [apiValue])`. A failed call or a
// false result both mean "do not update".
func CheckPSP(ctx context.Context, caller Caller, dapiServer common.Address, subscriptionID common.Hash, apiValue *big.Int, encodedConditions []byte) (bool, error) {
	unpacked, err := conditionArgs.Unpack(encodedConditions)
	if err != nil {
		return false, fmt.Errorf("condition: decode conditions: %w", err)
	}
	functionID, ok := unpacked[0].([4]byte)
	if !ok {
		return false, fmt.Errorf("condition: unexpected conditionFunctionId type %T", unpacked[0])
	}
	conditionParameters, ok := unpacked[1].([]byte)
	if !ok {
		return false, fmt.Errorf("condition: unexpected conditionParameters type %T", unpacked[1])
	}

	functionName, err := contracts.ConditionFunctionName(functionID)
	if err != nil {
		return false, err
	}

	data, err := int256Args.Pack(apiValue)
	if err != nil {
		return false, fmt.Errorf("condition: encode api value: %w", err)
	}

	calldata, err := contracts.DapiServerABI.Pack(functionName, subscriptionID, data, conditionParameters)
	if err != nil {
		return false, fmt.Errorf("condition: pack calldata: %w", err)
	}

	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &dapiServer, Data: calldata}, nil)
	if err != nil {
		return false, fmt.Errorf("condition: call %s: %w", functionName, err)
	}

	outputs, err := contracts.DapiServerABI.Unpack(functionName, result)
	if err != nil {
		return false, fmt.Errorf("condition: unpack result: %w", err)
	}
	if len(outputs) != 1 {
		return false, fmt.Errorf("condition: unexpected output count %d from %s", len(outputs), functionName)
	}
	met, ok := outputs[0].(bool)
	if !ok {
		return false, fmt.Errorf("condition: unexpected output type %T from %s", outputs[0], functionName)
	}
	return met, nil
}

// ReadBeaconValue calls RrpBeaconServer.readBeacon, the on-chain value
// an RRP deviation check compares the fetched API value against.
func ReadBeaconValue(ctx context.Context, caller Caller, rrpBeaconServer common.Address, beaconID common.Hash) (*big.Int, error) {
	calldata, err := contracts.RrpBeaconServerABI.Pack("readBeacon", beaconID)
	if err != nil {
		return nil, fmt.Errorf("condition: pack readBeacon: %w", err)
	}
	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &rrpBeaconServer, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("condition: call readBeacon: %w", err)
	}
	outputs, err := contracts.RrpBeaconServerABI.Unpack("readBeacon", result)
	if err != nil {
		return nil, fmt.Errorf("condition: unpack readBeacon: %w", err)
	}
	value, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("condition: unexpected readBeacon value type %T", outputs[0])
	}
	return value, nil
}
