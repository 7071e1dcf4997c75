package condition_test

import (
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/api3dao/airkeeper-go/internal/condition"
	"github.com/api3dao/airkeeper-go/internal/contracts"
)

type stubCaller struct {
	result []byte
	err    error
	lastTo common.Address
}

func (s *stubCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	s.lastTo = *msg.To
	return s.result, s.err
}

func encodeConditions(t *testing.T, functionName string, conditionParameters []byte) []byte {
	t.Helper()
	method, ok := contracts.DapiServerABI.Methods[functionName]
	require.True(t, ok)
	var selector [4]byte
	copy(selector[:], method.ID)

	bytes4Type, err := abi.NewType("bytes4", "", nil)
	require.NoError(t, err)
	bytesType, err := abi.NewType("bytes", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: bytes4Type}, {Type: bytesType}}

	encoded, err := args.Pack(selector, conditionParameters)
	require.NoError(t, err)
	return encoded
}

func encodeBoolResult(t *testing.T, met bool) []byte {
	t.Helper()
	boolType, err := abi.NewType("bool", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: boolType}}
	encoded, err := args.Pack(met)
	require.NoError(t, err)
	return encoded
}

func TestCheckPSPReturnsTrueWhenContractSaysUpdate(t *testing.T) {
	conditions := encodeConditions(t, "conditionPspBeaconUpdate", []byte{})
	caller := &stubCaller{result: encodeBoolResult(t, true)}
	dapiServer := common.HexToAddress("0xd1")

	met, err := condition.CheckPSP(context.Background(), caller, dapiServer, common.HexToHash("0x1"), big.NewInt(100), conditions)
	require.NoError(t, err)
	require.True(t, met)
	require.Equal(t, dapiServer, caller.lastTo)
}

func TestCheckPSPReturnsFalseWhenContractSaysNoUpdate(t *testing.T) {
	conditions := encodeConditions(t, "conditionPspBeaconUpdate", []byte{})
	caller := &stubCaller{result: encodeBoolResult(t, false)}

	met, err := condition.CheckPSP(context.Background(), caller, common.HexToAddress("0xd1"), common.HexToHash("0x1"), big.NewInt(100), conditions)
	require.NoError(t, err)
	require.False(t, met)
}

func TestReadBeaconValueDecodesResult(t *testing.T) {
	uint224Type, err := abi.NewType("uint224", "", nil)
	require.NoError(t, err)
	uint32Type, err := abi.NewType("uint32", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: uint224Type}, {Type: uint32Type}}
	encoded, err := args.Pack(big.NewInt(999), uint32(1700000000))
	require.NoError(t, err)

	caller := &stubCaller{result: encoded}
	value, err := condition.ReadBeaconValue(context.Background(), caller, common.HexToAddress("0xb1"), common.HexToHash("0x1"))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(999), value)
}

func TestCheckPSPRejectsUnknownSelector(t *testing.T) {
	bytes4Type, err := abi.NewType("bytes4", "", nil)
	require.NoError(t, err)
	bytesType, err := abi.NewType("bytes", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: bytes4Type}, {Type: bytesType}}
	encoded, err := args.Pack([4]byte{0xde, 0xad, 0xbe, 0xef}, []byte{})
	require.NoError(t, err)

	caller := &stubCaller{}
	_, err = condition.CheckPSP(context.Background(), caller, common.HexToAddress("0xd1"), common.HexToHash("0x1"), big.NewInt(100), encoded)
	require.Error(t, err)
}
