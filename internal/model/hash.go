package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// solidityPackBytes32Bytes reproduces solidityPack(["bytes32","bytes"], [h, b]):
// a tight concatenation, not ABI-encoded (no length-padding of the fixed part,
// and the dynamic part is packed raw with no offset/length words).
func solidityPackBytes32Bytes(h common.Hash, b []byte) []byte {
	out := make([]byte, 0, 32+len(b))
	out = append(out, h.Bytes()...)
	out = append(out, b...)
	return out
}

// DeriveTemplateID computes keccak256(solidityPack(["bytes32","bytes"],
// [endpointId, templateParameters])) per spec.md §3.
func DeriveTemplateID(endpointID common.Hash, templateParameters []byte) common.Hash {
	return crypto.Keccak256Hash(solidityPackBytes32Bytes(endpointID, templateParameters))
}

// DeriveEndpointID computes keccak256(defaultAbiCoder.encode(["string",
// "string"], [oisTitle, endpointName])) per spec.md §3.
func DeriveEndpointID(oisTitle, endpointName string) (common.Hash, error) {
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	args := abi.Arguments{{Type: stringTy}, {Type: stringTy}}
	packed, err := args.Pack(oisTitle, endpointName)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// DeriveSubscriptionID computes keccak256(defaultAbiCoder.encode([...9
// types], [...9 fields])) per spec.md §3. Field order matches the
// Subscription struct declaration order.
func DeriveSubscriptionID(s Subscription) (common.Hash, error) {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	bytes32Ty, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	bytes4Ty, err := abi.NewType("bytes4", "", nil)
	if err != nil {
		return common.Hash{}, err
	}

	chainID, ok := new(big.Int).SetString(s.ChainID, 10)
	if !ok {
		return common.Hash{}, errInvalidChainID(s.ChainID)
	}

	args := abi.Arguments{
		{Type: uint256Ty},  // chainId
		{Type: addressTy},  // airnodeAddress
		{Type: bytes32Ty},  // templateId
		{Type: bytesTy},    // parameters
		{Type: bytesTy},    // conditions
		{Type: addressTy},  // relayer
		{Type: addressTy},  // sponsor
		{Type: addressTy},  // requester
		{Type: bytes4Ty},   // fulfillFunctionId
	}
	packed, err := args.Pack(
		chainID,
		s.AirnodeAddress,
		s.TemplateID,
		s.Parameters,
		s.Conditions,
		s.Relayer,
		s.Sponsor,
		s.Requester,
		s.FulfillFunctionID,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// DeriveBeaconID computes solidityKeccak256(["bytes32","bytes"],
// [templateId, abiEncode(templateParameters)]) per spec.md §3.
// templateParameters here is the raw Airnode parameter encoding already
// produced upstream; DeriveBeaconID only packs it alongside templateId.
func DeriveBeaconID(templateID common.Hash, encodedParameters []byte) common.Hash {
	return crypto.Keccak256Hash(solidityPackBytes32Bytes(templateID, encodedParameters))
}

type errInvalidChainID string

func (e errInvalidChainID) Error() string {
	return "invalid chain id: " + string(e)
}
