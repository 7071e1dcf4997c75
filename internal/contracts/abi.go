// Package contracts holds the static ABI fragments for the three
// on-chain contracts this keeper calls (spec.md §6). These are
// hand-written, fixed interfaces, not generated bindings: the surface
// is small (a handful of functions and two events) and stable, so a
// codegen step would add a build dependency for no benefit.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const rrpBeaconServerABIJSON = `[
	{"type":"function","name":"readBeacon","inputs":[{"name":"beaconId","type":"bytes32"}],"outputs":[{"name":"value","type":"uint224"},{"name":"timestamp","type":"uint32"}],"stateMutability":"view"},
	{"type":"function","name":"requestBeaconUpdate","inputs":[{"name":"templateId","type":"bytes32"},{"name":"requestSponsor","type":"address"},{"name":"requestSponsorWallet","type":"address"},{"name":"parameters","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"RequestedBeaconUpdate","anonymous":false,"inputs":[{"name":"beaconId","type":"bytes32","indexed":true},{"name":"sponsor","type":"address","indexed":false},{"name":"sponsorWallet","type":"address","indexed":false},{"name":"requestId","type":"bytes32","indexed":false},{"name":"templateId","type":"bytes32","indexed":false},{"name":"parameters","type":"bytes","indexed":false}]},
	{"type":"event","name":"UpdatedBeacon","anonymous":false,"inputs":[{"name":"beaconId","type":"bytes32","indexed":true},{"name":"requestId","type":"bytes32","indexed":false},{"name":"value","type":"uint224","indexed":false},{"name":"timestamp","type":"uint32","indexed":false}]}
]`

const dapiServerABIJSON = `[
	{"type":"function","name":"conditionPspBeaconUpdate","inputs":[{"name":"subscriptionId","type":"bytes32"},{"name":"data","type":"bytes"},{"name":"conditionParameters","type":"bytes"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"fulfillPspBeaconUpdate","inputs":[{"name":"subscriptionId","type":"bytes32"},{"name":"airnode","type":"address"},{"name":"relayer","type":"address"},{"name":"sponsor","type":"address"},{"name":"timestamp","type":"uint256"},{"name":"data","type":"bytes"},{"name":"signature","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"}
]`

const airnodeRrpABIJSON = `[
	{"type":"function","name":"requestIsAwaitingFulfillment","inputs":[{"name":"requestId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`

// RrpBeaconServerABI, DapiServerABI, and AirnodeRrpABI are parsed once
// at package init and reused by every phase that needs to pack
// calldata or unpack a call result or event log.
var (
	RrpBeaconServerABI abi.ABI
	DapiServerABI      abi.ABI
	AirnodeRrpABI      abi.ABI
)

func init() {
	var err error
	RrpBeaconServerABI, err = abi.JSON(strings.NewReader(rrpBeaconServerABIJSON))
	if err != nil {
		panic("contracts: invalid RrpBeaconServer ABI: " + err.Error())
	}
	DapiServerABI, err = abi.JSON(strings.NewReader(dapiServerABIJSON))
	if err != nil {
		panic("contracts: invalid DapiServer ABI: " + err.Error())
	}
	AirnodeRrpABI, err = abi.JSON(strings.NewReader(airnodeRrpABIJSON))
	if err != nil {
		panic("contracts: invalid AirnodeRrp ABI: " + err.Error())
	}
}
