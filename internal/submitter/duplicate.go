package submitter

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/api3dao/airkeeper-go/internal/contracts"
)

// LogFilterer is the subset of ethclient.Client needed to scan event
// history for duplicate-suppression.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Caller is the subset of ethclient.Client needed for a read-only call.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AwaitingRRPBeaconIDs implements spec.md §4.7 step 1: scan
// RequestedBeaconUpdate and UpdatedBeacon events over
// [max(0,currentBlock-blockHistoryLimit), currentBlock], and for every
// requested beaconId with no matching fulfillment by requestId, confirm
// against AirnodeRrp.requestIsAwaitingFulfillment. The returned set is
// every beaconId that must be skipped this cycle -- a request for it is
// already in flight.
func AwaitingRRPBeaconIDs(ctx context.Context, filterer LogFilterer, caller Caller, rrpBeaconServer, airnodeRrp common.Address, currentBlock uint64, blockHistoryLimit int64) (mapset.Set[common.Hash], error) {
	fromBlock := int64(currentBlock) - blockHistoryLimit
	if fromBlock < 0 {
		fromBlock = 0
	}

	requestedTopic := contracts.RrpBeaconServerABI.Events["RequestedBeaconUpdate"].ID
	updatedTopic := contracts.RrpBeaconServerABI.Events["UpdatedBeacon"].ID

	requestedLogs, err := filterer.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   new(big.Int).SetUint64(currentBlock),
		Addresses: []common.Address{rrpBeaconServer},
		Topics:    [][]common.Hash{{requestedTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("submitter: fetch RequestedBeaconUpdate logs: %w", err)
	}

	updatedLogs, err := filterer.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   new(big.Int).SetUint64(currentBlock),
		Addresses: []common.Address{rrpBeaconServer},
		Topics:    [][]common.Hash{{updatedTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("submitter: fetch UpdatedBeacon logs: %w", err)
	}

	fulfilledRequestIDs := mapset.NewSet[common.Hash]()
	for _, l := range updatedLogs {
		values, err := contracts.RrpBeaconServerABI.Unpack("UpdatedBeacon", l.Data)
		if err != nil {
			return nil, fmt.Errorf("submitter: decode UpdatedBeacon log: %w", err)
		}
		requestIDBytes, ok := values[0].([32]byte)
		if !ok {
			return nil, fmt.Errorf("submitter: unexpected UpdatedBeacon requestId type %T", values[0])
		}
		fulfilledRequestIDs.Add(common.Hash(requestIDBytes))
	}

	awaiting := mapset.NewSet[common.Hash]()
	for _, l := range requestedLogs {
		if len(l.Topics) < 2 {
			continue
		}
		beaconID := l.Topics[1]

		values, err := contracts.RrpBeaconServerABI.Unpack("RequestedBeaconUpdate", l.Data)
		if err != nil {
			return nil, fmt.Errorf("submitter: decode RequestedBeaconUpdate log: %w", err)
		}
		// sponsor, sponsorWallet, requestId, templateId, parameters
		requestIDBytes, ok := values[2].([32]byte)
		if !ok {
			return nil, fmt.Errorf("submitter: unexpected RequestedBeaconUpdate requestId type %T", values[2])
		}
		requestID := common.Hash(requestIDBytes)
		if fulfilledRequestIDs.Contains(requestID) {
			continue
		}

		calldata, err := contracts.AirnodeRrpABI.Pack("requestIsAwaitingFulfillment", requestIDBytes)
		if err != nil {
			return nil, fmt.Errorf("submitter: pack requestIsAwaitingFulfillment: %w", err)
		}
		result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &airnodeRrp, Data: calldata}, nil)
		if err != nil {
			return nil, fmt.Errorf("submitter: call requestIsAwaitingFulfillment: %w", err)
		}
		outputs, err := contracts.AirnodeRrpABI.Unpack("requestIsAwaitingFulfillment", result)
		if err != nil {
			return nil, fmt.Errorf("submitter: unpack requestIsAwaitingFulfillment: %w", err)
		}
		if awaitingFulfillment, ok := outputs[0].(bool); ok && awaitingFulfillment {
			awaiting.Add(beaconID)
		}
	}

	return awaiting, nil
}
