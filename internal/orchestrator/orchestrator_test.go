package orchestrator

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/api3dao/airkeeper-go/internal/apicaller"
	"github.com/api3dao/airkeeper-go/internal/metrics"
	"github.com/api3dao/airkeeper-go/internal/model"
	"github.com/api3dao/airkeeper-go/internal/sequencer"
)

const testMnemonic = "test test test test test test test test test test test junk"

// TestMain verifies that Handle's per-provider/per-sponsor goroutine
// fan-out (errgroup.Go plus the WaitGroup in submitForProvider) never
// leaks a goroutine across a test run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type noopAdapter struct{}

func (noopAdapter) Call(ctx context.Context, req apicaller.Request) (*big.Int, error) {
	return nil, nil
}

func TestHandleWithNoProvidersReturnsOKResponse(t *testing.T) {
	cfg := &model.Config{
		Chains:        map[string]model.Chain{},
		Mnemonic:      testMnemonic,
		Subscriptions: map[common.Hash]model.Subscription{},
		Templates:     map[common.Hash]model.Template{},
		Endpoints:     map[common.Hash]model.Endpoint{},
	}
	orch := New(cfg, noopAdapter{}, metrics.New())

	resp, err := orch.Handle(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	require.True(t, body.OK)
}

func TestHandleReportsProvidersInitializedMetric(t *testing.T) {
	cfg := &model.Config{
		Chains:        map[string]model.Chain{},
		Mnemonic:      testMnemonic,
		Subscriptions: map[common.Hash]model.Subscription{},
		Templates:     map[common.Hash]model.Template{},
		Endpoints:     map[common.Hash]model.Endpoint{},
	}
	reg := metrics.New()
	orch := New(cfg, noopAdapter{}, reg)

	_, err := orch.Handle(context.Background(), nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			byName[f.GetName()] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(0), byName["airkeeper_providers_initialized_total"])
	require.Equal(t, float64(0), byName["airkeeper_providers_dropped_total"])
}

func TestChainMatchesEmptyListMatchesAnyChain(t *testing.T) {
	require.True(t, chainMatches(nil, "1"))
	require.True(t, chainMatches([]string{}, "137"))
}

func TestChainMatchesRestrictsToListedChains(t *testing.T) {
	require.True(t, chainMatches([]string{"1", "137"}, "137"))
	require.False(t, chainMatches([]string{"1", "137"}, "10"))
}

func TestDropRRPItemsKeepsOnlyPSPItems(t *testing.T) {
	items := []sequencer.Item{
		{Sponsor: common.HexToAddress("0x1"), ProtocolID: "2", Payload: pspPayload{subscriptionID: common.HexToHash("0xaa")}},
		{Sponsor: common.HexToAddress("0x2"), ProtocolID: "12345", Payload: rrpPayload{beaconID: common.HexToHash("0xbb")}},
	}

	filtered := dropRRPItems(items)

	require.Len(t, filtered, 1)
	_, isPSP := filtered[0].Payload.(pspPayload)
	require.True(t, isPSP)
}

func TestGroupSequencedBySponsorPreservesFirstSeenOrderAndGroupsByProtocol(t *testing.T) {
	sponsorA := common.HexToAddress("0xa")
	sponsorB := common.HexToAddress("0xb")

	sequenced := []sequencer.Sequenced{
		{Item: sequencer.Item{Sponsor: sponsorA, ProtocolID: "2"}, Nonce: 1},
		{Item: sequencer.Item{Sponsor: sponsorB, ProtocolID: "12345"}, Nonce: 5},
		{Item: sequencer.Item{Sponsor: sponsorA, ProtocolID: "2"}, Nonce: 2},
	}

	groups := groupSequencedBySponsor(sequenced)

	require.Len(t, groups, 2)
	require.Len(t, groups[0], 2)
	require.Equal(t, sponsorA, groups[0][0].Sponsor)
	require.Len(t, groups[1], 1)
	require.Equal(t, sponsorB, groups[1][0].Sponsor)
}
