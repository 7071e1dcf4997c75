package sequencer_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/api3dao/airkeeper-go/internal/metrics"
	"github.com/api3dao/airkeeper-go/internal/sequencer"
	"github.com/api3dao/airkeeper-go/internal/wallet"
)

const testMnemonic = "test test test test test test test test test test test junk"

// TestMain verifies Sequence's per-sponsor-group errgroup fan-out never
// leaks a goroutine across a test run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubNonceSource struct {
	nonce     uint64
	err       error
	failFor   map[common.Address]bool
}

func (s *stubNonceSource) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if s.failFor[account] {
		return 0, errors.New("rpc unavailable")
	}
	return s.nonce, s.err
}

func TestSequenceAssignsIncreasingNoncesInInputOrder(t *testing.T) {
	sponsor := common.HexToAddress("0xabc")
	items := []sequencer.Item{
		{Sponsor: sponsor, ProtocolID: wallet.ProtocolIDPSP, Payload: "first"},
		{Sponsor: sponsor, ProtocolID: wallet.ProtocolIDPSP, Payload: "second"},
		{Sponsor: sponsor, ProtocolID: wallet.ProtocolIDPSP, Payload: "third"},
	}

	results := sequencer.Sequence(context.Background(), testMnemonic, &stubNonceSource{nonce: 7}, items, nil)
	sort.Slice(results, func(i, j int) bool { return results[i].Nonce < results[j].Nonce })

	require.Len(t, results, 3)
	require.Equal(t, uint64(7), results[0].Nonce)
	require.Equal(t, uint64(8), results[1].Nonce)
	require.Equal(t, uint64(9), results[2].Nonce)
	require.Equal(t, "first", results[0].Payload)
	require.Equal(t, "second", results[1].Payload)
	require.Equal(t, "third", results[2].Payload)
}

func TestSequenceDerivesDifferentWalletsPerProtocol(t *testing.T) {
	sponsor := common.HexToAddress("0xabc")
	items := []sequencer.Item{
		{Sponsor: sponsor, ProtocolID: wallet.ProtocolIDPSP, Payload: "psp"},
		{Sponsor: sponsor, ProtocolID: wallet.ProtocolIDRRPKeeper, Payload: "rrp"},
	}

	results := sequencer.Sequence(context.Background(), testMnemonic, &stubNonceSource{nonce: 0}, items, nil)

	require.Len(t, results, 2)
	require.NotEqual(t, results[0].SponsorWallet.D, results[1].SponsorWallet.D)
}

func TestSequenceDropsSponsorOnNonceFetchFailureWithoutAffectingOthers(t *testing.T) {
	failingSponsor := common.HexToAddress("0x1")
	okSponsor := common.HexToAddress("0x2")

	failingWallet, err := wallet.Address(testMnemonic, failingSponsor, wallet.ProtocolIDPSP)
	require.NoError(t, err)

	items := []sequencer.Item{
		{Sponsor: failingSponsor, ProtocolID: wallet.ProtocolIDPSP, Payload: "bad"},
		{Sponsor: okSponsor, ProtocolID: wallet.ProtocolIDPSP, Payload: "good"},
	}

	source := &stubNonceSource{nonce: 3, failFor: map[common.Address]bool{failingWallet: true}}
	reg := metrics.New()
	results := sequencer.Sequence(context.Background(), testMnemonic, source, items, reg)

	require.Len(t, results, 1)
	require.Equal(t, "good", results[0].Payload)
	require.Equal(t, uint64(3), results[0].Nonce)

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			byName[f.GetName()] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), byName["airkeeper_sponsors_dropped_total"])
	require.Equal(t, float64(1), byName["airkeeper_nonces_assigned_total"])
}
