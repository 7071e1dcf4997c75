// Package sequencer implements the Sponsor-Wallet Sequencer (C6,
// spec.md §4.6): group surviving work by sponsor wallet, derive each
// wallet, and assign strictly increasing nonces starting at the
// wallet's current pending transaction count.
package sequencer

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/api3dao/airkeeper-go/internal/metrics"
	"github.com/api3dao/airkeeper-go/internal/wallet"
)

// NonceSource is the subset of ethclient.Client needed to read a
// wallet's pending transaction count.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Item is one piece of surviving work awaiting a sponsor wallet and a
// nonce. ProtocolID selects the derivation path (wallet.ProtocolIDPSP
// or wallet.ProtocolIDRRPKeeper): the same human sponsor address yields
// a different wallet, and therefore a different nonce sequence, under
// each protocol. Payload carries whatever downstream needs (a
// subscriptionId or beaconId) opaquely.
type Item struct {
	Sponsor    common.Address
	ProtocolID string
	Payload    any
}

// Sequenced is an Item bound to its derived sponsor wallet and assigned
// nonce (spec.md §4.6): the first item in a group gets the wallet's
// fetched pending count, and nonces increase by exactly one after that.
type Sequenced struct {
	Item
	SponsorWallet *ecdsa.PrivateKey
	Nonce         uint64
}

type groupKey struct {
	sponsor    common.Address
	protocolID string
}

// Sequence groups items by (sponsor, protocolID) and processes every
// group concurrently and independently (spec.md §5 phase 4: "within a
// provider, all sponsors run concurrently"). A group whose wallet
// derivation or nonce fetch fails is dropped entirely for this cycle;
// other groups are unaffected.
func Sequence(ctx context.Context, mnemonic string, client NonceSource, items []Item, reg *metrics.Registry) []Sequenced {
	groups, order := groupByKey(items)

	results := make([][]Sequenced, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range order {
		i, key := i, key
		groupItems := groups[key]
		g.Go(func() error {
			sponsorWallet, err := wallet.Derive(mnemonic, key.sponsor, key.protocolID)
			if err != nil {
				log.Error("dropping sponsor group: wallet derivation failed", "sponsor", key.sponsor, "protocolId", key.protocolID, "err", err)
				incSponsorsDropped(reg)
				return nil
			}
			walletAddress := crypto.PubkeyToAddress(sponsorWallet.PublicKey)

			nonce, err := client.PendingNonceAt(gctx, walletAddress)
			if err != nil {
				log.Error("dropping sponsor group: nonce fetch failed", "sponsor", key.sponsor, "protocolId", key.protocolID, "err", err)
				incSponsorsDropped(reg)
				return nil
			}

			sequenced := make([]Sequenced, len(groupItems))
			for j, item := range groupItems {
				sequenced[j] = Sequenced{Item: item, SponsorWallet: sponsorWallet, Nonce: nonce + uint64(j)}
				incNoncesAssigned(reg)
			}
			results[i] = sequenced
			return nil
		})
	}
	_ = g.Wait() // every task above handles its own errors; Wait never returns non-nil

	var out []Sequenced
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func incSponsorsDropped(reg *metrics.Registry) {
	if reg != nil {
		reg.SponsorsDropped.Inc()
	}
}

func incNoncesAssigned(reg *metrics.Registry) {
	if reg != nil {
		reg.NoncesAssigned.Inc()
	}
}

func groupByKey(items []Item) (map[groupKey][]Item, []groupKey) {
	groups := map[groupKey][]Item{}
	var order []groupKey
	for _, item := range items {
		key := groupKey{sponsor: item.Sponsor, protocolID: item.ProtocolID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}
	return groups, order
}
