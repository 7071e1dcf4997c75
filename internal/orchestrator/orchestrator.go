// Package orchestrator wires C1-C7 across the four phases spec.md §2
// defines: initialize (C1, C2), call APIs (C3), initialize providers
// (C4), submit (C5, C6, C7). It owns the cycle-wide deadline and
// exposes the single Handle entrypoint spec.md §6 describes.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/api3dao/airkeeper-go/internal/apicaller"
	"github.com/api3dao/airkeeper-go/internal/chain"
	"github.com/api3dao/airkeeper-go/internal/condition"
	"github.com/api3dao/airkeeper-go/internal/metrics"
	"github.com/api3dao/airkeeper-go/internal/model"
	"github.com/api3dao/airkeeper-go/internal/sequencer"
	"github.com/api3dao/airkeeper-go/internal/submitter"
	"github.com/api3dao/airkeeper-go/internal/triggers"
	"github.com/api3dao/airkeeper-go/internal/wallet"
)

// cycleDeadline bounds one invocation so stragglers don't leak across
// scheduled ticks (spec.md §5): the default scheduled interval is 60s.
const cycleDeadline = 55 * time.Second

const defaultBlockHistoryLimit = 300

// Orchestrator wires C1-C7 and holds one validated Config for the
// process's lifetime. A Config is immutable and read-only for the
// duration of every cycle (spec.md §3).
type Orchestrator struct {
	cfg     *model.Config
	adapter apicaller.Adapter
	metrics *metrics.Registry
}

// New builds an Orchestrator bound to a validated configuration and the
// off-chain HTTP adapter every API call this process makes goes
// through.
func New(cfg *model.Config, adapter apicaller.Adapter, reg *metrics.Registry) *Orchestrator {
	return &Orchestrator{cfg: cfg, adapter: adapter, metrics: reg}
}

// Response is the {statusCode, body} shape spec.md §6 specifies for the
// invocation surface.
type Response struct {
	StatusCode int
	Body       string
}

type responseBody struct {
	OK   bool             `json:"ok"`
	Data responseBodyData `json:"data"`
}

type responseBodyData struct {
	Message string `json:"message"`
}

// Handle runs one full update cycle (spec.md §2, §6): resolve triggers,
// call off-chain APIs, initialize providers, submit. event is accepted
// but unused -- the invocation surface is an opaque event per spec.md
// §6, and this cycle's behavior depends only on the held Config.
func (o *Orchestrator) Handle(ctx context.Context, event any) (Response, error) {
	cycleID := uuid.NewString()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, cycleDeadline)
	defer cancel()

	log.Info("cycle started", "cycleId", cycleID)

	resolver, err := triggers.New(o.cfg)
	if err != nil {
		return Response{}, fmt.Errorf("orchestrator: build trigger resolver: %w", err)
	}
	groups := resolver.ResolvePSP()
	jobs := resolver.ResolveRRP()

	apiValuesBySub := apicaller.CallPSP(ctx, o.adapter, o.cfg.Credentials, groups, o.metrics)
	apiValuesByBeacon := apicaller.CallRRP(ctx, o.adapter, o.cfg.Credentials, o.cfg.Endpoints, jobs, o.metrics)

	providers := chain.InitializeAll(ctx, o.cfg.Chains)
	if o.metrics != nil {
		o.metrics.ProvidersInitialized.Add(float64(len(providers)))
		o.metrics.ProvidersDropped.Add(float64(o.configuredProviderCount() - len(providers)))
	}

	airnodeKey, err := wallet.AirnodeKey(o.cfg.Mnemonic)
	if err != nil {
		return Response{}, fmt.Errorf("orchestrator: derive airnode key: %w", err)
	}

	var wg sync.WaitGroup
	for _, state := range providers {
		state := state
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.submitForProvider(ctx, state, groups, jobs, apiValuesBySub, apiValuesByBeacon, airnodeKey)
		}()
	}
	wg.Wait()

	duration := time.Since(start)
	if o.metrics != nil {
		o.metrics.CycleDuration.Observe(duration.Seconds())
	}
	log.Info("cycle finished", "cycleId", cycleID, "durationMs", duration.Milliseconds())

	body, err := json.Marshal(responseBody{
		OK:   true,
		Data: responseBodyData{Message: fmt.Sprintf("cycle %s completed in %s", cycleID, duration)},
	})
	if err != nil {
		return Response{}, fmt.Errorf("orchestrator: encode response: %w", err)
	}
	return Response{StatusCode: 200, Body: string(body)}, nil
}

func (o *Orchestrator) configuredProviderCount() int {
	n := 0
	for _, c := range o.cfg.Chains {
		n += len(c.Providers)
	}
	return n
}

// pspWork and rrpPayload/pspPayload let one sequencer.Item carry enough
// context back to submission without sequencer needing to know
// anything about subscriptions or beacon jobs.
type pspWork struct {
	sub      model.Subscription
	apiValue *big.Int
}

type pspPayload struct{ subscriptionID common.Hash }
type rrpPayload struct{ beaconID common.Hash }

// submitForProvider implements phases C5-C7 for one provider: check
// conditions, sequence nonces per sponsor, and submit -- sponsors run
// concurrently, each sponsor's own subscriptions run strictly
// sequentially (spec.md §5 phase 4).
func (o *Orchestrator) submitForProvider(ctx context.Context, state *chain.State, groups []model.GroupedSubscription, jobs []model.ResolvedBeaconJob, apiValuesBySub, apiValuesByBeacon map[common.Hash]*big.Int, airnodeKey *ecdsa.PrivateKey) {
	chainCfg, ok := o.cfg.Chains[state.ChainID.String()]
	blockHistoryLimit := int64(defaultBlockHistoryLimit)
	if ok && chainCfg.BlockHistoryLimit > 0 {
		blockHistoryLimit = chainCfg.BlockHistoryLimit
	}

	airnodeAddress := o.cfg.AirnodeAddress
	chainIDStr := state.ChainID.String()

	var items []sequencer.Item
	pspWorkBySub := map[common.Hash]pspWork{}
	jobsByBeaconID := map[common.Hash]model.ResolvedBeaconJob{}

	for _, group := range groups {
		for _, sub := range group.Subscriptions {
			if sub.ChainID != chainIDStr {
				continue
			}
			subID, err := sub.ID()
			if err != nil {
				continue
			}
			apiValue, ok := apiValuesBySub[subID]
			if !ok {
				continue
			}

			if err := state.Wait(ctx); err != nil {
				return
			}
			met, err := condition.CheckPSP(ctx, state.Client, state.Contracts.DapiServer, subID, apiValue, sub.Conditions)
			if err != nil {
				log.Warn("skipping psp subscription: condition check failed", "subscriptionId", subID, "err", err)
				o.incConditionFailed()
				continue
			}
			if !met {
				o.incConditionUnmet()
				continue
			}
			o.incConditionMet()

			pspWorkBySub[subID] = pspWork{sub: sub, apiValue: apiValue}
			items = append(items, sequencer.Item{Sponsor: sub.Sponsor, ProtocolID: wallet.ProtocolIDPSP, Payload: pspPayload{subscriptionID: subID}})
		}
	}

	for _, job := range jobs {
		if !chainMatches(job.Job.ChainIDs, chainIDStr) {
			continue
		}
		apiValue, ok := apiValuesByBeacon[job.BeaconID]
		if !ok {
			continue
		}

		if err := state.Wait(ctx); err != nil {
			return
		}
		beaconValue, err := condition.ReadBeaconValue(ctx, state.Client, state.Contracts.RrpBeaconServer, job.BeaconID)
		if err != nil {
			log.Warn("skipping rrp job: read beacon failed", "beaconId", job.BeaconID, "err", err)
			o.incConditionFailed()
			continue
		}
		if !condition.ExceedsDeviation(beaconValue, apiValue, job.Job.DeviationPercentage) {
			o.incConditionUnmet()
			continue
		}
		o.incConditionMet()

		jobsByBeaconID[job.BeaconID] = job
		items = append(items, sequencer.Item{Sponsor: job.Job.KeeperSponsor, ProtocolID: wallet.ProtocolIDRRPKeeper, Payload: rrpPayload{beaconID: job.BeaconID}})
	}

	var awaitingRRP mapset.Set[common.Hash]
	if len(jobsByBeaconID) > 0 {
		if err := state.Wait(ctx); err != nil {
			return
		}
		var err error
		awaitingRRP, err = submitter.AwaitingRRPBeaconIDs(ctx, state.Client, state.Client, state.Contracts.RrpBeaconServer, state.Contracts.AirnodeRrp, state.CurrentBlock, blockHistoryLimit)
		if err != nil {
			log.Error("dropping rrp submissions for provider: duplicate-detection failed", "provider", state.ProviderName, "err", err)
			items = dropRRPItems(items)
		}
	}

	sequenced := sequencer.Sequence(ctx, o.cfg.Mnemonic, state.Client, items, o.metrics)
	if o.metrics != nil {
		o.metrics.SponsorsProcessed.Add(float64(len(sequenced)))
	}

	bySponsor := groupSequencedBySponsor(sequenced)

	var wg sync.WaitGroup
	for _, group := range bySponsor {
		group := group
		wg.Add(1)
		go func() {
			defer wg.Done()
			sort.Slice(group, func(i, j int) bool { return group[i].Nonce < group[j].Nonce })
			for _, seq := range group {
				o.dispatchSubmission(ctx, state, seq, pspWorkBySub, jobsByBeaconID, awaitingRRP, airnodeKey, airnodeAddress)
			}
		}()
	}
	wg.Wait()
}

func chainMatches(chainIDs []string, chainID string) bool {
	if len(chainIDs) == 0 {
		return true
	}
	for _, id := range chainIDs {
		if id == chainID {
			return true
		}
	}
	return false
}

func dropRRPItems(items []sequencer.Item) []sequencer.Item {
	filtered := items[:0]
	for _, it := range items {
		if _, isRRP := it.Payload.(rrpPayload); isRRP {
			continue
		}
		filtered = append(filtered, it)
	}
	return filtered
}

func groupSequencedBySponsor(sequenced []sequencer.Sequenced) [][]sequencer.Sequenced {
	type key struct {
		sponsor    common.Address
		protocolID string
	}
	groups := map[key][]sequencer.Sequenced{}
	var order []key
	for _, seq := range sequenced {
		k := key{seq.Sponsor, seq.ProtocolID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], seq)
	}
	out := make([][]sequencer.Sequenced, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

// dispatchSubmission implements spec.md §4.7 steps 2-3 for one
// sequenced item: a failed submission is logged and does not consume
// any slot beyond the nonce already assigned to it.
func (o *Orchestrator) dispatchSubmission(ctx context.Context, state *chain.State, seq sequencer.Sequenced, pspWorkBySub map[common.Hash]pspWork, jobsByBeaconID map[common.Hash]model.ResolvedBeaconJob, awaitingRRP mapset.Set[common.Hash], airnodeKey *ecdsa.PrivateKey, airnodeAddress common.Address) {
	switch payload := seq.Payload.(type) {
	case pspPayload:
		work, ok := pspWorkBySub[payload.subscriptionID]
		if !ok {
			return
		}
		if err := state.Wait(ctx); err != nil {
			return
		}
		hash, err := submitter.SubmitPSP(ctx, state.Client, state.ChainID, state.Contracts.DapiServer, airnodeKey, airnodeAddress, seq.SponsorWallet,
			submitter.PSPSubmission{SubscriptionID: payload.subscriptionID, Relayer: work.sub.Relayer, Sponsor: work.sub.Sponsor, APIValue: work.apiValue},
			state.GasTarget, seq.Nonce, time.Now().Unix())
		if err != nil {
			log.Error("psp submission failed", "subscriptionId", payload.subscriptionID, "err", err)
			o.incTxFailed()
			return
		}
		log.Info("psp submission sent", "subscriptionId", payload.subscriptionID, "tx", hash)
		o.incTxSubmitted()

	case rrpPayload:
		if awaitingRRP != nil && awaitingRRP.Contains(payload.beaconID) {
			log.Warn("skipping rrp submission: already awaiting fulfillment", "beaconId", payload.beaconID)
			o.incTxSkippedDuplicate()
			return
		}
		job, ok := jobsByBeaconID[payload.beaconID]
		if !ok {
			return
		}
		requestSponsorWallet, err := wallet.Address(o.cfg.Mnemonic, job.Job.RequestSponsor, wallet.ProtocolIDAirnode)
		if err != nil {
			log.Error("rrp submission failed: derive request sponsor wallet", "beaconId", payload.beaconID, "err", err)
			o.incTxFailed()
			return
		}
		if err := state.Wait(ctx); err != nil {
			return
		}
		hash, err := submitter.SubmitRRP(ctx, state.Client, state.ChainID, state.Contracts.RrpBeaconServer, seq.SponsorWallet,
			job.Job.TemplateID, job.Job.RequestSponsor, requestSponsorWallet, job.Job.TemplateParameters, state.GasTarget, seq.Nonce)
		if err != nil {
			log.Error("rrp submission failed", "beaconId", payload.beaconID, "err", err)
			o.incTxFailed()
			return
		}
		log.Info("rrp submission sent", "beaconId", payload.beaconID, "tx", hash)
		o.incTxSubmitted()
	}
}

func (o *Orchestrator) incConditionMet() {
	if o.metrics != nil {
		o.metrics.ConditionsMet.Inc()
	}
}

func (o *Orchestrator) incConditionUnmet() {
	if o.metrics != nil {
		o.metrics.ConditionsUnmet.Inc()
	}
}

func (o *Orchestrator) incConditionFailed() {
	if o.metrics != nil {
		o.metrics.ConditionsFailed.Inc()
	}
}

func (o *Orchestrator) incTxSubmitted() {
	if o.metrics != nil {
		o.metrics.TransactionsSubmitted.Inc()
	}
}

func (o *Orchestrator) incTxFailed() {
	if o.metrics != nil {
		o.metrics.TransactionsFailed.Inc()
	}
}

func (o *Orchestrator) incTxSkippedDuplicate() {
	if o.metrics != nil {
		o.metrics.TransactionsSkippedDuplicate.Inc()
	}
}
