package apicaller

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/api3dao/airkeeper-go/internal/metrics"
	"github.com/api3dao/airkeeper-go/internal/model"
)

// DefaultTimeout and retry parameters mirror spec.md §5's defaults:
// TIMEOUT_MS=5000, exponential backoff base 100ms, cap 500ms, factor
// 2x, jitter on, at most 2 attempts.
const (
	DefaultTimeout    = 5000 * time.Millisecond
	retryBaseInterval = 100 * time.Millisecond
	retryMaxInterval  = 500 * time.Millisecond
	maxAttempts       = 2
)

// newBackoff builds the bounded exponential-backoff-with-jitter policy
// spec.md §5 specifies, capped to maxAttempts total attempts.
func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseInterval
	b.MaxInterval = retryMaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.5 // jitter on
	return backoff.WithMaxRetries(b, maxAttempts-1)
}

// callWithRetry executes fn under a per-attempt timeout and the
// bounded-retry policy above, matching the `go(fn, {timeoutMs,
// retries})` shape spec.md §9 describes.
func callWithRetry(ctx context.Context, adapter Adapter, req Request) (*big.Int, error) {
	var value *big.Int
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()

		v, err := adapter.Call(attemptCtx, req)
		if err != nil {
			return err
		}
		value = v
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
	return value, err
}

func credentialsFor(all []model.Credential, oisTitle string) []model.Credential {
	matched := make([]model.Credential, 0, 1)
	for _, c := range all {
		if c.OISTitle == oisTitle {
			matched = append(matched, c)
		}
	}
	return matched
}

func incTemplatesAttempted(reg *metrics.Registry) {
	if reg != nil {
		reg.TemplatesAttempted.Inc()
	}
}

func incTemplatesFailed(reg *metrics.Registry) {
	if reg != nil {
		reg.TemplatesFailed.Inc()
	}
}

// CallPSP resolves one API value per template group and distributes it
// to every subscription sharing that template, per spec.md §4.3. A
// work-unit failure is logged and skipped; it must not prevent other
// template groups from completing (spec.md §4.3, §8 invariant).
func CallPSP(ctx context.Context, adapter Adapter, credentials []model.Credential, groups []model.GroupedSubscription, reg *metrics.Registry) map[common.Hash]*big.Int {
	values := make(map[common.Hash]*big.Int)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			if _, ok := group.Endpoint.ReservedParameters["_type"]; !ok {
				log.Warn("dropping template group: endpoint missing _type reserved parameter", "templateId", group.TemplateID)
				return nil
			}

			req := Request{
				Endpoint:          group.Endpoint,
				EncodedParameters: group.Template.TemplateParameters,
				Credentials:       credentialsFor(credentials, group.Endpoint.OISTitle),
			}

			incTemplatesAttempted(reg)
			value, err := callWithRetry(gctx, adapter, req)
			if err != nil {
				log.Warn("dropping template group: api call failed", "templateId", group.TemplateID, "err", err)
				incTemplatesFailed(reg)
				return nil
			}

			mu.Lock()
			for _, sub := range group.Subscriptions {
				id, idErr := sub.ID()
				if idErr != nil {
					continue
				}
				values[id] = value
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // errors are absorbed per work unit above; nil is always returned

	return values
}

// CallRRP resolves one API value per resolved beacon job, keyed by
// beaconId, per spec.md §4.3's RRP path.
func CallRRP(ctx context.Context, adapter Adapter, credentials []model.Credential, endpoints map[common.Hash]model.Endpoint, jobs []model.ResolvedBeaconJob, reg *metrics.Registry) map[common.Hash]*big.Int {
	values := make(map[common.Hash]*big.Int)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			endpoint, ok := endpoints[job.Job.EndpointID]
			if !ok {
				log.Warn("dropping beacon job: endpoint not found", "beaconId", job.BeaconID)
				return nil
			}
			if _, ok := endpoint.ReservedParameters["_type"]; !ok {
				log.Warn("dropping beacon job: endpoint missing _type reserved parameter", "beaconId", job.BeaconID)
				return nil
			}

			req := Request{
				Endpoint:          endpoint,
				EncodedParameters: job.Job.TemplateParameters,
				Credentials:       credentialsFor(credentials, endpoint.OISTitle),
			}

			incTemplatesAttempted(reg)
			value, err := callWithRetry(gctx, adapter, req)
			if err != nil {
				log.Warn("dropping beacon job: api call failed", "beaconId", job.BeaconID, "err", err)
				incTemplatesFailed(reg)
				return nil
			}

			mu.Lock()
			values[job.BeaconID] = value
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return values
}
