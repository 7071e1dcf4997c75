// Package triggers implements the Trigger Resolver (C2, spec.md §4.2):
// it validates subscription/template/endpoint ids against their
// derived hashes and groups surviving PSP subscriptions by template,
// and validates RRP beacon jobs. Every validation failure is a
// non-fatal skip with a warning log; the cycle proceeds on survivors.
package triggers

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	bexpr "github.com/hashicorp/go-bexpr"

	"github.com/api3dao/airkeeper-go/internal/model"
)

const hashCacheSize = 4096

// Resolver validates and groups triggers for one cycle. It is not
// safe for concurrent use by design: trigger resolution runs once,
// synchronously, before any fan-out begins (spec.md §5 phase 1).
type Resolver struct {
	cfg   *model.Config
	cache *lru.Cache // memoizes templateId/endpointId re-derivation across shared templates
}

// New builds a Resolver bound to one cycle's config.
func New(cfg *model.Config) (*Resolver, error) {
	cache, err := lru.New(hashCacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, cache: cache}, nil
}

// ResolvePSP implements spec.md §4.2's PSP path: iterate
// triggers.protoPsp, validate each subscription's derived id, group
// survivors by templateId, and validate the shared template/endpoint.
func (r *Resolver) ResolvePSP() []model.GroupedSubscription {
	bySubscriptionID := r.cfg.Subscriptions

	type pending struct {
		sub model.Subscription
	}
	byTemplate := map[common.Hash][]pending{}
	templateOrder := make([]common.Hash, 0)

	for _, subID := range r.cfg.Triggers.ProtoPSP {
		sub, ok := bySubscriptionID[subID]
		if !ok {
			log.Warn("skipping psp trigger: subscription not found", "subscriptionId", subID)
			continue
		}

		if !evaluateEnableIf(sub.EnableIf, sub) {
			log.Info("skipping psp trigger: disabled by enableIf", "subscriptionId", subID)
			continue
		}

		expectedID, err := model.DeriveSubscriptionID(sub)
		if err != nil {
			log.Warn("skipping psp trigger: failed to derive subscriptionId", "subscriptionId", subID, "err", err)
			continue
		}
		if expectedID != subID {
			log.Warn("skipping psp trigger: declared subscriptionId does not match derived hash",
				"declared", subID, "derived", expectedID)
			continue
		}

		if _, seen := byTemplate[sub.TemplateID]; !seen {
			templateOrder = append(templateOrder, sub.TemplateID)
		}
		byTemplate[sub.TemplateID] = append(byTemplate[sub.TemplateID], pending{sub: sub})
	}

	grouped := make([]model.GroupedSubscription, 0, len(byTemplate))
	for _, templateID := range templateOrder {
		pendings := byTemplate[templateID]

		template, ok := r.cfg.Templates[templateID]
		if !ok {
			log.Warn("skipping template group: template not found", "templateId", templateID)
			continue
		}
		if derived := r.derivedTemplateID(template); derived != templateID {
			log.Warn("skipping template group: declared templateId does not match derived hash",
				"declared", templateID, "derived", derived)
			continue
		}

		endpoint, ok := r.cfg.Endpoints[template.EndpointID]
		if !ok {
			log.Warn("skipping template group: endpoint not found", "endpointId", template.EndpointID)
			continue
		}
		derivedEndpointID, err := r.derivedEndpointID(endpoint)
		if err != nil {
			log.Warn("skipping template group: failed to derive endpointId", "endpointId", template.EndpointID, "err", err)
			continue
		}
		if derivedEndpointID != template.EndpointID {
			log.Warn("skipping template group: declared endpointId does not match derived hash",
				"declared", template.EndpointID, "derived", derivedEndpointID)
			continue
		}
		if _, ok := endpoint.ReservedParameters["_type"]; !ok {
			log.Warn("skipping template group: endpoint is missing required reserved parameter _type", "endpointId", template.EndpointID)
			continue
		}

		subs := make([]model.Subscription, 0, len(pendings))
		for _, p := range pendings {
			subs = append(subs, p.sub)
		}

		grouped = append(grouped, model.GroupedSubscription{
			TemplateID:    templateID,
			Template:      template,
			Endpoint:      endpoint,
			Subscriptions: subs,
		})
	}

	return grouped
}

// ResolveRRP implements spec.md §4.2's RRP path: iterate
// triggers.rrpBeaconServerKeeperJobs, verify endpointId and templateId
// hashes, and compute beaconId for survivors.
func (r *Resolver) ResolveRRP() []model.ResolvedBeaconJob {
	resolved := make([]model.ResolvedBeaconJob, 0, len(r.cfg.Triggers.RRPBeaconServerKeeperJobs))

	for _, job := range r.cfg.Triggers.RRPBeaconServerKeeperJobs {
		if !evaluateEnableIf(job.EnableIf, job) {
			log.Info("skipping rrp trigger: disabled by enableIf", "templateId", job.TemplateID)
			continue
		}

		endpoint, ok := r.cfg.Endpoints[job.EndpointID]
		if !ok {
			log.Warn("skipping rrp trigger: endpoint not found", "endpointId", job.EndpointID)
			continue
		}
		derivedEndpointID, err := r.derivedEndpointID(endpoint)
		if err != nil {
			log.Warn("skipping rrp trigger: failed to derive endpointId", "endpointId", job.EndpointID, "err", err)
			continue
		}
		if derivedEndpointID != job.EndpointID {
			log.Warn("skipping rrp trigger: declared endpointId does not match derived hash",
				"declared", job.EndpointID, "derived", derivedEndpointID)
			continue
		}

		expectedTemplateID := model.DeriveTemplateID(job.EndpointID, job.TemplateParameters)
		if expectedTemplateID != job.TemplateID {
			log.Warn("skipping rrp trigger: declared templateId does not match derived hash",
				"declared", job.TemplateID, "derived", expectedTemplateID)
			continue
		}

		if job.DeviationPercentage <= 0 {
			log.Warn("skipping rrp trigger: non-positive deviationPercentage", "templateId", job.TemplateID, "deviationPercentage", job.DeviationPercentage)
			continue
		}

		beaconID := model.DeriveBeaconID(job.TemplateID, job.TemplateParameters)
		resolved = append(resolved, model.ResolvedBeaconJob{Job: job, BeaconID: beaconID})
	}

	return resolved
}

func (r *Resolver) derivedTemplateID(t model.Template) common.Hash {
	key := t.EndpointID.Hex() + string(t.TemplateParameters)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(common.Hash)
	}
	id := model.DeriveTemplateID(t.EndpointID, t.TemplateParameters)
	r.cache.Add(key, id)
	return id
}

func (r *Resolver) derivedEndpointID(e model.Endpoint) (common.Hash, error) {
	key := "endpoint:" + e.OISTitle + ":" + e.EndpointName
	if cached, ok := r.cache.Get(key); ok {
		return cached.(common.Hash), nil
	}
	id, err := model.DeriveEndpointID(e.OISTitle, e.EndpointName)
	if err == nil {
		r.cache.Add(key, id)
	}
	return id, err
}

// evaluateEnableIf evaluates the supplemented enableIf expression
// (SPEC_FULL.md) against the trigger's own fields. An empty
// expression always evaluates true (the trigger is enabled by
// default).
func evaluateEnableIf(expr string, datum any) bool {
	if expr == "" {
		return true
	}
	eval, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		log.Warn("invalid enableIf expression, treating trigger as enabled", "expr", expr, "err", err)
		return true
	}
	matched, err := eval.Evaluate(datum)
	if err != nil {
		log.Warn("failed to evaluate enableIf expression, treating trigger as enabled", "expr", expr, "err", err)
		return true
	}
	return matched
}
