package config

import (
	"github.com/api3dao/airkeeper-go/internal/keepererr"
)

// Merge combines a node config with a keeper config, per spec.md §4.1:
// chains are matched by id; a keeper chain entry is deep-merged onto
// the matching node chain entry; a keeper chain whose id is absent from
// node config is fatal. Triggers, subscriptions, templates, and
// endpoints from keeper replace or add to the node config.
func Merge(node, keeper *RawConfig) (*RawConfig, error) {
	merged := &RawConfig{
		Mnemonic:       node.Mnemonic,
		AirnodeAddress: node.AirnodeAddress,
		AirnodeXpub:    node.AirnodeXpub,
		Credentials:    append([]RawCredential{}, node.Credentials...),
		OISes:          append([]RawOIS{}, node.OISes...),
		Endpoints:      cloneEndpoints(node.Endpoints),
		Templates:      cloneTemplates(node.Templates),
		Subscriptions:  cloneSubscriptions(node.Subscriptions),
		Triggers: RawTriggers{
			RRPBeaconServerKeeperJobs: append([]RawBeaconJob{}, node.Triggers.RRPBeaconServerKeeperJobs...),
			ProtoPSP:                  append([]string{}, node.Triggers.ProtoPSP...),
		},
	}

	if keeper.Mnemonic != "" {
		merged.Mnemonic = keeper.Mnemonic
	}
	if keeper.AirnodeAddress != "" {
		merged.AirnodeAddress = keeper.AirnodeAddress
	}
	if keeper.AirnodeXpub != "" {
		merged.AirnodeXpub = keeper.AirnodeXpub
	}

	nodeChainsByID := make(map[string]RawChain, len(node.Chains))
	for _, c := range node.Chains {
		nodeChainsByID[c.ID] = c
	}

	mergedChains := append([]RawChain{}, node.Chains...)
	mergedChainIndex := make(map[string]int, len(mergedChains))
	for i, c := range mergedChains {
		mergedChainIndex[c.ID] = i
	}

	for _, kc := range keeper.Chains {
		nc, ok := nodeChainsByID[kc.ID]
		if !ok {
			return nil, keepererr.NewFatalConfigError("keeper config references chain id %q which is not present in node config", kc.ID)
		}
		deepMerged := deepMergeChain(nc, kc)
		mergedChains[mergedChainIndex[kc.ID]] = deepMerged
	}
	merged.Chains = mergedChains

	merged.Credentials = append(merged.Credentials, keeper.Credentials...)
	merged.OISes = append(merged.OISes, keeper.OISes...)

	for id, e := range keeper.Endpoints {
		merged.Endpoints[id] = e
	}
	for id, t := range keeper.Templates {
		merged.Templates[id] = t
	}
	for id, s := range keeper.Subscriptions {
		merged.Subscriptions[id] = s
	}
	merged.Triggers.RRPBeaconServerKeeperJobs = append(merged.Triggers.RRPBeaconServerKeeperJobs, keeper.Triggers.RRPBeaconServerKeeperJobs...)
	merged.Triggers.ProtoPSP = append(merged.Triggers.ProtoPSP, keeper.Triggers.ProtoPSP...)

	return merged, nil
}

// deepMergeChain overlays non-zero keeper fields onto the node chain
// entry, field by field, matching spec.md's "deep-merged" phrasing.
func deepMergeChain(node, keeper RawChain) RawChain {
	result := node
	if keeper.Type != "" {
		result.Type = keeper.Type
	}
	if keeper.ContractAddresses != nil {
		if result.ContractAddresses == nil {
			result.ContractAddresses = map[string]string{}
		}
		for k, v := range keeper.ContractAddresses {
			result.ContractAddresses[k] = v
		}
	}
	if keeper.Providers != nil {
		if result.Providers == nil {
			result.Providers = map[string]string{}
		}
		for k, v := range keeper.Providers {
			result.Providers[k] = v
		}
	}
	if keeper.BlockHistoryLimit != nil {
		result.BlockHistoryLimit = keeper.BlockHistoryLimit
	}
	if keeper.Options.TxType != "" {
		result.Options.TxType = keeper.Options.TxType
	}
	if keeper.Options.BaseFeeMultiplier != 0 {
		result.Options.BaseFeeMultiplier = keeper.Options.BaseFeeMultiplier
	}
	if keeper.Options.PriorityFee.Value != nil {
		result.Options.PriorityFee = keeper.Options.PriorityFee
	}
	if keeper.Options.MaxFeePerGasCapGwei != 0 {
		result.Options.MaxFeePerGasCapGwei = keeper.Options.MaxFeePerGasCapGwei
	}
	return result
}

func cloneEndpoints(m map[string]RawEndpoint) map[string]RawEndpoint {
	out := make(map[string]RawEndpoint, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTemplates(m map[string]RawTemplate) map[string]RawTemplate {
	out := make(map[string]RawTemplate, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSubscriptions(m map[string]RawSubscription) map[string]RawSubscription {
	out := make(map[string]RawSubscription, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
