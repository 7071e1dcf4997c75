// Package model defines the entities of a single Airkeeper update cycle:
// chains, credentials, templates, endpoints, subscriptions, RRP beacon
// jobs, and the merged configuration that ties them together.
package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainType is the only chain family this keeper understands.
type ChainType string

// ChainTypeEVM is the sole supported chain type (spec.md §4.1).
const ChainTypeEVM ChainType = "evm"

// TxType selects the fee model used when building update transactions.
type TxType string

const (
	TxTypeLegacy  TxType = "legacy"
	TxTypeEIP1559 TxType = "eip1559"
)

// ContractAddresses holds the three on-chain contracts this keeper calls.
type ContractAddresses struct {
	AirnodeRrp      common.Address
	RrpBeaconServer common.Address
	DapiServer      common.Address
}

// PriorityFee is a value with an explicit unit, as configured per chain.
type PriorityFee struct {
	Value float64
	Unit  string // "wei", "gwei", ...
}

// ChainOptions configures gas-target computation for one chain.
type ChainOptions struct {
	TxType             TxType
	BaseFeeMultiplier  int64
	PriorityFee        PriorityFee
	MaxFeePerGasCapGwei float64 // 0 means unset; supplemented safety clamp
}

// Chain is one configured EVM network.
type Chain struct {
	ID                 string // chain id as a decimal string, matches config keys
	Type               ChainType
	Contracts          ContractAddresses
	Providers          map[string]string // provider name -> RPC URL
	BlockHistoryLimit  int64             // default 300
	Options            ChainOptions
}

// Credential is an opaque bag of values the HTTP adapter needs to
// authenticate against a particular off-chain data source.
type Credential struct {
	OISTitle string
	Values   map[string]string
}

// OIS (Oracle Integration Specification) describes one off-chain API.
// Only the handful of fields the keeper needs are modeled; the adapter
// interprets the rest.
type OIS struct {
	Title     string
	Endpoints map[string]Endpoint // keyed by endpointName
}

// Endpoint identifies one operation of an OIS.
type Endpoint struct {
	OISTitle     string
	EndpointName string
	// ReservedParameters mirrors the adapter's reserved-parameter map;
	// "_type" must be present (spec.md §6).
	ReservedParameters map[string]string
}

// Template binds an endpoint to a fixed set of parameters.
type Template struct {
	EndpointID        common.Hash
	TemplateParameters []byte
}

// BeaconJob is a legacy RRP trigger.
type BeaconJob struct {
	TemplateID          common.Hash
	TemplateParameters  []byte
	EndpointID          common.Hash
	DeviationPercentage float64 // up to two decimal places
	KeeperSponsor       common.Address
	RequestSponsor      common.Address
	ChainIDs            []string // optional; nil means "all chains"
	AirnodeAddress      common.Address
	EnableIf            string // supplemented feature, see SPEC_FULL.md
}

// Subscription is a PSP trigger: a full nine-tuple specifying an
// automated push-style update (spec.md §3).
type Subscription struct {
	ChainID          string
	AirnodeAddress   common.Address
	TemplateID       common.Hash
	Parameters       []byte
	Conditions       []byte
	Relayer          common.Address
	Sponsor          common.Address
	Requester        common.Address
	FulfillFunctionID [4]byte
	EnableIf         string // supplemented feature, see SPEC_FULL.md
}

// ID recomputes the canonical subscriptionId (spec.md §3, §8).
func (s Subscription) ID() (common.Hash, error) {
	return DeriveSubscriptionID(s)
}

// Triggers groups the two trigger lists carried by config (spec.md §3).
type Triggers struct {
	RRPBeaconServerKeeperJobs []BeaconJob
	ProtoPSP                  []common.Hash // subscriptionIds
}

// Config is the merged, validated configuration for one invocation
// (spec.md §3, §4.1). It is treated as immutable and read-only for the
// remainder of the cycle once Merge/Validate return it.
type Config struct {
	Chains          map[string]Chain // keyed by chain id
	Mnemonic        string
	AirnodeAddress  common.Address
	Credentials     []Credential
	OISes           []OIS
	Endpoints       map[common.Hash]Endpoint
	Templates       map[common.Hash]Template
	Subscriptions   map[common.Hash]Subscription
	Triggers        Triggers
}

// GroupedSubscription is the output of the trigger resolver (C2): all
// subscriptions sharing one template, plus the template and endpoint
// they were validated against.
type GroupedSubscription struct {
	TemplateID    common.Hash
	Template      Template
	Endpoint      Endpoint
	Subscriptions []Subscription
}

// ResolvedBeaconJob is a validated RRP trigger with its derived beaconId.
type ResolvedBeaconJob struct {
	Job      BeaconJob
	BeaconID common.Hash
}

// Wei is a convenience alias used throughout gas-target plumbing.
type Wei = *big.Int
