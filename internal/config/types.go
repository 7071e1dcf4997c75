// Package config implements the Config Merger (C1, spec.md §4.1): it
// combines a node config document with a keeper config document and
// validates the cross-references spec.md requires before any network
// I/O happens.
package config

// RawChain is the on-disk shape of one chains[] entry, before merge.
type RawChain struct {
	ID                string            `mapstructure:"id"`
	Type              string            `mapstructure:"type"`
	ContractAddresses map[string]string `mapstructure:"contracts"`
	Providers         map[string]string `mapstructure:"providers"`
	BlockHistoryLimit *int64            `mapstructure:"blockHistoryLimit"`
	Options           RawChainOptions   `mapstructure:"options"`
}

// RawChainOptions is the on-disk shape of chains[].options.
type RawChainOptions struct {
	TxType              string          `mapstructure:"txType"`
	BaseFeeMultiplier   int64           `mapstructure:"baseFeeMultiplier"`
	PriorityFee         RawPriorityFee  `mapstructure:"priorityFee"`
	MaxFeePerGasCapGwei float64         `mapstructure:"maxFeePerGasCapGwei"`
}

// RawPriorityFee is the on-disk shape of chains[].options.priorityFee.
type RawPriorityFee struct {
	Value any    `mapstructure:"value"` // number or numeric string, see spf13/cast usage
	Unit  string `mapstructure:"unit"`
}

// RawCredential is one entry of the credentials list.
type RawCredential struct {
	OISTitle string            `mapstructure:"oisTitle"`
	Values   map[string]string `mapstructure:"values"`
}

// RawEndpoint is one endpoints[endpointId] entry.
type RawEndpoint struct {
	OISTitle           string            `mapstructure:"oisTitle"`
	EndpointName       string            `mapstructure:"endpointName"`
	ReservedParameters map[string]string `mapstructure:"reservedParameters"`
}

// RawTemplate is one templates[templateId] entry.
type RawTemplate struct {
	EndpointID         string `mapstructure:"endpointId"`
	TemplateParameters string `mapstructure:"templateParameters"` // hex
}

// RawSubscription is one subscriptions[subscriptionId] entry.
type RawSubscription struct {
	ChainID           string `mapstructure:"chainId"`
	AirnodeAddress    string `mapstructure:"airnodeAddress"`
	TemplateID        string `mapstructure:"templateId"`
	Parameters        string `mapstructure:"parameters"` // hex
	Conditions        string `mapstructure:"conditions"` // hex
	Relayer           string `mapstructure:"relayer"`
	Sponsor           string `mapstructure:"sponsor"`
	Requester         string `mapstructure:"requester"`
	FulfillFunctionID string `mapstructure:"fulfillFunctionId"` // hex, 4 bytes
	EnableIf          string `mapstructure:"enableIf"`
}

// RawBeaconJob is one triggers.rrpBeaconServerKeeperJobs[] entry.
type RawBeaconJob struct {
	TemplateID          string   `mapstructure:"templateId"`
	TemplateParameters  string   `mapstructure:"templateParameters"`
	EndpointID          string   `mapstructure:"endpointId"`
	DeviationPercentage float64  `mapstructure:"deviationPercentage"`
	KeeperSponsor       string   `mapstructure:"keeperSponsor"`
	RequestSponsor      string   `mapstructure:"requestSponsor"`
	ChainIDs            []string `mapstructure:"chainIds"`
	AirnodeAddress      string   `mapstructure:"airnodeAddress"`
	EnableIf            string   `mapstructure:"enableIf"`
}

// RawTriggers is the on-disk shape of the triggers section.
type RawTriggers struct {
	RRPBeaconServerKeeperJobs []RawBeaconJob `mapstructure:"rrpBeaconServerKeeperJobs"`
	ProtoPSP                  []string       `mapstructure:"protoPsp"` // subscriptionIds
}

// RawConfig is the on-disk shape of either the node config or the
// keeper config document (spec.md §3). Merge combines two of these;
// Validate converts the merged result into model.Config.
type RawConfig struct {
	Chains         []RawChain                 `mapstructure:"chains"`
	Mnemonic       string                     `mapstructure:"walletMnemonic"`
	AirnodeAddress string                     `mapstructure:"airnodeAddress"`
	AirnodeXpub    string                     `mapstructure:"airnodeXpub"`
	Credentials    []RawCredential            `mapstructure:"credentials"`
	OISes          []RawOIS                  `mapstructure:"ois"`
	Endpoints      map[string]RawEndpoint     `mapstructure:"endpoints"`
	Templates      map[string]RawTemplate     `mapstructure:"templates"`
	Subscriptions  map[string]RawSubscription `mapstructure:"subscriptions"`
	Triggers       RawTriggers                `mapstructure:"triggers"`
}

// RawOIS is the on-disk shape of one ois[] entry.
type RawOIS struct {
	Title     string                 `mapstructure:"title"`
	Endpoints []RawOISEndpointDef    `mapstructure:"endpoints"`
}

// RawOISEndpointDef names one endpoint exposed by an OIS.
type RawOISEndpointDef struct {
	Name               string            `mapstructure:"name"`
	ReservedParameters map[string]string `mapstructure:"reservedParameters"`
}
