package config

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cast"

	"github.com/api3dao/airkeeper-go/internal/keepererr"
	"github.com/api3dao/airkeeper-go/internal/model"
	"github.com/api3dao/airkeeper-go/internal/wallet"
)

// Validate checks the cross-references spec.md §4.1 requires and, on
// success, converts the merged RawConfig into a model.Config. Any
// failure here is fatal (spec.md §7 kind 1) and aborts the cycle
// before any network I/O.
func Validate(raw *RawConfig) (*model.Config, error) {
	if raw.Mnemonic == "" {
		return nil, keepererr.NewFatalConfigError("invalid airnode configuration file: mnemonic is missing")
	}

	derivedAddress, err := wallet.AirnodeAddress(raw.Mnemonic)
	if err != nil {
		return nil, keepererr.NewFatalConfigError("invalid airnode configuration file: could not derive airnode address: %v", err)
	}

	if raw.AirnodeAddress == "" && raw.AirnodeXpub == "" {
		return nil, keepererr.NewFatalConfigError("invalid airkeeper configuration file: airnodeAddress is missing")
	}
	if raw.AirnodeAddress != "" {
		declared := common.HexToAddress(raw.AirnodeAddress)
		if declared != derivedAddress {
			return nil, keepererr.NewFatalConfigError(
				"invalid airkeeper configuration file: airnodeAddress %s does not match the address derived from the mnemonic at m/44'/60'/0'/0/0 (%s)",
				declared, derivedAddress,
			)
		}
	}
	// Only airnodeAddress is cross-checked against the mnemonic. When
	// airnodeXpub is set and airnodeAddress is not, the xpub is accepted
	// as it is: no address is derived from it and nothing compares it
	// with the mnemonic.

	hasEVMChain := false
	chains := make(map[string]model.Chain, len(raw.Chains))
	for _, rc := range raw.Chains {
		if model.ChainType(rc.Type) == model.ChainTypeEVM {
			hasEVMChain = true
		}
		chain, err := convertChain(rc)
		if err != nil {
			return nil, keepererr.NewFatalConfigError("invalid chain %q: %v", rc.ID, err)
		}
		chains[rc.ID] = chain
	}
	if !hasEVMChain {
		return nil, keepererr.NewFatalConfigError("invalid airkeeper configuration file: no chain of type evm present")
	}

	endpoints := make(map[common.Hash]model.Endpoint, len(raw.Endpoints))
	for id, re := range raw.Endpoints {
		endpoints[common.HexToHash(id)] = model.Endpoint{
			OISTitle:           re.OISTitle,
			EndpointName:       re.EndpointName,
			ReservedParameters: re.ReservedParameters,
		}
	}

	templates := make(map[common.Hash]model.Template, len(raw.Templates))
	for id, rt := range raw.Templates {
		templates[common.HexToHash(id)] = model.Template{
			EndpointID:          common.HexToHash(rt.EndpointID),
			TemplateParameters:  common.FromHex(rt.TemplateParameters),
		}
	}

	subscriptions := make(map[common.Hash]model.Subscription, len(raw.Subscriptions))
	for id, rs := range raw.Subscriptions {
		var fulfillFn [4]byte
		copy(fulfillFn[:], common.FromHex(rs.FulfillFunctionID))
		subscriptions[common.HexToHash(id)] = model.Subscription{
			ChainID:           rs.ChainID,
			AirnodeAddress:    common.HexToAddress(rs.AirnodeAddress),
			TemplateID:        common.HexToHash(rs.TemplateID),
			Parameters:        common.FromHex(rs.Parameters),
			Conditions:        common.FromHex(rs.Conditions),
			Relayer:           common.HexToAddress(rs.Relayer),
			Sponsor:           common.HexToAddress(rs.Sponsor),
			Requester:         common.HexToAddress(rs.Requester),
			FulfillFunctionID: fulfillFn,
			EnableIf:          rs.EnableIf,
		}
	}

	rrpJobs := make([]model.BeaconJob, 0, len(raw.Triggers.RRPBeaconServerKeeperJobs))
	for _, rj := range raw.Triggers.RRPBeaconServerKeeperJobs {
		rrpJobs = append(rrpJobs, model.BeaconJob{
			TemplateID:          common.HexToHash(rj.TemplateID),
			TemplateParameters:  common.FromHex(rj.TemplateParameters),
			EndpointID:          common.HexToHash(rj.EndpointID),
			DeviationPercentage: rj.DeviationPercentage,
			KeeperSponsor:       common.HexToAddress(rj.KeeperSponsor),
			RequestSponsor:      common.HexToAddress(rj.RequestSponsor),
			ChainIDs:            rj.ChainIDs,
			AirnodeAddress:      common.HexToAddress(rj.AirnodeAddress),
			EnableIf:            rj.EnableIf,
		})
	}

	protoPSP := make([]common.Hash, 0, len(raw.Triggers.ProtoPSP))
	for _, id := range raw.Triggers.ProtoPSP {
		protoPSP = append(protoPSP, common.HexToHash(id))
	}

	oises := make([]model.OIS, 0, len(raw.OISes))
	for _, ro := range raw.OISes {
		endpointsByName := make(map[string]model.Endpoint, len(ro.Endpoints))
		for _, e := range ro.Endpoints {
			endpointsByName[e.Name] = model.Endpoint{
				OISTitle:           ro.Title,
				EndpointName:       e.Name,
				ReservedParameters: e.ReservedParameters,
			}
		}
		oises = append(oises, model.OIS{Title: ro.Title, Endpoints: endpointsByName})
	}

	credentials := make([]model.Credential, 0, len(raw.Credentials))
	for _, rc := range raw.Credentials {
		credentials = append(credentials, model.Credential{OISTitle: rc.OISTitle, Values: rc.Values})
	}

	cfg := &model.Config{
		Chains:         chains,
		Mnemonic:       raw.Mnemonic,
		AirnodeAddress: derivedAddress,
		Credentials:    credentials,
		OISes:          oises,
		Endpoints:      endpoints,
		Templates:      templates,
		Subscriptions:  subscriptions,
		Triggers: model.Triggers{
			RRPBeaconServerKeeperJobs: rrpJobs,
			ProtoPSP:                  protoPSP,
		},
	}

	log.Info("config merged and validated",
		"chains", len(cfg.Chains),
		"subscriptions", len(cfg.Subscriptions),
		"pspTriggers", len(cfg.Triggers.ProtoPSP),
		"rrpTriggers", len(cfg.Triggers.RRPBeaconServerKeeperJobs),
	)

	return cfg, nil
}

func convertChain(rc RawChain) (model.Chain, error) {
	blockHistoryLimit := int64(300)
	if rc.BlockHistoryLimit != nil {
		blockHistoryLimit = *rc.BlockHistoryLimit
	}

	priorityFeeValue, err := cast.ToFloat64E(rc.Options.PriorityFee.Value)
	if err != nil && rc.Options.PriorityFee.Value != nil {
		return model.Chain{}, err
	}

	return model.Chain{
		ID:   rc.ID,
		Type: model.ChainType(rc.Type),
		Contracts: model.ContractAddresses{
			AirnodeRrp:      common.HexToAddress(rc.ContractAddresses["AirnodeRrp"]),
			RrpBeaconServer: common.HexToAddress(rc.ContractAddresses["RrpBeaconServer"]),
			DapiServer:      common.HexToAddress(rc.ContractAddresses["DapiServer"]),
		},
		Providers:         rc.Providers,
		BlockHistoryLimit: blockHistoryLimit,
		Options: model.ChainOptions{
			TxType:              model.TxType(rc.Options.TxType),
			BaseFeeMultiplier:   rc.Options.BaseFeeMultiplier,
			PriorityFee:         model.PriorityFee{Value: priorityFeeValue, Unit: rc.Options.PriorityFee.Unit},
			MaxFeePerGasCapGwei: rc.Options.MaxFeePerGasCapGwei,
		},
	}, nil
}
