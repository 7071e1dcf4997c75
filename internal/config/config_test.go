package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/api3dao/airkeeper-go/internal/config"
	"github.com/api3dao/airkeeper-go/internal/wallet"
)

func baseNode() *config.RawConfig {
	return &config.RawConfig{
		Mnemonic: "test test test test test test test test test test test junk",
		Chains: []config.RawChain{
			{
				ID:   "31337",
				Type: "evm",
				ContractAddresses: map[string]string{
					"AirnodeRrp":      "0x1111111111111111111111111111111111111111",
					"RrpBeaconServer": "0x2222222222222222222222222222222222222222",
					"DapiServer":      "0x3333333333333333333333333333333333333333",
				},
				Providers: map[string]string{"primary": "http://localhost:8545"},
			},
		},
	}
}

func TestMergeChainNotInNodeConfigIsFatal(t *testing.T) {
	node := baseNode()
	keeper := &config.RawConfig{
		Chains: []config.RawChain{{ID: "999"}},
	}

	_, err := config.Merge(node, keeper)
	require.Error(t, err)
}

func TestMergeDeepMergesMatchingChain(t *testing.T) {
	node := baseNode()
	limit := int64(500)
	keeper := &config.RawConfig{
		Chains: []config.RawChain{
			{
				ID:                "31337",
				BlockHistoryLimit: &limit,
				Options:           config.RawChainOptions{TxType: "eip1559"},
			},
		},
	}

	merged, err := config.Merge(node, keeper)
	require.NoError(t, err)
	require.Len(t, merged.Chains, 1)
	require.Equal(t, int64(500), *merged.Chains[0].BlockHistoryLimit)
	require.Equal(t, "eip1559", merged.Chains[0].Options.TxType)
	// untouched fields survive the deep merge
	require.Equal(t, "http://localhost:8545", merged.Chains[0].Providers["primary"])
}

func TestValidateMissingMnemonicIsFatal(t *testing.T) {
	node := baseNode()
	node.Mnemonic = ""

	_, err := config.Validate(node)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid airnode configuration file")
}

func TestValidateMissingAirnodeAddressIsFatal(t *testing.T) {
	node := baseNode()

	_, err := config.Validate(node)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid airkeeper configuration file")
}

func TestValidateNoEVMChainIsFatal(t *testing.T) {
	node := baseNode()
	node.Chains[0].Type = "cosmos"
	// the airnodeAddress check runs before the evm-chain check, so it must pass here
	addr, err := wallet.AirnodeAddress(node.Mnemonic)
	require.NoError(t, err)
	node.AirnodeAddress = addr.Hex()

	_, err = config.Validate(node)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no chain of type evm")
}

func TestValidateSucceeds(t *testing.T) {
	node := baseNode()
	addr, err := wallet.AirnodeAddress(node.Mnemonic)
	require.NoError(t, err)
	node.AirnodeAddress = addr.Hex()

	cfg, err := config.Validate(node)
	require.NoError(t, err)
	require.Len(t, cfg.Chains, 1)
	require.Contains(t, cfg.Chains, "31337")
}
