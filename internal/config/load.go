package config

import (
	"os"

	"github.com/spf13/viper"
)

// Load reads a single config document (node or keeper) from path using
// viper with AutomaticEnv enabled. CLOUD_PROVIDER and STAGE are bound to
// the keys cloudProvider and stage; RawConfig has no field for either,
// so they do not appear in the decoded result. No credential variables
// are bound.
func Load(path string) (*RawConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	_ = v.BindEnv("cloudProvider", "CLOUD_PROVIDER")
	_ = v.BindEnv("stage", "STAGE")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var raw RawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// LoadNodeAndKeeper loads and merges the node config and keeper config
// documents in one step, the usual entrypoint for cmd/airkeeper.
func LoadNodeAndKeeper(nodeConfigPath, keeperConfigPath string) (*RawConfig, error) {
	if err := mustExist(nodeConfigPath); err != nil {
		return nil, err
	}
	if err := mustExist(keeperConfigPath); err != nil {
		return nil, err
	}

	node, err := Load(nodeConfigPath)
	if err != nil {
		return nil, err
	}
	keeper, err := Load(keeperConfigPath)
	if err != nil {
		return nil, err
	}
	return Merge(node, keeper)
}

// mustExist is a tiny guard used by the CLI to produce a clean error
// message instead of viper's generic "not found" when a path is wrong.
func mustExist(path string) error {
	_, err := os.Stat(path)
	return err
}
