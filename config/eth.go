package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// EthParameters are the contract addresses and version-upgrade
// schedule the driver and reverter both need; kept in their own TOML
// file (rather than as flags) since they rarely change and are shared
// across both binaries, the way the teacher keeps contract addresses
// in a deploy config file rather than repeating them as flags per
// command.
type EthParameters struct {
	RollupAddress     string   `toml:"rollup_address"`
	GovernanceAddress string   `toml:"governance_address"`
	InitialVersion    uint32   `toml:"initial_version"`
	UpgradeBlocks     []uint64 `toml:"upgrade_blocks"`
}

// LoadEthParameters parses path as TOML.
func LoadEthParameters(path string) (EthParameters, error) {
	var p EthParameters
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return EthParameters{}, fmt.Errorf("config: decode eth parameters %s: %w", path, err)
	}
	if !common.IsHexAddress(p.RollupAddress) {
		return EthParameters{}, fmt.Errorf("config: %s: invalid rollup_address %q", path, p.RollupAddress)
	}
	if !common.IsHexAddress(p.GovernanceAddress) {
		return EthParameters{}, fmt.Errorf("config: %s: invalid governance_address %q", path, p.GovernanceAddress)
	}
	return p, nil
}

func (p EthParameters) Rollup() common.Address     { return common.HexToAddress(p.RollupAddress) }
func (p EthParameters) Governance() common.Address { return common.HexToAddress(p.GovernanceAddress) }
