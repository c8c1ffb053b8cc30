package types

import "github.com/ethereum/go-ethereum/common"

// EthParameters is the static L1 configuration the restore driver syncs
// into storage on every iteration, so an operator inspecting the DB
// mid-restore sees where the driver believes the contracts live and
// which upgrades it knows about (§4.5 "Ethereum parameters row").
type EthParameters struct {
	RollupAddress     common.Address
	GovernanceAddress common.Address
	InitialVersion    uint32
	UpgradeBlocks     []uint64
}
