package types

import "github.com/ethereum/go-ethereum/common"

// BlockEventKind is the kind of on-chain event observed for an L2 block.
type BlockEventKind uint8

const (
	BlockEventCommitted BlockEventKind = iota
	BlockEventVerified
	BlockEventReverted
)

func (k BlockEventKind) String() string {
	switch k {
	case BlockEventCommitted:
		return "Committed"
	case BlockEventVerified:
		return "Verified"
	case BlockEventReverted:
		return "Reverted"
	default:
		return "Unknown"
	}
}

// BlockEvent is a single {Committed, Verified, Reverted} log observed
// on L1 for an L2 block.
type BlockEvent struct {
	BlockNum        BlockNumber
	TransactionHash common.Hash
	Kind            BlockEventKind

	L1BlockNumber uint64
	L1TxIndex     uint
	LogIndex      uint
}

// PriorityOpData is the L1 metadata of a priority operation (deposit /
// full-exit class) log: strictly increasing serial id per emission.
type PriorityOpData struct {
	SerialID      uint64
	L1BlockNumber uint64
	TxHash        common.Hash
	LogIndex      uint
}

// StorageUpdateState is the tri-valued durable checkpoint described in
// §4.4: exactly one value is persisted at a time, and it selects the
// driver's resume path on startup.
type StorageUpdateState uint8

const (
	// StorageStateNone: the previous iteration completed fully; start
	// a fresh cycle by scanning for new events.
	StorageStateNone StorageUpdateState = iota
	// StorageStateEvents: events were saved but ops have not been
	// decoded and applied yet.
	StorageStateEvents
	// StorageStateOperations: ops were saved but the tree/cache/L1
	// counters have not been updated yet.
	StorageStateOperations
)

func (s StorageUpdateState) String() string {
	switch s {
	case StorageStateNone:
		return "None"
	case StorageStateEvents:
		return "Events"
	case StorageStateOperations:
		return "Operations"
	default:
		return "Unknown"
	}
}
