// Package storage is the Storage Interactor: the gorm/postgres layer
// the Data Restore Driver and Block Reverter persist their state
// through. One transaction (opened with gorm.DB.Begin) backs one driver
// iteration or one revert run, matching the ACID-per-iteration
// requirement in SPEC_FULL.md §4.4.
package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventsStateRow is one persisted BlockEvent (§4.1/§4.4).
type EventsStateRow struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	BlockNumber     uint32 `gorm:"index"`
	TransactionHash string `gorm:"size:66"`
	Kind            uint8
	L1BlockNumber   uint64 `gorm:"index"`
	L1TxIndex       uint
	LogIndex        uint
	Processed       bool `gorm:"index"`
	CreatedAt       time.Time
}

func (EventsStateRow) TableName() string { return "events_state" }

// TokenEventRow is one persisted TokenEvent.
type TokenEventRow struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	L1BlockNumber uint64
	L1Address     string `gorm:"size:42"`
	TokenID       uint32 `gorm:"uniqueIndex"`
	CreatedAt     time.Time
}

func (TokenEventRow) TableName() string { return "token_events" }

// PriorityOpRow is one persisted priority operation (deposit/full-exit
// class), kept to reconcile the running serial-id counter (§4.3).
type PriorityOpRow struct {
	SerialID      uint64 `gorm:"primaryKey"`
	L1BlockNumber uint64
	TxHash        string `gorm:"size:66"`
	LogIndex      uint
	Fulfilled     bool
}

func (PriorityOpRow) TableName() string { return "priority_operations" }

// RollupOpsBlockRow is the decoded-but-not-yet-applied form of a
// committed L2 block (§4.2/§4.4).
type RollupOpsBlockRow struct {
	BlockNumber     uint32 `gorm:"primaryKey"`
	ContractVersion uint32
	FeeAccount      uint32
	Timestamp       uint64
	OpsJSON         []byte `gorm:"type:jsonb"`
	Applied         bool   `gorm:"index"`

	// VerifiedSeen is set once a matching BlockVerification log has
	// been observed for this block number; only verified-and-committed
	// blocks are eligible to apply to the tree (§4.1 "only verified and
	// committed blocks are applied").
	VerifiedSeen bool `gorm:"index"`
}

func (RollupOpsBlockRow) TableName() string { return "rollup_ops_blocks" }

// BlockRow is one applied L2 block's metadata, written once its ops
// have been folded into the tree.
type BlockRow struct {
	BlockNumber     uint32 `gorm:"primaryKey"`
	RootHash        string `gorm:"size:66"`
	FeeAccount      uint32
	Timestamp       uint64
	ContractVersion int
	ChunksUsed      int
	CommitTxHash    string `gorm:"size:66"`

	PriorityOperations           uint64
	PendingOnchainOperationsHash string `gorm:"size:66"`
	Commitment                   string `gorm:"size:66"`

	VerifiedAt *time.Time
	RevertedAt *time.Time
}

func (BlockRow) TableName() string { return "blocks" }

// AccountBalanceUpdateRow is one balance-change journal entry.
type AccountBalanceUpdateRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	BlockNumber uint32 `gorm:"index"`
	AccountID   uint32 `gorm:"index"`
	TokenID     uint32
	OldBalance  string
	NewBalance  string
}

func (AccountBalanceUpdateRow) TableName() string { return "account_balance_updates" }

// AccountCreateRow is one account-creation journal entry.
type AccountCreateRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	BlockNumber uint32 `gorm:"index"`
	AccountID   uint32 `gorm:"uniqueIndex"`
	Address     string `gorm:"size:42"`
}

func (AccountCreateRow) TableName() string { return "account_creates" }

// AccountPubkeyUpdateRow is one change-pubkey journal entry.
type AccountPubkeyUpdateRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	BlockNumber uint32 `gorm:"index"`
	AccountID   uint32 `gorm:"index"`
	OldNonce    uint32
	NewNonce    uint32
	PubKeyHash  string `gorm:"size:66"`
}

func (AccountPubkeyUpdateRow) TableName() string { return "account_pubkey_updates" }

// MintNFTUpdateRow is one NFT-mint journal entry.
type MintNFTUpdateRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	BlockNumber uint32 `gorm:"index"`
	AccountID   uint32 `gorm:"index"`
	TokenID     uint32 `gorm:"uniqueIndex"`
}

func (MintNFTUpdateRow) TableName() string { return "mint_nft_updates" }

// TreeCacheRow holds the serialized account map taken at one block,
// one row per cached block; LoadTreeCache reads the highest (§4.4
// "tree cache").
type TreeCacheRow struct {
	BlockNumber uint32 `gorm:"primaryKey"`
	Accounts    []byte `gorm:"type:jsonb"`
	UpdatedAt   time.Time
}

func (TreeCacheRow) TableName() string { return "tree_cache" }

// CheckpointRow is the tri-valued durable checkpoint (§4.4).
type CheckpointRow struct {
	ID               uint8 `gorm:"primaryKey"` // always 1: single row
	State            uint8
	LastL1BlockScanned uint64
	UpdatedAt        time.Time
}

func (CheckpointRow) TableName() string { return "checkpoint" }

// EthParametersRow records the contract addresses and upgrade
// boundaries the driver was configured with (written each iteration by
// UpdateEthState), and the reverter's last observed operator nonce.
type EthParametersRow struct {
	ID                uint8 `gorm:"primaryKey"`
	RollupAddress     string
	GovernanceAddress string
	InitialVersion    uint32
	UpgradeBlocksJSON []byte `gorm:"type:jsonb"`

	// OperatorNonce is the last nonce the Block Reverter observed for
	// its signing account at the end of a revert run, so an
	// operator inspecting this row after a crash mid-revert knows what
	// nonce to resume from without re-querying the chain.
	OperatorNonce uint64
	UpdatedAt     time.Time
}

func (EthParametersRow) TableName() string { return "eth_parameters" }

// TokenRow is one registered token, including the genesis SPECIAL
// token minted for NFT custody (§4.3 Genesis) and every token
// registered later via governance's NewToken event.
type TokenRow struct {
	TokenID   uint32 `gorm:"primaryKey"`
	Address   string `gorm:"size:42"`
	Symbol    string
	Decimals  uint8
	Kind      uint8
	CreatedAt time.Time
}

func (TokenRow) TableName() string { return "tokens" }

// PendingBlockRow is the single in-progress block the sequencer was
// building when the driver/reverter ran; cleared wholesale on revert
// since its contents are necessarily above any last-correct block.
type PendingBlockRow struct {
	ID        uint8 `gorm:"primaryKey"` // always 1: single row
	BlockNumber uint32
	UpdatedAt time.Time
}

func (PendingBlockRow) TableName() string { return "pending_block" }

// AggregatedOperationRow groups a range of blocks into one L1
// commit/verify/execute transaction (§4.6 "aggregated operations").
type AggregatedOperationRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Kind      uint8
	FromBlock uint32 `gorm:"index"`
	ToBlock   uint32 `gorm:"index"`
	Confirmed bool
}

func (AggregatedOperationRow) TableName() string { return "aggregate_operations" }

// EthOperationBindingRow links one AggregatedOperationRow to the L1
// transaction(s) that submitted it, mirroring the original's
// eth_operations/eth_aggregated_ops_binding join.
type EthOperationBindingRow struct {
	ID                 uint64 `gorm:"primaryKey;autoIncrement"`
	AggregatedOperationID uint64 `gorm:"index"`
	TxHash             string `gorm:"size:66"`
}

func (EthOperationBindingRow) TableName() string { return "eth_aggregated_ops_binding" }

// ProverWitnessRow is the witness data prepared for a block's proof.
type ProverWitnessRow struct {
	BlockNumber uint32 `gorm:"primaryKey"`
	Witness     []byte `gorm:"type:jsonb"`
}

func (ProverWitnessRow) TableName() string { return "prover_witness" }

// ProofRow is one block's generated SNARK proof.
type ProofRow struct {
	BlockNumber uint32 `gorm:"primaryKey"`
	Proof       []byte `gorm:"type:jsonb"`
}

func (ProofRow) TableName() string { return "proofs" }

// AggregatedProofRow is one aggregated range-proof over [FromBlock, ToBlock].
type AggregatedProofRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	FromBlock uint32 `gorm:"index"`
	ToBlock   uint32 `gorm:"index"`
	Proof     []byte `gorm:"type:jsonb"`
}

func (AggregatedProofRow) TableName() string { return "aggregated_proofs" }

// ProverJobRow tracks one unit of prover work handed out to a worker.
type ProverJobRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	BlockNumber uint32 `gorm:"index"`
	JobKind     uint8
	Succeeded   bool
}

func (ProverJobRow) TableName() string { return "prover_job_queue" }

// AllModels lists every gorm model for AutoMigrate, used by
// cmd/data-restore at startup the way most gorm-based services
// migrate their schema on boot rather than shipping separate SQL
// migration files.
func AllModels() []interface{} {
	return []interface{}{
		&EventsStateRow{}, &TokenEventRow{}, &PriorityOpRow{}, &TokenRow{},
		&RollupOpsBlockRow{}, &BlockRow{}, &PendingBlockRow{},
		&AccountBalanceUpdateRow{}, &AccountCreateRow{}, &AccountPubkeyUpdateRow{}, &MintNFTUpdateRow{},
		&TreeCacheRow{}, &CheckpointRow{}, &EthParametersRow{},
		&AggregatedOperationRow{}, &EthOperationBindingRow{},
		&ProverWitnessRow{}, &ProofRow{}, &AggregatedProofRow{}, &ProverJobRow{},
	}
}

func addrStr(a common.Address) string { return a.Hex() }
func hashStr(h common.Hash) string    { return h.Hex() }
