// Package contracts holds the per-contract-version ABI surface the
// restorer and reverter need: event topics, the revertBlocks/
// getTotalVerifiedBlocks/failureReason call encodings, and calldata
// decoding for committed rollup blocks. Dispatch between ABI variants
// is by L1 block range (contract upgrade), never by a mutable global
// (§9 Design Notes).
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// rollupContractABI is the subset of the rollup contract's ABI the
// restorer and reverter depend on: the three block lifecycle events
// plus NewPriorityRequest, and the three functions named in spec §6
// plus commitBlocks.
//
// revertBlocks and commitBlocks both take a `bytes[]`: each element is
// the ABI-encoded StoredBlockInfo (or CommittedBlockData) tuple,
// encoded/decoded independently via storedBlockInfoArgs /
// committedBlockDataArgs in stored_block_info.go. This keeps every tuple decode a single
// flat level deep, matching spec §6's literal `revertBlocks(bytes[])`
// signature and avoiding array-of-tuple reflection.
const rollupContractABI = `[
	{"type":"event","name":"BlockCommit","inputs":[{"name":"blockNumber","type":"uint32","indexed":true}]},
	{"type":"event","name":"BlockVerification","inputs":[{"name":"blockNumber","type":"uint32","indexed":true}]},
	{"type":"event","name":"BlocksRevert","inputs":[{"name":"totalBlocksVerified","type":"uint32","indexed":false},{"name":"totalBlocksCommitted","type":"uint32","indexed":false}]},
	{"type":"event","name":"NewPriorityRequest","inputs":[{"name":"sender","type":"address","indexed":false},{"name":"serialId","type":"uint64","indexed":true},{"name":"opType","type":"uint8","indexed":false},{"name":"pubData","type":"bytes","indexed":false},{"name":"expirationBlock","type":"uint256","indexed":false}]},
	{"type":"function","name":"revertBlocks","stateMutability":"nonpayable","inputs":[{"name":"blocksToRevert","type":"bytes[]"}],"outputs":[]},
	{"type":"function","name":"getTotalVerifiedBlocks","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint32"}]},
	{"type":"function","name":"failureReason","stateMutability":"view","inputs":[{"name":"txHash","type":"bytes32"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"commitBlocks","stateMutability":"nonpayable","inputs":[{"name":"blocksData","type":"bytes[]"}],"outputs":[]}
]`

// governanceContractABI covers only the NewToken registration event.
const governanceContractABI = `[
	{"type":"event","name":"NewToken","inputs":[{"name":"token","type":"address","indexed":true},{"name":"tokenId","type":"uint16","indexed":true}]}
]`

// RollupABI and GovernanceABI are parsed once at package init and
// reused by every contract Version and by the Block Reverter.
var (
	RollupABI     abi.ABI
	GovernanceABI abi.ABI
)

func init() {
	var err error
	RollupABI, err = abi.JSON(strings.NewReader(rollupContractABI))
	if err != nil {
		panic("contracts: invalid embedded rollup ABI: " + err.Error())
	}
	GovernanceABI, err = abi.JSON(strings.NewReader(governanceContractABI))
	if err != nil {
		panic("contracts: invalid embedded governance ABI: " + err.Error())
	}
}

// Event topic hashes, computed once, mirroring rollupsyncservice.go's
// `l1CommitBatchEventSignature`-style precomputed topic fields.
var (
	TopicBlockCommit       = RollupABI.Events["BlockCommit"].ID
	TopicBlockVerification = RollupABI.Events["BlockVerification"].ID
	TopicBlocksRevert      = RollupABI.Events["BlocksRevert"].ID
	TopicNewPriorityRequest = RollupABI.Events["NewPriorityRequest"].ID
	TopicNewToken          = GovernanceABI.Events["NewToken"].ID
)

// EventTopics returns every topic this package decodes, for building
// the eth_getLogs topic filter.
func EventTopics() []common.Hash {
	return []common.Hash{TopicBlockCommit, TopicBlockVerification, TopicBlocksRevert, TopicNewPriorityRequest, TopicNewToken}
}
