package contracts

import "github.com/l2ops/staterestore/types"

// EncodeBlockPubdata serializes ops into the chunked pubdata layout
// contractVersion expects, the encode-side counterpart to
// DecodeCalldata used to build commitBlocks fixtures (tests and
// migration tooling construct commit transactions this way rather than
// hand-assembling pubdata bytes).
func EncodeBlockPubdata(contractVersion uint32, ops []types.Op) ([]byte, error) {
	v := versionByNumber(contractVersion).(version)
	return v.layout.EncodeOps(ops)
}
