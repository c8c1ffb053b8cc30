package contracts

import "errors"

var (
	ErrCalldataTooShort        = errors.New("contracts: calldata shorter than a function selector")
	ErrUnexpectedMethod        = errors.New("contracts: calldata does not match the expected method")
	ErrUnexpectedCalldataShape = errors.New("contracts: calldata did not decode to the expected shape")
	ErrUnknownOpKind           = errors.New("contracts: unknown rollup operation kind")
	ErrChunkSizeNotAllowed     = errors.New("contracts: block chunk count is not in the allowed set for this contract version")
)
