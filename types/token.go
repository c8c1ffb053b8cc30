package types

import "github.com/ethereum/go-ethereum/common"

// Token is a registered fungible token or NFT.
type Token struct {
	ID       TokenID
	Address  common.Address
	Symbol   string
	Decimals uint8
	Kind     TokenKind
}

// NewSpecialToken builds the genesis NFT-custody token: id
// SpecialNFTTokenID, symbol "SPECIAL", 18 decimals, per §4.3 Genesis.
func NewSpecialToken(address common.Address) Token {
	return Token{
		ID:       SpecialNFTTokenID,
		Address:  address,
		Symbol:   "SPECIAL",
		Decimals: 18,
		Kind:     TokenKindNFT,
	}
}

// TokenEvent is a new-token registration observed on the governance
// contract: strictly increasing id, unique address.
type TokenEvent struct {
	L1BlockNumber uint64
	L1Address     common.Address
	TokenID       TokenID
}
