package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/l2ops/staterestore/types"
)

// genesisTokenEntry is the on-disk shape of one etc/tokens/<network>.json entry.
type genesisTokenEntry struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// LoadGenesisTokens reads etc/tokens/<network>.json under homePath and
// validates every entry, collecting every malformed one via
// go-multierror so an operator sees the whole list of problems at
// once instead of the first.
func LoadGenesisTokens(homePath, network string) ([]types.Token, error) {
	path := filepath.Join(homePath, "etc", "tokens", network+".json")
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis tokens %s: %w", path, err)
	}
	var entries []genesisTokenEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("config: parse genesis tokens %s: %w", path, err)
	}

	var result *multierror.Error
	tokens := make([]types.Token, 0, len(entries))
	seenAddr := make(map[common.Address]bool, len(entries))
	for i, e := range entries {
		if !common.IsHexAddress(e.Address) {
			result = multierror.Append(result, fmt.Errorf("entry %d: invalid address %q", i, e.Address))
			continue
		}
		addr := common.HexToAddress(e.Address)
		if seenAddr[addr] {
			result = multierror.Append(result, fmt.Errorf("entry %d: duplicate address %s", i, addr))
			continue
		}
		if e.Symbol == "" {
			result = multierror.Append(result, fmt.Errorf("entry %d: empty symbol", i))
			continue
		}
		seenAddr[addr] = true
		tokens = append(tokens, types.Token{
			ID:       types.TokenID(i + 1),
			Address:  addr,
			Symbol:   e.Symbol,
			Decimals: e.Decimals,
			Kind:     types.TokenKindERC20,
		})
	}
	if result != nil {
		return nil, fmt.Errorf("config: genesis tokens %s: %w", path, result.ErrorOrNil())
	}
	return tokens, nil
}
