package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l2ops/staterestore/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadGenesisTokens(t *testing.T) {
	home := t.TempDir()
	writeFile(t, filepath.Join(home, "etc", "tokens", "mainnet.json"), `[
		{"address": "0x0000000000000000000000000000000000000001", "symbol": "ETH", "decimals": 18},
		{"address": "0x0000000000000000000000000000000000000002", "symbol": "USDC", "decimals": 6}
	]`)

	tokens, err := LoadGenesisTokens(home, "mainnet")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Equal(t, types.TokenID(1), tokens[0].ID)
	require.Equal(t, "ETH", tokens[0].Symbol)
	require.Equal(t, types.TokenKindERC20, tokens[0].Kind)
}

func TestLoadGenesisTokensAccumulatesEveryInvalidEntry(t *testing.T) {
	home := t.TempDir()
	writeFile(t, filepath.Join(home, "etc", "tokens", "mainnet.json"), `[
		{"address": "not-an-address", "symbol": "BAD", "decimals": 18},
		{"address": "0x0000000000000000000000000000000000000001", "symbol": "", "decimals": 18},
		{"address": "0x0000000000000000000000000000000000000002", "symbol": "OK", "decimals": 18},
		{"address": "0x0000000000000000000000000000000000000002", "symbol": "DUP", "decimals": 18}
	]`)

	_, err := LoadGenesisTokens(home, "mainnet")
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "invalid address")
	require.Contains(t, msg, "empty symbol")
	require.Contains(t, msg, "duplicate address")
}

func TestLoadGenesisTokensMissingFile(t *testing.T) {
	_, err := LoadGenesisTokens(t.TempDir(), "mainnet")
	require.Error(t, err)
}

func TestLoadEthParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eth-parameters.toml")
	writeFile(t, path, `
rollup_address = "0x0000000000000000000000000000000000000aaa"
governance_address = "0x0000000000000000000000000000000000000bbb"
initial_version = 3
upgrade_blocks = [100, 200]
`)

	p, err := LoadEthParameters(path)
	require.NoError(t, err)
	require.Equal(t, uint32(3), p.InitialVersion)
	require.Equal(t, []uint64{100, 200}, p.UpgradeBlocks)
	require.Equal(t, "0x0000000000000000000000000000000000000AAA", p.Rollup().Hex())
}

func TestLoadEthParametersRejectsBadAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eth-parameters.toml")
	writeFile(t, path, `
rollup_address = "not-an-address"
governance_address = "0x0000000000000000000000000000000000000bbb"
initial_version = 3
`)
	_, err := LoadEthParameters(path)
	require.Error(t, err)
}

func TestParseDriverConfig(t *testing.T) {
	cfg, err := ParseDriverConfig([]string{
		"--rpc-url", "http://localhost:8545",
		"--database-url", "postgres://localhost/db",
		"--fee-account", "0x0000000000000000000000000000000000000001",
		"--nft-custody", "0x0000000000000000000000000000000000000002",
	})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8545", cfg.RPCURL)
	require.Equal(t, uint64(10), cfg.Confirmations)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestParseDriverConfigRequiresRPCURL(t *testing.T) {
	_, err := ParseDriverConfig([]string{
		"--database-url", "postgres://localhost/db",
		"--fee-account", "0x0000000000000000000000000000000000000001",
		"--nft-custody", "0x0000000000000000000000000000000000000002",
	})
	require.Error(t, err)
}

func TestParseDriverConfigRejectsBadAddresses(t *testing.T) {
	_, err := ParseDriverConfig([]string{
		"--rpc-url", "http://localhost:8545",
		"--database-url", "postgres://localhost/db",
		"--fee-account", "nope",
		"--nft-custody", "0x0000000000000000000000000000000000000002",
	})
	require.Error(t, err)
}
