package config

import (
	"flag"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peterbourgon/ff/v3"
)

// DriverConfig is cmd/data-restore's full set of startup parameters:
// flags, bound to environment variables with a shared prefix via
// peterbourgon/ff, the dual flag/env binding the rest of this module
// uses for its CLI surface.
type DriverConfig struct {
	RPCURL        string
	DatabaseURL   string
	EthConfigPath string
	HomePath      string
	Network       string

	Confirmations uint64
	FeeAccount    string
	NFTCustody    string

	LogLevel  string
	LogFormat string
}

// ParseDriverConfig parses args (normally os.Args[1:]) into a
// DriverConfig, honoring DRD_-prefixed environment variables for every
// flag that isn't passed explicitly.
func ParseDriverConfig(args []string) (DriverConfig, error) {
	var cfg DriverConfig
	fs := flag.NewFlagSet("data-restore", flag.ContinueOnError)
	fs.StringVar(&cfg.RPCURL, "rpc-url", "", "L1 JSON-RPC endpoint")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "Postgres DSN")
	fs.StringVar(&cfg.EthConfigPath, "eth-config", "eth-parameters.toml", "path to the eth parameters TOML file")
	fs.StringVar(&cfg.HomePath, "home-path", ".", "base path used to locate etc/tokens/<network>.json")
	fs.StringVar(&cfg.Network, "network", "mainnet", "genesis token list network name")
	fs.Uint64Var(&cfg.Confirmations, "confirmations", 10, "L1 confirmations required before an event is considered final")
	fs.StringVar(&cfg.FeeAccount, "fee-account", "", "genesis fee account address")
	fs.StringVar(&cfg.NFTCustody, "nft-custody", "", "genesis NFT custody account address")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", "terminal", "log format: terminal or json")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("DRD")); err != nil {
		return DriverConfig{}, fmt.Errorf("config: parse driver flags: %w", err)
	}

	if cfg.RPCURL == "" {
		return DriverConfig{}, fmt.Errorf("config: --rpc-url (or DRD_RPC_URL) is required")
	}
	if cfg.DatabaseURL == "" {
		return DriverConfig{}, fmt.Errorf("config: --database-url (or DRD_DATABASE_URL) is required")
	}
	if !common.IsHexAddress(cfg.FeeAccount) {
		return DriverConfig{}, fmt.Errorf("config: --fee-account is not a valid address: %q", cfg.FeeAccount)
	}
	if !common.IsHexAddress(cfg.NFTCustody) {
		return DriverConfig{}, fmt.Errorf("config: --nft-custody is not a valid address: %q", cfg.NFTCustody)
	}
	return cfg, nil
}

func (c DriverConfig) FeeAccountAddress() common.Address { return common.HexToAddress(c.FeeAccount) }
func (c DriverConfig) NFTCustodyAddress() common.Address { return common.HexToAddress(c.NFTCustody) }
