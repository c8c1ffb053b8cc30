// Command data-restore runs the Data Restore Driver: a long-running
// daemon that rebuilds the L2 account tree from L1 rollup-contract
// events and keeps it current.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l2ops/staterestore/chainclient"
	"github.com/l2ops/staterestore/config"
	"github.com/l2ops/staterestore/contracts"
	"github.com/l2ops/staterestore/internal/logutil"
	"github.com/l2ops/staterestore/restore"
	"github.com/l2ops/staterestore/storage"
	"github.com/l2ops/staterestore/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "data-restore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ParseDriverConfig(os.Args[1:])
	if err != nil {
		return err
	}
	logger, err := logutil.New(logutil.Config{Level: cfg.LogLevel, Format: logutil.Format(cfg.LogFormat)})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ethParams, err := config.LoadEthParameters(cfg.EthConfigPath)
	if err != nil {
		return err
	}

	chain, err := chainclient.Dial(ctx, chainclient.Config{RPCURL: cfg.RPCURL}, logger)
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	defer chain.Close()

	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	versionAt := func(l1Block uint64) contracts.Version {
		return contracts.VersionAt(ethParams.UpgradeBlocks, ethParams.InitialVersion, l1Block)
	}

	events := restore.NewEventState(chain, versionAt, ethParams.Rollup(), ethParams.Governance(), cfg.Confirmations, 0)
	ops := restore.NewOpsDecoder(chain, versionAt)

	driver := restore.New(logger, store, events, ops, restore.Config{
		Genesis: restore.GenesisConfig{
			FeeAccount:   cfg.FeeAccountAddress(),
			NFTCustody:   cfg.NFTCustodyAddress(),
			SpecialToken: cfg.NFTCustodyAddress(),
		},
		Eth: types.EthParameters{
			RollupAddress:     ethParams.Rollup(),
			GovernanceAddress: ethParams.Governance(),
			InitialVersion:    ethParams.InitialVersion,
			UpgradeBlocks:     ethParams.UpgradeBlocks,
		},
	})

	needsGenesis, err := driver.NeedsGenesis(ctx)
	if err != nil {
		return err
	}
	if needsGenesis {
		logger.Info("no prior state found, setting genesis")
		if err := driver.SetGenesisState(ctx); err != nil {
			return err
		}
	}
	if err := driver.LoadStateFromStorage(ctx); err != nil {
		return err
	}

	logger.Info("data restore driver starting")
	return driver.RunStateUpdate(ctx)
}
