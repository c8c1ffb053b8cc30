// Command block-revert is the one-shot CLI wrapping the Block
// Reverter: it rolls on-chain commitments and/or local database state
// back to an operator-chosen last-correct block.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/l2ops/staterestore/chainclient"
	"github.com/l2ops/staterestore/config"
	"github.com/l2ops/staterestore/internal/logutil"
	"github.com/l2ops/staterestore/revert"
	"github.com/l2ops/staterestore/storage"
	rtypes "github.com/l2ops/staterestore/types"
)

const operatorKeyEnvVar = "BLOCK_REVERT_OPERATOR_KEY"

func main() {
	app := &cli.App{
		Name:  "block-revert",
		Usage: "revert Rollup blocks on contract and/or in storage",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "last-correct-block", Required: true, Usage: "blocks above this number are reverted"},
			&cli.StringFlag{Name: "key", Usage: "operator private key, optionally 0x-prefixed; falls back to " + operatorKeyEnvVar + " then an interactive prompt"},
			&cli.StringFlag{Name: "rpc-url", Required: true, Usage: "L1 JSON-RPC endpoint"},
			&cli.StringFlag{Name: "database-url", Required: true, Usage: "Postgres DSN"},
			&cli.StringFlag{Name: "eth-config", Value: "eth-parameters.toml", Usage: "path to the eth parameters TOML file"},
		},
		Commands: []*cli.Command{
			{Name: "all", Usage: "revert on contract and in storage", Action: run(revert.ModeAll)},
			{Name: "contract", Usage: "revert on contract only", Action: run(revert.ModeContract)},
			{Name: "storage", Usage: "revert in storage only", Action: run(revert.ModeStorage)},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "block-revert:", err)
		os.Exit(1)
	}
}

func run(mode revert.Mode) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx := c.Context
		lastCorrectBlock := rtypes.BlockNumber(c.Uint64("last-correct-block"))

		logger, err := logutil.New(logutil.Config{Level: "info"})
		if err != nil {
			return err
		}

		key, err := resolveOperatorKey(c.String("key"))
		if err != nil {
			return err
		}
		operator := crypto.PubkeyToAddress(key.PublicKey)

		ethParams, err := config.LoadEthParameters(c.String("eth-config"))
		if err != nil {
			return err
		}

		chain, err := chainclient.Dial(ctx, chainclient.Config{RPCURL: c.String("rpc-url")}, logger)
		if err != nil {
			return fmt.Errorf("dial chain: %w", err)
		}
		defer chain.Close()

		store, err := storage.Open(c.String("database-url"))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		if mode == revert.ModeAll || mode == revert.ModeContract {
			if err := printPlan(ctx, store, lastCorrectBlock); err != nil {
				logger.Warn("could not render revert plan", "err", err)
			}
		}

		reverter := revert.New(logger, chain, store.ForRevert(), ethParams.Rollup(), operator, signer(key))
		if err := reverter.Run(ctx, mode, lastCorrectBlock); err != nil {
			return err
		}
		fmt.Println("revert complete")
		return nil
	}
}

// printPlan renders the blocks about to be reverted via tablewriter
// before the on-chain call, for operator review.
func printPlan(ctx context.Context, store *storage.Interactor, lastCorrectBlock rtypes.BlockNumber) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	last, err := tx.LastCommittedBlock(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"block", "action"})
	for n := last; n > lastCorrectBlock; n-- {
		table.Append([]string{strconv.FormatUint(uint64(n), 10), "revert"})
	}
	table.Render()
	return nil
}

func resolveOperatorKey(flagVal string) (*ecdsa.PrivateKey, error) {
	hexKey := flagVal
	if hexKey == "" {
		hexKey = os.Getenv(operatorKeyEnvVar)
	}
	if hexKey == "" {
		fmt.Print("operator private key: ")
		bytePw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("read operator key: %w", err)
		}
		hexKey = strings.TrimSpace(string(bytePw))
	}
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	return key, nil
}

func signer(key *ecdsa.PrivateKey) revert.TxSigner {
	return func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
		s := types.LatestSignerForChainID(chainID)
		return types.SignTx(tx, s, key)
	}
}
