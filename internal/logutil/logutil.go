// Package logutil builds the structured logger both cmd/data-restore
// and cmd/block-revert hand to their driver/reverter, the way the
// teacher's binaries each call into go-ethereum's log package rather
// than rolling their own.
package logutil

import (
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// Format selects the handler backing the logger.
type Format string

const (
	FormatTerminal Format = "terminal"
	FormatJSON     Format = "json"
)

// Config controls verbosity and output shape.
type Config struct {
	Level  string
	Format Format
}

func (c Config) withDefaults() Config {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatTerminal
	}
	return c
}

// New builds a root logger for a binary's entire process, mirroring
// how op-node/op-batcher each set up one log.Logger at startup and
// pass it down through New(...) constructors rather than reaching for
// a package-level global.
func New(cfg Config) (log.Logger, error) {
	cfg = cfg.withDefaults()
	lvl, err := log.LevelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = log.JSONHandler(os.Stdout)
	default:
		handler = log.NewTerminalHandler(os.Stdout, true)
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(lvl)
	return log.NewLogger(glogger), nil
}
