// Package chainclient wraps an L1 JSON-RPC endpoint with the narrow
// surface the Data Restore Driver and Block Reverter need: log
// filtering, transaction/receipt lookups, nonce/gas queries, and raw
// transaction submission. It adds request shaping (rate limiting,
// in-flight de-duplication) and a small header cache on top of
// go-ethereum's ethclient, the way op-service/sources wraps ethclient
// with caching.LRUCache and batch/retry behavior.
package chainclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Config holds the dial and request-shaping parameters for a Client.
type Config struct {
	RPCURL string

	// RateLimit bounds steady-state requests per second to the RPC
	// endpoint; RateBurst allows short bursts above that, mirroring
	// the EthClientConfig.MaxRequestsPerBatch-style throttling the
	// op-service sources package applies per provider kind.
	RateLimit float64
	RateBurst int

	// HeaderCacheSize bounds the number of BlockRef entries
	// kept in memory, as op-service's L1Client bounds its
	// l1BlockRefsCache.
	HeaderCacheSize int
}

func (c Config) withDefaults() Config {
	if c.RateLimit <= 0 {
		c.RateLimit = 25
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.HeaderCacheSize <= 0 {
		c.HeaderCacheSize = 1000
	}
	return c
}

// BlockRef is the minimal L1 block identity returned by
// BlockRefByNumber and BlockRefByHash: number, hash, parent hash and
// timestamp.
type BlockRef struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Time       uint64
}

// Client is the chain-facing dependency the restore and revert
// packages are constructed with; restore.EventState, restore.OpsDecoder
// and revert.Reverter take an interface satisfied by *Client so tests can substitute a
// fake (§9 Design Notes: inject capability interfaces, never reach
// for a global client).
type Client struct {
	log    log.Logger
	rpc    *ethclient.Client
	limiter *rate.Limiter
	group   singleflight.Group

	headerCache *lru.Cache[common.Hash, BlockRef]
}

// Dial connects to an L1 RPC endpoint and wraps it for restorer/reverter use.
func Dial(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dial %s: %w", cfg.RPCURL, err)
	}
	cache, err := lru.New[common.Hash, BlockRef](cfg.HeaderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chainclient: new header cache: %w", err)
	}
	return &Client{
		log:         logger,
		rpc:         rpc,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		headerCache: cache,
	}, nil
}

// NewFromRPC wraps an already-dialed ethclient.Client, for callers
// (and tests) that construct the RPC connection themselves.
func NewFromRPC(rpc *ethclient.Client, cfg Config, logger log.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	cache, err := lru.New[common.Hash, BlockRef](cfg.HeaderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chainclient: new header cache: %w", err)
	}
	return &Client{
		log:         logger,
		rpc:         rpc,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		headerCache: cache,
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chainclient: rate limiter: %w", err)
	}
	return nil
}

// HeadBlockNumber returns the current L1 chain head.
func (c *Client) HeadBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	v, err, _ := c.group.Do("HeadBlockNumber", func() (interface{}, error) {
		return c.rpc.BlockNumber(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("chainclient: block number: %w", err)
	}
	return v.(uint64), nil
}

// BlockRefByNumber fetches and caches the header identity of an L1 block.
func (c *Client) BlockRefByNumber(ctx context.Context, number uint64) (BlockRef, error) {
	if err := c.wait(ctx); err != nil {
		return BlockRef{}, err
	}
	key := fmt.Sprintf("hdr-%d", number)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		h, err := c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return nil, err
		}
		ref := BlockRef{Number: h.Number.Uint64(), Hash: h.Hash(), ParentHash: h.ParentHash, Time: h.Time}
		c.headerCache.Add(ref.Hash, ref)
		return ref, nil
	})
	if err != nil {
		return BlockRef{}, fmt.Errorf("chainclient: header by number %d: %w", number, err)
	}
	return v.(BlockRef), nil
}

// BlockRefByHash returns the cached BlockRef for hash if known, else fetches it.
func (c *Client) BlockRefByHash(ctx context.Context, hash common.Hash) (BlockRef, error) {
	if ref, ok := c.headerCache.Get(hash); ok {
		return ref, nil
	}
	if err := c.wait(ctx); err != nil {
		return BlockRef{}, err
	}
	h, err := c.rpc.HeaderByHash(ctx, hash)
	if err != nil {
		return BlockRef{}, fmt.Errorf("chainclient: header by hash %s: %w", hash, err)
	}
	ref := BlockRef{Number: h.Number.Uint64(), Hash: h.Hash(), ParentHash: h.ParentHash, Time: h.Time}
	c.headerCache.Add(ref.Hash, ref)
	return ref, nil
}

// FilterLogs scans the given topic/address/range query; the caller
// (restore.EventState) is responsible for keeping the range within
// whatever window size the RPC provider tolerates.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	logs, err := c.rpc.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chainclient: filter logs: %w", err)
	}
	return logs, nil
}

// TransactionByHash fetches a transaction's input, used by the Rollup
// Ops Decoder to read the commitBlocks calldata a BlockCommit event
// references.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if err := c.wait(ctx); err != nil {
		return nil, false, err
	}
	tx, pending, err := c.rpc.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("chainclient: tx by hash %s: %w", hash, err)
	}
	return tx, pending, nil
}

// TransactionReceipt fetches the receipt of a submitted revertBlocks
// (or any other) transaction, used to check its status.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	r, err := c.rpc.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err // ethereum.NotFound is a sentinel the caller polls on
	}
	return r, nil
}

// NonceAt returns the account's pending nonce (PendingNonceAt), used
// by the reverter to pick the next nonce for its submitted
// transaction and to observe whether it advanced after confirmation.
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.rpc.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("chainclient: nonce at %s: %w", account, err)
	}
	return n, nil
}

// SuggestGasPrice proxies the RPC's gas price oracle.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	p, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainclient: suggest gas price: %w", err)
	}
	return p, nil
}

// SendTransaction submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.rpc.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("chainclient: send transaction: %w", err)
	}
	return nil
}

// CallContract executes a read-only call (getTotalVerifiedBlocks,
// failureReason) against the current head state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: call contract: %w", err)
	}
	return out, nil
}

// ChainID returns the L1 chain id, used to build the transaction signer.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	id, err := c.rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainclient: chain id: %w", err)
	}
	return id, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.rpc.Close() }
