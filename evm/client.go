// Package evm wraps the chain backend with per-call deadlines, kind-based
// retry, and a transaction sender.
package evm

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/RaghavSood/dexswap/swaperr"
)

// Backend is the subset of *ethclient.Client the swap pipeline uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

const (
	DefaultCallTimeout = 20 * time.Second
	defaultRetries     = 2
	defaultBackoff     = 250 * time.Millisecond
)

// Client is a Backend that bounds every call with a deadline and retries
// reads that failed with a retryable kind. Reverts from CallContract are
// classified as quote failures; use Call to pick another kind.
type Client struct {
	backend Backend
	timeout time.Duration
	retries int
	backoff time.Duration
	log     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a retryable read is re-attempted.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		c.backoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient wraps b.
func NewClient(b Backend, opts ...Option) *Client {
	c := &Client{
		backend: b,
		timeout: DefaultCallTimeout,
		retries: defaultRetries,
		backoff: defaultBackoff,
		log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Unwrap returns the underlying backend.
func (c *Client) Unwrap() Backend { return c.backend }

func (c *Client) read(ctx context.Context, op string, kind swaperr.Kind, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = fn(callCtx)
		cancel()
		if err == nil || errors.Is(err, ethereum.NotFound) {
			return err
		}
		err = swaperr.FromCall(op, kind, err)
		if !swaperr.Retryable(swaperr.KindOf(err)) || attempt >= c.retries || ctx.Err() != nil {
			return err
		}
		c.log.WithFields(logrus.Fields{"op": op, "attempt": attempt + 1}).WithError(err).Debug("retrying chain call")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(c.backoff * time.Duration(attempt+1)):
		}
	}
}

// Call runs a read-only call, classifying a revert as kind.
func (c *Client) Call(ctx context.Context, op string, kind swaperr.Kind, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.read(ctx, op, kind, func(ctx context.Context) error {
		var err error
		out, err = c.backend.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.read(ctx, "eth_call", swaperr.KindQuote, func(ctx context.Context) error {
		var err error
		out, err = c.backend.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.read(ctx, "eth_getCode", swaperr.KindQuote, func(ctx context.Context) error {
		var err error
		out, err = c.backend.CodeAt(ctx, account, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var out *types.Receipt
	err := c.read(ctx, "eth_getTransactionReceipt", swaperr.KindConfirmation, func(ctx context.Context) error {
		var err error
		out, err = c.backend.TransactionReceipt(ctx, txHash)
		return err
	})
	return out, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_chainId", swaperr.KindNetwork, func(ctx context.Context) error {
		var err error
		out, err = c.backend.ChainID(ctx)
		return err
	})
	return out, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var out uint64
	err := c.read(ctx, "eth_getTransactionCount", swaperr.KindNetwork, func(ctx context.Context) error {
		var err error
		out, err = c.backend.PendingNonceAt(ctx, account)
		return err
	})
	return out, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_gasPrice", swaperr.KindNetwork, func(ctx context.Context) error {
		var err error
		out, err = c.backend.SuggestGasPrice(ctx)
		return err
	})
	return out, err
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_maxPriorityFeePerGas", swaperr.KindNetwork, func(ctx context.Context) error {
		var err error
		out, err = c.backend.SuggestGasTipCap(ctx)
		return err
	})
	return out, err
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var out uint64
	err := c.read(ctx, "eth_estimateGas", swaperr.KindSimulation, func(ctx context.Context) error {
		var err error
		out, err = c.backend.EstimateGas(ctx, msg)
		return err
	})
	return out, err
}

// SendTransaction is bounded by the deadline but never retried.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return swaperr.FromCall("eth_sendRawTransaction", swaperr.KindConfirmation, c.backend.SendTransaction(ctx, tx))
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var out *types.Header
	err := c.read(ctx, "eth_getBlockByNumber", swaperr.KindNetwork, func(ctx context.Context) error {
		var err error
		out, err = c.backend.HeaderByNumber(ctx, number)
		return err
	})
	return out, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_getBalance", swaperr.KindQuote, func(ctx context.Context) error {
		var err error
		out, err = c.backend.BalanceAt(ctx, account, blockNumber)
		return err
	})
	return out, err
}
