// Package trader runs one trade intent end to end: quote every strategy, pick
// the best, approve, build, simulate, submit, confirm and reconcile.
package trader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/db"
	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/swaperr"
	"github.com/RaghavSood/dexswap/swaps"
	"github.com/RaghavSood/dexswap/tokens"
)

// Strategy is what the trader needs from one venue.
type Strategy interface {
	Name() string
	Spender() common.Address
	EnsureApproval(ctx context.Context, token common.Address, amount *big.Int, spender common.Address) (*types.Receipt, error)
	Quote(ctx context.Context, intent swaps.Intent) (swaps.Quote, error)
	BuildTransaction(ctx context.Context, intent swaps.Intent) (evm.TxRequest, error)
}

// Submitter signs, simulates and sends for the trading account.
type Submitter interface {
	From() common.Address
	Simulate(ctx context.Context, req evm.TxRequest) ([]byte, error)
	Send(ctx context.Context, req evm.TxRequest) (*types.Transaction, error)
	Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Network reports which chain the backend is connected to and reads native
// balances for reconciliation.
type Network interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// TokenInfo resolves token decimals for formatting results.
type TokenInfo interface {
	Metadata(ctx context.Context, token common.Address) (tokens.Metadata, error)
}

// Journal records confirmed trades. *db.Store satisfies it.
type Journal interface {
	InsertTrade(ctx context.Context, arg db.InsertTradeParams) (db.Trade, error)
}

var (
	_ Submitter = (*evm.Sender)(nil)
	_ Network   = (*evm.Client)(nil)
	_ TokenInfo = (*tokens.Client)(nil)
	_ Journal   = (*db.Store)(nil)
)

type Option func(*Trader)

func WithJournal(j Journal) Option {
	return func(t *Trader) { t.journal = j }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Trader) { t.log = l }
}

// Trader orchestrates strategies for one chain and one account.
type Trader struct {
	chain      chains.Config
	network    Network
	submitter  Submitter
	tokens     TokenInfo
	strategies []Strategy
	journal    Journal
	log        logrus.FieldLogger

	// mu covers approval through confirmation so two trades never
	// interleave transactions from the same account.
	mu sync.Mutex
}

// New builds a trader. Strategies are consulted in the given order, which
// also breaks ties between equal quotes.
func New(chain chains.Config, network Network, submitter Submitter, info TokenInfo, strategies []Strategy, opts ...Option) *Trader {
	t := &Trader{
		chain:      chain,
		network:    network,
		submitter:  submitter,
		tokens:     info,
		strategies: strategies,
	}
	for _, o := range opts {
		o(t)
	}
	if t.log == nil {
		t.log = logrus.StandardLogger()
	}
	t.log = t.log.WithField("chain", chain.Name)
	return t
}

// Strategies returns the registered strategy names in order.
func (t *Trader) Strategies() []string {
	names := make([]string, len(t.strategies))
	for i, s := range t.strategies {
		names[i] = s.Name()
	}
	return names
}

// CheckNetwork fails unless the backend serves the configured chain.
func (t *Trader) CheckNetwork(ctx context.Context) error {
	id, err := t.network.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("getting chain id: %w", err)
	}
	if id.Cmp(t.chain.ID()) != 0 {
		return swaperr.New(swaperr.KindNetwork, "network", "connected to the wrong chain").
			WithValues(t.chain.ID().String(), id.String())
	}
	return nil
}

// QuoteAll asks every strategy for a quote in parallel. A strategy that fails
// is logged and left out. Quotes come back in registration order. When no
// quote is viable and some strategy failed, the failures are returned
// instead; see unquotable.
func (t *Trader) QuoteAll(ctx context.Context, intent swaps.Intent) ([]swaps.Quote, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if err := t.CheckNetwork(ctx); err != nil {
		return nil, err
	}

	results := make([]swaps.Quote, len(t.strategies))
	errs := make([]error, len(t.strategies))

	var g errgroup.Group
	for i, s := range t.strategies {
		g.Go(func() error {
			q, err := s.Quote(ctx, intent)
			if err != nil {
				t.log.WithFields(logrus.Fields{
					"strategy": s.Name(),
					"stage":    "quote",
				}).WithError(err).Warn("strategy excluded")
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return nil
			}
			t.log.WithFields(logrus.Fields{
				"strategy":   s.Name(),
				"amount_in":  bigString(q.AmountIn),
				"amount_out": q.OutputAmount,
			}).Debug("quote")
			results[i] = q
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]swaps.Quote, 0, len(results))
	var failed []error
	viable := false
	for i, q := range results {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		quotes = append(quotes, q)
		viable = viable || q.IsViable()
	}
	if !viable && len(failed) > 0 {
		return nil, unquotable(failed, len(failed) == len(t.strategies))
	}
	return quotes, nil
}

// unquotable is the selection error when failures left no viable quote. It
// wraps every failure. When all strategies failed with the same kind the
// error takes that kind; otherwise it is a quote failure.
func unquotable(failed []error, all bool) error {
	kind := swaperr.KindOf(failed[0])
	for _, err := range failed[1:] {
		if swaperr.KindOf(err) != kind {
			kind = ""
			break
		}
	}
	if !all || kind == "" {
		kind = swaperr.KindQuote
	}
	return &swaperr.Error{Kind: kind, Op: "select", Msg: "no viable strategy", Err: errors.Join(failed...)}
}

// Best picks the quote with the strictly largest raw output. Earlier quotes
// win ties.
func Best(quotes []swaps.Quote) (swaps.Quote, error) {
	var best swaps.Quote
	found := false
	for _, q := range quotes {
		if !q.IsViable() {
			continue
		}
		if !found || q.Route.AmountOut.Cmp(best.Route.AmountOut) > 0 {
			best = q
			found = true
		}
	}
	if !found {
		return swaps.Quote{}, swaperr.New(swaperr.KindQuote, "select", "no viable strategy")
	}
	return best, nil
}

func (t *Trader) strategy(name string) (Strategy, bool) {
	for _, s := range t.strategies {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Trade executes intent with the best strategy and returns what actually
// moved on chain.
func (t *Trader) Trade(ctx context.Context, intent swaps.Intent) (swaps.TradeResult, error) {
	log := t.log.WithFields(logrus.Fields{
		"token_in":  intent.InputToken.Hex(),
		"token_out": intent.OutputToken.Hex(),
		"amount_in": intent.InputAmount,
	})
	fail := func(stage string, err error) (swaps.TradeResult, error) {
		log.WithField("stage", stage).WithError(err).Error("trade failed")
		return swaps.TradeResult{}, err
	}

	quotes, err := t.QuoteAll(ctx, intent)
	if err != nil {
		return fail("quote", err)
	}
	best, err := Best(quotes)
	if err != nil {
		return fail("select", err)
	}
	s, ok := t.strategy(best.Strategy)
	if !ok {
		return fail("select", swaperr.New(swaperr.KindConfig, "select", "quote names unregistered strategy %q", best.Strategy))
	}
	log = log.WithField("strategy", s.Name())
	log.WithField("amount_out", best.OutputAmount).Info("selected strategy")

	t.mu.Lock()
	defer t.mu.Unlock()

	approvalGas := new(big.Int)
	if !swaps.IsNative(intent.InputToken) {
		receipt, err := s.EnsureApproval(ctx, intent.InputToken, best.AmountIn, s.Spender())
		if err != nil {
			return fail("approve", err)
		}
		approvalGas = evm.GasCost(receipt)
	}

	req, err := s.BuildTransaction(ctx, intent)
	if err != nil {
		return fail("build", err)
	}
	if _, err := t.submitter.Simulate(ctx, req); err != nil {
		return fail("simulate", fmt.Errorf("simulating %s swap: %w", s.Name(), err))
	}
	tx, err := t.submitter.Send(ctx, req)
	if err != nil {
		return fail("submit", err)
	}
	log = log.WithField("tx", tx.Hash().Hex())
	receipt, err := t.submitter.Wait(ctx, tx)
	if err != nil {
		return fail("confirm", err)
	}

	result, err := t.Reconcile(ctx, intent, s.Name(), tx, receipt)
	if err != nil {
		return fail("reconcile", err)
	}
	result.ApprovalGas = approvalGas

	log.WithFields(logrus.Fields{
		"block":    result.Block,
		"received": receivedString(result),
	}).Info("trade confirmed")

	t.record(ctx, intent, result, log)
	return result, nil
}

func (t *Trader) record(ctx context.Context, intent swaps.Intent, r swaps.TradeResult, log logrus.FieldLogger) {
	if t.journal == nil {
		return
	}
	spent := r.TokensSpent.Raw
	if swaps.IsNative(intent.InputToken) {
		spent = r.EthSpent.Raw
	}
	received := r.TokensReceived.Raw
	if swaps.IsNative(intent.OutputToken) {
		received = r.EthReceived.Raw
	}
	_, err := t.journal.InsertTrade(ctx, db.InsertTradeParams{
		Chain:           t.chain.Name,
		Strategy:        r.Strategy,
		TxHash:          r.TxHash.Hex(),
		BlockNumber:     int64(r.Block),
		InputToken:      intent.InputToken.Hex(),
		OutputToken:     intent.OutputToken.Hex(),
		AmountIn:        bigString(spent),
		AmountOut:       bigString(received),
		GasCost:         bigString(r.GasCost),
		ApprovalGasCost: bigString(r.ApprovalGas),
	})
	if err != nil {
		log.WithError(err).Warn("failed to journal trade")
	}
}

func receivedString(r swaps.TradeResult) string {
	if r.EthReceived.Raw != nil && r.EthReceived.Raw.Sign() > 0 {
		return r.EthReceived.Formatted
	}
	return r.TokensReceived.Formatted
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
