package trader_test

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/db"
	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/evm/evmtest"
	"github.com/RaghavSood/dexswap/routing"
	"github.com/RaghavSood/dexswap/strategy"
	"github.com/RaghavSood/dexswap/swaperr"
	"github.com/RaghavSood/dexswap/swaps"
	"github.com/RaghavSood/dexswap/tokens"
	"github.com/RaghavSood/dexswap/trader"
	"github.com/RaghavSood/dexswap/venues"
)

var _ trader.Strategy = (*strategy.Generic)(nil)

var (
	router  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	swapSel = []byte{0xde, 0xad, 0xbe, 0xef}
)

type fakeStrategy struct {
	name     string
	quoteAs  string
	out      int64
	quoteErr error
	buildErr error
	value    *big.Int

	quotes      atomic.Int32
	approvals   atomic.Int32
	approvedFor *big.Int
	approvalRc  *types.Receipt
}

func (f *fakeStrategy) Name() string            { return f.name }
func (f *fakeStrategy) Spender() common.Address { return router }

func (f *fakeStrategy) EnsureApproval(ctx context.Context, token common.Address, amount *big.Int, spender common.Address) (*types.Receipt, error) {
	f.approvals.Add(1)
	f.approvedFor = amount
	return f.approvalRc, nil
}

func (f *fakeStrategy) Quote(ctx context.Context, intent swaps.Intent) (swaps.Quote, error) {
	f.quotes.Add(1)
	if f.quoteErr != nil {
		return swaps.Quote{}, f.quoteErr
	}
	name := f.name
	if f.quoteAs != "" {
		name = f.quoteAs
	}
	return swaps.Quote{
		Strategy:     name,
		AmountIn:     big.NewInt(1e18),
		OutputAmount: big.NewInt(f.out).String(),
		Route:        routing.Route{AmountOut: big.NewInt(f.out)},
	}, nil
}

func (f *fakeStrategy) BuildTransaction(ctx context.Context, intent swaps.Intent) (evm.TxRequest, error) {
	if f.buildErr != nil {
		return evm.TxRequest{}, f.buildErr
	}
	return evm.TxRequest{To: router, Data: swapSel, Value: f.value}, nil
}

type env struct {
	chain  chains.Config
	fake   *evmtest.Backend
	rpc    *evm.Client
	sender *evm.Sender
	tokens *tokens.Client
	usdc   *evmtest.Token
	dai    *evmtest.Token
}

func newEnv(t *testing.T) *env {
	t.Helper()
	chain, err := chains.Lookup("base")
	require.NoError(t, err)
	fake := evmtest.New(chain.ChainID)
	rpc := evm.NewClient(fake)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	e := &env{
		chain:  chain,
		fake:   fake,
		rpc:    rpc,
		sender: evm.NewSender(rpc, key, chain.ID(), nil),
		tokens: tokens.NewClient(rpc, common.HexToAddress(chains.Multicall3Address), chain.NativeSymbol),
	}
	e.usdc = fake.AddToken(chain.Stablecoin(), "USDC", 6)
	e.dai = fake.AddToken(common.HexToAddress(chain.Tokens.DAI), "DAI", 18)
	fake.AddToken(chain.WrappedNative(), "WETH", 18)
	return e
}

func (e *env) trader(strategies []trader.Strategy, opts ...trader.Option) *trader.Trader {
	return trader.New(e.chain, e.rpc, e.sender, e.tokens, strategies, opts...)
}

func (e *env) buyUSDC() swaps.Intent {
	return swaps.Intent{
		Chain:       e.chain.Name,
		InputKind:   swaps.InputNative,
		InputToken:  swaps.NativeToken,
		InputAmount: "1",
		OutputToken: e.usdc.Address,
	}
}

func transferLog(token, from, to common.Address, v *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics:  []common.Hash{tokens.TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    common.LeftPadBytes(v.Bytes(), 32),
	}
}

func withdrawalLog(weth, src common.Address, v *big.Int) *types.Log {
	return &types.Log{
		Address: weth,
		Topics:  []common.Hash{tokens.WithdrawalTopic, common.BytesToHash(src.Bytes())},
		Data:    common.LeftPadBytes(v.Bytes(), 32),
	}
}

func TestBestPicksLargestOutput(t *testing.T) {
	quotes := []swaps.Quote{
		{Strategy: "a", Route: routing.Route{AmountOut: big.NewInt(100)}},
		{Strategy: "b", Route: routing.Route{AmountOut: big.NewInt(250)}},
		{Strategy: "c", Route: routing.Route{AmountOut: big.NewInt(180)}},
	}
	best, err := trader.Best(quotes)
	require.NoError(t, err)
	assert.Equal(t, "b", best.Strategy)

	t.Run("tie keeps first", func(t *testing.T) {
		best, err := trader.Best([]swaps.Quote{
			{Strategy: "a", Route: routing.Route{AmountOut: big.NewInt(7)}},
			{Strategy: "b", Route: routing.Route{AmountOut: big.NewInt(7)}},
		})
		require.NoError(t, err)
		assert.Equal(t, "a", best.Strategy)
	})

	t.Run("no viable", func(t *testing.T) {
		_, err := trader.Best([]swaps.Quote{{Strategy: "a", Route: routing.Route{AmountOut: big.NewInt(0)}}, {Strategy: "b"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, swaperr.KindQuote))
		assert.Contains(t, err.Error(), "no viable strategy")
	})
}

func TestQuoteAllExcludesFailingStrategy(t *testing.T) {
	e := newEnv(t)
	a := &fakeStrategy{name: "a", out: 100}
	b := &fakeStrategy{name: "b", quoteErr: errors.New("boom")}
	c := &fakeStrategy{name: "c", out: 180}
	tr := e.trader([]trader.Strategy{a, b, c})

	quotes, err := tr.QuoteAll(context.Background(), e.buyUSDC())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "a", quotes[0].Strategy)
	assert.Equal(t, "c", quotes[1].Strategy)
	assert.Equal(t, []string{"a", "b", "c"}, tr.Strategies())
}

func TestQuoteAllSurfacesFailuresWhenNothingIsViable(t *testing.T) {
	e := newEnv(t)
	bad := swaperr.New(swaperr.KindValidation, "intent", "input amount must be positive")

	t.Run("shared kind", func(t *testing.T) {
		a := &fakeStrategy{name: "a", quoteErr: bad}
		b := &fakeStrategy{name: "b", quoteErr: swaperr.Wrap(swaperr.KindValidation, "intent", errors.New("too many decimals"))}
		_, err := e.trader([]trader.Strategy{a, b}).QuoteAll(context.Background(), e.buyUSDC())
		require.Error(t, err)
		assert.Equal(t, swaperr.KindValidation, swaperr.KindOf(err))
		assert.Contains(t, err.Error(), "a: intent: validation")
		assert.Contains(t, err.Error(), "too many decimals")
	})

	t.Run("mixed kinds", func(t *testing.T) {
		a := &fakeStrategy{name: "a", quoteErr: bad}
		b := &fakeStrategy{name: "b", quoteErr: swaperr.Wrap(swaperr.KindTransport, "call", errors.New("i/o timeout"))}
		_, err := e.trader([]trader.Strategy{a, b}).QuoteAll(context.Background(), e.buyUSDC())
		require.Error(t, err)
		assert.Equal(t, swaperr.KindQuote, swaperr.KindOf(err))
		assert.True(t, errors.Is(err, swaperr.KindValidation))
		assert.True(t, errors.Is(err, swaperr.KindTransport))
	})

	t.Run("dry strategy alongside a failure", func(t *testing.T) {
		a := &fakeStrategy{name: "a", quoteErr: bad}
		dry := &fakeStrategy{name: "dry"}
		_, err := e.trader([]trader.Strategy{a, dry}).QuoteAll(context.Background(), e.buyUSDC())
		require.Error(t, err)
		assert.Equal(t, swaperr.KindQuote, swaperr.KindOf(err))
		assert.True(t, errors.Is(err, swaperr.KindValidation))
	})

	t.Run("only dry strategies", func(t *testing.T) {
		quotes, err := e.trader([]trader.Strategy{&fakeStrategy{name: "dry"}}).QuoteAll(context.Background(), e.buyUSDC())
		require.NoError(t, err)
		require.Len(t, quotes, 1)
		assert.False(t, quotes[0].IsViable())
	})
}

func TestTradeRejectsUnregisteredQuoteName(t *testing.T) {
	e := newEnv(t)
	s := &fakeStrategy{name: "a", quoteAs: "impostor", out: 100}
	_, err := e.trader([]trader.Strategy{s}).Trade(context.Background(), e.buyUSDC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindConfig))
	assert.Contains(t, err.Error(), "impostor")
	assert.Empty(t, e.fake.Sent())
}

func TestQuoteAllRejectsInvalidIntentWithoutCalls(t *testing.T) {
	e := newEnv(t)
	a := &fakeStrategy{name: "a", out: 100}
	tr := e.trader([]trader.Strategy{a})

	for _, amount := range []string{"abc", "0", "-1"} {
		intent := e.buyUSDC()
		intent.InputAmount = amount
		_, err := tr.QuoteAll(context.Background(), intent)
		require.Error(t, err, amount)
		assert.True(t, errors.Is(err, swaperr.KindValidation), amount)
	}
	assert.Zero(t, a.quotes.Load())
	assert.Zero(t, e.fake.TotalCalls())
}

func TestWrongNetwork(t *testing.T) {
	e := newEnv(t)
	eth, err := chains.Lookup("ethereum")
	require.NoError(t, err)
	a := &fakeStrategy{name: "a", out: 100}
	tr := trader.New(eth, e.rpc, e.sender, e.tokens, []trader.Strategy{a})

	_, err = tr.QuoteAll(context.Background(), e.buyUSDC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindNetwork))
	assert.Zero(t, a.quotes.Load())
}

func TestTradeNativeForToken(t *testing.T) {
	e := newEnv(t)
	e.fake.Handle(router, swapSel, func([]byte) ([]byte, error) { return nil, nil })
	e.fake.OnSend = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{transferLog(e.usdc.Address, router, e.sender.From(), big.NewInt(2990e6))},
		}
	}

	store, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	low := &fakeStrategy{name: "low", out: 2900e6, value: big.NewInt(1e18)}
	high := &fakeStrategy{name: "high", out: 3000e6, value: big.NewInt(1e18)}
	tr := e.trader([]trader.Strategy{low, high}, trader.WithJournal(store))

	res, err := tr.Trade(context.Background(), e.buyUSDC())
	require.NoError(t, err)
	assert.Equal(t, "high", res.Strategy)
	assert.Equal(t, uint64(101), res.Block)
	assert.Equal(t, "1.0", res.EthSpent.Formatted)
	assert.Equal(t, big.NewInt(2990e6), res.TokensReceived.Raw)
	assert.Equal(t, "2990.0", res.TokensReceived.Formatted)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(100000), big.NewInt(2e9)), res.GasCost)
	assert.Zero(t, res.ApprovalGas.Sign())
	assert.Zero(t, high.approvals.Load(), "native input needs no approval")

	trades, err := store.ListTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, res.TxHash.Hex(), trades[0].TxHash)
	assert.Equal(t, "1000000000000000000", trades[0].AmountIn)
	assert.Equal(t, "2990000000", trades[0].AmountOut)
}

func TestTradeRecordsApprovalGas(t *testing.T) {
	e := newEnv(t)
	e.fake.Handle(router, swapSel, func([]byte) ([]byte, error) { return nil, nil })
	s := &fakeStrategy{
		name:       "a",
		out:        1e18,
		approvalRc: &types.Receipt{GasUsed: 50000, EffectiveGasPrice: big.NewInt(1e9)},
	}
	tr := e.trader([]trader.Strategy{s})

	intent := swaps.Intent{
		Chain:       e.chain.Name,
		InputKind:   swaps.InputToken,
		InputToken:  e.usdc.Address,
		InputAmount: "3000",
		OutputToken: e.dai.Address,
	}
	res, err := tr.Trade(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.approvals.Load())
	assert.Equal(t, big.NewInt(1e18), s.approvedFor)
	assert.Equal(t, big.NewInt(5e13), res.ApprovalGas)
	assert.Zero(t, res.TokensReceived.Raw.Sign(), "no transfer event means nothing received")
}

func TestTradeSimulationRevertSendsNothing(t *testing.T) {
	e := newEnv(t)
	e.fake.Handle(router, swapSel, func([]byte) ([]byte, error) { return nil, evmtest.Revert(nil) })
	tr := e.trader([]trader.Strategy{&fakeStrategy{name: "a", out: 1}})

	_, err := tr.Trade(context.Background(), e.buyUSDC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindSimulation))
	assert.Empty(t, e.fake.Sent())
}

func TestTradeBuildFailureAborts(t *testing.T) {
	e := newEnv(t)
	risky := swaperr.New(swaperr.KindRisk, "build", "price impact too high")
	tr := e.trader([]trader.Strategy{&fakeStrategy{name: "a", out: 1, buildErr: risky}})

	_, err := tr.Trade(context.Background(), e.buyUSDC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindRisk))
	assert.Empty(t, e.fake.Sent())
}

func TestReconcileTokenForNative(t *testing.T) {
	e := newEnv(t)
	tr := e.trader(nil)
	owner := e.sender.From()
	weth := e.chain.WrappedNative()

	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            common.HexToHash("0x01"),
		BlockNumber:       big.NewInt(42),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1e9),
		Logs: []*types.Log{
			transferLog(e.usdc.Address, owner, router, big.NewInt(1500e6)),
			transferLog(e.usdc.Address, router, owner, big.NewInt(1)),
			transferLog(weth, router, weth, big.NewInt(5e17)),
			withdrawalLog(weth, router, big.NewInt(5e17)),
		},
	}
	tx := types.NewTransaction(0, router, big.NewInt(0), 0, big.NewInt(0), nil)

	intent := swaps.Intent{
		InputKind:   swaps.InputToken,
		InputToken:  e.usdc.Address,
		InputAmount: "1500",
		OutputToken: swaps.NativeToken,
	}
	res, err := tr.Reconcile(context.Background(), intent, "uniswap-v3", tx, receipt)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1500e6), res.TokensSpent.Raw)
	assert.Equal(t, "1500.0", res.TokensSpent.Formatted)
	assert.Equal(t, "0.5", res.EthReceived.Formatted)
	assert.Zero(t, res.EthSpent.Raw.Sign())
	assert.Equal(t, uint64(42), res.Block)
	assert.Equal(t, big.NewInt(21000e9), res.GasCost)
}

// blockBalances serves the owner's native balance per block.
type blockBalances struct {
	*evm.Client
	at map[uint64]*big.Int
}

func (b blockBalances) BalanceAt(_ context.Context, _ common.Address, n *big.Int) (*big.Int, error) {
	v, ok := b.at[n.Uint64()]
	if !ok {
		return nil, errors.New("missing trie node")
	}
	return new(big.Int).Set(v), nil
}

func TestReconcileNativeOutputWithoutUnwrap(t *testing.T) {
	e := newEnv(t)
	gas := big.NewInt(21000e9)
	before := big.NewInt(1e18)
	after := new(big.Int).Add(before, big.NewInt(5e17))
	after.Sub(after, gas)
	network := blockBalances{Client: e.rpc, at: map[uint64]*big.Int{41: before, 42: after}}
	tr := trader.New(e.chain, network, e.sender, e.tokens, nil)

	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		BlockNumber:       big.NewInt(42),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1e9),
		Logs:              []*types.Log{transferLog(e.usdc.Address, e.sender.From(), router, big.NewInt(1500e6))},
	}
	tx := types.NewTransaction(0, router, big.NewInt(0), 0, big.NewInt(0), nil)
	intent := swaps.Intent{
		InputKind:   swaps.InputToken,
		InputToken:  e.usdc.Address,
		InputAmount: "1500",
		OutputToken: swaps.NativeToken,
	}

	res, err := tr.Reconcile(context.Background(), intent, "uniswap-v4", tx, receipt)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5e17), res.EthReceived.Raw)
	assert.Equal(t, "0.5", res.EthReceived.Formatted)

	t.Run("history unavailable", func(t *testing.T) {
		pruned := blockBalances{Client: e.rpc, at: map[uint64]*big.Int{42: after}}
		tr := trader.New(e.chain, pruned, e.sender, e.tokens, nil)
		res, err := tr.Reconcile(context.Background(), intent, "uniswap-v4", tx, receipt)
		require.NoError(t, err)
		assert.Zero(t, res.EthReceived.Raw.Sign())
	})
}

// v2Strategy registers a V2 router that prices WETH into USDC only.
func (e *env) v2Strategy(t *testing.T) *strategy.Generic {
	t.Helper()
	v2 := chains.Addr(e.chain.Contracts.V2Router)
	weth := e.chain.WrappedNative()
	e.fake.HandleABI(v2, venues.V2RouterABI, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		in := args[0].(*big.Int)
		path := args[1].([]common.Address)
		if len(path) != 2 || path[0] != weth || path[1] != e.usdc.Address {
			return nil, evmtest.Revert(nil)
		}
		out := new(big.Int).Mul(in, big.NewInt(3000e6))
		return []interface{}{[]*big.Int{in, out.Div(out, big.NewInt(1e18))}}, nil
	})
	venue, err := strategy.NewV2(e.chain, e.rpc, nil)
	require.NoError(t, err)
	return strategy.New(venue, strategy.Deps{
		Chain:  e.chain,
		Tokens: e.tokens,
		Sender: e.sender,
		Cache:  routing.NewCache(time.Minute),
	}, strategy.Options{})
}

func TestTradeSurfacesValidationFromStrategy(t *testing.T) {
	e := newEnv(t)
	tr := e.trader([]trader.Strategy{e.v2Strategy(t)})
	sell := func(amount string) swaps.Intent {
		return swaps.Intent{
			Chain:       e.chain.Name,
			InputKind:   swaps.InputToken,
			InputToken:  e.usdc.Address,
			InputAmount: amount,
			OutputToken: swaps.NativeToken,
		}
	}

	_, err := tr.Trade(context.Background(), sell("1.1234567"))
	require.Error(t, err)
	assert.Equal(t, swaperr.KindValidation, swaperr.KindOf(err))
	assert.Contains(t, err.Error(), "more than 6 decimals")

	_, err = tr.Trade(context.Background(), sell(swaps.FullBalance))
	require.Error(t, err)
	assert.Equal(t, swaperr.KindValidation, swaperr.KindOf(err))
	assert.Contains(t, err.Error(), "no balance to sell")
	assert.Empty(t, e.fake.Sent())
}

// A V2 strategy driven end to end through the trader.
func TestTradeWithV2Strategy(t *testing.T) {
	e := newEnv(t)
	v2 := chains.Addr(e.chain.Contracts.V2Router)
	s := e.v2Strategy(t)
	e.fake.HandleABI(v2, venues.V2RouterABI, "swapExactETHForTokens", func([]interface{}) ([]interface{}, error) {
		return []interface{}{[]*big.Int{big.NewInt(1e18), big.NewInt(3000e6)}}, nil
	})
	e.fake.OnSend = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{transferLog(e.usdc.Address, v2, e.sender.From(), big.NewInt(3000e6))},
		}
	}
	tr := e.trader([]trader.Strategy{s})

	res, err := tr.Trade(context.Background(), e.buyUSDC())
	require.NoError(t, err)
	assert.Equal(t, s.Name(), res.Strategy)
	assert.Equal(t, "3000.0", res.TokensReceived.Formatted)
	require.Len(t, e.fake.Sent(), 1)
	assert.Equal(t, v2, *e.fake.Sent()[0].To())
	assert.Equal(t, big.NewInt(1e18), e.fake.Sent()[0].Value())
}
