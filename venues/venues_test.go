package venues_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/evm/evmtest"
	"github.com/RaghavSood/dexswap/routing"
	"github.com/RaghavSood/dexswap/swaperr"
	"github.com/RaghavSood/dexswap/venues"
)

var (
	weth    = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc    = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	wallet  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	router  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	quoter  = common.HexToAddress("0x0000000000000000000000000000000000000091")
	factory = common.HexToAddress("0x420DD381b31aEf6683db6B902084cB0FFECe40Da")
)

func unpack(t *testing.T, a abi.ABI, data []byte) (string, []interface{}) {
	t.Helper()
	m, err := a.MethodById(data[:4])
	require.NoError(t, err)
	vals, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return m.Name, vals
}

func TestV2GetAmountsOut(t *testing.T) {
	fake := evmtest.New(8453)
	fake.HandleABI(router, venues.V2RouterABI, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		path := args[1].([]common.Address)
		require.Equal(t, []common.Address{weth, usdc}, path)
		return []interface{}{[]*big.Int{args[0].(*big.Int), big.NewInt(3000e6)}}, nil
	})
	r := venues.NewV2Router(evm.NewClient(fake), router)

	amounts, err := r.GetAmountsOut(context.Background(), big.NewInt(1e18), []common.Address{weth, usdc})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, int64(3000e6), amounts[1].Int64())
}

func TestV2RevertIsQuoteFailure(t *testing.T) {
	fake := evmtest.New(8453)
	fake.Handle(router, venues.V2RouterABI.Methods["getAmountsOut"].ID, func([]byte) ([]byte, error) {
		return nil, evmtest.Revert(nil)
	})
	r := venues.NewV2Router(evm.NewClient(fake), router)

	_, err := r.GetAmountsOut(context.Background(), big.NewInt(1), []common.Address{weth, usdc})
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindQuote))
}

func TestV2SwapCalldata(t *testing.T) {
	r := venues.NewV2Router(nil, router)
	deadline := big.NewInt(1700000000)

	data, err := r.SwapExactETHForTokens(big.NewInt(2985e6), []common.Address{weth, usdc}, wallet, deadline)
	require.NoError(t, err)
	name, vals := unpack(t, venues.V2RouterABI, data)
	assert.Equal(t, "swapExactETHForTokens", name)
	assert.Equal(t, int64(2985e6), vals[0].(*big.Int).Int64())
	assert.Equal(t, wallet, vals[2].(common.Address))
	assert.Equal(t, deadline, vals[3].(*big.Int))

	data, err = r.SwapExactTokensForETH(big.NewInt(3000e6), big.NewInt(1), []common.Address{usdc, weth}, wallet, deadline)
	require.NoError(t, err)
	name, _ = unpack(t, venues.V2RouterABI, data)
	assert.Equal(t, "swapExactTokensForETH", name)

	data, err = r.SwapExactTokensForTokens(big.NewInt(1), big.NewInt(1), []common.Address{usdc, weth}, wallet, deadline)
	require.NoError(t, err)
	name, _ = unpack(t, venues.V2RouterABI, data)
	assert.Equal(t, "swapExactTokensForTokens", name)
}

func TestQuoterV2(t *testing.T) {
	fake := evmtest.New(8453)
	fake.HandleABI(quoter, venues.QuoterV2ABI, "quoteExactInputSingle", func(args []interface{}) ([]interface{}, error) {
		p := *abi.ConvertType(args[0], new(venues.QuoteSingleParams)).(*venues.QuoteSingleParams)
		if p.Fee.Uint64() != 500 {
			return nil, evmtest.Revert(nil)
		}
		assert.Equal(t, weth, p.TokenIn)
		assert.Equal(t, usdc, p.TokenOut)
		return []interface{}{big.NewInt(3001e6), big.NewInt(0), uint32(1), big.NewInt(90000)}, nil
	})
	fake.HandleABI(quoter, venues.QuoterV2ABI, "quoteExactInput", func(args []interface{}) ([]interface{}, error) {
		tokens, fees, err := codec.DecodePath(args[0].([]byte))
		require.NoError(t, err)
		assert.Len(t, tokens, 3)
		assert.Equal(t, []uint32{500, 100}, fees)
		return []interface{}{big.NewInt(2999e6), []*big.Int{}, []uint32{}, big.NewInt(0)}, nil
	})
	q := venues.NewQuoterV2(evm.NewClient(fake), quoter)

	out, err := q.QuoteExactInputSingle(context.Background(), weth, usdc, 500, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, int64(3001e6), out.Int64())

	_, err = q.QuoteExactInputSingle(context.Background(), weth, usdc, 3000, big.NewInt(1e18))
	assert.True(t, errors.Is(err, swaperr.KindQuote))

	path, err := codec.EncodePath([]common.Address{weth, factory, usdc}, []uint32{500, 100})
	require.NoError(t, err)
	out, err = q.QuoteExactInput(context.Background(), path, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, int64(2999e6), out.Int64())
}

func TestSwapRouter02Calldata(t *testing.T) {
	r := venues.NewSwapRouter02(router)

	swap, err := r.ExactInputSingle(usdc, weth, 500, venues.RouterSelf, big.NewInt(3000e6), big.NewInt(99e16))
	require.NoError(t, err)
	unwrap, err := r.UnwrapWETH9(big.NewInt(99e16), wallet)
	require.NoError(t, err)
	data, err := r.Multicall(big.NewInt(1700000000), swap, unwrap)
	require.NoError(t, err)

	name, vals := unpack(t, venues.SwapRouter02ABI, data)
	assert.Equal(t, "multicall", name)
	assert.Equal(t, int64(1700000000), vals[0].(*big.Int).Int64())
	inner := vals[1].([][]byte)
	require.Len(t, inner, 2)

	name, vals = unpack(t, venues.SwapRouter02ABI, inner[0])
	assert.Equal(t, "exactInputSingle", name)
	p := *abi.ConvertType(vals[0], new(venues.ExactInputSingleParams)).(*venues.ExactInputSingleParams)
	assert.Equal(t, venues.RouterSelf, p.Recipient)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000002"), p.Recipient)
	assert.Equal(t, int64(500), p.Fee.Int64())

	name, vals = unpack(t, venues.SwapRouter02ABI, inner[1])
	assert.Equal(t, "unwrapWETH9", name)
	assert.Equal(t, wallet, vals[1].(common.Address))

	path, err := codec.EncodePath([]common.Address{weth, usdc}, []uint32{3000})
	require.NoError(t, err)
	data, err = r.ExactInput(path, wallet, big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)
	name, vals = unpack(t, venues.SwapRouter02ABI, data)
	assert.Equal(t, "exactInput", name)
	ep := *abi.ConvertType(vals[0], new(venues.ExactInputParams)).(*venues.ExactInputParams)
	assert.Equal(t, path, ep.Path)
}

func TestV4Quoter(t *testing.T) {
	fake := evmtest.New(8453)
	native := common.Address{}
	fake.HandleABI(quoter, venues.V4QuoterABI, "quoteExactInputSingle", func(args []interface{}) ([]interface{}, error) {
		p := *abi.ConvertType(args[0], new(venues.V4QuoteSingleParams)).(*venues.V4QuoteSingleParams)
		assert.Equal(t, native, p.PoolKey.Currency0)
		assert.Equal(t, usdc, p.PoolKey.Currency1)
		assert.Equal(t, int64(60), p.PoolKey.TickSpacing.Int64())
		assert.True(t, p.ZeroForOne)
		return []interface{}{big.NewInt(3002e6), big.NewInt(0)}, nil
	})
	fake.HandleABI(quoter, venues.V4QuoterABI, "quoteExactInput", func(args []interface{}) ([]interface{}, error) {
		p := *abi.ConvertType(args[0], new(venues.V4QuoteParams)).(*venues.V4QuoteParams)
		assert.Equal(t, native, p.ExactCurrency)
		require.Len(t, p.Path, 2)
		assert.Equal(t, usdc, p.Path[1].IntermediateCurrency)
		return []interface{}{big.NewInt(2990e6), big.NewInt(0)}, nil
	})
	q := venues.NewV4Quoter(evm.NewClient(fake), quoter)

	key, err := codec.NewPoolKey(usdc, native, codec.Fee030, common.Address{})
	require.NoError(t, err)
	out, err := q.QuoteExactInputSingle(context.Background(), key, key.ZeroForOne(native), big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, int64(3002e6), out.Int64())

	segments, err := codec.PathKeys([]common.Address{native, weth, usdc}, codec.Fee030, common.Address{})
	require.NoError(t, err)
	out, err = q.QuoteExactInput(context.Background(), native, segments, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, int64(2990e6), out.Int64())
}

func TestUniversalRouterExecute(t *testing.T) {
	ur := venues.NewUniversalRouter(router, codec.RouterV2)
	key, err := codec.NewPoolKey(common.Address{}, usdc, codec.Fee030, common.Address{})
	require.NoError(t, err)
	swap, err := codec.EncodeV4Swap(key, common.Address{}, big.NewInt(1e18), big.NewInt(2985e6))
	require.NoError(t, err)

	batch := ur.NewBatch()
	require.NoError(t, batch.Add(codec.CmdV4Swap, swap))
	data, err := ur.Execute(batch, big.NewInt(1700000000))
	require.NoError(t, err)

	commands, inputs, deadline, err := codec.DecodeExecute(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10}, commands)
	assert.Equal(t, swap, inputs[0])
	assert.Equal(t, int64(1700000000), deadline.Int64())
}

func TestAerodromeRouter(t *testing.T) {
	fake := evmtest.New(8453)
	fake.HandleABI(router, venues.AerodromeRouterABI, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		routes := *abi.ConvertType(args[1], new([]venues.AeroRoute)).(*[]venues.AeroRoute)
		require.Len(t, routes, 1)
		assert.True(t, routes[0].Stable)
		assert.Equal(t, factory, routes[0].Factory)
		return []interface{}{[]*big.Int{args[0].(*big.Int), big.NewInt(998e15)}}, nil
	})
	r := venues.NewAerodromeRouter(evm.NewClient(fake), router)
	hops := []routing.Hop{{From: usdc, To: weth, Stable: true, Factory: factory}}

	amounts, err := r.GetAmountsOut(context.Background(), big.NewInt(1e9), hops)
	require.NoError(t, err)
	assert.Equal(t, int64(998e15), amounts[1].Int64())

	data, err := r.SwapExactTokensForETH(big.NewInt(1e9), big.NewInt(1), hops, wallet, big.NewInt(1))
	require.NoError(t, err)
	name, vals := unpack(t, venues.AerodromeRouterABI, data)
	assert.Equal(t, "swapExactTokensForETH", name)
	assert.Equal(t, wallet, vals[3].(common.Address))

	for _, build := range []func() ([]byte, error){
		func() ([]byte, error) { return r.SwapExactETHForTokens(big.NewInt(1), hops, wallet, big.NewInt(1)) },
		func() ([]byte, error) {
			return r.SwapExactTokensForTokens(big.NewInt(1), big.NewInt(1), hops, wallet, big.NewInt(1))
		},
	} {
		data, err := build()
		require.NoError(t, err)
		_, _ = unpack(t, venues.AerodromeRouterABI, data)
	}
}
