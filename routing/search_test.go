package routing

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/swaperr"
)

// errDry is how a quoter call against an empty pool surfaces.
var errDry = swaperr.New(swaperr.KindQuote, "quote", "execution reverted")

// pathQuotes answers GetAmountsOut from a table keyed by the joined path.
type pathQuotes struct {
	mu    sync.Mutex
	out   map[string]int64
	calls int
}

func joinPath(path []common.Address) string {
	s := ""
	for _, p := range path {
		s += p.Hex()
	}
	return s
}

func (q *pathQuotes) GetAmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	v, ok := q.out[joinPath(path)]
	if !ok {
		return nil, errDry
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = amountIn
	for i := 1; i < len(path); i++ {
		amounts[i] = big.NewInt(v)
	}
	return amounts, nil
}

func TestConstantProductPicksBest(t *testing.T) {
	q := &pathQuotes{out: map[string]int64{
		joinPath([]common.Address{weth, usdc}):      3000e6,
		joinPath([]common.Address{weth, dai, usdc}): 3001e6,
	}}
	s := &ConstantProduct{Quoter: q, Bridges: []common.Address{dai, weth}}

	r, err := s.Find(context.Background(), weth, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{weth, dai, usdc}, r.Path)
	assert.Equal(t, []uint32{V2Fee, V2Fee}, r.Fees)
	assert.Equal(t, int64(3001e6), r.AmountOut.Int64())
	assert.NoError(t, r.Validate())
	assert.Equal(t, 2, q.calls, "bridge equal to an endpoint is skipped")
}

func TestConstantProductTiePrefersDirect(t *testing.T) {
	q := &pathQuotes{out: map[string]int64{
		joinPath([]common.Address{weth, usdc}):      3000e6,
		joinPath([]common.Address{weth, dai, usdc}): 3000e6,
	}}
	s := &ConstantProduct{Quoter: q, Bridges: []common.Address{dai}}

	r, err := s.Find(context.Background(), weth, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, 1, r.NumHops())
}

func TestConstantProductNoLiquidity(t *testing.T) {
	s := &ConstantProduct{Quoter: &pathQuotes{out: map[string]int64{}}, Bridges: []common.Address{dai}}
	_, err := s.Find(context.Background(), weth, usdc, big.NewInt(1e18))
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindQuote))
}

type tierQuotes struct {
	mu     sync.Mutex
	single map[uint32]int64
	multi  map[string]int64
	paths  int
}

func (q *tierQuotes) QuoteExactInputSingle(_ context.Context, _, _ common.Address, fee uint32, _ *big.Int) (*big.Int, error) {
	v, ok := q.single[fee]
	if !ok {
		return nil, errDry
	}
	return big.NewInt(v), nil
}

func (q *tierQuotes) QuoteExactInput(_ context.Context, path []byte, _ *big.Int) (*big.Int, error) {
	q.mu.Lock()
	q.paths++
	q.mu.Unlock()
	v, ok := q.multi[string(path)]
	if !ok {
		return nil, errDry
	}
	return big.NewInt(v), nil
}

func TestConcentratedSingleHopTiers(t *testing.T) {
	q := &tierQuotes{single: map[uint32]int64{codec.Fee005: 2990e6, codec.Fee030: 3000e6, codec.Fee100: 2000e6}}
	s := &Concentrated{Quoter: q, Bridges: []common.Address{dai}}

	r, err := s.Find(context.Background(), weth, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, []uint32{codec.Fee030}, r.Fees)
	assert.Equal(t, 0, q.paths, "bridged routes are skipped when a single hop is liquid")

	want, err := codec.EncodePath([]common.Address{weth, usdc}, []uint32{codec.Fee030})
	require.NoError(t, err)
	assert.Equal(t, want, []byte(r.EncodedPath))
	assert.NoError(t, r.Validate())
}

func TestConcentratedBridgedFallback(t *testing.T) {
	best, err := codec.EncodePath([]common.Address{weth, dai, usdc}, []uint32{codec.Fee005, codec.Fee001})
	require.NoError(t, err)
	other, err := codec.EncodePath([]common.Address{weth, dai, usdc}, []uint32{codec.Fee030, codec.Fee030})
	require.NoError(t, err)

	q := &tierQuotes{single: map[uint32]int64{}, multi: map[string]int64{string(best): 2999e6, string(other): 2900e6}}
	s := &Concentrated{Quoter: q, Bridges: []common.Address{dai}}

	r, err := s.Find(context.Background(), weth, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, []uint32{codec.Fee005, codec.Fee001}, r.Fees)
	assert.Equal(t, best, []byte(r.EncodedPath))
	assert.Equal(t, len(codec.FeeTiers)*len(codec.FeeTiers), q.paths)
}

type poolQuotes struct {
	direct    *big.Int
	directErr error
	multi     int64
	gotKey    codec.PoolKey
	gotZFO    bool
	segments  []codec.PathKey
}

func (q *poolQuotes) QuoteExactInputSingle(_ context.Context, key codec.PoolKey, zeroForOne bool, _ *big.Int) (*big.Int, error) {
	q.gotKey, q.gotZFO = key, zeroForOne
	return q.direct, q.directErr
}

func (q *poolQuotes) QuoteExactInput(_ context.Context, _ common.Address, path []codec.PathKey, _ *big.Int) (*big.Int, error) {
	q.segments = path
	return big.NewInt(q.multi), nil
}

func TestSingletonDirectPool(t *testing.T) {
	native := common.Address{}
	q := &poolQuotes{direct: big.NewInt(3000e6)}
	s := &Singleton{Quoter: q}

	r, err := s.Find(context.Background(), native, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	require.NotNil(t, r.PoolKey)
	assert.Equal(t, native, r.PoolKey.Currency0)
	assert.Equal(t, codec.Fee030, r.PoolKey.Fee)
	assert.True(t, q.gotZFO)
	assert.Nil(t, r.PathSegments)
	assert.NoError(t, r.Validate())
}

func TestSingletonFallsBackToBridge(t *testing.T) {
	q := &poolQuotes{directErr: errDry, multi: 2500e6}
	s := &Singleton{Quoter: q, Fee: codec.Fee005, Bridges: []common.Address{weth}}

	r, err := s.Find(context.Background(), dai, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Nil(t, r.PoolKey)
	require.Len(t, r.PathSegments, 2)
	assert.Equal(t, weth, r.PathSegments[0].IntermediateCurrency)
	assert.Equal(t, usdc, r.PathSegments[1].IntermediateCurrency)
	assert.Equal(t, []uint32{codec.Fee005, codec.Fee005}, r.Fees)
}

type hopQuotes struct {
	out map[string]int64
}

func hopKey(hops []Hop) string {
	s := ""
	for _, h := range hops {
		s += h.From.Hex() + h.To.Hex()
		if h.Stable {
			s += "s"
		} else {
			s += "v"
		}
	}
	return s
}

func (q *hopQuotes) GetAmountsOut(_ context.Context, amountIn *big.Int, hops []Hop) ([]*big.Int, error) {
	v, ok := q.out[hopKey(hops)]
	if !ok {
		return nil, errDry
	}
	return []*big.Int{amountIn, big.NewInt(v)}, nil
}

func TestStableVolatilePrefersVolatileOnTie(t *testing.T) {
	factory := common.HexToAddress("0x420DD381b31aEf6683db6B902084cB0FFECe40Da")
	q := &hopQuotes{out: map[string]int64{
		hopKey([]Hop{{From: usdc, To: dai, Stable: false}}): 999e15,
		hopKey([]Hop{{From: usdc, To: dai, Stable: true}}):  999e15,
	}}
	s := &StableVolatile{Quoter: q, Factory: factory, Bridges: []common.Address{weth}}

	r, err := s.Find(context.Background(), usdc, dai, big.NewInt(1e9))
	require.NoError(t, err)
	require.Len(t, r.Hops, 1)
	assert.False(t, r.Hops[0].Stable)
	assert.Equal(t, factory, r.Hops[0].Factory)
	assert.Equal(t, []uint32{VolatileFee}, r.Fees)
}

func TestStableVolatileBridged(t *testing.T) {
	direct := hopKey([]Hop{{From: usdc, To: dai, Stable: true}})
	bridged := hopKey([]Hop{{From: usdc, To: weth, Stable: false}, {From: weth, To: dai, Stable: true}})
	q := &hopQuotes{out: map[string]int64{direct: 990e15, bridged: 995e15}}
	s := &StableVolatile{Quoter: q, Bridges: []common.Address{weth}}

	r, err := s.Find(context.Background(), usdc, dai, big.NewInt(1e9))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{usdc, weth, dai}, r.Path)
	assert.Equal(t, []uint32{VolatileFee, StableFee}, r.Fees)
	assert.NoError(t, r.Validate())
}

func TestRouteValidate(t *testing.T) {
	assert.Error(t, Route{Path: []common.Address{weth}}.Validate())
	assert.Error(t, Route{Path: []common.Address{weth, usdc}, Fees: []uint32{1, 2}}.Validate())

	key, err := codec.NewPoolKey(weth, usdc, codec.Fee030, common.Address{})
	require.NoError(t, err)
	both := Route{Path: []common.Address{weth, usdc}, Fees: []uint32{3000}, EncodedPath: []byte{1}, PoolKey: &key}
	assert.Error(t, both.Validate())

	pathOnly := Route{Path: []common.Address{weth, dai, usdc}, Fees: []uint32{V2Fee, V2Fee}}
	assert.NoError(t, pathOnly.Validate(), "a constant-product route is native through Path")
	assert.NoError(t, Route{Path: []common.Address{weth, usdc}, Fees: []uint32{3000}, PoolKey: &key}.Validate())
}

func TestRouteCloneIsDeep(t *testing.T) {
	key, err := codec.NewPoolKey(weth, usdc, codec.Fee030, common.Address{})
	require.NoError(t, err)
	r := Route{AmountOut: big.NewInt(5), Path: []common.Address{weth, usdc}, Fees: []uint32{3000}, PoolKey: &key}
	c := r.Clone()
	c.AmountOut.SetInt64(6)
	c.PoolKey.Fee = 500
	c.Path[0] = dai
	assert.Equal(t, int64(5), r.AmountOut.Int64())
	assert.Equal(t, codec.Fee030, r.PoolKey.Fee)
	assert.Equal(t, weth, r.Path[0])
}

func TestOptimizerRejectsNonPositive(t *testing.T) {
	opt := NewOptimizer("v2", &countingSearch{out: 1}, nil, nil)
	_, err := opt.Best(context.Background(), weth, big.NewInt(0), usdc)
	assert.True(t, errors.Is(err, swaperr.KindValidation))
	_, err = opt.Fresh(context.Background(), weth, nil, usdc)
	assert.True(t, errors.Is(err, swaperr.KindValidation))
}

// offlinePaths fails every call the way an unreachable node does.
type offlinePaths struct{}

func (offlinePaths) GetAmountsOut(context.Context, *big.Int, []common.Address) ([]*big.Int, error) {
	return nil, swaperr.Wrap(swaperr.KindTransport, "getAmountsOut", errors.New("dial tcp: connection refused"))
}

func TestSearchReportsTransportFailure(t *testing.T) {
	s := &ConstantProduct{Quoter: offlinePaths{}, Bridges: []common.Address{dai}}
	_, err := s.Find(context.Background(), weth, usdc, big.NewInt(1e18))
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindTransport))
	assert.False(t, errors.Is(err, swaperr.KindQuote))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSearchPrefersLiquidCandidateOverTransportFailure(t *testing.T) {
	q := &mixedPaths{liquid: joinPath([]common.Address{weth, dai, usdc})}
	s := &ConstantProduct{Quoter: q, Bridges: []common.Address{dai}}
	r, err := s.Find(context.Background(), weth, usdc, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{weth, dai, usdc}, r.Path)
}

// mixedPaths answers one path and fails the rest with a transport error.
type mixedPaths struct {
	liquid string
}

func (q *mixedPaths) GetAmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if joinPath(path) != q.liquid {
		return nil, swaperr.Wrap(swaperr.KindTransport, "getAmountsOut", errors.New("i/o timeout"))
	}
	return []*big.Int{amountIn, big.NewInt(1), big.NewInt(2990e6)}, nil
}

func TestSearchReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&StableVolatile{Quoter: &hopQuotes{}, Bridges: []common.Address{dai}}).Find(ctx, usdc, weth, big.NewInt(1e9))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = (&ConstantProduct{Quoter: &pathQuotes{}}).Find(ctx, weth, usdc, big.NewInt(1e18))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSingletonDirectTransportFailure(t *testing.T) {
	q := &poolQuotes{directErr: swaperr.Wrap(swaperr.KindTransport, "quote", errors.New("i/o timeout")), multi: 2500e6}
	s := &Singleton{Quoter: q, Bridges: []common.Address{weth}}
	_, err := s.Find(context.Background(), dai, usdc, big.NewInt(1e18))
	require.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.KindTransport))
	assert.Nil(t, q.segments, "no bridged quotes after a transport failure")
}
