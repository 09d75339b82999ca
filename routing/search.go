package routing

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/swaperr"
)

// V2Fee is the constant-product pool fee (0.3%) in hundredths of a bip,
// recorded per hop so V2 routes carry the same Fees shape as the others.
const V2Fee uint32 = 3000

// maxParallelQuotes bounds concurrent quoter calls within one search.
const maxParallelQuotes = 8

// Search finds the best route through one venue.
type Search interface {
	Find(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (Route, error)
}

// PathQuoter prices a token path on a constant-product router.
type PathQuoter interface {
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// TierQuoter prices concentrated-liquidity pools by fee tier.
type TierQuoter interface {
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)
	QuoteExactInput(ctx context.Context, path []byte, amountIn *big.Int) (*big.Int, error)
}

// PoolQuoter prices singleton-pool-manager pools.
type PoolQuoter interface {
	QuoteExactInputSingle(ctx context.Context, key codec.PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error)
	QuoteExactInput(ctx context.Context, currencyIn common.Address, path []codec.PathKey, amountIn *big.Int) (*big.Int, error)
}

// HopQuoter prices a stable/volatile route list.
type HopQuoter interface {
	GetAmountsOut(ctx context.Context, amountIn *big.Int, hops []Hop) ([]*big.Int, error)
}

// errNoRoute is the quote failure for a pair with no liquid candidate.
func errNoRoute(tokenIn, tokenOut common.Address) error {
	return swaperr.New(swaperr.KindQuote, "route", "no liquid route %s -> %s", tokenIn.Hex(), tokenOut.Hex())
}

// bridgesFor filters bridge assets that coincide with either end.
func bridgesFor(bridges []common.Address, tokenIn, tokenOut common.Address) []common.Address {
	var out []common.Address
	for _, b := range bridges {
		if b != tokenIn && b != tokenOut {
			out = append(out, b)
		}
	}
	return out
}

func uniformFees(n int, fee uint32) []uint32 {
	fees := make([]uint32, n)
	for i := range fees {
		fees[i] = fee
	}
	return fees
}

// pick returns the candidate with the strictly largest output; the first
// seen wins ties, so candidates must be ordered fewest hops first.
func pick(candidates []Route) (Route, bool) {
	best := -1
	for i, c := range candidates {
		if c.IsZero() {
			continue
		}
		if best < 0 || c.AmountOut.Cmp(candidates[best].AmountOut) > 0 {
			best = i
		}
	}
	if best < 0 {
		return Route{}, false
	}
	return candidates[best], true
}

// evaluate runs quote for each candidate with bounded parallelism. A failed
// candidate leaves a zero route in its slot. Reverts only mark a candidate
// dry; the first other failure in candidate order is returned, as is a
// cancelled ctx, so callers with no liquid candidate can report the cause.
func evaluate(ctx context.Context, log logrus.FieldLogger, candidates []Route, quote func(ctx context.Context, c *Route) error) error {
	errs := make([]error, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQuotes)
	for i := range candidates {
		c := &candidates[i]
		g.Go(func() error {
			if err := quote(gctx, c); err != nil {
				log.WithFields(logrus.Fields{"path": pathString(c.Path), "fees": c.Fees}).WithError(err).Debug("candidate route failed")
				c.AmountOut = nil
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("route search: %w", err)
	}
	for _, err := range errs {
		if err != nil && !isDry(err) {
			return err
		}
	}
	return nil
}

// isDry reports whether err only means the candidate has no liquidity.
func isDry(err error) bool {
	return errors.Is(err, swaperr.KindQuote)
}

// noRoute is the error for a search with no liquid candidate: the first
// non-revert failure when there was one, otherwise errNoRoute.
func noRoute(failed error, tokenIn, tokenOut common.Address) error {
	if failed != nil {
		return failed
	}
	return errNoRoute(tokenIn, tokenOut)
}

func pathString(path []common.Address) string {
	s := ""
	for i, p := range path {
		if i > 0 {
			s += ">"
		}
		s += p.Hex()[:8]
	}
	return s
}

func last(amounts []*big.Int) *big.Int {
	if len(amounts) == 0 {
		return nil
	}
	return amounts[len(amounts)-1]
}

// ConstantProduct tries the direct pair and each bridge asset.
type ConstantProduct struct {
	Quoter  PathQuoter
	Bridges []common.Address
	Log     logrus.FieldLogger
}

func (s *ConstantProduct) Find(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (Route, error) {
	candidates := []Route{{Path: []common.Address{tokenIn, tokenOut}, Fees: []uint32{V2Fee}}}
	for _, b := range bridgesFor(s.Bridges, tokenIn, tokenOut) {
		candidates = append(candidates, Route{Path: []common.Address{tokenIn, b, tokenOut}, Fees: uniformFees(2, V2Fee)})
	}

	failed := evaluate(ctx, logger(s.Log), candidates, func(ctx context.Context, c *Route) error {
		amounts, err := s.Quoter.GetAmountsOut(ctx, amountIn, c.Path)
		if err != nil {
			return err
		}
		c.AmountOut = last(amounts)
		return nil
	})

	best, ok := pick(candidates)
	if !ok {
		return Route{}, noRoute(failed, tokenIn, tokenOut)
	}
	return best, nil
}

// Concentrated quotes every fee tier directly, and only when none is liquid
// falls back to two-hop routes through each bridge over every tier pair.
type Concentrated struct {
	Quoter  TierQuoter
	Tiers   []uint32
	Bridges []common.Address
	Log     logrus.FieldLogger
}

func (s *Concentrated) tiers() []uint32 {
	if len(s.Tiers) == 0 {
		return codec.FeeTiers
	}
	return s.Tiers
}

func (s *Concentrated) Find(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (Route, error) {
	log := logger(s.Log)

	var single []Route
	for _, fee := range s.tiers() {
		single = append(single, Route{Path: []common.Address{tokenIn, tokenOut}, Fees: []uint32{fee}})
	}
	failed := evaluate(ctx, log, single, func(ctx context.Context, c *Route) error {
		out, err := s.Quoter.QuoteExactInputSingle(ctx, tokenIn, tokenOut, c.Fees[0], amountIn)
		if err != nil {
			return err
		}
		c.AmountOut = out
		return nil
	})
	if best, ok := pick(single); ok {
		return withEncodedPath(best)
	}
	if failed != nil {
		return Route{}, failed
	}

	var multi []Route
	for _, b := range bridgesFor(s.Bridges, tokenIn, tokenOut) {
		for _, f0 := range s.tiers() {
			for _, f1 := range s.tiers() {
				multi = append(multi, Route{Path: []common.Address{tokenIn, b, tokenOut}, Fees: []uint32{f0, f1}})
			}
		}
	}
	failed = evaluate(ctx, log, multi, func(ctx context.Context, c *Route) error {
		path, err := codec.EncodePath(c.Path, c.Fees)
		if err != nil {
			return err
		}
		out, err := s.Quoter.QuoteExactInput(ctx, path, amountIn)
		if err != nil {
			return err
		}
		c.AmountOut = out
		return nil
	})
	best, ok := pick(multi)
	if !ok {
		return Route{}, noRoute(failed, tokenIn, tokenOut)
	}
	return withEncodedPath(best)
}

func withEncodedPath(r Route) (Route, error) {
	path, err := codec.EncodePath(r.Path, r.Fees)
	if err != nil {
		return Route{}, err
	}
	r.EncodedPath = path
	return r, nil
}

// Singleton uses one fixed fee tier and hooks address. It quotes the direct
// pool and, when that has no liquidity, the same tier through each bridge.
type Singleton struct {
	Quoter  PoolQuoter
	Fee     uint32
	Hooks   common.Address
	Bridges []common.Address
	Log     logrus.FieldLogger
}

func (s *Singleton) fee() uint32 {
	if s.Fee == 0 {
		return codec.Fee030
	}
	return s.Fee
}

func (s *Singleton) Find(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (Route, error) {
	log := logger(s.Log)

	key, err := codec.NewPoolKey(tokenIn, tokenOut, s.fee(), s.Hooks)
	if err != nil {
		return Route{}, swaperr.Wrap(swaperr.KindQuote, "route", err)
	}
	out, err := s.Quoter.QuoteExactInputSingle(ctx, key, key.ZeroForOne(tokenIn), amountIn)
	if err == nil && out != nil && out.Sign() > 0 {
		return Route{
			AmountOut: out,
			Path:      []common.Address{tokenIn, tokenOut},
			Fees:      []uint32{key.Fee},
			PoolKey:   &key,
		}, nil
	}
	if err != nil {
		log.WithError(err).Debug("direct singleton pool failed")
		if !isDry(err) {
			return Route{}, err
		}
	}

	var multi []Route
	for _, b := range bridgesFor(s.Bridges, tokenIn, tokenOut) {
		currencies := []common.Address{tokenIn, b, tokenOut}
		segments, err := codec.PathKeys(currencies, s.fee(), s.Hooks)
		if err != nil {
			return Route{}, swaperr.Wrap(swaperr.KindQuote, "route", err)
		}
		multi = append(multi, Route{Path: currencies, Fees: uniformFees(2, s.fee()), PathSegments: segments})
	}
	failed := evaluate(ctx, log, multi, func(ctx context.Context, c *Route) error {
		out, err := s.Quoter.QuoteExactInput(ctx, tokenIn, c.PathSegments, amountIn)
		if err != nil {
			return err
		}
		c.AmountOut = out
		return nil
	})
	best, ok := pick(multi)
	if !ok {
		return Route{}, noRoute(failed, tokenIn, tokenOut)
	}
	return best, nil
}

// StableVolatile mirrors ConstantProduct with a stable/volatile choice per
// hop. Volatile is tried before stable.
type StableVolatile struct {
	Quoter  HopQuoter
	Factory common.Address
	Bridges []common.Address
	Log     logrus.FieldLogger
}

// Fee tiers recorded for stable/volatile hops (0.05% and 0.3%).
const (
	StableFee   uint32 = 500
	VolatileFee uint32 = 3000
)

func hopFee(stable bool) uint32 {
	if stable {
		return StableFee
	}
	return VolatileFee
}

func (s *StableVolatile) Find(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (Route, error) {
	kinds := []bool{false, true}

	var candidates []Route
	for _, st := range kinds {
		candidates = append(candidates, Route{
			Path: []common.Address{tokenIn, tokenOut},
			Fees: []uint32{hopFee(st)},
			Hops: []Hop{{From: tokenIn, To: tokenOut, Stable: st, Factory: s.Factory}},
		})
	}
	for _, b := range bridgesFor(s.Bridges, tokenIn, tokenOut) {
		for _, st0 := range kinds {
			for _, st1 := range kinds {
				candidates = append(candidates, Route{
					Path: []common.Address{tokenIn, b, tokenOut},
					Fees: []uint32{hopFee(st0), hopFee(st1)},
					Hops: []Hop{
						{From: tokenIn, To: b, Stable: st0, Factory: s.Factory},
						{From: b, To: tokenOut, Stable: st1, Factory: s.Factory},
					},
				})
			}
		}
	}

	failed := evaluate(ctx, logger(s.Log), candidates, func(ctx context.Context, c *Route) error {
		amounts, err := s.Quoter.GetAmountsOut(ctx, amountIn, c.Hops)
		if err != nil {
			return err
		}
		c.AmountOut = last(amounts)
		return nil
	})

	best, ok := pick(candidates)
	if !ok {
		return Route{}, noRoute(failed, tokenIn, tokenOut)
	}
	return best, nil
}

func logger(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
