package routing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/RaghavSood/dexswap/swaperr"
)

// Optimizer serves the best route for one venue, read-through its cache.
type Optimizer struct {
	venue  string
	search Search
	cache  *Cache
	log    logrus.FieldLogger
}

// NewOptimizer wires a venue's search to a cache. A nil cache gets a
// private one with DefaultTTL.
func NewOptimizer(venue string, search Search, cache *Cache, log logrus.FieldLogger) *Optimizer {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	return &Optimizer{
		venue:  venue,
		search: search,
		cache:  cache,
		log:    logger(log).WithField("venue", venue),
	}
}

// Best returns the highest-output route for amountIn of tokenIn into
// tokenOut. A repeated request inside the cache window makes no venue calls.
func (o *Optimizer) Best(ctx context.Context, tokenIn common.Address, amountIn *big.Int, tokenOut common.Address) (Route, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Route{}, swaperr.New(swaperr.KindValidation, "route", "input amount must be positive")
	}
	key := NewKey(tokenIn, amountIn, tokenOut)
	r, err := o.cache.GetOrFetch(ctx, key, func(ctx context.Context) (Route, error) {
		return o.search.Find(ctx, tokenIn, tokenOut, amountIn)
	})
	if err != nil {
		return Route{}, err
	}
	o.log.WithFields(logrus.Fields{
		"token_in":   tokenIn.Hex(),
		"token_out":  tokenOut.Hex(),
		"amount_in":  amountIn.String(),
		"amount_out": r.AmountOut,
		"hops":       r.NumHops(),
	}).Debug("best route")
	return r, nil
}

// Fresh bypasses the cache. Transaction builds use it so the route is
// re-derived against current state.
func (o *Optimizer) Fresh(ctx context.Context, tokenIn common.Address, amountIn *big.Int, tokenOut common.Address) (Route, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Route{}, swaperr.New(swaperr.KindValidation, "route", "input amount must be positive")
	}
	return o.search.Find(ctx, tokenIn, tokenOut, amountIn)
}

// Venue is the venue name the optimizer serves.
func (o *Optimizer) Venue() string { return o.venue }
