// Package strategy implements the venue-independent swap strategy once, over
// a small per-venue adapter that knows the venue's route search, currency
// conventions and calldata.
package strategy

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/pricing"
	"github.com/RaghavSood/dexswap/routing"
	"github.com/RaghavSood/dexswap/swaperr"
	"github.com/RaghavSood/dexswap/swaps"
	"github.com/RaghavSood/dexswap/tokens"
)

// SwapRequest is everything a venue needs to encode one swap. TokenIn and
// TokenOut are already mapped through Venue.Currency.
type SwapRequest struct {
	Shape     swaps.Shape
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	MinOut    *big.Int
	Route     routing.Route
	Recipient common.Address
	Deadline  *big.Int
}

// Venue adapts one exchange to Generic.
type Venue interface {
	Name() string
	// Search is the venue's route search policy.
	Search() routing.Search
	// Currency maps an intent token, possibly the native sentinel, to the
	// currency the venue routes through.
	Currency(token common.Address) common.Address
	// Spender is the contract the input token must be approved to.
	Spender() common.Address
	// Encode builds the swap transaction.
	Encode(ctx context.Context, req SwapRequest) (evm.TxRequest, error)
}

// Defaults for Options.
const (
	DefaultDeadline = 20 * time.Minute
)

var (
	DefaultSlippage  = decimal.RequireFromString("0.005")
	DefaultMaxImpact = decimal.NewFromInt(5)
)

// Options are the risk controls applied at build time.
type Options struct {
	// Slippage is the tolerated shortfall as a fraction in (0, 1).
	Slippage decimal.Decimal
	// MaxImpact is the price impact ceiling in percent.
	MaxImpact decimal.Decimal
	// Deadline is added to the current time for the on-chain deadline.
	Deadline time.Duration
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Slippage.IsZero() {
		o.Slippage = DefaultSlippage
	}
	if o.MaxImpact.IsZero() {
		o.MaxImpact = DefaultMaxImpact
	}
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Deps are the shared clients a strategy reads and sends through.
type Deps struct {
	Chain  chains.Config
	Tokens *tokens.Client
	Sender *evm.Sender
	// Cache holds this venue's routes. nil gets a private cache.
	Cache *routing.Cache
	Log   logrus.FieldLogger
}

// Generic is the single Strategy implementation.
type Generic struct {
	venue  Venue
	opt    *routing.Optimizer
	chain  chains.Config
	tokens *tokens.Client
	sender *evm.Sender
	opts   Options
	log    logrus.FieldLogger
}

// New wires venue into a strategy.
func New(venue Venue, deps Deps, opts Options) *Generic {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("strategy", venue.Name())
	return &Generic{
		venue:  venue,
		opt:    routing.NewOptimizer(venue.Name(), venue.Search(), deps.Cache, log),
		chain:  deps.Chain,
		tokens: deps.Tokens,
		sender: deps.Sender,
		opts:   opts.withDefaults(),
		log:    log,
	}
}

func (g *Generic) Name() string { return g.venue.Name() }

// Spender is the address EnsureApproval must authorise for token input.
func (g *Generic) Spender() common.Address { return g.venue.Spender() }

// Optimizer exposes the venue's route optimizer.
func (g *Generic) Optimizer() *routing.Optimizer { return g.opt }

// SpotPrice is how many units of quote one whole unit of base buys.
func (g *Generic) SpotPrice(ctx context.Context, base, quote common.Address) (decimal.Decimal, error) {
	baseMeta, err := g.tokens.Metadata(ctx, base)
	if err != nil {
		return decimal.Zero, err
	}
	quoteMeta, err := g.tokens.Metadata(ctx, quote)
	if err != nil {
		return decimal.Zero, err
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(baseMeta.Decimals)), nil)
	r, err := g.opt.Best(ctx, g.venue.Currency(base), unit, g.venue.Currency(quote))
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.ToDecimal(r.AmountOut, quoteMeta.Decimals), nil
}

// EnsureApproval approves spender for amount of token unless the allowance
// already covers it. It returns the approval receipt, or nil when nothing was
// sent.
func (g *Generic) EnsureApproval(ctx context.Context, token common.Address, amount *big.Int, spender common.Address) (*types.Receipt, error) {
	if swaps.IsNative(token) {
		return nil, nil
	}
	owner := g.sender.From()
	current, err := g.tokens.Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindApproval, "allowance", err)
	}
	if current.Cmp(amount) >= 0 {
		return nil, nil
	}

	g.log.WithFields(logrus.Fields{
		"token":   token.Hex(),
		"spender": spender.Hex(),
		"amount":  amount.String(),
	}).Info("approving token")

	data, err := tokens.ApproveData(spender, amount)
	if err != nil {
		return nil, err
	}
	receipt, err := g.sender.SendAndWait(ctx, evm.TxRequest{To: token, Data: data})
	if err != nil {
		return receipt, swaperr.Wrap(swaperr.KindApproval, "approve", err)
	}

	after, err := g.tokens.Allowance(ctx, token, owner, spender)
	if err != nil {
		return receipt, swaperr.Wrap(swaperr.KindApproval, "allowance", err)
	}
	if after.Cmp(amount) < 0 {
		return receipt, swaperr.New(swaperr.KindApproval, "approve", "allowance still below amount after approval").
			WithAddress(token).WithValues(amount.String(), after.String())
	}
	return receipt, nil
}

// Quote prices intent on this venue. A venue with no liquid route answers
// with a zero quote rather than an error; any other failure is returned.
func (g *Generic) Quote(ctx context.Context, intent swaps.Intent) (swaps.Quote, error) {
	shape, err := intent.Shape()
	if err != nil {
		return swaps.Quote{}, err
	}
	amountIn, err := g.inputAmount(ctx, intent, shape)
	if err != nil {
		return swaps.Quote{}, err
	}
	outMeta, err := g.tokens.Metadata(ctx, intent.OutputToken)
	if err != nil {
		return swaps.Quote{}, err
	}

	q := swaps.Quote{Strategy: g.Name(), AmountIn: amountIn, OutputAmount: pricing.FormatUnits(nil, outMeta.Decimals)}
	r, err := g.opt.Best(ctx, g.venue.Currency(intent.InputToken), amountIn, g.venue.Currency(intent.OutputToken))
	if errors.Is(err, swaperr.KindQuote) {
		g.log.WithError(err).Debug("no route")
		return q, nil
	}
	if err != nil {
		return swaps.Quote{}, err
	}
	q.Route = r
	q.OutputAmount = pricing.FormatUnits(r.AmountOut, outMeta.Decimals)
	return q, nil
}

// BuildTransaction re-derives the route against current state, checks price
// impact against a small reference trade and encodes the swap with a
// slippage floor.
func (g *Generic) BuildTransaction(ctx context.Context, intent swaps.Intent) (evm.TxRequest, error) {
	shape, err := intent.Shape()
	if err != nil {
		return evm.TxRequest{}, err
	}
	amountIn, err := g.inputAmount(ctx, intent, shape)
	if err != nil {
		return evm.TxRequest{}, err
	}
	inMeta, err := g.tokens.Metadata(ctx, intent.InputToken)
	if err != nil {
		return evm.TxRequest{}, err
	}
	tokenIn := g.venue.Currency(intent.InputToken)
	tokenOut := g.venue.Currency(intent.OutputToken)

	expected, err := g.expectedOutput(ctx, tokenIn, tokenOut, amountIn, inMeta.Decimals)
	if err != nil {
		return evm.TxRequest{}, err
	}

	route, err := g.opt.Fresh(ctx, tokenIn, amountIn, tokenOut)
	if err != nil {
		return evm.TxRequest{}, err
	}
	if route.IsZero() {
		return evm.TxRequest{}, swaperr.New(swaperr.KindQuote, "build", "route has no output")
	}

	impact := pricing.PriceImpact(expected, route.AmountOut)
	if pricing.ExceedsImpact(impact, g.opts.MaxImpact) {
		return evm.TxRequest{}, swaperr.New(swaperr.KindRisk, "build", "price impact %s%% exceeds %s%%", impact.StringFixed(2), g.opts.MaxImpact).
			WithValues(expected.String(), route.AmountOut.String())
	}

	minOut, err := pricing.MinAmountOut(route.AmountOut, g.opts.Slippage)
	if err != nil {
		return evm.TxRequest{}, swaperr.Wrap(swaperr.KindRisk, "build", err)
	}
	deadline := big.NewInt(g.opts.Now().Add(g.opts.Deadline).Unix())

	g.log.WithFields(logrus.Fields{
		"stage":      "build",
		"shape":      shape.String(),
		"amount_in":  amountIn.String(),
		"amount_out": route.AmountOut.String(),
		"min_out":    minOut.String(),
		"impact":     impact.StringFixed(4),
		"hops":       route.NumHops(),
	}).Info("built swap")

	return g.venue.Encode(ctx, SwapRequest{
		Shape:     shape,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		MinOut:    minOut,
		Route:     route,
		Recipient: g.sender.From(),
		Deadline:  deadline,
	})
}

// expectedOutput samples the spot rate with the reference ladder and scales
// it to amountIn.
func (g *Generic) expectedOutput(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, decimals uint8) (*big.Int, error) {
	for _, ref := range pricing.ReferenceAmounts(amountIn, decimals) {
		r, err := g.opt.Fresh(ctx, tokenIn, ref, tokenOut)
		if err != nil && !errors.Is(err, swaperr.KindQuote) {
			return nil, err
		}
		if err != nil || r.IsZero() {
			g.log.WithField("reference", ref.String()).WithError(err).Debug("reference amount has no route")
			continue
		}
		return pricing.ScaleExpected(ref, r.AmountOut, amountIn), nil
	}
	return nil, swaperr.New(swaperr.KindRisk, "build", "no reference amount has liquidity, cannot bound price impact")
}

// inputAmount resolves the raw input: fiat via the spot price, the full
// balance sentinel via balanceOf, otherwise the parsed amount.
func (g *Generic) inputAmount(ctx context.Context, intent swaps.Intent, shape swaps.Shape) (*big.Int, error) {
	if intent.UsesFullBalance() {
		bal, err := g.tokens.BalanceOf(ctx, intent.InputToken, g.sender.From())
		if err != nil {
			return nil, err
		}
		if bal.Sign() <= 0 {
			return nil, swaperr.New(swaperr.KindValidation, "intent", "no balance to sell").WithAddress(intent.InputToken)
		}
		return bal, nil
	}

	amount, err := intent.Amount()
	if err != nil {
		return nil, err
	}
	if intent.IsFiat() {
		spot, err := g.SpotPrice(ctx, swaps.NativeToken, g.chain.Stablecoin())
		if err != nil {
			return nil, err
		}
		return pricing.FiatToNative(amount, spot, tokens.NativeDecimals)
	}

	decimals := uint8(tokens.NativeDecimals)
	if shape != swaps.ShapeNativeForToken {
		meta, err := g.tokens.Metadata(ctx, intent.InputToken)
		if err != nil {
			return nil, err
		}
		decimals = meta.Decimals
	}
	raw, err := pricing.ParseUnits(intent.InputAmount, decimals)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindValidation, "intent", err)
	}
	if raw.Sign() <= 0 {
		return nil, swaperr.New(swaperr.KindValidation, "intent", "input amount must be positive")
	}
	return raw, nil
}
