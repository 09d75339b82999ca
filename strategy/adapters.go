package strategy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/permit2"
	"github.com/RaghavSood/dexswap/routing"
	"github.com/RaghavSood/dexswap/swaperr"
	"github.com/RaghavSood/dexswap/swaps"
	"github.com/RaghavSood/dexswap/venues"
)

// wrapped maps the native sentinel to the chain's wrapped native token, the
// convention of every venue except the singleton pool manager.
func wrapped(chain chains.Config, token common.Address) common.Address {
	if swaps.IsNative(token) {
		return chain.WrappedNative()
	}
	return token
}

func unsupported(venue string, shape swaps.Shape) error {
	return swaperr.New(swaperr.KindValidation, venue, "unsupported trade shape %s", shape)
}

// V2 is the constant-product router adapter.
type V2 struct {
	chain  chains.Config
	router *venues.V2Router
	search *routing.ConstantProduct
}

// NewV2 builds the adapter from the chain's V2 router.
func NewV2(chain chains.Config, rpc *evm.Client, log logrus.FieldLogger) (*V2, error) {
	if err := chain.Require(chains.VenueUniswapV2); err != nil {
		return nil, err
	}
	router := venues.NewV2Router(rpc, chains.Addr(chain.Contracts.V2Router))
	return &V2{
		chain:  chain,
		router: router,
		search: &routing.ConstantProduct{Quoter: router, Bridges: chain.BridgeTokens(), Log: log},
	}, nil
}

func (v *V2) Name() string                                 { return chains.VenueUniswapV2 }
func (v *V2) Search() routing.Search                       { return v.search }
func (v *V2) Currency(token common.Address) common.Address { return wrapped(v.chain, token) }
func (v *V2) Spender() common.Address                      { return v.router.Address() }

func (v *V2) Encode(ctx context.Context, req SwapRequest) (evm.TxRequest, error) {
	path := req.Route.Path
	var (
		data []byte
		err  error
	)
	switch req.Shape {
	case swaps.ShapeNativeForToken:
		data, err = v.router.SwapExactETHForTokens(req.MinOut, path, req.Recipient, req.Deadline)
		if err != nil {
			return evm.TxRequest{}, err
		}
		return evm.TxRequest{To: v.router.Address(), Data: data, Value: req.AmountIn}, nil
	case swaps.ShapeTokenForNative:
		data, err = v.router.SwapExactTokensForETH(req.AmountIn, req.MinOut, path, req.Recipient, req.Deadline)
	case swaps.ShapeTokenForToken:
		data, err = v.router.SwapExactTokensForTokens(req.AmountIn, req.MinOut, path, req.Recipient, req.Deadline)
	default:
		return evm.TxRequest{}, unsupported(v.Name(), req.Shape)
	}
	if err != nil {
		return evm.TxRequest{}, err
	}
	return evm.TxRequest{To: v.router.Address(), Data: data}, nil
}

// V3 is the concentrated-liquidity adapter: QuoterV2 for prices and
// SwapRouter02 multicall for execution.
type V3 struct {
	chain  chains.Config
	router *venues.SwapRouter02
	search *routing.Concentrated
}

// NewV3 builds the adapter. Every fee tier in codec.FeeTiers is searched.
func NewV3(chain chains.Config, rpc *evm.Client, log logrus.FieldLogger) (*V3, error) {
	if err := chain.Require(chains.VenueUniswapV3); err != nil {
		return nil, err
	}
	quoter := venues.NewQuoterV2(rpc, chains.Addr(chain.Contracts.V3QuoterV2))
	return &V3{
		chain:  chain,
		router: venues.NewSwapRouter02(chains.Addr(chain.Contracts.V3SwapRouter)),
		search: &routing.Concentrated{Quoter: quoter, Bridges: chain.BridgeTokens(), Log: log},
	}, nil
}

func (v *V3) Name() string                                 { return chains.VenueUniswapV3 }
func (v *V3) Search() routing.Search                       { return v.search }
func (v *V3) Currency(token common.Address) common.Address { return wrapped(v.chain, token) }
func (v *V3) Spender() common.Address                      { return v.router.Address() }

func (v *V3) swap(r routing.Route, recipient common.Address, amountIn, minOut *big.Int) ([]byte, error) {
	if r.NumHops() == 1 {
		return v.router.ExactInputSingle(r.Path[0], r.Path[1], r.Fees[0], recipient, amountIn, minOut)
	}
	path := []byte(r.EncodedPath)
	if len(path) == 0 {
		var err error
		if path, err = codec.EncodePath(r.Path, r.Fees); err != nil {
			return nil, err
		}
	}
	return v.router.ExactInput(path, recipient, amountIn, minOut)
}

func (v *V3) Encode(ctx context.Context, req SwapRequest) (evm.TxRequest, error) {
	var calls [][]byte
	var value *big.Int
	switch req.Shape {
	case swaps.ShapeNativeForToken, swaps.ShapeTokenForToken:
		swap, err := v.swap(req.Route, req.Recipient, req.AmountIn, req.MinOut)
		if err != nil {
			return evm.TxRequest{}, err
		}
		calls = append(calls, swap)
		if req.Shape == swaps.ShapeNativeForToken {
			value = req.AmountIn
		}
	case swaps.ShapeTokenForNative:
		swap, err := v.swap(req.Route, venues.RouterSelf, req.AmountIn, req.MinOut)
		if err != nil {
			return evm.TxRequest{}, err
		}
		unwrap, err := v.router.UnwrapWETH9(req.MinOut, req.Recipient)
		if err != nil {
			return evm.TxRequest{}, err
		}
		calls = append(calls, swap, unwrap)
	default:
		return evm.TxRequest{}, unsupported(v.Name(), req.Shape)
	}
	data, err := v.router.Multicall(req.Deadline, calls...)
	if err != nil {
		return evm.TxRequest{}, err
	}
	return evm.TxRequest{To: v.router.Address(), Data: data, Value: value}, nil
}

// V4 is the singleton pool manager adapter. Native currency is address(0),
// execution goes through the Universal Router and token input is pulled via
// Permit2.
type V4 struct {
	router   *venues.UniversalRouter
	registry *permit2.Registry
	signer   *evm.Sender
	search   *routing.Singleton
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewV4 builds the adapter for one command-table version and pool fee tier.
// signer both signs Permit2 permits and owns the allowance being read.
func NewV4(chain chains.Config, signer *evm.Sender, version codec.RouterVersion, fee uint32, log logrus.FieldLogger) (*V4, error) {
	if err := chain.Require(chains.VenueUniswapV4); err != nil {
		return nil, err
	}
	if _, err := codec.TickSpacingForFee(fee); err != nil {
		return nil, swaperr.Wrap(swaperr.KindConfig, "v4", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	rpc := signer.Client()
	quoter := venues.NewV4Quoter(rpc, chains.Addr(chain.Contracts.V4Quoter))
	// Native currency is tried first; V4 pools hold it unwrapped.
	bridges := append([]common.Address{{}}, chain.BridgeTokens()...)
	return &V4{
		router:   venues.NewUniversalRouter(chains.Addr(chain.Contracts.UniversalRouter), version),
		registry: permit2.NewRegistry(rpc, chains.Addr(chain.Contracts.Permit2)),
		signer:   signer,
		search:   &routing.Singleton{Quoter: quoter, Fee: fee, Bridges: bridges, Log: log},
		now:      time.Now,
		log:      log,
	}, nil
}

func (v *V4) Name() string           { return chains.VenueUniswapV4 }
func (v *V4) Search() routing.Search { return v.search }

func (v *V4) Currency(token common.Address) common.Address {
	if swaps.IsNative(token) {
		return common.Address{}
	}
	return token
}

// Spender is Permit2: the ERC-20 approval goes to the registry, which the
// router then draws on with a signed permit.
func (v *V4) Spender() common.Address { return v.registry.Address() }

// permit returns the PERMIT2_PERMIT input for token, or nil when the
// registry allowance for the router already covers amount.
func (v *V4) permit(ctx context.Context, token common.Address, amount *big.Int) ([]byte, error) {
	owner := v.signer.From()
	now := v.now()
	allowance, err := v.registry.Allowance(ctx, owner, token, v.router.Address())
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindApproval, "permit2", err)
	}
	if allowance.Covers(amount, now) {
		return nil, nil
	}
	p := permit2.NewPermit(token, v.router.Address(), amount, allowance.Nonce, now)
	sig, err := permit2.Sign(p, v.signer.ChainID(), v.registry.Address(), v.signer.Key())
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindApproval, "permit2", err)
	}
	v.log.WithFields(logrus.Fields{
		"token": token.Hex(),
		"nonce": allowance.Nonce,
	}).Debug("signed permit2 permit")
	return permit2.EncodePermitInput(p, sig)
}

func (v *V4) Encode(ctx context.Context, req SwapRequest) (evm.TxRequest, error) {
	if req.Shape == swaps.ShapeUnknown {
		return evm.TxRequest{}, unsupported(v.Name(), req.Shape)
	}
	batch := v.router.NewBatch()

	var value *big.Int
	if req.Shape == swaps.ShapeNativeForToken {
		value = req.AmountIn
	} else {
		input, err := v.permit(ctx, req.TokenIn, req.AmountIn)
		if err != nil {
			return evm.TxRequest{}, err
		}
		if input != nil {
			if err := batch.Add(codec.CmdPermit2Permit, input); err != nil {
				return evm.TxRequest{}, err
			}
		}
	}

	var (
		swap []byte
		err  error
	)
	switch {
	case req.Route.PoolKey != nil:
		swap, err = codec.EncodeV4Swap(*req.Route.PoolKey, req.TokenIn, req.AmountIn, req.MinOut)
	case len(req.Route.PathSegments) > 0:
		swap, err = codec.EncodeV4MultiHop(req.TokenIn, req.Route.PathSegments, req.AmountIn, req.MinOut)
	default:
		return evm.TxRequest{}, fmt.Errorf("v4 route carries neither a pool key nor path segments")
	}
	if err != nil {
		return evm.TxRequest{}, err
	}
	if err := batch.Add(codec.CmdV4Swap, swap); err != nil {
		return evm.TxRequest{}, err
	}

	data, err := v.router.Execute(batch, req.Deadline)
	if err != nil {
		return evm.TxRequest{}, err
	}
	return evm.TxRequest{To: v.router.Address(), Data: data, Value: value}, nil
}

// Aerodrome is the stable/volatile router adapter.
type Aerodrome struct {
	chain  chains.Config
	router *venues.AerodromeRouter
	search *routing.StableVolatile
}

// NewAerodrome builds the adapter from the chain's router and pool factory.
func NewAerodrome(chain chains.Config, rpc *evm.Client, log logrus.FieldLogger) (*Aerodrome, error) {
	if err := chain.Require(chains.VenueAerodrome); err != nil {
		return nil, err
	}
	router := venues.NewAerodromeRouter(rpc, chains.Addr(chain.Contracts.AerodromeRouter))
	return &Aerodrome{
		chain:  chain,
		router: router,
		search: &routing.StableVolatile{
			Quoter:  router,
			Factory: chains.Addr(chain.Contracts.AerodromeFactory),
			Bridges: chain.BridgeTokens(),
			Log:     log,
		},
	}, nil
}

func (v *Aerodrome) Name() string                                 { return chains.VenueAerodrome }
func (v *Aerodrome) Search() routing.Search                       { return v.search }
func (v *Aerodrome) Currency(token common.Address) common.Address { return wrapped(v.chain, token) }
func (v *Aerodrome) Spender() common.Address                      { return v.router.Address() }

func (v *Aerodrome) Encode(ctx context.Context, req SwapRequest) (evm.TxRequest, error) {
	hops := req.Route.Hops
	if len(hops) == 0 {
		return evm.TxRequest{}, fmt.Errorf("aerodrome route has no hops")
	}
	var (
		data []byte
		err  error
	)
	switch req.Shape {
	case swaps.ShapeNativeForToken:
		data, err = v.router.SwapExactETHForTokens(req.MinOut, hops, req.Recipient, req.Deadline)
		if err != nil {
			return evm.TxRequest{}, err
		}
		return evm.TxRequest{To: v.router.Address(), Data: data, Value: req.AmountIn}, nil
	case swaps.ShapeTokenForNative:
		data, err = v.router.SwapExactTokensForETH(req.AmountIn, req.MinOut, hops, req.Recipient, req.Deadline)
	case swaps.ShapeTokenForToken:
		data, err = v.router.SwapExactTokensForTokens(req.AmountIn, req.MinOut, hops, req.Recipient, req.Deadline)
	default:
		return evm.TxRequest{}, unsupported(v.Name(), req.Shape)
	}
	if err != nil {
		return evm.TxRequest{}, err
	}
	return evm.TxRequest{To: v.router.Address(), Data: data}, nil
}

var (
	_ Venue = (*V2)(nil)
	_ Venue = (*V3)(nil)
	_ Venue = (*V4)(nil)
	_ Venue = (*Aerodrome)(nil)
)
