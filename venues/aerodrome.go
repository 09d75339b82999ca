package venues

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/routing"
)

const aeroRoute = `{"components":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"stable","type":"bool"},{"name":"factory","type":"address"}],"name":"routes","type":"tuple[]"}`

// AerodromeRouterABI is the stable/volatile router subset the swap core uses.
var AerodromeRouterABI = mustABI(`[
	{"inputs":[{"name":"amountIn","type":"uint256"},` + aeroRoute + `],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"amountOutMin","type":"uint256"},` + aeroRoute + `,{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},` + aeroRoute + `,{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},` + aeroRoute + `,{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`)

// AeroRoute is the router's Route struct.
type AeroRoute struct {
	From    common.Address
	To      common.Address
	Stable  bool
	Factory common.Address
}

func aeroRoutes(hops []routing.Hop) []AeroRoute {
	out := make([]AeroRoute, len(hops))
	for i, h := range hops {
		out[i] = AeroRoute{From: h.From, To: h.To, Stable: h.Stable, Factory: h.Factory}
	}
	return out
}

// AerodromeRouter is an Aerodrome/Velodrome style router.
type AerodromeRouter struct {
	c contract
}

// NewAerodromeRouter binds the router at address.
func NewAerodromeRouter(rpc *evm.Client, address common.Address) *AerodromeRouter {
	return &AerodromeRouter{c: contract{name: "aerodrome", rpc: rpc, address: address, abi: AerodromeRouterABI}}
}

// Address is the router contract.
func (r *AerodromeRouter) Address() common.Address { return r.c.address }

// GetAmountsOut returns the output at each hop for amountIn.
func (r *AerodromeRouter) GetAmountsOut(ctx context.Context, amountIn *big.Int, hops []routing.Hop) ([]*big.Int, error) {
	vals, err := r.c.call(ctx, "getAmountsOut", orZero(amountIn), aeroRoutes(hops))
	if err != nil {
		return nil, err
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut: unexpected return type %T", vals[0])
	}
	return amounts, nil
}

// SwapExactETHForTokens is calldata for a native-in swap.
func (r *AerodromeRouter) SwapExactETHForTokens(amountOutMin *big.Int, hops []routing.Hop, to common.Address, deadline *big.Int) ([]byte, error) {
	return r.c.abi.Pack("swapExactETHForTokens", orZero(amountOutMin), aeroRoutes(hops), to, orZero(deadline))
}

// SwapExactTokensForETH is calldata for a native-out swap.
func (r *AerodromeRouter) SwapExactTokensForETH(amountIn, amountOutMin *big.Int, hops []routing.Hop, to common.Address, deadline *big.Int) ([]byte, error) {
	return r.c.abi.Pack("swapExactTokensForETH", orZero(amountIn), orZero(amountOutMin), aeroRoutes(hops), to, orZero(deadline))
}

// SwapExactTokensForTokens is calldata for a token-to-token swap.
func (r *AerodromeRouter) SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, hops []routing.Hop, to common.Address, deadline *big.Int) ([]byte, error) {
	return r.c.abi.Pack("swapExactTokensForTokens", orZero(amountIn), orZero(amountOutMin), aeroRoutes(hops), to, orZero(deadline))
}

var (
	_ routing.PathQuoter = (*V2Router)(nil)
	_ routing.TierQuoter = (*QuoterV2)(nil)
	_ routing.PoolQuoter = (*V4Quoter)(nil)
	_ routing.HopQuoter  = (*AerodromeRouter)(nil)
)
