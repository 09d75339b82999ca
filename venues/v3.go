package venues

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/evm"
)

// QuoterV2ABI covers the two exact-input quotes.
var QuoterV2ABI = mustABI(`[
	{"inputs":[{"components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"fee","type":"uint24"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96After","type":"uint160"},{"name":"initializedTicksCrossed","type":"uint32"},{"name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"path","type":"bytes"},{"name":"amountIn","type":"uint256"}],"name":"quoteExactInput","outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96AfterList","type":"uint160[]"},{"name":"initializedTicksCrossedList","type":"uint32[]"},{"name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`)

// SwapRouter02ABI covers exact-input swaps, multicall with deadline and
// WETH unwrapping.
var SwapRouter02ABI = mustABI(`[
	{"inputs":[{"components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"name":"params","type":"tuple"}],"name":"exactInputSingle","outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"components":[{"name":"path","type":"bytes"},{"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"}],"name":"params","type":"tuple"}],"name":"exactInput","outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"deadline","type":"uint256"},{"name":"data","type":"bytes[]"}],"name":"multicall","outputs":[{"name":"results","type":"bytes[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"amountMinimum","type":"uint256"},{"name":"recipient","type":"address"}],"name":"unwrapWETH9","outputs":[],"stateMutability":"payable","type":"function"}
]`)

// RouterSelf is SwapRouter02's ADDRESS_THIS recipient: output stays in the
// router for a following unwrapWETH9.
var RouterSelf = common.BigToAddress(big.NewInt(2))

// QuoteSingleParams is the quoteExactInputSingle argument.
type QuoteSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactInputSingleParams is the exactInputSingle argument.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactInputParams is the multi-hop exactInput argument.
type ExactInputParams struct {
	Path             []byte
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// QuoterV2 prices concentrated-liquidity pools.
type QuoterV2 struct {
	c contract
}

// NewQuoterV2 binds the quoter at address.
func NewQuoterV2(rpc *evm.Client, address common.Address) *QuoterV2 {
	return &QuoterV2{c: contract{name: "quoterv2", rpc: rpc, address: address, abi: QuoterV2ABI}}
}

// QuoteExactInputSingle quotes one pool identified by its fee tier.
func (q *QuoterV2) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	vals, err := q.c.call(ctx, "quoteExactInputSingle", QuoteSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          orZero(amountIn),
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, err
	}
	return firstBig(vals)
}

// QuoteExactInput quotes a packed multi-hop path.
func (q *QuoterV2) QuoteExactInput(ctx context.Context, path []byte, amountIn *big.Int) (*big.Int, error) {
	vals, err := q.c.call(ctx, "quoteExactInput", path, orZero(amountIn))
	if err != nil {
		return nil, err
	}
	return firstBig(vals)
}

// SwapRouter02 builds calldata for the V3 swap router.
type SwapRouter02 struct {
	address common.Address
}

// NewSwapRouter02 returns a calldata builder for the router at address.
func NewSwapRouter02(address common.Address) *SwapRouter02 {
	return &SwapRouter02{address: address}
}

// Address is the router contract.
func (r *SwapRouter02) Address() common.Address { return r.address }

// ExactInputSingle is calldata for a one-pool swap.
func (r *SwapRouter02) ExactInputSingle(tokenIn, tokenOut common.Address, fee uint32, recipient common.Address, amountIn, amountOutMin *big.Int) ([]byte, error) {
	return SwapRouter02ABI.Pack("exactInputSingle", ExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		Recipient:         recipient,
		AmountIn:          orZero(amountIn),
		AmountOutMinimum:  orZero(amountOutMin),
		SqrtPriceLimitX96: new(big.Int),
	})
}

// ExactInput is calldata for a packed multi-hop swap.
func (r *SwapRouter02) ExactInput(path []byte, recipient common.Address, amountIn, amountOutMin *big.Int) ([]byte, error) {
	return SwapRouter02ABI.Pack("exactInput", ExactInputParams{
		Path:             path,
		Recipient:        recipient,
		AmountIn:         orZero(amountIn),
		AmountOutMinimum: orZero(amountOutMin),
	})
}

// UnwrapWETH9 is calldata that unwraps the router's WETH to recipient.
func (r *SwapRouter02) UnwrapWETH9(amountMin *big.Int, recipient common.Address) ([]byte, error) {
	return SwapRouter02ABI.Pack("unwrapWETH9", orZero(amountMin), recipient)
}

// Multicall wraps calls in multicall(deadline, data), reverting after
// deadline.
func (r *SwapRouter02) Multicall(deadline *big.Int, calls ...[]byte) ([]byte, error) {
	return SwapRouter02ABI.Pack("multicall", orZero(deadline), calls)
}
