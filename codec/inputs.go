package codec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	v3SwapExactInArgs = args(tAddress, tUint256, tUint256, tBytes, tBool)
	v2SwapExactInArgs = args(tAddress, tUint256, tUint256, tAddressArray, tBool)
	recipientAmtArgs  = args(tAddress, tUint256)
	sweepArgs         = args(tAddress, tAddress, tUint256)
	transferFromArgs  = args(tAddress, tAddress, tUint160)
)

var permitSingleType = mustType("tuple",
	abi.ArgumentMarshaling{Name: "details", Type: "tuple", Components: []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint160"},
		{Name: "expiration", Type: "uint48"},
		{Name: "nonce", Type: "uint48"},
	}},
	abi.ArgumentMarshaling{Name: "spender", Type: "address"},
	abi.ArgumentMarshaling{Name: "sigDeadline", Type: "uint256"},
)

var permit2PermitArgs = args(permitSingleType, tBytes)

// V3SwapExactIn encodes the V3_SWAP_EXACT_IN input.
func V3SwapExactIn(recipient common.Address, amountIn, amountOutMin *big.Int, path []byte, payerIsUser bool) ([]byte, error) {
	return v3SwapExactInArgs.Pack(recipient, orZero(amountIn), orZero(amountOutMin), path, payerIsUser)
}

// V2SwapExactIn encodes the V2_SWAP_EXACT_IN input.
func V2SwapExactIn(recipient common.Address, amountIn, amountOutMin *big.Int, path []common.Address, payerIsUser bool) ([]byte, error) {
	return v2SwapExactInArgs.Pack(recipient, orZero(amountIn), orZero(amountOutMin), path, payerIsUser)
}

// WrapETH encodes the WRAP_ETH input.
func WrapETH(recipient common.Address, amountMin *big.Int) ([]byte, error) {
	return recipientAmtArgs.Pack(recipient, orZero(amountMin))
}

// UnwrapWETH encodes the UNWRAP_WETH input.
func UnwrapWETH(recipient common.Address, amountMin *big.Int) ([]byte, error) {
	return recipientAmtArgs.Pack(recipient, orZero(amountMin))
}

// Sweep encodes the SWEEP input. The zero token sweeps native currency.
func Sweep(token, recipient common.Address, amountMin *big.Int) ([]byte, error) {
	return sweepArgs.Pack(token, recipient, orZero(amountMin))
}

// Permit2TransferFrom encodes the PERMIT2_TRANSFER_FROM input.
func Permit2TransferFrom(token, recipient common.Address, amount *big.Int) ([]byte, error) {
	return transferFromArgs.Pack(token, recipient, orZero(amount))
}

// PermitDetails is Permit2's IAllowanceTransfer.PermitDetails.
type PermitDetails struct {
	Token      common.Address
	Amount     *big.Int
	Expiration *big.Int
	Nonce      *big.Int
}

// PermitSingle is Permit2's IAllowanceTransfer.PermitSingle.
type PermitSingle struct {
	Details     PermitDetails
	Spender     common.Address
	SigDeadline *big.Int
}

// Permit2Permit encodes the PERMIT2_PERMIT input: (PermitSingle, signature).
func Permit2Permit(permit PermitSingle, signature []byte) ([]byte, error) {
	return permit2PermitArgs.Pack(permit, signature)
}

// DecodePermit2Permit is the inverse of Permit2Permit.
func DecodePermit2Permit(input []byte) (PermitSingle, []byte, error) {
	vals, err := permit2PermitArgs.Unpack(input)
	if err != nil {
		return PermitSingle{}, nil, err
	}
	permit := *abi.ConvertType(vals[0], new(PermitSingle)).(*PermitSingle)
	return permit, vals[1].([]byte), nil
}
