package swaperr

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// knownErrors are the revert signatures of every contract a trade touches.
var knownErrors = []string{
	"Error(string)",
	"Panic(uint256)",

	// Universal Router and its V2/V3/V4 modules
	"ExecutionFailed(uint256,bytes)",
	"InvalidCommandType(uint256)",
	"TransactionDeadlinePassed()",
	"LengthMismatch()",
	"InsufficientETH()",
	"InsufficientToken()",
	"InvalidEthSender()",
	"BalanceTooLow()",
	"SliceOutOfBounds()",
	"UnsafeCast()",
	"ETHNotAccepted()",
	"V2TooLittleReceived()",
	"V2TooMuchRequested()",
	"V2InvalidPath()",
	"V3TooLittleReceived()",
	"V3TooMuchRequested()",
	"V3InvalidSwap()",
	"V3InvalidAmountOut()",
	"V3InvalidCaller()",
	"V4TooLittleReceived(uint256,uint256)",
	"V4TooMuchRequested(uint256,uint256)",
	"DeltaNotPositive(address)",
	"DeltaNotNegative(address)",
	"InputLengthMismatch()",
	"UnsupportedAction(uint256)",
	"ContractLocked()",
	"NotPoolManager()",

	// V4 pool manager and quoter
	"CurrencyNotSettled()",
	"PoolNotInitialized()",
	"ManagerLocked()",
	"NonzeroNativeValue()",
	"SwapAmountCannotBeZero()",
	"PriceLimitAlreadyExceeded(uint160,uint160)",
	"PriceLimitOutOfBounds(uint160)",
	"TickSpacingTooLarge(int24)",
	"CurrenciesOutOfOrderOrEqual(address,address)",
	"WrappedError(address,bytes4,bytes,bytes)",
	"NotEnoughLiquidity(bytes32)",
	"UnexpectedRevertBytes(bytes)",
	"QuoteSwap(uint256)",

	// Permit2
	"AllowanceExpired(uint256)",
	"InsufficientAllowance(uint256)",
	"ExcessiveInvalidation()",
	"InvalidNonce()",
	"InvalidSignature()",
	"InvalidSignatureLength()",
	"InvalidSigner()",
	"InvalidContractSignature()",
	"SignatureExpired(uint256)",
	"InvalidAmount(uint256)",

	// Aerodrome router
	"ETHTransferFailed()",
	"Expired()",
	"InsufficientAmount()",
	"InsufficientLiquidity()",
	"InsufficientOutputAmount()",
	"InvalidAmountInForETHDeposit()",
	"InvalidPath()",
	"InvalidRouteA()",
	"InvalidRouteB()",
	"OnlyWETH()",
	"PoolDoesNotExist()",
	"SameAddresses()",
	"ZeroAddress()",
}

type errorDef struct {
	name string
	args abi.Arguments
}

var errorTable = buildErrorTable(knownErrors)

func buildErrorTable(sigs []string) map[[4]byte]errorDef {
	table := make(map[[4]byte]errorDef, len(sigs))
	for _, sig := range sigs {
		open := strings.IndexByte(sig, '(')
		name, params := sig[:open], strings.TrimSuffix(sig[open+1:], ")")
		var args abi.Arguments
		if params != "" {
			for _, p := range strings.Split(params, ",") {
				typ, err := abi.NewType(p, "", nil)
				if err != nil {
					panic(fmt.Sprintf("bad error signature %s: %v", sig, err))
				}
				args = append(args, abi.Argument{Type: typ})
			}
		}
		var sel [4]byte
		copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
		table[sel] = errorDef{name: name, args: args}
	}
	return table
}

var panicCodes = map[uint64]string{
	0x00: "generic compiler panic",
	0x01: "assertion failed",
	0x11: "arithmetic overflow or underflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "invalid storage byte array",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "call to zero-initialized function",
}

// DecodeRevert renders revert data as a readable reason, trying every known
// protocol error. ok is false when the selector is unknown.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	def, ok := errorTable[sel]
	if !ok {
		return fmt.Sprintf("unknown error %s", hexutil.Encode(data[:4])), false
	}
	vals, err := def.args.Unpack(data[4:])
	if err != nil {
		return def.name + "(<malformed>)", true
	}

	switch def.name {
	case "Error":
		return vals[0].(string), true
	case "Panic":
		code := vals[0].(*big.Int)
		if desc, ok := panicCodes[code.Uint64()]; ok && code.IsUint64() {
			return fmt.Sprintf("panic 0x%02x: %s", code.Uint64(), desc), true
		}
		return fmt.Sprintf("panic %s", code), true
	case "ExecutionFailed":
		idx := vals[0].(*big.Int)
		inner := vals[1].([]byte)
		reason, _ := DecodeRevert(inner)
		if reason == "" {
			reason = "no reason"
		}
		return fmt.Sprintf("ExecutionFailed(command %s): %s", idx, reason), true
	case "WrappedError":
		inner := vals[2].([]byte)
		reason, _ := DecodeRevert(inner)
		return fmt.Sprintf("WrappedError(target %v): %s", vals[0], reason), true
	}

	parts := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case []byte:
			parts[i] = hexutil.Encode(x)
		case [4]byte:
			parts[i] = hexutil.Encode(x[:])
		case [32]byte:
			parts[i] = hexutil.Encode(x[:])
		default:
			parts[i] = fmt.Sprint(x)
		}
	}
	return fmt.Sprintf("%s(%s)", def.name, strings.Join(parts, ", ")), true
}
