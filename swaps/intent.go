package swaps

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/RaghavSood/dexswap/swaperr"
)

// NativeToken is the placeholder address for a chain's native gas token.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// IsNative reports whether addr stands for the chain's native asset. The zero
// address is accepted as an alias of NativeToken.
func IsNative(addr common.Address) bool {
	return addr == NativeToken || addr == (common.Address{})
}

// InputKind says how Intent.InputAmount is denominated.
type InputKind string

const (
	InputNative InputKind = "native"
	InputFiat   InputKind = "fiat"
	InputToken  InputKind = "token"
)

// FullBalance is the InputAmount sentinel that, for token input, means "spend
// the caller's entire raw balance".
const FullBalance = "0"

// Shape is the direction of a trade as far as native currency is concerned.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeNativeForToken
	ShapeTokenForNative
	ShapeTokenForToken
)

func (s Shape) String() string {
	switch s {
	case ShapeNativeForToken:
		return "native->token"
	case ShapeTokenForNative:
		return "token->native"
	case ShapeTokenForToken:
		return "token->token"
	default:
		return "unknown"
	}
}

// Intent is a caller-supplied trade request. Amounts are decimal strings.
type Intent struct {
	Chain       string         `json:"chain"`
	InputKind   InputKind      `json:"input_kind"`
	InputToken  common.Address `json:"input_token"`
	InputAmount string         `json:"input_amount"`
	OutputToken common.Address `json:"output_token"`
	// SellPrice is accepted for compatibility with the request layer and
	// carried through untouched.
	SellPrice string `json:"sell_price,omitempty"`
}

// Shape classifies the intent. Fiat input always spends native currency.
func (i Intent) Shape() (Shape, error) {
	outNative := IsNative(i.OutputToken)
	switch strings.ToLower(string(i.InputKind)) {
	case string(InputNative), string(InputFiat):
		if !IsNative(i.InputToken) {
			return ShapeUnknown, invalid("%s input must use the native token, got %s", i.InputKind, i.InputToken.Hex())
		}
		if outNative {
			return ShapeUnknown, invalid("cannot swap native currency into itself")
		}
		return ShapeNativeForToken, nil
	case string(InputToken):
		if IsNative(i.InputToken) {
			return ShapeUnknown, invalid("token input requires a token address")
		}
		if outNative {
			return ShapeTokenForNative, nil
		}
		if i.InputToken == i.OutputToken {
			return ShapeUnknown, invalid("input and output token are both %s", i.InputToken.Hex())
		}
		return ShapeTokenForToken, nil
	default:
		return ShapeUnknown, invalid("unknown input kind %q", i.InputKind)
	}
}

// Amount parses InputAmount.
func (i Intent) Amount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(i.InputAmount))
	if err != nil {
		return decimal.Zero, invalid("input amount %q is not a number", i.InputAmount)
	}
	return d, nil
}

// UsesFullBalance reports whether the intent asks to sell the whole balance.
func (i Intent) UsesFullBalance() bool {
	return strings.EqualFold(string(i.InputKind), string(InputToken)) && strings.TrimSpace(i.InputAmount) == FullBalance
}

// Validate checks everything that can be checked without touching the chain.
func (i Intent) Validate() error {
	if _, err := i.Shape(); err != nil {
		return err
	}
	if i.UsesFullBalance() {
		return nil
	}
	amt, err := i.Amount()
	if err != nil {
		return err
	}
	if !amt.IsPositive() {
		return invalid("input amount must be positive, got %s", i.InputAmount)
	}
	return nil
}

// IsFiat reports whether InputAmount is denominated in fiat (stablecoin) units.
func (i Intent) IsFiat() bool {
	return strings.EqualFold(string(i.InputKind), string(InputFiat))
}

func invalid(format string, args ...interface{}) error {
	return swaperr.New(swaperr.KindValidation, "intent", format, args...)
}
