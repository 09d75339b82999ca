package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Action is a V4 router pool action, executed inside a V4_SWAP command.
type Action byte

const (
	ActionIncreaseLiquidity       Action = 0x00
	ActionDecreaseLiquidity       Action = 0x01
	ActionMintPosition            Action = 0x02
	ActionBurnPosition            Action = 0x03
	ActionIncreaseLiquidityDeltas Action = 0x04
	ActionMintPositionFromDeltas  Action = 0x05
	ActionSwapExactInSingle       Action = 0x06
	ActionSwapExactIn             Action = 0x07
	ActionSwapExactOutSingle      Action = 0x08
	ActionSwapExactOut            Action = 0x09
	ActionDonate                  Action = 0x0a
	ActionSettle                  Action = 0x0b
	ActionSettleAll               Action = 0x0c
	ActionSettlePair              Action = 0x0d
	ActionTake                    Action = 0x0e
	ActionTakeAll                 Action = 0x0f
	ActionTakePortion             Action = 0x10
	ActionTakePair                Action = 0x11
	ActionCloseCurrency           Action = 0x12
	ActionClearOrTake             Action = 0x13
	ActionSweep                   Action = 0x14
	ActionWrap                    Action = 0x15
	ActionUnwrap                  Action = 0x16
)

var actionNames = map[Action]string{
	ActionSwapExactInSingle:  "SWAP_EXACT_IN_SINGLE",
	ActionSwapExactIn:        "SWAP_EXACT_IN",
	ActionSwapExactOutSingle: "SWAP_EXACT_OUT_SINGLE",
	ActionSwapExactOut:       "SWAP_EXACT_OUT",
	ActionSettle:             "SETTLE",
	ActionSettleAll:          "SETTLE_ALL",
	ActionSettlePair:         "SETTLE_PAIR",
	ActionTake:               "TAKE",
	ActionTakeAll:            "TAKE_ALL",
	ActionTakePortion:        "TAKE_PORTION",
	ActionTakePair:           "TAKE_PAIR",
	ActionCloseCurrency:      "CLOSE_CURRENCY",
	ActionClearOrTake:        "CLEAR_OR_TAKE",
	ActionSweep:              "SWEEP",
	ActionWrap:               "WRAP",
	ActionUnwrap:             "UNWRAP",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(0x%02x)", byte(a))
}

var tExactInputSingle = mustType("tuple",
	abi.ArgumentMarshaling{Name: "poolKey", Type: "tuple", Components: poolKeyComponents},
	abi.ArgumentMarshaling{Name: "zeroForOne", Type: "bool"},
	abi.ArgumentMarshaling{Name: "amountIn", Type: "uint128"},
	abi.ArgumentMarshaling{Name: "amountOutMinimum", Type: "uint128"},
	abi.ArgumentMarshaling{Name: "hookData", Type: "bytes"},
)

var pathKeyComponents = []abi.ArgumentMarshaling{
	{Name: "intermediateCurrency", Type: "address"},
	{Name: "fee", Type: "uint24"},
	{Name: "tickSpacing", Type: "int24"},
	{Name: "hooks", Type: "address"},
	{Name: "hookData", Type: "bytes"},
}

var tExactInput = mustType("tuple",
	abi.ArgumentMarshaling{Name: "currencyIn", Type: "address"},
	abi.ArgumentMarshaling{Name: "path", Type: "tuple[]", Components: pathKeyComponents},
	abi.ArgumentMarshaling{Name: "amountIn", Type: "uint128"},
	abi.ArgumentMarshaling{Name: "amountOutMinimum", Type: "uint128"},
)

var planArgs = args(tBytes, tBytesArray)

// PathKey is one hop of a V4 multi-hop swap: the next currency and the pool
// key fields that, with the previous currency, identify the pool.
type PathKey struct {
	IntermediateCurrency common.Address `json:"intermediate_currency"`
	Fee                  uint32         `json:"fee"`
	TickSpacing          int32          `json:"tick_spacing"`
	Hooks                common.Address `json:"hooks"`
	HookData             []byte         `json:"hook_data,omitempty"`
}

// PathKeyTuple is the ABI shape of PathKey, for packing with a contract ABI.
type PathKeyTuple struct {
	IntermediateCurrency common.Address
	Fee                  *big.Int
	TickSpacing          *big.Int
	Hooks                common.Address
	HookData             []byte
}

// Tuple converts p to its ABI shape.
func (p PathKey) Tuple() PathKeyTuple {
	return PathKeyTuple{
		IntermediateCurrency: p.IntermediateCurrency,
		Fee:                  u(uint64(p.Fee)),
		TickSpacing:          big.NewInt(int64(p.TickSpacing)),
		Hooks:                p.Hooks,
		HookData:             orEmpty(p.HookData),
	}
}

// PathKeys converts a currency sequence into V4 path keys using one fee tier
// and hooks for every hop.
func PathKeys(currencies []common.Address, fee uint32, hooks common.Address) ([]PathKey, error) {
	if len(currencies) < 2 {
		return nil, fmt.Errorf("path needs at least 2 currencies, got %d", len(currencies))
	}
	ts, err := TickSpacingForFee(fee)
	if err != nil {
		return nil, err
	}
	keys := make([]PathKey, 0, len(currencies)-1)
	for _, c := range currencies[1:] {
		keys = append(keys, PathKey{IntermediateCurrency: c, Fee: fee, TickSpacing: ts, Hooks: hooks})
	}
	return keys, nil
}

// Plan is an ordered list of V4 actions and their parameters.
type Plan struct {
	actions []byte
	params  [][]byte
}

// Add appends an action with its encoded parameters.
func (p *Plan) Add(a Action, params []byte) {
	p.actions = append(p.actions, byte(a))
	p.params = append(p.params, params)
}

// Actions returns a copy of the action bytes.
func (p *Plan) Actions() []Action {
	out := make([]Action, len(p.actions))
	for i, a := range p.actions {
		out[i] = Action(a)
	}
	return out
}

// Encode returns abi.encode(bytes actions, bytes[] params), the V4_SWAP input.
func (p *Plan) Encode() ([]byte, error) {
	if len(p.actions) == 0 {
		return nil, fmt.Errorf("empty action plan")
	}
	return planArgs.Pack(p.actions, p.params)
}

// DecodePlan is the inverse of Plan.Encode.
func DecodePlan(input []byte) (*Plan, error) {
	vals, err := planArgs.Unpack(input)
	if err != nil {
		return nil, err
	}
	p := &Plan{actions: vals[0].([]byte), params: vals[1].([][]byte)}
	if len(p.actions) != len(p.params) {
		return nil, fmt.Errorf("plan has %d actions but %d params", len(p.actions), len(p.params))
	}
	return p, nil
}

// ExactInputSingle encodes SWAP_EXACT_IN_SINGLE parameters.
func ExactInputSingle(key PoolKey, zeroForOne bool, amountIn, amountOutMin *big.Int, hookData []byte) ([]byte, error) {
	params := struct {
		PoolKey          PoolKeyTuple
		ZeroForOne       bool
		AmountIn         *big.Int
		AmountOutMinimum *big.Int
		HookData         []byte
	}{key.Tuple(), zeroForOne, orZero(amountIn), orZero(amountOutMin), orEmpty(hookData)}
	return args(tExactInputSingle).Pack(params)
}

// ExactInput encodes SWAP_EXACT_IN parameters.
func ExactInput(currencyIn common.Address, path []PathKey, amountIn, amountOutMin *big.Int) ([]byte, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("exact input path is empty")
	}
	keys := make([]PathKeyTuple, len(path))
	for i, k := range path {
		keys[i] = k.Tuple()
	}
	params := struct {
		CurrencyIn       common.Address
		Path             []PathKeyTuple
		AmountIn         *big.Int
		AmountOutMinimum *big.Int
	}{currencyIn, keys, orZero(amountIn), orZero(amountOutMin)}
	return args(tExactInput).Pack(params)
}

// SettleAll encodes SETTLE_ALL: pay the full debt in currency, capped.
func SettleAll(currency common.Address, maxAmount *big.Int) ([]byte, error) {
	return args(tAddress, tUint256).Pack(currency, orZero(maxAmount))
}

// TakeAll encodes TAKE_ALL: take the full credit in currency, floored.
func TakeAll(currency common.Address, minAmount *big.Int) ([]byte, error) {
	return args(tAddress, tUint256).Pack(currency, orZero(minAmount))
}

// EncodeV4Swap builds the V4_SWAP input for an exact-input swap through one
// pool: swap, settle the input, take the output.
func EncodeV4Swap(key PoolKey, currencyIn common.Address, amountIn, amountOutMin *big.Int) ([]byte, error) {
	if currencyIn != key.Currency0 && currencyIn != key.Currency1 {
		return nil, fmt.Errorf("currency %s not in pool", currencyIn.Hex())
	}
	zeroForOne := key.ZeroForOne(currencyIn)
	currencyOut := key.Currency1
	if !zeroForOne {
		currencyOut = key.Currency0
	}
	swap, err := ExactInputSingle(key, zeroForOne, amountIn, amountOutMin, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding swap: %w", err)
	}
	return settleTake(ActionSwapExactInSingle, swap, currencyIn, currencyOut, amountIn, amountOutMin)
}

// EncodeV4MultiHop builds the V4_SWAP input for an exact-input swap along path.
func EncodeV4MultiHop(currencyIn common.Address, path []PathKey, amountIn, amountOutMin *big.Int) ([]byte, error) {
	swap, err := ExactInput(currencyIn, path, amountIn, amountOutMin)
	if err != nil {
		return nil, fmt.Errorf("encoding swap: %w", err)
	}
	currencyOut := path[len(path)-1].IntermediateCurrency
	return settleTake(ActionSwapExactIn, swap, currencyIn, currencyOut, amountIn, amountOutMin)
}

func settleTake(swapAction Action, swap []byte, in, out common.Address, amountIn, amountOutMin *big.Int) ([]byte, error) {
	settle, err := SettleAll(in, amountIn)
	if err != nil {
		return nil, fmt.Errorf("encoding settle: %w", err)
	}
	take, err := TakeAll(out, amountOutMin)
	if err != nil {
		return nil, fmt.Errorf("encoding take: %w", err)
	}
	var p Plan
	p.Add(swapAction, swap)
	p.Add(ActionSettleAll, settle)
	p.Add(ActionTakeAll, take)
	return p.Encode()
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
