package codec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Command is a logical Universal Router operation. Its byte value depends on
// the router version, see RouterVersion.Byte.
type Command int

const (
	CmdV3SwapExactIn Command = iota
	CmdV3SwapExactOut
	CmdPermit2TransferFrom
	CmdPermit2PermitBatch
	CmdSweep
	CmdTransfer
	CmdPayPortion
	CmdV2SwapExactIn
	CmdV2SwapExactOut
	CmdPermit2Permit
	CmdWrapETH
	CmdUnwrapWETH
	CmdPermit2TransferFromBatch
	CmdBalanceCheckERC20
	CmdV4Swap
	CmdV3PositionManagerPermit
	CmdV3PositionManagerCall
	CmdV4InitializePool
	CmdV4PositionManagerCall
	CmdSeaportV1_5
	CmdLooksRareV2
	CmdExecuteSubPlan
)

var commandNames = map[Command]string{
	CmdV3SwapExactIn:            "V3_SWAP_EXACT_IN",
	CmdV3SwapExactOut:           "V3_SWAP_EXACT_OUT",
	CmdPermit2TransferFrom:      "PERMIT2_TRANSFER_FROM",
	CmdPermit2PermitBatch:       "PERMIT2_PERMIT_BATCH",
	CmdSweep:                    "SWEEP",
	CmdTransfer:                 "TRANSFER",
	CmdPayPortion:               "PAY_PORTION",
	CmdV2SwapExactIn:            "V2_SWAP_EXACT_IN",
	CmdV2SwapExactOut:           "V2_SWAP_EXACT_OUT",
	CmdPermit2Permit:            "PERMIT2_PERMIT",
	CmdWrapETH:                  "WRAP_ETH",
	CmdUnwrapWETH:               "UNWRAP_WETH",
	CmdPermit2TransferFromBatch: "PERMIT2_TRANSFER_FROM_BATCH",
	CmdBalanceCheckERC20:        "BALANCE_CHECK_ERC20",
	CmdV4Swap:                   "V4_SWAP",
	CmdV3PositionManagerPermit:  "V3_POSITION_MANAGER_PERMIT",
	CmdV3PositionManagerCall:    "V3_POSITION_MANAGER_CALL",
	CmdV4InitializePool:         "V4_INITIALIZE_POOL",
	CmdV4PositionManagerCall:    "V4_POSITION_MANAGER_CALL",
	CmdSeaportV1_5:              "SEAPORT_V1_5",
	CmdLooksRareV2:              "LOOKS_RARE_V2",
	CmdExecuteSubPlan:           "EXECUTE_SUB_PLAN",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// RouterVersion selects the command byte table of a deployed Universal Router.
type RouterVersion int

const (
	// RouterV1 is the original Universal Router (v1.2), where 0x10-0x1f are
	// NFT marketplace commands.
	RouterV1 RouterVersion = 1
	// RouterV2 is the V4-capable Universal Router, where 0x10 is V4_SWAP.
	RouterV2 RouterVersion = 2
)

const (
	// FlagAllowRevert lets a command fail without reverting the batch.
	FlagAllowRevert byte = 0x80
	// CommandTypeMask extracts the command from a command byte.
	CommandTypeMask byte = 0x3f
)

var sharedCommands = map[Command]byte{
	CmdV3SwapExactIn:            0x00,
	CmdV3SwapExactOut:           0x01,
	CmdPermit2TransferFrom:      0x02,
	CmdPermit2PermitBatch:       0x03,
	CmdSweep:                    0x04,
	CmdTransfer:                 0x05,
	CmdPayPortion:               0x06,
	CmdV2SwapExactIn:            0x08,
	CmdV2SwapExactOut:           0x09,
	CmdPermit2Permit:            0x0a,
	CmdWrapETH:                  0x0b,
	CmdUnwrapWETH:               0x0c,
	CmdPermit2TransferFromBatch: 0x0d,
	CmdBalanceCheckERC20:        0x0e,
	CmdExecuteSubPlan:           0x21,
}

var commandTables = map[RouterVersion]map[Command]byte{
	RouterV1: withShared(map[Command]byte{
		CmdSeaportV1_5: 0x10,
		CmdLooksRareV2: 0x11,
	}),
	RouterV2: withShared(map[Command]byte{
		CmdV4Swap:                  0x10,
		CmdV3PositionManagerPermit: 0x11,
		CmdV3PositionManagerCall:   0x12,
		CmdV4InitializePool:        0x13,
		CmdV4PositionManagerCall:   0x14,
	}),
}

func withShared(extra map[Command]byte) map[Command]byte {
	out := make(map[Command]byte, len(sharedCommands)+len(extra))
	for k, v := range sharedCommands {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// ParseRouterVersion accepts "v1"/"v2" (case-insensitive). Empty means V2.
func ParseRouterVersion(s string) (RouterVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v2", "2":
		return RouterV2, nil
	case "v1", "1":
		return RouterV1, nil
	default:
		return 0, fmt.Errorf("unknown universal router version %q", s)
	}
}

// Byte returns the command byte for c on this router version.
func (v RouterVersion) Byte(c Command) (byte, error) {
	table, ok := commandTables[v]
	if !ok {
		return 0, fmt.Errorf("unknown universal router version %d", int(v))
	}
	b, ok := table[c]
	if !ok {
		return 0, fmt.Errorf("command %s not supported by universal router v%d", c, int(v))
	}
	return b, nil
}

// Command maps a command byte back to the operation, ignoring flags.
func (v RouterVersion) Command(b byte) (Command, bool) {
	b &= CommandTypeMask
	for c, cb := range commandTables[v] {
		if cb == b {
			return c, true
		}
	}
	return 0, false
}

// Batch collects commands and their inputs for a single execute call. The
// router runs them all or reverts all of them.
type Batch struct {
	version  RouterVersion
	commands []byte
	inputs   [][]byte
}

// NewBatch starts an empty batch for a router version.
func NewBatch(v RouterVersion) *Batch {
	return &Batch{version: v}
}

// Add appends a command and its ABI-encoded input.
func (b *Batch) Add(c Command, input []byte) error {
	return b.add(c, input, false)
}

// AddAllowRevert appends a command whose failure does not abort the batch.
func (b *Batch) AddAllowRevert(c Command, input []byte) error {
	return b.add(c, input, true)
}

func (b *Batch) add(c Command, input []byte, allowRevert bool) error {
	cb, err := b.version.Byte(c)
	if err != nil {
		return err
	}
	if allowRevert {
		cb |= FlagAllowRevert
	}
	b.commands = append(b.commands, cb)
	b.inputs = append(b.inputs, input)
	return nil
}

// Commands returns a copy of the command bytes.
func (b *Batch) Commands() []byte {
	return append([]byte(nil), b.commands...)
}

// Inputs returns the per-command inputs, 1:1 with Commands.
func (b *Batch) Inputs() [][]byte {
	return append([][]byte(nil), b.inputs...)
}

// Len is the number of commands.
func (b *Batch) Len() int { return len(b.commands) }

// Version is the router version this batch targets.
func (b *Batch) Version() RouterVersion { return b.version }

const universalRouterABI = `[
	{"inputs":[{"name":"commands","type":"bytes"},{"name":"inputs","type":"bytes[]"},{"name":"deadline","type":"uint256"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"commands","type":"bytes"},{"name":"inputs","type":"bytes[]"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"}
]`

// UniversalRouterABI is the execute surface of the Universal Router.
var UniversalRouterABI abi.ABI

func init() {
	var err error
	UniversalRouterABI, err = abi.JSON(strings.NewReader(universalRouterABI))
	if err != nil {
		panic(err)
	}
}

// Pack returns execute(commands, inputs, deadline) calldata.
func (b *Batch) Pack(deadline *big.Int) ([]byte, error) {
	if len(b.commands) == 0 {
		return nil, fmt.Errorf("empty command batch")
	}
	if len(b.commands) != len(b.inputs) {
		return nil, fmt.Errorf("batch has %d commands but %d inputs", len(b.commands), len(b.inputs))
	}
	if deadline == nil || deadline.Sign() <= 0 {
		return nil, fmt.Errorf("batch deadline must be set")
	}
	return UniversalRouterABI.Pack("execute", b.commands, b.inputs, deadline)
}

// DecodeExecute unpacks execute(bytes,bytes[],uint256) calldata.
func DecodeExecute(calldata []byte) (commands []byte, inputs [][]byte, deadline *big.Int, err error) {
	if len(calldata) < 4 {
		return nil, nil, nil, fmt.Errorf("calldata too short")
	}
	method, err := UniversalRouterABI.MethodById(calldata[:4])
	if err != nil {
		return nil, nil, nil, err
	}
	vals, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unpacking %s: %w", method.Name, err)
	}
	commands = vals[0].([]byte)
	inputs = vals[1].([][]byte)
	if len(vals) > 2 {
		deadline = vals[2].(*big.Int)
	}
	return commands, inputs, deadline, nil
}

// Recipient sentinels understood by the routers.
var (
	MsgSender   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	AddressThis = common.HexToAddress("0x0000000000000000000000000000000000000002")
)
