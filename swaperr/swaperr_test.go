package swaperr

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeError(t *testing.T, sig string, types []string, vals ...interface{}) []byte {
	t.Helper()
	var args abi.Arguments
	for _, ty := range types {
		typ, err := abi.NewType(ty, "", nil)
		require.NoError(t, err)
		args = append(args, abi.Argument{Type: typ})
	}
	packed, err := args.Pack(vals...)
	require.NoError(t, err)
	return append(crypto.Keccak256([]byte(sig))[:4], packed...)
}

func TestDecodeRevert(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"error string", encodeError(t, "Error(string)", []string{"string"}, "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT"), "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT"},
		{"panic", encodeError(t, "Panic(uint256)", []string{"uint256"}, big.NewInt(0x11)), "panic 0x11: arithmetic overflow or underflow"},
		{"no args", encodeError(t, "V3TooLittleReceived()", nil), "V3TooLittleReceived()"},
		{"permit2 expiry", encodeError(t, "AllowanceExpired(uint256)", []string{"uint256"}, big.NewInt(1700000000)), "AllowanceExpired(1700000000)"},
		{"v4 slippage", encodeError(t, "V4TooLittleReceived(uint256,uint256)", []string{"uint256", "uint256"}, big.NewInt(10), big.NewInt(9)), "V4TooLittleReceived(10, 9)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeRevert(tt.data)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRevertNested(t *testing.T) {
	inner := encodeError(t, "TransactionDeadlinePassed()", nil)
	outer := encodeError(t, "ExecutionFailed(uint256,bytes)", []string{"uint256", "bytes"}, big.NewInt(1), inner)

	got, ok := DecodeRevert(outer)
	require.True(t, ok)
	assert.Equal(t, "ExecutionFailed(command 1): TransactionDeadlinePassed()", got)
}

func TestDecodeRevertUnknown(t *testing.T) {
	_, ok := DecodeRevert([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.False(t, ok)
	_, ok = DecodeRevert([]byte{0x01})
	assert.False(t, ok)
}

func TestErrorKinds(t *testing.T) {
	addr := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	err := New(KindRisk, "build", "price impact too high").WithAddress(addr).WithValues("5%", "7.2%")
	wrapped := fmt.Errorf("trade: %w", err)

	assert.True(t, errors.Is(wrapped, KindRisk))
	assert.False(t, errors.Is(wrapped, KindQuote))
	assert.Equal(t, KindRisk, KindOf(wrapped))
	assert.Contains(t, err.Error(), "expected 5%")
	assert.Contains(t, err.Error(), addr.Hex())

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Nil(t, Wrap(KindQuote, "op", nil))
}

func TestRetryable(t *testing.T) {
	for _, k := range []Kind{KindValidation, KindQuote, KindApproval, KindRisk, KindSimulation, KindNetwork, KindConfirmation, KindConfig} {
		assert.False(t, Retryable(k), k)
	}
	assert.True(t, Retryable(KindTransport))
}

type fakeDataError struct {
	msg  string
	data interface{}
}

func (e fakeDataError) Error() string          { return e.msg }
func (e fakeDataError) ErrorCode() int         { return 3 }
func (e fakeDataError) ErrorData() interface{} { return e.data }

func TestFromCall(t *testing.T) {
	data := encodeError(t, "InsufficientToken()", nil)
	err := FromCall("simulate", KindSimulation, fakeDataError{msg: "execution reverted", data: hexutil.Encode(data)})

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindSimulation, e.Kind)
	assert.Equal(t, "InsufficientToken()", e.Reason)

	err = FromCall("quote", KindQuote, errors.New("connection reset by peer"))
	assert.Equal(t, KindTransport, KindOf(err))

	typed := New(KindNetwork, "check", "wrong chain")
	assert.Same(t, typed, FromCall("x", KindQuote, typed))
	assert.Nil(t, FromCall("x", KindQuote, nil))
}
