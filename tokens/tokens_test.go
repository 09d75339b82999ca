package tokens

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/evm/evmtest"
	"github.com/RaghavSood/dexswap/swaperr"
	"github.com/RaghavSood/dexswap/swaps"
)

var (
	usdc  = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	spend = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newClient(fake *evmtest.Backend) *Client {
	return NewClient(evm.NewClient(fake), common.HexToAddress(chains.Multicall3Address), "ETH")
}

func TestMetadata(t *testing.T) {
	fake := evmtest.New(8453)
	fake.AddToken(usdc, "USDC", 6)
	c := newClient(fake)

	m, err := c.Metadata(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, Metadata{Address: usdc, Symbol: "USDC", Decimals: 6}, m)

	before := fake.TotalCalls()
	_, err = c.Metadata(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, before, fake.TotalCalls(), "second lookup is cached")

	native, err := c.Metadata(context.Background(), swaps.NativeToken)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), native.Decimals)
	assert.Equal(t, "ETH", native.Symbol)
}

func TestMetadataMissing(t *testing.T) {
	fake := evmtest.New(8453)
	c := newClient(fake)

	_, err := c.Metadata(context.Background(), usdc)
	require.Error(t, err)
	assert.Equal(t, swaperr.KindValidation, swaperr.KindOf(err))
}

func TestBalanceAndAllowance(t *testing.T) {
	fake := evmtest.New(8453)
	tok := fake.AddToken(usdc, "USDC", 6)
	tok.SetBalance(owner, big.NewInt(1234))
	tok.SetAllowance(owner, spend, big.NewInt(99))
	fake.SetBalance(owner, big.NewInt(5e18))
	c := newClient(fake)

	bal, err := c.BalanceOf(context.Background(), usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), bal.Int64())

	nat, err := c.BalanceOf(context.Background(), swaps.NativeToken, owner)
	require.NoError(t, err)
	assert.Equal(t, "5000000000000000000", nat.String())

	al, err := c.Allowance(context.Background(), usdc, owner, spend)
	require.NoError(t, err)
	assert.Equal(t, int64(99), al.Int64())
}

func TestApproveData(t *testing.T) {
	data, err := ApproveData(spend, MaxUint256)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, data[:4])
	assert.Len(t, data, 4+64)
}

func TestDecodeSymbolBytes32(t *testing.T) {
	raw := make([]byte, 32)
	copy(raw, "MKR")
	assert.Equal(t, "MKR", decodeSymbol(raw))
}
