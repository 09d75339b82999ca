package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavSood/dexswap/swaps"
)

func TestParseIntent(t *testing.T) {
	intent, err := parseIntent("base", "Native", "eth", "0.5", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	require.NoError(t, err)
	assert.Equal(t, swaps.InputNative, intent.InputKind)
	assert.Equal(t, swaps.NativeToken, intent.InputToken)

	_, err = parseIntent("base", "token", "usdc", "1", "native")
	assert.Error(t, err)

	_, err = parseIntent("base", "native", "native", "-1", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	assert.Error(t, err)
}
