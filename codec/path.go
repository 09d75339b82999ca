package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// FeeSize is the width in bytes of a fee entry in a packed path.
const FeeSize = 3

// MaxFee is the largest fee a uint24 can carry.
const MaxFee = 1<<24 - 1

// EncodePath packs token0 ‖ fee0 ‖ token1 ‖ … ‖ tokenN, the format the V3
// quoter and router take for multi-hop swaps.
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens, got %d", len(tokens))
	}
	if len(tokens) != len(fees)+1 {
		return nil, fmt.Errorf("path has %d tokens but %d fees", len(tokens), len(fees))
	}

	out := make([]byte, 0, len(tokens)*common.AddressLength+len(fees)*FeeSize)
	for i, tok := range tokens {
		out = append(out, tok.Bytes()...)
		if i == len(fees) {
			break
		}
		if fees[i] > MaxFee {
			return nil, fmt.Errorf("fee %d does not fit in uint24", fees[i])
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], fees[i])
		out = append(out, buf[1:]...)
	}
	return out, nil
}

// DecodePath is the inverse of EncodePath.
func DecodePath(path []byte) ([]common.Address, []uint32, error) {
	const hop = common.AddressLength + FeeSize
	if len(path) < common.AddressLength || (len(path)-common.AddressLength)%hop != 0 {
		return nil, nil, fmt.Errorf("invalid path length %d", len(path))
	}

	n := (len(path) - common.AddressLength) / hop
	tokens := make([]common.Address, 0, n+1)
	fees := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		off := i * hop
		tokens = append(tokens, common.BytesToAddress(path[off:off+common.AddressLength]))
		f := path[off+common.AddressLength : off+hop]
		fees = append(fees, uint32(f[0])<<16|uint32(f[1])<<8|uint32(f[2]))
	}
	tokens = append(tokens, common.BytesToAddress(path[len(path)-common.AddressLength:]))
	return tokens, fees, nil
}
