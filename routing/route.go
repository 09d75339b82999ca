// Package routing finds the best path through one venue and caches it.
package routing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/RaghavSood/dexswap/codec"
)

// Hop is one leg of a stable/volatile router route.
type Hop struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Stable  bool           `json:"stable"`
	Factory common.Address `json:"factory"`
}

// Route is a concrete path through one venue and its quoted output.
//
// Path and Fees are always set (len(Path) == len(Fees)+1). Exactly one
// venue-native form is carried: Path itself for constant-product routes,
// otherwise the single non-empty one of EncodedPath, PoolKey, PathSegments
// and Hops.
type Route struct {
	AmountOut    *big.Int         `json:"amount_out"`
	Path         []common.Address `json:"path"`
	Fees         []uint32         `json:"fees"`
	EncodedPath  hexutil.Bytes    `json:"encoded_path,omitempty"`
	PoolKey      *codec.PoolKey   `json:"pool_key,omitempty"`
	PathSegments []codec.PathKey  `json:"path_segments,omitempty"`
	Hops         []Hop            `json:"hops,omitempty"`
}

// NumHops is the number of pools the route crosses.
func (r Route) NumHops() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

// IsZero reports whether the route found no output.
func (r Route) IsZero() bool {
	return r.AmountOut == nil || r.AmountOut.Sign() <= 0
}

// Validate checks the shape invariants. A route with none of the extra
// forms is a constant-product route whose native form is Path.
func (r Route) Validate() error {
	if len(r.Path) < 2 {
		return fmt.Errorf("route path has %d tokens", len(r.Path))
	}
	if len(r.Path) != len(r.Fees)+1 {
		return fmt.Errorf("route has %d tokens but %d fees", len(r.Path), len(r.Fees))
	}
	forms := 0
	if len(r.EncodedPath) > 0 {
		forms++
	}
	if r.PoolKey != nil {
		forms++
	}
	if len(r.PathSegments) > 0 {
		forms++
	}
	if len(r.Hops) > 0 {
		forms++
	}
	if forms > 1 {
		return fmt.Errorf("route carries %d venue-native forms", forms)
	}
	return nil
}

// Clone returns a deep copy sharing no mutable state with r.
func (r Route) Clone() Route {
	out := Route{
		Path: append([]common.Address(nil), r.Path...),
		Fees: append([]uint32(nil), r.Fees...),
	}
	if r.AmountOut != nil {
		out.AmountOut = new(big.Int).Set(r.AmountOut)
	}
	if r.EncodedPath != nil {
		out.EncodedPath = append(hexutil.Bytes(nil), r.EncodedPath...)
	}
	if r.PoolKey != nil {
		k := *r.PoolKey
		out.PoolKey = &k
	}
	if r.PathSegments != nil {
		out.PathSegments = make([]codec.PathKey, len(r.PathSegments))
		for i, p := range r.PathSegments {
			p.HookData = append([]byte(nil), p.HookData...)
			out.PathSegments[i] = p
		}
	}
	if r.Hops != nil {
		out.Hops = append([]Hop(nil), r.Hops...)
	}
	return out
}
