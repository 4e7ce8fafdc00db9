package sweep

import (
	"math/big"

	"github.com/nvandessel/netsweep/internal/constants"
)

var seedModulus = big.NewInt(constants.SeedModulus)

// DeriveSeed returns the seed for the run at index: base × (index + 1)
// reduced modulo 2^30. The product is computed exactly and the result is
// never negative, so any base and index map into [0, 2^30).
func DeriveSeed(base int64, index int) int64 {
	n := new(big.Int).Mul(big.NewInt(base), big.NewInt(int64(index)+1))
	return n.Mod(n, seedModulus).Int64()
}
