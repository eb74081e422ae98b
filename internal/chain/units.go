package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts a raw on-chain integer amount into a decimal using
// the token's decimal count.
func FromBaseUnits(raw *big.Int, decimals int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ToBaseUnits converts a decimal amount into the token's smallest unit,
// truncating any precision beyond the token's decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}
