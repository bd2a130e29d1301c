package bet

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PriceExponent é o expoente do ponto fixo usado nos campos de preço on-chain (i64 * 10^-8)
const PriceExponent = -8

var (
	maxMantissa = decimal.NewFromInt(math.MaxInt64)
	minMantissa = decimal.NewFromInt(math.MinInt64)
)

// PriceFromWire converte a mantissa on-chain para decimal
func PriceFromWire(mantissa int64) decimal.Decimal {
	return decimal.New(mantissa, PriceExponent)
}

// PriceToWire converte um preço decimal para a mantissa on-chain.
// Falha se o preço tiver mais casas do que o ponto fixo suporta ou não couber em i64.
func PriceToWire(p decimal.Decimal) (int64, error) {
	shifted := p.Shift(-PriceExponent)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("price %s exceeds %d decimal places", p, -PriceExponent)
	}
	if shifted.GreaterThan(maxMantissa) || shifted.LessThan(minMantissa) {
		return 0, fmt.Errorf("price %s out of range", p)
	}
	return shifted.IntPart(), nil
}
