package prize

import (
	"math"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest value a numeric(15,0) money column can hold.
const MaxAmount int64 = 999_999_999_999_999

var hundred = decimal.NewFromInt(100)

// PercentOf returns floor(amount * pct / 100). amount must be non-negative.
func PercentOf(amount int64, pct decimal.Decimal) int64 {
	if amount <= 0 || !pct.IsPositive() {
		return 0
	}
	return FloorDiv(decimal.NewFromInt(amount).Mul(pct), hundred)
}

// FloorDiv returns floor(num / den) for non-negative operands, or 0 when den is zero.
func FloorDiv(num, den decimal.Decimal) int64 {
	if den.IsZero() {
		return 0
	}
	q, _ := num.QuoRem(den, 0)
	return q.IntPart()
}

// ProRata returns floor(total * part / whole).
func ProRata(total int64, part, whole int) int64 {
	if whole <= 0 || part <= 0 || total <= 0 {
		return 0
	}
	return FloorDiv(decimal.NewFromInt(total).Mul(decimal.NewFromInt(int64(part))), decimal.NewFromInt(int64(whole)))
}

// mulAmount multiplies a count by a per-unit amount, reporting overflow.
func mulAmount(count int, unit int64) (int64, bool) {
	if count == 0 || unit == 0 {
		return 0, true
	}
	if unit > math.MaxInt64/int64(count) {
		return 0, false
	}
	v := int64(count) * unit
	return v, v <= MaxAmount
}
