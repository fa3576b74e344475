package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Money columns are numeric(15,0) minor units; percentages are numeric(5,2).
// pgtype.Numeric carries both as Int * 10^Exp.

// NumericToInt64 reads a money column. NULL, NaN, infinities, fractional
// values and values outside int64 are errors.
func NumericToInt64(n pgtype.Numeric) (int64, error) {
	d, err := finiteDecimal(n)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("numeric %s is not a whole number of minor units", d)
	}
	bi := d.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("numeric %s overflows int64", bi)
	}
	return bi.Int64(), nil
}

// Int64ToNumeric encodes minor units for a numeric(15,0) column.
func Int64ToNumeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(v), InfinityModifier: pgtype.Finite, Valid: true}
}

// NumericToInt64Ptr reads a nullable money column; NULL becomes nil.
func NumericToInt64Ptr(n pgtype.Numeric) (*int64, error) {
	if !n.Valid {
		return nil, nil
	}
	v, err := NumericToInt64(n)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Int64PtrToNumeric writes nil as NULL.
func Int64PtrToNumeric(v *int64) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return Int64ToNumeric(*v)
}

// NumericToDecimal reads a nullable percentage column; NULL and NaN become nil.
func NumericToDecimal(n pgtype.Numeric) *decimal.Decimal {
	d, err := finiteDecimal(n)
	if err != nil {
		return nil
	}
	return &d
}

// DecimalToNumeric writes nil as NULL.
func DecimalToNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{
		Int:              new(big.Int).Set(d.Coefficient()),
		Exp:              d.Exponent(),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

func finiteDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	switch {
	case !n.Valid:
		return decimal.Zero, fmt.Errorf("numeric value is NULL")
	case n.NaN:
		return decimal.Zero, fmt.Errorf("numeric value is NaN")
	case n.InfinityModifier != pgtype.Finite:
		return decimal.Zero, fmt.Errorf("numeric value is infinite")
	case n.Int == nil:
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
