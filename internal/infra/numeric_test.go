package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numeric(coef int64, exp int32) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(coef), Exp: exp, Valid: true}
}

func TestNumericToInt64(t *testing.T) {
	overflow := new(big.Int).Add(big.NewInt(math.MaxInt64), big.NewInt(1))

	tests := []struct {
		name    string
		in      pgtype.Numeric
		want    int64
		wantErr string
	}{
		{"zero", Int64ToNumeric(0), 0, ""},
		{"prize pool", Int64ToNumeric(900), 900, ""},
		{"negative adjustment", Int64ToNumeric(-40), -40, ""},
		{"numeric(15,0) max", Int64ToNumeric(999_999_999_999_999), 999_999_999_999_999, ""},
		{"positive exponent", numeric(63, 1), 630, ""},
		{"trailing zero fraction", numeric(18000, -2), 180, ""},
		{"fractional minor units", numeric(50099, -2), 0, "whole number"},
		{"overflow", pgtype.Numeric{Int: overflow, Valid: true}, 0, "overflows"},
		{"null", pgtype.Numeric{}, 0, "NULL"},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, 0, "NaN"},
		{"infinity", pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}, 0, "infinite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NumericToInt64(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInt64ToNumeric_Extremes(t *testing.T) {
	for _, v := range []int64{math.MaxInt64, math.MinInt64} {
		got, err := NumericToInt64(Int64ToNumeric(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestNullableAmounts(t *testing.T) {
	v, err := NumericToInt64Ptr(pgtype.Numeric{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NumericToInt64Ptr(Int64ToNumeric(4200))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(4200), *v)

	_, err = NumericToInt64Ptr(numeric(1, -1))
	assert.Error(t, err)

	assert.False(t, Int64PtrToNumeric(nil).Valid)
	pool := int64(900)
	assert.True(t, Int64PtrToNumeric(&pool).Valid)
}

func TestPercentColumns(t *testing.T) {
	// numeric(5,2) 12.50 arrives as 1250 * 10^-2
	got := NumericToDecimal(numeric(1250, -2))
	require.NotNil(t, got)
	assert.Equal(t, "12.5", got.String())

	assert.Nil(t, NumericToDecimal(pgtype.Numeric{}))
	assert.Nil(t, NumericToDecimal(pgtype.Numeric{NaN: true, Valid: true}))
	assert.False(t, DecimalToNumeric(nil).Valid)

	for _, s := range []string{"0", "10", "40", "33.33", "100"} {
		d := decimal.RequireFromString(s)
		back := NumericToDecimal(DecimalToNumeric(&d))
		require.NotNil(t, back, s)
		assert.True(t, d.Equal(*back), "want %s got %s", s, back)
	}
}
