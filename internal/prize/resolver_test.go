package prize

import (
	"testing"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestResolveRule_Defaults(t *testing.T) {
	rule, err := ResolveRule(&domain.Tournament{EntryFee: 100, Currency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, domain.RuleComputed, rule.Mode)
	assert.True(t, rule.CommissionPercentage.Equal(decimal.NewFromInt(10)))
	assert.True(t, rule.FirstPrizePercentage.Equal(decimal.NewFromInt(40)))
	assert.True(t, rule.PerKillPercentage.Equal(decimal.NewFromInt(60)))
}

func TestResolveRule_TournamentFields(t *testing.T) {
	rule, err := ResolveRule(&domain.Tournament{
		CompanyCommissionPercentage: pct("12.5"),
		FirstPrizePercentage:        pct("50"),
		PerKillRewardPercentage:     pct("25.25"),
	})
	require.NoError(t, err)

	assert.Equal(t, "12.5", rule.CommissionPercentage.String())
	assert.Equal(t, "50", rule.FirstPrizePercentage.String())
	assert.Equal(t, "25.25", rule.PerKillPercentage.String())
}

func TestResolveRule_FirstPlacePercentFromRule(t *testing.T) {
	rule, err := ResolveRule(&domain.Tournament{
		FirstPrizePercentage: pct("30"),
		PrizeDistributionRule: &domain.PrizeDistributionRule{
			FirstPlacePercent: decimal.NewFromInt(35),
			SquadSplit:        true,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "35", rule.FirstPrizePercentage.String())
	assert.True(t, rule.SquadSplit)
}

func TestResolveRule_OverrideTakesPrecedence(t *testing.T) {
	entries := []domain.OverrideEntry{{Position: 1, Amount: 500}, {Position: 2, Amount: 200}}
	rule, err := ResolveRule(&domain.Tournament{
		FirstPrizePercentage:    pct("90"),
		PerKillRewardPercentage: pct("90"), // ignored under override
		PrizeDistributionRule: &domain.PrizeDistributionRule{
			AdminOverride:        true,
			OverrideDistribution: entries,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RuleOverride, rule.Mode)
	assert.Equal(t, entries, rule.Override)
	assert.True(t, rule.FirstPrizePercentage.IsZero())
}

func TestResolveRule_OverrideFlagWithoutEntriesFallsBack(t *testing.T) {
	rule, err := ResolveRule(&domain.Tournament{
		PrizeDistributionRule: &domain.PrizeDistributionRule{AdminOverride: true},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RuleComputed, rule.Mode)
}

func TestResolveRule_Invalid(t *testing.T) {
	neg := int64(-1)
	tests := []struct {
		name string
		t    domain.Tournament
	}{
		{"first plus kill above 100", domain.Tournament{FirstPrizePercentage: pct("50"), PerKillRewardPercentage: pct("60")}},
		{"rule first plus default kill above 100", domain.Tournament{PrizeDistributionRule: &domain.PrizeDistributionRule{FirstPlacePercent: decimal.NewFromInt(41)}}},
		{"negative commission", domain.Tournament{CompanyCommissionPercentage: pct("-1")}},
		{"commission above 100", domain.Tournament{CompanyCommissionPercentage: pct("100.01")}},
		{"three decimals", domain.Tournament{FirstPrizePercentage: pct("10.125")}},
		{"negative entry fee", domain.Tournament{EntryFee: -5}},
		{"negative prize pool", domain.Tournament{PrizePool: &neg}},
		{"override duplicate position", domain.Tournament{PrizeDistributionRule: &domain.PrizeDistributionRule{
			AdminOverride:        true,
			OverrideDistribution: []domain.OverrideEntry{{Position: 1, Amount: 10}, {Position: 1, Amount: 5}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveRule(&tt.t)
			require.Error(t, err)
			assert.True(t, domain.HasCode(err, domain.CodeInvalidRule), "got %v", err)
		})
	}
}

func TestResolveRule_ExactlyHundredIsValid(t *testing.T) {
	_, err := ResolveRule(&domain.Tournament{FirstPrizePercentage: pct("40"), PerKillRewardPercentage: pct("60")})
	assert.NoError(t, err)
}

func TestValidateOverride(t *testing.T) {
	tests := []struct {
		name    string
		entries []domain.OverrideEntry
		wantErr string
	}{
		{"amounts", []domain.OverrideEntry{{Position: 1, Amount: 500}, {Position: 2, Amount: 200}}, ""},
		{"percentages", []domain.OverrideEntry{{Position: 1, Percentage: decimal.NewFromInt(70)}, {Position: 2, Percentage: decimal.NewFromInt(30)}}, ""},
		{"position zero", []domain.OverrideEntry{{Position: 0, Amount: 1}}, "position must be at least 1"},
		{"negative amount", []domain.OverrideEntry{{Position: 1, Amount: -1}}, "amount out of range"},
		{"empty entry", []domain.OverrideEntry{{Position: 1}}, "needs a positive amount or percentage"},
		{"percent sum above 100", []domain.OverrideEntry{{Position: 1, Percentage: decimal.NewFromInt(70)}, {Position: 2, Percentage: decimal.NewFromInt(31)}}, "more than 100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOverride(tt.entries)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRule(t *testing.T) {
	require.Error(t, ValidateRule(nil))
	require.Error(t, ValidateRule(&domain.PrizeDistributionRule{AdminOverride: true}))
	require.Error(t, ValidateRule(&domain.PrizeDistributionRule{FirstPlacePercent: decimal.NewFromInt(101)}))
	require.NoError(t, ValidateRule(&domain.PrizeDistributionRule{FirstPlacePercent: decimal.NewFromInt(45), SquadSplit: true}))
}
