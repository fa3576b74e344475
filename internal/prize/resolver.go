package prize

import (
	"fmt"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/shopspring/decimal"
)

// Canonical defaults applied when a tournament leaves a percentage unset.
var (
	DefaultCommissionPercentage = decimal.NewFromInt(10)
	DefaultFirstPrizePercentage = decimal.NewFromInt(40)
	DefaultPerKillPercentage    = decimal.NewFromInt(60)
)

// ResolveRule derives the effective payout rule of a tournament.
//
// An admin override with at least one entry replaces the percentage model
// entirely. Otherwise tournament fields are used, falling back to the
// canonical defaults, and the rule's firstPlacePercent (when positive) takes
// precedence over the tournament's first prize percentage.
func ResolveRule(t *domain.Tournament) (domain.EffectiveRule, error) {
	if t.EntryFee < 0 {
		return domain.EffectiveRule{}, domain.ErrInvalidRule(fmt.Sprintf("entry fee must not be negative, got %d", t.EntryFee))
	}
	if t.PrizePool != nil && (*t.PrizePool < 0 || *t.PrizePool > MaxAmount) {
		return domain.EffectiveRule{}, domain.ErrInvalidRule(fmt.Sprintf("prize pool out of range: %d", *t.PrizePool))
	}

	commission := orDefault(t.CompanyCommissionPercentage, DefaultCommissionPercentage)
	if err := domain.ValidatePercentage("company commission percentage", commission); err != nil {
		return domain.EffectiveRule{}, domain.ErrInvalidRule(err.Error())
	}

	rule := t.PrizeDistributionRule
	if rule != nil && rule.AdminOverride && len(rule.OverrideDistribution) > 0 {
		if err := ValidateOverride(rule.OverrideDistribution); err != nil {
			return domain.EffectiveRule{}, err
		}
		entries := make([]domain.OverrideEntry, len(rule.OverrideDistribution))
		copy(entries, rule.OverrideDistribution)
		return domain.EffectiveRule{
			Mode:                 domain.RuleOverride,
			CommissionPercentage: commission,
			FirstPrizePercentage: decimal.Zero,
			PerKillPercentage:    decimal.Zero,
			SquadSplit:           rule.SquadSplit,
			Override:             entries,
		}, nil
	}

	first := orDefault(t.FirstPrizePercentage, DefaultFirstPrizePercentage)
	if rule != nil && rule.FirstPlacePercent.IsPositive() {
		first = rule.FirstPlacePercent
	}
	perKill := orDefault(t.PerKillRewardPercentage, DefaultPerKillPercentage)

	if err := domain.ValidatePercentage("first prize percentage", first); err != nil {
		return domain.EffectiveRule{}, domain.ErrInvalidRule(err.Error())
	}
	if err := domain.ValidatePercentage("per kill reward percentage", perKill); err != nil {
		return domain.EffectiveRule{}, domain.ErrInvalidRule(err.Error())
	}
	if first.Add(perKill).GreaterThan(hundred) {
		return domain.EffectiveRule{}, domain.ErrInvalidRule(fmt.Sprintf(
			"first prize (%s%%) and per kill (%s%%) percentages exceed 100%%", first.String(), perKill.String()))
	}

	squad := false
	if rule != nil {
		squad = rule.SquadSplit
	}
	return domain.EffectiveRule{
		Mode:                 domain.RuleComputed,
		CommissionPercentage: commission,
		FirstPrizePercentage: first,
		PerKillPercentage:    perKill,
		SquadSplit:           squad,
	}, nil
}

// ValidateRule checks an admin-submitted rule before it is persisted.
func ValidateRule(rule *domain.PrizeDistributionRule) error {
	if rule == nil {
		return domain.ErrInvalidRule("rule is required")
	}
	if err := domain.ValidatePercentage("first place percentage", rule.FirstPlacePercent); err != nil {
		return domain.ErrInvalidRule(err.Error())
	}
	if rule.AdminOverride && len(rule.OverrideDistribution) == 0 {
		return domain.ErrInvalidRule("admin override requires at least one distribution entry")
	}
	if len(rule.OverrideDistribution) > 0 {
		return ValidateOverride(rule.OverrideDistribution)
	}
	return nil
}

// ValidateOverride checks an override distribution list.
func ValidateOverride(entries []domain.OverrideEntry) error {
	seen := make(map[int]bool, len(entries))
	total := decimal.Zero
	for i, e := range entries {
		if e.Position < 1 {
			return domain.ErrInvalidRule(fmt.Sprintf("override entry %d: position must be at least 1, got %d", i, e.Position))
		}
		if seen[e.Position] {
			return domain.ErrInvalidRule(fmt.Sprintf("override entry %d: duplicate position %d", i, e.Position))
		}
		seen[e.Position] = true

		if e.Amount < 0 || e.Amount > MaxAmount {
			return domain.ErrInvalidRule(fmt.Sprintf("override entry %d: amount out of range: %d", i, e.Amount))
		}
		if err := domain.ValidatePercentage(fmt.Sprintf("override entry %d percentage", i), e.Percentage); err != nil {
			return domain.ErrInvalidRule(err.Error())
		}
		if e.Amount == 0 && !e.Percentage.IsPositive() {
			return domain.ErrInvalidRule(fmt.Sprintf("override entry %d: needs a positive amount or percentage", i))
		}
		if e.Amount == 0 {
			total = total.Add(e.Percentage)
		}
	}
	if total.GreaterThan(hundred) {
		return domain.ErrInvalidRule(fmt.Sprintf("override percentages sum to %s%%, more than 100%%", total.String()))
	}
	return nil
}

func orDefault(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return *v
}
