package prize

import (
	"fmt"
	"sort"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prize type labels stored on distribution records.
const (
	PrizeFirstPlaceAndKills = "first_place_and_kills"
	PrizeFirstPlace         = "first_place"
	PrizeKillReward         = "kill_reward"
	PrizePositionAward      = "position_award"
)

// ComputeSettlement turns a tournament, its registrations and results into a
// payout plan. It performs no I/O. All amounts are floored to whole minor
// units, so in computed mode the sum of rewards never exceeds the prize pool.
func ComputeSettlement(t *domain.Tournament, registrations []domain.Registration, results []domain.Result, rule domain.EffectiveRule) (*domain.SettlementPlan, error) {
	totalFees, ok := mulAmount(len(registrations), t.EntryFee)
	if !ok {
		return nil, domain.ErrInvalidAmount(fmt.Sprintf("total entry fees overflow: %d x %d", len(registrations), t.EntryFee))
	}

	plan := &domain.SettlementPlan{
		TournamentID:   t.ID,
		Currency:       t.Currency,
		Mode:           rule.Mode,
		Registrations:  len(registrations),
		TotalEntryFees: totalFees,
		PerKillReward:  decimal.Zero,
	}
	plan.CompanyCommission = PercentOf(totalFees, rule.CommissionPercentage)
	if t.PrizePool != nil {
		plan.ActualPrizePool = *t.PrizePool
	} else {
		plan.ActualPrizePool = totalFees - plan.CompanyCommission
	}

	for _, r := range results {
		if r.Kills < 0 {
			return nil, domain.ErrInvalidAmount(fmt.Sprintf("result %s has negative kills", r.ID))
		}
		plan.TotalKills += r.Kills
	}

	ordered := make([]domain.Result, len(results))
	copy(ordered, results)
	sortResults(ordered)

	var payouts []domain.Payout
	switch rule.Mode {
	case domain.RuleOverride:
		payouts = overridePayouts(plan, ordered, rule)
	default:
		payouts = computedPayouts(plan, ordered, rule)
	}

	owners := make(map[uuid.UUID]uuid.UUID, len(registrations))
	for _, reg := range registrations {
		owners[reg.ID] = reg.UserID
	}

	var allocated int64
	for i := range payouts {
		p := &payouts[i]
		if p.UserID == nil {
			if owner, ok := owners[p.RegistrationID]; ok {
				id := owner
				p.UserID = &id
			}
		}
		allocated += p.Reward
		p.Payable = p.Reward > 0 && p.UserID != nil
		switch {
		case p.Payable:
			plan.TotalPayable += p.Reward
			plan.TotalKillRewards += p.ComponentTotal(domain.ComponentKillReward)
		case p.Reward > 0:
			plan.Unresolved = append(plan.Unresolved, *p)
		}
	}

	if rule.Mode == domain.RuleComputed && allocated > plan.ActualPrizePool {
		return nil, fmt.Errorf("allocated %d exceeds prize pool %d", allocated, plan.ActualPrizePool)
	}
	if plan.ActualPrizePool > plan.TotalPayable {
		plan.Breakage = plan.ActualPrizePool - plan.TotalPayable
	}
	plan.Payouts = payouts
	return plan, nil
}

func computedPayouts(plan *domain.SettlementPlan, results []domain.Result, rule domain.EffectiveRule) []domain.Payout {
	plan.FirstPrize = PercentOf(plan.ActualPrizePool, rule.FirstPrizePercentage)
	plan.KillPrizePool = PercentOf(plan.ActualPrizePool, rule.PerKillPercentage)
	if plan.TotalKills > 0 {
		plan.PerKillReward = decimal.NewFromInt(plan.KillPrizePool).
			Div(decimal.NewFromInt(int64(plan.TotalKills))).Truncate(4)
	}

	winners := 0
	for _, r := range results {
		if isPosition(r, 1) {
			winners++
		}
	}
	var firstShare int64
	if winners > 0 {
		firstShare = plan.FirstPrize / int64(winners)
	}

	payouts := make([]domain.Payout, 0, len(results))
	for _, r := range results {
		p := newPayout(r)
		if isPosition(r, 1) && firstShare > 0 {
			p.Breakdown = append(p.Breakdown, domain.RewardComponent{Type: domain.ComponentFirstPrize, Amount: firstShare})
		}
		if kill := ProRata(plan.KillPrizePool, r.Kills, plan.TotalKills); kill > 0 {
			p.Breakdown = append(p.Breakdown, domain.RewardComponent{Type: domain.ComponentKillReward, Amount: kill})
		}
		finish(&p)
		payouts = append(payouts, p)
	}
	return payouts
}

func overridePayouts(plan *domain.SettlementPlan, results []domain.Result, rule domain.EffectiveRule) []domain.Payout {
	holders := make(map[int]int)
	for _, r := range results {
		if r.Position != nil {
			holders[*r.Position]++
		}
	}

	awards := make(map[int]int64, len(rule.Override))
	for _, e := range rule.Override {
		amount := e.Amount
		if amount == 0 {
			amount = PercentOf(plan.ActualPrizePool, e.Percentage)
		}
		if rule.SquadSplit && holders[e.Position] > 1 {
			amount /= int64(holders[e.Position])
		}
		awards[e.Position] = amount
	}
	plan.FirstPrize = awards[1]

	payouts := make([]domain.Payout, 0, len(results))
	for _, r := range results {
		p := newPayout(r)
		if r.Position != nil {
			if amount := awards[*r.Position]; amount > 0 {
				p.Breakdown = append(p.Breakdown, domain.RewardComponent{Type: domain.ComponentPositionAward, Amount: amount})
			}
		}
		finish(&p)
		payouts = append(payouts, p)
	}
	return payouts
}

func newPayout(r domain.Result) domain.Payout {
	return domain.Payout{
		ResultID:       r.ID,
		RegistrationID: r.RegistrationID,
		UserID:         r.UserID,
		Position:       r.Position,
		Kills:          r.Kills,
		Breakdown:      []domain.RewardComponent{},
	}
}

func finish(p *domain.Payout) {
	var first, kill, award bool
	for _, c := range p.Breakdown {
		p.Reward += c.Amount
		switch c.Type {
		case domain.ComponentFirstPrize:
			first = true
		case domain.ComponentKillReward:
			kill = true
		case domain.ComponentPositionAward:
			award = true
		}
	}
	switch {
	case award:
		p.PrizeType = PrizePositionAward
	case first && kill:
		p.PrizeType = PrizeFirstPlaceAndKills
	case first:
		p.PrizeType = PrizeFirstPlace
	case kill:
		p.PrizeType = PrizeKillReward
	}
}
