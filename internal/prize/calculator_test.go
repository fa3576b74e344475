package prize

import (
	"testing"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

type fixture struct {
	tournament    *domain.Tournament
	registrations []domain.Registration
	results       []domain.Result
}

// newFixture registers n players; results are attached with addResult.
func newFixture(n int, entryFee int64) *fixture {
	f := &fixture{tournament: &domain.Tournament{
		ID:       uuid.New(),
		Currency: "USD",
		Status:   domain.TournamentCompleted,
		EntryFee: entryFee,
	}}
	for i := 0; i < n; i++ {
		f.registrations = append(f.registrations, domain.Registration{
			ID:            uuid.New(),
			TournamentID:  f.tournament.ID,
			UserID:        uuid.New(),
			PaymentStatus: domain.PaymentPaid,
		})
	}
	return f
}

func (f *fixture) addResult(regIdx int, position *int, kills int) domain.Result {
	reg := f.registrations[regIdx]
	uid := reg.UserID
	r := domain.Result{
		ID:             uuid.New(),
		TournamentID:   f.tournament.ID,
		RegistrationID: reg.ID,
		UserID:         &uid,
		Position:       position,
		Kills:          kills,
		RewardStatus:   domain.RewardUnpaid,
	}
	f.results = append(f.results, r)
	return r
}

func (f *fixture) compute(t *testing.T) *domain.SettlementPlan {
	t.Helper()
	rule, err := ResolveRule(f.tournament)
	require.NoError(t, err)
	plan, err := ComputeSettlement(f.tournament, f.registrations, f.results, rule)
	require.NoError(t, err)
	return plan
}

func payoutFor(t *testing.T, plan *domain.SettlementPlan, resultID uuid.UUID) domain.Payout {
	t.Helper()
	for _, p := range plan.Payouts {
		if p.ResultID == resultID {
			return p
		}
	}
	t.Fatalf("no payout for result %s", resultID)
	return domain.Payout{}
}

func TestComputeSettlement_DefaultPercentages(t *testing.T) {
	f := newFixture(10, 100)
	a := f.addResult(0, intPtr(1), 5)
	b := f.addResult(1, intPtr(2), 1)

	plan := f.compute(t)

	assert.Equal(t, int64(1000), plan.TotalEntryFees)
	assert.Equal(t, int64(100), plan.CompanyCommission)
	assert.Equal(t, int64(900), plan.ActualPrizePool)
	assert.Equal(t, int64(360), plan.FirstPrize)
	assert.Equal(t, int64(540), plan.KillPrizePool)
	assert.Equal(t, 6, plan.TotalKills)
	assert.Equal(t, "90", plan.PerKillReward.String())

	pa := payoutFor(t, plan, a.ID)
	assert.Equal(t, int64(810), pa.Reward)
	assert.Equal(t, PrizeFirstPlaceAndKills, pa.PrizeType)
	if diff := cmp.Diff([]domain.RewardComponent{
		{Type: domain.ComponentFirstPrize, Amount: 360},
		{Type: domain.ComponentKillReward, Amount: 450},
	}, pa.Breakdown); diff != "" {
		t.Errorf("breakdown mismatch (-want +got):\n%s", diff)
	}

	pb := payoutFor(t, plan, b.ID)
	assert.Equal(t, int64(90), pb.Reward)
	assert.Equal(t, PrizeKillReward, pb.PrizeType)

	assert.Equal(t, int64(900), plan.TotalPayable)
	assert.Equal(t, int64(540), plan.TotalKillRewards)
	assert.Equal(t, int64(0), plan.Breakage)
}

func TestComputeSettlement_OverrideIgnoresPercentages(t *testing.T) {
	f := newFixture(3, 1)
	f.tournament.PrizeDistributionRule = &domain.PrizeDistributionRule{
		AdminOverride: true,
		OverrideDistribution: []domain.OverrideEntry{
			{Position: 1, Amount: 500},
			{Position: 2, Amount: 200},
		},
	}
	first := f.addResult(0, intPtr(1), 9)
	second := f.addResult(1, intPtr(2), 0)
	third := f.addResult(2, intPtr(3), 4)

	plan := f.compute(t)

	assert.Equal(t, domain.RuleOverride, plan.Mode)
	assert.Equal(t, int64(500), payoutFor(t, plan, first.ID).Reward)
	assert.Equal(t, int64(200), payoutFor(t, plan, second.ID).Reward)
	assert.Equal(t, int64(0), payoutFor(t, plan, third.ID).Reward)
	assert.False(t, payoutFor(t, plan, third.ID).Payable)
	assert.Equal(t, PrizePositionAward, payoutFor(t, plan, first.ID).PrizeType)
	assert.Equal(t, int64(700), plan.TotalPayable)
	assert.Equal(t, int64(0), plan.TotalKillRewards)
}

func TestComputeSettlement_OverridePercentageOfPool(t *testing.T) {
	f := newFixture(4, 250) // pool = 1000 - 100 = 900
	f.tournament.PrizeDistributionRule = &domain.PrizeDistributionRule{
		AdminOverride: true,
		OverrideDistribution: []domain.OverrideEntry{
			{Position: 1, Percentage: decimal.RequireFromString("33.33")},
		},
	}
	r := f.addResult(0, intPtr(1), 0)

	plan := f.compute(t)
	assert.Equal(t, int64(299), payoutFor(t, plan, r.ID).Reward) // floor(900 * 33.33 / 100)
}

func TestComputeSettlement_SquadSplit(t *testing.T) {
	f := newFixture(4, 100)
	f.tournament.PrizeDistributionRule = &domain.PrizeDistributionRule{
		AdminOverride:        true,
		SquadSplit:           true,
		OverrideDistribution: []domain.OverrideEntry{{Position: 1, Amount: 1000}},
	}
	a := f.addResult(0, intPtr(1), 0)
	b := f.addResult(1, intPtr(1), 0)
	c := f.addResult(2, intPtr(1), 0)

	plan := f.compute(t)
	for _, r := range []domain.Result{a, b, c} {
		assert.Equal(t, int64(333), payoutFor(t, plan, r.ID).Reward)
	}
}

func TestComputeSettlement_TiedFirstPlaceSplitsPrize(t *testing.T) {
	f := newFixture(10, 100)
	a := f.addResult(0, intPtr(1), 0)
	b := f.addResult(1, intPtr(1), 0)

	plan := f.compute(t)
	assert.Equal(t, int64(180), payoutFor(t, plan, a.ID).Reward)
	assert.Equal(t, int64(180), payoutFor(t, plan, b.ID).Reward)
	assert.LessOrEqual(t, plan.TotalPayable, plan.ActualPrizePool)
}

func TestComputeSettlement_ZeroKills(t *testing.T) {
	f := newFixture(10, 100)
	winner := f.addResult(0, intPtr(1), 0)
	other := f.addResult(1, intPtr(2), 0)

	plan := f.compute(t)

	assert.Equal(t, 0, plan.TotalKills)
	assert.True(t, plan.PerKillReward.IsZero())
	assert.Equal(t, int64(360), payoutFor(t, plan, winner.ID).Reward)
	assert.Equal(t, int64(0), payoutFor(t, plan, other.ID).Reward)
	assert.Equal(t, int64(540), plan.Breakage)
}

func TestComputeSettlement_NoRegistrations(t *testing.T) {
	f := newFixture(0, 100)
	f.results = []domain.Result{{ID: uuid.New(), Position: intPtr(1), Kills: 3}}

	plan := f.compute(t)

	assert.Equal(t, int64(0), plan.ActualPrizePool)
	assert.Equal(t, int64(0), plan.TotalPayable)
	for _, p := range plan.Payouts {
		assert.Equal(t, int64(0), p.Reward)
		assert.False(t, p.Payable)
	}
}

func TestComputeSettlement_AdminPrizePool(t *testing.T) {
	f := newFixture(2, 100)
	pool := int64(5000)
	f.tournament.PrizePool = &pool
	r := f.addResult(0, intPtr(1), 0)

	plan := f.compute(t)
	assert.Equal(t, int64(5000), plan.ActualPrizePool)
	assert.Equal(t, int64(2000), payoutFor(t, plan, r.ID).Reward)
}

func TestComputeSettlement_ResolvesUserFromRegistration(t *testing.T) {
	f := newFixture(10, 100)
	r := f.addResult(0, intPtr(1), 0)
	f.results[0].UserID = nil

	plan := f.compute(t)
	p := payoutFor(t, plan, r.ID)
	require.NotNil(t, p.UserID)
	assert.Equal(t, f.registrations[0].UserID, *p.UserID)
	assert.True(t, p.Payable)
}

func TestComputeSettlement_UnresolvedUser(t *testing.T) {
	f := newFixture(10, 100)
	f.results = append(f.results, domain.Result{ID: uuid.New(), RegistrationID: uuid.New(), Position: intPtr(1)})

	plan := f.compute(t)
	require.Len(t, plan.Unresolved, 1)
	assert.Equal(t, int64(360), plan.Unresolved[0].Reward)
	assert.Equal(t, int64(0), plan.TotalPayable)
}

func TestComputeSettlement_NegativeKillsRejected(t *testing.T) {
	f := newFixture(2, 100)
	f.addResult(0, intPtr(1), -1)

	rule, err := ResolveRule(f.tournament)
	require.NoError(t, err)
	_, err = ComputeSettlement(f.tournament, f.registrations, f.results, rule)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidAmount))
}

func TestComputeSettlement_PayoutOrder(t *testing.T) {
	f := newFixture(4, 100)
	unplaced := f.addResult(0, nil, 7)
	third := f.addResult(1, intPtr(3), 1)
	first := f.addResult(2, intPtr(1), 0)

	plan := f.compute(t)
	require.Len(t, plan.Payouts, 3)
	assert.Equal(t, first.ID, plan.Payouts[0].ResultID)
	assert.Equal(t, third.ID, plan.Payouts[1].ResultID)
	assert.Equal(t, unplaced.ID, plan.Payouts[2].ResultID)
}

func TestComputeSettlement_ConservationProperty(t *testing.T) {
	for i := 0; i < 200; i++ {
		n := gofakeit.Number(0, 60)
		f := newFixture(n, int64(gofakeit.Number(0, 100_000)))
		f.tournament.CompanyCommissionPercentage = pct(decimal.NewFromInt(int64(gofakeit.Number(0, 10_000))).Shift(-2).String())
		first := int64(gofakeit.Number(0, 10_000))
		f.tournament.FirstPrizePercentage = pct(decimal.NewFromInt(first).Shift(-2).String())
		f.tournament.PerKillRewardPercentage = pct(decimal.NewFromInt(int64(gofakeit.Number(0, int(10_000-first)))).Shift(-2).String())

		for j := 0; j < n; j++ {
			var pos *int
			if gofakeit.Bool() {
				pos = intPtr(gofakeit.Number(1, 5))
			}
			f.addResult(j, pos, gofakeit.Number(0, 20))
		}

		plan := f.compute(t)

		var sum int64
		for _, p := range plan.Payouts {
			require.GreaterOrEqual(t, p.Reward, int64(0))
			sum += p.Reward
		}
		require.LessOrEqual(t, sum, plan.ActualPrizePool, "iteration %d", i)
		require.Equal(t, plan.ActualPrizePool, plan.TotalPayable+plan.Breakage, "iteration %d", i)
	}
}
