package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleMode says how the payouts of a tournament are derived.
type RuleMode string

const (
	RuleComputed RuleMode = "computed"
	RuleOverride RuleMode = "override"
)

// EffectiveRule is the fully resolved set of percentages (or override list) for one tournament.
type EffectiveRule struct {
	Mode                 RuleMode        `json:"mode"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	FirstPrizePercentage decimal.Decimal `json:"first_prize_percentage"`
	PerKillPercentage    decimal.Decimal `json:"per_kill_percentage"`
	SquadSplit           bool            `json:"squad_split"`
	Override             []OverrideEntry `json:"override,omitempty"`
}

// Reward component types.
const (
	ComponentFirstPrize    = "first_prize"
	ComponentKillReward    = "kill_reward"
	ComponentPositionAward = "position_award"
)

// RewardComponent is one non-zero part of a winner's reward.
type RewardComponent struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

// Payout is the computed reward for a single result.
type Payout struct {
	ResultID       uuid.UUID         `json:"result_id"`
	RegistrationID uuid.UUID         `json:"registration_id"`
	UserID         *uuid.UUID        `json:"user_id,omitempty"`
	Position       *int              `json:"position,omitempty"`
	Kills          int               `json:"kills"`
	Reward         int64             `json:"reward"`
	PrizeType      string            `json:"prize_type,omitempty"`
	Breakdown      []RewardComponent `json:"breakdown"`
	Payable        bool              `json:"payable"`
}

// ComponentTotal sums the breakdown entries of one component type.
func (p Payout) ComponentTotal(typ string) int64 {
	var sum int64
	for _, c := range p.Breakdown {
		if c.Type == typ {
			sum += c.Amount
		}
	}
	return sum
}

// SettlementPlan is the pure output of the calculator.
type SettlementPlan struct {
	TournamentID      uuid.UUID       `json:"tournament_id"`
	Currency          string          `json:"currency"`
	Mode              RuleMode        `json:"mode"`
	Registrations     int             `json:"registrations"`
	TotalEntryFees    int64           `json:"total_entry_fees"`
	CompanyCommission int64           `json:"company_commission"`
	ActualPrizePool   int64           `json:"actual_prize_pool"`
	FirstPrize        int64           `json:"first_prize"`
	KillPrizePool     int64           `json:"kill_prize_pool"`
	TotalKills        int             `json:"total_kills"`
	PerKillReward     decimal.Decimal `json:"per_kill_reward"`
	TotalPayable      int64           `json:"total_payable"`
	TotalKillRewards  int64           `json:"total_kill_rewards"`
	Breakage          int64           `json:"breakage"`
	Payouts           []Payout        `json:"payouts"`
	Unresolved        []Payout        `json:"unresolved,omitempty"`
}

// DistributionStatus of a distribution record.
type DistributionStatus string

const DistributionCompleted DistributionStatus = "completed"

// DistributionRecord is an append-only audit row for one credited prize.
type DistributionRecord struct {
	ID             uuid.UUID          `json:"id"`
	TournamentID   uuid.UUID          `json:"tournament_id"`
	UserID         uuid.UUID          `json:"user_id"`
	RegistrationID uuid.UUID          `json:"registration_id"`
	ResultID       uuid.UUID          `json:"result_id"`
	Position       *int               `json:"position,omitempty"`
	Kills          int                `json:"kills"`
	PrizeAmount    int64              `json:"prize_amount"`
	PrizeType      string             `json:"prize_type"`
	Status         DistributionStatus `json:"status"`
	TransactionID  uuid.UUID          `json:"transaction_id"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Skip reasons for winners that could not be paid.
const (
	SkipUserNotFound     = "user_not_found"
	SkipCurrencyMismatch = "currency_mismatch"
	SkipUnresolvedUser   = "unresolved_user"
)

// SkippedWinner is a positive reward that was not credited.
type SkippedWinner struct {
	ResultID uuid.UUID  `json:"result_id"`
	UserID   *uuid.UUID `json:"user_id,omitempty"`
	Amount   int64      `json:"amount"`
	Reason   string     `json:"reason"`
}

// WinnerRef identifies the first-place winner in a summary.
type WinnerRef struct {
	UserID uuid.UUID `json:"user_id"`
	Amount int64     `json:"amount"`
}

// DistributionSummary is returned by a successful settlement.
type DistributionSummary struct {
	TournamentID     uuid.UUID            `json:"tournament_id"`
	Mode             RuleMode             `json:"mode"`
	Distributions    []DistributionRecord `json:"distributions"`
	TotalDistributed int64                `json:"total_distributed"`
	FirstPlaceWinner *WinnerRef           `json:"first_place_winner,omitempty"`
	TotalKillRewards int64                `json:"total_kill_rewards"`
	ActualPrizePool  int64                `json:"actual_prize_pool"`
	Breakage         int64                `json:"breakage"`
	Skipped          []SkippedWinner      `json:"skipped"`
	DistributedAt    time.Time            `json:"distributed_at"`
}

// DistributionPreview is the dry-run response for a tournament.
type DistributionPreview struct {
	Tournament        *Tournament     `json:"tournament"`
	Rule              EffectiveRule   `json:"rule"`
	Plan              *SettlementPlan `json:"plan"`
	PrizesDistributed bool            `json:"prizes_distributed"`
}

// Notification is delivered to a user after settlement commits.
type Notification struct {
	UserID  uuid.UUID      `json:"user_id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Data    map[string]any `json:"data,omitempty"`
}
