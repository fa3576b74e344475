package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TournamentStatus is the lifecycle state of a tournament.
type TournamentStatus string

const (
	TournamentDraft     TournamentStatus = "draft"
	TournamentUpcoming  TournamentStatus = "upcoming"
	TournamentLive      TournamentStatus = "live"
	TournamentCompleted TournamentStatus = "completed"
	TournamentCancelled TournamentStatus = "cancelled"
)

// Tournament represents a tournaments row. Money is in minor units.
type Tournament struct {
	ID                          uuid.UUID              `json:"id"`
	Name                        string                 `json:"name"`
	Currency                    string                 `json:"currency"`
	Status                      TournamentStatus       `json:"status"`
	EntryFee                    int64                  `json:"entry_fee"`
	PrizePool                   *int64                 `json:"prize_pool,omitempty"`
	CompanyCommissionPercentage *decimal.Decimal       `json:"company_commission_percentage,omitempty"`
	FirstPrizePercentage        *decimal.Decimal       `json:"first_prize_percentage,omitempty"`
	PerKillRewardPercentage     *decimal.Decimal       `json:"per_kill_reward_percentage,omitempty"`
	PrizeDistributionRule       *PrizeDistributionRule `json:"prize_distribution_rule,omitempty"`
	PrizesDistributed           bool                   `json:"prizes_distributed"`
	PrizesDistributedAt         *time.Time             `json:"prizes_distributed_at,omitempty"`
	TotalDistributed            int64                  `json:"total_distributed"`
	CreatedAt                   time.Time              `json:"created_at"`
	UpdatedAt                   time.Time              `json:"updated_at"`
}

// PrizeDistributionRule is the admin-editable rule stored as JSON on the tournament.
type PrizeDistributionRule struct {
	FirstPlacePercent    decimal.Decimal `json:"firstPlacePercent"`
	SquadSplit           bool            `json:"squadSplit"`
	AdminOverride        bool            `json:"adminOverride"`
	OverrideDistribution []OverrideEntry `json:"overrideDistribution,omitempty"`
}

// OverrideEntry pays a fixed amount, or a share of the pool, to a finishing position.
type OverrideEntry struct {
	Position   int             `json:"position"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     int64           `json:"amount"`
}

// PaymentStatus of a registration.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Registration represents a registrations row.
type Registration struct {
	ID            uuid.UUID     `json:"id"`
	TournamentID  uuid.UUID     `json:"tournament_id"`
	UserID        uuid.UUID     `json:"user_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// RewardStatus tracks whether a result's reward has been credited.
type RewardStatus string

const (
	RewardUnpaid RewardStatus = "unpaid"
	RewardPaid   RewardStatus = "paid"
)

// Result represents a results row: one participant's placement in a tournament.
type Result struct {
	ID             uuid.UUID    `json:"id"`
	TournamentID   uuid.UUID    `json:"tournament_id"`
	RegistrationID uuid.UUID    `json:"registration_id"`
	UserID         *uuid.UUID   `json:"user_id,omitempty"`
	Position       *int         `json:"position,omitempty"`
	Kills          int          `json:"kills"`
	Reward         int64        `json:"reward"`
	RewardStatus   RewardStatus `json:"reward_status"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ResultReward is the write applied to a result row during settlement.
type ResultReward struct {
	ResultID     uuid.UUID
	Reward       int64
	RewardStatus RewardStatus
}
