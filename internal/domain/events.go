package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names an outbox event. The relay publishes each type to the
// topic "arena.<type>".
type EventType string

const (
	EventTransactionPosted EventType = "wallet.transaction.posted"
	EventPrizesDistributed EventType = "tournament.prizes.distributed"
	EventPrizeRuleUpdated  EventType = "tournament.prize_rule.updated"
)

// AggregateType is the entity an event belongs to.
type AggregateType string

const (
	AggregateWallet     AggregateType = "wallet"
	AggregateTournament AggregateType = "tournament"
)

// OutboxDraft is one row of event_outbox. SeqID is assigned by the store
// and orders publication.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// newDraft keys the event by its aggregate so one wallet or tournament
// always lands on the same partition.
func newDraft(kind AggregateType, id string, typ EventType, payload any, at time.Time) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: kind,
		AggregateID:   id,
		EventType:     typ,
		PartitionKey:  id,
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    at,
	}
}

// NewTransactionPostedEvent carries a full ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	return newDraft(AggregateWallet, tx.UserID.String(), EventTransactionPosted, tx, time.Now())
}

// NewPrizesDistributedEvent records a committed tournament settlement.
func NewPrizesDistributedEvent(summary *DistributionSummary) OutboxDraft {
	return newDraft(AggregateTournament, summary.TournamentID.String(), EventPrizesDistributed, map[string]any{
		"tournament_id":      summary.TournamentID.String(),
		"mode":               summary.Mode,
		"total_distributed":  summary.TotalDistributed,
		"total_kill_rewards": summary.TotalKillRewards,
		"actual_prize_pool":  summary.ActualPrizePool,
		"winners":            len(summary.Distributions),
		"skipped":            summary.Skipped,
	}, summary.DistributedAt)
}

// NewPrizeRuleUpdatedEvent records an admin change to a tournament's prize rule.
func NewPrizeRuleUpdatedEvent(tournamentID uuid.UUID, rule *PrizeDistributionRule, actor string) OutboxDraft {
	return newDraft(AggregateTournament, tournamentID.String(), EventPrizeRuleUpdated, map[string]any{
		"tournament_id": tournamentID.String(),
		"rule":          rule,
		"actor":         actor,
	}, time.Now())
}
