package repository

import (
	"context"
	"fmt"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `"eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "headers", "payload", "occurredAt"`

type outboxRepo struct{}

// NewOutboxRepository returns a pgx-backed OutboxRepository.
func NewOutboxRepository() OutboxRepository {
	return &outboxRepo{}
}

func (r *outboxRepo) Insert(ctx context.Context, db DBTX, d domain.OutboxDraft) error {
	_, err := db.Exec(ctx,
		`INSERT INTO event_outbox (`+outboxColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.EventID, string(d.AggregateType), d.AggregateID, string(d.EventType),
		d.PartitionKey, d.Headers, d.Payload, d.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s event %s: %w", d.EventType, d.EventID, err)
	}
	return nil
}

// FetchUnpublished locks the oldest unpublished rows. SKIP LOCKED lets a
// second relay replica pick up the next batch instead of blocking.
func (r *outboxRepo) FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error) {
	rows, err := db.Query(ctx, `
		SELECT "id", `+outboxColumns+`
		FROM event_outbox
		WHERE "publishedAt" IS NULL
		ORDER BY "id"
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OutboxDraft, error) {
		var d domain.OutboxDraft
		err := row.Scan(&d.SeqID, &d.EventID, &d.AggregateType, &d.AggregateID,
			&d.EventType, &d.PartitionKey, &d.Headers, &d.Payload, &d.OccurredAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan outbox rows: %w", err)
	}
	return events, nil
}

func (r *outboxRepo) MarkPublished(ctx context.Context, db DBTX, seqIDs []int64) error {
	if len(seqIDs) == 0 {
		return nil
	}
	tag, err := db.Exec(ctx,
		`UPDATE event_outbox SET "publishedAt" = now() WHERE "id" = ANY($1) AND "publishedAt" IS NULL`, seqIDs)
	if err != nil {
		return fmt.Errorf("mark %d events published: %w", len(seqIDs), err)
	}
	if int(tag.RowsAffected()) != len(seqIDs) {
		return fmt.Errorf("mark published: %d of %d events were already published", len(seqIDs)-int(tag.RowsAffected()), len(seqIDs))
	}
	return nil
}
