package repository

import (
	"context"
	"fmt"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type distributionRepo struct{}

// NewDistributionRepository returns a pgx-backed DistributionRepository.
func NewDistributionRepository() DistributionRepository {
	return &distributionRepo{}
}

func (r *distributionRepo) InsertBatch(ctx context.Context, db DBTX, records []domain.DistributionRecord) error {
	if len(records) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, rec := range records {
		b.Queue(`
			INSERT INTO prize_distributions
			  (id, tournament_id, user_id, registration_id, result_id, position, kills,
			   prize_amount, prize_type, status, transaction_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, rec.TournamentID, rec.UserID, rec.RegistrationID, rec.ResultID, rec.Position, rec.Kills,
			infra.Int64ToNumeric(rec.PrizeAmount), rec.PrizeType, string(rec.Status), rec.TransactionID, rec.CreatedAt)
	}

	br := db.SendBatch(ctx, b)
	for _, rec := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert distribution for result %s: %w", rec.ResultID, err)
		}
	}
	return br.Close()
}

func (r *distributionRepo) ListByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) ([]domain.DistributionRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT id, tournament_id, user_id, registration_id, result_id, position, kills,
		       prize_amount, prize_type, status, transaction_id, created_at
		FROM prize_distributions
		WHERE tournament_id = $1
		ORDER BY position NULLS LAST, prize_amount DESC, id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	defer rows.Close()

	var out []domain.DistributionRecord
	for rows.Next() {
		var rec domain.DistributionRecord
		var amount pgtype.Numeric
		err := rows.Scan(&rec.ID, &rec.TournamentID, &rec.UserID, &rec.RegistrationID, &rec.ResultID,
			&rec.Position, &rec.Kills, &amount, &rec.PrizeType, &rec.Status, &rec.TransactionID, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		if rec.PrizeAmount, err = infra.NumericToInt64(amount); err != nil {
			return nil, fmt.Errorf("convert prize_amount: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *distributionRepo) SumByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) (int64, error) {
	var sum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(prize_amount), 0) FROM prize_distributions WHERE tournament_id = $1`,
		tournamentID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum distributions: %w", err)
	}
	return infra.NumericToInt64(sum)
}
