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

type resultRepo struct{}

// NewResultRepository returns a pgx-backed ResultRepository.
func NewResultRepository() ResultRepository {
	return &resultRepo{}
}

func (r *resultRepo) Create(ctx context.Context, db DBTX, res *domain.Result) error {
	status := res.RewardStatus
	if status == "" {
		status = domain.RewardUnpaid
	}
	_, err := db.Exec(ctx, `
		INSERT INTO results (id, tournament_id, registration_id, user_id, position, kills, reward, reward_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, res.TournamentID, res.RegistrationID, res.UserID, res.Position, res.Kills,
		infra.Int64ToNumeric(res.Reward), string(status))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (r *resultRepo) ListByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) ([]domain.Result, error) {
	rows, err := db.Query(ctx, `
		SELECT id, tournament_id, registration_id, user_id, position, kills, reward, reward_status, updated_at
		FROM results
		WHERE tournament_id = $1
		ORDER BY position NULLS LAST, id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var res domain.Result
		var reward pgtype.Numeric
		err := rows.Scan(&res.ID, &res.TournamentID, &res.RegistrationID, &res.UserID, &res.Position,
			&res.Kills, &reward, &res.RewardStatus, &res.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if res.Reward, err = infra.NumericToInt64(reward); err != nil {
			return nil, fmt.Errorf("convert reward: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ApplyRewards queues one UPDATE per result and sends them in a single round trip.
func (r *resultRepo) ApplyRewards(ctx context.Context, db DBTX, rewards []domain.ResultReward) error {
	if len(rewards) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, rw := range rewards {
		b.Queue(`
			UPDATE results SET reward = $1, reward_status = $2, updated_at = now()
			WHERE id = $3`,
			infra.Int64ToNumeric(rw.Reward), string(rw.RewardStatus), rw.ResultID)
	}

	br := db.SendBatch(ctx, b)
	for _, rw := range rewards {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return fmt.Errorf("update result %s: %w", rw.ResultID, err)
		}
		if tag.RowsAffected() != 1 {
			br.Close()
			return fmt.Errorf("update result %s: no row", rw.ResultID)
		}
	}
	return br.Close()
}
