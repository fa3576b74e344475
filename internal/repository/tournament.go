package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const tournamentColumns = `id, name, currency, status, entry_fee, prize_pool,
	company_commission_percentage, first_prize_percentage, per_kill_reward_percentage,
	prize_distribution_rule, prizes_distributed, prizes_distributed_at, total_distributed,
	created_at, updated_at`

type tournamentRepo struct{}

// NewTournamentRepository returns a pgx-backed TournamentRepository.
func NewTournamentRepository() TournamentRepository {
	return &tournamentRepo{}
}

func (r *tournamentRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Tournament, error) {
	row := db.QueryRow(ctx, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id)
	return scanTournament(row)
}

func (r *tournamentRepo) LockForUpdate(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Tournament, error) {
	row := db.QueryRow(ctx, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1 FOR UPDATE`, id)
	return scanTournament(row)
}

func (r *tournamentRepo) Create(ctx context.Context, db DBTX, t *domain.Tournament) error {
	rule, err := encodeRule(t.PrizeDistributionRule)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO tournaments
		  (id, name, currency, status, entry_fee, prize_pool,
		   company_commission_percentage, first_prize_percentage, per_kill_reward_percentage,
		   prize_distribution_rule, prizes_distributed, prizes_distributed_at, total_distributed,
		   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID,
		t.Name,
		t.Currency,
		string(t.Status),
		infra.Int64ToNumeric(t.EntryFee),
		infra.Int64PtrToNumeric(t.PrizePool),
		infra.DecimalToNumeric(t.CompanyCommissionPercentage),
		infra.DecimalToNumeric(t.FirstPrizePercentage),
		infra.DecimalToNumeric(t.PerKillRewardPercentage),
		rule,
		t.PrizesDistributed,
		t.PrizesDistributedAt,
		infra.Int64ToNumeric(t.TotalDistributed),
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tournament: %w", err)
	}
	return nil
}

func (r *tournamentRepo) UpdatePrizeRule(ctx context.Context, db DBTX, id uuid.UUID, rule *domain.PrizeDistributionRule) error {
	encoded, err := encodeRule(rule)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
		UPDATE tournaments SET prize_distribution_rule = $1, updated_at = now()
		WHERE id = $2`, encoded, id)
	if err != nil {
		return fmt.Errorf("update prize rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("tournament", id.String())
	}
	return nil
}

// MarkDistributed is a compare-and-set on prizes_distributed.
func (r *tournamentRepo) MarkDistributed(ctx context.Context, db DBTX, id uuid.UUID, total int64, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE tournaments
		SET prizes_distributed = true, prizes_distributed_at = $1, total_distributed = $2, updated_at = now()
		WHERE id = $3 AND prizes_distributed = false`,
		at, infra.Int64ToNumeric(total), id)
	if err != nil {
		return false, fmt.Errorf("mark distributed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *tournamentRepo) ListDistributed(ctx context.Context, db DBTX, after *uuid.UUID, limit int) ([]domain.Tournament, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows pgx.Rows
	var err error
	if after != nil {
		rows, err = db.Query(ctx, `
			SELECT `+tournamentColumns+`
			FROM tournaments
			WHERE prizes_distributed = true
			  AND (prizes_distributed_at, id) < (SELECT prizes_distributed_at, id FROM tournaments WHERE id = $1)
			ORDER BY prizes_distributed_at DESC, id DESC
			LIMIT $2`, *after, limit)
	} else {
		rows, err = db.Query(ctx, `
			SELECT `+tournamentColumns+`
			FROM tournaments
			WHERE prizes_distributed = true
			ORDER BY prizes_distributed_at DESC, id DESC
			LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query distributed tournaments: %w", err)
	}
	defer rows.Close()

	var out []domain.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func encodeRule(rule *domain.PrizeDistributionRule) (interface{}, error) {
	if rule == nil {
		return nil, nil
	}
	b, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("encode prize rule: %w", err)
	}
	return json.RawMessage(b), nil
}

func scanTournament(row pgx.Row) (*domain.Tournament, error) {
	var t domain.Tournament
	var entryFee, prizePool, commission, firstPct, killPct, total pgtype.Numeric
	var rule []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.Currency, &t.Status, &entryFee, &prizePool,
		&commission, &firstPct, &killPct,
		&rule, &t.PrizesDistributed, &t.PrizesDistributedAt, &total,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tournament: %w", err)
	}

	if t.EntryFee, err = infra.NumericToInt64(entryFee); err != nil {
		return nil, fmt.Errorf("convert entry_fee: %w", err)
	}
	if t.TotalDistributed, err = infra.NumericToInt64(total); err != nil {
		return nil, fmt.Errorf("convert total_distributed: %w", err)
	}
	if t.PrizePool, err = infra.NumericToInt64Ptr(prizePool); err != nil {
		return nil, fmt.Errorf("convert prize_pool: %w", err)
	}
	t.CompanyCommissionPercentage = infra.NumericToDecimal(commission)
	t.FirstPrizePercentage = infra.NumericToDecimal(firstPct)
	t.PerKillRewardPercentage = infra.NumericToDecimal(killPct)

	if len(rule) > 0 {
		var pr domain.PrizeDistributionRule
		if err := json.Unmarshal(rule, &pr); err != nil {
			return nil, fmt.Errorf("decode prize rule: %w", err)
		}
		t.PrizeDistributionRule = &pr
	}
	return &t, nil
}
