package repository

import (
	"context"
	"fmt"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/google/uuid"
)

type registrationRepo struct{}

// NewRegistrationRepository returns a pgx-backed RegistrationRepository.
func NewRegistrationRepository() RegistrationRepository {
	return &registrationRepo{}
}

func (r *registrationRepo) Create(ctx context.Context, db DBTX, reg *domain.Registration) error {
	_, err := db.Exec(ctx, `
		INSERT INTO registrations (id, tournament_id, user_id, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		reg.ID, reg.TournamentID, reg.UserID, string(reg.PaymentStatus), reg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *registrationRepo) ListByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) ([]domain.Registration, error) {
	rows, err := db.Query(ctx, `
		SELECT id, tournament_id, user_id, payment_status, created_at
		FROM registrations
		WHERE tournament_id = $1
		ORDER BY created_at, id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(&reg.ID, &reg.TournamentID, &reg.UserID, &reg.PaymentStatus, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}
