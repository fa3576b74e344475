package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/guard"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/arenadesk/platform/internal/notify"
	"github.com/arenadesk/platform/internal/prize"
	"github.com/arenadesk/platform/internal/projection"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// rejection codes are returned unchanged; any other failure inside the
// transaction becomes SETTLEMENT_FAILED.
var rejectionCodes = []string{
	domain.CodeNotFound,
	domain.CodeInvalidState,
	domain.CodeAlreadyDistributed,
	domain.CodeNoResults,
	domain.CodeInvalidRule,
	domain.CodeInvalidAmount,
	domain.CodeSettlementInProgress,
}

// DistributePrizes credits every winner of a completed tournament and marks it
// settled. It succeeds at most once per tournament; concurrent callers get
// SETTLEMENT_IN_PROGRESS and later callers ALREADY_DISTRIBUTED.
//
// Cancelling ctx only aborts the call before the lock is taken. Once the
// transaction starts it runs to commit or rollback, bounded by TxTimeout.
func (s *Service) DistributePrizes(ctx context.Context, id uuid.UUID) (*domain.DistributionSummary, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.DistributePrizes",
		trace.WithAttributes(attribute.String("tournament.id", id.String())))
	defer span.End()

	start := s.now()
	t, summary, err := s.distribute(ctx, id)
	if err != nil {
		outcome := infra.OutcomeRejected
		if domain.HasCode(err, domain.CodeSettlementFailed) {
			outcome = infra.OutcomeFailed
			s.logger.Error("prize distribution failed", "tournament_id", id, "error", err)
		} else {
			s.logger.Warn("prize distribution rejected", "tournament_id", id, "error", err)
		}
		s.metrics.ObserveSettlement(outcome, s.now().Sub(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("settlement.winners", len(summary.Distributions)),
		attribute.Int("settlement.skipped", len(summary.Skipped)),
		attribute.Int64("settlement.total", summary.TotalDistributed),
	)
	s.metrics.ObserveSettlement(infra.OutcomeSettled, s.now().Sub(start))
	s.afterCommit(t, summary)

	s.logger.Info("prizes distributed",
		"tournament_id", id,
		"mode", summary.Mode,
		"winners", len(summary.Distributions),
		"skipped", len(summary.Skipped),
		"total_distributed", summary.TotalDistributed,
		"breakage", summary.Breakage,
	)
	return summary, nil
}

func (s *Service) distribute(ctx context.Context, id uuid.UUID) (*domain.Tournament, *domain.DistributionSummary, error) {
	// Unlocked pre-check so obvious rejections never contend for the lock.
	if err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		_, _, err := s.loadChecked(ctx, tx, id, s.repos.Tournaments.FindByID)
		return err
	}); err != nil {
		return nil, nil, s.classify(id, err)
	}

	unlock, err := s.locker.TryLock(ctx, "tournament:"+id.String())
	if errors.Is(err, guard.ErrLockHeld) {
		return nil, nil, domain.ErrSettlementInProgress(id.String())
	}
	if err != nil {
		return nil, nil, s.classify(id, fmt.Errorf("acquire settlement lock: %w", err))
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("release settlement lock", "tournament_id", id, "error", err)
		}
	}()

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TxTimeout)
	defer cancel()

	var t *domain.Tournament
	var summary *domain.DistributionSummary
	err = s.store.WithinTx(txCtx, func(ctx context.Context, tx repository.DBTX) error {
		var err error
		t, summary, err = s.settle(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, s.classify(id, err)
	}
	return t, summary, nil
}

type tournamentLoader func(ctx context.Context, db repository.DBTX, id uuid.UUID) (*domain.Tournament, error)

// loadChecked loads the tournament and its results and enforces the
// preconditions in order: exists, completed, not yet distributed, has results.
func (s *Service) loadChecked(ctx context.Context, tx repository.DBTX, id uuid.UUID, load tournamentLoader) (*domain.Tournament, []domain.Result, error) {
	t, err := load(ctx, tx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load tournament: %w", err)
	}
	if t == nil {
		return nil, nil, domain.ErrNotFound("tournament", id.String())
	}
	if t.Status != domain.TournamentCompleted {
		return nil, nil, domain.ErrInvalidState(id.String(), string(t.Status))
	}
	if t.PrizesDistributed {
		return nil, nil, domain.ErrAlreadyDistributed(id.String())
	}
	results, err := s.repos.Results.ListByTournament(ctx, tx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load results: %w", err)
	}
	if len(results) == 0 {
		return nil, nil, domain.ErrNoResults(id.String())
	}
	return t, results, nil
}

func (s *Service) settle(ctx context.Context, tx repository.DBTX, id uuid.UUID) (*domain.Tournament, *domain.DistributionSummary, error) {
	t, results, err := s.loadChecked(ctx, tx, id, s.repos.Tournaments.LockForUpdate)
	if err != nil {
		return nil, nil, err
	}
	registrations, err := s.repos.Registrations.ListByTournament(ctx, tx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load registrations: %w", err)
	}
	rule, err := prize.ResolveRule(t)
	if err != nil {
		return nil, nil, err
	}
	plan, err := prize.ComputeSettlement(t, registrations, results, rule)
	if err != nil {
		return nil, nil, err
	}

	distributedAt := s.now().UTC()
	summary := &domain.DistributionSummary{
		TournamentID:    id,
		Mode:            plan.Mode,
		Distributions:   make([]domain.DistributionRecord, 0, len(plan.Payouts)),
		ActualPrizePool: plan.ActualPrizePool,
		Skipped:         []domain.SkippedWinner{},
		DistributedAt:   distributedAt,
	}

	for start := 0; start < len(plan.Payouts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(plan.Payouts))
		if err := s.settleChunk(ctx, tx, t, plan.Payouts[start:end], summary); err != nil {
			return nil, nil, err
		}
	}

	for _, rec := range summary.Distributions {
		summary.TotalDistributed += rec.PrizeAmount
		if rec.Position != nil && *rec.Position == 1 &&
			(summary.FirstPlaceWinner == nil || rec.PrizeAmount > summary.FirstPlaceWinner.Amount) {
			summary.FirstPlaceWinner = &domain.WinnerRef{UserID: rec.UserID, Amount: rec.PrizeAmount}
		}
	}
	if summary.ActualPrizePool > summary.TotalDistributed {
		summary.Breakage = summary.ActualPrizePool - summary.TotalDistributed
	}

	swapped, err := s.repos.Tournaments.MarkDistributed(ctx, tx, id, summary.TotalDistributed, distributedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("mark distributed: %w", err)
	}
	if !swapped {
		return nil, nil, domain.ErrAlreadyDistributed(id.String())
	}
	if err := s.repos.Outbox.Insert(ctx, tx, domain.NewPrizesDistributedEvent(summary)); err != nil {
		return nil, nil, fmt.Errorf("insert outbox event: %w", err)
	}

	t.PrizesDistributed = true
	t.PrizesDistributedAt = &distributedAt
	t.TotalDistributed = summary.TotalDistributed
	return t, summary, nil
}

// settleChunk credits one batch of payouts and writes their result updates
// and distribution records as two batched statements.
func (s *Service) settleChunk(ctx context.Context, tx repository.DBTX, t *domain.Tournament, payouts []domain.Payout, summary *domain.DistributionSummary) error {
	rewards := make([]domain.ResultReward, 0, len(payouts))
	records := make([]domain.DistributionRecord, 0, len(payouts))

	for _, p := range payouts {
		if !p.Payable {
			if p.Reward > 0 {
				s.skip(summary, p, domain.SkipUnresolvedUser)
			}
			rewards = append(rewards, domain.ResultReward{ResultID: p.ResultID, Reward: p.Reward, RewardStatus: domain.RewardUnpaid})
			continue
		}

		res, err := s.ledger.ExecuteCreditWallet(ctx, tx, domain.CreditWalletParams{
			UserID:        *p.UserID,
			Amount:        p.Reward,
			Currency:      t.Currency,
			Description:   "Tournament prize: " + t.Name,
			ReferenceType: domain.ReferenceTournamentResult,
			ReferenceID:   p.ResultID.String(),
			Metadata:      creditMetadata(t, p),
		})
		switch {
		case domain.HasCode(err, domain.CodeUserNotFound):
			s.skip(summary, p, domain.SkipUserNotFound)
			rewards = append(rewards, domain.ResultReward{ResultID: p.ResultID, Reward: p.Reward, RewardStatus: domain.RewardUnpaid})
			continue
		case domain.HasCode(err, domain.CodeCurrencyMismatch):
			s.skip(summary, p, domain.SkipCurrencyMismatch)
			rewards = append(rewards, domain.ResultReward{ResultID: p.ResultID, Reward: p.Reward, RewardStatus: domain.RewardUnpaid})
			continue
		case err != nil:
			return fmt.Errorf("credit result %s: %w", p.ResultID, err)
		}

		rewards = append(rewards, domain.ResultReward{ResultID: p.ResultID, Reward: p.Reward, RewardStatus: domain.RewardPaid})
		summary.TotalKillRewards += p.ComponentTotal(domain.ComponentKillReward)
		records = append(records, domain.DistributionRecord{
			ID:             uuid.New(),
			TournamentID:   t.ID,
			UserID:         *p.UserID,
			RegistrationID: p.RegistrationID,
			ResultID:       p.ResultID,
			Position:       p.Position,
			Kills:          p.Kills,
			PrizeAmount:    p.Reward,
			PrizeType:      p.PrizeType,
			Status:         domain.DistributionCompleted,
			TransactionID:  res.Transaction.ID,
			CreatedAt:      summary.DistributedAt,
		})
	}

	if err := s.repos.Results.ApplyRewards(ctx, tx, rewards); err != nil {
		return fmt.Errorf("apply rewards: %w", err)
	}
	if len(records) > 0 {
		if err := s.repos.Distributions.InsertBatch(ctx, tx, records); err != nil {
			return fmt.Errorf("insert distributions: %w", err)
		}
	}
	summary.Distributions = append(summary.Distributions, records...)

	s.logger.Debug("settlement chunk applied", "tournament_id", t.ID, "results", len(payouts), "credited", len(records))
	return nil
}

func (s *Service) skip(summary *domain.DistributionSummary, p domain.Payout, reason string) {
	s.logger.Warn("prize winner skipped",
		"tournament_id", summary.TournamentID,
		"result_id", p.ResultID,
		"user_id", p.UserID,
		"amount", p.Reward,
		"reason", reason,
	)
	summary.Skipped = append(summary.Skipped, domain.SkippedWinner{
		ResultID: p.ResultID,
		UserID:   p.UserID,
		Amount:   p.Reward,
		Reason:   reason,
	})
}

func creditMetadata(t *domain.Tournament, p domain.Payout) json.RawMessage {
	meta := map[string]interface{}{
		"tournamentId": t.ID.String(),
		"resultId":     p.ResultID.String(),
		"prizeType":    p.PrizeType,
		"kills":        p.Kills,
		"breakdown":    p.Breakdown,
	}
	if p.Position != nil {
		meta["position"] = *p.Position
	}
	data, _ := json.Marshal(meta)
	return data
}

// classify keeps rejections as they are and turns everything else into a
// retryable SETTLEMENT_FAILED.
func (s *Service) classify(id uuid.UUID, err error) error {
	for _, code := range rejectionCodes {
		if domain.HasCode(err, code) {
			return err
		}
	}
	return domain.ErrSettlementFailed(id.String(), err)
}

// afterCommit runs the side effects of a committed settlement. None of them
// can fail the distribution.
func (s *Service) afterCommit(t *domain.Tournament, summary *domain.DistributionSummary) {
	var total int64
	winners := make([]uuid.UUID, 0, len(summary.Distributions))
	for _, rec := range summary.Distributions {
		total += rec.PrizeAmount
		winners = append(winners, rec.UserID)
	}
	s.metrics.AddCredited(len(summary.Distributions), total)
	for _, sk := range summary.Skipped {
		s.metrics.AddSkipped(sk.Reason)
	}

	if s.balances != nil && len(winners) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := projection.InvalidateBalances(ctx, s.balances, winners...); err != nil {
			s.logger.Warn("invalidate balance projections", "tournament_id", t.ID, "error", err)
		}
		cancel()
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(notify.PrizeNotifications(t, summary)...)
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.archiver.Archive(ctx, t, summary); err != nil {
			s.logger.Error("archive settlement", "tournament_id", t.ID, "error", err)
		}
	}()
}
