// Package settlement distributes tournament prizes to winner wallets exactly
// once. A distribution runs under a per-tournament lock, inside a single store
// transaction that re-checks every precondition under a row lock and ends with
// a compare-and-swap on the tournament's distributed flag.
package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/arenadesk/platform/internal/archive"
	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/guard"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/arenadesk/platform/internal/ledger"
	"github.com/arenadesk/platform/internal/prize"
	"github.com/arenadesk/platform/internal/projection"
	"github.com/arenadesk/platform/internal/report"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/arenadesk/platform/internal/settlement"

// Dispatcher hands notifications off for delivery after commit.
type Dispatcher interface {
	Dispatch(notes ...domain.Notification)
}

// Config tunes a distribution run.
type Config struct {
	BatchSize int
	TxTimeout time.Duration
}

// Deps are the collaborators of a Service. Only Store, Repos and Ledger are
// required; the rest default to no-ops.
type Deps struct {
	Store      repository.Transactor
	Repos      repository.Repositories
	Ledger     *ledger.Engine
	Locker     guard.Locker
	Dispatcher Dispatcher
	Archiver   archive.Archiver
	Balances   projection.Store
	Metrics    *infra.SettlementMetrics
	Tracer     trace.Tracer
	Logger     *slog.Logger
	Config     Config
}

// Service previews, configures and executes prize distributions.
type Service struct {
	store      repository.Transactor
	repos      repository.Repositories
	ledger     *ledger.Engine
	locker     guard.Locker
	dispatcher Dispatcher
	archiver   archive.Archiver
	balances   projection.Store
	metrics    *infra.SettlementMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time

	background sync.WaitGroup
}

// NewService wires a settlement service.
func NewService(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		repos:      d.Repos,
		ledger:     d.Ledger,
		locker:     d.Locker,
		dispatcher: d.Dispatcher,
		archiver:   d.Archiver,
		balances:   d.Balances,
		metrics:    d.Metrics,
		tracer:     d.Tracer,
		logger:     d.Logger,
		cfg:        d.Config,
		now:        time.Now,
	}
	if s.locker == nil {
		s.locker = guard.NewKeyedLocker()
	}
	if s.archiver == nil {
		s.archiver = archive.Nop{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 200
	}
	if s.cfg.TxTimeout <= 0 {
		s.cfg.TxTimeout = 60 * time.Second
	}
	return s
}

// Wait blocks until post-commit background work (archive uploads) is done.
func (s *Service) Wait() {
	s.background.Wait()
}

// Preview resolves the rule of a tournament and computes its payout plan
// without writing anything.
func (s *Service) Preview(ctx context.Context, id uuid.UUID) (*domain.DistributionPreview, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Preview")
	defer span.End()

	var preview *domain.DistributionPreview
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		t, err := s.repos.Tournaments.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.ErrNotFound("tournament", id.String())
		}
		rule, err := prize.ResolveRule(t)
		if err != nil {
			return err
		}
		registrations, err := s.repos.Registrations.ListByTournament(ctx, tx, id)
		if err != nil {
			return err
		}
		results, err := s.repos.Results.ListByTournament(ctx, tx, id)
		if err != nil {
			return err
		}
		plan, err := prize.ComputeSettlement(t, registrations, results, rule)
		if err != nil {
			return err
		}
		preview = &domain.DistributionPreview{Tournament: t, Rule: rule, Plan: plan, PrizesDistributed: t.PrizesDistributed}
		return nil
	})
	if err != nil {
		return nil, asAppError("preview prize distribution", err)
	}
	return preview, nil
}

// SaveRule validates and persists a tournament's prize distribution rule.
// A settled tournament's rule is frozen.
func (s *Service) SaveRule(ctx context.Context, id uuid.UUID, rule *domain.PrizeDistributionRule, actor string) (*domain.DistributionPreview, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.SaveRule")
	defer span.End()

	if err := prize.ValidateRule(rule); err != nil {
		return nil, err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		t, err := s.repos.Tournaments.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.ErrNotFound("tournament", id.String())
		}
		if t.PrizesDistributed {
			return domain.ErrAlreadyDistributed(id.String())
		}

		t.PrizeDistributionRule = rule
		if _, err := prize.ResolveRule(t); err != nil {
			return err
		}
		if err := s.repos.Tournaments.UpdatePrizeRule(ctx, tx, id, rule); err != nil {
			return err
		}
		return s.repos.Outbox.Insert(ctx, tx, domain.NewPrizeRuleUpdatedEvent(id, rule, actor))
	})
	if err != nil {
		return nil, asAppError("save prize rule", err)
	}

	s.logger.Info("prize rule saved", "tournament_id", id, "actor", actor, "admin_override", rule.AdminOverride)
	return s.Preview(ctx, id)
}

// ListDistributions returns the distribution records of a tournament.
func (s *Service) ListDistributions(ctx context.Context, id uuid.UUID) (*domain.Tournament, []domain.DistributionRecord, error) {
	var t *domain.Tournament
	var records []domain.DistributionRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		var err error
		t, err = s.repos.Tournaments.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.ErrNotFound("tournament", id.String())
		}
		records, err = s.repos.Distributions.ListByTournament(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, asAppError("list prize distributions", err)
	}
	if records == nil {
		records = []domain.DistributionRecord{}
	}
	return t, records, nil
}

// Export writes the distribution records of a tournament as an xlsx workbook.
func (s *Service) Export(ctx context.Context, id uuid.UUID, w io.Writer) (*domain.Tournament, error) {
	t, records, err := s.ListDistributions(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := report.WriteDistributionWorkbook(w, t, records); err != nil {
		return nil, domain.ErrInternal("export prize distributions", err)
	}
	return t, nil
}

// asAppError passes domain errors through and wraps anything else as internal.
func asAppError(op string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.ErrInternal(op, err)
}
