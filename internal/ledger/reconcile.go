package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/prize"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
)

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail"`
}

// ReconciliationReport is the outcome of one reconciliation run.
type ReconciliationReport struct {
	UsersChecked       int              `json:"users_checked"`
	TournamentsChecked int              `json:"tournaments_checked"`
	Failures           []InvariantCheck `json:"failures"`
	AllPassed          bool             `json:"all_passed"`
	RanAt              time.Time        `json:"ran_at"`
}

// Reconciler validates ledger and settlement invariants against stored state.
//
// Invariants:
//  1. balance_non_negative: every wallet balance >= 0
//  2. ledger_parity: the last transaction's snapshot matches the user row
//  3. ledger_sum: the ledger never holds more credit than the wallet balance
//  4. distribution_total: Σ distributions == tournament total_distributed
//  5. distribution_bounded: Σ distributions <= actual prize pool (computed rules only)
type Reconciler struct {
	store repository.Transactor
	repos repository.Repositories
	page  int
}

// NewReconciler creates a reconciler.
func NewReconciler(store repository.Transactor, repos repository.Repositories) *Reconciler {
	return &Reconciler{store: store, repos: repos, page: 500}
}

// WithPageSize sets how many users or tournaments are checked per transaction.
func (r *Reconciler) WithPageSize(n int) *Reconciler {
	if n > 0 {
		r.page = n
	}
	return r
}

// Run checks every user and every settled tournament.
func (r *Reconciler) Run(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{Failures: []InvariantCheck{}, RanAt: time.Now().UTC()}

	var after *uuid.UUID
	for {
		var users []domain.User
		err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
			var err error
			users, err = r.repos.Users.List(ctx, tx, after, r.page)
			if err != nil {
				return err
			}
			for i := range users {
				checks, err := r.checkUser(ctx, tx, &users[i])
				if err != nil {
					return err
				}
				report.add(checks...)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reconcile users: %w", err)
		}
		report.UsersChecked += len(users)
		if len(users) < r.page {
			break
		}
		last := users[len(users)-1].ID
		after = &last
	}

	after = nil
	for {
		var tournaments []domain.Tournament
		err := r.store.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
			var err error
			tournaments, err = r.repos.Tournaments.ListDistributed(ctx, tx, after, r.page)
			if err != nil {
				return err
			}
			for i := range tournaments {
				checks, err := r.checkTournament(ctx, tx, &tournaments[i])
				if err != nil {
					return err
				}
				report.add(checks...)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reconcile tournaments: %w", err)
		}
		report.TournamentsChecked += len(tournaments)
		if len(tournaments) < r.page {
			break
		}
		last := tournaments[len(tournaments)-1].ID
		after = &last
	}

	report.AllPassed = len(report.Failures) == 0
	return report, nil
}

func (r *ReconciliationReport) add(checks ...InvariantCheck) {
	for _, c := range checks {
		if !c.Passed {
			r.Failures = append(r.Failures, c)
		}
	}
}

func (r *Reconciler) checkUser(ctx context.Context, tx repository.DBTX, user *domain.User) ([]InvariantCheck, error) {
	subject := "user:" + user.ID.String()
	checks := make([]InvariantCheck, 0, 3)

	checks = append(checks, InvariantCheck{
		Name:    "balance_non_negative",
		Subject: subject,
		Passed:  user.Balance >= 0,
		Detail:  fmt.Sprintf("balance=%d", user.Balance),
	})

	txs, err := r.repos.Transactions.ListByUser(ctx, tx, user.ID, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("last transaction of %s: %w", user.ID, err)
	}
	if len(txs) == 0 {
		return checks, nil
	}
	checks = append(checks, InvariantCheck{
		Name:    "ledger_parity",
		Subject: subject,
		Passed:  txs[0].BalanceAfter == user.Balance,
		Detail:  fmt.Sprintf("user=%d lastTx=%d", user.Balance, txs[0].BalanceAfter),
	})

	sum, err := r.repos.Transactions.SumByUser(ctx, tx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("ledger sum of %s: %w", user.ID, err)
	}
	checks = append(checks, InvariantCheck{
		Name:    "ledger_sum",
		Subject: subject,
		Passed:  sum <= user.Balance,
		Detail:  fmt.Sprintf("balance=%d ledger=%d", user.Balance, sum),
	})
	return checks, nil
}

func (r *Reconciler) checkTournament(ctx context.Context, tx repository.DBTX, t *domain.Tournament) ([]InvariantCheck, error) {
	subject := "tournament:" + t.ID.String()

	sum, err := r.repos.Distributions.SumByTournament(ctx, tx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("distribution sum of %s: %w", t.ID, err)
	}
	checks := []InvariantCheck{{
		Name:    "distribution_total",
		Subject: subject,
		Passed:  sum == t.TotalDistributed,
		Detail:  fmt.Sprintf("records=%d tournament=%d", sum, t.TotalDistributed),
	}}

	rule, err := prize.ResolveRule(t)
	if err != nil {
		return nil, fmt.Errorf("resolve rule of %s: %w", t.ID, err)
	}
	// Override amounts are fixed by an admin and are not bounded by the pool.
	if rule.Mode == domain.RuleOverride {
		return checks, nil
	}

	pool, err := r.actualPrizePool(ctx, tx, t, rule)
	if err != nil {
		return nil, err
	}
	checks = append(checks, InvariantCheck{
		Name:    "distribution_bounded",
		Subject: subject,
		Passed:  sum <= pool,
		Detail:  fmt.Sprintf("records=%d pool=%d", sum, pool),
	})
	return checks, nil
}

func (r *Reconciler) actualPrizePool(ctx context.Context, tx repository.DBTX, t *domain.Tournament, rule domain.EffectiveRule) (int64, error) {
	registrations, err := r.repos.Registrations.ListByTournament(ctx, tx, t.ID)
	if err != nil {
		return 0, fmt.Errorf("registrations of %s: %w", t.ID, err)
	}
	plan, err := prize.ComputeSettlement(t, registrations, nil, rule)
	if err != nil {
		return 0, fmt.Errorf("prize pool of %s: %w", t.ID, err)
	}
	return plan.ActualPrizePool, nil
}
