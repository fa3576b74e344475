package app

import (
	"context"
	"fmt"
	"time"

	"github.com/arenadesk/platform/internal/ledger"
	"github.com/go-co-op/gocron/v2"
)

// StartReconciler schedules ledger reconciliation every interval, starting
// immediately. Overlapping runs are skipped. Shut the scheduler down on exit.
func (a *App) StartReconciler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			a.Reconcile(ctx)
		}),
		gocron.WithName("ledger-reconciliation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule reconciliation: %w", err)
	}

	sched.Start()
	a.Logger.Info("reconciliation scheduled", "interval", interval)
	return sched, nil
}

// Reconcile runs one reconciliation pass and records the failure count.
func (a *App) Reconcile(ctx context.Context) *ledger.ReconciliationReport {
	report, err := a.Reconciler.Run(ctx)
	if err != nil {
		a.Logger.Error("reconciliation failed", "error", err)
		return nil
	}
	a.Metrics.SetReconcileFailures(len(report.Failures))
	if !report.AllPassed {
		for _, f := range report.Failures {
			a.Logger.Error("invariant violated", "invariant", f.Name, "subject", f.Subject, "detail", f.Detail)
		}
		return report
	}
	a.Logger.Info("reconciliation passed",
		"users_checked", report.UsersChecked,
		"tournaments_checked", report.TournamentsChecked,
	)
	return report
}
