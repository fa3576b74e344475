package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arenadesk/platform/internal/app"
	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "settlectl",
		Usage: "operate tournament prize settlement",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log at debug level"},
		},
		Commands: []*cli.Command{
			newMigrateCommand(),
			newPreviewCommand(),
			newDistributeCommand(),
			newReconcileCommand(),
			newEventsCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		stop()
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withApp builds the application, runs fn and waits for background work
// (notifications, archive uploads) before closing.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(c.Context, cfg, newLogger(c), "arena-settlectl")
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(c.Context, a)
}

func tournamentArg(c *cli.Context) (uuid.UUID, error) {
	if c.NArg() != 1 {
		return uuid.Nil, fmt.Errorf("expected exactly one tournament id")
	}
	id, err := uuid.Parse(c.Args().First())
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tournament id %q: %w", c.Args().First(), err)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "migrations directory (default: nearest db/migrations)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return infra.RunMigrations(cfg.DSN(), c.String("dir"), newLogger(c))
		},
	}
}

func newPreviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "print the effective rule and computed payouts without settling",
		ArgsUsage: "<tournament-id>",
		Action: func(c *cli.Context) error {
			id, err := tournamentArg(c)
			if err != nil {
				return err
			}
			return withApp(c, func(ctx context.Context, a *app.App) error {
				preview, err := a.Settlement.Preview(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, preview)
			})
		},
	}
}

func newDistributeCommand() *cli.Command {
	return &cli.Command{
		Name:      "distribute",
		Usage:     "settle a completed tournament and credit its winners",
		ArgsUsage: "<tournament-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation preview"},
		},
		Action: func(c *cli.Context) error {
			id, err := tournamentArg(c)
			if err != nil {
				return err
			}
			return withApp(c, func(ctx context.Context, a *app.App) error {
				if !c.Bool("yes") {
					preview, err := a.Settlement.Preview(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "tournament %s: pool %d %s, %d payable winners\n",
						id, preview.Plan.ActualPrizePool, preview.Plan.Currency, payableCount(preview.Plan))
					return fmt.Errorf("rerun with --yes to distribute")
				}
				summary, err := a.Settlement.DistributePrizes(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, summary)
			})
		},
	}
}

func payableCount(plan *domain.SettlementPlan) int {
	var n int
	for _, p := range plan.Payouts {
		if p.Payable {
			n++
		}
	}
	return n
}

func newReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "check ledger and distribution invariants",
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.App) error {
				report := a.Reconcile(ctx)
				if report == nil {
					return fmt.Errorf("reconciliation could not run")
				}
				if err := printJSON(c.App.Writer, report); err != nil {
					return err
				}
				if !report.AllPassed {
					return cli.Exit(fmt.Sprintf("%d invariant violations", len(report.Failures)), 2)
				}
				return nil
			})
		},
	}
}

func newEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "tail settlement events relayed to Kafka",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "topic", Value: "arena." + string(domain.EventPrizesDistributed)},
			&cli.StringFlag{Name: "group", Value: "settlectl"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, c.String("topic"), c.String("group"), cfg.KafkaEnabled, newLogger(c))
			defer consumer.Close()

			return consumer.Consume(c.Context, func(msg kafka.Message) error {
				fmt.Fprintf(c.App.Writer, "%s offset=%d key=%s %s\n", msg.Time.UTC().Format("2006-01-02T15:04:05Z"), msg.Offset, msg.Key, msg.Value)
				return nil
			})
		},
	}
}
