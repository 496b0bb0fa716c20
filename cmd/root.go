package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"eodmarker/config"
	"eodmarker/database"
	"eodmarker/models"
	"eodmarker/server"
)

// ConfigLoader produces the configuration for a command invocation
type ConfigLoader func() (*config.Config, error)

// Execute runs the command line against os.Args
func Execute(ctx context.Context) error {
	return NewRootCommand(config.Load).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Running the root command with no
// subcommand serves.
func NewRootCommand(load ConfigLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "eodmarker",
		Short:         "Marks each business date as end-of-day complete, once per cluster.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			return Run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(serveCmd(load))
	root.AddCommand(migrateCmd(load))
	root.AddCommand(markCmd(load))
	root.AddCommand(statusCmd(load))
	return root
}

func loadConfig(load ConfigLoader) (*config.Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	configureLogging(cfg)
	return cfg, nil
}

func serveCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the status endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			return Run(cmd.Context(), cfg)
		},
	}
}

func migrateCmd(load ConfigLoader) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			return database.MigrateUp(cfg.GetDatabaseURL())
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseSteps(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			return database.MigrateDown(cfg.GetDatabaseURL(), steps)
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			status, err := database.GetMigrationStatus(cfg.GetDatabaseURL())
			if err != nil {
				return err
			}
			if !status.Applied {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %d, Dirty: %t\n", status.Version, status.Dirty)
			return nil
		},
	})

	return migrate
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("invalid steps value: %s", args[0])
	}
	return steps, nil
}

func markCmd(load ConfigLoader) *cobra.Command {
	var (
		dateFlag string
		skipLock bool
	)

	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark a business date as EOD now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var date models.BusinessDate
			if dateFlag != "" {
				parsed, err := models.ParseBusinessDate(dateFlag)
				if err != nil {
					return err
				}
				date = parsed
			}

			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			return runMark(ctx, app, date, skipLock, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "business date to mark (YYYY-MM-DD), defaults to today in the business timezone")
	cmd.Flags().BoolVar(&skipLock, "skip-lock", false, "mark without taking the cluster lock")
	return cmd
}

func runMark(ctx context.Context, app *App, date models.BusinessDate, skipLock bool, out io.Writer) error {
	if date.IsZero() {
		date = app.Clock.Today()
	}

	if skipLock {
		log.WithField("businessDate", date.String()).Warn("Marking without the cluster lock")
		outcome, err := app.EOD.MarkBusinessDate(ctx, date)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", date, outcome)
		return nil
	}

	result, err := app.Scheduler.RunForDate(ctx, date)
	if err != nil {
		return err
	}
	if outcome, ok := result.Summary["outcome"]; ok {
		fmt.Fprintf(out, "%s: %v\n", date, outcome)
		return nil
	}
	fmt.Fprintf(out, "%s: %s (lock %q held elsewhere)\n", date, result.Outcome, result.LockName)
	return nil
}

// statusOutput is what the status command prints
type statusOutput struct {
	server.StatusResponse
	LastRun    *jobRunView  `json:"lastRun"`
	RecentRuns []jobRunView `json:"recentRuns,omitempty"`
}

type jobRunView struct {
	LockName   string    `json:"lockName"`
	LockedBy   string    `json:"lockedBy"`
	Outcome    string    `json:"outcome"`
	Error      *string   `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func newJobRunView(run *models.JobRun) jobRunView {
	return jobRunView{
		LockName:   run.LockName,
		LockedBy:   run.LockedBy,
		Outcome:    string(run.Outcome),
		Error:      run.ErrorMessage,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

func statusCmd(load ConfigLoader) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print today's EOD status and the latest job run as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if history < 0 {
				return fmt.Errorf("invalid history value: %d", history)
			}

			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			view, err := app.EOD.Status(ctx)
			if err != nil {
				return err
			}
			output := statusOutput{StatusResponse: server.NewStatusResponse(view)}

			latest, err := app.JobRuns.GetLatest(ctx, cfg.LockName)
			if err != nil {
				return err
			}
			if latest != nil {
				run := newJobRunView(latest)
				output.LastRun = &run
			}

			if history > 0 {
				runs, err := app.JobRuns.ListRecent(ctx, cfg.LockName, history)
				if err != nil {
					return err
				}
				for _, run := range runs {
					output.RecentRuns = append(output.RecentRuns, newJobRunView(run))
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(output)
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "also print the last N job runs")
	return cmd
}
