// Command engagic-ingest runs the meeting-data ingestion pipeline: a
// one-off sync, a full sweep across every tracked city, or a long-lived
// daemon that schedules both alongside the summarization queue drain.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/engagic/ingest/pkg/config"
	"github.com/engagic/ingest/pkg/conductor"
	"github.com/engagic/ingest/pkg/database"
	"github.com/engagic/ingest/pkg/fetcher"
	"github.com/engagic/ingest/pkg/notify"
	"github.com/engagic/ingest/pkg/ratelimit"
	"github.com/engagic/ingest/pkg/repository"
	"github.com/engagic/ingest/pkg/transport"
	"github.com/engagic/ingest/pkg/vendor"
)

func main() {
	var configDir string
	var logFormat string

	root := &cobra.Command{
		Use:   "engagic-ingest",
		Short: "Ingest municipal meeting agendas and packets",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(logFormat)
			envPath := filepath.Join(configDir, ".env")
			if err := godotenv.Load(envPath); err != nil {
				slog.Warn("no .env file loaded", "path", envPath, "error", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "path to configuration directory")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newSyncCityCmd(&configDir),
		newSyncAndProcessCityCmd(&configDir),
		newFullSyncCmd(&configDir),
		newStatusCmd(&configDir),
		newDaemonCmd(&configDir),
		newSeedCitiesCmd(&configDir),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// bootstrap wires the repositories, vendor registry and conductor every
// subcommand needs, returning a cleanup func to defer.
func bootstrap(ctx context.Context, configDir string) (*config.Config, *repository.Repositories, *conductor.Conductor, func(), error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}

	repos := repository.New(pool)

	transportPool := transport.New()
	limiter := ratelimit.NewVendorLimiter()
	registry, err := vendor.BuildRegistry(transportPool, limiter, configDir)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("build vendor registry: %w", err)
	}

	f := fetcher.New(repos, registry, limiter, cfg.Sync.DaysBack, cfg.Sync.DaysForward)
	notifier := notify.NewService(cfg.Notify)
	// No Processor is wired in: summarization is an external system this
	// pipeline only hands a queue off to (see pkg/conductor.Processor).
	// With processor == nil the drain loop is a true no-op per §4.6.
	c := conductor.New(repos, f, notifier, nil, cfg.Sync.ProcessingTick)

	cleanup := func() {
		transportPool.CloseAll()
		pool.Close()
	}
	return cfg, repos, c, cleanup, nil
}

func newSyncCityCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-city [banana]",
		Short: "Fetch and sync one city's meetings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, c, cleanup, err := bootstrap(ctx, *configDir)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := c.SyncCity(ctx, args[0])
			if err != nil {
				return err
			}
			slog.Info("sync complete", "banana", result.Banana, "status", result.Status,
				"meetings_found", result.MeetingsFound, "meetings_processed", result.MeetingsProcessed,
				"meetings_skipped", result.MeetingsSkipped, "duration", result.Duration)
			return result.Error
		},
	}
}

func newSyncAndProcessCityCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-and-process-city [banana]",
		Short: "Sync one city and drain its queued summarization jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, c, cleanup, err := bootstrap(ctx, *configDir)
			if err != nil {
				return err
			}
			defer cleanup()

			result, drained, err := c.SyncAndProcessCity(ctx, args[0])
			if err != nil {
				return err
			}
			slog.Info("sync and process complete", "banana", result.Banana,
				"meetings_processed", result.MeetingsProcessed, "jobs_drained", drained)
			return result.Error
		},
	}
}

func newFullSyncCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "full-sync",
		Short: "Sweep every active city due for a sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, c, cleanup, err := bootstrap(ctx, *configDir)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := c.RunFullSyncNow(ctx)
			failed := 0
			for _, r := range results {
				if r.Error != nil {
					failed++
					slog.Error("city sync failed", "banana", r.Banana, "vendor", r.Vendor, "error", r.Error)
				}
			}
			slog.Info("full sync complete", "cities_attempted", len(results), "failed", failed)
			return err
		},
	}
}

func newStatusCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, c, cleanup, err := bootstrap(ctx, *configDir)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := c.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("active cities:       %d\n", s.ActiveCities)
			fmt.Printf("total meetings:      %d\n", s.TotalMeetings)
			fmt.Printf("summarized meetings: %d\n", s.SummarizedMeetings)
			fmt.Printf("pending meetings:    %d\n", s.PendingMeetings)
			if s.LastFullSync != nil {
				fmt.Printf("last full sync:      %s\n", s.LastFullSync.Format("2006-01-02 15:04:05 MST"))
			} else {
				fmt.Println("last full sync:      never")
			}
			if s.LastFullSyncError != "" {
				fmt.Printf("last sync error:     %s\n", s.LastFullSyncError)
			}
			if len(s.FailedCities) > 0 {
				fmt.Printf("failed cities:       %v\n", s.FailedCities)
			}
			return nil
		},
	}
}

func newDaemonCmd(configDir *string) *cobra.Command {
	var fullSyncCron string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduled full-sync and queue-drain loops until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, _, c, cleanup, err := bootstrap(ctx, *configDir)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := c.Start(ctx, fullSyncCron); err != nil {
				return fmt.Errorf("start conductor: %w", err)
			}
			slog.Info("engagic-ingest daemon running")
			<-ctx.Done()
			slog.Info("shutting down")
			c.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&fullSyncCron, "full-sync-cron", "", "cron expression for the full-sync schedule (default: weekly, 03:00 Sunday)")
	return cmd
}

func newSeedCitiesCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-cities",
		Short: "Load data/cities.json into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, repos, _, cleanup, err := bootstrap(ctx, *configDir)
			if err != nil {
				return err
			}
			defer cleanup()

			cities, err := config.LoadCities(*configDir)
			if err != nil {
				return err
			}
			for _, city := range cities {
				if err := repos.Cities.Upsert(ctx, city); err != nil {
					return fmt.Errorf("upsert city %s: %w", city.Banana, err)
				}
			}
			slog.Info("seeded cities", "count", len(cities))
			return nil
		},
	}
}
