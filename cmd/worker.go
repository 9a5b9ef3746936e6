package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/enersight/services/telemetry/config"
	"example.com/enersight/services/telemetry/internal/cache"
	"example.com/enersight/services/telemetry/internal/database"
	"example.com/enersight/services/telemetry/internal/digest"
	"example.com/enersight/services/telemetry/internal/messaging"
	"example.com/enersight/services/telemetry/internal/repositories"
	"example.com/enersight/services/telemetry/internal/search"
	"example.com/enersight/services/telemetry/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the scheduled polling jobs and the monthly digest`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connection
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize cache and pub/sub fan-out
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis, continuing without fan-out and caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without indexing")
	}

	// Initialize the polling pipeline
	pipelineService, err := buildPipeline(cfg, db, redisClient, elasticClient, tracer)
	if err != nil {
		return err
	}

	// Initialize the mobile push handoff
	pushSender, err := messaging.NewPushSender(cfg.ServiceBus, "telemetry-worker")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize push sender, continuing without mobile handoff")
	}

	// Initialize the monthly digest
	digestService := digest.New(
		repositories.NewMeterRepository(db),
		repositories.NewReadingRepository(db),
		repositories.NewNotificationRepository(db),
		pushSender,
	)

	companies := repositories.NewCompanyRepository(db)

	// Every job runs once per company with an active meter
	forEachCompany := func(name string, op func(ctx context.Context, companyID string) error) func() {
		return func() {
			ids, err := companies.ListIDs(ctx)
			if err != nil {
				log.Error().Err(err).Str("job", name).Msg("Failed to list companies")
				return
			}
			for _, id := range ids {
				if err := op(ctx, id.String()); err != nil {
					log.Error().Err(err).Str("job", name).Str("company_id", id.String()).Msg("Scheduled run failed")
				}
			}
		}
	}

	// Start the polling schedule
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		jobs := []struct {
			name     string
			schedule string
			op       func(ctx context.Context, companyID string) error
		}{
			{"consumption-summary", cfg.Jobs.ConsumptionSummary, pipelineService.RunConsumptionSummary},
			{"daily-readings", cfg.Jobs.DailyReadings, pipelineService.RunDailyReadings},
			{"epimp-history", cfg.Jobs.EpimpHistory, pipelineService.RunEpimpHistory},
			{"power-factor", cfg.Jobs.PowerFactor, pipelineService.RunPowerFactorReadings},
			{"monthly-readings", cfg.Jobs.MonthlyReadings, pipelineService.RunMonthlyReadings},
			{"odometer-readings", cfg.Jobs.OdometerReadings, pipelineService.RunOdometerReadings},
			{"monthly-digest", cfg.Jobs.MonthlyDigest, digestService.RunMonthly},
		}
		for _, job := range jobs {
			if job.schedule == "" {
				log.Warn().Str("job", job.name).Msg("No schedule configured, skipping job")
				continue
			}
			_, err := scheduler.NewJob(
				gocron.CronJob(job.schedule, false),
				gocron.NewTask(forEachCompany(job.name, job.op)),
				gocron.WithName(job.name),
			)
			if err != nil {
				return err
			}
			log.Info().Str("job", job.name).Str("schedule", job.schedule).Msg("Job scheduled")
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		// Shutdown the scheduler
		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	if pushSender != nil {
		if err := pushSender.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close push sender")
		}
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
