package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"example.com/enersight/services/telemetry/config"
	"example.com/enersight/services/telemetry/internal/api"
	"example.com/enersight/services/telemetry/internal/cache"
	"example.com/enersight/services/telemetry/internal/database"
	"example.com/enersight/services/telemetry/internal/dates"
	"example.com/enersight/services/telemetry/internal/eds"
	"example.com/enersight/services/telemetry/internal/pipeline"
	"example.com/enersight/services/telemetry/internal/repositories"
	"example.com/enersight/services/telemetry/internal/search"
	"example.com/enersight/services/telemetry/internal/tracing"
	"example.com/enersight/services/telemetry/internal/weather"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server exposing the polling pipeline and weather lookups`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	// Initialize the weather passthrough
	weatherClient := weather.NewClient(cfg.Weather, redisClient)

	// Initialize and start the server
	server := api.NewServer(cfg, pipelineService, weatherClient, tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func buildPipeline(cfg config.Config, db *gorm.DB, redisClient *cache.RedisClient, elasticClient *search.ElasticClient, tracer tracing.Tracer) (*pipeline.Service, error) {
	resolver, err := dates.NewResolver(cfg.Controller.Timezone, nil)
	if err != nil {
		return nil, err
	}

	var publisher pipeline.Publisher
	if redisClient != nil {
		publisher = redisClient
	}
	var indexer pipeline.Indexer
	if elasticClient != nil {
		indexer = elasticClient
	}

	return pipeline.New(
		repositories.NewMeterRepository(db),
		repositories.NewServiceRepository(db),
		repositories.NewDeviceRepository(db),
		repositories.NewReadingRepository(db),
		publisher,
		indexer,
		eds.NewClient(cfg.Controller),
		resolver,
		cfg.Tariff,
		tracer,
	), nil
}
