package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/config"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/delivery/httpd"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/repository"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/render"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/storage"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/worker"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/worker/queue"
	"github.com/RubachokBoss/plagiarism-checker/report-service/pkg/hash"
	"github.com/RubachokBoss/plagiarism-checker/report-service/pkg/logger"
)

type Mode string

const (
	ModeAPI    Mode = "api"
	ModeWorker Mode = "worker"
	ModeAll    Mode = "all"
)

func (m Mode) serves() bool  { return m == ModeAPI || m == ModeAll }
func (m Mode) consumes() bool { return m == ModeWorker || m == ModeAll }

type App struct {
	mode   Mode
	server *http.Server
	worker *worker.ReportWorker
	reaper *worker.Reaper
	logger zerolog.Logger
	config *config.Config
	db     *sql.DB

	broker      *queue.RabbitMQ
	redisClient *redis.Client
	publisher   queue.Publisher
	consumer    queue.Consumer
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB, mode Mode) (*App, error) {
	a := &App{
		mode:   mode,
		logger: log,
		config: cfg,
		db:     db,
	}

	if err := a.setupQueue(); err != nil {
		a.closeQueue()
		return nil, err
	}

	blobs, err := storage.NewMinIOStorage(storage.Config{
		Endpoint:   cfg.Storage.Endpoint,
		AccessKey:  cfg.Storage.AccessKey,
		SecretKey:  cfg.Storage.SecretKey,
		Bucket:     cfg.Storage.Bucket,
		Region:     cfg.Storage.Region,
		UseSSL:     cfg.Storage.UseSSL,
		Timeout:    cfg.Storage.Timeout,
		MaxRetries: cfg.Storage.MaxRetries,
	}, log)
	if err != nil {
		a.closeQueue()
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	hasher, err := hash.New(cfg.Report.HashAlgorithm)
	if err != nil {
		a.closeQueue()
		return nil, err
	}

	jobRepo := repository.NewJobRepository(db, log)
	reportRepo := repository.NewReportRepository(db, log)

	artifactService := service.NewArtifactService(
		reportRepo,
		blobs,
		hasher,
		service.ArtifactOptions{
			CompressionLevel: cfg.Report.CompressionLevel,
			KeyPrefix:        cfg.Report.KeyPrefix,
		},
		log,
	)

	jobService := service.NewJobService(
		jobRepo,
		artifactService,
		render.NewDefaultRenderer(),
		a.publisher,
		service.JobOptions{
			StartedDeadline:       cfg.Jobs.StartedDeadline,
			MaxAttempts:           cfg.Jobs.MaxAttempts,
			PendingRepublishAfter: cfg.Jobs.PendingRepublishAfter,
			BatchSize:             cfg.Jobs.ReapBatchSize,
			MaxStudents:           cfg.Report.MaxStudents,
			RetryMaxAttempts:      cfg.Retry.MaxAttempts,
			RetryInitialInterval:  cfg.Retry.InitialInterval,
			RetryMaxInterval:      cfg.Retry.MaxInterval,
		},
		log,
	)

	if mode.consumes() {
		workerPool := worker.NewWorkerPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize, log)
		a.worker = worker.NewReportWorker(
			workerPool,
			a.consumer,
			jobService,
			worker.ReportWorkerOptions{
				ExecuteTimeout: cfg.Jobs.ExecuteTimeout,
				RequeueDelay:   cfg.Retry.MaxInterval,
			},
			log,
		)
		a.reaper = worker.NewReaper(jobService, cfg.Jobs.ReapInterval, log)
	}

	if mode.serves() {
		handler := httpd.NewHandler(jobService, artifactService, cfg.Server.MaxBodyBytes, logger.Component(log, "http"))
		handler.AddHealthCheck("postgres", db.PingContext)
		handler.AddHealthCheck("storage", blobs.Ping)
		handler.AddHealthCheck("queue", a.pingQueue)
		handler.AddStatsSource("database", func(ctx context.Context) interface{} {
			return db.Stats()
		})
		if a.worker != nil {
			handler.AddStatsSource("worker", func(ctx context.Context) interface{} {
				return a.worker.GetStats(ctx)
			})
		}

		a.server = a.newServer(handler)
	}

	return a, nil
}

func (a *App) setupQueue() error {
	cfg := a.config

	switch cfg.Queue.Driver {
	case "redis":
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redisClient.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		redisQueue := queue.NewRedisQueue(
			a.redisClient,
			cfg.Redis.QueueKey,
			queue.InstanceTag(cfg.RabbitMQ.ConsumerTag),
			cfg.Redis.BlockTimeout,
			a.logger,
		)
		a.publisher = redisQueue
		a.consumer = redisQueue
		a.logger.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis work queue")
		return nil

	default:
		broker, err := queue.DialRabbitMQ(queue.RabbitMQOptions{
			URL:           cfg.RabbitMQ.URL,
			Exchange:      cfg.RabbitMQ.Exchange,
			RoutingKey:    cfg.RabbitMQ.RoutingKey,
			QueueName:     cfg.RabbitMQ.QueueName,
			ConsumerTag:   cfg.RabbitMQ.ConsumerTag,
			PrefetchCount: cfg.RabbitMQ.PrefetchCount,
			RetryAttempts: cfg.RabbitMQ.RetryAttempts,
			RetryDelay:    cfg.RabbitMQ.RetryDelay,
		}, a.logger)
		if err != nil {
			return err
		}
		a.broker = broker

		if a.publisher, err = broker.NewPublisher(); err != nil {
			return err
		}
		if a.mode.consumes() {
			if a.consumer, err = broker.NewConsumer(); err != nil {
				return err
			}
		}
		return nil
	}
}

func (a *App) pingQueue(ctx context.Context) error {
	if a.redisClient != nil {
		return a.redisClient.Ping(ctx).Err()
	}
	return a.broker.Ping()
}

func (a *App) newServer(handler *httpd.Handler) *http.Server {
	cfg := a.config
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	return &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// Run blocks until ctx is cancelled or a component fails, then shuts the
// remaining components down and releases connections.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.logger.Info().Msgf("Starting report service on %s", a.config.Server.Address)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return a.shutdownServer()
		})
	}

	if a.worker != nil {
		g.Go(func() error {
			return a.worker.Run(gctx)
		})
		g.Go(func() error {
			return a.reaper.Run(gctx)
		})
	}

	err := g.Wait()
	a.close()
	return err
}

func (a *App) shutdownServer() error {
	a.logger.Info().Msg("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}
	return nil
}

func (a *App) close() {
	a.closeQueue()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	a.logger.Info().Str("mode", string(a.mode)).Msg("Report service stopped")
}

func (a *App) closeQueue() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close queue publisher")
		}
	}

	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}
}
