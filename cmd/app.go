package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eodmarker/application"
	"eodmarker/config"
	"eodmarker/database"
	"eodmarker/infrastructure"
	"eodmarker/infrastructure/observability"
	"eodmarker/lock"
	"eodmarker/repository"
	"eodmarker/server"
	"eodmarker/service"
)

// App holds the wired components of one process
type App struct {
	Config     *config.Config
	InstanceID string
	Location   *time.Location

	DB        *database.DB
	Metrics   *observability.MetricsProvider
	Publisher service.EventPublisher
	Clock     *service.BusinessClock
	EOD       service.EODService
	JobRuns   *repository.JobRunRepository
	Executor  *lock.Executor
	Scheduler *application.Scheduler
	Server    *server.Server

	closers []func(ctx context.Context)
}

// NewApp connects to every backing service and wires the components.
// Nothing is started; call Close to release connections.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		InstanceID: resolveInstanceID(cfg.InstanceID),
		Location:   loc,
	}

	if err := app.wire(ctx); err != nil {
		app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	// Initialize metrics
	a.Metrics = observability.NewMetricsProvider(cfg)
	if err := a.Metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.addCloser(func(ctx context.Context) {
		if err := a.Metrics.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Error shutting down metrics provider")
		}
	})

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db
	a.addCloser(func(context.Context) { db.Close() })

	// Initialize event publishing
	publisher, err := a.newPublisher(ctx)
	if err != nil {
		return err
	}
	a.Publisher = publisher

	// Initialize lock provider
	provider, err := a.newLockProvider(ctx)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"provider":   cfg.LockProvider,
		"instanceId": a.InstanceID,
	}).Info("Lock provider initialized")

	// Initialize services
	uowFactory := repository.NewUnitOfWorkFactory(db, func() service.TransactionalEventPublisher {
		return infrastructure.NewTransactionalPublisher(publisher)
	})
	a.Clock = service.NewBusinessClock(a.Location)
	a.EOD = service.NewEODService(uowFactory, repository.NewStatusRepository(db), a.Clock)
	a.JobRuns = repository.NewJobRunRepository(db)

	// Initialize scheduler
	a.Executor = lock.NewExecutor(provider,
		lock.WithRecorder(a.JobRuns),
		lock.WithMetrics(a.Metrics),
	)
	a.Scheduler, err = application.NewScheduler(application.SchedulerConfig{
		Spec:     cfg.Schedule,
		Location: a.Location,
		Lock: lock.Config{
			Name:           cfg.LockName,
			LockAtLeastFor: cfg.LockAtLeastFor,
			LockAtMostFor:  cfg.LockAtMostFor,
		},
		InstanceID: a.InstanceID,
	}, a.Executor, a.EOD, publisher, a.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	a.Server = server.NewServer(cfg.HTTPAddr, a.EOD, a.Metrics)
	return nil
}

func (a *App) newPublisher(ctx context.Context) (service.EventPublisher, error) {
	if a.Config.NATSServers == "" {
		log.Info("NATS_SERVERS not set, events will not be published")
		return infrastructure.NewNoopEventPublisher(), nil
	}

	client := infrastructure.NewNATSClient(a.Config.NATSServers, "eodmarker-"+a.InstanceID)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.addCloser(func(context.Context) {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Error closing NATS connection")
		}
	})

	if err := client.EnsureStream(infrastructure.EventStreamName, infrastructure.AllSubjects()); err != nil {
		return nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}

	return infrastructure.NewNATSEventPublisher(client, a.InstanceID, a.Metrics), nil
}

func (a *App) newLockProvider(ctx context.Context) (lock.Provider, error) {
	cfg := a.Config

	switch cfg.LockProvider {
	case config.LockProviderPostgres:
		return lock.NewPostgresProvider(a.DB, a.InstanceID), nil

	case config.LockProviderRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.addCloser(func(context.Context) {
			if err := client.Close(); err != nil {
				log.WithError(err).Warn("Error closing Redis client")
			}
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
		}
		return lock.NewRedisProvider(client, a.InstanceID), nil

	case config.LockProviderMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to create Mongo client: %w", err)
		}
		a.addCloser(func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				log.WithError(err).Warn("Error disconnecting Mongo client")
			}
		})
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("failed to connect to Mongo: %w", err)
		}
		return lock.NewMongoProvider(client.Database(cfg.MongoDatabase), a.InstanceID), nil

	case config.LockProviderMemory:
		log.Warn("Using in-memory lock provider, locks are not shared between processes")
		return lock.NewMemoryProvider(a.InstanceID), nil

	default:
		return nil, fmt.Errorf("unknown lock provider: %s", cfg.LockProvider)
	}
}

func (a *App) addCloser(fn func(ctx context.Context)) {
	a.closers = append(a.closers, fn)
}

// Close releases connections in reverse order of creation
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

// resolveInstanceID falls back to the hostname plus a random suffix when no
// id is configured. Lock owners stay unique even when hostnames repeat.
func resolveInstanceID(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}

// configureLogging applies the configured level and format to the global logger
func configureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
