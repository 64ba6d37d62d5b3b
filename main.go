package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"

	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/Ramsey-B/juniper/config"
	facilityrepo "github.com/Ramsey-B/juniper/internal/repositories/facility"
	facilitymatchrepo "github.com/Ramsey-B/juniper/internal/repositories/facilitymatch"
	listitemrepo "github.com/Ramsey-B/juniper/internal/repositories/listitem"
	"github.com/Ramsey-B/juniper/pkg/candidates"
	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/events"
	"github.com/Ramsey-B/juniper/pkg/facilityid"
	"github.com/Ramsey-B/juniper/pkg/geocoding"
	"github.com/Ramsey-B/juniper/pkg/graph"
	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/matching"
	"github.com/Ramsey-B/juniper/pkg/middleware"
	"github.com/Ramsey-B/juniper/pkg/processor"
	facilityroutes "github.com/Ramsey-B/juniper/pkg/routes/facility"
	"github.com/Ramsey-B/juniper/pkg/routes/health"
	matchroutes "github.com/Ramsey-B/juniper/pkg/routes/match"
	sourceroutes "github.com/Ramsey-B/juniper/pkg/routes/source"
	"github.com/Ramsey-B/juniper/pkg/startup"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/Ramsey-B/juniper/pkg/tracing/exporters"
)

const version = "1.0.0"

// dependency adapts a start/stop function pair to the startup DAG
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	logger := newLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := setupTracing(cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to set up tracing")
		} else {
			defer shutdown(context.Background())
		}
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger ectologger.Logger) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}

	var (
		db         database.DB
		sqlDB      *sqlx.DB
		producer   *kafka.Producer
		consumer   *kafka.Consumer
		graphConn  *graph.Client
		checker    *health.Checker
		httpServer *echo.Echo
	)

	// Consumer and server outlive the startup context
	serviceCtx, stopService := context.WithCancel(context.Background())
	defer stopService()

	app := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)

	app.AddDependency(&dependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			dsn := fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
			)
			sqlDB, err = sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			sqlDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
			db = database.NewDatabaseInstance(sqlDB, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if sqlDB != nil {
				return sqlDB.Close()
			}
			return nil
		},
	})

	app.AddDependency(&dependency{
		name:      "migrations",
		dependsOn: []string{"postgres"},
		start: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(sqlDB.DB, &migratepg.Config{})
			if err != nil {
				return fmt.Errorf("failed to create migration driver: %w", err)
			}
			ms := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return ms.Migrate(cfg.DatabaseName, driver)
		},
	})

	app.AddDependency(&dependency{
		name: "graph",
		start: func(ctx context.Context) error {
			if !cfg.GraphDBEnabled {
				logger.Info("Graph projection disabled")
				return nil
			}
			graphConn, err = graph.NewClient(graph.Config{
				Host:     cfg.GraphDBHost,
				Port:     cfg.GraphDBPort,
				Username: cfg.GraphDBUser,
				Password: cfg.GraphDBPassword,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to create graph client: %w", err)
			}
			return graphConn.VerifyConnectivity(ctx)
		},
		stop: func(ctx context.Context) error {
			if graphConn != nil {
				return graphConn.Close(ctx)
			}
			return nil
		},
	})

	app.AddDependency(&dependency{
		name:      "pipeline",
		dependsOn: []string{"migrations", "graph"},
		start: func(ctx context.Context) error {
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.KafkaBrokers,
				Topic:        cfg.KafkaOutputTopic,
				BatchSize:    cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: cfg.KafkaRequiredAcks,
				Compression:  cfg.KafkaCompression,
			}, logger)

			generator := facilityid.NewGenerator()
			facilities := facilityrepo.NewRepository(db, logger)
			listItems := listitemrepo.NewRepository(db, logger)
			matches := facilitymatchrepo.NewRepository(db, logger, generator)
			retriever := candidates.NewSQLRetriever(facilities, logger, cfg.MaxCandidates)
			engine := matching.NewEngine(logger, matching.EngineConfig{
				AutomaticThreshold: cfg.AutomaticThreshold,
				PendingGate:        cfg.PendingGate,
				Weights: matching.Weights{
					Name:            cfg.NameWeight,
					Address:         cfg.AddressWeight,
					Distance:        cfg.DistanceWeight,
					LocationType:    cfg.LocationTypeWeight,
					SearchRelevance: cfg.SearchScoreWeight,
				},
			})
			emitter := events.NewEmitter(producer, logger)

			var geocoder geocoding.Geocoder
			if cfg.GeocoderEnabled && cfg.GeocoderAPIKey != "" {
				geocoder = geocoding.NewGoogleGeocoder(cfg.GeocoderAPIKey, logger)
			}

			opts := processor.Options{
				MaxRetries:   cfg.ProcessMaxRetries,
				RetryBackoff: cfg.ProcessRetryBackoff,
			}

			var proc *processor.Processor
			if graphConn != nil {
				projection := graph.NewProjection(graphConn, logger)
				proc = processor.NewProcessor(logger, listItems, facilities, retriever, engine, matches, emitter, geocoder, projection, opts)
			} else {
				proc = processor.NewProcessor(logger, listItems, facilities, retriever, engine, matches, emitter, geocoder, nil, opts)
			}

			if cfg.KafkaConsumerEnabled {
				consumer = kafka.NewConsumer(cfg, logger, proc.ProcessMessage)
				if err := consumer.Start(serviceCtx); err != nil {
					return fmt.Errorf("failed to start kafka consumer: %w", err)
				}
				checker = health.NewChecker(db, consumer, version)
			} else {
				checker = health.NewChecker(db, nil, version)
			}

			if err := ectoinject.RegisterInstance[config.Config](container, cfg); err != nil {
				return fmt.Errorf("failed to register config: %w", err)
			}
			if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
				return fmt.Errorf("failed to register logger: %w", err)
			}
			if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
				return fmt.Errorf("failed to register database: %w", err)
			}
			if err := ectoinject.RegisterInstance[*facilityid.Generator](container, generator); err != nil {
				return fmt.Errorf("failed to register facility id generator: %w", err)
			}
			if err := ectoinject.RegisterInstance[*facilityrepo.Repository](container, facilities); err != nil {
				return fmt.Errorf("failed to register facility repository: %w", err)
			}
			if err := ectoinject.RegisterInstance[*listitemrepo.Repository](container, listItems); err != nil {
				return fmt.Errorf("failed to register list item repository: %w", err)
			}
			if err := ectoinject.RegisterInstance[*facilitymatchrepo.Repository](container, matches); err != nil {
				return fmt.Errorf("failed to register facility match repository: %w", err)
			}
			if err := ectoinject.RegisterInstance[*events.Emitter](container, emitter); err != nil {
				return fmt.Errorf("failed to register event emitter: %w", err)
			}
			if err := ectoinject.RegisterInstance[*processor.Processor](container, proc); err != nil {
				return fmt.Errorf("failed to register processor: %w", err)
			}
			return nil
		},
		stop: func(ctx context.Context) error {
			if consumer != nil {
				if err := consumer.Stop(); err != nil {
					logger.WithError(err).Warn("Failed to stop kafka consumer")
				}
			}
			if producer != nil {
				return producer.Close()
			}
			return nil
		},
	})

	app.AddDependency(&dependency{
		name:      "http",
		dependsOn: []string{"pipeline"},
		start: func(ctx context.Context) error {
			e := echo.New()
			e.HideBanner = true
			e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
			e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
			e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
			e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
			e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

			e.Use(otelecho.Middleware(cfg.AppName))
			e.Use(middleware.Logger(logger))
			e.Use(middleware.Context())
			e.HTTPErrorHandler = middleware.Error(logger)

			api := e.Group("/api/v1")
			facilityroutes.Register(api.Group("/facilities"))
			matchroutes.Register(api.Group("/matches"))
			sourceroutes.Register(api.Group("/sources"))
			checker.RegisterRoutes(e)

			httpServer = e
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
					stopService()
				}
			}()
			checker.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			if checker != nil {
				checker.SetReady(false)
			}
			if httpServer != nil {
				return httpServer.Shutdown(ctx)
			}
			return nil
		},
	})

	startCtx, cancelStart := context.WithTimeout(serviceCtx, 2*time.Minute)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	logger.WithField("port", cfg.Port).Infof("%s started on port %d", cfg.AppName, cfg.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Infof("Received signal %s, shutting down", s)
	case <-serviceCtx.Done():
		logger.Info("Service context cancelled, shutting down")
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	return app.Stop(stopCtx)
}

// newLogger builds the zap-backed structured logger
func newLogger(cfg config.Config) ectologger.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = level
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// setupTracing wires the OTLP exporter and registers the global tracer
func setupTracing(cfg config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(context.Background(), exporters.OTLPConfig{
		Endpoint: cfg.TracingEndpoint,
		Protocol: cfg.TracingProtocol,
		Insecure: cfg.TracingInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(
		context.Background(),
		sdkresource.WithAttributes(semconv.ServiceNameKey.String(cfg.AppName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	return tp.Shutdown, nil
}
