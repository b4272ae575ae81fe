/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment), then apply command-line flags
  2. Open the SQL store (SQLite or MySQL) and migrate the schema
  3. Connect optional infrastructure: Redis locks, RabbitMQ events
  4. Build the ledger services and the API handler
  5. Optionally load a demo scenario
  6. Start the reconciliation scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -port      HTTP server port (PORT)
  -driver    sqlite3 or mysql (DB_DRIVER)
  -db        Database DSN or SQLite path (DB_DSN); ":memory:" works for SQLite
  -redis     Redis address for cross-process item locks (REDIS_ADDRESS)
  -scenario  Demo scenario to load on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close publishers and the database

EXAMPLES:
  # SQLite file with demo data
  ./server -db=./data/stock.db -scenario=low-stock

  # Two processes sharing MySQL, serialized through Redis
  ./server -driver=mysql -db="user:pw@tcp(db:3306)/stock" -redis=redis:6379

SEE ALSO:
  - config/config.go: environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/events"
	"github.com/warp/stock-ledger/identity"
	"github.com/warp/stock-ledger/lock"
	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := config.NewLogger(os.Stderr, "info", true)
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	// Flags
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "database driver: sqlite3 or mysql")
	flag.StringVar(&cfg.DBDSN, "db", cfg.DBDSN, "database DSN or SQLite path")
	flag.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, "Redis address for item locks (empty: in-process)")
	scenario := flag.String("scenario", "", "demo scenario to load on startup")
	flag.Parse()

	log := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize store
	store, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to initialize database")
	}
	defer store.Close()

	retries := cfg.MaxRetries
	if retries == 0 {
		retries = stock.NoRetries
	}
	opts := stock.Options{
		Actors:     identity.NewCachedResolver(stock.StoreActors{Reader: store}, identity.DefaultSize, cfg.ActorCacheTTL),
		Log:        log,
		MaxRetries: retries,
	}

	if cfg.RedisAddress != "" {
		rdb, err := lock.Connect(context.Background(), cfg.RedisAddress)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddress).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		opts.Locker = lock.NewRedisLocker(rdb, lock.WithLogger(log.With().Str("component", "lock").Logger()))
		log.Info().Str("addr", cfg.RedisAddress).Msg("using redis item locks")
	}

	sinks := events.Fanout{events.LogSink{Log: log.With().Str("component", "events").Logger()}}
	if cfg.RabbitMQURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		log.Info().Str("exchange", cfg.RabbitMQExchange).Msg("publishing events to rabbitmq")
	}
	opts.Events = sinks

	services := stock.New(store, opts)
	handler := api.NewHandler(services, store, log.With().Str("component", "api").Logger())

	if *scenario != "" {
		if err := handler.Load(context.Background(), *scenario); err != nil {
			log.Fatal().Err(err).Str("scenario", *scenario).Msg("failed to load scenario")
		}
	}

	scheduler := api.NewReconciliationScheduler(services, log)
	scheduler.CheckInterval = cfg.ReconcileInterval
	scheduler.Enabled = cfg.ReconcileInterval > 0
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Str("driver", store.Driver()).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
