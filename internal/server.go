package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2beens/notesservice/internal/config"
	"github.com/2beens/notesservice/internal/db"
	"github.com/2beens/notesservice/internal/health"
	"github.com/2beens/notesservice/internal/middleware"
	"github.com/2beens/notesservice/internal/notes"
	"github.com/2beens/notesservice/internal/telemetry/metrics"
	"github.com/2beens/notesservice/internal/telemetry/tracing"
)

const serviceName = "notes-service"

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config  *config.Config
	dbPool  *pgxpool.Pool
	sqlDB   *sql.DB
	redisDB *redis.Client // nil when rate limiting is off

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config *config.Config
}

func (p NewServerParams) dbPoolParams() db.NewDBPoolParams {
	return db.NewDBPoolParams{
		DBHost:         p.Config.PostgresHost,
		DBPort:         p.Config.PostgresPort,
		DBName:         p.Config.PostgresDBName,
		DBUser:         p.Config.PostgresUser,
		DBPassword:     p.Config.PostgresPassword,
		SSLMode:        p.Config.PostgresSSLMode,
		MaxConns:       p.Config.PostgresMaxConns,
		TracingEnabled: p.Config.HoneycombEnabled,
	}
}

// NewServer opens the store handles and creates the note table. Nothing is
// served before Serve is called.
func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.Config.HoneycombEnabled, serviceName)
	if err != nil {
		return nil, err
	}

	dbPool, err := db.NewDBPool(ctx, params.dbPoolParams())
	if err != nil {
		otelShutdown()
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	if err := db.CreateSchema(ctx, dbPool); err != nil {
		dbPool.Close()
		otelShutdown()
		return nil, err
	}

	sqlDB, err := db.NewSessionDB(db.NewSessionDBParams{
		Pool:         params.dbPoolParams(),
		MaxOpenConns: params.Config.SessionMaxOpenConns,
		MaxIdleConns: params.Config.SessionMaxOpenConns,
	})
	if err != nil {
		dbPool.Close()
		otelShutdown()
		return nil, fmt.Errorf("new session db: %w", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("notes", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0) // set to 1 once serving

	s := &Server{
		config:         params.Config,
		dbPool:         dbPool,
		sqlDB:          sqlDB,
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	if params.Config.RedisHost != "" && params.Config.CreateRateLimitPerMin > 0 {
		rdb := redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
			Password: params.Config.RedisPassword,
			DB:       0, // use default DB
		})
		if params.Config.HoneycombEnabled {
			rdb.AddHook(redisotel.NewTracingHook())
		}

		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
		s.redisDB = rdb
	} else {
		log.Debugln("create rate limiting disabled")
	}

	return s, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("notes-router"))

	var createLimiter mux.MiddlewareFunc
	if s.redisDB != nil {
		createLimiter = middleware.RateLimit(
			redis_rate.NewLimiter(s.redisDB),
			"create-note",
			s.config.CreateRateLimitPerMin,
			s.metricsManager,
		)
	}

	notesHandler := notes.NewHandler(
		notes.NewRepo(s.dbPool),
		notes.NewSessionStore(s.sqlDB),
		s.metricsManager,
	)
	notesHandler.SetupRoutes(r, createLimiter)

	healthHandler := s.healthHandler()
	log.Debugf("health checks: %v", healthHandler.Components())
	r.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET").Name("health")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.CorsAllowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

// healthHandler checks both store pools, and redis when rate limiting is on.
func (s *Server) healthHandler() *health.Handler {
	healthHandler := health.NewHandler().
		With("postgres", s.dbPool).
		With("postgres-sessions", health.PingerFunc(s.sqlDB.PingContext))
	if s.redisDB != nil {
		healthHandler.With("redis", health.RedisPinger(s.redisDB))
	}
	return healthHandler
}

func (s *Server) Serve(host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", otelhttp.NewHandler(
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
		"metrics",
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

// GracefulShutdown stops accepting requests, waits for the in-flight ones and
// only then closes the store handles.
func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown http server: %s", err)
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown metrics http server: %s", err)
		}
		log.Warnln("metrics server shut down")
	}

	if s.redisDB != nil {
		if err := s.redisDB.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.sqlDB != nil {
		if err := s.sqlDB.Close(); err != nil {
			log.Errorf("failed to close session db: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
