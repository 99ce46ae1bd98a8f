package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/auth"
	"github.com/dukerupert/pawlog/internal/backup"
	"github.com/dukerupert/pawlog/internal/bucket"
	"github.com/dukerupert/pawlog/internal/config"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/handler"
	"github.com/dukerupert/pawlog/internal/middleware"
	"github.com/dukerupert/pawlog/internal/record"
	"github.com/dukerupert/pawlog/internal/view"
	ws "github.com/dukerupert/pawlog/internal/websocket"
)

const relayChannel = "pawlog:changes"

type Server struct {
	db       *sql.DB
	registry *prometheus.Registry
	hub      *ws.Hub
	docs     *docstore.Store
	runner   *aggregate.Runner

	entryH     *handler.EntryHandler
	weightH    *handler.WeightHandler
	viewH      *handler.ViewHandler
	reconcileH *handler.ReconcileHandler
	calendar   *view.Calendar
	trend      *view.Trend

	entries       *record.EntryStore
	weights       *record.WeightStore
	reconciler    *aggregate.Reconciler
	backupManager *backup.Manager
	issuer        *auth.Issuer
	rateLimiter   *middleware.RateLimiter
	redis         *redis.Client
	relay         *docstore.RedisRelay
	logger        *slog.Logger
}

// New wires the document store, the aggregate synchronizers and the HTTP
// handlers around db.
func New(db *sql.DB, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := aggregate.ParseMode(cfg.SyncMode)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := aggregate.NewMetrics(registry)
	hub := ws.NewHub(logger, registry)

	changes := docstore.NewHub()
	docOpts := []docstore.Option{
		docstore.WithHub(changes),
		docstore.WithGuard(auth.Guard),
		docstore.WithConflictHook(metrics.Conflict),
		docstore.WithRetry(uint64(cfg.SyncRetries), 5*time.Millisecond),
		docstore.WithLogger(logger.With("component", "docstore")),
	}

	s := &Server{
		db:       db,
		registry: registry,
		hub:      hub,
		logger:   logger,
	}

	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		s.relay = docstore.NewRedisRelay(s.redis, changes, relayChannel, logger.With("component", "relay"))
		docOpts = append(docOpts, docstore.WithRelay(s.relay))
	}

	docs := docstore.New(db, docOpts...)
	resolver := bucket.NewResolver(cfg.Timezone)

	entrySync := aggregate.NewSynchronizer(aggregate.EntryMonths(), docs, resolver, logger)
	weightSync := aggregate.NewSynchronizer(aggregate.WeightYears(), docs, resolver, logger)
	runnerOpts := []aggregate.RunnerOption{aggregate.WithMetrics(metrics), aggregate.WithRunnerLogger(logger)}
	if cfg.SyncTimeout > 0 {
		runnerOpts = append(runnerOpts, aggregate.WithTimeout(cfg.SyncTimeout))
	}
	runner := aggregate.NewRunner(mode, runnerOpts...)

	s.docs = docs
	s.runner = runner
	s.entries = record.NewEntryStore(docs, aggregate.Bind(entrySync, runner))
	s.weights = record.NewWeightStore(docs, aggregate.Bind(weightSync, runner))
	s.calendar = view.NewCalendar(docs)
	s.trend = view.NewTrend(docs, nil)
	s.reconciler = aggregate.NewReconciler(docs, metrics, logger, entrySync, weightSync)

	s.entryH = handler.NewEntryHandler(s.entries, record.NewEntryPager(docs, cfg.PageSize), logger.With("component", "entry"))
	s.weightH = handler.NewWeightHandler(s.weights, record.NewWeightPager(docs, cfg.PageSize), logger.With("component", "weight"))
	s.viewH = handler.NewViewHandler(s.calendar, s.trend, logger.With("component", "view"))
	s.reconcileH = handler.NewReconcileHandler(s.reconciler, logger.With("component", "reconcile"))

	if !cfg.LocalMode() {
		s.issuer = auth.NewIssuer(cfg.JWTSecret)
	}
	if cfg.WriteRateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(cfg.WriteRateLimit, time.Minute)
	}

	s.backupManager = backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
		Passphrase:    cfg.BackupPassphrase,
		RetentionDays: cfg.BackupRetentionDays,
	}, db, backup.NewStore(db), logger, func(st backup.Status) {
		hub.Broadcast(ws.Message{Type: ws.TypeNotice, Data: map[string]any{"backup": st}})
	})

	return s, nil
}

func (s *Server) Entries() *record.EntryStore { return s.entries }

func (s *Server) Weights() *record.WeightStore { return s.weights }

func (s *Server) Reconciler() *aggregate.Reconciler { return s.reconciler }

func (s *Server) BackupManager() *backup.Manager { return s.backupManager }

func (s *Server) Issuer() *auth.Issuer { return s.issuer }

// RateLimiter is nil when write limiting is off.
func (s *Server) RateLimiter() *middleware.RateLimiter { return s.rateLimiter }

// Relay is nil unless a Redis address is configured.
func (s *Server) Relay() *docstore.RedisRelay { return s.relay }

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/", middleware.Authenticate(s.issuer)(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	pet := func(h http.HandlerFunc) http.Handler {
		limited := middleware.LimitWrites(s.rateLimiter, middleware.ActorKey)(h)
		return middleware.RequirePet(limited)
	}

	mux.Handle("POST /api/pets/{pet}/entries", pet(s.entryH.Create))
	mux.Handle("GET /api/pets/{pet}/entries", pet(s.entryH.List))
	mux.Handle("GET /api/pets/{pet}/entries/{id}", pet(s.entryH.Get))
	mux.Handle("PATCH /api/pets/{pet}/entries/{id}", pet(s.entryH.Update))
	mux.Handle("DELETE /api/pets/{pet}/entries/{id}", pet(s.entryH.Delete))

	mux.Handle("POST /api/pets/{pet}/weights", pet(s.weightH.Create))
	mux.Handle("GET /api/pets/{pet}/weights", pet(s.weightH.List))
	mux.Handle("GET /api/pets/{pet}/weights/{id}", pet(s.weightH.Get))
	mux.Handle("PATCH /api/pets/{pet}/weights/{id}", pet(s.weightH.Update))
	mux.Handle("DELETE /api/pets/{pet}/weights/{id}", pet(s.weightH.Delete))

	mux.Handle("GET /api/pets/{pet}/calendar/{month}", pet(s.viewH.Calendar))
	mux.Handle("GET /api/pets/{pet}/trend", pet(s.viewH.Trend))
	mux.Handle("POST /api/pets/{pet}/reconcile", pet(s.reconcileH.Reconcile))

	mux.Handle("GET /ws/pets/{pet}/calendar", pet(ws.Calendar(s.hub, s.calendar)))
	mux.Handle("GET /ws/pets/{pet}/trend", pet(ws.Trend(s.hub, s.trend)))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Shutdown waits for in-flight bucket synchronization and releases the
// Redis connection. It gives up when ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runner.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for sync jobs: %w", ctx.Err())
	}

	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
