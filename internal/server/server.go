// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/auth"
	"github.com/foodcash/foodcash/internal/catalog"
	"github.com/foodcash/foodcash/internal/celo"
	"github.com/foodcash/foodcash/internal/config"
	"github.com/foodcash/foodcash/internal/cryptorecharges"
	"github.com/foodcash/foodcash/internal/health"
	"github.com/foodcash/foodcash/internal/logging"
	"github.com/foodcash/foodcash/internal/metrics"
	"github.com/foodcash/foodcash/internal/money"
	"github.com/foodcash/foodcash/internal/orders"
	"github.com/foodcash/foodcash/internal/ratelimit"
	"github.com/foodcash/foodcash/internal/realtime"
	"github.com/foodcash/foodcash/internal/recharges"
	"github.com/foodcash/foodcash/internal/security"
	"github.com/foodcash/foodcash/internal/students"
	"github.com/foodcash/foodcash/internal/traces"
	"github.com/foodcash/foodcash/internal/validation"
	"github.com/foodcash/foodcash/internal/wompi"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	authService    *auth.Service
	studentService *students.Service
	catalogService *catalog.Service
	orderService   *orders.Service
	rechargeSvc    *recharges.Service
	cryptoSvc      *cryptorecharges.Service
	chainClient    *celo.Client
	gateway        *wompi.Gateway
	realtimeHub    *realtime.Hub
	rateLimiter    *ratelimit.Limiter
	healthChecks   *health.Registry

	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	shutdownTrace func(context.Context) error
	cancelRunCtx  context.CancelFunc

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChainClient injects a chain verifier (for testing)
func WithChainClient(c *celo.Client) Option {
	return func(s *Server) {
		s.chainClient = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, "json"),
		healthChecks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTrace, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.shutdownTrace = shutdownTrace

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		authStore     auth.Store
		studentStore  students.Store
		catalogStore  catalog.Store
		orderStore    orders.Store
		rechargeStore recharges.Store
		cryptoStore   cryptorecharges.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		pgAuth := auth.NewPostgresStore(db)
		pgStudents := students.NewPostgresStore(db)
		pgCatalog := catalog.NewPostgresStore(db)
		pgOrders := orders.NewPostgresStore(db)
		pgRecharges := recharges.NewPostgresStore(db)
		pgCrypto := cryptorecharges.NewPostgresStore(db)

		migrators := []interface {
			Migrate(ctx context.Context) error
		}{pgAuth, pgStudents, pgCatalog, pgOrders, pgRecharges, pgCrypto}
		for _, m := range migrators {
			if err := m.Migrate(ctx); err != nil {
				s.logger.Warn("store migration failed", "error", err)
			}
		}

		authStore = pgAuth
		studentStore = pgStudents
		catalogStore = pgCatalog
		orderStore = pgOrders
		rechargeStore = pgRecharges
		cryptoStore = pgCrypto

		s.healthChecks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		authStore = auth.NewMemoryStore()
		studentStore = students.NewMemoryStore()
		catalogStore = catalog.NewMemoryStore()
		orderStore = orders.NewMemoryStore()
		rechargeStore = recharges.NewMemoryStore()
		cryptoStore = cryptorecharges.NewMemoryStore()
	}

	// Core services
	s.authService = auth.NewService(authStore, cfg.JWTSecret)
	s.studentService = students.NewService(studentStore)
	s.catalogService = catalog.NewService(catalogStore)
	s.orderService = orders.NewService(orderStore, s.catalogService, s.studentService, s.logger)

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Card rail (Wompi)
	s.gateway = wompi.NewGateway(wompi.Config{
		PublicKey:       cfg.WompiPublicKey,
		IntegritySecret: cfg.WompiIntegritySecret,
		WebhookSecret:   cfg.WompiWebhookSecret,
		FrontendURL:     cfg.FrontendURL,
	})
	bounds, err := cardBounds(cfg)
	if err != nil {
		return nil, err
	}
	s.rechargeSvc = recharges.NewService(rechargeStore, s.gateway, s.studentService,
		s.realtimeHub.CardNotifier(), bounds, s.logger)
	if s.gateway.Enabled() {
		s.logger.Info("card recharges enabled", "public_key", cfg.WompiPublicKey)
	} else {
		s.logger.Warn("card recharges disabled (Wompi keys not configured)")
	}

	// Crypto rail (Celo / cCOP)
	if s.chainClient == nil && cfg.CeloRPCURL != "" {
		client, err := celo.NewClient(celo.Config{
			RPCURL:           cfg.CeloRPCURL,
			TokenContract:    common.HexToAddress(cfg.CCOPContract),
			ReceivingAddress: common.HexToAddress(cfg.ReceivingAddr),
			TokenDecimals:    int32(cfg.TokenDecimals),
			RequestTimeout:   time.Duration(cfg.ChainTimeoutSec) * time.Second,
		}, s.logger)
		if err != nil {
			s.logger.Warn("failed to connect to Celo RPC, crypto recharges degraded", "error", err)
		} else {
			s.chainClient = client
		}
	}
	if s.chainClient != nil {
		cryptoCfg, err := cryptoConfig(cfg)
		if err != nil {
			return nil, err
		}
		s.cryptoSvc = cryptorecharges.NewService(cryptoStore, s.chainClient, s.authService,
			s.realtimeHub.CryptoNotifier(), cryptoCfg, s.logger)
		s.healthChecks.Register("celo", func(ctx context.Context) health.Status {
			if !s.chainClient.Connected(ctx) {
				return health.Status{Name: "celo", Healthy: false, Detail: "RPC unreachable"}
			}
			return health.Status{Name: "celo", Healthy: true}
		})
		if cfg.CryptoRailEnabled() {
			s.logger.Info("crypto recharges enabled",
				"contract", cfg.CCOPContract, "receiving", cfg.ReceivingAddr)
		} else {
			s.logger.Warn("crypto recharges disabled (FOODCASH_CELO_ADDRESS not set)")
		}
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func cardBounds(cfg *config.Config) (recharges.Bounds, error) {
	min, err := money.Parse(cfg.CardMinAmount)
	if err != nil {
		return recharges.Bounds{}, fmt.Errorf("CARD_MIN_AMOUNT: %w", err)
	}
	max, err := money.Parse(cfg.CardMaxAmount)
	if err != nil {
		return recharges.Bounds{}, fmt.Errorf("CARD_MAX_AMOUNT: %w", err)
	}
	return recharges.Bounds{Min: min, Max: max}, nil
}

func cryptoConfig(cfg *config.Config) (cryptorecharges.Config, error) {
	min, err := money.Parse(cfg.CryptoMinAmount)
	if err != nil {
		return cryptorecharges.Config{}, fmt.Errorf("CRYPTO_MIN_AMOUNT: %w", err)
	}
	max, err := money.Parse(cfg.CryptoMaxAmount)
	if err != nil {
		return cryptorecharges.Config{}, fmt.Errorf("CRYPTO_MAX_AMOUNT: %w", err)
	}
	return cryptorecharges.Config{
		Destination: cfg.ReceivingAddr,
		MinCOP:      min,
		MaxCOP:      max,
		TTL:         time.Duration(cfg.CryptoTTLMin) * time.Minute,
		Tolerance:   decimal.NewFromFloat(0.01),
	}, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS restricted to the parent dashboard when configured
	corsOrigins := []string{"*"}
	if s.cfg.FrontendURL != "" {
		corsOrigins = []string{s.cfg.FrontendURL}
	}
	s.router.Use(security.CORSMiddleware(corsOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time recharge/purchase events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	s.router.GET("/api", s.infoHandler)

	api := s.router.Group("/api")

	authHandler := auth.NewHandler(s.authService)
	studentHandler := students.NewHandler(s.studentService)
	catalogHandler := catalog.NewHandler(s.catalogService)
	orderHandler := orders.NewHandler(s.orderService)
	rechargeHandler := recharges.NewHandler(s.rechargeSvc)

	// PUBLIC ROUTES (no auth required)
	// Register/login, and the gateway webhook which authenticates itself
	// by signature.
	authHandler.RegisterRoutes(api)
	rechargeHandler.RegisterRoutes(api)

	// PROTECTED ROUTES (require JWT)
	protected := api.Group("")
	protected.Use(auth.Middleware(s.authService))
	{
		authHandler.RegisterProtectedRoutes(protected)
		studentHandler.RegisterProtectedRoutes(protected)
		catalogHandler.RegisterProtectedRoutes(protected)
		orderHandler.RegisterProtectedRoutes(protected)
		rechargeHandler.RegisterProtectedRoutes(protected)
	}

	// ADMIN ROUTES (cafeteria staff)
	admin := api.Group("")
	admin.Use(auth.Middleware(s.authService), auth.RequireRole(auth.RoleAdmin))
	{
		studentHandler.RegisterAdminRoutes(admin)
		catalogHandler.RegisterAdminRoutes(admin)
		orderHandler.RegisterAdminRoutes(admin)
		rechargeHandler.RegisterAdminRoutes(admin)
	}

	// Crypto rail routes, only when a chain client is available
	if s.cryptoSvc != nil {
		cryptoHandler := cryptorecharges.NewHandler(s.cryptoSvc)
		cryptoHandler.RegisterRoutes(api)

		protectedCrypto := api.Group("")
		protectedCrypto.Use(auth.Middleware(s.authService))
		cryptoHandler.RegisterProtectedRoutes(protectedCrypto)
	}
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthChecks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	rails := []string{}
	if s.gateway.Enabled() {
		rails = append(rails, "card")
	}
	if s.cryptoSvc != nil && s.cfg.CryptoRailEnabled() {
		rails = append(rails, "crypto")
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        "FoodCash",
		"description": "School cafeteria payment backend",
		"version":     "0.1.0",
		"currency":    "COP",
		"rails":       rails,
	})
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
