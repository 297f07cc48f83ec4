package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/api/middleware"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/coa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/event"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository/postgres"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/scheduler"
	schedulerjobs "github.com/shivang-goliyan/CloudRadius-sub000/internal/scheduler/jobs"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
	"github.com/shivang-goliyan/CloudRadius-sub000/pkg/smsgateway"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Database struct {
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"database"`
	Log struct {
		Level    string `mapstructure:"level"`
		Encoding string `mapstructure:"encoding"`
	} `mapstructure:"log"`
	Auth struct {
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Security struct {
		InternalToken     string `mapstructure:"internal_token"`
		InternalTokenFile string `mapstructure:"internal_token_file"`
	} `mapstructure:"security"`
	CoA struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"coa"`
	Sessions struct {
		StaleWindow time.Duration `mapstructure:"stale_window"`
	} `mapstructure:"sessions"`
	SMS struct {
		BaseURL    string `mapstructure:"base_url"`
		APIKey     string `mapstructure:"api_key"`
		APIKeyFile string `mapstructure:"api_key_file"`
		SenderID   string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
	Debug struct {
		PprofEnabled bool `mapstructure:"pprof_enabled"`
	} `mapstructure:"debug"`
}

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheck())
		case "migrate":
			if err := runMigrateCommand(); err != nil {
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		case "create-operator":
			if err := runCreateOperatorCommand(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	isDebugMode := strings.EqualFold(cfg.App.Env, "development")
	if !isDebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	dbPool, err := newDBPool(context.Background(), cfg)
	if err != nil {
		logger.Fatal("connect database failed", zap.Error(err))
	}
	defer dbPool.Close()

	tenantRepo := postgres.NewTenantRepository(dbPool)
	subscriberRepo := postgres.NewSubscriberRepository(dbPool)
	planRepo := postgres.NewPlanRepository(dbPool)
	nasRepo := postgres.NewNasRepository(dbPool)
	operatorRepo := postgres.NewOperatorRepository(dbPool)
	auditRepo := postgres.NewAuditRepository(dbPool)

	policyStore := aaa.NewStore(dbPool)
	engine := provision.NewEngine(policyStore, logger)
	outbox := provision.NewOutbox(dbPool)

	coaClient := coa.NewPacketClient(cfg.CoA.Timeout)
	coaController := coa.NewController(coaClient, logger)

	eventBus := event.NewBus()

	jwtPrivateKey, err := loadRSAPrivateKey()
	if err != nil {
		logger.Fatal("load jwt private key failed", zap.Error(err))
	}

	tenantSvc := service.NewTenantService(tenantRepo, auditRepo, logger)
	sessionSvc := service.NewSessionService(policyStore, nasRepo, coaController, cfg.Sessions.StaleWindow, logger)
	subscriberSvc := service.NewSubscriberService(subscriberRepo, planRepo, auditRepo, engine, outbox, sessionSvc, eventBus, logger)
	planSvc := service.NewPlanService(planRepo, subscriberRepo, auditRepo, engine, outbox, sessionSvc, logger)
	nasSvc := service.NewNasService(nasRepo, auditRepo, engine, outbox, logger)
	billingSvc := service.NewBillingService(tenantRepo, subscriberRepo, planRepo, auditRepo, dbPool, engine, outbox, sessionSvc, eventBus, logger)
	retrySvc := service.NewRetryService(outbox, tenantRepo, subscriberRepo, planRepo, nasRepo, engine, logger)
	auditSvc := service.NewAuditService(auditRepo, logger)
	systemSvc := service.NewSystemService(dbPool, outbox, logger)
	authSvc := service.NewAuthService(operatorRepo, jwtPrivateKey, &jwtPrivateKey.PublicKey, cfg.Auth.TokenTTL, logger)

	notificationSvc := service.NewNotificationService(subscriberRepo, tenantRepo, planRepo, newSMSSender(cfg, logger), logger)
	notificationSvc.SubscribeTo(eventBus)

	billingJob := schedulerjobs.NewBillingJob(billingSvc, logger)
	sessionJob := schedulerjobs.NewSessionJob(sessionSvc, logger)
	retryJob := schedulerjobs.NewRetryJob(retrySvc, logger)

	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		BillingJob: billingJob,
		SessionJob: sessionJob,
		RetryJob:   retryJob,
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg))
	router.Use(middleware.RequestLogger(logger))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	readyHandler := func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Database.PingTimeout)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}

	router.GET("/health", healthHandler)
	router.GET("/health/ready", readyHandler)
	router.GET("/metrics", middleware.InternalTokenAuth(cfg.Security.InternalToken), gin.WrapH(promhttp.Handler()))

	if isDebugMode && cfg.Debug.PprofEnabled {
		registerPprofRoutes(router)
		logger.Info("pprof endpoint enabled", zap.String("path", "/debug/pprof/"))
	}

	apiV1 := router.Group("/api/v1")
	api.RegisterRoutes(apiV1, api.Services{
		Auth:       authSvc,
		Tenant:     tenantSvc,
		Subscriber: subscriberSvc,
		Plan:       planSvc,
		Nas:        nasSvc,
		Session:    sessionSvc,
		Audit:      auditSvc,
		System:     systemSvc,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("server started",
		zap.String("addr", srv.Addr),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLOUDRADIUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "CLOUDRADIUS_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("security.internal_token", "")
	v.SetDefault("security.internal_token_file", "")
	v.SetDefault("coa.timeout", "3s")
	v.SetDefault("sessions.stale_window", "15m")
	v.SetDefault("sms.base_url", "")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.api_key_file", "")
	v.SetDefault("sms.sender_id", "")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("debug.pprof_enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if strings.TrimSpace(cfg.Security.InternalToken) == "" && strings.TrimSpace(cfg.Security.InternalTokenFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Security.InternalTokenFile))
		if err != nil {
			return Config{}, fmt.Errorf("read security.internal_token_file failed: %w", err)
		}
		cfg.Security.InternalToken = strings.TrimSpace(string(raw))
	}

	if strings.TrimSpace(cfg.SMS.APIKey) == "" && strings.TrimSpace(cfg.SMS.APIKeyFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.SMS.APIKeyFile))
		if err != nil {
			return Config{}, fmt.Errorf("read sms.api_key_file failed: %w", err)
		}
		cfg.SMS.APIKey = strings.TrimSpace(string(raw))
	}

	if cfg.Database.URL == "" {
		return Config{}, errors.New("database.url is required")
	}
	if cfg.Database.MaxConns <= 0 {
		return Config{}, errors.New("database.max_conns must be greater than 0")
	}
	if cfg.Database.PingTimeout <= 0 {
		return Config{}, errors.New("database.ping_timeout must be greater than 0")
	}

	if len(cfg.CORS.AllowOrigins) == 0 {
		return Config{}, errors.New("cors.allow_origins must not be empty")
	}
	for _, origin := range cfg.CORS.AllowOrigins {
		if strings.TrimSpace(origin) == "*" {
			return Config{}, errors.New("cors.allow_origins must not contain wildcard *")
		}
	}

	return cfg, nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}
	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger failed: %w", err)
	}
	return logger, nil
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

func newSMSSender(cfg Config, logger *zap.Logger) service.Sender {
	baseURL := strings.TrimSpace(cfg.SMS.BaseURL)
	if baseURL == "" {
		logger.Warn("sms gateway not configured, notifications will be dropped")
		return nil
	}
	return smsgateway.NewClient(baseURL, cfg.SMS.APIKey, cfg.SMS.SenderID, nil)
}

func buildCORSMiddleware(cfg Config) gin.HandlerFunc {
	origins := make([]string, 0, len(cfg.CORS.AllowOrigins))
	for _, origin := range cfg.CORS.AllowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func registerPprofRoutes(router *gin.Engine) {
	pprofGroup := router.Group("/debug/pprof")
	pprofGroup.GET("/", gin.WrapF(pprof.Index))
	pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
	pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.POST("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
	pprofGroup.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
	pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
}

func loadRSAPrivateKey() (*rsa.PrivateKey, error) {
	pem := strings.TrimSpace(os.Getenv("CLOUDRADIUS_JWT_PRIVATE_KEY"))
	if pem == "" {
		path := strings.TrimSpace(os.Getenv("CLOUDRADIUS_JWT_PRIVATE_KEY_FILE"))
		if path != "" {
			// #nosec G304 -- path is provided by operator environment variable.
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			pem = string(raw)
		}
	}
	if pem == "" {
		return nil, errors.New("jwt private key not configured")
	}
	return jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
}

func runMigrateCommand() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	migrationDir := "/migrations"
	if _, statErr := os.Stat(migrationDir); statErr != nil {
		migrationDir = "./migrations"
	}

	migrator, err := migrate.New("file://"+migrationDir, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations failed: %w", err)
	}

	fmt.Println("migrations applied successfully")
	return nil
}

func runCreateOperatorCommand(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	fs := flag.NewFlagSet("create-operator", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var username string
	var password string
	var tenantSlug string
	var role string

	fs.StringVar(&username, "username", "admin", "operator username")
	fs.StringVar(&password, "password", "", "operator password")
	fs.StringVar(&tenantSlug, "tenant", "", "tenant slug; empty makes a platform admin")
	fs.StringVar(&role, "role", "admin", "operator role: admin or staff")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database config failed: %w", err)
	}
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database failed: %w", err)
	}
	defer pool.Close()

	var tenantID *uuid.UUID
	if strings.TrimSpace(tenantSlug) != "" {
		tenantRepo := postgres.NewTenantRepository(pool)
		tenant, err := tenantRepo.FindBySlug(ctx, strings.TrimSpace(tenantSlug))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("tenant %q not found", tenantSlug)
			}
			return fmt.Errorf("look up tenant failed: %w", err)
		}
		tenantID = &tenant.ID
	}

	authSvc := service.NewAuthService(postgres.NewOperatorRepository(pool), nil, nil, 0, zap.NewNop())
	operator, err := authSvc.CreateOperator(ctx, username, password, tenantID, model.OperatorRole(strings.ToLower(strings.TrimSpace(role))))
	if err != nil {
		if errors.Is(err, service.ErrOperatorTaken) {
			fmt.Printf("operator '%s' already exists, skip\n", username)
			return nil
		}
		return fmt.Errorf("create operator failed: %w", err)
	}

	fmt.Printf("operator '%s' created with role %s\n", operator.Username, operator.Role)
	return nil
}

func runHealthcheck() int {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health/ready")
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func sanitizeCLIError(err error) string {
	if err == nil {
		return ""
	}

	text := strings.ReplaceAll(err.Error(), "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.TrimSpace(text)
}
