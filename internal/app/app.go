package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"student_services_backend/internal/config"
	"student_services_backend/internal/controller"
	"student_services_backend/internal/repository"
	"student_services_backend/internal/service"
	"student_services_backend/pkg/cache"
	"student_services_backend/pkg/configwatcher"
	"student_services_backend/pkg/database"
	"student_services_backend/pkg/events"
	"student_services_backend/pkg/logger"
	"student_services_backend/pkg/monitoring"
	"student_services_backend/pkg/security"
	"student_services_backend/pkg/tracing"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	ConfigPath string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client

	services        *services
	limiters        *limiters
	configMu        sync.Mutex
	configCallbacks []func(*config.Config)
	closers         []func(context.Context) error
	stop            chan struct{}
}

// Dependencies 外部资源，nil 字段使用默认实现
type Dependencies struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Repo      repository.QARepository
	Cache     cache.Cache
	Publisher events.Publisher
	Clock     service.Clock
}

type services struct {
	question *service.QuestionService
	answer   *service.AnswerService
	like     *service.LikeService
}

type controllers struct {
	qa     *controller.QAController
	health *controller.HealthController
}

type limiters struct {
	ip       *security.KeyedLimiter
	mutation *security.KeyedLimiter
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configMu.Lock()
	defer a.configMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig runs the registered reload callbacks with cfg.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.configMu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.configMu.Unlock()

	for _, callback := range callbacks {
		callback(cfg)
	}
}

func (a *App) initRepository(deps Dependencies) repository.QARepository {
	if deps.Repo != nil {
		return deps.Repo
	}
	if deps.DB != nil {
		return repository.NewQuestionRepository(deps.DB)
	}
	logger.Log.Warn("No database configured, using in-memory store")
	return repository.NewMemoryRepository()
}

func (a *App) initCache(deps Dependencies) cache.Cache {
	if deps.Cache != nil {
		return deps.Cache
	}
	if deps.Redis != nil {
		return cache.NewRedisCache(deps.Redis)
	}
	return cache.NewMemoryCache()
}

func (a *App) initServices(repo repository.QARepository, listCache cache.Cache, publisher events.Publisher, clock service.Clock) *services {
	cfg := a.Config
	s := &services{
		question: service.NewQuestionService(repo, listCache, publisher, cfg.QA, cfg.Cache.ListTTL()),
		answer:   service.NewAnswerService(repo, listCache, publisher),
		like:     service.NewLikeService(repo, listCache, publisher),
	}
	if clock != nil {
		s.question.Clock = clock
		s.answer.Clock = clock
		s.like.Clock = clock
	}
	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		qa:     controller.NewQAController(s.question, s.answer, s.like),
		health: controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) initLimiters(cfg *config.Config) *limiters {
	l := &limiters{
		ip:       security.NewKeyedLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute),
		mutation: security.NewKeyedLimiter(cfg.RateLimit.MutationsPerMinute, time.Minute),
	}

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetMode(newCfg.Server.Mode)
		l.ip.SetRate(newCfg.RateLimit.MaxRequests, time.Duration(newCfg.RateLimit.WindowMinutes)*time.Minute)
		l.mutation.SetRate(newCfg.RateLimit.MutationsPerMinute, time.Minute)
		logger.Log.Info("Runtime settings updated",
			zap.String("mode", newCfg.Server.Mode),
			zap.Int("mutations_per_minute", newCfg.RateLimit.MutationsPerMinute),
		)
	})
	return l
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.limiters.ip))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// New wires the HTTP application on top of deps without touching the network.
func New(cfg *config.Config, deps Dependencies) *App {
	app := &App{
		Config: cfg,
		DB:     deps.DB,
		Redis:  deps.Redis,
		stop:   make(chan struct{}),
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	repo := app.initRepository(deps)
	app.services = app.initServices(repo, app.initCache(deps), publisher, deps.Clock)
	app.limiters = app.initLimiters(cfg)
	controllers := app.initControllers(app.services)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式下默认跳过迁移，除非指定 -migrate
	if cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	deps := Dependencies{DB: db}
	var closers []func(context.Context) error
	closers = append(closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db, closers: closers}
	}

	// Redis 只用于列表缓存，连接失败时退回内存缓存
	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
		} else {
			deps.Redis = rdb
			closers = append(closers, func(context.Context) error { return rdb.Close() })
		}
	}

	if cfg.NATS.URL != "" {
		client, err := events.NewClient(events.Config{
			URL:           cfg.NATS.URL,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: 2 * time.Second,
			ClientName:    "student-services",
		})
		if err != nil {
			logger.Log.Warn("NATS unavailable, domain events disabled", zap.Error(err))
		} else {
			deps.Publisher = events.NewNATSPublisher(client, cfg.NATS.SubjectPrefix)
			closers = append(closers, func(context.Context) error {
				client.Close()
				return nil
			})
		}
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("student-services", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		closers = append(closers, tp.Shutdown)
	}

	app := New(cfg, deps)
	app.closers = closers
	return app
}

func (a *App) startBackgroundTasks() {
	go a.limiters.ip.RunCleanup(a.stop)
	go a.limiters.mutation.RunCleanup(a.stop)

	if a.ConfigPath == "" {
		return
	}
	go func() {
		if err := configwatcher.WatchConfig(a.ConfigPath, a.ApplyConfig, a.stop); err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

// Close releases external connections in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Log.Error("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	a.startBackgroundTasks()

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	close(a.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	logger.Log.Info("Server exiting")
}
