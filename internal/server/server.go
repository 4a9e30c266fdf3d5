package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "counsel/docs"
	"counsel/internal/ai"
	"counsel/internal/config"
	"counsel/internal/handler"
	assistantHandler "counsel/internal/handler/assistant"
	"counsel/internal/pkg/cache"
	"counsel/internal/pkg/jwt"
	"counsel/internal/pkg/mongodb"
	assistantRepo "counsel/internal/repository/assistant"
	authRepo "counsel/internal/repository/auth"
	documentRepo "counsel/internal/repository/document"
	"counsel/internal/server/middleware"
	assistantsvc "counsel/internal/service/assistant"
)

// Server HTTP 服务器
type Server struct {
	cfg       *config.Config
	engine    *gin.Engine
	mongo     *mongodb.Client
	redis     *cache.RedisCache
	assistant *assistantsvc.Service
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// 初始化 MongoDB (助手接口依赖)
	var mongoClient *mongodb.Client
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, assistant endpoints disabled")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
		}
	}

	// 初始化 Redis (可选，仅用于会话缓存)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without thread cache")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	if mongoClient != nil {
		svc, err := NewAssistantService(context.Background(), cfg, mongoClient, redisCache)
		if err != nil {
			return nil, err
		}
		srv.assistant = svc
	}

	srv.setupRoutes()

	return srv, nil
}

// NewAssistantService 组装对话助手服务，redisCache 为 nil 时不使用会话缓存
func NewAssistantService(ctx context.Context, cfg *config.Config, mongoClient *mongodb.Client, redisCache *cache.RedisCache) (*assistantsvc.Service, error) {
	aiClient, err := ai.NewClientFromConfig(ctx, &cfg.AI)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Strs("fallbacks", cfg.AI.FallbackModels).Msg("initialized AI client")

	db := mongoClient.Database()
	repos := assistantsvc.Repositories{
		Interactions: assistantRepo.NewInteractionRepo(db),
		Threads:      assistantRepo.NewThreadRepo(db),
		Documents:    documentRepo.NewDocumentRepo(db),
		Usage:        authRepo.NewUserRepo(db),
	}

	var threadCache assistantsvc.ThreadCache
	var opts []assistantsvc.MigratorOption
	if redisCache != nil {
		threadCache = cache.NewThreadCache(redisCache, cfg.Assistant.ThreadCacheTTL)
		opts = append(opts, assistantsvc.WithMigrationLock(cache.NewMigrationLock(redisCache, cache.MigrationLockTTL)))
	} else {
		log.Warn().Msg("Redis not configured, legacy migration is serialised per process only")
	}

	return assistantsvc.NewService(aiClient, repos, threadCache, cfg.Assistant, cfg.Quota, opts...), nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	deps := make(map[string]handler.Pinger)
	if s.mongo != nil {
		deps["mongo"] = s.mongo
	}
	if s.redis != nil {
		deps["redis"] = s.redis
	}
	healthHandler := handler.NewHealthHandler(deps)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.engine.Group("/api/v1")
	if s.assistant == nil {
		log.Warn().Msg("MongoDB not configured, assistant endpoints disabled")
		return
	}

	jwtSecret := s.cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "default-secret-key-change-in-production"
		log.Warn().Msg("JWT secret not configured, using default (NOT SECURE for production)")
	}
	accessTokenExpiry := s.cfg.Auth.AccessTokenExpiry
	if accessTokenExpiry == 0 {
		accessTokenExpiry = 24 * time.Hour
	}

	h := assistantHandler.NewHandler(s.assistant)
	RegisterAssistantRoutes(v1, h, middleware.Auth(jwt.NewJWT(jwtSecret, accessTokenExpiry)))
}

// RegisterAssistantRoutes 注册对话助手接口
func RegisterAssistantRoutes(rg *gin.RouterGroup, h *assistantHandler.Handler, auth gin.HandlerFunc) {
	g := rg.Group("/assistant")
	g.Use(auth)
	{
		g.POST("/turns", h.SubmitTurn)

		g.GET("/threads", h.ListThreads)
		g.GET("/threads/:thread_id", h.GetThread)
		g.PATCH("/threads/:thread_id/title", h.RenameThread)
		g.DELETE("/threads/:thread_id", h.ArchiveThread)
		g.PUT("/threads/:thread_id/documents", h.UpdateThreadDocuments)

		g.POST("/migrations", h.RunMigration)

		g.GET("/interactions", h.ListInteractions)
		g.GET("/interactions/:interaction_id", h.GetInteraction)
		g.PATCH("/interactions/:interaction_id/feedback", h.UpdateFeedback)
		g.PATCH("/interactions/:interaction_id/template", h.UpdateTemplate)
		g.DELETE("/interactions/:interaction_id", h.DeleteInteraction)

		g.GET("/quota", h.GetQuota)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// 先停止接收请求，再关闭连接
		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}
		return err
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
