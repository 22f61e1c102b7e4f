package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/metersync/internal/cache"
	"github.com/smallbiznis/metersync/internal/config"
	contractdomain "github.com/smallbiznis/metersync/internal/contract/domain"
	syncpkg "github.com/smallbiznis/metersync/internal/sync"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Server exposes the read surface and the manual sync triggers.
type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	usagesvc     usagedomain.Service
	contractRepo contractdomain.Repository
	scheduler    *syncpkg.Scheduler
	summaries    cache.SummaryCache
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	UsageSvc     usagedomain.Service
	ContractRepo contractdomain.Repository
	Scheduler    *syncpkg.Scheduler
	Summaries    cache.SummaryCache
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("http"),
		usagesvc:     p.UsageSvc,
		contractRepo: p.ContractRepo,
		scheduler:    p.Scheduler,
		summaries:    p.Summaries,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/contracts", s.listContracts)
	v1.GET("/contracts/:contract_id/summary", s.getSummary)
	v1.GET("/contracts/:contract_id/stats", s.getStats)
	v1.GET("/contracts/:contract_id/sync/status", s.getSyncStatus)

	v1.POST("/sync", s.triggerSync)
	v1.POST("/contracts/:contract_id/backfill", s.triggerBackfill)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
