package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kassa/internal/approval"
	approvaldomain "github.com/smallbiznis/kassa/internal/approval/domain"
	"github.com/smallbiznis/kassa/internal/config"
	"github.com/smallbiznis/kassa/internal/events"
	"github.com/smallbiznis/kassa/internal/inventory"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	"github.com/smallbiznis/kassa/internal/observability"
	obsmiddleware "github.com/smallbiznis/kassa/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kassa/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kassa/internal/observability/tracing"
	"github.com/smallbiznis/kassa/internal/order"
	orderdomain "github.com/smallbiznis/kassa/internal/order/domain"
	"github.com/smallbiznis/kassa/internal/product"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	"github.com/smallbiznis/kassa/internal/ratelimit"
	"github.com/smallbiznis/kassa/internal/sync"
	syncdomain "github.com/smallbiznis/kassa/internal/sync/domain"
	"github.com/smallbiznis/kassa/internal/synclog"
	"github.com/smallbiznis/kassa/internal/tenant"
	tenantdomain "github.com/smallbiznis/kassa/internal/tenant/domain"
	"github.com/smallbiznis/kassa/internal/terminal"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	events.Module,
	tenant.Module,
	product.Module,
	terminal.Module,
	inventory.Module,
	order.Module,
	approval.Module,
	synclog.Module,
	sync.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
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

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	tenantSvc    tenantdomain.Service
	productSvc   productdomain.Service
	terminalSvc  terminaldomain.Service
	inventorySvc inventorydomain.Service
	orderSvc     orderdomain.Service
	approvalSvc  approvaldomain.Service
	syncSvc      syncdomain.Service
	obsMetrics   *obsmetrics.Metrics
	syncLimiter  *ratelimit.SyncIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	TenantSvc    tenantdomain.Service
	ProductSvc   productdomain.Service
	TerminalSvc  terminaldomain.Service
	InventorySvc inventorydomain.Service
	OrderSvc     orderdomain.Service
	ApprovalSvc  approvaldomain.Service
	SyncSvc      syncdomain.Service
	ObsMetrics   *obsmetrics.Metrics          `optional:"true"`
	SyncLimiter  *ratelimit.SyncIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		tenantSvc:    p.TenantSvc,
		productSvc:   p.ProductSvc,
		terminalSvc:  p.TerminalSvc,
		inventorySvc: p.InventorySvc,
		orderSvc:     p.OrderSvc,
		approvalSvc:  p.ApprovalSvc,
		syncSvc:      p.SyncSvc,
		obsMetrics:   p.ObsMetrics,
		syncLimiter:  p.SyncLimiter,
	}

	svc.registerSyncRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerSyncRoutes() {
	syncGroup := s.engine.Group("/sync")
	syncGroup.Use(s.TerminalRequired())
	syncGroup.Use(s.RequireTerminalScope(terminaldomain.ScopeSyncWrite))
	syncGroup.Use(s.SyncIngestRateLimit())

	syncGroup.POST("/operations", s.SyncOperations)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/tenants", s.CreateTenant)
	admin.GET("/tenants/:slug", s.GetTenant)

	scoped := admin.Group("/tenants/:slug")
	scoped.Use(s.TenantRequired())

	scoped.GET("/terminals", s.ListTerminals)
	scoped.GET("/terminals/:code", s.GetTerminal)
	scoped.POST("/terminals", s.RegisterTerminal)
	scoped.POST("/terminals/:code/rotate", s.RotateTerminalSecret)
	scoped.POST("/terminals/:code/lock", s.LockTerminal)
	scoped.POST("/terminals/:code/unlock", s.UnlockTerminal)
	scoped.DELETE("/terminals/:code", s.DeactivateTerminal)

	scoped.GET("/products", s.ListProducts)
	scoped.POST("/products", s.CreateProduct)
	scoped.DELETE("/products/:sku", s.DeactivateProduct)

	scoped.POST("/approvers", s.RegisterApprover)
	scoped.GET("/orders/:id", s.GetOrder)
	scoped.POST("/inventory/adjust", s.AdjustInventory)
	scoped.GET("/inventory/:sku", s.GetStockLevel)
}
