// Package server wires the repositories, services, scheduler and HTTP/gRPC
// surfaces together.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"visadesk/internal/alerting"
	"visadesk/internal/billing"
	"visadesk/internal/cache"
	"visadesk/internal/config"
	"visadesk/internal/database"
	"visadesk/internal/handlers"
	"visadesk/internal/lifecycle"
	"visadesk/internal/metrics"
	"visadesk/internal/repository"
	"visadesk/internal/scheduler"
	"visadesk/internal/sweep"
)

// Server holds the assembled service.
type Server struct {
	config *config.Config
	logger *zap.Logger
	db     *database.Database
	cache  *cache.Cache

	// Repositories
	caseRepo     *repository.CaseRepository
	timelineRepo *repository.TimelineRepository
	clientRepo   *repository.ClientRepository
	invoiceRepo  *repository.InvoiceRepository
	auditRepo    *repository.AuditRepository

	// Services
	lifecycleCtrl  *lifecycle.Controller
	alertManager   *alerting.Manager
	reminderSweep  *sweep.ReminderSweeper
	documentAudit  *sweep.DocumentAuditor
	billingService *billing.Service
	collector      *metrics.Collector
	scheduler      *scheduler.Scheduler

	// Handlers
	caseHandler    *handlers.CaseHandler
	alertHandler   *handlers.AlertHandler
	sweepHandler   *handlers.SweepHandler
	clientHandler  *handlers.ClientHandler
	invoiceHandler *handlers.InvoiceHandler
	auditHandler   *handlers.AuditHandler
	reportHandler  *handlers.ReportHandler
	healthHandler  *handlers.HealthHandler

	router       *gin.Engine
	httpServer   *http.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
}

// New creates a server instance.
func New(cfg *config.Config, logger *zap.Logger, db *database.Database, cacheClient *cache.Cache) *Server {
	return &Server{
		config: cfg,
		logger: logger.Named("server"),
		db:     db,
		cache:  cacheClient,
	}
}

// Initialize builds all components and wires the routes.
func (s *Server) Initialize() error {
	s.initComponents()

	if err := s.initScheduler(); err != nil {
		return errors.Wrap(err, "failed to initialize scheduler")
	}

	s.healthServer = health.NewServer()
	s.initHTTPServer()
	s.initGRPCServer()

	s.logger.Info("Server initialized")
	return nil
}

func (s *Server) initComponents() {
	s.caseRepo = repository.NewCaseRepository(s.db, s.logger)
	s.timelineRepo = repository.NewTimelineRepository(s.db, s.logger)
	s.clientRepo = repository.NewClientRepository(s.db, s.logger)
	s.invoiceRepo = repository.NewInvoiceRepository(s.db, s.logger)
	s.auditRepo = repository.NewAuditRepository(s.db, s.logger)

	s.collector = metrics.NewCollector()
	s.lifecycleCtrl = lifecycle.New(s.caseRepo, s.timelineRepo, s.auditRepo, s.logger)
	s.alertManager = alerting.NewManager(s.caseRepo, s.logger)
	s.reminderSweep = sweep.NewReminderSweeper(s.caseRepo, s.config.Sweep.BatchSize, s.logger)
	s.documentAudit = sweep.NewDocumentAuditor(s.caseRepo, s.config.Sweep.ExpiryWarningWindow, s.config.Sweep.BatchSize, s.logger)
	s.billingService = billing.NewService(s.invoiceRepo, s.logger)
	s.scheduler = scheduler.New(&s.config.Scheduler, s.logger)

	s.caseHandler = handlers.NewCaseHandler(s.caseRepo, s.timelineRepo, s.clientRepo, s.auditRepo, s.lifecycleCtrl, s.collector, s.cache, s.logger)
	s.alertHandler = handlers.NewAlertHandler(s.alertManager, s.auditRepo, s.cache, s.logger)
	s.sweepHandler = handlers.NewSweepHandler(s.reminderSweep, s.documentAudit, s.scheduler, s.cache, s.logger)
	s.clientHandler = handlers.NewClientHandler(s.clientRepo, s.caseRepo, s.logger)
	s.invoiceHandler = handlers.NewInvoiceHandler(s.billingService, s.invoiceRepo, s.auditRepo, s.collector, s.logger)
	s.auditHandler = handlers.NewAuditHandler(s.auditRepo, s.logger)
	s.reportHandler = handlers.NewReportHandler(s.caseRepo, s.invoiceRepo, s.cache, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.db, s.cache, s.logger)
}

func (s *Server) initScheduler() error {
	cfg := s.config.Scheduler

	if err := s.scheduler.Register(scheduler.TaskReminderSweep, cfg.ReminderSweepSchedule, cfg.ReminderSweepEnabled,
		scheduler.NewReminderSweepHandler(s.reminderSweep, s.collector, s.logger)); err != nil {
		return err
	}
	if err := s.scheduler.Register(scheduler.TaskDocumentAudit, cfg.DocumentAuditSchedule, cfg.DocumentAuditEnabled,
		scheduler.NewDocumentAuditHandler(s.documentAudit, s.collector, s.logger)); err != nil {
		return err
	}
	return s.scheduler.Register(scheduler.TaskInvoiceOverdue, cfg.InvoiceOverdueSchedule, cfg.InvoiceOverdueEnabled,
		scheduler.NewInvoiceOverdueHandler(s.billingService, s.collector, s.logger))
}

func (s *Server) initHTTPServer() {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	if s.config.Debug {
		s.router.Use(gin.Logger())
	}
	s.router.Use(s.collector.HTTPMiddleware())

	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Server.HTTPPort),
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler.Ready)
	s.router.GET("/health/live", s.healthHandler.Live)
	s.router.GET("/health/ready", s.healthHandler.Ready)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		cases := v1.Group("/cases")
		{
			cases.POST("", s.caseHandler.Create)
			cases.GET("", s.caseHandler.List)
			cases.GET("/number/:caseNumber", s.caseHandler.GetByNumber)
			cases.GET("/:id", s.caseHandler.Get)
			cases.PATCH("/:id", s.caseHandler.Update)
			cases.DELETE("/:id", s.caseHandler.Delete)
			cases.POST("/:id/transition", s.caseHandler.Transition)
			cases.POST("/:id/lock", s.caseHandler.Lock)
			cases.POST("/:id/unlock", s.caseHandler.Unlock)
			cases.POST("/:id/notes", s.caseHandler.AppendNote)
			cases.PATCH("/:id/documents/:index", s.caseHandler.UpdateDocument)
			cases.PATCH("/:id/checklist/:index", s.caseHandler.CompleteChecklistItem)
			cases.GET("/:id/timeline", s.caseHandler.Timeline)
			cases.POST("/:id/alerts", s.alertHandler.Append)
			cases.PATCH("/:id/alerts/:index", s.alertHandler.Resolve)
		}

		v1.GET("/alerts", s.alertHandler.Feed)

		sweeps := v1.Group("/sweeps")
		{
			sweeps.POST("/reminders", s.sweepHandler.RunReminderSweep)
			sweeps.POST("/documents", s.sweepHandler.RunDocumentAudit)
			sweeps.GET("/schedule", s.sweepHandler.SchedulerStats)
		}

		clients := v1.Group("/clients")
		{
			clients.POST("", s.clientHandler.Create)
			clients.GET("", s.clientHandler.List)
			clients.GET("/:id", s.clientHandler.Get)
			clients.GET("/:id/cases", s.clientHandler.Cases)
			clients.PATCH("/:id", s.clientHandler.Update)
			clients.DELETE("/:id", s.clientHandler.Delete)
		}

		invoices := v1.Group("/invoices")
		{
			invoices.POST("", s.invoiceHandler.Create)
			invoices.GET("", s.invoiceHandler.List)
			invoices.GET("/:id", s.invoiceHandler.Get)
			invoices.POST("/:id/transition", s.invoiceHandler.Transition)
		}

		v1.GET("/audit-logs", s.auditHandler.List)
		v1.GET("/reports/summary", s.reportHandler.Summary)
	}
}

func (s *Server) initGRPCServer() {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(1024 * 1024 * 4),
		grpc.MaxSendMsgSize(1024 * 1024 * 4),
	}
	s.grpcServer = grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	if s.config.Debug {
		reflection.Register(s.grpcServer)
	}
}

// Start runs the scheduler and both servers, then blocks until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.scheduler.Start()

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.GRPCPort))
		if err != nil {
			s.logger.Fatal("Failed to listen for gRPC", zap.Error(err))
		}
		s.logger.Info("gRPC server listening", zap.String("address", lis.Addr().String()))
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.logger.Info("Server started")

	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown stops the scheduler and drains both servers.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down")
	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	s.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	s.grpcServer.GracefulStop()

	if err := s.cache.Close(); err != nil {
		s.logger.Error("Failed to close cache connection", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database connection", zap.Error(err))
	}

	s.logger.Info("Shutdown complete")
	return nil
}
