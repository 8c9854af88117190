package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/api/websocket"
	"github.com/KevinKickass/OpenLogoBridge/internal/auth"
	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"github.com/KevinKickass/OpenLogoBridge/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
		}

		// ==================== BRIDGE (OPERATOR+) ====================
		br := v1.Group("/bridge")
		br.Use(s.authService.AuthMiddleware())
		br.Use(auth.RequirePermission(auth.PermOperator))
		{
			br.GET("/status", s.getBridgeStatus)
		}

		resolve := v1.Group("/resolve")
		resolve.Use(s.authService.AuthMiddleware())
		resolve.Use(auth.RequirePermission(auth.PermOperator))
		{
			resolve.GET("", s.resolveBlock)
		}

		// ==================== BLOCKS ====================
		blocks := v1.Group("/blocks")
		blocks.Use(s.authService.AuthMiddleware())
		{
			// Read operations: Operator+
			blocks.GET("", auth.RequirePermission(auth.PermOperator), s.listBlocks)
			blocks.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getBlock)
			blocks.POST("/:id/refresh", auth.RequirePermission(auth.PermOperator), s.refreshBlock)
			blocks.GET("/:id/history", auth.RequirePermission(auth.PermOperator), s.blockHistory)

			// Write to the PLC: Technician+
			blocks.POST("/:id/write", auth.RequirePermission(auth.PermTechnician), s.writeBlock)

			// Bindings: Admin only
			blocks.POST("", auth.RequirePermission(auth.PermAdmin), s.attachBlock)
			blocks.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.detachBlock)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"bridge_state": s.lm.Bridge().State(),
		"timestamp":    time.Now().Unix(),
	})
}
