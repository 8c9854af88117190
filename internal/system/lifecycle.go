package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/api/rest"
	"github.com/KevinKickass/OpenLogoBridge/internal/api/websocket"
	"github.com/KevinKickass/OpenLogoBridge/internal/auth"
	"github.com/KevinKickass/OpenLogoBridge/internal/blocks"
	"github.com/KevinKickass/OpenLogoBridge/internal/bridge"
	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"github.com/KevinKickass/OpenLogoBridge/internal/interfaces"
	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/s7"
	"github.com/KevinKickass/OpenLogoBridge/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the gRPC health service name that follows the bridge state.
const HealthService = "plcbridge"

type LifecycleManager struct {
	config      *config.Config
	catalog     *logo.Catalog
	bridge      *bridge.Bridge
	blocks      *blocks.Manager
	hub         *websocket.Hub
	authService *auth.AuthService
	storage     *storage.PostgresClient
	recorder    *storage.Recorder
	logger      *zap.Logger

	restServer   *rest.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
	grpcAddr     net.Addr
	hubCancel    context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager wires the S7 client, bridge and block manager. db may be nil,
// sample history is disabled then.
func NewLifecycleManager(db *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	client := s7.NewClient(s7.DialTCP, cfg.Logo.ClientOptions(), logger.Named("s7"))
	return newLifecycleManager(db, cfg, client, logger)
}

func newLifecycleManager(db *storage.PostgresClient, cfg *config.Config, plc bridge.PLC, logger *zap.Logger) (*LifecycleManager, error) {
	catalog := logo.NewCatalog()
	br := bridge.New(cfg.Logo.BridgeConfig(), catalog, plc, logger.Named("bridge"))

	authService := auth.NewAuthService(cfg.Auth, logger.Named("auth"))
	hub := websocket.NewHub(logger.Named("ws"), authService)

	sinks := []blocks.Sink{hub}

	var recorder *storage.Recorder
	if db != nil {
		recorder = storage.NewRecorder(db, cfg.Database.SampleBuffer, logger.Named("history"))
		sinks = append(sinks, recorder)
	}

	manager, err := blocks.NewManager(br, logger.Named("blocks"), sinks...)
	if err != nil {
		return nil, fmt.Errorf("failed to create block manager: %w", err)
	}

	lm := &LifecycleManager{
		config:       cfg,
		catalog:      catalog,
		bridge:       br,
		blocks:       manager,
		hub:          hub,
		authService:  authService,
		storage:      db,
		recorder:     recorder,
		logger:       logger,
		healthServer: health.NewServer(),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}

	lm.healthServer.SetServingStatus(HealthService, servingStatus(br.State()))
	br.OnStateChange(lm.onBridgeState)

	return lm, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenLogoBridge",
		zap.String("plc", lm.config.Logo.Address),
		zap.String("family", lm.config.Logo.Family))

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.hub.Run(hubCtx)

	if lm.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := lm.storage.EnsureSchema(ctx)
		cancel()
		if err != nil {
			lm.setError(err)
			return fmt.Errorf("failed to prepare sample history: %w", err)
		}
		lm.recorder.Start()
	}

	if lm.config.BlocksFile != "" {
		loaded, err := lm.blocks.LoadFile(lm.config.BlocksFile)
		if err != nil {
			// nicht kritisch, Bindungen können per API nachgeladen werden
			lm.logger.Warn("Failed to load block bindings",
				zap.String("file", lm.config.BlocksFile),
				zap.Error(err))
		} else {
			lm.logger.Info("Block bindings loaded",
				zap.String("file", lm.config.BlocksFile),
				zap.Int("count", loaded))
		}
	}

	// Start gRPC Server (health)
	if err := lm.startGRPCServer(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	// Start REST API Server
	if err := lm.startRESTServer(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	// Configuration errors end up in the bridge state, the API keeps running.
	if err := lm.bridge.Start(); err != nil {
		lm.logger.Error("Bridge not started", zap.Error(err))
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("history_enabled", lm.storage != nil))

	return nil
}

func (lm *LifecycleManager) onBridgeState(from, to bridge.State, cause error) {
	lm.healthServer.SetServingStatus(HealthService, servingStatus(to))
	lm.hub.Broadcast(websocket.NewBridgeStateMessage(to.String(), from.String()))

	if cause != nil && to != bridge.StateOnline {
		lm.logger.Warn("Bridge left normal operation",
			zap.String("state", to.String()),
			zap.Error(cause))
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		shutdownErr = lm.gracefulShutdown(ctx)
		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed after Shutdown completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Bridge: stop polling, then detach consumers and flush history
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.bridge.Stop(); err != nil {
			errChan <- fmt.Errorf("bridge stop failed: %w", err)
		}
		lm.blocks.DetachAll()
		if lm.recorder != nil {
			lm.recorder.Stop()
		}
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.healthServer.Shutdown()
			lm.grpcServer.GracefulStop()
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	defer func() {
		if lm.hubCancel != nil {
			lm.hubCancel()
		}
	}()

	select {
	case <-done:
		select {
		case err := <-errChan:
			return err
		default:
		}
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcAddr = lis.Addr()

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.healthServer)
	reflection.Register(lm.grpcServer)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger.Named("rest"), lm.hub, lm.authService)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Rejected system state change", zap.Error(err))
		return
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

// State returns the lifecycle state of the process itself.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	list := lm.blocks.List()
	blockErrors := 0
	for _, b := range list {
		if b.Err() != nil {
			blockErrors++
		}
	}

	status := interfaces.SystemStatus{
		Bridge:      lm.bridge.Status(),
		BlockCount:  len(list),
		BlockErrors: blockErrors,
		LiveClients: lm.hub.GetClientCount(),
		History:     lm.recorder != nil,
	}
	if lm.recorder != nil {
		status.SamplesWritten, status.SamplesDropped = lm.recorder.Stats()
	}
	return status
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Catalog() *logo.Catalog {
	return lm.catalog
}

func (lm *LifecycleManager) Bridge() *bridge.Bridge {
	return lm.bridge
}

func (lm *LifecycleManager) Blocks() *blocks.Manager {
	return lm.blocks
}

// Storage returns the sample history store, nil if disabled
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}
