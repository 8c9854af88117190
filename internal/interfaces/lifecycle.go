package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenLogoBridge/internal/blocks"
	"github.com/KevinKickass/OpenLogoBridge/internal/bridge"
	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/KevinKickass/OpenLogoBridge/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	Bridge         bridge.Status `json:"bridge"`
	BlockCount     int           `json:"block_count"`
	BlockErrors    int           `json:"block_errors"`
	LiveClients    int           `json:"live_clients"`
	History        bool          `json:"history"`
	SamplesWritten uint64        `json:"samples_written"`
	SamplesDropped uint64        `json:"samples_dropped"`
}

type LifecycleManager interface {
	Config() *config.Config
	Catalog() *logo.Catalog
	Bridge() *bridge.Bridge
	Blocks() *blocks.Manager
	Storage() *storage.PostgresClient // nil without sample history
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
