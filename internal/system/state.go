package system

import (
	"fmt"

	"github.com/KevinKickass/OpenLogoBridge/internal/bridge"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type SystemState int

const (
	StateInitializing SystemState = iota
	StateRunning
	StateStopping
	StateStopped
	StateError
)

func (s SystemState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func ValidateTransition(from, to SystemState) error {
	validTransitions := map[SystemState][]SystemState{
		StateInitializing: {StateRunning, StateError, StateStopping},
		StateRunning:      {StateStopping, StateError},
		StateStopping:     {StateStopped, StateError},
		StateStopped:      {StateInitializing},
		StateError:        {StateInitializing, StateStopping, StateStopped},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}

// servingStatus maps the bridge state onto the gRPC health protocol.
// Only ONLINE is serving; CONNECTING and OFFLINE are expected to recover.
func servingStatus(s bridge.State) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case bridge.StateOnline:
		return healthpb.HealthCheckResponse_SERVING
	case bridge.StateUnconfigured:
		return healthpb.HealthCheckResponse_UNKNOWN
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}
