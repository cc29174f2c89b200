package core

import (
	"fluid-service/internal/messaging"
	"fluid-service/internal/states"
	"fluid-service/internal/types"
)

// StatusPublisher receives the per-cycle status snapshot.
type StatusPublisher interface {
	PublishStatus(status types.Status) error
}

// MessagingClient defines the interface for Redis messaging operations needed by FlightSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// Telemetry and flight-controller commands
	states.Vehicle
	states.Commander

	// Outputs
	PublishSetpoint(sp types.Setpoint) error
	StatusPublisher
	PublishOperationResult(res messaging.OperationResult) error
	RecordTracking(sample types.TrackingSample) error
}

var _ MessagingClient = (*messaging.RedisClient)(nil)
