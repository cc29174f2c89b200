package core

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"fluid-service/internal/messaging"
	"fluid-service/internal/operations"
	"fluid-service/internal/types"
)

// CancelOperation is the request name that aborts the running operation.
const CancelOperation = "cancel"

func (v *FlightSystem) callbacks(ctx context.Context) messaging.Callbacks {
	return messaging.Callbacks{
		OperationCallback: func(req messaging.OperationRequest) error {
			return v.handleOperationRequest(ctx, req)
		},
		LinkCallback: v.handleLinkChange,
	}
}

// handleOperationRequest handles operation requests from the front-end queue
func (v *FlightSystem) handleOperationRequest(ctx context.Context, req messaging.OperationRequest) error {
	v.logger.Debugf("Handling operation request: %s", req.Operation)

	if req.Operation == CancelOperation {
		return v.Cancel(ctx)
	}

	op, err := v.opRegistry.New(req.Operation, req.Goal)
	if err != nil {
		v.logger.Warnf("Invalid %s request: %v", req.Operation, err)
		v.publishResult(messaging.OperationResult{
			ID:        req.ID,
			Operation: req.Operation,
			Outcome:   operations.Rejected.String(),
			Error:     err.Error(),
		})
		return err
	}

	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			v.logger.Warnf("Ignoring malformed request id %q: %v", req.ID, err)
		} else {
			op.WithID(id)
		}
	}

	// Rejections by the loop are reported through the completion hook.
	err = v.RequestOperation(ctx, op)
	if errors.Is(err, ErrNotRunning) && op.Finish(operations.Rejected) {
		v.metrics.ObserveOperation(op.Identifier(), operations.Rejected.String())
		v.publishResult(messaging.OperationResult{
			ID:        op.ID().String(),
			Operation: op.Identifier(),
			Outcome:   operations.Rejected.String(),
			Error:     err.Error(),
		})
	}
	return err
}

// notifyCompletion publishes the final outcome of an operation
func (v *FlightSystem) notifyCompletion(op *operations.Operation) {
	v.publishResult(messaging.OperationResult{
		ID:        op.ID().String(),
		Operation: op.Identifier(),
		Outcome:   op.Outcome().String(),
	})
}

func (v *FlightSystem) publishResult(res messaging.OperationResult) {
	if err := v.redis.PublishOperationResult(res); err != nil {
		v.logger.Warnf("Failed to publish %s result: %v", res.Operation, err)
	}
}

// handleLinkChange logs link changes reported by the flight controller
func (v *FlightSystem) handleLinkChange(link types.LinkState) {
	if !link.Connected {
		v.logger.Warnf("Vehicle link lost in state %s", v.CurrentState())
		return
	}
	v.logger.Infof("Vehicle link: armed=%v mode=%s", link.Armed, link.Mode)
}
