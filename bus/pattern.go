package bus

import (
	"fmt"
	"time"

	"github.com/agentmesh/substrate/types"
)

// Broadcast is a convenience wrapper around Bus.Publish that sets the
// recipient sentinel and mints an id/timestamp, mirroring the teacher's
// collaboration.PatternBroadcast: a thin helper built from the bus's own
// primitives, not a new core component.
func (b *Bus) Broadcast(sender string, kind types.MessageKind, priority types.Priority, payload any) error {
	return b.Publish(types.Message{
		ID:        fmt.Sprintf("bcast-%d", b.seq.Next()),
		Timestamp: time.Now(),
		Sender:    sender,
		Recipient: types.RecipientBroadcast,
		Kind:      kind,
		Priority:  priority,
		Payload:   payload,
	})
}

// Pipeline publishes a chain of request messages, each addressed to the
// next named stage, with the same correlation id — mirroring the teacher's
// collaboration.PatternPipeline, where the result of one agent becomes the
// input of the next. The bus does not wait for delivery between stages:
// ordering within the pipeline is left to the stages' own correlation-id
// bookkeeping, since the bus only guarantees priority-then-arrival order,
// not causal order across participants.
func (b *Bus) Pipeline(sender string, stages []string, priority types.Priority, payload any) error {
	if len(stages) == 0 {
		return types.NewError(types.ErrValidationError, "pipeline requires at least one stage").WithRetryable(false)
	}
	correlationID := fmt.Sprintf("pipeline-%d", b.seq.Next())
	for i, stage := range stages {
		if err := b.Publish(types.Message{
			ID:            fmt.Sprintf("%s-%d", correlationID, i),
			Timestamp:     time.Now(),
			Sender:        sender,
			Recipient:     stage,
			Kind:          types.KindRequest,
			Priority:      priority,
			Payload:       payload,
			CorrelationID: correlationID,
		}); err != nil {
			return err
		}
	}
	return nil
}
