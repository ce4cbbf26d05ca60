package evidence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
)

// Dispatcher hands a finished evidence message to the link layer. The active
// link manager satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *message.Message) error
}

// Submitter wraps evidence into connector messages of their own and dispatches
// them toward backend or gateway. Evidence messages are transient: they are
// never persisted, only their payload lives on the business message's
// confirmation list.
type Submitter struct {
	dispatcher Dispatcher
	logger     logger.Logger
}

func NewSubmitter(dispatcher Dispatcher, log logger.Logger) *Submitter {
	return &Submitter{
		dispatcher: dispatcher,
		logger:     log,
	}
}

// SubmitSameDirection forwards evidence along the business message's own
// travel direction, e.g. a gateway-generated DELIVERY evidence accompanying a
// received message on its way to the backend.
func (s *Submitter) SubmitSameDirection(ctx context.Context, business *message.Message, confirmation message.Confirmation) error {
	return s.SubmitSameDirectionWithID(ctx, "", business, confirmation)
}

// SubmitSameDirectionWithID is SubmitSameDirection with a caller-chosen
// connector message id for the evidence message.
func (s *Submitter) SubmitSameDirectionWithID(ctx context.Context, connectorMessageID string, business *message.Message, confirmation message.Confirmation) error {
	return s.submit(ctx, business, confirmation, business.Direction, connectorMessageID)
}

// SubmitOppositeDirection sends evidence back toward the originator of the
// business message, the usual path for delivery and rejection notices.
func (s *Submitter) SubmitOppositeDirection(ctx context.Context, business *message.Message, confirmation message.Confirmation) error {
	return s.SubmitOppositeDirectionWithID(ctx, "", business, confirmation)
}

// SubmitOppositeDirectionWithID is SubmitOppositeDirection with a
// caller-chosen connector message id for the evidence message.
func (s *Submitter) SubmitOppositeDirectionWithID(ctx context.Context, connectorMessageID string, business *message.Message, confirmation message.Confirmation) error {
	return s.submit(ctx, business, confirmation, business.Direction.Opposite(), connectorMessageID)
}

func (s *Submitter) submit(ctx context.Context, business *message.Message, confirmation message.Confirmation, direction message.Direction, connectorMessageID string) error {
	if business.Details == nil {
		return pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("message %q carries no details, cannot derive evidence message", business.ConnectorMessageID))
	}
	if !business.Direction.Valid() {
		return pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("message %q has no direction, cannot derive evidence message", business.ConnectorMessageID))
	}
	if !business.IsBusinessMessage() {
		return pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("message %q is not a business message, cannot derive evidence message", business.ConnectorMessageID))
	}
	if !confirmation.Type.Valid() || len(confirmation.Evidence) == 0 {
		return pkgerrors.ErrValidation.WithMessage("confirmation requires a valid type and a payload")
	}
	if connectorMessageID == "" {
		connectorMessageID = uuid.New().String()
	}

	details := message.CopyDetails(business.Details).
		WithEbmsMessageID("").
		WithBackendMessageID("").
		WithAction(confirmation.Type.Action()).
		WithRefToMessageID(business.Details.EbmsMessageID).
		WithRefToBackendMessageID(business.Details.BackendMessageID).
		WithCausedBy(business.ConnectorMessageID).
		Build()

	evidenceMsg := message.NewMessageBuilder().
		WithConnectorMessageID(connectorMessageID).
		WithDomainID(business.DomainOrDefault()).
		WithDirection(direction).
		WithDetails(details).
		WithConfirmation(confirmation).
		Build()

	if err := s.dispatcher.Dispatch(ctx, evidenceMsg); err != nil {
		return fmt.Errorf("failed to dispatch evidence message: %w", err)
	}

	s.logger.InfowCtx(ctx, "Evidence message submitted",
		"connector_message_id", evidenceMsg.ConnectorMessageID,
		"caused_by", business.ConnectorMessageID,
		"evidence_type", string(confirmation.Type),
		"direction", string(direction),
	)
	metrics.EvidenceMessagesSubmittedTotal.
		WithLabelValues(string(confirmation.Type), string(direction)).Inc()

	return nil
}
