package pipeline

import (
	"context"
	"fmt"

	"github.com/e-CODEX/connector-sub004/internal/evidence"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/internal/persistence"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

// ValidateConfirmationStep rejects malformed evidence messages before they
// touch any business message state.
type ValidateConfirmationStep struct{}

func (s *ValidateConfirmationStep) Name() string { return "validate_confirmation" }

func (s *ValidateConfirmationStep) Execute(_ context.Context, msg *message.Message) (bool, error) {
	if !msg.IsEvidenceMessage() {
		return false, pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("message %q carries no confirmation", msg.ConnectorMessageID))
	}

	c := msg.Confirmations[0]
	if !c.Type.Valid() {
		return false, pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid evidence type %q", c.Type))
	}
	if len(c.Evidence) == 0 {
		return false, pkgerrors.ErrValidation.WithMessage("evidence payload is required")
	}
	if msg.Details.CausedBy == "" && msg.Details.RefToMessageID == "" {
		return false, pkgerrors.ErrValidation.WithMessage("evidence message references no business message")
	}

	return true, nil
}

// ApplyConfirmationStep resolves the referenced business message and runs the
// confirmation state machine. An ignored evidence stops the pipeline cleanly:
// nothing further travels for evidence the state machine dropped.
type ApplyConfirmationStep struct {
	messages persistence.MessageRepository
	machine  *evidence.StateMachine
	logger   logger.Logger
}

func NewApplyConfirmationStep(messages persistence.MessageRepository, machine *evidence.StateMachine, log logger.Logger) *ApplyConfirmationStep {
	return &ApplyConfirmationStep{messages: messages, machine: machine, logger: log}
}

func (s *ApplyConfirmationStep) Name() string { return "apply_confirmation" }

func (s *ApplyConfirmationStep) Execute(ctx context.Context, msg *message.Message) (bool, error) {
	business, err := s.resolveBusinessMessage(ctx, msg)
	if err != nil {
		return false, err
	}

	// Back-link so downstream steps and status observers can trace the
	// evidence to its cause.
	msg.Details.CausedBy = business.ConnectorMessageID
	if msg.Details.RefToMessageID == "" {
		msg.Details.RefToMessageID = business.Details.EbmsMessageID
	}

	_, err = s.machine.ApplyConfirmation(ctx, business.ConnectorMessageID, msg.Confirmations[0])
	if err != nil {
		if evidence.IsIgnored(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *ApplyConfirmationStep) resolveBusinessMessage(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if msg.Details.CausedBy != "" {
		return s.messages.FindByID(ctx, msg.Details.CausedBy)
	}
	return s.messages.FindByEbmsMessageID(ctx, msg.DomainOrDefault(), msg.Details.RefToMessageID)
}
