package evidence

import (
	"context"
	"fmt"
	"sync"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/internal/persistence"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
	"github.com/e-CODEX/connector-sub004/pkg/tracing"
)

// Outcome is the result of applying one piece of evidence to a business
// message.
type Outcome string

const (
	// OutcomeConfirmed means the message reached its confirmed terminal state.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeRejected means the message reached its rejected terminal state.
	OutcomeRejected Outcome = "rejected"
	// OutcomeRecorded means an acceptance evidence was stored without a
	// state change.
	OutcomeRecorded Outcome = "recorded"
	// OutcomeIgnored means the arrival had no state effect: the evidence was
	// dropped before recording, or it stayed on file without moving the
	// message.
	OutcomeIgnored Outcome = "ignored"
)

// IgnoredError reports an evidence arrival that was deliberately dropped.
// Callers treat it as a non-failure.
type IgnoredError struct {
	EvidenceType message.EvidenceType
	Reason       string
}

const (
	ReasonDuplicate       = "duplicate"
	ReasonSuperseded      = "superseded"
	ReasonAlreadyRejected = "already rejected"
)

func (e *IgnoredError) Error() string {
	return fmt.Sprintf("evidence %s ignored: %s", e.EvidenceType, e.Reason)
}

func IsIgnored(err error) bool {
	_, ok := err.(*IgnoredError)
	return ok
}

// StateMachine applies evidence confirmations to business messages. Arrivals
// for the same message are serialized through a per-message lock so the
// priority gate observes a consistent confirmation set.
type StateMachine struct {
	messages persistence.MessageRepository
	logger   logger.Logger

	mu    sync.Mutex
	locks map[string]*messageLock
}

// messageLock is a reference-counted mutex. The last holder removes the entry,
// so the lock map stays bounded by in-flight messages.
type messageLock struct {
	mu   sync.Mutex
	refs int
}

func NewStateMachine(messages persistence.MessageRepository, log logger.Logger) *StateMachine {
	return &StateMachine{
		messages: messages,
		logger:   log,
		locks:    make(map[string]*messageLock),
	}
}

// ApplyConfirmation records one piece of evidence against the business message
// and moves the message state accordingly:
//
//   - an evidence type already recorded is ignored
//   - an evidence of lower priority than one already recorded is ignored
//   - negative evidence rejects the message, even when already confirmed
//   - DELIVERY and RETRIEVAL confirm the message; on an already rejected
//     message they stay on file but the arrival is reported ignored,
//     rejection is permanent
//   - acceptance evidences are recorded without a state change
func (s *StateMachine) ApplyConfirmation(ctx context.Context, connectorMessageID string, confirmation message.Confirmation) (Outcome, error) {
	ctx, span := tracing.GetTracer("evidence-statemachine").Start(ctx, "evidence.apply_confirmation")
	defer span.End()

	if !confirmation.Type.Valid() {
		return "", pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid evidence type %q", confirmation.Type))
	}
	if len(confirmation.Evidence) == 0 {
		return "", pkgerrors.ErrValidation.WithMessage("evidence payload is required")
	}

	lock := s.acquireLock(connectorMessageID)
	defer s.releaseLock(connectorMessageID, lock)

	msg, err := s.messages.FindByID(ctx, connectorMessageID)
	if err != nil {
		return "", err
	}
	if !msg.IsBusinessMessage() {
		return "", pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("message %q is not a business message, evidence cannot be applied", connectorMessageID))
	}

	if ignored := s.gate(msg, confirmation.Type); ignored != nil {
		s.logger.InfowCtx(ctx, "Evidence ignored",
			"connector_message_id", connectorMessageID,
			"evidence_type", string(confirmation.Type),
			"reason", ignored.Reason,
		)
		metrics.IncEvidenceApplied(string(confirmation.Type), string(OutcomeIgnored))
		return OutcomeIgnored, ignored
	}

	if err := s.messages.AddConfirmation(ctx, connectorMessageID, confirmation); err != nil {
		if pkgerrors.IsConflict(err) {
			// Concurrent writer got there first.
			ignored := &IgnoredError{EvidenceType: confirmation.Type, Reason: ReasonDuplicate}
			metrics.IncEvidenceApplied(string(confirmation.Type), string(OutcomeIgnored))
			return OutcomeIgnored, ignored
		}
		return "", err
	}

	outcome, err := s.transition(ctx, msg, confirmation.Type)
	if err != nil {
		if ignored, ok := err.(*IgnoredError); ok {
			s.logger.InfowCtx(ctx, "Evidence ignored",
				"connector_message_id", connectorMessageID,
				"evidence_type", string(confirmation.Type),
				"reason", ignored.Reason,
			)
			metrics.IncEvidenceApplied(string(confirmation.Type), string(OutcomeIgnored))
			return OutcomeIgnored, ignored
		}
		return "", err
	}

	s.logger.InfowCtx(ctx, "Evidence applied",
		"connector_message_id", connectorMessageID,
		"evidence_type", string(confirmation.Type),
		"outcome", string(outcome),
	)
	metrics.IncEvidenceApplied(string(confirmation.Type), string(outcome))

	return outcome, nil
}

// gate decides whether an evidence arrival is dropped before recording.
func (s *StateMachine) gate(msg *message.Message, incoming message.EvidenceType) *IgnoredError {
	highest := 0
	for _, existing := range msg.Confirmations {
		if existing.Type == incoming {
			return &IgnoredError{EvidenceType: incoming, Reason: ReasonDuplicate}
		}
		if p := existing.Type.Priority(); p > highest {
			highest = p
		}
	}
	if incoming.Priority() < highest {
		return &IgnoredError{EvidenceType: incoming, Reason: ReasonSuperseded}
	}
	return nil
}

func (s *StateMachine) transition(ctx context.Context, msg *message.Message, evidenceType message.EvidenceType) (Outcome, error) {
	switch {
	case evidenceType.IsNegative():
		if err := s.messages.RejectMessage(ctx, msg.ConnectorMessageID); err != nil {
			return "", err
		}
		return OutcomeRejected, nil

	case evidenceType.IsConfirming():
		rejected, err := s.messages.CheckMessageRejected(ctx, msg.ConnectorMessageID)
		if err != nil {
			return "", err
		}
		if rejected {
			// Rejection is permanent; the evidence stays on file only and the
			// arrival is reported as deliberately dropped.
			return OutcomeIgnored, &IgnoredError{EvidenceType: evidenceType, Reason: ReasonAlreadyRejected}
		}
		if err := s.messages.ConfirmMessage(ctx, msg.ConnectorMessageID); err != nil {
			return "", err
		}
		return OutcomeConfirmed, nil

	default:
		return OutcomeRecorded, nil
	}
}

func (s *StateMachine) acquireLock(connectorMessageID string) *messageLock {
	s.mu.Lock()
	lock, ok := s.locks[connectorMessageID]
	if !ok {
		lock = &messageLock{}
		s.locks[connectorMessageID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (s *StateMachine) releaseLock(connectorMessageID string, lock *messageLock) {
	lock.mu.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, connectorMessageID)
	}
	s.mu.Unlock()
}
