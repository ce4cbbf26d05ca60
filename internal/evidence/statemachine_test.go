package evidence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

// memoryMessageRepo mimics the postgres repository semantics in memory:
// unique evidence per type, permanent rejection, confirm blocked once
// rejected.
type memoryMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*message.Message
}

func newMemoryMessageRepo() *memoryMessageRepo {
	return &memoryMessageRepo{messages: make(map[string]*message.Message)}
}

func (r *memoryMessageRepo) PersistNewBusinessMessage(_ context.Context, msg *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ConnectorMessageID]; ok {
		return pkgerrors.ErrConflict
	}
	r.messages[msg.ConnectorMessageID] = msg
	return nil
}

func (r *memoryMessageRepo) FindByID(_ context.Context, id string) (*message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("message %q not found", id))
	}
	cp := *msg
	cp.Confirmations = append([]message.Confirmation(nil), msg.Confirmations...)
	return &cp, nil
}

func (r *memoryMessageRepo) FindByEbmsMessageID(_ context.Context, _, ebmsID string) (*message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.Details != nil && msg.Details.EbmsMessageID == ebmsID {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (r *memoryMessageRepo) FindByConversationID(_ context.Context, _, _ string) ([]*message.Message, error) {
	return nil, nil
}

func (r *memoryMessageRepo) ConfirmMessage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	if msg.RejectedAt != nil || msg.ConfirmedAt != nil {
		return nil
	}
	now := time.Now()
	msg.ConfirmedAt = &now
	return nil
}

func (r *memoryMessageRepo) RejectMessage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	if msg.RejectedAt != nil {
		return nil
	}
	now := time.Now()
	msg.RejectedAt = &now
	return nil
}

func (r *memoryMessageRepo) CheckMessageRejected(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return false, pkgerrors.ErrNotFound
	}
	return msg.RejectedAt != nil, nil
}

func (r *memoryMessageRepo) AddConfirmation(_ context.Context, id string, c message.Confirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	for _, existing := range msg.Confirmations {
		if existing.Type == c.Type {
			return pkgerrors.ErrConflict
		}
	}
	msg.Confirmations = append(msg.Confirmations, c)
	return nil
}

func (r *memoryMessageRepo) ListConfirmations(_ context.Context, id string) ([]message.Confirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return append([]message.Confirmation(nil), msg.Confirmations...), nil
}

func seedBusinessMessage(t *testing.T, repo *memoryMessageRepo, id string) *message.Message {
	t.Helper()
	msg := &message.Message{
		ConnectorMessageID: id,
		Direction:          message.DirectionBackendToGateway,
		Details:            &message.MessageDetails{EbmsMessageID: "ebms-" + id},
		Content:            &message.Content{BusinessDocumentRef: "doc://" + id},
	}
	require.NoError(t, repo.PersistNewBusinessMessage(context.Background(), msg))
	return msg
}

func confirmation(t message.EvidenceType) message.Confirmation {
	return message.Confirmation{Type: t, Evidence: []byte(`{"stub":true}`)}
}

func TestApplyConfirmation_DeliveryConfirms(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())
	seedBusinessMessage(t, repo, "m-1")

	outcome, err := machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceDelivery))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	msg, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.True(t, msg.IsConfirmed())
	assert.False(t, msg.IsRejected())
}

func TestApplyConfirmation_RejectionIsPermanent(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())
	seedBusinessMessage(t, repo, "m-1")

	outcome, err := machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceNonDelivery))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)

	// NON_DELIVERY has priority 5, DELIVERY 8: the later evidence passes the
	// gate but must not flip the rejected message to confirmed. The caller
	// gets a named ignored condition, not a silent success.
	outcome, err = machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceDelivery))
	assert.Equal(t, OutcomeIgnored, outcome)
	require.Error(t, err)
	require.True(t, IsIgnored(err))
	assert.Equal(t, ReasonAlreadyRejected, err.(*IgnoredError).Reason)

	msg, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.True(t, msg.IsRejected())
	assert.False(t, msg.IsConfirmed())
	assert.Len(t, msg.Confirmations, 2, "both evidences stay on file")
}

func TestApplyConfirmation_DuplicateIgnored(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())
	seedBusinessMessage(t, repo, "m-1")

	_, err := machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceDelivery))
	require.NoError(t, err)

	outcome, err := machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceDelivery))
	assert.Equal(t, OutcomeIgnored, outcome)
	require.Error(t, err)
	assert.True(t, IsIgnored(err))
	assert.Equal(t, ReasonDuplicate, err.(*IgnoredError).Reason)
}

func TestApplyConfirmation_LowerPrioritySuperseded(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())
	seedBusinessMessage(t, repo, "m-1")

	_, err := machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceDelivery))
	require.NoError(t, err)

	outcome, err := machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceNonDelivery))
	assert.Equal(t, OutcomeIgnored, outcome)
	require.Error(t, err)
	assert.True(t, IsIgnored(err))
	assert.Equal(t, ReasonSuperseded, err.(*IgnoredError).Reason)

	msg, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.True(t, msg.IsConfirmed())
	assert.False(t, msg.IsRejected())
	assert.Len(t, msg.Confirmations, 1)
}

func TestApplyConfirmation_AcceptanceRecordedWithoutStateChange(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())
	seedBusinessMessage(t, repo, "m-1")

	for _, et := range []message.EvidenceType{
		message.EvidenceSubmissionAcceptance,
		message.EvidenceRelayREMMDAcceptance,
	} {
		outcome, err := machine.ApplyConfirmation(context.Background(), "m-1", confirmation(et))
		require.NoError(t, err)
		assert.Equal(t, OutcomeRecorded, outcome)
	}

	msg, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.False(t, msg.IsConfirmed())
	assert.False(t, msg.IsRejected())
	assert.Len(t, msg.Confirmations, 2)
}

func TestApplyConfirmation_Validation(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())

	_, err := machine.ApplyConfirmation(context.Background(), "m-1", message.Confirmation{Type: "BOGUS", Evidence: []byte("x")})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = machine.ApplyConfirmation(context.Background(), "m-1", message.Confirmation{Type: message.EvidenceDelivery})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = machine.ApplyConfirmation(context.Background(), "missing", confirmation(message.EvidenceDelivery))
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestApplyConfirmation_EvidenceMessageRejected(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())

	transient := &message.Message{
		ConnectorMessageID: "ev-1",
		Details:            &message.MessageDetails{},
		Confirmations:      []message.Confirmation{confirmation(message.EvidenceDelivery)},
	}
	require.NoError(t, repo.PersistNewBusinessMessage(context.Background(), transient))

	_, err := machine.ApplyConfirmation(context.Background(), "ev-1", confirmation(message.EvidenceDelivery))
	assert.True(t, pkgerrors.IsValidation(err), "evidence cannot apply to a non-business message")
}

func TestApplyConfirmation_ConcurrentArrivals(t *testing.T) {
	repo := newMemoryMessageRepo()
	machine := NewStateMachine(repo, logger.NopLogger())
	seedBusinessMessage(t, repo, "m-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = machine.ApplyConfirmation(context.Background(), "m-1", confirmation(message.EvidenceDelivery))
		}()
	}
	wg.Wait()

	msg, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Len(t, msg.Confirmations, 1, "exactly one arrival wins")
	assert.True(t, msg.IsConfirmed())

	machine.mu.Lock()
	held := len(machine.locks)
	machine.mu.Unlock()
	assert.Zero(t, held, "message locks are released once no arrival holds them")
}
