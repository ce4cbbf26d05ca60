package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

type captureDispatcher struct {
	dispatched []*message.Message
	err        error
}

func (d *captureDispatcher) Dispatch(_ context.Context, msg *message.Message) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, msg)
	return nil
}

func submissionFixture() *message.Message {
	return &message.Message{
		ConnectorMessageID: "m-1",
		DomainID:           "lane-1",
		Direction:          message.DirectionBackendToGateway,
		Details: &message.MessageDetails{
			EbmsMessageID:    "ebms-1",
			BackendMessageID: "backend-1",
			ConversationID:   "conv-1",
			BackendName:      "backendA",
			GatewayName:      "gw",
			Action:           "Form_A",
			Service:          message.Service{Name: "EPO"},
		},
		Content: &message.Content{BusinessDocumentRef: "doc://1"},
	}
}

func TestSubmitOppositeDirection(t *testing.T) {
	dispatcher := &captureDispatcher{}
	submitter := NewSubmitter(dispatcher, logger.NopLogger())
	business := submissionFixture()

	c := confirmation(message.EvidenceDelivery)
	require.NoError(t, submitter.SubmitOppositeDirection(context.Background(), business, c))

	require.Len(t, dispatcher.dispatched, 1)
	ev := dispatcher.dispatched[0]

	assert.Equal(t, message.DirectionGatewayToBackend, ev.Direction)
	assert.Equal(t, "lane-1", ev.DomainID)
	assert.NotEqual(t, business.ConnectorMessageID, ev.ConnectorMessageID)
	assert.True(t, ev.IsEvidenceMessage())
	assert.False(t, ev.IsBusinessMessage())

	assert.Equal(t, "DeliveryNonDeliveryToRecipient", ev.Details.Action)
	assert.Equal(t, "ebms-1", ev.Details.RefToMessageID)
	assert.Equal(t, "backend-1", ev.Details.RefToBackendMessageID)
	assert.Equal(t, "m-1", ev.Details.CausedBy)
	assert.Empty(t, ev.Details.EbmsMessageID, "evidence message gets its own wire id later")
	assert.Equal(t, "conv-1", ev.Details.ConversationID, "conversation carries over")

	// The copy must not leak back into the business message.
	assert.Equal(t, "Form_A", business.Details.Action)
}

func TestSubmitSameDirection(t *testing.T) {
	dispatcher := &captureDispatcher{}
	submitter := NewSubmitter(dispatcher, logger.NopLogger())
	business := submissionFixture()

	c := confirmation(message.EvidenceSubmissionAcceptance)
	require.NoError(t, submitter.SubmitSameDirection(context.Background(), business, c))

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, message.DirectionBackendToGateway, dispatcher.dispatched[0].Direction)
}

func TestSubmitWithExplicitMessageID(t *testing.T) {
	dispatcher := &captureDispatcher{}
	submitter := NewSubmitter(dispatcher, logger.NopLogger())
	business := submissionFixture()

	c := confirmation(message.EvidenceDelivery)
	require.NoError(t, submitter.SubmitOppositeDirectionWithID(context.Background(), "ev-chosen", business, c))

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, "ev-chosen", dispatcher.dispatched[0].ConnectorMessageID)
}

func TestSubmitRejectsMessageWithoutDetails(t *testing.T) {
	submitter := NewSubmitter(&captureDispatcher{}, logger.NopLogger())

	bare := &message.Message{
		ConnectorMessageID: "m-1",
		Direction:          message.DirectionBackendToGateway,
		Content:            &message.Content{BusinessDocumentRef: "doc://1"},
	}

	err := submitter.SubmitOppositeDirection(context.Background(), bare, confirmation(message.EvidenceDelivery))
	assert.True(t, pkgerrors.IsValidation(err), "missing details must fail cleanly")
}

func TestSubmitRejectsMessageWithoutDirection(t *testing.T) {
	submitter := NewSubmitter(&captureDispatcher{}, logger.NopLogger())
	business := submissionFixture()
	business.Direction = ""

	err := submitter.SubmitOppositeDirection(context.Background(), business, confirmation(message.EvidenceDelivery))
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestSubmitRejectsNonBusinessMessage(t *testing.T) {
	submitter := NewSubmitter(&captureDispatcher{}, logger.NopLogger())

	transient := &message.Message{
		ConnectorMessageID: "ev-1",
		Direction:          message.DirectionBackendToGateway,
		Details:            &message.MessageDetails{},
		Confirmations:      []message.Confirmation{confirmation(message.EvidenceDelivery)},
	}

	err := submitter.SubmitOppositeDirection(context.Background(), transient, confirmation(message.EvidenceDelivery))
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestSubmitRejectsInvalidConfirmation(t *testing.T) {
	submitter := NewSubmitter(&captureDispatcher{}, logger.NopLogger())
	business := submissionFixture()

	err := submitter.SubmitOppositeDirection(context.Background(), business, message.Confirmation{Type: message.EvidenceDelivery})
	assert.True(t, pkgerrors.IsValidation(err), "payload is required")
}
