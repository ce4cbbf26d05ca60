package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionGatewayToBackend, DirectionBackendToGateway.Opposite())
	assert.Equal(t, DirectionBackendToGateway, DirectionGatewayToBackend.Opposite())

	assert.True(t, DirectionBackendToGateway.Valid())
	assert.False(t, Direction("SIDEWAYS").Valid())
}

func TestMessageClassification(t *testing.T) {
	business := &Message{
		ConnectorMessageID: "m-1",
		Details:            &MessageDetails{},
		Content:            &Content{BusinessDocumentRef: "doc://form-a"},
	}
	assert.True(t, business.IsBusinessMessage())
	assert.False(t, business.IsEvidenceMessage())

	evidenceMsg := &Message{
		ConnectorMessageID: "m-2",
		Details:            &MessageDetails{},
		Confirmations: []Confirmation{
			{Type: EvidenceDelivery, Evidence: []byte(`{}`)},
		},
	}
	assert.False(t, evidenceMsg.IsBusinessMessage())
	assert.True(t, evidenceMsg.IsEvidenceMessage())

	empty := &Message{ConnectorMessageID: "m-3", Details: &MessageDetails{}}
	assert.False(t, empty.IsBusinessMessage())
	assert.False(t, empty.IsEvidenceMessage())
}

func TestDomainOrDefault(t *testing.T) {
	msg := &Message{Details: &MessageDetails{}}
	assert.Equal(t, DefaultDomainID, msg.DomainOrDefault())

	msg.DomainID = "lane-42"
	assert.Equal(t, "lane-42", msg.DomainOrDefault())
}

func TestDetailsCopyIsIndependent(t *testing.T) {
	original := &MessageDetails{
		EbmsMessageID: "ebms-1",
		Action:        "Form_A",
		FromParty:     Party{PartyID: "AT", Role: RoleInitiator},
	}

	cp := original.Copy()
	cp.Action = "SubmissionAcceptanceRejection"
	cp.FromParty.PartyID = "DE"

	assert.Equal(t, "Form_A", original.Action)
	assert.Equal(t, "AT", original.FromParty.PartyID)
}

func TestCopyDetailsBuilder(t *testing.T) {
	original := &MessageDetails{
		EbmsMessageID:  "ebms-1",
		ConversationID: "conv-1",
		Action:         "Form_A",
	}

	derived := CopyDetails(original).
		WithEbmsMessageID("").
		WithAction("DeliveryNonDeliveryToRecipient").
		WithRefToMessageID("ebms-1").
		WithCausedBy("m-1").
		Build()

	assert.Equal(t, "", derived.EbmsMessageID)
	assert.Equal(t, "conv-1", derived.ConversationID)
	assert.Equal(t, "DeliveryNonDeliveryToRecipient", derived.Action)
	assert.Equal(t, "ebms-1", derived.RefToMessageID)
	assert.Equal(t, "m-1", derived.CausedBy)

	assert.Equal(t, "Form_A", original.Action)
	assert.Equal(t, "ebms-1", original.EbmsMessageID)
}
