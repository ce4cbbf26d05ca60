package evidence

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-CODEX/connector-sub004/internal/message"
)

func TestNewConfirmation(t *testing.T) {
	business := &message.Message{
		ConnectorMessageID: "m-1",
		Details:            &message.MessageDetails{EbmsMessageID: "ebms-1"},
	}

	c, err := NewConfirmation(message.EvidenceNonDelivery, business, "backend unreachable")
	require.NoError(t, err)
	assert.Equal(t, message.EvidenceNonDelivery, c.Type)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(c.Evidence, &payload))
	assert.Equal(t, "NON_DELIVERY", payload["evidence_type"])
	assert.Equal(t, "m-1", payload["connector_message_id"])
	assert.Equal(t, "ebms-1", payload["ebms_message_id"])
	assert.Equal(t, "backend unreachable", payload["reason"])
	assert.NotEmpty(t, payload["issued_at"])
}

func TestNewConfirmationWithoutReason(t *testing.T) {
	business := &message.Message{
		ConnectorMessageID: "m-1",
		Details:            &message.MessageDetails{},
	}

	c, err := NewConfirmation(message.EvidenceDelivery, business, "")
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(c.Evidence, &payload))
	_, ok := payload["reason"]
	assert.False(t, ok)
}
