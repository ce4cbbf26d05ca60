package evidence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/e-CODEX/connector-sub004/internal/message"
)

// GeneratePayload renders the connector's own evidence payload for a business
// message. Gateways submit ETSI-REM XML; locally generated evidence uses a
// compact JSON form since only the connector itself consumes it.
func GeneratePayload(t message.EvidenceType, business *message.Message, reason string) ([]byte, error) {
	payload := map[string]interface{}{
		"evidence_type":        string(t),
		"connector_message_id": business.ConnectorMessageID,
		"ebms_message_id":      business.Details.EbmsMessageID,
		"issued_at":            time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		payload["reason"] = reason
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence payload: %w", err)
	}
	return body, nil
}

// NewConfirmation builds a confirmation carrying locally generated evidence.
func NewConfirmation(t message.EvidenceType, business *message.Message, reason string) (message.Confirmation, error) {
	payload, err := GeneratePayload(t, business, reason)
	if err != nil {
		return message.Confirmation{}, err
	}
	return message.Confirmation{Type: t, Evidence: payload}, nil
}
