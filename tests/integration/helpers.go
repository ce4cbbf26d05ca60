package integration

import (
	"github.com/google/uuid"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/internal/routing"
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRoutingRule(domainID, name, expression string, priority int, enabled bool) *routing.Rule {
	return &routing.Rule{
		DomainID:    domainID,
		Name:        name,
		Expression:  expression,
		Priority:    priority,
		BackendName: "backend_" + name,
		Enabled:     enabled,
	}
}

func createTestBusinessMessage(domainID string) *message.Message {
	id := uuid.New().String()
	return &message.Message{
		ConnectorMessageID: id,
		DomainID:           domainID,
		Direction:          message.DirectionBackendToGateway,
		Details: &message.MessageDetails{
			EbmsMessageID:    "ebms-" + id,
			BackendMessageID: "backend-" + id,
			ConversationID:   "conv-1",
			BackendName:      "backendA",
			GatewayName:      "gw",
			Action:           "Form_A",
			Service:          message.Service{Name: "EPO", Type: "urn:e-codex:services"},
			FromParty:        message.Party{PartyID: "AT", PartyIDType: "iso3166", Role: message.RoleInitiator},
			ToParty:          message.Party{PartyID: "DE", PartyIDType: "iso3166", Role: message.RoleResponder},
		},
		Content: &message.Content{
			BusinessDocumentName: "form_a.xml",
			BusinessDocumentRef:  "doc://" + id,
		},
	}
}

func createTestConfirmation(t message.EvidenceType) message.Confirmation {
	return message.Confirmation{
		Type:     t,
		Evidence: []byte(`{"stub":true}`),
	}
}
