package message

import "time"

// Direction describes which way a message travels through the connector.
type Direction string

const (
	DirectionBackendToGateway Direction = "BACKEND_TO_GATEWAY"
	DirectionGatewayToBackend Direction = "GATEWAY_TO_BACKEND"
)

func (d Direction) Valid() bool {
	return d == DirectionBackendToGateway || d == DirectionGatewayToBackend
}

// Opposite returns the reversed direction, used when evidence travels back to
// the originator of a business message.
func (d Direction) Opposite() Direction {
	if d == DirectionBackendToGateway {
		return DirectionGatewayToBackend
	}
	return DirectionBackendToGateway
}

// DefaultDomainID is the business-domain partition used when a message does
// not carry an explicit lane assignment.
const DefaultDomainID = "default"

type Party struct {
	PartyID     string `json:"party_id"`
	PartyIDType string `json:"party_id_type,omitempty"`
	Role        string `json:"role,omitempty"`
}

const (
	RoleInitiator = "INITIATOR"
	RoleResponder = "RESPONDER"
)

type Service struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// MessageDetails carries the routing-relevant attributes of a message. It is
// owned exclusively by its Message and mutated in place by pipeline steps.
type MessageDetails struct {
	EbmsMessageID         string    `json:"ebms_message_id,omitempty"`
	BackendMessageID      string    `json:"backend_message_id,omitempty"`
	ConversationID        string    `json:"conversation_id,omitempty"`
	BackendName           string    `json:"backend_name,omitempty"`
	GatewayName           string    `json:"gateway_name,omitempty"`
	FromParty             Party     `json:"from_party"`
	ToParty               Party     `json:"to_party"`
	Service               Service   `json:"service"`
	Action                string    `json:"action,omitempty"`
	OriginalSender        string    `json:"original_sender,omitempty"`
	FinalRecipient        string    `json:"final_recipient,omitempty"`
	RefToMessageID        string    `json:"ref_to_message_id,omitempty"`
	RefToBackendMessageID string    `json:"ref_to_backend_message_id,omitempty"`
	CausedBy              string    `json:"caused_by,omitempty"`
	ReceivedAt            time.Time `json:"received_at,omitempty"`
}

// Copy returns a deep copy of the details. Evidence messages start from a
// copy of the originating business message's details.
func (d *MessageDetails) Copy() *MessageDetails {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// Content references the message payload. The connector never interprets the
// business document; it only moves references around.
type Content struct {
	BusinessDocumentName string `json:"business_document_name,omitempty"`
	BusinessDocumentRef  string `json:"business_document_ref,omitempty"`
	EvidencePayload      []byte `json:"evidence_payload,omitempty"`
}

// Confirmation is a piece of delivery/rejection evidence attached to a
// business message. Type and payload are both required.
type Confirmation struct {
	Type     EvidenceType `json:"type"`
	Evidence []byte       `json:"evidence"`
}

type MessageError struct {
	Source  string    `json:"source,omitempty"`
	Text    string    `json:"text"`
	Details string    `json:"details,omitempty"`
	At      time.Time `json:"at,omitempty"`
}

// Message is the connector's unit of work.
type Message struct {
	ConnectorMessageID string          `json:"connector_message_id"`
	DomainID           string          `json:"domain_id,omitempty"`
	Direction          Direction       `json:"direction"`
	Details            *MessageDetails `json:"details"`
	Content            *Content        `json:"content,omitempty"`
	Confirmations      []Confirmation  `json:"confirmations,omitempty"`
	Errors             []MessageError  `json:"errors,omitempty"`
	CreatedAt          time.Time       `json:"created_at,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
}

// IsBusinessMessage reports whether the message carries a business document.
// Evidence messages carry only a confirmation and reference their originating
// business message.
func (m *Message) IsBusinessMessage() bool {
	return m.Content != nil && m.Content.BusinessDocumentRef != ""
}

func (m *Message) IsEvidenceMessage() bool {
	return !m.IsBusinessMessage() && len(m.Confirmations) > 0
}

func (m *Message) IsConfirmed() bool {
	return m.ConfirmedAt != nil
}

func (m *Message) IsRejected() bool {
	return m.RejectedAt != nil
}

// DomainOrDefault returns the message's business domain, falling back to the
// global default lane.
func (m *Message) DomainOrDefault() string {
	if m.DomainID == "" {
		return DefaultDomainID
	}
	return m.DomainID
}

func (m *Message) AddError(source, text, details string) {
	m.Errors = append(m.Errors, MessageError{
		Source:  source,
		Text:    text,
		Details: details,
		At:      time.Now(),
	})
}
