package message

import "time"

type MessageBuilder struct {
	msg *Message
}

func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{
		msg: &Message{
			Details: &MessageDetails{},
		},
	}
}

func (b *MessageBuilder) WithConnectorMessageID(id string) *MessageBuilder {
	b.msg.ConnectorMessageID = id
	return b
}

func (b *MessageBuilder) WithDomainID(id string) *MessageBuilder {
	b.msg.DomainID = id
	return b
}

func (b *MessageBuilder) WithDirection(d Direction) *MessageBuilder {
	b.msg.Direction = d
	return b
}

func (b *MessageBuilder) WithDetails(details *MessageDetails) *MessageBuilder {
	b.msg.Details = details
	return b
}

func (b *MessageBuilder) WithContent(content *Content) *MessageBuilder {
	b.msg.Content = content
	return b
}

func (b *MessageBuilder) WithConfirmation(c Confirmation) *MessageBuilder {
	b.msg.Confirmations = append(b.msg.Confirmations, c)
	return b
}

func (b *MessageBuilder) WithCreatedAt(t time.Time) *MessageBuilder {
	b.msg.CreatedAt = t
	return b
}

func (b *MessageBuilder) Build() *Message {
	if b.msg.CreatedAt.IsZero() {
		b.msg.CreatedAt = time.Now()
	}
	if b.msg.Details == nil {
		b.msg.Details = &MessageDetails{}
	}
	return b.msg
}

type DetailsBuilder struct {
	details *MessageDetails
}

func NewDetailsBuilder() *DetailsBuilder {
	return &DetailsBuilder{details: &MessageDetails{}}
}

// CopyDetails starts a builder from an existing details value, the copy-with
// idiom used for evidence message construction.
func CopyDetails(d *MessageDetails) *DetailsBuilder {
	return &DetailsBuilder{details: d.Copy()}
}

func (b *DetailsBuilder) WithEbmsMessageID(id string) *DetailsBuilder {
	b.details.EbmsMessageID = id
	return b
}

func (b *DetailsBuilder) WithBackendMessageID(id string) *DetailsBuilder {
	b.details.BackendMessageID = id
	return b
}

func (b *DetailsBuilder) WithConversationID(id string) *DetailsBuilder {
	b.details.ConversationID = id
	return b
}

func (b *DetailsBuilder) WithBackendName(name string) *DetailsBuilder {
	b.details.BackendName = name
	return b
}

func (b *DetailsBuilder) WithGatewayName(name string) *DetailsBuilder {
	b.details.GatewayName = name
	return b
}

func (b *DetailsBuilder) WithFromParty(p Party) *DetailsBuilder {
	b.details.FromParty = p
	return b
}

func (b *DetailsBuilder) WithToParty(p Party) *DetailsBuilder {
	b.details.ToParty = p
	return b
}

func (b *DetailsBuilder) WithService(s Service) *DetailsBuilder {
	b.details.Service = s
	return b
}

func (b *DetailsBuilder) WithAction(action string) *DetailsBuilder {
	b.details.Action = action
	return b
}

func (b *DetailsBuilder) WithRefToMessageID(id string) *DetailsBuilder {
	b.details.RefToMessageID = id
	return b
}

func (b *DetailsBuilder) WithRefToBackendMessageID(id string) *DetailsBuilder {
	b.details.RefToBackendMessageID = id
	return b
}

func (b *DetailsBuilder) WithCausedBy(connectorMessageID string) *DetailsBuilder {
	b.details.CausedBy = connectorMessageID
	return b
}

func (b *DetailsBuilder) Build() *MessageDetails {
	return b.details
}
