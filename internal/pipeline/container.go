package pipeline

import (
	"context"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
)

// PassthroughContainerBuilder forwards the business document reference
// untouched. Deployments with a signing service plug their own builder in.
type PassthroughContainerBuilder struct {
	logger logger.Logger
}

func NewPassthroughContainerBuilder(log logger.Logger) *PassthroughContainerBuilder {
	return &PassthroughContainerBuilder{logger: log}
}

func (b *PassthroughContainerBuilder) BuildContainer(ctx context.Context, msg *message.Message) error {
	b.logger.DebugwCtx(ctx, "Container passthrough",
		"connector_message_id", msg.ConnectorMessageID,
		"business_document_ref", msg.Content.BusinessDocumentRef,
	)
	return nil
}
