package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/internal/persistence"
	"github.com/e-CODEX/connector-sub004/internal/pmode"
	"github.com/e-CODEX/connector-sub004/internal/routing"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
)

// Deduplicator answers whether a gateway message id was already received
// within the awareness window.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, domainID, ebmsMessageID string) (bool, error)
}

// LinkSubmitter hands a message to its destination link partner. The active
// link manager satisfies it.
type LinkSubmitter interface {
	SubmitToLink(ctx context.Context, msg *message.Message) error
}

// ContainerBuilder assembles the signed transport container around the
// business document. The connector treats the container as opaque.
type ContainerBuilder interface {
	BuildContainer(ctx context.Context, msg *message.Message) error
}

// GenerateMissingIDsStep assigns a connector message id and reception
// timestamp where the submitter left them blank.
type GenerateMissingIDsStep struct{}

func (s *GenerateMissingIDsStep) Name() string { return "generate_missing_ids" }

func (s *GenerateMissingIDsStep) Execute(_ context.Context, msg *message.Message) (bool, error) {
	if msg.ConnectorMessageID == "" {
		msg.ConnectorMessageID = uuid.New().String()
	}
	if msg.Details == nil {
		msg.Details = &message.MessageDetails{}
	}
	if msg.Details.ReceivedAt.IsZero() {
		msg.Details.ReceivedAt = time.Now()
	}
	if !msg.Direction.Valid() {
		return false, pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid message direction %q", msg.Direction))
	}
	return true, nil
}

// DeduplicationStep drops gateway messages whose ebMS id was already seen.
// Dropping is a clean stop, not a failure.
type DeduplicationStep struct {
	dedup  Deduplicator
	logger logger.Logger
}

func NewDeduplicationStep(dedup Deduplicator, log logger.Logger) *DeduplicationStep {
	return &DeduplicationStep{dedup: dedup, logger: log}
}

func (s *DeduplicationStep) Name() string { return "deduplication" }

func (s *DeduplicationStep) Execute(ctx context.Context, msg *message.Message) (bool, error) {
	if msg.Details.EbmsMessageID == "" {
		return true, nil
	}

	duplicate, err := s.dedup.IsDuplicate(ctx, msg.DomainOrDefault(), msg.Details.EbmsMessageID)
	if err != nil {
		return false, err
	}
	if duplicate {
		s.logger.WarnwCtx(ctx, "Duplicate message dropped",
			"ebms_message_id", msg.Details.EbmsMessageID,
			"domain_id", msg.DomainOrDefault(),
		)
		metrics.DuplicateMessagesTotal.WithLabelValues(msg.DomainOrDefault()).Inc()
		return false, nil
	}
	return true, nil
}

// VerifyPModesStep completes the message's routing attributes against the
// domain's processing modes.
type VerifyPModesStep struct {
	verifier *pmode.Verifier
}

func NewVerifyPModesStep(verifier *pmode.Verifier) *VerifyPModesStep {
	return &VerifyPModesStep{verifier: verifier}
}

func (s *VerifyPModesStep) Name() string { return "verify_pmodes" }

func (s *VerifyPModesStep) Execute(ctx context.Context, msg *message.Message) (bool, error) {
	var err error
	if msg.Direction == message.DirectionBackendToGateway {
		err = s.verifier.VerifyOutgoing(ctx, msg)
	} else {
		err = s.verifier.VerifyIncoming(ctx, msg)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResolveRoutingStep assigns the destination endpoint name: the backend for
// received messages, the gateway for submitted ones.
type ResolveRoutingStep struct {
	resolver *routing.Resolver
}

func NewResolveRoutingStep(resolver *routing.Resolver) *ResolveRoutingStep {
	return &ResolveRoutingStep{resolver: resolver}
}

func (s *ResolveRoutingStep) Name() string { return "resolve_routing" }

func (s *ResolveRoutingStep) Execute(ctx context.Context, msg *message.Message) (bool, error) {
	var err error
	if msg.Direction == message.DirectionGatewayToBackend {
		err = s.resolver.ResolveBackendName(ctx, msg)
	} else {
		err = s.resolver.ResolveGatewayName(ctx, msg)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BuildContainerStep wraps the business document for transport. Evidence
// messages carry no document and skip the builder.
type BuildContainerStep struct {
	builder ContainerBuilder
}

func NewBuildContainerStep(builder ContainerBuilder) *BuildContainerStep {
	return &BuildContainerStep{builder: builder}
}

func (s *BuildContainerStep) Name() string { return "build_container" }

func (s *BuildContainerStep) Execute(ctx context.Context, msg *message.Message) (bool, error) {
	if !msg.IsBusinessMessage() {
		return true, nil
	}
	if err := s.builder.BuildContainer(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

// PersistStep stores new business messages. Evidence messages are transient
// and pass through unchanged.
type PersistStep struct {
	messages persistence.MessageRepository
}

func NewPersistStep(messages persistence.MessageRepository) *PersistStep {
	return &PersistStep{messages: messages}
}

func (s *PersistStep) Name() string { return "persist" }

func (s *PersistStep) Execute(ctx context.Context, msg *message.Message) (bool, error) {
	if !msg.IsBusinessMessage() {
		return true, nil
	}
	if err := s.messages.PersistNewBusinessMessage(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

// SubmitToLinkStep hands the message to its destination link partner, the
// terminal step of both pipelines.
type SubmitToLinkStep struct {
	links LinkSubmitter
}

func NewSubmitToLinkStep(links LinkSubmitter) *SubmitToLinkStep {
	return &SubmitToLinkStep{links: links}
}

func (s *SubmitToLinkStep) Name() string { return "submit_to_link" }

func (s *SubmitToLinkStep) Execute(ctx context.Context, msg *message.Message) (bool, error) {
	if err := s.links.SubmitToLink(ctx, msg); err != nil {
		return false, err
	}
	metrics.IncMessage(string(msg.Direction), "submitted")
	return true, nil
}
