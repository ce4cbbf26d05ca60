package pipeline

import (
	"github.com/e-CODEX/connector-sub004/internal/evidence"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/persistence"
	"github.com/e-CODEX/connector-sub004/internal/pmode"
	"github.com/e-CODEX/connector-sub004/internal/routing"
)

// NewOutgoingPipeline processes backend-submitted business messages on their
// way to the gateway.
func NewOutgoingPipeline(
	verifier *pmode.Verifier,
	resolver *routing.Resolver,
	builder ContainerBuilder,
	messages persistence.MessageRepository,
	links LinkSubmitter,
	log logger.Logger,
) *Orchestrator {
	return NewOrchestrator("outgoing", []Step{
		&GenerateMissingIDsStep{},
		NewVerifyPModesStep(verifier),
		NewResolveRoutingStep(resolver),
		NewBuildContainerStep(builder),
		NewPersistStep(messages),
		NewSubmitToLinkStep(links),
	}, log)
}

// NewIncomingPipeline processes gateway-received business messages on their
// way to a backend. Duplicate suppression runs before anything is persisted.
func NewIncomingPipeline(
	dedup Deduplicator,
	verifier *pmode.Verifier,
	resolver *routing.Resolver,
	messages persistence.MessageRepository,
	links LinkSubmitter,
	log logger.Logger,
) *Orchestrator {
	return NewOrchestrator("incoming", []Step{
		&GenerateMissingIDsStep{},
		NewDeduplicationStep(dedup, log),
		NewVerifyPModesStep(verifier),
		NewResolveRoutingStep(resolver),
		NewPersistStep(messages),
		NewSubmitToLinkStep(links),
	}, log)
}

// NewEvidencePipeline processes evidence messages from either side. The
// confirmation is applied to the referenced business message first; only
// evidence the state machine accepted travels onward.
func NewEvidencePipeline(
	messages persistence.MessageRepository,
	machine *evidence.StateMachine,
	resolver *routing.Resolver,
	links LinkSubmitter,
	log logger.Logger,
) *Orchestrator {
	return NewOrchestrator("evidence", []Step{
		&GenerateMissingIDsStep{},
		&ValidateConfirmationStep{},
		NewApplyConfirmationStep(messages, machine, log),
		NewResolveRoutingStep(resolver),
		NewSubmitToLinkStep(links),
	}, log)
}
