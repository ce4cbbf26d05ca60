package pmode

import (
	"context"
	"fmt"

	"github.com/e-CODEX/connector-sub004/internal/config"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

// DomainConfigProvider supplies the per-domain verification modes.
// *config.Config satisfies it.
type DomainConfigProvider interface {
	Domain(domainID string) config.DomainConfig
}

// Verifier completes a message's routing attributes against the domain's
// processing-mode configuration before routing and dispatch. It mutates the
// message details in place.
type Verifier struct {
	sets    Repository
	domains DomainConfigProvider
	logger  logger.Logger
}

func NewVerifier(sets Repository, domains DomainConfigProvider, log logger.Logger) *Verifier {
	return &Verifier{
		sets:    sets,
		domains: domains,
		logger:  log,
	}
}

// VerifyOutgoing verifies a backend-submitted message before it leaves toward
// the gateway. The submitting backend is the initiator.
func (v *Verifier) VerifyOutgoing(ctx context.Context, msg *message.Message) error {
	defaultRoles(msg.Details)
	mode := v.domains.Domain(msg.DomainOrDefault()).OutgoingVerification
	return v.verify(ctx, msg, mode)
}

// VerifyIncoming verifies a gateway-received message before backend delivery.
func (v *Verifier) VerifyIncoming(ctx context.Context, msg *message.Message) error {
	defaultRoles(msg.Details)
	mode := v.domains.Domain(msg.DomainOrDefault()).IncomingVerification
	return v.verify(ctx, msg, mode)
}

func (v *Verifier) verify(ctx context.Context, msg *message.Message, mode config.VerificationMode) error {
	switch mode {
	case config.VerificationRelaxed:
		return v.verifyRelaxed(ctx, msg)
	case config.VerificationStrict, config.VerificationCreate:
		// Accepted modes without completion behaviour. The gateway enforces
		// its own processing modes on the wire.
		v.logger.DebugwCtx(ctx, "PMode verification mode performs no completion",
			"mode", string(mode),
			"connector_message_id", msg.ConnectorMessageID,
		)
		return nil
	default:
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("unknown verification mode %q for domain %q", mode, msg.DomainOrDefault()))
	}
}

// verifyRelaxed replaces the message's action, service and parties with the
// canonical configured values. Any attribute without a configured counterpart
// is a fatal configuration error: the domain's processing modes do not cover
// the message.
func (v *Verifier) verifyRelaxed(ctx context.Context, msg *message.Message) error {
	domainID := msg.DomainOrDefault()

	set, err := v.sets.GetSet(ctx, domainID)
	if err != nil {
		return fmt.Errorf("failed to load pmode set for domain %q: %w", domainID, err)
	}

	details := msg.Details

	action, ok := set.FindAction(details.Action)
	if !ok {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("action %q is not configured in domain %q", details.Action, domainID))
	}
	details.Action = action.Name

	service, ok := set.FindService(details.Service.Name)
	if !ok {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("service %q is not configured in domain %q", details.Service.Name, domainID))
	}
	details.Service = message.Service{Name: service.Name, Type: service.Type}

	fromParty, ok := set.FindParty(details.FromParty)
	if !ok {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("from-party %q (%s) is not configured in domain %q",
				details.FromParty.PartyID, details.FromParty.Role, domainID))
	}
	details.FromParty = canonicalParty(fromParty, details.FromParty.Role)

	toParty, ok := set.FindParty(details.ToParty)
	if !ok {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("to-party %q (%s) is not configured in domain %q",
				details.ToParty.PartyID, details.ToParty.Role, domainID))
	}
	details.ToParty = canonicalParty(toParty, details.ToParty.Role)

	v.logger.DebugwCtx(ctx, "PMode attributes completed",
		"connector_message_id", msg.ConnectorMessageID,
		"action", details.Action,
		"service", details.Service.Name,
	)

	return nil
}

// defaultRoles fills the conventional party roles when the submitter left them
// blank. The sending side initiates the exchange.
func defaultRoles(details *message.MessageDetails) {
	if details.FromParty.Role == "" {
		details.FromParty.Role = message.RoleInitiator
	}
	if details.ToParty.Role == "" {
		details.ToParty.Role = message.RoleResponder
	}
}

func canonicalParty(cp Party, role string) message.Party {
	canonical := message.Party{
		PartyID:     cp.PartyID,
		PartyIDType: cp.PartyIDType,
		Role:        cp.Role,
	}
	if canonical.Role == "" {
		canonical.Role = role
	}
	return canonical
}
