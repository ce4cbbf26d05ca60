package routing

import (
	"context"
	"fmt"

	"github.com/e-CODEX/connector-sub004/internal/config"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/internal/persistence"
	"github.com/e-CODEX/connector-sub004/pkg/cel"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
	"github.com/e-CODEX/connector-sub004/pkg/tracing"
)

// DomainConfigProvider supplies the per-domain routing flags. *config.Config
// satisfies it.
type DomainConfigProvider interface {
	Domain(domainID string) config.DomainConfig
}

// Resolver assigns backend and gateway endpoint names to messages. It mutates
// the message details in place and is idempotent: already-set names are never
// overwritten.
type Resolver struct {
	rules     Repository
	messages  persistence.MessageRepository
	domains   DomainConfigProvider
	evaluator *cel.Evaluator
	logger    logger.Logger
}

func NewResolver(rules Repository, messages persistence.MessageRepository, domains DomainConfigProvider, log logger.Logger) (*Resolver, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	return &Resolver{
		rules:     rules,
		messages:  messages,
		domains:   domains,
		evaluator: evaluator,
		logger:    log,
	}, nil
}

func (r *Resolver) ResolveBackendName(ctx context.Context, msg *message.Message) error {
	ctx, span := tracing.GetTracer("routing-resolver").Start(ctx, "routing.resolve_backend")
	defer span.End()

	if msg.Details.BackendName != "" {
		metrics.RoutingDecisionsTotal.WithLabelValues("already_set").Inc()
		return nil
	}

	domainID := msg.DomainOrDefault()

	if msg.Details.ConversationID != "" {
		name, err := r.backendFromConversation(ctx, domainID, msg.Details.ConversationID)
		if err != nil {
			return err
		}
		if name != "" {
			r.logger.DebugwCtx(ctx, "Backend pinned by conversation continuity",
				"conversation_id", msg.Details.ConversationID,
				"backend_name", name,
			)
			metrics.RoutingDecisionsTotal.WithLabelValues("conversation").Inc()
			msg.Details.BackendName = name
			return nil
		}
	}

	domainCfg := r.domains.Domain(domainID)

	if !domainCfg.RoutingEnabled {
		metrics.RoutingDecisionsTotal.WithLabelValues("routing_disabled").Inc()
		msg.Details.BackendName = domainCfg.DefaultBackendName
		return nil
	}

	rules, err := r.rules.GetActiveRules(ctx, domainID)
	if err != nil {
		return fmt.Errorf("failed to load routing rules: %w", err)
	}
	metrics.SetRoutingActiveRules(len(rules))

	for _, rule := range rules {
		matched, err := r.evaluator.EvaluateMatch(ctx, rule.Expression, msg.Details)
		if err != nil {
			// A broken rule must not block routing; later rules and the
			// default backend still apply.
			r.logger.ErrorwCtx(ctx, "Routing rule evaluation error",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}

		if matched {
			r.logger.DebugwCtx(ctx, "Routing rule matched",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"backend_name", rule.BackendName,
			)
			metrics.RoutingDecisionsTotal.WithLabelValues("rule_match").Inc()
			msg.Details.BackendName = rule.BackendName
			return nil
		}
	}

	// No rule matched; this is the designed fallback path, not a failure.
	metrics.RoutingDecisionsTotal.WithLabelValues("default").Inc()
	msg.Details.BackendName = domainCfg.DefaultBackendName
	return nil
}

func (r *Resolver) backendFromConversation(ctx context.Context, domainID, conversationID string) (string, error) {
	previous, err := r.messages.FindByConversationID(ctx, domainID, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation messages: %w", err)
	}

	for _, prev := range previous {
		if prev.Details != nil && prev.Details.BackendName != "" {
			return prev.Details.BackendName, nil
		}
	}
	return "", nil
}

// ResolveGatewayName assigns the domain's single configured gateway. A domain
// without a gateway cannot deliver anything, so a missing name is a fatal
// configuration error.
func (r *Resolver) ResolveGatewayName(ctx context.Context, msg *message.Message) error {
	if msg.Details.GatewayName != "" {
		return nil
	}

	domainCfg := r.domains.Domain(msg.DomainOrDefault())
	if domainCfg.DefaultGatewayName == "" {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("no gateway configured for domain %q", msg.DomainOrDefault()))
	}

	msg.Details.GatewayName = domainCfg.DefaultGatewayName
	return nil
}
