package link

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
)

// Manager owns the plugin registry and every active link and partner. All
// activation and shutdown runs under one lock, so the active maps never show
// a half-activated partner.
type Manager struct {
	scheduler *PullScheduler
	logger    logger.Logger

	mu       sync.Mutex
	plugins  []Plugin
	configs  map[string]Configuration
	links    map[string]ActiveLink
	partners map[string]ActivePartner
}

func NewManager(scheduler *PullScheduler, log logger.Logger) *Manager {
	return &Manager{
		scheduler: scheduler,
		logger:    log,
		configs:   make(map[string]Configuration),
		links:     make(map[string]ActiveLink),
		partners:  make(map[string]ActivePartner),
	}
}

// RegisterPlugin appends a plugin to the registry. Registration order is
// lookup order.
func (m *Manager) RegisterPlugin(p Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = append(m.plugins, p)
	m.logger.Infow("Link plugin registered", "plugin", p.Name())
}

// RegisterConfiguration declares a link configuration. Partners reference it
// by name on activation.
func (m *Manager) RegisterConfiguration(cfg Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.configs[cfg.Name]; ok {
		return pkgerrors.ErrConflict.WithMessage(fmt.Sprintf("link configuration %q already registered", cfg.Name))
	}
	m.configs[cfg.Name] = cfg
	return nil
}

// ActivateLinkPartner brings one partner live: the owning configuration is
// started on first use, the partner is enabled on it, registered under its
// name, and its pull job scheduled when the receive mode asks for one.
// Activating a name that is already active replaces it: the old partner is
// shut down under the same lock before the new one goes live, so the name
// never points at two handles.
func (m *Manager) ActivateLinkPartner(ctx context.Context, partner Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if partner.Name == "" {
		return pkgerrors.ErrValidation.WithMessage("link partner name is required")
	}
	if partner.ConfigurationName == "" {
		return pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("partner %q requires a link configuration name", partner.Name))
	}
	if !partner.LinkType.Valid() {
		return pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid link type %q for partner %q", partner.LinkType, partner.Name))
	}

	cfg, ok := m.configs[partner.ConfigurationName]
	if !ok {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("partner %q references unknown link configuration %q", partner.Name, partner.ConfigurationName))
	}

	if previous, ok := m.partners[partner.Name]; ok {
		m.scheduler.Cancel(partner.Name)
		delete(m.partners, partner.Name)
		if err := previous.Shutdown(ctx); err != nil {
			// The old handle is already out of the map; the replacement still
			// goes live.
			m.logger.ErrorwCtx(ctx, "Replaced link partner shutdown failed",
				"link_partner", partner.Name, "error", err)
		}
		m.logger.InfowCtx(ctx, "Link partner replaced", "link_partner", partner.Name)
	}

	activeLink, err := m.linkFor(ctx, cfg)
	if err != nil {
		return err
	}

	activePartner, err := activeLink.EnableLinkPartner(ctx, partner)
	if err != nil {
		return fmt.Errorf("failed to enable link partner %q: %w", partner.Name, err)
	}

	m.partners[partner.Name] = activePartner
	metrics.ActiveLinkPartners.Set(float64(len(m.partners)))

	if partner.ReceiveMode == ModePull && partner.PullInterval > 0 {
		m.scheduler.Schedule(partner.Name, partner.PullInterval, activePartner.PullFromLink)
	}

	m.logger.InfowCtx(ctx, "Link partner activated",
		"link_partner", partner.Name,
		"configuration", partner.ConfigurationName,
		"link_type", string(partner.LinkType),
	)

	return nil
}

// linkFor returns the started link of the configuration, starting it through
// the first plugin that handles the impl. Callers hold the manager lock.
func (m *Manager) linkFor(ctx context.Context, cfg Configuration) (ActiveLink, error) {
	if activeLink, ok := m.links[cfg.Name]; ok {
		return activeLink, nil
	}

	var plugin Plugin
	for _, p := range m.plugins {
		if p.CanHandle(cfg.Impl) {
			plugin = p
			break
		}
	}
	if plugin == nil {
		return nil, pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("no plugin handles link impl %q of configuration %q", cfg.Impl, cfg.Name))
	}

	activeLink, err := plugin.StartConfiguration(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start link configuration %q: %w", cfg.Name, err)
	}

	m.links[cfg.Name] = activeLink
	metrics.ActiveLinks.Set(float64(len(m.links)))

	return activeLink, nil
}

// ShutdownLinkPartner takes one partner out of service. Shutting down a
// partner that is not active is an error, not a no-op: the caller's view of
// the active set is stale.
func (m *Manager) ShutdownLinkPartner(ctx context.Context, partnerName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	activePartner, ok := m.partners[partnerName]
	if !ok {
		return pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("link partner %q is not active", partnerName))
	}

	m.scheduler.Cancel(partnerName)

	if err := activePartner.Shutdown(ctx); err != nil {
		// Partner stays out of the map regardless; a half-dead partner must
		// not keep receiving traffic.
		delete(m.partners, partnerName)
		metrics.ActiveLinkPartners.Set(float64(len(m.partners)))
		return fmt.Errorf("failed to shut down link partner %q: %w", partnerName, err)
	}

	delete(m.partners, partnerName)
	metrics.ActiveLinkPartners.Set(float64(len(m.partners)))

	m.logger.InfowCtx(ctx, "Link partner shut down", "link_partner", partnerName)
	return nil
}

// SubmitToLink routes the message to its destination partner: the gateway
// name for outgoing messages, the backend name for incoming ones.
func (m *Manager) SubmitToLink(ctx context.Context, msg *message.Message) error {
	partnerName := msg.Details.BackendName
	if msg.Direction == message.DirectionBackendToGateway {
		partnerName = msg.Details.GatewayName
	}
	if partnerName == "" {
		return pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("message %q has no destination for direction %s", msg.ConnectorMessageID, msg.Direction))
	}

	m.mu.Lock()
	activePartner, ok := m.partners[partnerName]
	m.mu.Unlock()

	if !ok {
		return pkgerrors.ErrLinkInactive.
			WithMessage(fmt.Sprintf("link partner %q is not active", partnerName))
	}

	return activePartner.SubmitToLink(ctx, msg)
}

// Dispatch satisfies the evidence submitter contract.
func (m *Manager) Dispatch(ctx context.Context, msg *message.Message) error {
	return m.SubmitToLink(ctx, msg)
}

// ActivePartnerNames lists the currently active partners.
func (m *Manager) ActivePartnerNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.partners))
	for name := range m.partners {
		names = append(names, name)
	}
	return names
}

// ActivePartner returns the live partner registered under the name.
func (m *Manager) ActivePartner(partnerName string) (ActivePartner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[partnerName]
	return p, ok
}

// Shutdown tears down every partner and link. Teardown is best effort: one
// failing partner never blocks the rest, and all failures come back joined.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.scheduler.Shutdown()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for name, activePartner := range m.partners {
		if err := activePartner.Shutdown(ctx); err != nil {
			m.logger.Errorw("Link partner shutdown failed", "link_partner", name, "error", err)
			errs = append(errs, fmt.Errorf("partner %q: %w", name, err))
		}
		delete(m.partners, name)
	}
	metrics.ActiveLinkPartners.Set(0)

	for name, activeLink := range m.links {
		if err := activeLink.Shutdown(ctx); err != nil {
			m.logger.Errorw("Link shutdown failed", "configuration", name, "error", err)
			errs = append(errs, fmt.Errorf("configuration %q: %w", name, err))
		}
		delete(m.links, name)
	}
	metrics.ActiveLinks.Set(0)

	return errors.Join(errs...)
}
