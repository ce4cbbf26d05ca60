package link

import (
	"context"

	"github.com/e-CODEX/connector-sub004/internal/message"
)

// Plugin is the transport implementation contract. A plugin declares which
// configuration impl names it serves and turns configurations into live
// links.
type Plugin interface {
	Name() string

	// CanHandle reports whether this plugin serves the given configuration
	// impl name. The registry asks plugins in registration order; the first
	// yes wins.
	CanHandle(impl string) bool

	// StartConfiguration brings up the shared per-configuration state, e.g. a
	// connection pool. Partners are enabled on the returned link afterwards.
	StartConfiguration(ctx context.Context, cfg Configuration) (ActiveLink, error)
}

// ActiveLink is one started configuration.
type ActiveLink interface {
	Configuration() Configuration

	// EnableLinkPartner connects one partner on this link. The returned
	// handle owns the partner's transport resources until Shutdown.
	EnableLinkPartner(ctx context.Context, partner Partner) (ActivePartner, error)

	// Shutdown releases the configuration-level resources. All partners must
	// be shut down first.
	Shutdown(ctx context.Context) error
}

// ActivePartner is one live, addressable link partner.
type ActivePartner interface {
	Partner() Partner

	// SubmitToLink pushes one message to the remote endpoint.
	SubmitToLink(ctx context.Context, msg *message.Message) error

	// PullFromLink fetches pending messages from the remote endpoint. Called
	// by the pull scheduler for partners with PULL receive mode.
	PullFromLink(ctx context.Context) error

	Shutdown(ctx context.Context) error
}

// InboundHandler receives messages a partner pulled or was pushed. The
// application routes them into the matching pipeline.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg *message.Message) error
}
