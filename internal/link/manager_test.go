package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

type fakePartner struct {
	partner     Partner
	mu          sync.Mutex
	submitted   []*message.Message
	pulls       int
	shutdowns   int
	submitErr   error
	shutdownErr error
}

func (p *fakePartner) Partner() Partner { return p.partner }

func (p *fakePartner) SubmitToLink(_ context.Context, msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return p.submitErr
	}
	p.submitted = append(p.submitted, msg)
	return nil
}

func (p *fakePartner) PullFromLink(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulls++
	return nil
}

func (p *fakePartner) Shutdown(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdowns++
	return p.shutdownErr
}

type fakeLink struct {
	cfg         Configuration
	mu          sync.Mutex
	enabled     map[string]*fakePartner
	enableErr   error
	shutdownErr error
	shutdowns   int
	partnerErrs map[string]error
}

func (l *fakeLink) Configuration() Configuration { return l.cfg }

func (l *fakeLink) EnableLinkPartner(_ context.Context, partner Partner) (ActivePartner, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enableErr != nil {
		return nil, l.enableErr
	}
	if l.enabled == nil {
		l.enabled = make(map[string]*fakePartner)
	}
	p := &fakePartner{partner: partner, shutdownErr: l.partnerErrs[partner.Name]}
	l.enabled[partner.Name] = p
	return p, nil
}

func (l *fakeLink) Shutdown(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdowns++
	return l.shutdownErr
}

type fakePlugin struct {
	name   string
	impl   string
	mu     sync.Mutex
	starts int
	links  map[string]*fakeLink
}

func (p *fakePlugin) Name() string              { return p.name }
func (p *fakePlugin) CanHandle(impl string) bool { return p.impl == impl }

func (p *fakePlugin) StartConfiguration(_ context.Context, cfg Configuration) (ActiveLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	l := &fakeLink{cfg: cfg}
	if p.links == nil {
		p.links = make(map[string]*fakeLink)
	}
	p.links[cfg.Name] = l
	return l, nil
}

func newTestManager(t *testing.T) (*Manager, *fakePlugin) {
	t.Helper()
	manager := NewManager(NewPullScheduler(logger.NopLogger()), logger.NopLogger())
	plugin := &fakePlugin{name: "fake", impl: "fake"}
	manager.RegisterPlugin(plugin)
	require.NoError(t, manager.RegisterConfiguration(Configuration{Name: "link-1", Impl: "fake"}))
	return manager, plugin
}

func backendPartner(name string) Partner {
	return Partner{
		Name:              name,
		ConfigurationName: "link-1",
		LinkType:          LinkTypeBackend,
		SendMode:          ModePush,
		ReceiveMode:       ModePush,
	}
}

func TestActivateLinkPartner(t *testing.T) {
	manager, plugin := newTestManager(t)

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))

	assert.Equal(t, []string{"backendA"}, manager.ActivePartnerNames())
	assert.Equal(t, 1, plugin.starts)

	active, ok := manager.ActivePartner("backendA")
	require.True(t, ok)
	assert.Equal(t, "backendA", active.Partner().Name)
}

func TestActivateLinkPartner_SharedConfigurationStartsOnce(t *testing.T) {
	manager, plugin := newTestManager(t)

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendB")))

	assert.Equal(t, 1, plugin.starts, "both partners share one started configuration")
	assert.Len(t, manager.ActivePartnerNames(), 2)
}

func TestActivateLinkPartner_ReplacesActiveName(t *testing.T) {
	manager, plugin := newTestManager(t)
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	old := plugin.links["link-1"].enabled["backendA"]

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))

	assert.Equal(t, 1, old.shutdowns, "the replaced handle is shut down")
	assert.Equal(t, []string{"backendA"}, manager.ActivePartnerNames())
	assert.Equal(t, 1, plugin.starts, "the shared configuration stays up across replacement")

	active, ok := manager.ActivePartner("backendA")
	require.True(t, ok)
	assert.NotSame(t, old, active, "the name points at the new handle")
}

func TestActivateLinkPartner_ReplacementRecreatesPullJob(t *testing.T) {
	scheduler := NewPullScheduler(logger.NopLogger())
	defer scheduler.Shutdown()
	manager := NewManager(scheduler, logger.NopLogger())
	manager.RegisterPlugin(&fakePlugin{name: "fake", impl: "fake"})
	require.NoError(t, manager.RegisterConfiguration(Configuration{Name: "link-1", Impl: "fake"}))

	pulling := backendPartner("backendA")
	pulling.ReceiveMode = ModePull
	pulling.PullInterval = time.Hour

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), pulling))
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), pulling))

	assert.Equal(t, 1, scheduler.JobCount(), "replacement keeps exactly one pull job")
}

func TestActivateLinkPartner_ReplacementSurvivesOldShutdownFailure(t *testing.T) {
	manager, plugin := newTestManager(t)
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	plugin.links["link-1"].enabled["backendA"].shutdownErr = errors.New("close failed")

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	assert.Equal(t, []string{"backendA"}, manager.ActivePartnerNames())
}

func TestActivateLinkPartner_Errors(t *testing.T) {
	manager, _ := newTestManager(t)
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))

	nameless := backendPartner("")
	err := manager.ActivateLinkPartner(context.Background(), nameless)
	assert.True(t, pkgerrors.IsValidation(err), "partner name is required")

	unbound := backendPartner("backendB")
	unbound.ConfigurationName = ""
	err = manager.ActivateLinkPartner(context.Background(), unbound)
	assert.True(t, pkgerrors.IsValidation(err), "configuration name is required")

	bad := backendPartner("backendB")
	bad.LinkType = "SIDEWAYS"
	err = manager.ActivateLinkPartner(context.Background(), bad)
	assert.True(t, pkgerrors.IsValidation(err))

	orphan := backendPartner("backendC")
	orphan.ConfigurationName = "missing"
	err = manager.ActivateLinkPartner(context.Background(), orphan)
	assert.True(t, pkgerrors.IsConfiguration(err))
}

func TestActivateLinkPartner_NoPluginHandlesImpl(t *testing.T) {
	manager := NewManager(NewPullScheduler(logger.NopLogger()), logger.NopLogger())
	manager.RegisterPlugin(&fakePlugin{name: "other", impl: "other"})
	require.NoError(t, manager.RegisterConfiguration(Configuration{Name: "link-1", Impl: "fake"}))

	err := manager.ActivateLinkPartner(context.Background(), backendPartner("backendA"))
	assert.True(t, pkgerrors.IsConfiguration(err))
}

func TestActivateLinkPartner_FirstMatchingPluginWins(t *testing.T) {
	manager := NewManager(NewPullScheduler(logger.NopLogger()), logger.NopLogger())
	first := &fakePlugin{name: "first", impl: "fake"}
	second := &fakePlugin{name: "second", impl: "fake"}
	manager.RegisterPlugin(first)
	manager.RegisterPlugin(second)
	require.NoError(t, manager.RegisterConfiguration(Configuration{Name: "link-1", Impl: "fake"}))

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	assert.Equal(t, 1, first.starts)
	assert.Equal(t, 0, second.starts)
}

func TestActivateLinkPartner_SchedulesPullJob(t *testing.T) {
	scheduler := NewPullScheduler(logger.NopLogger())
	defer scheduler.Shutdown()
	manager := NewManager(scheduler, logger.NopLogger())
	manager.RegisterPlugin(&fakePlugin{name: "fake", impl: "fake"})
	require.NoError(t, manager.RegisterConfiguration(Configuration{Name: "link-1", Impl: "fake"}))

	pulling := backendPartner("backendA")
	pulling.ReceiveMode = ModePull
	pulling.PullInterval = time.Hour

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), pulling))
	assert.Equal(t, 1, scheduler.JobCount())

	require.NoError(t, manager.ShutdownLinkPartner(context.Background(), "backendA"))
	assert.Equal(t, 0, scheduler.JobCount(), "shutdown cancels the pull job")
}

func TestRegisterConfiguration_Duplicate(t *testing.T) {
	manager, _ := newTestManager(t)
	err := manager.RegisterConfiguration(Configuration{Name: "link-1", Impl: "fake"})
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestShutdownLinkPartner(t *testing.T) {
	manager, plugin := newTestManager(t)
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))

	require.NoError(t, manager.ShutdownLinkPartner(context.Background(), "backendA"))
	assert.Empty(t, manager.ActivePartnerNames())
	assert.Equal(t, 1, plugin.links["link-1"].enabled["backendA"].shutdowns)

	err := manager.ShutdownLinkPartner(context.Background(), "backendA")
	assert.True(t, pkgerrors.IsNotFound(err), "shutting down an inactive partner is an error")
}

func TestShutdownLinkPartner_FailureStillDeactivates(t *testing.T) {
	manager, plugin := newTestManager(t)
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	plugin.links["link-1"].enabled["backendA"].shutdownErr = errors.New("close failed")

	err := manager.ShutdownLinkPartner(context.Background(), "backendA")
	require.Error(t, err)
	assert.Empty(t, manager.ActivePartnerNames(), "a half-dead partner must not keep receiving traffic")
}

func TestSubmitToLink_RoutesByDirection(t *testing.T) {
	manager, plugin := newTestManager(t)
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("gw")))

	incoming := &message.Message{
		ConnectorMessageID: "m-1",
		Direction:          message.DirectionGatewayToBackend,
		Details:            &message.MessageDetails{BackendName: "backendA", GatewayName: "gw"},
	}
	require.NoError(t, manager.SubmitToLink(context.Background(), incoming))

	outgoing := &message.Message{
		ConnectorMessageID: "m-2",
		Direction:          message.DirectionBackendToGateway,
		Details:            &message.MessageDetails{BackendName: "backendA", GatewayName: "gw"},
	}
	require.NoError(t, manager.SubmitToLink(context.Background(), outgoing))

	enabled := plugin.links["link-1"].enabled
	assert.Len(t, enabled["backendA"].submitted, 1)
	assert.Len(t, enabled["gw"].submitted, 1)
	assert.Equal(t, "m-1", enabled["backendA"].submitted[0].ConnectorMessageID)
	assert.Equal(t, "m-2", enabled["gw"].submitted[0].ConnectorMessageID)
}

func TestSubmitToLink_Errors(t *testing.T) {
	manager, _ := newTestManager(t)

	blank := &message.Message{
		ConnectorMessageID: "m-1",
		Direction:          message.DirectionGatewayToBackend,
		Details:            &message.MessageDetails{},
	}
	err := manager.SubmitToLink(context.Background(), blank)
	assert.True(t, pkgerrors.IsValidation(err), "no destination resolved")

	inactive := &message.Message{
		ConnectorMessageID: "m-2",
		Direction:          message.DirectionGatewayToBackend,
		Details:            &message.MessageDetails{BackendName: "backendA"},
	}
	err = manager.SubmitToLink(context.Background(), inactive)
	assert.True(t, pkgerrors.IsLinkInactive(err))
}

func TestManagerShutdown_SweepsEverythingAndJoinsErrors(t *testing.T) {
	manager, plugin := newTestManager(t)

	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendA")))
	require.NoError(t, manager.ActivateLinkPartner(context.Background(), backendPartner("backendB")))
	link := plugin.links["link-1"]
	link.enabled["backendA"].shutdownErr = errors.New("backendA stuck")

	err := manager.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backendA stuck")

	assert.Empty(t, manager.ActivePartnerNames(), "failing partners do not block the sweep")
	assert.Equal(t, 1, link.enabled["backendB"].shutdowns)
	assert.Equal(t, 1, link.shutdowns, "the shared link is torn down too")
}

func TestManagerShutdown_ConcurrentActivation(t *testing.T) {
	manager, plugin := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.ActivateLinkPartner(context.Background(), backendPartner("backendA"))
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"backendA"}, manager.ActivePartnerNames(), "the name ends up with exactly one handle")
	assert.Equal(t, 1, plugin.starts)
}
