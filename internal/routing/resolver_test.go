package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-CODEX/connector-sub004/internal/config"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

type fakeRuleRepo struct {
	rules []Rule
	err   error
}

func (f *fakeRuleRepo) GetActiveRules(_ context.Context, _ string) ([]Rule, error) {
	return f.rules, f.err
}
func (f *fakeRuleRepo) ListRules(_ context.Context, _ string) ([]Rule, error) {
	return f.rules, f.err
}
func (f *fakeRuleRepo) GetRule(_ context.Context, _ string) (*Rule, error) { return nil, f.err }
func (f *fakeRuleRepo) CreateRule(_ context.Context, _ *Rule) error        { return f.err }
func (f *fakeRuleRepo) UpdateRule(_ context.Context, _ *Rule) error        { return f.err }
func (f *fakeRuleRepo) DeleteRule(_ context.Context, _ string) error       { return f.err }

type fakeMessageRepo struct {
	conversation []*message.Message
	err          error
}

func (f *fakeMessageRepo) PersistNewBusinessMessage(_ context.Context, _ *message.Message) error {
	return errors.New("not implemented")
}
func (f *fakeMessageRepo) FindByID(_ context.Context, _ string) (*message.Message, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeMessageRepo) FindByEbmsMessageID(_ context.Context, _, _ string) (*message.Message, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeMessageRepo) FindByConversationID(_ context.Context, _, _ string) ([]*message.Message, error) {
	return f.conversation, f.err
}
func (f *fakeMessageRepo) ConfirmMessage(_ context.Context, _ string) error { return nil }
func (f *fakeMessageRepo) RejectMessage(_ context.Context, _ string) error  { return nil }
func (f *fakeMessageRepo) CheckMessageRejected(_ context.Context, _ string) (bool, error) {
	return false, nil
}
func (f *fakeMessageRepo) AddConfirmation(_ context.Context, _ string, _ message.Confirmation) error {
	return nil
}
func (f *fakeMessageRepo) ListConfirmations(_ context.Context, _ string) ([]message.Confirmation, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Domains: map[string]config.DomainConfig{
			"default": {
				RoutingEnabled:     true,
				DefaultBackendName: "default_backend",
				DefaultGatewayName: "gw",
			},
		},
	}
}

func newTestResolver(t *testing.T, rules *fakeRuleRepo, messages *fakeMessageRepo, cfg *config.Config) *Resolver {
	t.Helper()
	resolver, err := NewResolver(rules, messages, cfg, logger.NopLogger())
	require.NoError(t, err)
	return resolver
}

func businessMessage(action string) *message.Message {
	return &message.Message{
		ConnectorMessageID: "m-1",
		Direction:          message.DirectionGatewayToBackend,
		Details: &message.MessageDetails{
			Action:  action,
			Service: message.Service{Name: "EPO"},
		},
		Content: &message.Content{BusinessDocumentRef: "doc://1"},
	}
}

func TestResolveBackendName_RuleMatch(t *testing.T) {
	rules := &fakeRuleRepo{rules: []Rule{
		{ID: "r1", Name: "form_a", Expression: `action == "Form_A"`, Priority: 10, BackendName: "backendA", Enabled: true},
		{ID: "r2", Name: "catchall", Expression: `action != ""`, Priority: 1, BackendName: "backendB", Enabled: true},
	}}
	resolver := newTestResolver(t, rules, &fakeMessageRepo{}, testConfig())

	msg := businessMessage("Form_A")
	require.NoError(t, resolver.ResolveBackendName(context.Background(), msg))
	assert.Equal(t, "backendA", msg.Details.BackendName)
}

func TestResolveBackendName_FirstMatchWins(t *testing.T) {
	// Repository returns rules highest priority first; the resolver keeps
	// that order.
	rules := &fakeRuleRepo{rules: []Rule{
		{ID: "r1", Expression: `action == "Form_A"`, Priority: 20, BackendName: "backendHigh", Enabled: true},
		{ID: "r2", Expression: `action == "Form_A"`, Priority: 5, BackendName: "backendLow", Enabled: true},
	}}
	resolver := newTestResolver(t, rules, &fakeMessageRepo{}, testConfig())

	msg := businessMessage("Form_A")
	require.NoError(t, resolver.ResolveBackendName(context.Background(), msg))
	assert.Equal(t, "backendHigh", msg.Details.BackendName)
}

func TestResolveBackendName_DefaultFallback(t *testing.T) {
	rules := &fakeRuleRepo{rules: []Rule{
		{ID: "r1", Expression: `action == "Form_B"`, Priority: 10, BackendName: "backendB", Enabled: true},
	}}
	resolver := newTestResolver(t, rules, &fakeMessageRepo{}, testConfig())

	msg := businessMessage("Form_A")
	require.NoError(t, resolver.ResolveBackendName(context.Background(), msg))
	assert.Equal(t, "default_backend", msg.Details.BackendName)
}

func TestResolveBackendName_BrokenRuleSkipped(t *testing.T) {
	rules := &fakeRuleRepo{rules: []Rule{
		{ID: "r1", Expression: `broken ==`, Priority: 20, BackendName: "never", Enabled: true},
		{ID: "r2", Expression: `action == "Form_A"`, Priority: 10, BackendName: "backendA", Enabled: true},
	}}
	resolver := newTestResolver(t, rules, &fakeMessageRepo{}, testConfig())

	msg := businessMessage("Form_A")
	require.NoError(t, resolver.ResolveBackendName(context.Background(), msg))
	assert.Equal(t, "backendA", msg.Details.BackendName)
}

func TestResolveBackendName_AlreadySet(t *testing.T) {
	rules := &fakeRuleRepo{err: errors.New("must not be called")}
	resolver := newTestResolver(t, rules, &fakeMessageRepo{}, testConfig())

	msg := businessMessage("Form_A")
	msg.Details.BackendName = "pinned"
	require.NoError(t, resolver.ResolveBackendName(context.Background(), msg))
	assert.Equal(t, "pinned", msg.Details.BackendName)
}

func TestResolveBackendName_ConversationContinuity(t *testing.T) {
	rules := &fakeRuleRepo{rules: []Rule{
		{ID: "r1", Expression: `action == "Form_A"`, Priority: 10, BackendName: "backendA", Enabled: true},
	}}
	messages := &fakeMessageRepo{conversation: []*message.Message{
		{ConnectorMessageID: "m-0", Details: &message.MessageDetails{BackendName: "backendFromConv"}},
	}}
	resolver := newTestResolver(t, rules, messages, testConfig())

	msg := businessMessage("Form_A")
	msg.Details.ConversationID = "conv-1"
	require.NoError(t, resolver.ResolveBackendName(context.Background(), msg))
	assert.Equal(t, "backendFromConv", msg.Details.BackendName,
		"conversation continuity outranks rule matching")
}

func TestResolveBackendName_RoutingDisabled(t *testing.T) {
	cfg := testConfig()
	domain := cfg.Domains["default"]
	domain.RoutingEnabled = false
	cfg.Domains["default"] = domain

	rules := &fakeRuleRepo{rules: []Rule{
		{ID: "r1", Expression: `action == "Form_A"`, Priority: 10, BackendName: "backendA", Enabled: true},
	}}
	resolver := newTestResolver(t, rules, &fakeMessageRepo{}, cfg)

	msg := businessMessage("Form_A")
	require.NoError(t, resolver.ResolveBackendName(context.Background(), msg))
	assert.Equal(t, "default_backend", msg.Details.BackendName)
}

func TestResolveGatewayName(t *testing.T) {
	resolver := newTestResolver(t, &fakeRuleRepo{}, &fakeMessageRepo{}, testConfig())

	msg := businessMessage("Form_A")
	msg.Direction = message.DirectionBackendToGateway
	require.NoError(t, resolver.ResolveGatewayName(context.Background(), msg))
	assert.Equal(t, "gw", msg.Details.GatewayName)
}

func TestResolveGatewayName_MissingIsFatal(t *testing.T) {
	cfg := &config.Config{Domains: map[string]config.DomainConfig{}}
	resolver := newTestResolver(t, &fakeRuleRepo{}, &fakeMessageRepo{}, cfg)

	msg := businessMessage("Form_A")
	err := resolver.ResolveGatewayName(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConfiguration(err))
}
