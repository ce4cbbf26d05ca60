package pmode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-CODEX/connector-sub004/internal/config"
	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

type fakeSetRepo struct {
	set *Set
	err error
}

func (f *fakeSetRepo) GetSet(_ context.Context, _ string) (*Set, error) {
	return f.set, f.err
}

type fakeDomainProvider struct {
	outgoing config.VerificationMode
	incoming config.VerificationMode
}

func (f *fakeDomainProvider) Domain(_ string) config.DomainConfig {
	return config.DomainConfig{
		OutgoingVerification: f.outgoing,
		IncomingVerification: f.incoming,
	}
}

func configuredSet() *Set {
	return &Set{
		DomainID: "default",
		Actions:  []Action{{Name: "Form_A"}, {Name: "DeliveryNonDeliveryToRecipient"}},
		Services: []Service{{Name: "EPO", Type: "urn:e-codex:services"}},
		Parties: []Party{
			{PartyID: "AT", PartyIDType: "iso3166", Role: "INITIATOR"},
			{PartyID: "DE", PartyIDType: "iso3166", Role: "RESPONDER"},
			{PartyID: "FR", PartyIDType: "iso3166"},
		},
	}
}

func outgoingMessage() *message.Message {
	return &message.Message{
		ConnectorMessageID: "m-1",
		Direction:          message.DirectionBackendToGateway,
		Details: &message.MessageDetails{
			Action:    "Form_A",
			Service:   message.Service{Name: "EPO"},
			FromParty: message.Party{PartyID: "AT"},
			ToParty:   message.Party{PartyID: "DE"},
		},
		Content: &message.Content{BusinessDocumentRef: "doc://1"},
	}
}

func relaxedVerifier(set *Set) *Verifier {
	return NewVerifier(
		&fakeSetRepo{set: set},
		&fakeDomainProvider{outgoing: config.VerificationRelaxed, incoming: config.VerificationRelaxed},
		logger.NopLogger(),
	)
}

func TestVerifyOutgoing_RelaxedCompletesAttributes(t *testing.T) {
	v := relaxedVerifier(configuredSet())
	msg := outgoingMessage()

	require.NoError(t, v.VerifyOutgoing(context.Background(), msg))

	assert.Equal(t, "Form_A", msg.Details.Action)
	assert.Equal(t, "urn:e-codex:services", msg.Details.Service.Type, "service type filled from configuration")
	assert.Equal(t, "iso3166", msg.Details.FromParty.PartyIDType, "blank id-type replaced by the configured one")
	assert.Equal(t, "INITIATOR", msg.Details.FromParty.Role)
	assert.Equal(t, "iso3166", msg.Details.ToParty.PartyIDType)
	assert.Equal(t, "RESPONDER", msg.Details.ToParty.Role)
}

func TestVerifyOutgoing_RoleDefaultsBeforeMatching(t *testing.T) {
	v := relaxedVerifier(configuredSet())
	msg := outgoingMessage()
	// Blank roles default to the exchange convention: the sender initiates.
	require.Empty(t, msg.Details.FromParty.Role)

	require.NoError(t, v.VerifyOutgoing(context.Background(), msg))
	assert.Equal(t, message.RoleInitiator, msg.Details.FromParty.Role)
	assert.Equal(t, message.RoleResponder, msg.Details.ToParty.Role)
}

func TestVerifyOutgoing_RoleKeptWhenConfigBlank(t *testing.T) {
	v := relaxedVerifier(configuredSet())
	msg := outgoingMessage()
	msg.Details.FromParty = message.Party{PartyID: "FR", Role: "INITIATOR"}

	require.NoError(t, v.VerifyOutgoing(context.Background(), msg))
	assert.Equal(t, "INITIATOR", msg.Details.FromParty.Role,
		"a role-less configured party keeps the message role")
}

func TestVerifyOutgoing_UnconfiguredAttributesAreFatal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*message.MessageDetails)
	}{
		{"unknown action", func(d *message.MessageDetails) { d.Action = "Form_X" }},
		{"unknown service", func(d *message.MessageDetails) { d.Service.Name = "UNKNOWN" }},
		{"unknown from party", func(d *message.MessageDetails) { d.FromParty.PartyID = "XX" }},
		{"unknown to party", func(d *message.MessageDetails) { d.ToParty.PartyID = "XX" }},
		{"id type mismatch", func(d *message.MessageDetails) { d.FromParty.PartyIDType = "other-scheme" }},
		{"role mismatch", func(d *message.MessageDetails) { d.FromParty.Role = "RESPONDER" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := relaxedVerifier(configuredSet())
			msg := outgoingMessage()
			tt.mutate(msg.Details)

			err := v.VerifyOutgoing(context.Background(), msg)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsConfiguration(err))
		})
	}
}

func TestVerify_StrictAndCreatePerformNoCompletion(t *testing.T) {
	for _, mode := range []config.VerificationMode{config.VerificationStrict, config.VerificationCreate} {
		t.Run(string(mode), func(t *testing.T) {
			v := NewVerifier(
				&fakeSetRepo{err: pkgerrors.ErrInternal},
				&fakeDomainProvider{outgoing: mode, incoming: mode},
				logger.NopLogger(),
			)
			msg := outgoingMessage()

			require.NoError(t, v.VerifyOutgoing(context.Background(), msg),
				"no pmode set is loaded in %s mode", mode)
			assert.Empty(t, msg.Details.Service.Type, "attributes stay as submitted")
			assert.Equal(t, message.RoleInitiator, msg.Details.FromParty.Role,
				"role defaulting still applies")
		})
	}
}

func TestVerify_UnknownModeIsFatal(t *testing.T) {
	v := NewVerifier(
		&fakeSetRepo{set: configuredSet()},
		&fakeDomainProvider{outgoing: "BOGUS"},
		logger.NopLogger(),
	)

	err := v.VerifyOutgoing(context.Background(), outgoingMessage())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConfiguration(err))
}

func TestVerifyIncoming_UsesIncomingMode(t *testing.T) {
	v := NewVerifier(
		&fakeSetRepo{set: configuredSet()},
		&fakeDomainProvider{outgoing: "BOGUS", incoming: config.VerificationRelaxed},
		logger.NopLogger(),
	)

	msg := outgoingMessage()
	msg.Direction = message.DirectionGatewayToBackend

	require.NoError(t, v.VerifyIncoming(context.Background(), msg))
	assert.Equal(t, "urn:e-codex:services", msg.Details.Service.Type)
}

func TestFindParty(t *testing.T) {
	set := configuredSet()

	_, ok := set.FindParty(message.Party{PartyID: "AT", Role: "INITIATOR"})
	assert.True(t, ok)

	_, ok = set.FindParty(message.Party{PartyID: "AT", PartyIDType: "  ", Role: "INITIATOR"})
	assert.True(t, ok, "whitespace id-type is treated as absent")

	_, ok = set.FindParty(message.Party{PartyID: "AT", PartyIDType: "iso3166", Role: "INITIATOR"})
	assert.True(t, ok)

	_, ok = set.FindParty(message.Party{PartyID: "AT", PartyIDType: "wrong", Role: "INITIATOR"})
	assert.False(t, ok)

	_, ok = set.FindParty(message.Party{PartyID: "FR", Role: "ANY_ROLE"})
	assert.True(t, ok, "a role-less configured party matches any message role")
}
