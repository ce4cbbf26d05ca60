package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-CODEX/connector-sub004/internal/pmode"
)

func seedPModeEntries(t *testing.T, infra *TestInfra) {
	t.Helper()

	entries := []struct {
		domainID, kind, name, serviceType, partyID, partyIDType, partyRole string
	}{
		{"default", "action", "Form_A", "", "", "", ""},
		{"default", "action", "Form_B", "", "", "", ""},
		{"default", "service", "EPO", "urn:e-codex:services", "", "", ""},
		{"default", "party", "", "", "AT", "iso3166", "INITIATOR"},
		{"default", "party", "", "", "DE", "iso3166", "RESPONDER"},
		{"other", "action", "Form_C", "", "", "", ""},
	}

	for _, e := range entries {
		_, err := infra.PostgresDB.Exec(`
			INSERT INTO pmode_entries (domain_id, kind, name, service_type, party_id, party_id_type, party_role)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.domainID, e.kind, e.name, e.serviceType, e.partyID, e.partyIDType, e.partyRole)
		require.NoError(t, err)
	}
}

func TestPModeRepository_GetSet(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	seedPModeEntries(t, infra)

	repo := pmode.NewRepository(infra.PostgresDB)

	set, err := repo.GetSet(context.Background(), "default")
	require.NoError(t, err)

	assert.Len(t, set.Actions, 2)
	assert.Len(t, set.Services, 1)
	assert.Len(t, set.Parties, 2)

	action, ok := set.FindAction("Form_A")
	require.True(t, ok)
	assert.Equal(t, "Form_A", action.Name)

	_, ok = set.FindAction("Form_C")
	assert.False(t, ok, "entries of other domains stay invisible")

	service, ok := set.FindService("EPO")
	require.True(t, ok)
	assert.Equal(t, "urn:e-codex:services", service.Type)
}

func TestPModeRepository_GetSet_EmptyDomain(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := pmode.NewRepository(infra.PostgresDB)

	set, err := repo.GetSet(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, set.Actions)
	assert.Empty(t, set.Services)
	assert.Empty(t, set.Parties)
}
