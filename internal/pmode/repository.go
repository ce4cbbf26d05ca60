package pmode

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository interface {
	GetSet(ctx context.Context, domainID string) (*Set, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

// GetSet loads all processing-mode entries of a domain. Entries share one
// table with a kind discriminator; unused columns are empty.
func (r *PostgresRepository) GetSet(ctx context.Context, domainID string) (*Set, error) {
	query := `
		SELECT kind, name, service_type, party_id, party_id_type, party_role
		FROM pmode_entries
		WHERE domain_id = $1
		ORDER BY kind, name, party_id
	`

	rows, err := r.db.QueryContext(ctx, query, domainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pmode entries: %w", err)
	}
	defer rows.Close()

	set := &Set{DomainID: domainID}
	for rows.Next() {
		var kind, name, serviceType, partyID, partyIDType, partyRole string
		if err := rows.Scan(&kind, &name, &serviceType, &partyID, &partyIDType, &partyRole); err != nil {
			return nil, fmt.Errorf("failed to scan pmode entry: %w", err)
		}

		switch kind {
		case "action":
			set.Actions = append(set.Actions, Action{Name: name})
		case "service":
			set.Services = append(set.Services, Service{Name: name, Type: serviceType})
		case "party":
			set.Parties = append(set.Parties, Party{
				PartyID:     partyID,
				PartyIDType: partyIDType,
				Role:        partyRole,
			})
		default:
			return nil, fmt.Errorf("unknown pmode entry kind %q in domain %q", kind, domainID)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return set, nil
}
