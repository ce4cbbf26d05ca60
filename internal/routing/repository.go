package routing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

type Repository interface {
	GetActiveRules(ctx context.Context, domainID string) ([]Rule, error)
	ListRules(ctx context.Context, domainID string) ([]Rule, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	CreateRule(ctx context.Context, rule *Rule) error
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, id string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const ruleColumns = `id, domain_id, name, expression, priority, backend_name, enabled, created_at, updated_at`

func (r *PostgresRepository) GetActiveRules(ctx context.Context, domainID string) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM routing_rules
		WHERE domain_id = $1 AND enabled = true
		ORDER BY priority DESC, created_at ASC
	`
	return r.queryRules(ctx, query, domainID)
}

func (r *PostgresRepository) ListRules(ctx context.Context, domainID string) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM routing_rules
		WHERE domain_id = $1
		ORDER BY priority DESC, created_at ASC
	`
	return r.queryRules(ctx, query, domainID)
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := scanRule(rows, &rule); err != nil {
			return nil, fmt.Errorf("failed to scan routing rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rules, nil
}

func (r *PostgresRepository) GetRule(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM routing_rules WHERE id = $1`

	var rule Rule
	err := scanRule(r.db.QueryRowContext(ctx, query, id), &rule)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("routing rule %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get routing rule: %w", err)
	}

	return &rule, nil
}

func (r *PostgresRepository) CreateRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO routing_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.DomainID, rule.Name, rule.Expression,
		rule.Priority, rule.BackendName, rule.Enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).
				WithMessage(fmt.Sprintf("routing rule %q already exists in domain %q", rule.Name, rule.DomainID))
		}
		return fmt.Errorf("failed to create routing rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) UpdateRule(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	query := `
		UPDATE routing_rules
		SET name = $1, expression = $2, priority = $3, backend_name = $4, enabled = $5, updated_at = $6
		WHERE id = $7
	`

	res, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.Expression, rule.Priority,
		rule.BackendName, rule.Enabled, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update routing rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("routing rule %q not found", rule.ID))
	}

	return nil
}

func (r *PostgresRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete routing rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("routing rule %q not found", id))
	}

	return nil
}

func scanRule(row interface{ Scan(...interface{}) error }, rule *Rule) error {
	return row.Scan(
		&rule.ID, &rule.DomainID, &rule.Name, &rule.Expression,
		&rule.Priority, &rule.BackendName, &rule.Enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
}
