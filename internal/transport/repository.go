package transport

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

type Repository interface {
	RecordAttempt(ctx context.Context, step *Step) error
	AppendStatus(ctx context.Context, stepID int64, update StatusUpdate) error
	AssignMessageIDs(ctx context.Context, stepID int64, transportSystemMessageID, remoteMessageID string) error
	FindStep(ctx context.Context, connectorMessageID, partnerName string, attempt int) (*Step, error)
	FindLastAttemptsByStatusAndPartners(ctx context.Context, statuses []StepStatus, partnerNames []string, limit, offset int) ([]Step, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

// RecordAttempt inserts the next attempt for the (message, partner) pair. A
// transaction-scoped advisory lock on the pair serializes concurrent writers,
// so attempt numbers are gapless and strictly increasing.
func (r *PostgresRepository) RecordAttempt(ctx context.Context, step *Step) error {
	if step.ConnectorMessageID == "" || step.LinkPartnerName == "" {
		return pkgerrors.ErrValidation.WithMessage("transport step requires message id and partner name")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`,
		step.ConnectorMessageID, step.LinkPartnerName,
	)
	if err != nil {
		return fmt.Errorf("failed to acquire attempt lock: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(attempt), 0) + 1
		FROM transport_steps
		WHERE connector_message_id = $1 AND link_partner_name = $2
	`, step.ConnectorMessageID, step.LinkPartnerName).Scan(&step.Attempt)
	if err != nil {
		return fmt.Errorf("failed to compute next attempt: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO transport_steps (connector_message_id, link_partner_name, attempt, transport_id,
			transport_system_message_id, remote_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`, step.ConnectorMessageID, step.LinkPartnerName, step.Attempt, step.TransportID,
		step.TransportSystemMessageID, step.RemoteMessageID).
		Scan(&step.ID, &step.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transport step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transport step: %w", err)
	}

	return nil
}

// AppendStatus records when the attempt entered a status. The (step, status)
// pair is unique; a second write of the same status keeps the first
// timestamp. A terminal status stamps final_state_at on the step, once.
func (r *PostgresRepository) AppendStatus(ctx context.Context, stepID int64, update StatusUpdate) error {
	if !update.Status.Valid() {
		return pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid transport status %q", update.Status))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transport_step_status (transport_step_id, status, text, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (transport_step_id, status) DO NOTHING
	`, stepID, string(update.Status), update.Text)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return pkgerrors.ErrNotFound.WithCause(err).
				WithMessage(fmt.Sprintf("transport step %d not found", stepID))
		}
		return fmt.Errorf("failed to append transport status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrConflict.
			WithMessage(fmt.Sprintf("status %s already recorded for transport step %d", update.Status, stepID))
	}

	if update.Status.Terminal() {
		_, err = tx.ExecContext(ctx, `
			UPDATE transport_steps
			SET final_state_at = NOW()
			WHERE id = $1 AND final_state_at IS NULL
		`, stepID)
		if err != nil {
			return fmt.Errorf("failed to stamp final state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transport status: %w", err)
	}

	return nil
}

// AssignMessageIDs stores the ids the transport system and the remote end
// assigned to an open attempt. Empty arguments leave the stored value alone.
func (r *PostgresRepository) AssignMessageIDs(ctx context.Context, stepID int64, transportSystemMessageID, remoteMessageID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transport_steps
		SET transport_system_message_id = COALESCE(NULLIF($2, ''), transport_system_message_id),
		    remote_message_id           = COALESCE(NULLIF($3, ''), remote_message_id)
		WHERE id = $1
	`, stepID, transportSystemMessageID, remoteMessageID)
	if err != nil {
		return fmt.Errorf("failed to assign transport message ids: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("transport step %d not found", stepID))
	}

	return nil
}

func (r *PostgresRepository) FindStep(ctx context.Context, connectorMessageID, partnerName string, attempt int) (*Step, error) {
	var step Step
	var finalStateAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, connector_message_id, link_partner_name, attempt, transport_id,
			transport_system_message_id, remote_message_id, created_at, final_state_at
		FROM transport_steps
		WHERE connector_message_id = $1 AND link_partner_name = $2 AND attempt = $3
	`, connectorMessageID, partnerName, attempt).Scan(
		&step.ID, &step.ConnectorMessageID, &step.LinkPartnerName,
		&step.Attempt, &step.TransportID,
		&step.TransportSystemMessageID, &step.RemoteMessageID,
		&step.CreatedAt, &finalStateAt,
	)
	if err == sql.ErrNoRows {
		return nil, pkgerrors.ErrNotFound.
			WithMessage(fmt.Sprintf("no transport step for message %q partner %q attempt %d", connectorMessageID, partnerName, attempt))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transport step: %w", err)
	}
	if finalStateAt.Valid {
		step.FinalStateAt = &finalStateAt.Time
	}

	if err := r.loadStatusUpdates(ctx, &step); err != nil {
		return nil, err
	}

	return &step, nil
}

// FindLastAttemptsByStatusAndPartners returns, per message and partner in the
// set, the newest attempt whose latest status is one of the given statuses.
// Callers must pass non-empty status and partner sets.
func (r *PostgresRepository) FindLastAttemptsByStatusAndPartners(ctx context.Context, statuses []StepStatus, partnerNames []string, limit, offset int) ([]Step, error) {
	statusNames := make([]string, len(statuses))
	for i, s := range statuses {
		statusNames[i] = string(s)
	}

	// last_attempts picks the newest attempt per (message, partner) pair,
	// current_status its most recent status row (PENDING when no status was
	// recorded yet).
	query := `
		WITH last_attempts AS (
			SELECT DISTINCT ON (connector_message_id, link_partner_name)
				id, connector_message_id, link_partner_name, attempt, transport_id,
				transport_system_message_id, remote_message_id, created_at, final_state_at
			FROM transport_steps
			WHERE link_partner_name = ANY($1)
			ORDER BY connector_message_id, link_partner_name, attempt DESC
		),
		current_status AS (
			SELECT DISTINCT ON (transport_step_id)
				transport_step_id, status
			FROM transport_step_status
			ORDER BY transport_step_id, created_at DESC
		)
		SELECT la.id, la.connector_message_id, la.link_partner_name, la.attempt, la.transport_id,
			la.transport_system_message_id, la.remote_message_id, la.created_at, la.final_state_at
		FROM last_attempts la
		LEFT JOIN current_status cs ON cs.transport_step_id = la.id
		WHERE COALESCE(cs.status, 'PENDING') = ANY($2)
		ORDER BY la.created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(partnerNames), pq.Array(statusNames), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transport steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var step Step
		var finalStateAt sql.NullTime
		if err := rows.Scan(
			&step.ID, &step.ConnectorMessageID, &step.LinkPartnerName,
			&step.Attempt, &step.TransportID,
			&step.TransportSystemMessageID, &step.RemoteMessageID,
			&step.CreatedAt, &finalStateAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transport step: %w", err)
		}
		if finalStateAt.Valid {
			step.FinalStateAt = &finalStateAt.Time
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	for i := range steps {
		if err := r.loadStatusUpdates(ctx, &steps[i]); err != nil {
			return nil, err
		}
	}

	return steps, nil
}

func (r *PostgresRepository) loadStatusUpdates(ctx context.Context, step *Step) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, text, created_at
		FROM transport_step_status
		WHERE transport_step_id = $1
		ORDER BY created_at ASC
	`, step.ID)
	if err != nil {
		return fmt.Errorf("failed to query status updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u StatusUpdate
		var status string
		if err := rows.Scan(&status, &u.Text, &u.At); err != nil {
			return fmt.Errorf("failed to scan status update: %w", err)
		}
		u.Status = StepStatus(status)
		step.StatusUpdates = append(step.StatusUpdates, u)
	}

	return rows.Err()
}
