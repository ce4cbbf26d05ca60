package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/e-CODEX/connector-sub004/internal/message"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
)

// MessageRepository is the persistence contract the pipeline and the
// confirmation state machine depend on. All operations are keyed by connector
// message id.
type MessageRepository interface {
	PersistNewBusinessMessage(ctx context.Context, msg *message.Message) error
	FindByID(ctx context.Context, connectorMessageID string) (*message.Message, error)
	FindByEbmsMessageID(ctx context.Context, domainID, ebmsMessageID string) (*message.Message, error)
	FindByConversationID(ctx context.Context, domainID, conversationID string) ([]*message.Message, error)
	ConfirmMessage(ctx context.Context, connectorMessageID string) error
	RejectMessage(ctx context.Context, connectorMessageID string) error
	CheckMessageRejected(ctx context.Context, connectorMessageID string) (bool, error)
	AddConfirmation(ctx context.Context, connectorMessageID string, confirmation message.Confirmation) error
	ListConfirmations(ctx context.Context, connectorMessageID string) ([]message.Confirmation, error)
}

type PostgresMessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

const messageColumns = `
	connector_message_id, domain_id, direction,
	ebms_message_id, backend_message_id, conversation_id,
	backend_name, gateway_name,
	from_party_id, from_party_id_type, from_party_role,
	to_party_id, to_party_id_type, to_party_role,
	service_name, service_type, action,
	original_sender, final_recipient,
	ref_to_message_id, ref_to_backend_message_id, caused_by,
	business_document_name, business_document_ref,
	created_at, confirmed_at, rejected_at`

func (r *PostgresMessageRepository) PersistNewBusinessMessage(ctx context.Context, msg *message.Message) error {
	if msg.ConnectorMessageID == "" {
		return pkgerrors.ErrValidation.WithMessage("connector message id is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	d := msg.Details
	var content message.Content
	if msg.Content != nil {
		content = *msg.Content
	}

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, NULL, NULL)
	`

	_, err := r.db.ExecContext(ctx, query,
		msg.ConnectorMessageID, msg.DomainOrDefault(), string(msg.Direction),
		d.EbmsMessageID, d.BackendMessageID, d.ConversationID,
		d.BackendName, d.GatewayName,
		d.FromParty.PartyID, d.FromParty.PartyIDType, d.FromParty.Role,
		d.ToParty.PartyID, d.ToParty.PartyIDType, d.ToParty.Role,
		d.Service.Name, d.Service.Type, d.Action,
		d.OriginalSender, d.FinalRecipient,
		d.RefToMessageID, d.RefToBackendMessageID, d.CausedBy,
		content.BusinessDocumentName, content.BusinessDocumentRef,
		msg.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).
				WithMessage(fmt.Sprintf("message %q already persisted", msg.ConnectorMessageID))
		}
		return fmt.Errorf("failed to persist message: %w", err)
	}

	return nil
}

func (r *PostgresMessageRepository) FindByID(ctx context.Context, connectorMessageID string) (*message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE connector_message_id = $1`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, connectorMessageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("message %q not found", connectorMessageID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message: %w", err)
	}

	confirmations, err := r.ListConfirmations(ctx, connectorMessageID)
	if err != nil {
		return nil, err
	}
	msg.Confirmations = confirmations

	return msg, nil
}

// FindByEbmsMessageID resolves a gateway-side reference. Evidence received
// from the gateway names the business message by its ebMS id only.
func (r *PostgresMessageRepository) FindByEbmsMessageID(ctx context.Context, domainID, ebmsMessageID string) (*message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE domain_id = $1 AND ebms_message_id = $2`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, domainID, ebmsMessageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("no message with ebms id %q in domain %q", ebmsMessageID, domainID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by ebms id: %w", err)
	}

	confirmations, err := r.ListConfirmations(ctx, msg.ConnectorMessageID)
	if err != nil {
		return nil, err
	}
	msg.Confirmations = confirmations

	return msg, nil
}

func (r *PostgresMessageRepository) FindByConversationID(ctx context.Context, domainID, conversationID string) ([]*message.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE domain_id = $1 AND conversation_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, domainID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer rows.Close()

	var msgs []*message.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return msgs, nil
}

func (r *PostgresMessageRepository) ConfirmMessage(ctx context.Context, connectorMessageID string) error {
	// Rejection is permanent: a confirmed timestamp is never written once
	// rejected_at is set.
	query := `
		UPDATE messages SET confirmed_at = NOW()
		WHERE connector_message_id = $1 AND confirmed_at IS NULL AND rejected_at IS NULL
	`
	return r.updateTerminalState(ctx, query, connectorMessageID)
}

func (r *PostgresMessageRepository) RejectMessage(ctx context.Context, connectorMessageID string) error {
	query := `
		UPDATE messages SET rejected_at = NOW()
		WHERE connector_message_id = $1 AND rejected_at IS NULL
	`
	return r.updateTerminalState(ctx, query, connectorMessageID)
}

func (r *PostgresMessageRepository) updateTerminalState(ctx context.Context, query, connectorMessageID string) error {
	res, err := r.db.ExecContext(ctx, query, connectorMessageID)
	if err != nil {
		return fmt.Errorf("failed to update message state: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := r.exists(ctx, connectorMessageID)
		if err != nil {
			return err
		}
		if !exists {
			return pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("message %q not found", connectorMessageID))
		}
		// Already in a terminal state; the state machine treats this as settled.
	}
	return nil
}

func (r *PostgresMessageRepository) exists(ctx context.Context, connectorMessageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE connector_message_id = $1)`,
		connectorMessageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresMessageRepository) CheckMessageRejected(ctx context.Context, connectorMessageID string) (bool, error) {
	var rejectedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT rejected_at FROM messages WHERE connector_message_id = $1`,
		connectorMessageID,
	).Scan(&rejectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("message %q not found", connectorMessageID))
	}
	if err != nil {
		return false, fmt.Errorf("failed to check rejection state: %w", err)
	}
	return rejectedAt.Valid, nil
}

func (r *PostgresMessageRepository) AddConfirmation(ctx context.Context, connectorMessageID string, confirmation message.Confirmation) error {
	if !confirmation.Type.Valid() {
		return pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid evidence type %q", confirmation.Type))
	}
	if len(confirmation.Evidence) == 0 {
		return pkgerrors.ErrValidation.WithMessage("evidence payload is required")
	}

	query := `
		INSERT INTO message_confirmations (connector_message_id, evidence_type, evidence, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	_, err := r.db.ExecContext(ctx, query, connectorMessageID, string(confirmation.Type), confirmation.Evidence)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				return pkgerrors.ErrConflict.WithCause(err).
					WithMessage(fmt.Sprintf("evidence %s already recorded for message %q", confirmation.Type, connectorMessageID))
			case "23503":
				return pkgerrors.ErrNotFound.WithCause(err).
					WithMessage(fmt.Sprintf("message %q not found", connectorMessageID))
			}
		}
		return fmt.Errorf("failed to add confirmation: %w", err)
	}

	return nil
}

func (r *PostgresMessageRepository) ListConfirmations(ctx context.Context, connectorMessageID string) ([]message.Confirmation, error) {
	query := `
		SELECT evidence_type, evidence
		FROM message_confirmations
		WHERE connector_message_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, connectorMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmations: %w", err)
	}
	defer rows.Close()

	var confirmations []message.Confirmation
	for rows.Next() {
		var c message.Confirmation
		var evidenceType string
		if err := rows.Scan(&evidenceType, &c.Evidence); err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		c.Type = message.EvidenceType(evidenceType)
		confirmations = append(confirmations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return confirmations, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*message.Message, error) {
	var (
		msg       message.Message
		details   message.MessageDetails
		content   message.Content
		direction string
		confirmed sql.NullTime
		rejected  sql.NullTime
	)

	err := row.Scan(
		&msg.ConnectorMessageID, &msg.DomainID, &direction,
		&details.EbmsMessageID, &details.BackendMessageID, &details.ConversationID,
		&details.BackendName, &details.GatewayName,
		&details.FromParty.PartyID, &details.FromParty.PartyIDType, &details.FromParty.Role,
		&details.ToParty.PartyID, &details.ToParty.PartyIDType, &details.ToParty.Role,
		&details.Service.Name, &details.Service.Type, &details.Action,
		&details.OriginalSender, &details.FinalRecipient,
		&details.RefToMessageID, &details.RefToBackendMessageID, &details.CausedBy,
		&content.BusinessDocumentName, &content.BusinessDocumentRef,
		&msg.CreatedAt, &confirmed, &rejected,
	)
	if err != nil {
		return nil, err
	}

	msg.Direction = message.Direction(direction)
	msg.Details = &details
	if content.BusinessDocumentRef != "" || content.BusinessDocumentName != "" {
		msg.Content = &content
	}
	if confirmed.Valid {
		msg.ConfirmedAt = &confirmed.Time
	}
	if rejected.Valid {
		msg.RejectedAt = &rejected.Time
	}

	return &msg, nil
}
