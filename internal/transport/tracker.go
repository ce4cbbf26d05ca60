package transport

import (
	"context"
	"fmt"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
)

// Tracker records delivery attempts and their status progression per link
// partner.
type Tracker struct {
	repo   Repository
	logger logger.Logger
}

func NewTracker(repo Repository, log logger.Logger) *Tracker {
	return &Tracker{repo: repo, logger: log}
}

// BeginAttempt opens the next numbered delivery attempt of the message on the
// partner and marks it PENDING.
func (t *Tracker) BeginAttempt(ctx context.Context, connectorMessageID, partnerName, transportID string) (*Step, error) {
	step := &Step{
		ConnectorMessageID: connectorMessageID,
		LinkPartnerName:    partnerName,
		TransportID:        transportID,
	}

	if err := t.repo.RecordAttempt(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to record transport attempt: %w", err)
	}

	if err := t.repo.AppendStatus(ctx, step.ID, StatusUpdate{Status: StatusPending}); err != nil {
		return nil, err
	}

	t.logger.DebugwCtx(ctx, "Transport attempt opened",
		"connector_message_id", connectorMessageID,
		"link_partner", partnerName,
		"attempt", step.Attempt,
	)
	metrics.IncTransportAttempt(partnerName)

	return step, nil
}

// ObserveStatus appends a status to an open attempt. A repeated status is
// settled silently; the first recorded timestamp stands.
func (t *Tracker) ObserveStatus(ctx context.Context, step *Step, status StepStatus, text string) error {
	err := t.repo.AppendStatus(ctx, step.ID, StatusUpdate{Status: status, Text: text})
	if err != nil {
		if pkgerrors.IsConflict(err) {
			return nil
		}
		return err
	}

	t.logger.DebugwCtx(ctx, "Transport status recorded",
		"connector_message_id", step.ConnectorMessageID,
		"link_partner", step.LinkPartnerName,
		"attempt", step.Attempt,
		"status", string(status),
	)
	metrics.IncTransportStatusUpdate(step.LinkPartnerName, string(status))

	return nil
}

// AssignMessageIDs records the transport system's and the remote end's message
// ids on the attempt once they become known. Either id may be empty; an empty
// id never overwrites a stored one.
func (t *Tracker) AssignMessageIDs(ctx context.Context, step *Step, transportSystemMessageID, remoteMessageID string) error {
	if err := t.repo.AssignMessageIDs(ctx, step.ID, transportSystemMessageID, remoteMessageID); err != nil {
		return err
	}

	if transportSystemMessageID != "" {
		step.TransportSystemMessageID = transportSystemMessageID
	}
	if remoteMessageID != "" {
		step.RemoteMessageID = remoteMessageID
	}

	t.logger.DebugwCtx(ctx, "Transport message ids assigned",
		"connector_message_id", step.ConnectorMessageID,
		"link_partner", step.LinkPartnerName,
		"attempt", step.Attempt,
		"transport_system_message_id", step.TransportSystemMessageID,
		"remote_message_id", step.RemoteMessageID,
	)

	return nil
}

// FindLastAttempts lists the newest attempt per message on each partner in the
// set whose current status matches the filter. An empty status or partner set
// matches nothing, never everything.
func (t *Tracker) FindLastAttempts(ctx context.Context, statuses []StepStatus, partnerNames []string, limit, offset int) ([]Step, error) {
	if len(statuses) == 0 || len(partnerNames) == 0 {
		return []Step{}, nil
	}
	for _, s := range statuses {
		if !s.Valid() {
			return nil, pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid transport status %q", s))
		}
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return t.repo.FindLastAttemptsByStatusAndPartners(ctx, statuses, partnerNames, limit, offset)
}
