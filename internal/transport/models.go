package transport

import "time"

// StepStatus names the transport states a step moves through on a link
// partner.
type StepStatus string

const (
	StatusPending  StepStatus = "PENDING"
	StatusAccepted StepStatus = "ACCEPTED"
	StatusFailed   StepStatus = "FAILED"
)

func (s StepStatus) Valid() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusFailed
}

// Terminal reports whether no further status can follow on this attempt.
func (s StepStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusFailed
}

// Step is one delivery attempt of a message on one link partner. Attempts per
// (message, partner) pair are numbered from 1 and strictly increasing.
//
// TransportSystemMessageID is the id the carrying transport system assigned to
// the attempt, RemoteMessageID the id the remote end acknowledged it under.
// Both arrive after the attempt opens. FinalStateAt is stamped once, when the
// attempt first reaches a terminal status.
type Step struct {
	ID                       int64          `json:"id"`
	ConnectorMessageID       string         `json:"connector_message_id"`
	LinkPartnerName          string         `json:"link_partner_name"`
	Attempt                  int            `json:"attempt"`
	TransportID              string         `json:"transport_id,omitempty"`
	TransportSystemMessageID string         `json:"transport_system_message_id,omitempty"`
	RemoteMessageID          string         `json:"remote_message_id,omitempty"`
	CreatedAt                time.Time      `json:"created_at"`
	FinalStateAt             *time.Time     `json:"final_state_at,omitempty"`
	StatusUpdates            []StatusUpdate `json:"status_updates,omitempty"`
}

// StatusUpdate records when an attempt entered a status. Each status appears
// at most once per attempt; the first write wins.
type StatusUpdate struct {
	Status StepStatus `json:"status"`
	Text   string     `json:"text,omitempty"`
	At     time.Time  `json:"at"`
}

// LastStatus returns the most recent status of the attempt, or StatusPending
// when none was recorded yet.
func (s *Step) LastStatus() StepStatus {
	if len(s.StatusUpdates) == 0 {
		return StatusPending
	}
	latest := s.StatusUpdates[0]
	for _, u := range s.StatusUpdates[1:] {
		if u.At.After(latest.At) {
			latest = u
		}
	}
	return latest.Status
}
