package message

import "fmt"

// EvidenceType enumerates the ETSI-REM evidence kinds the connector handles.
type EvidenceType string

const (
	EvidenceSubmissionAcceptance EvidenceType = "SUBMISSION_ACCEPTANCE"
	EvidenceSubmissionRejection  EvidenceType = "SUBMISSION_REJECTION"
	EvidenceRelayREMMDAcceptance EvidenceType = "RELAY_REMMD_ACCEPTANCE"
	EvidenceRelayREMMDRejection  EvidenceType = "RELAY_REMMD_REJECTION"
	EvidenceRelayREMMDFailure    EvidenceType = "RELAY_REMMD_FAILURE"
	EvidenceNonDelivery          EvidenceType = "NON_DELIVERY"
	EvidenceDelivery             EvidenceType = "DELIVERY"
	EvidenceNonRetrieval         EvidenceType = "NON_RETRIEVAL"
	EvidenceRetrieval            EvidenceType = "RETRIEVAL"
)

// EvidenceTypes lists all known types in ascending priority order.
var EvidenceTypes = []EvidenceType{
	EvidenceSubmissionAcceptance,
	EvidenceSubmissionRejection,
	EvidenceRelayREMMDAcceptance,
	EvidenceRelayREMMDRejection,
	EvidenceRelayREMMDFailure,
	EvidenceNonDelivery,
	EvidenceDelivery,
	EvidenceNonRetrieval,
	EvidenceRetrieval,
}

var evidencePriorities = map[EvidenceType]int{
	EvidenceSubmissionAcceptance: 1,
	EvidenceSubmissionRejection:  2,
	EvidenceRelayREMMDAcceptance: 3,
	EvidenceRelayREMMDRejection:  4,
	EvidenceRelayREMMDFailure:    4,
	EvidenceNonDelivery:          5,
	EvidenceDelivery:             8,
	EvidenceNonRetrieval:         9,
	EvidenceRetrieval:            10,
}

var evidenceActions = map[EvidenceType]string{
	EvidenceSubmissionAcceptance: "SubmissionAcceptanceRejection",
	EvidenceSubmissionRejection:  "SubmissionAcceptanceRejection",
	EvidenceRelayREMMDAcceptance: "RelayREMMDAcceptanceRejection",
	EvidenceRelayREMMDRejection:  "RelayREMMDAcceptanceRejection",
	EvidenceRelayREMMDFailure:    "RelayREMMDFailure",
	EvidenceNonDelivery:          "DeliveryNonDeliveryToRecipient",
	EvidenceDelivery:             "DeliveryNonDeliveryToRecipient",
	EvidenceNonRetrieval:         "RetrievalNonRetrievalToRecipient",
	EvidenceRetrieval:            "RetrievalNonRetrievalToRecipient",
}

func (t EvidenceType) Valid() bool {
	_, ok := evidencePriorities[t]
	return ok
}

// Priority orders concurrent evidence arrivals; higher values supersede lower
// ones in the confirmation state machine.
func (t EvidenceType) Priority() int {
	return evidencePriorities[t]
}

// IsNegative reports whether the evidence rejects the business message.
func (t EvidenceType) IsNegative() bool {
	switch t {
	case EvidenceSubmissionRejection,
		EvidenceRelayREMMDRejection,
		EvidenceRelayREMMDFailure,
		EvidenceNonDelivery,
		EvidenceNonRetrieval:
		return true
	}
	return false
}

// IsConfirming reports whether the evidence may confirm the business message.
// Acceptance evidences are positive but never change message state.
func (t EvidenceType) IsConfirming() bool {
	return t == EvidenceDelivery || t == EvidenceRetrieval
}

// Action returns the ebMS action used when the evidence travels as its own
// connector message.
func (t EvidenceType) Action() string {
	return evidenceActions[t]
}

func ParseEvidenceType(s string) (EvidenceType, error) {
	t := EvidenceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown evidence type: %q", s)
	}
	return t, nil
}
