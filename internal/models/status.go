package models

// Status is the canonical verification status vocabulary. Provider
// decisions are mapped into it at the webhook boundary so the rest of
// the app never sees a raw Veriff or Stripe string.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusDeclined   Status = "declined"
	StatusResubmit   Status = "resubmit"
	StatusExpired    Status = "expired"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further provider-driven transition can
// occur from s. A resubmission request is not terminal: the customer can
// retry the session and a new decision will arrive for it.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusExpired, StatusAbandoned:
		return true
	}
	return false
}

// StatusFromVeriffDecision maps a Veriff decision webhook vocabulary
// ("approved", "declined", "resubmission_request", "expired",
// "abandoned") to the canonical status.
func StatusFromVeriffDecision(decision string) (Status, bool) {
	switch decision {
	case "approved":
		return StatusApproved, true
	case "declined":
		return StatusDeclined, true
	case "resubmission_request":
		return StatusResubmit, true
	case "expired":
		return StatusExpired, true
	case "abandoned":
		return StatusAbandoned, true
	}
	return "", false
}

// StatusFromStripeEvent maps a Stripe Identity event type to the
// canonical status. Only the two session-outcome events carry a status;
// every other event type is acknowledged without mutation.
func StatusFromStripeEvent(eventType string) (Status, bool) {
	switch eventType {
	case "identity.verification_session.verified":
		return StatusApproved, true
	case "identity.verification_session.requires_input":
		return StatusPending, true
	}
	return "", false
}
