package models

import "time"

// NotificationKind tags the semantic trigger of a notification.
type NotificationKind string

const (
	KindNewEvent           NotificationKind = "new_event"
	KindForecastChange     NotificationKind = "forecast_change"
	KindActualAnnouncement NotificationKind = "actual_announcement"
	KindAIReport           NotificationKind = "ai_report"
)

// NotificationKinds lists every known kind in a stable order.
var NotificationKinds = []NotificationKind{
	KindNewEvent,
	KindForecastChange,
	KindActualAnnouncement,
	KindAIReport,
}

// Valid reports whether k is a known notification kind.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindNewEvent, KindForecastChange, KindActualAnnouncement, KindAIReport:
		return true
	}
	return false
}

// DecisionReason explains a gate outcome.
type DecisionReason string

const (
	ReasonRuleRejected   DecisionReason = "rule_rejected"
	ReasonCooldownActive DecisionReason = "cooldown_active"
	ReasonApproved       DecisionReason = "approved"
)

// NotificationDecision is the gate verdict for one (event, kind) pair.
// When Allowed is true the dispatcher owns the send and must report back.
type NotificationDecision struct {
	ID        string           `json:"id"`
	EventID   string           `json:"event_id"`
	Kind      NotificationKind `json:"notification_kind"`
	Allowed   bool             `json:"allowed"`
	Reason    DecisionReason   `json:"reason"`
	Detail    string           `json:"detail,omitempty"`
	DecidedAt time.Time        `json:"decided_at"`
}

// CooldownKey identifies one ledger entry.
type CooldownKey struct {
	EventID string
	Kind    NotificationKind
}

func (k CooldownKey) String() string {
	return k.EventID + ":" + string(k.Kind)
}

// CooldownEntry is the ledger state for one key. ReservedUntil is non-zero
// while an approved send is in flight and not yet committed or released.
// ReservedBy is the decision ID that holds that reservation.
type CooldownEntry struct {
	Key           CooldownKey `json:"-"`
	LastSentAt    time.Time   `json:"last_sent_at"`
	SendCount     int         `json:"send_count"`
	ReservedUntil time.Time   `json:"reserved_until"`
	ReservedBy    string      `json:"reserved_by,omitempty"`
}
