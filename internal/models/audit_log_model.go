package models

import "time"

// Audit actions.
const (
	AuditSOSBroadcast       = "SOS_BROADCAST"
	AuditGroupDelete        = "GROUP_DELETE"
	AuditGroupCascadeDelete = "GROUP_CASCADE_DELETE"
	AuditContactRemove      = "CONTACT_REMOVE"
)

// AuditLog represents an audit trail event.
type AuditLog struct {
	ID         string                 `json:"id" firestore:"-"`
	Timestamp  time.Time              `json:"timestamp" firestore:"timestamp,serverTimestamp"`
	UserID     string                 `json:"userId" firestore:"userId"` // Who performed the action
	Action     string                 `json:"action" firestore:"action"`
	TargetType string                 `json:"targetType,omitempty" firestore:"targetType,omitempty"` // e.g. "USER", "GROUP"
	TargetID   string                 `json:"targetId,omitempty" firestore:"targetId,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" firestore:"details,omitempty"`
}
