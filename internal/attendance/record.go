package attendance

import (
	"errors"
	"time"
)

// Statuses assigned to attendance records. Absent is never written by the
// engine; it only appears in roster rollups for students with no record.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
)

// SystemRecorder is stored when a scan arrives without an operator id.
const SystemRecorder = "system"

// Record is one subject's attendance for one local calendar day. The subject
// name and role are captured at check-in time and never re-joined.
type Record struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	UserName     string     `json:"user_name"`
	UserRole     string     `json:"user_role"`
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	Date         string     `json:"date"` // YYYY-MM-DD in the school's zone
	Status       string     `json:"status"`
	RecordedBy   string     `json:"recorded_by"`
}

// AuditEntry is an append-only diagnostic trail record.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	TargetUser string    `json:"target_user,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Typed scan failures. The scanning terminal maps each to a distinct message
// so front-line staff can act differently on each.
var (
	ErrMalformedCode    = errors.New("scan code malformed")
	ErrSubjectNotFound  = errors.New("badge unregistered")
	ErrAlreadyCompleted = errors.New("already completed today")

	// ErrDuplicateRecord is returned by the store when an insert loses the
	// race on the (user, date) uniqueness constraint.
	ErrDuplicateRecord = errors.New("attendance record already exists")
)
