package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"schoolgate/internal/identity"
	"schoolgate/internal/notify"
	"schoolgate/internal/queue"
)

// minCodeLen guards against partial or garbled reads from scanner hardware.
const minCodeLen = 5

// publishWait caps how long a scan waits on notification enqueue.
const publishWait = time.Second

// Store is the attendance persistence the engine depends on.
type Store interface {
	FindByUserAndDate(ctx context.Context, userID, date string) (*Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	SetCheckout(ctx context.Context, id string, t time.Time) (bool, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Directory resolves scanned codes to users and students to guardians.
type Directory interface {
	FindUserByID(ctx context.Context, id string) (*identity.User, error)
	FindUserByStudentCode(ctx context.Context, code string) (*identity.User, error)
	FindParentLinksByStudent(ctx context.Context, studentID string) ([]identity.ParentLink, error)
}

// Publisher accepts notification messages for asynchronous dispatch.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Resolution tags which lookup matched a scanned code.
type Resolution int

const (
	ResolvedNone Resolution = iota
	ResolvedByID
	ResolvedByCode
)

// Engine decides whether a scan is a check-in or a check-out and persists
// exactly one transition per scan.
type Engine struct {
	store      Store
	dir        Directory
	q          Publisher
	loc        *time.Location
	cutoffHour int
}

// NewEngine wires the engine. loc is the institution's fixed-offset zone;
// scans at or after cutoffHour local time are classified late.
func NewEngine(store Store, dir Directory, q Publisher, loc *time.Location, cutoffHour int) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if cutoffHour <= 0 {
		cutoffHour = 8
	}
	return &Engine{store: store, dir: dir, q: q, loc: loc, cutoffHour: cutoffHour}
}

// LocalDay converts an instant into the institution's calendar date key.
func (e *Engine) LocalDay(t time.Time) string {
	return t.In(e.loc).Format("2006-01-02")
}

// Resolve maps a scanned code to a user. Badges may carry either the primary
// id or the printed student code depending on card generation, so both are
// tried, primary id first.
func (e *Engine) Resolve(ctx context.Context, code string) (*identity.User, Resolution, error) {
	user, err := e.dir.FindUserByID(ctx, code)
	if err != nil {
		return nil, ResolvedNone, err
	}
	if user != nil {
		return user, ResolvedByID, nil
	}
	user, err = e.dir.FindUserByStudentCode(ctx, code)
	if err != nil {
		return nil, ResolvedNone, err
	}
	if user != nil {
		return user, ResolvedByCode, nil
	}
	return nil, ResolvedNone, nil
}

// RecordScan handles one badge scan at the given instant.
//
// No record for the subject's local day means check-in; an open record means
// check-out; a completed record is rejected. At most one record ever exists
// per (subject, day): the store insert is atomic and a lost race is retried
// as a check-out attempt.
func (e *Engine) RecordScan(ctx context.Context, code, recordedBy string, now time.Time) (Record, error) {
	code = strings.TrimSpace(code)
	if len(code) < minCodeLen {
		return Record{}, ErrMalformedCode
	}

	user, _, err := e.Resolve(ctx, code)
	if err != nil {
		log.Printf("attendance: resolve %q failed: %v", code, err)
		return Record{}, fmt.Errorf("resolve subject: %w", err)
	}
	if user == nil {
		e.audit(ctx, AuditEntry{Action: "scan_failed", Detail: "unresolved code " + code})
		return Record{}, ErrSubjectNotFound
	}

	today := e.LocalDay(now)
	existing, err := e.store.FindByUserAndDate(ctx, user.ID, today)
	if err != nil {
		log.Printf("attendance: lookup user=%s date=%s failed: %v", user.ID, today, err)
		return Record{}, fmt.Errorf("lookup record: %w", err)
	}

	if existing == nil {
		if recordedBy == "" {
			recordedBy = SystemRecorder
		}
		rec := Record{
			UserID:      user.ID,
			UserName:    user.FullName,
			UserRole:    user.Role,
			CheckInTime: now,
			Date:        today,
			Status:      e.classify(now),
			RecordedBy:  recordedBy,
		}
		inserted, err := e.store.Insert(ctx, rec)
		switch {
		case err == nil:
			e.audit(ctx, AuditEntry{Action: "check_in", TargetUser: user.ID, Detail: inserted.Status})
			if user.Role == identity.RoleStudent {
				e.notifyGuardians(ctx, *user, now)
			}
			return inserted, nil
		case errors.Is(err, ErrDuplicateRecord):
			// Lost the insert race; the concurrent scan checked in first, so
			// this scan becomes the check-out attempt.
			existing, err = e.store.FindByUserAndDate(ctx, user.ID, today)
			if err != nil || existing == nil {
				log.Printf("attendance: re-read after conflict user=%s date=%s failed: %v", user.ID, today, err)
				return Record{}, fmt.Errorf("re-read record: %w", err)
			}
		default:
			log.Printf("attendance: insert user=%s date=%s failed: %v", user.ID, today, err)
			return Record{}, fmt.Errorf("insert record: %w", err)
		}
	}

	if existing.CheckOutTime != nil {
		return Record{}, ErrAlreadyCompleted
	}

	ok, err := e.store.SetCheckout(ctx, existing.ID, now)
	if err != nil {
		log.Printf("attendance: checkout id=%s failed: %v", existing.ID, err)
		return Record{}, fmt.Errorf("set checkout: %w", err)
	}
	if !ok {
		// A concurrent scan wrote the checkout first.
		return Record{}, ErrAlreadyCompleted
	}
	e.audit(ctx, AuditEntry{Action: "check_out", TargetUser: user.ID})
	checkout := now
	existing.CheckOutTime = &checkout
	return *existing, nil
}

// classify decides the status once, at check-in. The boundary is inclusive:
// exactly the cutoff hour is late.
func (e *Engine) classify(now time.Time) string {
	if now.In(e.loc).Hour() >= e.cutoffHour {
		return StatusLate
	}
	return StatusPresent
}

// notifyGuardians enqueues an entry notification for every linked guardian.
// Failures are logged, never surfaced: the check-in already happened.
func (e *Engine) notifyGuardians(ctx context.Context, student identity.User, at time.Time) {
	links, err := e.dir.FindParentLinksByStudent(ctx, student.ID)
	if err != nil {
		log.Printf("attendance: guardian lookup for %s failed: %v", student.ID, err)
		return
	}
	var recipients []string
	for _, link := range links {
		if link.NotificationEmail != nil && *link.NotificationEmail != "" {
			recipients = append(recipients, *link.NotificationEmail)
			continue
		}
		guardian, err := e.dir.FindUserByID(ctx, link.UserID)
		if err != nil {
			log.Printf("attendance: guardian user %s lookup failed: %v", link.UserID, err)
			continue
		}
		if guardian != nil && guardian.Email != "" {
			recipients = append(recipients, guardian.Email)
		}
	}
	if len(recipients) == 0 {
		return
	}
	payload, err := json.Marshal(notify.Notification{
		SubjectName: student.FullName,
		EventType:   notify.EventEntry,
		EventTime:   at,
		Recipients:  recipients,
	})
	if err != nil {
		log.Printf("attendance: encode notification failed: %v", err)
		return
	}
	// The scan response must not wait on a full or unreachable queue, so
	// the publish gets a bounded window and the notification is dropped
	// past it.
	pubCtx, cancel := context.WithTimeout(ctx, publishWait)
	defer cancel()
	if err := e.q.Publish(pubCtx, queue.Message{Type: "notify", Body: payload}); err != nil {
		log.Printf("attendance: queue publish failed: %v", err)
	}
}

func (e *Engine) audit(ctx context.Context, entry AuditEntry) {
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		log.Printf("attendance: audit write failed: %v", err)
	}
}
