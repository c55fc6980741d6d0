package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"schoolgate/internal/identity"
	"schoolgate/internal/queue"
)

// fakeStore enforces the (user, date) uniqueness atomically, like the
// database constraint does.
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]*Record // keyed user|date
	audits   []AuditEntry
	findErr  error
	insByKey int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*Record{}}
}

func key(userID, date string) string { return userID + "|" + date }

func (s *fakeStore) FindByUserAndDate(_ context.Context, userID, date string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	rec, ok := s.records[key(userID, date)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Insert(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.UserID, rec.Date)
	if _, exists := s.records[k]; exists {
		return Record{}, ErrDuplicateRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	cp := rec
	s.records[k] = &cp
	s.insByKey++
	return rec, nil
}

func (s *fakeStore) SetCheckout(_ context.Context, id string, t time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			if rec.CheckOutTime != nil {
				return false, nil
			}
			cp := t
			rec.CheckOutTime = &cp
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func (s *fakeStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

type fakeDirectory struct {
	users   map[string]identity.User // by id
	byCode  map[string]string        // badge code -> id
	links   map[string][]identity.ParentLink
	lookups int
	mu      sync.Mutex
}

func (d *fakeDirectory) FindUserByID(_ context.Context, id string) (*identity.User, error) {
	d.mu.Lock()
	d.lookups++
	d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (d *fakeDirectory) FindUserByStudentCode(_ context.Context, code string) (*identity.User, error) {
	d.mu.Lock()
	d.lookups++
	d.mu.Unlock()
	if id, ok := d.byCode[code]; ok {
		u := d.users[id]
		return &u, nil
	}
	return nil, nil
}

func (d *fakeDirectory) FindParentLinksByStudent(_ context.Context, studentID string) ([]identity.ParentLink, error) {
	return d.links[studentID], nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

var schoolTZ = time.FixedZone("school", -6*3600)

func str(s string) *string { return &s }

func newTestEngine() (*Engine, *fakeStore, *fakeDirectory, *fakePublisher) {
	store := newFakeStore()
	dir := &fakeDirectory{
		users: map[string]identity.User{
			"student-1": {ID: "student-1", Email: "s1@school.test", FullName: "Ana Lopez", Role: identity.RoleStudent},
			"teacher-1": {ID: "teacher-1", Email: "t1@school.test", FullName: "Mr Perez", Role: identity.RoleTeacher},
			"parent-1":  {ID: "parent-1", Email: "p1@family.test", FullName: "Maria Lopez", Role: identity.RoleParent},
		},
		byCode: map[string]string{"LISFA-0001": "student-1"},
		links: map[string][]identity.ParentLink{
			"student-1": {{ID: "link-1", UserID: "parent-1", StudentIDs: []string{"student-1"}}},
		},
	}
	pub := &fakePublisher{}
	return NewEngine(store, dir, pub, schoolTZ, 8), store, dir, pub
}

// localTime builds an instant at the given local wall clock in the school zone.
func localTime(hour, min int) time.Time {
	return time.Date(2025, 3, 3, hour, min, 0, 0, schoolTZ)
}

func TestRecordScanMalformedCode(t *testing.T) {
	engine, _, dir, _ := newTestEngine()
	for _, code := range []string{"", "abc", "  ab  "} {
		_, err := engine.RecordScan(context.Background(), code, "gate", localTime(7, 0))
		assert.ErrorIs(t, err, ErrMalformedCode, "code %q", code)
	}
	assert.Equal(t, 0, dir.lookups, "short codes must be rejected before any lookup")
}

func TestRecordScanUnknownBadge(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	_, err := engine.RecordScan(context.Background(), "nobody-here", "gate", localTime(7, 0))
	assert.ErrorIs(t, err, ErrSubjectNotFound)
	assert.Equal(t, []string{"scan_failed"}, store.actions())
}

func TestResolveTwoTier(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	ctx := context.Background()

	u, how, err := engine.Resolve(ctx, "student-1")
	assert.NoError(t, err)
	assert.Equal(t, ResolvedByID, how)
	assert.Equal(t, "student-1", u.ID)

	u, how, err = engine.Resolve(ctx, "LISFA-0001")
	assert.NoError(t, err)
	assert.Equal(t, ResolvedByCode, how)
	assert.Equal(t, "student-1", u.ID)

	u, how, err = engine.Resolve(ctx, "missing")
	assert.NoError(t, err)
	assert.Equal(t, ResolvedNone, how)
	assert.Nil(t, u)
}

func TestCheckInStatusBoundary(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"one minute early", localTime(7, 59), StatusPresent},
		{"exactly cutoff", localTime(8, 0), StatusLate},
		{"after cutoff", localTime(13, 30), StatusLate},
		{"early morning", localTime(6, 0), StatusPresent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, _, _ := newTestEngine()
			rec, err := engine.RecordScan(context.Background(), "student-1", "gate", tt.at)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, rec.Status)
		})
	}
}

func TestCheckInUsesLocalDay(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	// 01:30 UTC is 19:30 the previous day at UTC-6.
	at := time.Date(2025, 3, 4, 1, 30, 0, 0, time.UTC)
	rec, err := engine.RecordScan(context.Background(), "student-1", "gate", at)
	assert.NoError(t, err)
	assert.Equal(t, "2025-03-03", rec.Date)
	assert.Equal(t, StatusLate, rec.Status) // 19:30 local is past cutoff
}

func TestCheckInDenormalizesSubject(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	rec, err := engine.RecordScan(context.Background(), "student-1", "", localTime(7, 0))
	assert.NoError(t, err)
	assert.Equal(t, "Ana Lopez", rec.UserName)
	assert.Equal(t, identity.RoleStudent, rec.UserRole)
	assert.Equal(t, SystemRecorder, rec.RecordedBy)
	assert.Nil(t, rec.CheckOutTime)
}

func TestCheckInThenCheckOut(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()

	in, err := engine.RecordScan(ctx, "student-1", "gate", localTime(7, 30))
	assert.NoError(t, err)

	out, err := engine.RecordScan(ctx, "student-1", "gate", localTime(15, 0))
	assert.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	if assert.NotNil(t, out.CheckOutTime) {
		assert.False(t, out.CheckOutTime.Before(out.CheckInTime))
	}
	// Status decided at check-in is untouched by checkout.
	assert.Equal(t, StatusPresent, out.Status)
	assert.Equal(t, []string{"check_in", "check_out"}, store.actions())
}

func TestThirdScanRejected(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.RecordScan(ctx, "student-1", "gate", localTime(7, 30))
	assert.NoError(t, err)
	second, err := engine.RecordScan(ctx, "student-1", "gate", localTime(15, 0))
	assert.NoError(t, err)

	_, err = engine.RecordScan(ctx, "student-1", "gate", localTime(16, 0))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	// The existing record is untouched.
	rec, ferr := store.FindByUserAndDate(ctx, "student-1", second.Date)
	assert.NoError(t, ferr)
	if assert.NotNil(t, rec) && assert.NotNil(t, rec.CheckOutTime) {
		assert.True(t, rec.CheckOutTime.Equal(*second.CheckOutTime))
	}
}

func TestStudentCheckInNotifiesGuardians(t *testing.T) {
	engine, _, _, pub := newTestEngine()
	ctx := context.Background()

	_, err := engine.RecordScan(ctx, "student-1", "gate", localTime(7, 0))
	assert.NoError(t, err)
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, "notify", pub.msgs[0].Type)
	assert.Contains(t, string(pub.msgs[0].Body), "p1@family.test")
	assert.Contains(t, string(pub.msgs[0].Body), "entry")

	// Checkout does not re-notify.
	_, err = engine.RecordScan(ctx, "student-1", "gate", localTime(15, 0))
	assert.NoError(t, err)
	assert.Equal(t, 1, pub.count())
}

func TestGuardianNotificationPrefersLinkEmail(t *testing.T) {
	engine, _, dir, pub := newTestEngine()
	dir.links["student-1"] = []identity.ParentLink{
		{ID: "link-1", UserID: "parent-1", StudentIDs: []string{"student-1"}, NotificationEmail: str("alerts@family.test")},
	}
	_, err := engine.RecordScan(context.Background(), "student-1", "gate", localTime(7, 0))
	assert.NoError(t, err)
	assert.Contains(t, string(pub.msgs[0].Body), "alerts@family.test")
	assert.NotContains(t, string(pub.msgs[0].Body), "p1@family.test")
}

func TestTeacherCheckInDoesNotNotify(t *testing.T) {
	engine, _, _, pub := newTestEngine()
	_, err := engine.RecordScan(context.Background(), "teacher-1", "gate", localTime(7, 0))
	assert.NoError(t, err)
	assert.Equal(t, 0, pub.count())
}

func TestNotificationFailureDoesNotFailScan(t *testing.T) {
	engine, _, _, pub := newTestEngine()
	pub.err = errors.New("redis down")
	rec, err := engine.RecordScan(context.Background(), "student-1", "gate", localTime(7, 0))
	assert.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)
}

// stalledPublisher never accepts a message, like a full channel-backed queue
// with no consumer.
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ queue.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledQueueDoesNotBlockScan(t *testing.T) {
	_, _, dir, _ := newTestEngine()
	engine := NewEngine(newFakeStore(), dir, stalledPublisher{}, schoolTZ, 8)

	done := make(chan struct{})
	var rec Record
	var err error
	go func() {
		rec, err = engine.RecordScan(context.Background(), "student-1", "gate", localTime(7, 0))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(publishWait + 2*time.Second):
		t.Fatal("scan blocked on notification enqueue")
	}
	assert.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)
}

func TestStoreFailureSurfacesAsInternal(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.findErr = errors.New("connection reset")
	_, err := engine.RecordScan(context.Background(), "student-1", "gate", localTime(7, 0))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedCode)
	assert.NotErrorIs(t, err, ErrSubjectNotFound)
	assert.NotErrorIs(t, err, ErrAlreadyCompleted)
}

func TestConcurrentScansKeepSingleRecord(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()
	const n = 16

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.RecordScan(ctx, "student-1", "gate", localTime(7, 30))
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyCompleted):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// One check-in, at most one check-out, rest rejected.
	assert.GreaterOrEqual(t, ok, 1)
	assert.LessOrEqual(t, ok, 2)
	assert.Equal(t, n, ok+conflict)
	assert.Equal(t, 1, store.insByKey, "exactly one record must exist")
}

func TestLosingInsertRaceBecomesCheckout(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()

	// Simulate the race: another scan inserted between the engine's lookup
	// and its insert by pre-seeding after lookup is impossible with the fake,
	// so seed first and call the internal path via a store-level conflict.
	seeded, err := store.Insert(ctx, Record{
		UserID: "student-1", UserName: "Ana Lopez", UserRole: identity.RoleStudent,
		CheckInTime: localTime(7, 0), Date: "2025-03-03", Status: StatusPresent, RecordedBy: "gate",
	})
	assert.NoError(t, err)

	out, err := engine.RecordScan(ctx, "student-1", "gate", localTime(15, 0))
	assert.NoError(t, err)
	assert.Equal(t, seeded.ID, out.ID)
	assert.NotNil(t, out.CheckOutTime)
}
