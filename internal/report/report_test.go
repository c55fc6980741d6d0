package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"schoolgate/internal/attendance"
	"schoolgate/internal/identity"
)

type fakeRecords struct {
	records []attendance.Record
	lastQ   attendance.Query
}

func (f *fakeRecords) List(_ context.Context, q attendance.Query) ([]attendance.Record, error) {
	f.lastQ = q
	var out []attendance.Record
	for _, rec := range f.records {
		if q.UserID != "" && rec.UserID != q.UserID {
			continue
		}
		if q.Role != "" && rec.UserRole != q.Role {
			continue
		}
		if q.Date != "" && rec.Date != q.Date {
			continue
		}
		if q.DateFrom != "" && rec.Date < q.DateFrom {
			continue
		}
		if q.DateTo != "" && rec.Date > q.DateTo {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRecords) CountByDate(_ context.Context, date string) (int, int, error) {
	total, present := 0, 0
	for _, rec := range f.records {
		if rec.Date != date {
			continue
		}
		total++
		if rec.Status == attendance.StatusPresent || rec.Status == attendance.StatusLate {
			present++
		}
	}
	return total, present, nil
}

type fakeRoster struct {
	students map[string][]identity.User // by group
	ids      map[string][]string
	counts   map[string]int
}

func (f *fakeRoster) StudentsByGroup(_ context.Context, group string) ([]identity.User, error) {
	return f.students[group], nil
}

func (f *fakeRoster) UserIDsByGroup(_ context.Context, group string) ([]string, error) {
	return f.ids[group], nil
}

func (f *fakeRoster) CountByRole(_ context.Context, role string) (int, error) {
	return f.counts[role], nil
}

func rec(userID, date, status string) attendance.Record {
	return attendance.Record{
		ID: userID + "-" + date, UserID: userID, UserName: "U " + userID,
		UserRole: identity.RoleStudent, CheckInTime: time.Now(), Date: date, Status: status,
		RecordedBy: "gate",
	}
}

func TestBuildReportStats(t *testing.T) {
	records := &fakeRecords{}
	for i := 0; i < 6; i++ {
		records.records = append(records.records, rec(string(rune('a'+i)), "2025-03-03", attendance.StatusPresent))
	}
	records.records = append(records.records,
		rec("g1", "2025-03-03", attendance.StatusLate),
		rec("g2", "2025-03-03", attendance.StatusLate),
		rec("h1", "2025-03-03", attendance.StatusAbsent),
		rec("h2", "2025-03-03", attendance.StatusAbsent),
	)
	agg := NewAggregator(records, &fakeRoster{}, time.UTC)

	rep, err := agg.BuildReport(context.Background(), Filters{})
	assert.NoError(t, err)
	assert.Equal(t, 10, rep.Stats.Total)
	assert.Equal(t, 6, rep.Stats.Present)
	assert.Equal(t, 2, rep.Stats.Late)
	assert.Equal(t, 2, rep.Stats.Absent)
	assert.Equal(t, 80.00, rep.Stats.AttendanceRate)
}

func TestBuildReportEmpty(t *testing.T) {
	agg := NewAggregator(&fakeRecords{}, &fakeRoster{}, time.UTC)
	rep, err := agg.BuildReport(context.Background(), Filters{})
	assert.NoError(t, err)
	assert.Equal(t, 0, rep.Stats.Total)
	assert.Equal(t, 0.0, rep.Stats.AttendanceRate)
	assert.NotNil(t, rep.Records)
}

func TestBuildReportGroupPostFilter(t *testing.T) {
	records := &fakeRecords{records: []attendance.Record{
		rec("in-group", "2025-03-03", attendance.StatusPresent),
		rec("other", "2025-03-03", attendance.StatusPresent),
	}}
	roster := &fakeRoster{ids: map[string][]string{"3ro. Primaria": {"in-group"}}}
	agg := NewAggregator(records, roster, time.UTC)

	rep, err := agg.BuildReport(context.Background(), Filters{Group: "3ro. Primaria"})
	assert.NoError(t, err)
	assert.Len(t, rep.Records, 1)
	assert.Equal(t, "in-group", rep.Records[0].UserID)
	assert.Equal(t, "3ro. Primaria", rep.FiltersApplied.Group)
}

func TestBuildReportDateBounds(t *testing.T) {
	records := &fakeRecords{records: []attendance.Record{
		rec("u1", "2025-03-01", attendance.StatusPresent),
		rec("u1", "2025-03-02", attendance.StatusPresent),
		rec("u1", "2025-03-05", attendance.StatusPresent),
	}}
	agg := NewAggregator(records, &fakeRoster{}, time.UTC)

	rep, err := agg.BuildReport(context.Background(), Filters{DateFrom: "2025-03-02", DateTo: "2025-03-05"})
	assert.NoError(t, err)
	assert.Len(t, rep.Records, 2)

	// Open-ended bounds.
	rep, err = agg.BuildReport(context.Background(), Filters{DateFrom: "2025-03-02"})
	assert.NoError(t, err)
	assert.Len(t, rep.Records, 2)
}

func TestUserStats(t *testing.T) {
	records := &fakeRecords{records: []attendance.Record{
		rec("u1", "2025-03-01", attendance.StatusPresent),
		rec("u1", "2025-03-02", attendance.StatusLate),
		rec("u1", "2025-03-03", attendance.StatusAbsent),
		rec("u2", "2025-03-01", attendance.StatusPresent),
	}}
	agg := NewAggregator(records, &fakeRoster{}, time.UTC)

	stats, err := agg.Stats(context.Background(), "u1", "", "")
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDays)
	assert.Equal(t, 2, stats.PresentDays) // present + late
	assert.Equal(t, 1, stats.LateDays)
	assert.Equal(t, 1, stats.AbsentDays)
	assert.Equal(t, 66.67, stats.AttendanceRate)
}

func TestGradeRollupAbsentByOmission(t *testing.T) {
	group := "3ro. Primaria"
	roster := &fakeRoster{students: map[string][]identity.User{group: {
		{ID: "s1", FullName: "One"},
		{ID: "s2", FullName: "Two"},
		{ID: "s3", FullName: "Three"},
		{ID: "s4", FullName: "Four"},
		{ID: "s5", FullName: "Five"},
	}}}
	records := &fakeRecords{records: []attendance.Record{
		rec("s1", "2025-03-03", attendance.StatusPresent),
		rec("s2", "2025-03-03", attendance.StatusPresent),
		rec("s3", "2025-03-03", attendance.StatusLate),
		rec("s1", "2025-03-02", attendance.StatusPresent), // other day, ignored
	}}
	agg := NewAggregator(records, roster, time.UTC)

	rollup, err := agg.GradeRollup(context.Background(), group, "2025-03-03")
	assert.NoError(t, err)
	assert.Equal(t, 5, rollup.Total)
	assert.Equal(t, 2, rollup.Present)
	assert.Equal(t, 1, rollup.Late)
	assert.Equal(t, 2, rollup.Absent)

	absentees := 0
	for _, row := range rollup.Rows {
		if row.Status == attendance.StatusAbsent {
			absentees++
			assert.Nil(t, row.CheckIn, "absent students have no check-in time")
		}
	}
	assert.Equal(t, 2, absentees)
}

func TestGradeRollupDefaultsToLocalDay(t *testing.T) {
	loc := time.FixedZone("school", -6*3600)
	records := &fakeRecords{}
	roster := &fakeRoster{students: map[string][]identity.User{
		"5to. Primaria": {{ID: "u1", FullName: "Ana Lopez"}},
	}}
	agg := NewAggregator(records, roster, loc)

	out, err := agg.GradeRollup(context.Background(), "5to. Primaria", "")
	assert.NoError(t, err)

	want := time.Now().In(loc).Format("2006-01-02")
	assert.Equal(t, want, out.Date)
	assert.Equal(t, want, records.lastQ.Date, "records must be queried on the school's civil day")
	assert.Equal(t, 1, out.Total)
}

func TestDashboard(t *testing.T) {
	records := &fakeRecords{records: []attendance.Record{
		rec("s1", time.Now().UTC().Format("2006-01-02"), attendance.StatusPresent),
		rec("s2", time.Now().UTC().Format("2006-01-02"), attendance.StatusLate),
	}}
	roster := &fakeRoster{counts: map[string]int{identity.RoleStudent: 4, identity.RoleTeacher: 2}}
	agg := NewAggregator(records, roster, time.UTC)

	stats, err := agg.Dashboard(context.Background(), time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 4, stats.TotalStudents)
	assert.Equal(t, 2, stats.TotalTeachers)
	assert.Equal(t, 2, stats.TodayAttendance)
	assert.Equal(t, 2, stats.TodayPresent)
	assert.Equal(t, 50.0, stats.AttendanceRate)
}

func TestRateRounding(t *testing.T) {
	assert.Equal(t, 0.0, rate(1, 0))
	assert.Equal(t, 66.67, rate(2, 3))
	assert.Equal(t, 100.0, rate(3, 3))
	assert.Equal(t, 33.33, rate(1, 3))
}
