package report

import (
	"context"
	"math"
	"time"

	"schoolgate/internal/attendance"
	"schoolgate/internal/identity"
)

// Filters narrows a report. Zero values impose no constraint; malformed
// values are treated as unset since report filters are advisory.
type Filters struct {
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
	Group    string `json:"group,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Stats aggregates the fetched records by status. Subjects with no record at
// all are not counted here; GradeRollup is where absence-by-omission shows.
type Stats struct {
	Total          int     `json:"total"`
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// Report is the aggregator's structured output.
type Report struct {
	Records        []attendance.Record `json:"records"`
	Stats          Stats               `json:"stats"`
	FiltersApplied Filters             `json:"filters_applied"`
}

// UserStats summarizes one subject's history over a date range.
type UserStats struct {
	TotalDays      int     `json:"total_days"`
	PresentDays    int     `json:"present_days"`
	AbsentDays     int     `json:"absent_days"`
	LateDays       int     `json:"late_days"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// RollupRow is one student's status for the rollup's target date.
type RollupRow struct {
	UserID    string     `json:"user_id"`
	FullName  string     `json:"full_name"`
	StudentID string     `json:"student_id,omitempty"`
	Status    string     `json:"status"`
	CheckIn   *time.Time `json:"check_in_time,omitempty"`
	CheckOut  *time.Time `json:"check_out_time,omitempty"`
}

// Rollup is the roster-driven report for one group and date. Students with no
// record are reported absent; this is the only place absence is computed.
type Rollup struct {
	Group   string      `json:"group"`
	Date    string      `json:"date"`
	Rows    []RollupRow `json:"rows"`
	Total   int         `json:"total"`
	Present int         `json:"present"`
	Late    int         `json:"late"`
	Absent  int         `json:"absent"`
}

// DashboardStats is the landing-page summary for today.
type DashboardStats struct {
	TotalStudents   int     `json:"total_students"`
	TotalTeachers   int     `json:"total_teachers"`
	TodayAttendance int     `json:"today_attendance"`
	TodayPresent    int     `json:"today_present"`
	AttendanceRate  float64 `json:"attendance_rate"`
}

// Records reads persisted attendance events.
type Records interface {
	List(ctx context.Context, q attendance.Query) ([]attendance.Record, error)
	CountByDate(ctx context.Context, date string) (total, present int, err error)
}

// Roster reads the user directory for group resolution.
type Roster interface {
	StudentsByGroup(ctx context.Context, group string) ([]identity.User, error)
	UserIDsByGroup(ctx context.Context, group string) ([]string, error)
	CountByRole(ctx context.Context, role string) (int, error)
}

// Aggregator reads attendance events and produces summaries. It never
// mutates attendance state.
type Aggregator struct {
	records Records
	roster  Roster
	loc     *time.Location
}

// NewAggregator wires the aggregator.
func NewAggregator(records Records, roster Roster, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{records: records, roster: roster, loc: loc}
}

// BuildReport fetches records matching the filters and computes counts.
// Group membership lives on the user, not the event, so the group filter is
// applied as a post-filter over resolved user ids.
func (a *Aggregator) BuildReport(ctx context.Context, f Filters) (Report, error) {
	recs, err := a.records.List(ctx, attendance.Query{
		UserID:   f.UserID,
		Role:     f.Role,
		DateFrom: f.DateFrom,
		DateTo:   f.DateTo,
	})
	if err != nil {
		return Report{}, err
	}
	if f.Group != "" {
		ids, err := a.roster.UserIDsByGroup(ctx, f.Group)
		if err != nil {
			return Report{}, err
		}
		member := make(map[string]bool, len(ids))
		for _, id := range ids {
			member[id] = true
		}
		kept := recs[:0]
		for _, rec := range recs {
			if member[rec.UserID] {
				kept = append(kept, rec)
			}
		}
		recs = kept
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return Report{Records: recs, Stats: tally(recs), FiltersApplied: f}, nil
}

// Stats computes a single user's attendance summary over a range. Bounds are
// independently optional and inclusive.
func (a *Aggregator) Stats(ctx context.Context, userID, from, to string) (UserStats, error) {
	recs, err := a.records.List(ctx, attendance.Query{UserID: userID, DateFrom: from, DateTo: to})
	if err != nil {
		return UserStats{}, err
	}
	var present, late int
	for _, rec := range recs {
		switch rec.Status {
		case attendance.StatusPresent:
			present++
		case attendance.StatusLate:
			late++
		}
	}
	total := len(recs)
	attended := present + late
	return UserStats{
		TotalDays:      total,
		PresentDays:    attended,
		LateDays:       late,
		AbsentDays:     total - attended,
		AttendanceRate: rate(attended, total),
	}, nil
}

// GradeRollup joins a group's full roster against one day's records. An empty
// date means today on the institution's clock; records are keyed on that
// zone, so a UTC default would roll over to the wrong day every evening.
func (a *Aggregator) GradeRollup(ctx context.Context, group, date string) (Rollup, error) {
	if date == "" {
		date = time.Now().In(a.loc).Format("2006-01-02")
	}
	students, err := a.roster.StudentsByGroup(ctx, group)
	if err != nil {
		return Rollup{}, err
	}
	recs, err := a.records.List(ctx, attendance.Query{Date: date})
	if err != nil {
		return Rollup{}, err
	}
	byUser := make(map[string]attendance.Record, len(recs))
	for _, rec := range recs {
		byUser[rec.UserID] = rec
	}

	out := Rollup{Group: group, Date: date, Total: len(students), Rows: make([]RollupRow, 0, len(students))}
	for _, st := range students {
		row := RollupRow{UserID: st.ID, FullName: st.FullName, Status: attendance.StatusAbsent}
		if st.StudentID != nil {
			row.StudentID = *st.StudentID
		}
		if rec, ok := byUser[st.ID]; ok {
			checkIn := rec.CheckInTime
			row.Status = rec.Status
			row.CheckIn = &checkIn
			row.CheckOut = rec.CheckOutTime
		}
		switch row.Status {
		case attendance.StatusPresent:
			out.Present++
		case attendance.StatusLate:
			out.Late++
		default:
			out.Absent++
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Dashboard computes today's headline numbers.
func (a *Aggregator) Dashboard(ctx context.Context, now time.Time) (DashboardStats, error) {
	today := now.In(a.loc).Format("2006-01-02")
	students, err := a.roster.CountByRole(ctx, identity.RoleStudent)
	if err != nil {
		return DashboardStats{}, err
	}
	teachers, err := a.roster.CountByRole(ctx, identity.RoleTeacher)
	if err != nil {
		return DashboardStats{}, err
	}
	total, present, err := a.records.CountByDate(ctx, today)
	if err != nil {
		return DashboardStats{}, err
	}
	return DashboardStats{
		TotalStudents:   students,
		TotalTeachers:   teachers,
		TodayAttendance: total,
		TodayPresent:    present,
		AttendanceRate:  rate(present, students),
	}, nil
}

func tally(recs []attendance.Record) Stats {
	s := Stats{Total: len(recs)}
	for _, rec := range recs {
		switch rec.Status {
		case attendance.StatusPresent:
			s.Present++
		case attendance.StatusLate:
			s.Late++
		case attendance.StatusAbsent:
			s.Absent++
		}
	}
	s.AttendanceRate = rate(s.Present+s.Late, s.Total)
	return s
}

// rate returns part/whole as a percentage rounded to 2 decimal places, 0 for
// an empty whole.
func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}
