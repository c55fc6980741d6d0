package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, user_id, user_name, user_role, check_in_time, check_out_time, date, status, recorded_by`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.UserName, &rec.UserRole,
		&rec.CheckInTime, &rec.CheckOutTime, &rec.Date, &rec.Status, &rec.RecordedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// FindByUserAndDate returns the day's record for a subject, or nil.
func (r *Repository) FindByUserAndDate(ctx context.Context, userID, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance WHERE user_id = $1 AND date = $2
	`, userID, date)
	return scanRecord(row)
}

// Insert writes a new record. The UNIQUE (user_id, date) constraint makes the
// insert atomic under concurrent scans; a lost race surfaces as
// ErrDuplicateRecord rather than a silent overwrite.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ID, rec.UserID, rec.UserName, rec.UserRole,
		rec.CheckInTime, rec.CheckOutTime, rec.Date, rec.Status, rec.RecordedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, err
	}
	return rec, nil
}

// SetCheckout records the check-out time, first write wins. Returns false
// when the record is missing or the checkout was already set.
func (r *Repository) SetCheckout(ctx context.Context, id string, t time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance SET check_out_time = $2
		WHERE id = $1 AND check_out_time IS NULL
	`, id, t)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AppendAudit writes a diagnostic trail entry.
func (r *Repository) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, target_user, detail, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, e.ID, e.Action, e.TargetUser, e.Detail, e.CreatedAt)
	return err
}

// Query filters record listings. Zero values impose no constraint.
type Query struct {
	UserID   string
	Role     string
	Date     string // exact day
	DateFrom string // inclusive
	DateTo   string // inclusive
}

// List returns records matching the query, newest first.
func (r *Repository) List(ctx context.Context, q Query) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance`
	args := []any{}
	clauses := []string{}
	add := func(cond string, val string) {
		if val != "" {
			args = append(args, val)
			clauses = append(clauses, fmt.Sprintf(cond, len(args)))
		}
	}
	add("user_id = $%d", q.UserID)
	add("user_role = $%d", q.Role)
	add("date = $%d", q.Date)
	add("date >= $%d", q.DateFrom)
	add("date <= $%d", q.DateTo)
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY check_in_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

// CountByDate returns the number of records and the number of present-or-late
// records for one day. Used by the dashboard.
func (r *Repository) CountByDate(ctx context.Context, date string) (total, present int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status IN ('present','late'))
		FROM attendance WHERE date = $1
	`, date).Scan(&total, &present)
	return total, present, err
}
