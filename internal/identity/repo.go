package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Repository persists users and parent links in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, password_hash, full_name, role, student_id, grade, category, section, photo_url, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role,
		&u.StudentID, &u.Grade, &u.Category, &u.Section, &u.PhotoURL, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// InsertUser writes a new user.
func (r *Repository) InsertUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.Role,
		u.StudentID, u.Grade, u.Category, u.Section, u.PhotoURL, u.CreatedAt)
	return err
}

// FindUserByID returns a user or nil when absent.
func (r *Repository) FindUserByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindUserByEmail returns a user or nil when absent.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindUserByStudentCode resolves the printed badge code (e.g. LISFA-0042).
func (r *Repository) FindUserByStudentCode(ctx context.Context, code string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE student_id = $1`, code)
	return scanUser(row)
}

// ListUsers returns users, optionally restricted to one role.
func (r *Repository) ListUsers(ctx context.Context, role string) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// UsersByIDs returns the users whose ids are in the set.
func (r *Repository) UsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (`
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query += `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// UserUpdate carries the mutable user fields; nil means leave unchanged.
type UserUpdate struct {
	Email    *string
	FullName *string
	Role     *string
	Grade    *string
	Category *string
	Section  *string
	PhotoURL *string
}

// UpdateUser applies the non-nil fields. Returns false when no user matched.
func (r *Repository) UpdateUser(ctx context.Context, id string, upd UserUpdate) (bool, error) {
	sets := []string{}
	args := []any{id}
	add := func(col string, val *string) {
		if val != nil {
			args = append(args, *val)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("email", upd.Email)
	add("full_name", upd.FullName)
	add("role", upd.Role)
	add("grade", upd.Grade)
	add("category", upd.Category)
	add("section", upd.Section)
	add("photo_url", upd.PhotoURL)
	if len(sets) == 0 {
		u, err := r.FindUserByID(ctx, id)
		return u != nil, err
	}
	query := "UPDATE users SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE id = $1"
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteUser removes a user and prunes parent links referencing them, either
// as guardian (the whole link) or as student (the membership row). Attendance
// history is denormalized and intentionally retained.
func (r *Repository) DeleteUser(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM parent_students WHERE student_id = $1`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM parent_links WHERE user_id = $1`, id); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	return true, tx.Commit()
}

// CountByRole counts users with the given role.
func (r *Repository) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n)
	return n, err
}

// StudentsByGroup returns the student roster of one group. Both the current
// and the legacy group label are consulted.
func (r *Repository) StudentsByGroup(ctx context.Context, group string) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE role = 'student' AND (category = $1 OR grade = $1)
		ORDER BY full_name
	`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// UserIDsByGroup returns ids of all users whose group label matches.
func (r *Repository) UserIDsByGroup(ctx context.Context, group string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM users WHERE category = $1 OR grade = $1
	`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// UpsertParentLink creates or updates a guardian's link record. The student
// set only ever grows through this operation.
func (r *Repository) UpsertParentLink(ctx context.Context, link ParentLink) (ParentLink, error) {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ParentLink{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO parent_links (id, user_id, phone, notification_email)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE SET
			phone = COALESCE(EXCLUDED.phone, parent_links.phone),
			notification_email = COALESCE(EXCLUDED.notification_email, parent_links.notification_email)
		RETURNING id
	`, link.ID, link.UserID, link.Phone, link.NotificationEmail)
	if err := row.Scan(&link.ID); err != nil {
		return ParentLink{}, err
	}
	for _, sid := range link.StudentIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO parent_students (parent_id, student_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, link.ID, sid); err != nil {
			return ParentLink{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ParentLink{}, err
	}
	return r.loadLink(ctx, link.ID)
}

func (r *Repository) loadLink(ctx context.Context, id string) (ParentLink, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, phone, notification_email FROM parent_links WHERE id = $1
	`, id)
	var link ParentLink
	if err := row.Scan(&link.ID, &link.UserID, &link.Phone, &link.NotificationEmail); err != nil {
		return ParentLink{}, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM parent_students WHERE parent_id = $1
	`, id)
	if err != nil {
		return ParentLink{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return ParentLink{}, err
		}
		link.StudentIDs = append(link.StudentIDs, sid)
	}
	return link, rows.Err()
}

// FindParentLinkByUser returns a guardian's link or nil when absent.
func (r *Repository) FindParentLinkByUser(ctx context.Context, userID string) (*ParentLink, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM parent_links WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	link, err := r.loadLink(ctx, id)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindParentLinksByStudent returns every guardian link covering a student.
func (r *Repository) FindParentLinksByStudent(ctx context.Context, studentID string) ([]ParentLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pl.id FROM parent_links pl
		JOIN parent_students ps ON ps.parent_id = pl.id
		WHERE ps.student_id = $1
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var res []ParentLink
	for _, id := range ids {
		link, err := r.loadLink(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, link)
	}
	return res, nil
}
