package identity

import "time"

// Roles recognized by the service.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleStaff   = "staff"
	RoleParent  = "parent"
)

// ValidRole reports whether role is one of the recognized roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleStaff, RoleParent:
		return true
	}
	return false
}

// User is a registered person: staff, student or guardian.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	StudentID    *string   `json:"student_id,omitempty"` // printed badge code, students only
	Grade        *string   `json:"grade,omitempty"`      // legacy group label
	Category     *string   `json:"category,omitempty"`   // current group label
	Section      *string   `json:"section,omitempty"`
	PhotoURL     *string   `json:"photo_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Group returns the user's group label, preferring the current field over the
// legacy one. Older records may only carry Grade.
func (u User) Group() string {
	if u.Category != nil && *u.Category != "" {
		return *u.Category
	}
	if u.Grade != nil {
		return *u.Grade
	}
	return ""
}

// ParentLink associates one guardian with a set of students.
type ParentLink struct {
	ID                string   `json:"id"`
	UserID            string   `json:"user_id"`
	StudentIDs        []string `json:"student_ids"`
	Phone             *string  `json:"phone,omitempty"`
	NotificationEmail *string  `json:"notification_email,omitempty"`
}
