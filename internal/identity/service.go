package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"schoolgate/internal/auth"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Service owns user registration and credential verification.
type Service struct {
	repo *Repository
	// idTag prefixes generated student badge codes, e.g. LISFA-0042.
	idTag string
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, idTag string) *Service {
	if idTag == "" {
		idTag = "LISFA"
	}
	return &Service{repo: repo, idTag: idTag}
}

// RegisterInput is the payload for creating a user.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     string
	Grade    *string
	Category *string
	Section  *string
}

// Register creates a user. Students additionally get a generated badge code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if !ValidRole(in.Role) {
		return User{}, ErrInvalidRole
	}
	existing, err := s.repo.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return User{}, err
	}
	if existing != nil {
		return User{}, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Role:         in.Role,
		Grade:        in.Grade,
		Category:     in.Category,
		Section:      in.Section,
		CreatedAt:    time.Now().UTC(),
	}
	if in.Role == RoleStudent {
		count, err := s.repo.CountByRole(ctx, RoleStudent)
		if err != nil {
			return User{}, err
		}
		code := s.StudentCode(count + 1)
		u.StudentID = &code
	}
	if err := s.repo.InsertUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// StudentCode formats the printed badge code for the nth student.
func (s *Service) StudentCode(n int) string {
	return fmt.Sprintf("%s-%04d", s.idTag, n)
}

// Authenticate verifies email/password and returns the user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if u == nil || !auth.VerifyPassword(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrNotFound
	}
	return *u, nil
}

// List returns users, optionally filtered by role.
func (s *Service) List(ctx context.Context, role string) ([]User, error) {
	return s.repo.ListUsers(ctx, role)
}

// Update applies a partial update and returns the fresh record.
func (s *Service) Update(ctx context.Context, id string, upd UserUpdate) (User, error) {
	if upd.Role != nil && !ValidRole(*upd.Role) {
		return User{}, ErrInvalidRole
	}
	ok, err := s.repo.UpdateUser(ctx, id, upd)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a user. Parent links pointing at them are pruned; attendance
// history stays (it is denormalized at write time).
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SetPhoto stores the uploaded photo URL on the user.
func (s *Service) SetPhoto(ctx context.Context, id, url string) error {
	ok, err := s.repo.UpdateUser(ctx, id, UserUpdate{PhotoURL: &url})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SaveParentLink upserts a guardian link; the student set is additive.
func (s *Service) SaveParentLink(ctx context.Context, link ParentLink) (ParentLink, error) {
	return s.repo.UpsertParentLink(ctx, link)
}

// ParentLink returns a guardian's link record.
func (s *Service) ParentLink(ctx context.Context, userID string) (ParentLink, error) {
	link, err := s.repo.FindParentLinkByUser(ctx, userID)
	if err != nil {
		return ParentLink{}, err
	}
	if link == nil {
		return ParentLink{}, ErrNotFound
	}
	return *link, nil
}

// ParentStudents returns the student records linked to a guardian.
func (s *Service) ParentStudents(ctx context.Context, userID string) ([]User, error) {
	link, err := s.repo.FindParentLinkByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	return s.repo.UsersByIDs(ctx, link.StudentIDs)
}
