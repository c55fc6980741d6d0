package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolgate/internal/identity"
)

// ListUsers returns all users, optionally restricted with ?role=.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), c.Query("role"))
	if err != nil {
		log.Printf("list users failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	if users == nil {
		users = []identity.User{}
	}
	c.JSON(http.StatusOK, users)
}

// GetUser returns one user by id.
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("get user failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Grade    *string `json:"grade"`
	Category *string `json:"category"`
	Section  *string `json:"section"`
	PhotoURL *string `json:"photo_url"`
}

// UpdateUser applies a partial update.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.users.Update(c.Request.Context(), c.Param("id"), identity.UserUpdate{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
		Grade:    req.Grade,
		Category: req.Category,
		Section:  req.Section,
		PhotoURL: req.PhotoURL,
	})
	switch {
	case errors.Is(err, identity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, identity.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
	case err != nil:
		log.Printf("update user failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
	default:
		c.JSON(http.StatusOK, user)
	}
}

// DeleteUser removes a user and prunes parent links referencing them.
func (h *Handler) DeleteUser(c *gin.Context) {
	err := h.users.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("delete user failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// UploadPhoto stores a user photo under the upload dir and records its URL.
func (h *Handler) UploadPhoto(c *gin.Context) {
	id := c.Param("id")
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		log.Printf("create upload dir failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
		return
	}
	name := id + ext
	dst := filepath.Join(h.uploadDir, name)
	if err := c.SaveUploadedFile(header, dst); err != nil {
		log.Printf("save photo failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
		return
	}

	url := fmt.Sprintf("/static/uploads/%s", name)
	if err := h.users.SetPhoto(c.Request.Context(), id, url); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Printf("record photo url failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo_url": url})
}
