package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolgate/internal/identity"
)

type parentLinkRequest struct {
	UserID            string   `json:"user_id" binding:"required"`
	StudentIDs        []string `json:"student_ids" binding:"required"`
	Phone             *string  `json:"phone"`
	NotificationEmail *string  `json:"notification_email"`
}

// SaveParentLink upserts a guardian's link; the student set only grows.
func (h *Handler) SaveParentLink(c *gin.Context) {
	var req parentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	link, err := h.users.SaveParentLink(c.Request.Context(), identity.ParentLink{
		UserID:            req.UserID,
		StudentIDs:        req.StudentIDs,
		Phone:             req.Phone,
		NotificationEmail: req.NotificationEmail,
	})
	if err != nil {
		log.Printf("save parent link failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save parent link"})
		return
	}
	c.JSON(http.StatusOK, link)
}

// GetParentLink returns a guardian's link record.
func (h *Handler) GetParentLink(c *gin.Context) {
	link, err := h.users.ParentLink(c.Request.Context(), c.Param("user_id"))
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Parent not found"})
		return
	}
	if err != nil {
		log.Printf("get parent link failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load parent link"})
		return
	}
	c.JSON(http.StatusOK, link)
}

// GetParentStudents returns the student records linked to a guardian.
func (h *Handler) GetParentStudents(c *gin.Context) {
	students, err := h.users.ParentStudents(c.Request.Context(), c.Param("user_id"))
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Parent not found"})
		return
	}
	if err != nil {
		log.Printf("get parent students failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load students"})
		return
	}
	if students == nil {
		students = []identity.User{}
	}
	c.JSON(http.StatusOK, students)
}
