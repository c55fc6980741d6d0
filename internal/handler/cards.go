package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolgate/internal/card"
	"schoolgate/internal/identity"
)

// Card renders a user's printable ID card as PDF.
func (h *Handler) Card(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("load user for card failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render card"})
		return
	}
	data, err := h.cards.Render(user)
	if err != nil {
		log.Printf("render card for %s failed: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render card"})
		return
	}
	name := strings.ReplaceAll(user.FullName, " ", "_")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_card.pdf", name))
	c.Data(http.StatusOK, "application/pdf", data)
}

// CardQR serves the raw QR image for a user's badge.
func (h *Handler) CardQR(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("load user for qr failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render qr"})
		return
	}
	png, err := card.QRPNG(user.ID, 256)
	if err != nil {
		log.Printf("encode qr for %s failed: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render qr"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
