package card

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"schoolgate/internal/identity"
)

func TestQRPNG(t *testing.T) {
	png, err := QRPNG("user-123", 256)
	assert.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected a PNG header")

	// Default size kicks in for nonsense values.
	png, err = QRPNG("user-123", 0)
	assert.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestRenderProducesPDF(t *testing.T) {
	code := "LISFA-0042"
	grade := "3ro. Primaria"
	r := NewRenderer("Liceo San Francisco de Asis", "missing/logo.png")

	data, err := r.Render(identity.User{
		ID:        "user-123",
		FullName:  "Ana Lucia Lopez Morales",
		Role:      identity.RoleStudent,
		StudentID: &code,
		Grade:     &grade,
	})
	assert.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "expected a PDF header")
}

func TestRenderHandlesSparseUsers(t *testing.T) {
	r := NewRenderer("School", "")
	data, err := r.Render(identity.User{ID: "user-456", FullName: "Staff Member", Role: identity.RoleStaff})
	assert.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 25))
	assert.Equal(t, "aaaaa", clip("aaaaaaa", 5))

	// Accented names must not be cut mid-rune.
	got := clip("José María Asís Hernández", 10)
	assert.Equal(t, "José María", got)
	assert.True(t, utf8.ValidString(got))
}
