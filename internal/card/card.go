// Package card renders printable identification cards. Each card embeds a
// scannable QR code carrying the user's primary id, the same value the scan
// endpoint accepts.
package card

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"schoolgate/internal/identity"
)

// Card dimensions in mm (5.5cm x 8.5cm portrait badge).
const (
	cardWidth  = 55
	cardHeight = 85
)

// Renderer produces ID cards for one institution.
type Renderer struct {
	schoolName string
	logoPath   string
}

// NewRenderer creates a renderer. logoPath may point at a missing file; the
// card is rendered without a logo then.
func NewRenderer(schoolName, logoPath string) *Renderer {
	return &Renderer{schoolName: schoolName, logoPath: logoPath}
}

// QRPNG encodes the user's primary id as a PNG QR code.
func QRPNG(userID string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(userID, qrcode.High, size)
}

// Render produces the card PDF for a user.
func (r *Renderer) Render(u identity.User) ([]byte, error) {
	qrPNG, err := QRPNG(u.ID, 300)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: cardWidth, Ht: cardHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// Dark blue background with yellow stripes top and bottom.
	pdf.SetFillColor(0x1e, 0x3a, 0x5f)
	pdf.Rect(0, 0, cardWidth, cardHeight, "F")
	pdf.SetFillColor(0xf4, 0xc4, 0x30)
	pdf.Rect(0, 0, cardWidth, 3, "F")
	pdf.Rect(0, cardHeight-3, cardWidth, 3, "F")

	if _, err := os.Stat(r.logoPath); err == nil {
		pdf.ImageOptions(r.logoPath, 3, 5, 8, 8, false, gofpdf.ImageOptions{}, 0, "")
	}
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetXY(13, 6)
	pdf.CellFormat(cardWidth-16, 4, r.schoolName, "", 1, "L", false, 0, "")

	// Photo or gray placeholder, centered.
	photoY := 16.0
	drawn := false
	if u.PhotoURL != nil && *u.PhotoURL != "" {
		path := localPath(*u.PhotoURL)
		if _, err := os.Stat(path); err == nil {
			pdf.ImageOptions(path, (cardWidth-20)/2, photoY, 20, 25, false, gofpdf.ImageOptions{}, 0, "")
			drawn = true
		}
	}
	if !drawn {
		pdf.SetFillColor(0xcc, 0xcc, 0xcc)
		pdf.Rect((cardWidth-20)/2, photoY, 20, 25, "F")
	}

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetXY(2, 44)
	pdf.CellFormat(cardWidth-4, 4, clip(u.FullName, 25), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	code := "N/A"
	if u.StudentID != nil && *u.StudentID != "" {
		code = *u.StudentID
	}
	pdf.SetX(2)
	pdf.CellFormat(cardWidth-4, 4, "ID: "+code, "", 1, "C", false, 0, "")

	if group := u.Group(); group != "" {
		pdf.SetFont("Helvetica", "B", 7)
		pdf.SetX(2)
		pdf.CellFormat(cardWidth-4, 4, group, "", 1, "C", false, 0, "")
	}

	// QR centered near the bottom.
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("badge-qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("badge-qr", (cardWidth-18)/2, cardHeight-25, 18, 18, false, opts, 0, "")

	pdf.SetTextColor(0xf4, 0xc4, 0x30)
	pdf.SetFont("Helvetica", "B", 6)
	pdf.SetXY(2, cardHeight-6)
	pdf.CellFormat(cardWidth-4, 3, fmt.Sprintf("%d", time.Now().Year()), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render card: %w", err)
	}
	return buf.Bytes(), nil
}

// clip truncates to max runes; byte slicing would split accented names.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

// localPath maps a stored /static/... URL back to a filesystem path.
func localPath(url string) string {
	for len(url) > 0 && url[0] == '/' {
		url = url[1:]
	}
	return url
}
