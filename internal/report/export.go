package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// WriteCSV renders the report as tabular rows with a trailing summary.
func WriteCSV(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "name", "role", "status", "check_in", "check_out", "recorded_by"}); err != nil {
		return err
	}
	for _, rec := range rep.Records {
		checkOut := ""
		if rec.CheckOutTime != nil {
			checkOut = rec.CheckOutTime.Format(time.RFC3339)
		}
		row := []string{
			rec.Date, rec.UserName, rec.UserRole, rec.Status,
			rec.CheckInTime.Format(time.RFC3339), checkOut, rec.RecordedBy,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	summary := []string{
		"",
		fmt.Sprintf("total=%d", rep.Stats.Total),
		fmt.Sprintf("present=%d", rep.Stats.Present),
		fmt.Sprintf("late=%d", rep.Stats.Late),
		fmt.Sprintf("absent=%d", rep.Stats.Absent),
		fmt.Sprintf("rate=%.2f", rep.Stats.AttendanceRate),
		"",
	}
	if err := cw.Write(summary); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// PDF renders the report as a one-table printable document.
func PDF(rep Report, title string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 6, fmt.Sprintf("total %d   present %d   late %d   absent %d   rate %.2f%%",
		rep.Stats.Total, rep.Stats.Present, rep.Stats.Late, rep.Stats.Absent, rep.Stats.AttendanceRate),
		"", 1, "C", false, 0, "")
	pdf.Ln(2)

	widths := []float64{22, 55, 20, 18, 30, 30}
	headers := []string{"Date", "Name", "Role", "Status", "Check-in", "Check-out"}
	pdf.SetFont("Helvetica", "B", 8)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 8)
	for _, rec := range rep.Records {
		checkOut := "-"
		if rec.CheckOutTime != nil {
			checkOut = rec.CheckOutTime.Format("15:04:05")
		}
		cols := []string{
			rec.Date, rec.UserName, rec.UserRole, rec.Status,
			rec.CheckInTime.Format("15:04:05"), checkOut,
		}
		for i, v := range cols {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
