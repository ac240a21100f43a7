package eval

import (
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// WritePDFReport renders the outcomes as a PDF table (one row per case, with
// automatic page breaks), for sharing eval runs outside the terminal.
func WritePDFReport(outcomes []Outcome, path string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("webpipe eval matrix", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "webpipe eval matrix")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(90, 7, "Case", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, "Pass", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 7, "ms", "1", 0, "R", false, 0, "")
	pdf.CellFormat(60, 7, "First failure", "1", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	passed := 0
	for _, o := range outcomes {
		status := "ok"
		if o.Pass {
			passed++
		} else {
			status = "FAIL"
		}
		firstFailure := ""
		if len(o.Failures) > 0 {
			firstFailure = o.Failures[0]
			if len(firstFailure) > 60 {
				firstFailure = firstFailure[:60]
			}
		}
		pdf.CellFormat(90, 6, truncateCell(o.Case.Name, 55), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", o.ElapsedMS), "1", 0, "R", false, 0, "")
		pdf.CellFormat(60, 6, firstFailure, "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 8, fmt.Sprintf("%d/%d passed", passed, len(outcomes)))
	return pdf.OutputFileAndClose(path)
}

func truncateCell(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
