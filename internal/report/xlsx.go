package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Rekap"
	detailSheet  = "Detail"
)

// ContentType is the MIME type of WriteXLSX output.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FileName is the download name for a report exported at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("rekap_absensi_%s.xlsx", t.Format("20060102_150405"))
}

// WriteXLSX writes the report as a workbook with a summary and a detail sheet.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(detailSheet); err != nil {
		return err
	}

	title := fmt.Sprintf("Tahun Ajaran %s, Semester %s", r.Config.AcademicYear, r.Config.Semester)
	if err := f.SetCellValue(summarySheet, "A1", title); err != nil {
		return err
	}
	if err := writeRow(f, summarySheet, 2, "NIS", "Nama", "Kelas", "Hadir", "Haid", "Total"); err != nil {
		return err
	}
	for i, row := range r.Rows {
		if err := writeRow(f, summarySheet, i+3, row.StudentID, row.Name, row.ClassName, row.Present, row.Haid, row.Total); err != nil {
			return err
		}
	}

	if err := writeRow(f, detailSheet, 1, "Tanggal", "NIS", "Nama", "Kelas", "Status", "Petugas"); err != nil {
		return err
	}
	for i, rec := range r.Detail {
		if err := writeRow(f, detailSheet, i+2, rec.Date, rec.StudentID, rec.StudentName, rec.ClassName, string(rec.Status), rec.OperatorName); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
