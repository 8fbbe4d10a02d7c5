package sheetclient

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"absensi/internal/model"
)

var canonicalDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NormalizeDate rewrites the date formats the spreadsheet emits to YYYY-MM-DD.
//
// Slash dates are year-first when the first segment has four characters and
// day-first otherwise, so "01/02/2025" is always 1 February. This is a
// heuristic: a month-first sheet cannot be told apart when the day is <= 12.
// Unrecognised input is returned unchanged.
func NormalizeDate(s string) string {
	if s == "" {
		return ""
	}
	if canonicalDate.MatchString(s) {
		return s
	}
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		if len(parts) == 3 {
			if len(parts[0]) == 4 {
				return parts[0] + "-" + pad2(parts[1]) + "-" + pad2(parts[2])
			}
			return parts[2] + "-" + pad2(parts[1]) + "-" + pad2(parts[0])
		}
	}
	return s
}

func pad2(s string) string {
	if len(s) >= 2 {
		return s
	}
	return strings.Repeat("0", 2-len(s)) + s
}

// flexString accepts a JSON string, number or bool. Spreadsheet cells holding
// numeric ids (e.g. 1129) come back as numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// flexMillis accepts epoch milliseconds as a number or string, or an ISO
// datetime string. Anything else decodes to zero.
type flexMillis int64

func (f *flexMillis) UnmarshalJSON(b []byte) error {
	var raw flexString
	if err := raw.UnmarshalJSON(b); err != nil {
		return err
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		*f = 0
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexMillis(v)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			*f = 0
			return nil
		}
		*f = flexMillis(int64(v))
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*f = flexMillis(t.UnixMilli())
		return nil
	}
	*f = 0
	return nil
}

type wireStudent struct {
	ID        flexString `json:"id"`
	ClassName flexString `json:"className"`
	Name      flexString `json:"name"`
	Gender    flexString `json:"gender"`
}

type wireTeacher struct {
	ID   flexString `json:"id"`
	Name flexString `json:"name"`
}

type wireRecord struct {
	ID           flexString `json:"id"`
	StudentID    flexString `json:"studentId"`
	StudentName  flexString `json:"studentName"`
	ClassName    flexString `json:"className"`
	Date         flexString `json:"date"`
	Timestamp    flexMillis `json:"timestamp"`
	OperatorName flexString `json:"operatorName"`
	Status       flexString `json:"status"`
}

type wireConfig struct {
	AcademicYear flexString `json:"academicYear"`
	Semester     flexString `json:"semester"`
}

type wireHoliday struct {
	ID   flexString `json:"id"`
	Date flexString `json:"date"`
	Name flexString `json:"name"`
}

type wireDataset struct {
	Students   []wireStudent `json:"students"`
	Teachers   []wireTeacher `json:"teachers"`
	Attendance []wireRecord  `json:"attendance"`
	Config     *wireConfig   `json:"config"`
	Holidays   []wireHoliday `json:"holidays"`
}

// Dataset is the normalised result of GET_ALL_DATA. Collections are never
// nil.
type Dataset struct {
	Students   []model.Student
	Teachers   []model.Teacher
	Attendance []model.AttendanceRecord
	Config     model.SchoolConfig
	Holidays   []model.Holiday
}

func (w wireDataset) normalize() *Dataset {
	ds := &Dataset{
		Students:   make([]model.Student, 0, len(w.Students)),
		Teachers:   make([]model.Teacher, 0, len(w.Teachers)),
		Attendance: make([]model.AttendanceRecord, 0, len(w.Attendance)),
		Config:     model.DefaultConfig,
		Holidays:   make([]model.Holiday, 0, len(w.Holidays)),
	}
	for _, s := range w.Students {
		ds.Students = append(ds.Students, model.Student{
			ID:        string(s.ID),
			ClassName: string(s.ClassName),
			Name:      string(s.Name),
			Gender:    string(s.Gender),
		})
	}
	for _, t := range w.Teachers {
		ds.Teachers = append(ds.Teachers, model.Teacher{ID: string(t.ID), Name: string(t.Name)})
	}
	for _, r := range w.Attendance {
		ds.Attendance = append(ds.Attendance, model.AttendanceRecord{
			ID:           string(r.ID),
			StudentID:    string(r.StudentID),
			StudentName:  string(r.StudentName),
			ClassName:    string(r.ClassName),
			Date:         NormalizeDate(string(r.Date)),
			Timestamp:    int64(r.Timestamp),
			OperatorName: string(r.OperatorName),
			Status:       model.Status(r.Status),
		})
	}
	if w.Config != nil {
		if w.Config.AcademicYear != "" {
			ds.Config.AcademicYear = string(w.Config.AcademicYear)
		}
		if w.Config.Semester != "" {
			ds.Config.Semester = model.Semester(w.Config.Semester)
		}
	}
	for _, h := range w.Holidays {
		ds.Holidays = append(ds.Holidays, model.Holiday{
			ID:   string(h.ID),
			Date: NormalizeDate(string(h.Date)),
			Name: string(h.Name),
		})
	}
	return ds
}
