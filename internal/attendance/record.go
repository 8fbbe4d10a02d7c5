package attendance

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"absensi/internal/model"
)

const (
	// ProvisionalPrefix marks records created locally and not yet listed by
	// the spreadsheet.
	ProvisionalPrefix = "temp_"
	// SubmittedPrefix marks client-generated ids sent with ADD_ATTENDANCE.
	SubmittedPrefix = "rec_"
)

// IsProvisional reports whether id belongs to a local, unconfirmed record.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// NewProvisional builds the record inserted locally the moment an operator
// marks a student.
func NewProvisional(st model.Student, operator string, status model.Status, now time.Time) model.AttendanceRecord {
	rec := build(st, operator, status, now)
	rec.ID = ProvisionalPrefix + uuid.NewString()
	return rec
}

// NewSubmitted builds the record sent to the spreadsheet, with an id of the
// form rec_<ms>_<5 chars>.
func NewSubmitted(st model.Student, operator string, status model.Status, now time.Time) model.AttendanceRecord {
	rec := build(st, operator, status, now)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:5]
	rec.ID = SubmittedPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
	return rec
}

func build(st model.Student, operator string, status model.Status, now time.Time) model.AttendanceRecord {
	rec := model.AttendanceRecord{
		StudentID:    orDefault(st.ID, "N/A"),
		StudentName:  orDefault(st.Name, "Unknown"),
		ClassName:    orDefault(st.ClassName, "Unknown"),
		Date:         now.Format("2006-01-02"),
		Timestamp:    now.UnixMilli(),
		OperatorName: orDefault(operator, "System"),
		Status:       status,
	}
	if rec.Status == "" {
		rec.Status = model.StatusPresent
	}
	return rec
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
