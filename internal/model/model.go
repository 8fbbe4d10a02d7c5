package model

// Status is the attendance state recorded for a student on a day.
type Status string

const (
	StatusPresent Status = "PRESENT"
	// StatusHaid is the excused absence for menstruation.
	StatusHaid Status = "HAID"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusHaid
}

// Semester is the half of the academic year.
type Semester string

const (
	SemesterGanjil Semester = "GANJIL"
	SemesterGenap  Semester = "GENAP"
)

// Student is a roster entry.
type Student struct {
	ID        string `json:"id" validate:"required"`
	ClassName string `json:"className" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Gender    string `json:"gender" validate:"omitempty,oneof=L P"`
}

// Teacher is an operator allowed to mark attendance.
type Teacher struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// AttendanceRecord is a single attendance entry. Student name and class are
// copied at creation time.
type AttendanceRecord struct {
	ID           string `json:"id"`
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	ClassName    string `json:"className"`
	Date         string `json:"date"`      // YYYY-MM-DD
	Timestamp    int64  `json:"timestamp"` // ms since epoch
	OperatorName string `json:"operatorName"`
	Status       Status `json:"status"`
}

// Slot is the (student, day) pair a record occupies.
type Slot struct {
	StudentID string
	Date      string
}

// Key identifies the slot a record occupies.
func (r AttendanceRecord) Key() Slot {
	return Slot{StudentID: r.StudentID, Date: r.Date}
}

// SchoolConfig is the singleton school configuration.
type SchoolConfig struct {
	AcademicYear string   `json:"academicYear" validate:"required"`
	Semester     Semester `json:"semester" validate:"required,oneof=GANJIL GENAP"`
}

// DefaultConfig is used until the spreadsheet provides one.
var DefaultConfig = SchoolConfig{
	AcademicYear: "2025/2026",
	Semester:     SemesterGanjil,
}

// Holiday is a day without attendance.
type Holiday struct {
	ID   string `json:"id" validate:"required"`
	Date string `json:"date" validate:"required"`
	Name string `json:"name"`
}
