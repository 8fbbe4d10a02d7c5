// Package report aggregates attendance records into per-student summaries.
package report

import (
	"sort"

	"absensi/internal/model"
)

// Filter narrows a report. Empty fields match everything; From and To are
// inclusive YYYY-MM-DD bounds.
type Filter struct {
	StudentID string `form:"studentId"`
	ClassName string `form:"className"`
	From      string `form:"from"`
	To        string `form:"to"`
}

func (f Filter) inRange(date string) bool {
	return (f.From == "" || date >= f.From) && (f.To == "" || date <= f.To)
}

// Row is one student's totals.
type Row struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	ClassName string `json:"className"`
	Present   int    `json:"present"`
	Haid      int    `json:"haid"`
	Total     int    `json:"total"`
}

// Report is the result of Build.
type Report struct {
	Filter Filter                   `json:"filter"`
	Config model.SchoolConfig       `json:"config"`
	Rows   []Row                    `json:"rows"`
	Detail []model.AttendanceRecord `json:"detail"`
	// Holidays counts holiday dates in range. Records on those dates are
	// left out of the totals.
	Holidays int `json:"holidays"`
}

// Build summarises records for every student matching f. Students with no
// records still get a row. Records of students no longer on the roster are
// grouped under the name and class stored on the record.
func Build(students []model.Student, records []model.AttendanceRecord, holidays []model.Holiday, cfg model.SchoolConfig, f Filter) Report {
	off := make(map[string]bool)
	for _, h := range holidays {
		if f.inRange(h.Date) {
			off[h.Date] = true
		}
	}

	rows := make(map[string]*Row)
	var order []string
	get := func(id, name, class string) *Row {
		if r, ok := rows[id]; ok {
			return r
		}
		r := &Row{StudentID: id, Name: name, ClassName: class}
		rows[id] = r
		order = append(order, id)
		return r
	}
	matches := func(id, class string) bool {
		return (f.StudentID == "" || id == f.StudentID) && (f.ClassName == "" || class == f.ClassName)
	}

	for _, st := range students {
		if matches(st.ID, st.ClassName) {
			get(st.ID, st.Name, st.ClassName)
		}
	}

	var detail []model.AttendanceRecord
	for _, rec := range records {
		if !f.inRange(rec.Date) || off[rec.Date] {
			continue
		}
		r, known := rows[rec.StudentID]
		if !known {
			if !matches(rec.StudentID, rec.ClassName) {
				continue
			}
			r = get(rec.StudentID, rec.StudentName, rec.ClassName)
		}
		switch rec.Status {
		case model.StatusHaid:
			r.Haid++
		default:
			r.Present++
		}
		r.Total++
		detail = append(detail, rec)
	}

	out := Report{Filter: f, Config: cfg, Rows: make([]Row, 0, len(order)), Detail: detail, Holidays: len(off)}
	for _, id := range order {
		out.Rows = append(out.Rows, *rows[id])
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		if out.Rows[i].ClassName != out.Rows[j].ClassName {
			return out.Rows[i].ClassName < out.Rows[j].ClassName
		}
		return out.Rows[i].Name < out.Rows[j].Name
	})
	sort.SliceStable(out.Detail, func(i, j int) bool {
		if out.Detail[i].Date != out.Detail[j].Date {
			return out.Detail[i].Date < out.Detail[j].Date
		}
		return out.Detail[i].Timestamp < out.Detail[j].Timestamp
	})
	if out.Detail == nil {
		out.Detail = []model.AttendanceRecord{}
	}
	return out
}
