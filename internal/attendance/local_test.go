package attendance

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"absensi/internal/model"
)

func TestAddLocal(t *testing.T) {
	current := []model.AttendanceRecord{{ID: "srv_1", StudentID: "S1"}}

	got := AddLocal(current, model.AttendanceRecord{ID: "temp_1"}, model.AttendanceRecord{ID: "temp_2"})
	if want := []string{"srv_1", "temp_1", "temp_2"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
	if len(current) != 1 {
		t.Errorf("input mutated: %v", ids(current))
	}
}

func TestAddLocalSkipsCollisions(t *testing.T) {
	current := []model.AttendanceRecord{{ID: "temp_1", StudentID: "S1"}}
	got := AddLocal(current,
		model.AttendanceRecord{ID: "temp_1", StudentID: "OTHER"},
		model.AttendanceRecord{ID: "temp_2"},
		model.AttendanceRecord{ID: "temp_2", StudentID: "OTHER"},
	)
	if want := []string{"temp_1", "temp_2"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
	if got[0].StudentID != "S1" || got[1].StudentID != "" {
		t.Errorf("existing record overwritten: %+v", got)
	}
}

func TestRemoveLocal(t *testing.T) {
	current := []model.AttendanceRecord{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got, removed := RemoveLocal(current, "b")
	if !removed || !reflect.DeepEqual(ids(got), []string{"a", "c"}) {
		t.Errorf("got %v removed=%v", ids(got), removed)
	}

	got, removed = RemoveLocal(current, "zzz")
	if removed || !reflect.DeepEqual(got, current) {
		t.Errorf("missing id changed state: %v removed=%v", ids(got), removed)
	}
}

func TestNewRecords(t *testing.T) {
	now := time.Date(2025, 3, 1, 7, 30, 0, 0, time.Local)
	st := model.Student{ID: "1129", Name: "ABEL", ClassName: "IX A"}

	p := NewProvisional(st, "Dra. Sri Hayati", "", now)
	if !IsProvisional(p.ID) {
		t.Errorf("provisional id = %q", p.ID)
	}
	if p.Date != "2025-03-01" || p.Timestamp != now.UnixMilli() || p.Status != model.StatusPresent {
		t.Errorf("provisional = %+v", p)
	}

	s := NewSubmitted(model.Student{}, "", model.StatusHaid, now)
	if IsProvisional(s.ID) || !strings.HasPrefix(s.ID, "rec_") || len(strings.Split(s.ID, "_")) != 3 {
		t.Errorf("submitted id = %q", s.ID)
	}
	if s.StudentID != "N/A" || s.StudentName != "Unknown" || s.ClassName != "Unknown" || s.OperatorName != "System" {
		t.Errorf("defaults = %+v", s)
	}
	if s.Status != model.StatusHaid {
		t.Errorf("status = %q", s.Status)
	}
}
