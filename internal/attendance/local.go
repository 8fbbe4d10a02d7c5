package attendance

import "absensi/internal/model"

// AddLocal appends records whose id is not already present. Colliding ids are
// skipped, never overwritten. The input slice is not modified.
func AddLocal(current []model.AttendanceRecord, added ...model.AttendanceRecord) []model.AttendanceRecord {
	ids := make(map[string]struct{}, len(current)+len(added))
	for _, r := range current {
		ids[r.ID] = struct{}{}
	}
	out := make([]model.AttendanceRecord, len(current), len(current)+len(added))
	copy(out, current)
	for _, r := range added {
		if _, ok := ids[r.ID]; ok {
			continue
		}
		ids[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// RemoveLocal drops the record with the given id. The second return value
// reports whether anything was removed.
func RemoveLocal(current []model.AttendanceRecord, id string) ([]model.AttendanceRecord, bool) {
	out := make([]model.AttendanceRecord, 0, len(current))
	removed := false
	for _, r := range current {
		if r.ID == id {
			removed = true
			continue
		}
		out = append(out, r)
	}
	return out, removed
}
