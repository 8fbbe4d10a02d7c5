// Package attendance merges attendance records fetched from the spreadsheet
// with records created locally that the spreadsheet has not listed yet.
package attendance

import (
	"time"

	"absensi/internal/model"
)

// DefaultWindow is how long a provisional record is protected from being
// dropped by a sync that does not list it.
const DefaultWindow = 10 * time.Second

// Outcome summarises one reconciliation.
type Outcome struct {
	Kept    int // provisional records carried over
	Dropped int // provisional records expired or absorbed by the server
}

// Engine reconciles local and server record sets.
type Engine struct {
	Window time.Duration
	Now    func() time.Time
}

// NewEngine creates an engine. A non-positive window falls back to DefaultWindow.
func NewEngine(window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{Window: window, Now: time.Now}
}

// Reconcile returns the new authoritative record set given the records held
// locally and a fresh server listing.
//
// The server wins for everything it lists, and anything it does not list is
// treated as deleted upstream, except provisional records younger than the
// window whose (student, date) slot the server has not filled. Server records
// come first, then surviving provisional records, each in source order. No
// two records in the result share a (student, date) slot.
func (e *Engine) Reconcile(local, server []model.AttendanceRecord) ([]model.AttendanceRecord, Outcome) {
	now := e.Now().UnixMilli()
	window := e.Window.Milliseconds()

	out := make([]model.AttendanceRecord, 0, len(server))
	seen := make(map[model.Slot]struct{}, len(server))
	for _, r := range server {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}

	var res Outcome
	for _, r := range local {
		if !IsProvisional(r.ID) {
			continue
		}
		if now-r.Timestamp >= window {
			res.Dropped++
			continue
		}
		k := r.Key()
		if _, taken := seen[k]; taken {
			res.Dropped++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
		res.Kept++
	}
	return out, res
}
