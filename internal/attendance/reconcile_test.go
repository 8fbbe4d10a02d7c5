package attendance

import (
	"math/rand"
	"reflect"
	"strconv"
	"testing"
	"time"

	"absensi/internal/model"
)

var fixedNow = time.UnixMilli(1740800000000)

func testEngine() *Engine {
	e := NewEngine(10 * time.Second)
	e.Now = func() time.Time { return fixedNow }
	return e
}

func rec(id, student, date string, age time.Duration) model.AttendanceRecord {
	return model.AttendanceRecord{
		ID:        id,
		StudentID: student,
		Date:      date,
		Timestamp: fixedNow.Add(-age).UnixMilli(),
		Status:    model.StatusPresent,
	}
}

func ids(rs []model.AttendanceRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestReconcileScenarios(t *testing.T) {
	cases := []struct {
		name   string
		local  []model.AttendanceRecord
		server []model.AttendanceRecord
		want   []string
	}{
		{
			name:  "recent provisional survives",
			local: []model.AttendanceRecord{rec("temp_1", "S1", "2025-03-01", 2*time.Second)},
			want:  []string{"temp_1"},
		},
		{
			name:  "old provisional dropped",
			local: []model.AttendanceRecord{rec("temp_1", "S1", "2025-03-01", 20*time.Second)},
			want:  []string{},
		},
		{
			name:   "absorbed by server",
			local:  []model.AttendanceRecord{rec("temp_1", "S1", "2025-03-01", 2*time.Second)},
			server: []model.AttendanceRecord{rec("srv_9", "S1", "2025-03-01", time.Minute)},
			want:   []string{"srv_9"},
		},
		{
			name: "deleted upstream is not resurrected",
			local: []model.AttendanceRecord{
				rec("rec_1", "S1", "2025-03-01", time.Second),
				rec("srv_2", "S2", "2025-03-01", time.Hour),
			},
			want: []string{},
		},
		{
			name:  "window boundary is exclusive",
			local: []model.AttendanceRecord{rec("temp_1", "S1", "2025-03-01", 10*time.Second)},
			want:  []string{},
		},
		{
			name: "server first then survivors in order",
			local: []model.AttendanceRecord{
				rec("temp_b", "S2", "2025-03-01", time.Second),
				rec("temp_a", "S3", "2025-03-01", 3*time.Second),
			},
			server: []model.AttendanceRecord{
				rec("srv_2", "S9", "2025-03-01", time.Hour),
				rec("srv_1", "S8", "2025-03-01", time.Hour),
			},
			want: []string{"srv_2", "srv_1", "temp_b", "temp_a"},
		},
		{
			name: "duplicate slots collapse to first",
			local: []model.AttendanceRecord{
				rec("temp_1", "S2", "2025-03-01", time.Second),
				rec("temp_2", "S2", "2025-03-01", time.Second),
			},
			server: []model.AttendanceRecord{
				rec("srv_1", "S1", "2025-03-01", time.Hour),
				rec("srv_2", "S1", "2025-03-01", time.Hour),
			},
			want: []string{"srv_1", "temp_1"},
		},
	}
	e := testEngine()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := e.Reconcile(tc.local, tc.server)
			if g := ids(got); !reflect.DeepEqual(g, tc.want) {
				t.Errorf("got %v, want %v", g, tc.want)
			}
		})
	}
}

func TestReconcileOutcome(t *testing.T) {
	local := []model.AttendanceRecord{
		rec("temp_1", "S1", "2025-03-01", time.Second),
		rec("temp_2", "S2", "2025-03-01", time.Second),
		rec("temp_3", "S3", "2025-03-01", time.Minute),
	}
	server := []model.AttendanceRecord{rec("srv_1", "S2", "2025-03-01", time.Hour)}
	_, out := testEngine().Reconcile(local, server)
	if out.Kept != 1 || out.Dropped != 2 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestReconcileSlotsDoNotAliasOnSeparator(t *testing.T) {
	server := []model.AttendanceRecord{rec("srv_1", "S1", "2025-03-01", time.Hour)}
	local := []model.AttendanceRecord{rec("temp_1", "S1_2025-03-01", "", time.Second)}
	got, out := testEngine().Reconcile(local, server)
	if want := []string{"srv_1", "temp_1"}; !reflect.DeepEqual(ids(got), want) || out.Kept != 1 {
		t.Errorf("got %v outcome %+v", ids(got), out)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	e := testEngine()
	server := []model.AttendanceRecord{
		rec("srv_1", "S1", "2025-03-01", time.Hour),
		rec("srv_2", "S2", "2025-03-01", time.Hour),
	}
	local := []model.AttendanceRecord{
		rec("temp_1", "S3", "2025-03-01", time.Second),
		rec("temp_2", "S1", "2025-03-01", time.Second),
	}
	first, _ := e.Reconcile(local, server)
	second, _ := e.Reconcile(first, server)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("not idempotent:\n%v\n%v", ids(first), ids(second))
	}
}

// Randomised check of the slot-uniqueness and window properties.
func TestReconcileProperties(t *testing.T) {
	e := testEngine()
	rnd := rand.New(rand.NewSource(42))
	students := []string{"S1", "S2", "S3", "S4"}
	dates := []string{"2025-03-01", "2025-03-02"}
	prefixes := []string{"temp_", "rec_", "srv_"}

	gen := func(n int, prefixSet []string) []model.AttendanceRecord {
		out := make([]model.AttendanceRecord, 0, n)
		for i := 0; i < n; i++ {
			age := time.Duration(rnd.Intn(30000)) * time.Millisecond
			out = append(out, rec(
				prefixSet[rnd.Intn(len(prefixSet))]+strconv.Itoa(i),
				students[rnd.Intn(len(students))],
				dates[rnd.Intn(len(dates))],
				age,
			))
		}
		return out
	}

	for iter := 0; iter < 200; iter++ {
		local := gen(rnd.Intn(8), prefixes)
		server := gen(rnd.Intn(6), []string{"srv_", "rec_"})
		got, _ := e.Reconcile(local, server)

		slots := map[model.Slot]int{}
		present := map[string]int{}
		for _, r := range got {
			slots[r.Key()]++
			present[r.ID]++
		}
		for k, n := range slots {
			if n > 1 {
				t.Fatalf("iter %d: slot %+v appears %d times", iter, k, n)
			}
		}

		serverSlots := map[model.Slot]bool{}
		for _, r := range server {
			serverSlots[r.Key()] = true
		}
		firstProvisional := map[model.Slot]string{}
		for _, r := range local {
			if !IsProvisional(r.ID) || fixedNow.UnixMilli()-r.Timestamp >= e.Window.Milliseconds() || serverSlots[r.Key()] {
				continue
			}
			if _, ok := firstProvisional[r.Key()]; !ok {
				firstProvisional[r.Key()] = r.ID
			}
		}
		for _, r := range local {
			inServer := false
			for _, s := range server {
				if s.ID == r.ID {
					inServer = true
				}
			}
			if inServer {
				continue
			}
			expired := fixedNow.UnixMilli()-r.Timestamp >= e.Window.Milliseconds()
			if (!IsProvisional(r.ID) || expired) && present[r.ID] > 0 {
				t.Fatalf("iter %d: %s should have been dropped", iter, r.ID)
			}
			if firstProvisional[r.Key()] == r.ID && present[r.ID] != 1 {
				t.Fatalf("iter %d: %s should appear exactly once, got %d", iter, r.ID, present[r.ID])
			}
		}
	}
}
