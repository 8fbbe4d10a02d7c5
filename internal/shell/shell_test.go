package shell

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"absensi/internal/model"
	"absensi/internal/outbox"
	"absensi/internal/sheetclient"
)

// fakeSheet is an in-memory spreadsheet. Writes land in its state and the
// next FetchAll lists them.
type fakeSheet struct {
	mu       sync.Mutex
	students []model.Student
	teachers []model.Teacher
	records  []model.AttendanceRecord
	config   model.SchoolConfig

	fetchErr error
	writeErr error
	gate     chan struct{} // when set, FetchAll blocks until closed
	fetching chan struct{} // signalled when FetchAll starts
	fetches  int
	added    []model.AttendanceRecord
	deleted  []string
	saved    int
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{
		students: []model.Student{
			{ID: "1129", ClassName: "IX A", Name: "ABEL AULIA", Gender: "P"},
			{ID: "1132", ClassName: "IX A", Name: "ADITYA", Gender: "L"},
		},
		teachers: []model.Teacher{{ID: "t1", Name: "Dra. Sri Hayati"}},
		config:   model.SchoolConfig{AcademicYear: "2025/2026", Semester: model.SemesterGenap},
	}
}

func (f *fakeSheet) FetchAll(ctx context.Context) (*sheetclient.Dataset, error) {
	f.mu.Lock()
	gate, fetching := f.gate, f.fetching
	f.fetches++
	f.mu.Unlock()
	if fetching != nil {
		fetching <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &sheetclient.Dataset{
		Students:   append([]model.Student{}, f.students...),
		Teachers:   append([]model.Teacher{}, f.teachers...),
		Attendance: append([]model.AttendanceRecord{}, f.records...),
		Config:     f.config,
		Holidays:   []model.Holiday{},
	}, nil
}

func (f *fakeSheet) AddAttendance(_ context.Context, rec model.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, rec)
	if f.writeErr != nil {
		return f.writeErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeSheet) DeleteAttendance(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if f.writeErr != nil {
		return f.writeErr
	}
	out := f.records[:0]
	for _, r := range f.records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	f.records = out
	return nil
}

func (f *fakeSheet) UpdateAttendanceStatus(_ context.Context, id string, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Status = status
		}
	}
	return nil
}

func (f *fakeSheet) SaveStudents(_ context.Context, s []model.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	f.students = append([]model.Student{}, s...)
	return f.writeErr
}

func (f *fakeSheet) SaveTeachers(_ context.Context, t []model.Teacher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return f.writeErr
}

func (f *fakeSheet) SaveHolidays(_ context.Context, h []model.Holiday) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return f.writeErr
}

func (f *fakeSheet) SaveConfig(_ context.Context, c model.SchoolConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	f.config = c
	return f.writeErr
}

var testNow = time.Date(2025, 3, 1, 7, 0, 0, 0, time.Local)

func newTestShell(f *fakeSheet, q outbox.Queue) *Shell {
	return New(f, Options{
		Window: 10 * time.Second,
		Outbox: q,
		Now:    func() time.Time { return testNow },
	})
}

func TestSyncLoadsEverything(t *testing.T) {
	f := newFakeSheet()
	f.records = []model.AttendanceRecord{{ID: "srv_1", StudentID: "1129", Date: "2025-02-28"}}
	s := newTestShell(f, nil)

	if s.Snapshot().Config != model.DefaultConfig {
		t.Errorf("initial config = %+v", s.Snapshot().Config)
	}
	res, err := s.Sync(context.Background(), Foreground)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Message == "" || res.Records != 1 {
		t.Errorf("result = %+v", res)
	}
	st := s.Snapshot()
	if !st.Loaded || len(st.Students) != 2 || len(st.Teachers) != 1 || st.Config.Semester != model.SemesterGenap {
		t.Errorf("state = %+v", st)
	}
}

func TestSyncFailureKeepsState(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, nil)
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()

	f.fetchErr = errors.New("dial tcp: timeout")
	_, err := s.Sync(context.Background(), Foreground)
	var notice *Notice
	if !errors.As(err, &notice) || notice.Message == "" || !errors.Is(err, f.fetchErr) {
		t.Fatalf("foreground err = %v", err)
	}
	_, err = s.Sync(context.Background(), Silent)
	if err == nil || errors.As(err, &notice) {
		t.Fatalf("silent err = %v", err)
	}
	if after := s.Snapshot(); len(after.Students) != len(before.Students) || !after.SyncedAt.Equal(before.SyncedAt) {
		t.Errorf("state changed on failure")
	}
}

func TestOverlappingSyncDropped(t *testing.T) {
	f := newFakeSheet()
	f.gate = make(chan struct{})
	f.fetching = make(chan struct{}, 1)
	s := newTestShell(f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background(), Silent)
		done <- err
	}()
	<-f.fetching

	if _, err := s.Sync(context.Background(), Foreground); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second sync err = %v", err)
	}

	// A record created while the fetch is in flight must survive it.
	s.AddLocal(model.AttendanceRecord{ID: "temp_x", StudentID: "1132", Date: "2025-03-01", Timestamp: testNow.UnixMilli()})

	close(f.gate)
	if err := <-done; err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if got := s.Snapshot().Records; len(got) != 1 || got[0].ID != "temp_x" {
		t.Errorf("records = %+v", got)
	}
	if f.fetches != 1 {
		t.Errorf("fetches = %d", f.fetches)
	}
}

func TestRecordAttendance(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, nil)
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}

	rec, err := s.RecordAttendance(context.Background(), "1129", "Dra. Sri Hayati", "")
	if err != nil {
		t.Fatalf("RecordAttendance: %v", err)
	}
	if !strings.HasPrefix(rec.ID, "temp_") || rec.StudentName != "ABEL AULIA" || rec.Date != "2025-03-01" {
		t.Errorf("local record = %+v", rec)
	}
	if len(f.added) != 1 || !strings.HasPrefix(f.added[0].ID, "rec_") {
		t.Fatalf("remote writes = %+v", f.added)
	}

	s.Wait()
	got := s.Snapshot().Records
	if len(got) != 1 || got[0].ID != f.added[0].ID {
		t.Errorf("after re-sync records = %+v", got)
	}

	if _, err := s.RecordAttendance(context.Background(), "1129", "Dra. Sri Hayati", model.StatusHaid); !errors.Is(err, ErrAlreadyRecorded) {
		t.Errorf("second mark err = %v", err)
	}
	if _, err := s.RecordAttendance(context.Background(), "9999", "x", ""); !errors.Is(err, ErrUnknownStudent) {
		t.Errorf("unknown student err = %v", err)
	}
	if _, err := s.RecordAttendance(context.Background(), "1132", "x", "ALPHA"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bad status err = %v", err)
	}
}

func TestRecordAttendanceWriteFailure(t *testing.T) {
	f := newFakeSheet()
	q := outbox.NewInMemory(4)
	s := newTestShell(f, q)
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}

	f.writeErr = sheetclient.ErrRejected
	rec, err := s.RecordAttendance(context.Background(), "1132", "guru", model.StatusPresent)
	if !errors.Is(err, sheetclient.ErrRejected) {
		t.Fatalf("err = %v", err)
	}
	s.Wait()

	// Not rolled back: still inside the window and the server has nothing for the slot.
	if got := s.Snapshot().Records; len(got) != 1 || got[0].ID != rec.ID {
		t.Errorf("records = %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, _ := q.Consume(ctx)
	select {
	case m := <-msgs:
		if m.Action != sheetclient.ActionAddAttendance {
			t.Errorf("outbox action = %s", m.Action)
		}
	case <-ctx.Done():
		t.Fatal("nothing published to outbox")
	}
}

func TestDeleteRecord(t *testing.T) {
	f := newFakeSheet()
	f.records = []model.AttendanceRecord{{ID: "srv_1", StudentID: "1129", Date: "2025-03-01"}}
	s := newTestShell(f, nil)
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRecord(context.Background(), "srv_1"); err != nil {
		t.Fatal(err)
	}
	if len(s.Snapshot().Records) != 0 {
		t.Error("record still visible after delete")
	}
	s.Wait()
	if len(s.Snapshot().Records) != 0 || len(f.deleted) != 1 {
		t.Errorf("records = %+v deleted = %v", s.Snapshot().Records, f.deleted)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFakeSheet()
	f.records = []model.AttendanceRecord{{ID: "srv_1", StudentID: "1129", Date: "2025-03-01", Status: model.StatusPresent}}
	s := newTestShell(f, nil)

	if err := s.UpdateStatus(context.Background(), "srv_1", model.StatusHaid); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	if got := s.Snapshot().Records; len(got) != 1 || got[0].Status != model.StatusHaid {
		t.Errorf("records = %+v", got)
	}
	if err := s.UpdateStatus(context.Background(), "srv_1", "SICK"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v", err)
	}
}

func TestSaveStudentsValidates(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, nil)

	err := s.SaveStudents(context.Background(), []model.Student{{ID: "1", Name: "A", ClassName: "IX A"}, {ID: "1", Name: "B", ClassName: "IX B"}})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate err = %v", err)
	}
	if err := s.SaveStudents(context.Background(), []model.Student{{ID: "2", ClassName: "IX A"}}); err == nil {
		t.Error("missing name accepted")
	}
	if f.saved != 0 {
		t.Errorf("invalid roster reached the sheet")
	}

	roster := []model.Student{{ID: "7", Name: "C", ClassName: "VII A", Gender: "L"}}
	if err := s.SaveStudents(context.Background(), roster); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Students; len(got) != 1 || got[0].ID != "7" {
		t.Errorf("students = %+v", got)
	}
}

func TestSaveConfigAndHolidays(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, nil)

	if err := s.SaveConfig(context.Background(), model.SchoolConfig{AcademicYear: "2026/2027", Semester: "TRIMESTER"}); err == nil {
		t.Error("unknown semester accepted")
	}
	cfg := model.SchoolConfig{AcademicYear: "2026/2027", Semester: model.SemesterGenap}
	if err := s.SaveConfig(context.Background(), cfg); err != nil || s.Snapshot().Config != cfg {
		t.Errorf("SaveConfig: %v %+v", err, s.Snapshot().Config)
	}

	in := []model.Holiday{{ID: "h1", Date: "17/08/2025", Name: "HUT RI"}}
	if err := s.SaveHolidays(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Holidays[0].Date; got != "2025-08-17" {
		t.Errorf("holiday date = %q", got)
	}
	if in[0].Date != "17/08/2025" {
		t.Error("caller slice modified")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := newTestShell(newFakeSheet(), nil)
	s.AddLocal(model.AttendanceRecord{ID: "temp_1"})
	snap := s.Snapshot()
	snap.Records[0].ID = "changed"
	if s.Snapshot().Records[0].ID != "temp_1" {
		t.Error("snapshot aliases shell state")
	}
	if s.RemoveLocal("nope") {
		t.Error("RemoveLocal reported removal of missing id")
	}
}

func TestStartAutosync(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, nil)

	if _, err := s.StartAutosync("every now and then"); err == nil {
		t.Error("bad schedule accepted")
	}
	stop, err := s.StartAutosync("@every 1s")
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for !s.Snapshot().Loaded && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	stop()
	if !s.Snapshot().Loaded {
		t.Error("autosync never ran")
	}
}

func TestDeleteRightAfterRecord(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, nil)
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}

	local, err := s.RecordAttendance(context.Background(), "1129", "guru", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRecord(context.Background(), local.ID); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	if len(f.deleted) != 1 || f.deleted[0] != f.added[0].ID {
		t.Errorf("deleted on sheet = %v, written = %s", f.deleted, f.added[0].ID)
	}
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Records; len(got) != 0 {
		t.Errorf("records after delete and sync = %+v", got)
	}
}

func TestDeleteNotUndoneByListing(t *testing.T) {
	f := newFakeSheet()
	q := outbox.NewInMemory(4)
	s := newTestShell(f, q)
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}
	local, err := s.RecordAttendance(context.Background(), "1132", "guru", "")
	if err != nil {
		t.Fatal(err)
	}
	s.Wait()

	// The sheet still lists the record because the delete never lands.
	f.writeErr = errors.New("offline")
	if err := s.DeleteRecord(context.Background(), local.ID); err == nil {
		t.Fatal("want delete error")
	}
	s.Wait()
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Records; len(got) != 0 {
		t.Errorf("deleted record came back: %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, _ := q.Consume(ctx)
	select {
	case m := <-msgs:
		if m.Action != sheetclient.ActionDeleteAttendance || !strings.Contains(string(m.Payload), f.added[0].ID) {
			t.Errorf("outbox message = %s %s", m.Action, m.Payload)
		}
	case <-ctx.Done():
		t.Fatal("nothing published to outbox")
	}
}

func TestUpdateStatusOfProvisionalRecord(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, nil)
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}
	local, err := s.RecordAttendance(context.Background(), "1129", "guru", model.StatusPresent)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(context.Background(), local.ID, model.StatusHaid); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}
	got := s.Snapshot().Records
	if len(got) != 1 || got[0].ID != f.added[0].ID || got[0].Status != model.StatusHaid {
		t.Errorf("records = %+v", got)
	}
}

func TestFullOutboxDoesNotBlock(t *testing.T) {
	f := newFakeSheet()
	s := newTestShell(f, outbox.NewInMemory(0))
	if _, err := s.Sync(context.Background(), Silent); err != nil {
		t.Fatal(err)
	}
	f.writeErr = sheetclient.ErrRejected

	done := make(chan error, 1)
	go func() {
		_, err := s.RecordAttendance(context.Background(), "1129", "guru", "")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, sheetclient.ErrRejected) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RecordAttendance blocked on a full outbox")
	}
	s.Wait()
}
