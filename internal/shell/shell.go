// Package shell owns the in-memory copy of the school data and is the only
// place it is mutated. Callers get snapshots and named entry points.
package shell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"absensi/internal/attendance"
	"absensi/internal/metrics"
	"absensi/internal/model"
	"absensi/internal/outbox"
	"absensi/internal/sheetclient"
)

// Gateway is the spreadsheet service as seen by the shell.
type Gateway interface {
	FetchAll(ctx context.Context) (*sheetclient.Dataset, error)
	AddAttendance(ctx context.Context, rec model.AttendanceRecord) error
	DeleteAttendance(ctx context.Context, id string) error
	UpdateAttendanceStatus(ctx context.Context, id string, status model.Status) error
	SaveStudents(ctx context.Context, students []model.Student) error
	SaveTeachers(ctx context.Context, teachers []model.Teacher) error
	SaveHolidays(ctx context.Context, holidays []model.Holiday) error
	SaveConfig(ctx context.Context, cfg model.SchoolConfig) error
}

// Mode tells Sync whether a person is waiting on the result.
type Mode int

const (
	Silent Mode = iota
	Foreground
)

func (m Mode) String() string {
	if m == Foreground {
		return "foreground"
	}
	return "silent"
}

var (
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrUnknownStudent  = errors.New("unknown student")
	ErrAlreadyRecorded = errors.New("attendance already recorded for today")
	ErrInvalidStatus   = errors.New("invalid attendance status")
	ErrDuplicateID     = errors.New("duplicate id")
)

// publishTimeout bounds an outbox publish so a slow backend cannot hold the
// request that failed to write.
const publishTimeout = 5 * time.Second

const (
	syncOKMessage   = "Sinkronisasi berhasil. Data terbaru dari spreadsheet telah dimuat."
	syncFailMessage = "Gagal memuat data dari spreadsheet. Cek koneksi internet."
)

// Notice is a sync failure meant to be shown to a person.
type Notice struct {
	Message string
	Err     error
}

func (n *Notice) Error() string { return n.Message }
func (n *Notice) Unwrap() error { return n.Err }

// Result describes a successful sync.
type Result struct {
	Message string
	Records int
	Kept    int
	Dropped int
}

// State is the full data set held by the shell.
type State struct {
	Students []model.Student
	Teachers []model.Teacher
	Records  []model.AttendanceRecord
	Config   model.SchoolConfig
	Holidays []model.Holiday
	Loaded   bool // at least one sync succeeded
	SyncedAt time.Time
}

func (s State) clone() State {
	s.Students = append([]model.Student(nil), s.Students...)
	s.Teachers = append([]model.Teacher(nil), s.Teachers...)
	s.Records = append([]model.AttendanceRecord(nil), s.Records...)
	s.Holidays = append([]model.Holiday(nil), s.Holidays...)
	return s
}

// Options configures a Shell.
type Options struct {
	Window      time.Duration // reconciliation recency window
	SyncTimeout time.Duration // bound for background syncs
	Outbox      outbox.Queue  // failed writes go here; nil disables
	Log         *zap.Logger
	Now         func() time.Time
}

// Shell is the application controller. Network calls run outside the lock;
// every state change is applied under it in one step.
type Shell struct {
	gw          Gateway
	engine      *attendance.Engine
	outbox      outbox.Queue
	log         *zap.Logger
	now         func() time.Time
	syncTimeout time.Duration
	validate    *validator.Validate

	mu      sync.Mutex
	state   State
	syncing atomic.Bool
	bg      sync.WaitGroup

	// submitted maps a provisional id to the id written to the spreadsheet.
	submitted map[string]alias
	// deleted holds ids removed locally, hidden from syncs for one window so
	// a listing fetched before the delete cannot bring them back.
	deleted map[string]time.Time
}

type alias struct {
	id string
	at time.Time
}

// aliasTTL covers a school day; records are only ever marked for today.
const aliasTTL = 24 * time.Hour

// New creates a shell with the default configuration and empty collections.
func New(gw Gateway, opts Options) *Shell {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 30 * time.Second
	}
	engine := attendance.NewEngine(opts.Window)
	engine.Now = opts.Now
	return &Shell{
		gw:          gw,
		engine:      engine,
		outbox:      opts.Outbox,
		log:         opts.Log,
		now:         opts.Now,
		syncTimeout: opts.SyncTimeout,
		validate:    validator.New(),
		state:       State{Config: model.DefaultConfig},
		submitted:   make(map[string]alias),
		deleted:     make(map[string]time.Time),
	}
}

// Snapshot returns a copy of the current state.
func (s *Shell) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Sync fetches everything and folds it into the current state. A call made
// while another sync is running is dropped with ErrSyncInProgress. On failure
// the state is left untouched; Foreground failures come back as *Notice.
func (s *Shell) Sync(ctx context.Context, mode Mode) (Result, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		metrics.Syncs.WithLabelValues(mode.String(), "dropped").Inc()
		return Result{}, ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	ds, err := s.gw.FetchAll(ctx)
	if err != nil {
		metrics.Syncs.WithLabelValues(mode.String(), "failed").Inc()
		if mode == Foreground {
			s.log.Error("sync failed", zap.Error(err))
			return Result{}, &Notice{Message: syncFailMessage, Err: err}
		}
		s.log.Warn("background sync failed", zap.Error(err))
		return Result{}, err
	}

	s.mu.Lock()
	records, out := s.engine.Reconcile(s.state.Records, ds.Attendance)
	records = s.dropDeleted(records)
	s.state = State{
		Students: ds.Students,
		Teachers: ds.Teachers,
		Records:  records,
		Config:   ds.Config,
		Holidays: ds.Holidays,
		Loaded:   true,
		SyncedAt: s.now(),
	}
	s.mu.Unlock()

	metrics.Syncs.WithLabelValues(mode.String(), "ok").Inc()
	metrics.ProvisionalKept.Add(float64(out.Kept))
	metrics.ProvisionalDropped.Add(float64(out.Dropped))
	metrics.Records.Set(float64(len(records)))
	s.log.Debug("sync applied",
		zap.Stringer("mode", mode),
		zap.Int("records", len(records)),
		zap.Int("kept", out.Kept),
		zap.Int("dropped", out.Dropped))

	res := Result{Records: len(records), Kept: out.Kept, Dropped: out.Dropped}
	if mode == Foreground {
		res.Message = syncOKMessage
	}
	return res, nil
}

// SyncInBackground starts a sync without waiting for it.
func (s *Shell) SyncInBackground(mode Mode) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		defer cancel()
		_, _ = s.Sync(ctx, mode)
	}()
}

// Wait blocks until background syncs started so far have finished.
func (s *Shell) Wait() { s.bg.Wait() }

// AddLocal inserts records immediately. Ids already present are skipped.
func (s *Shell) AddLocal(records ...model.AttendanceRecord) {
	s.mu.Lock()
	s.state.Records = attendance.AddLocal(s.state.Records, records...)
	n := len(s.state.Records)
	s.mu.Unlock()
	metrics.Records.Set(float64(n))
}

// RemoveLocal drops the record with id if present.
func (s *Shell) RemoveLocal(id string) bool {
	s.mu.Lock()
	records, removed := attendance.RemoveLocal(s.state.Records, id)
	s.state.Records = records
	n := len(records)
	s.mu.Unlock()
	metrics.Records.Set(float64(n))
	return removed
}

// FindStudent looks a student up in the current roster.
func (s *Shell) FindStudent(id string) (model.Student, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.state.Students {
		if st.ID == id {
			return st, true
		}
	}
	return model.Student{}, false
}

// HasTeacher reports whether name is on the teacher roster.
func (s *Shell) HasTeacher(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.Teachers {
		if t.Name == name {
			return true
		}
	}
	return false
}

// RecordAttendance marks a student for today. The provisional record shows up
// at once; the spreadsheet write happens next and a silent sync follows either
// way. A failed write is not rolled back locally. It goes to the outbox and
// the error is returned alongside the local record.
func (s *Shell) RecordAttendance(ctx context.Context, studentID, operator string, status model.Status) (model.AttendanceRecord, error) {
	if status == "" {
		status = model.StatusPresent
	}
	if !status.Valid() {
		return model.AttendanceRecord{}, ErrInvalidStatus
	}
	st, ok := s.FindStudent(studentID)
	if !ok {
		return model.AttendanceRecord{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}

	now := s.now()
	local := attendance.NewProvisional(st, operator, status, now)
	s.mu.Lock()
	for _, r := range s.state.Records {
		if r.Key() == local.Key() {
			s.mu.Unlock()
			return r, ErrAlreadyRecorded
		}
	}
	s.state.Records = attendance.AddLocal(s.state.Records, local)
	s.mu.Unlock()

	submitted := attendance.NewSubmitted(st, operator, status, now)
	s.mu.Lock()
	s.submitted[local.ID] = alias{id: submitted.ID, at: now}
	s.mu.Unlock()
	err := s.gw.AddAttendance(ctx, submitted)
	if err != nil {
		s.enqueue(ctx, outbox.AddMessage(submitted))
	}
	s.SyncInBackground(Silent)
	return local, err
}

// DeleteRecord removes a record locally and on the spreadsheet. A
// provisional id is translated to the id its record was written under.
func (s *Shell) DeleteRecord(ctx context.Context, id string) error {
	remote := s.resolve(id)
	s.mu.Lock()
	now := s.now()
	for _, rid := range []string{id, remote} {
		s.state.Records, _ = attendance.RemoveLocal(s.state.Records, rid)
		s.deleted[rid] = now
	}
	n := len(s.state.Records)
	s.mu.Unlock()
	metrics.Records.Set(float64(n))

	err := s.gw.DeleteAttendance(ctx, remote)
	if err != nil {
		s.enqueue(ctx, outbox.DeleteMessage(remote))
	}
	s.SyncInBackground(Silent)
	return err
}

// UpdateStatus changes a record's status on the spreadsheet and re-syncs.
func (s *Shell) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	remote := s.resolve(id)
	s.mu.Lock()
	for i := range s.state.Records {
		if r := s.state.Records[i].ID; r == id || r == remote {
			s.state.Records[i].Status = status
		}
	}
	s.mu.Unlock()

	err := s.gw.UpdateAttendanceStatus(ctx, remote, status)
	if err != nil {
		s.enqueue(ctx, outbox.StatusMessage(remote, status))
	}
	s.SyncInBackground(Silent)
	return err
}

// SaveStudents replaces the roster locally and on the spreadsheet.
func (s *Shell) SaveStudents(ctx context.Context, students []model.Student) error {
	if err := validateList(s.validate, students, func(st model.Student) string { return st.ID }); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Students = append([]model.Student(nil), students...)
	s.mu.Unlock()
	return s.gw.SaveStudents(ctx, students)
}

// SaveTeachers replaces the teacher list locally and on the spreadsheet.
func (s *Shell) SaveTeachers(ctx context.Context, teachers []model.Teacher) error {
	if err := validateList(s.validate, teachers, func(t model.Teacher) string { return t.ID }); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Teachers = append([]model.Teacher(nil), teachers...)
	s.mu.Unlock()
	return s.gw.SaveTeachers(ctx, teachers)
}

// SaveHolidays replaces the holiday list locally and on the spreadsheet.
func (s *Shell) SaveHolidays(ctx context.Context, holidays []model.Holiday) error {
	holidays = append([]model.Holiday(nil), holidays...)
	for i := range holidays {
		holidays[i].Date = sheetclient.NormalizeDate(holidays[i].Date)
	}
	if err := validateList(s.validate, holidays, func(h model.Holiday) string { return h.ID }); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Holidays = append([]model.Holiday(nil), holidays...)
	s.mu.Unlock()
	return s.gw.SaveHolidays(ctx, holidays)
}

// SaveConfig replaces the school configuration.
func (s *Shell) SaveConfig(ctx context.Context, cfg model.SchoolConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Config = cfg
	s.mu.Unlock()
	return s.gw.SaveConfig(ctx, cfg)
}

// resolve returns the spreadsheet id for id: the submitted id when id is a
// provisional one this shell created, id itself otherwise.
func (s *Shell) resolve(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.submitted[id]; ok {
		return a.id
	}
	return id
}

// dropDeleted filters ids deleted within the window and expires old
// bookkeeping. Callers hold s.mu.
func (s *Shell) dropDeleted(records []model.AttendanceRecord) []model.AttendanceRecord {
	now := s.now()
	for id, at := range s.deleted {
		if now.Sub(at) >= s.engine.Window {
			delete(s.deleted, id)
		}
	}
	for id, a := range s.submitted {
		if now.Sub(a.at) >= aliasTTL {
			delete(s.submitted, id)
		}
	}
	if len(s.deleted) == 0 {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if _, gone := s.deleted[r.ID]; !gone {
			out = append(out, r)
		}
	}
	return out
}

// validateList checks struct tags on every element and that ids are unique.
func validateList[T any](v *validator.Validate, list []T, id func(T) string) error {
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		if err := v.Struct(item); err != nil {
			return err
		}
		k := id(item)
		if seen[k] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, k)
		}
		seen[k] = true
	}
	return nil
}

func (s *Shell) enqueue(ctx context.Context, msg outbox.Message) {
	if s.outbox == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.outbox.Publish(ctx, msg); err != nil {
		s.log.Error("outbox publish failed, write dropped",
			zap.String("action", msg.Action), zap.ByteString("payload", msg.Payload), zap.Error(err))
	}
}
