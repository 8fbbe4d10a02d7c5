package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"absensi/internal/auth"
	"absensi/internal/model"
	"absensi/internal/session"
	"absensi/internal/shell"
)

// queuedMessage accompanies 202 responses for writes that did not reach the
// spreadsheet and were queued for retry.
const queuedMessage = "Gagal menyimpan ke spreadsheet. Data akan dikirim ulang otomatis."

type stateResponse struct {
	sessionResponse
	Students []model.Student          `json:"students"`
	Teachers []model.Teacher          `json:"teachers"`
	Records  []model.AttendanceRecord `json:"records"`
	Config   model.SchoolConfig       `json:"config"`
	Holidays []model.Holiday          `json:"holidays"`
	Loaded   bool                     `json:"loaded"`
	SyncedAt *time.Time               `json:"syncedAt,omitempty"`
}

// State returns the snapshot the caller's role may see. Parents only get
// their own student.
func (h *Handler) State(c *gin.Context) {
	st := auth.Current(c)
	snap := h.shell.Snapshot()
	resp := stateResponse{
		sessionResponse: sessionBody(st),
		Students:        snap.Students,
		Teachers:        snap.Teachers,
		Records:         snap.Records,
		Config:          snap.Config,
		Holidays:        snap.Holidays,
		Loaded:          snap.Loaded,
	}
	if !snap.SyncedAt.IsZero() {
		resp.SyncedAt = &snap.SyncedAt
	}

	switch id := st.Identity.(type) {
	case session.Parent:
		resp.Students = []model.Student{id.Student}
		resp.Teachers = []model.Teacher{}
		resp.Records = recordsOf(snap.Records, id.Student.ID)
	case session.Administrator, session.Teacher:
	}
	if resp.Students == nil {
		resp.Students = []model.Student{}
	}
	if resp.Teachers == nil {
		resp.Teachers = []model.Teacher{}
	}
	if resp.Records == nil {
		resp.Records = []model.AttendanceRecord{}
	}
	if resp.Holidays == nil {
		resp.Holidays = []model.Holiday{}
	}
	c.JSON(http.StatusOK, resp)
}

func recordsOf(records []model.AttendanceRecord, studentID string) []model.AttendanceRecord {
	out := []model.AttendanceRecord{}
	for _, r := range records {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out
}

// Sync runs a foreground sync.
func (h *Handler) Sync(c *gin.Context) {
	res, err := h.shell.Sync(c.Request.Context(), shell.Foreground)
	var notice *shell.Notice
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, shell.ErrSyncInProgress):
		fail(c, http.StatusConflict, err)
	case errors.As(err, &notice):
		c.JSON(http.StatusBadGateway, gin.H{"error": notice.Message})
	default:
		fail(c, http.StatusBadGateway, err)
	}
}

type attendanceRequest struct {
	StudentID string       `json:"studentId" binding:"required"`
	Status    model.Status `json:"status"`
}

// RecordAttendance marks a student for today on behalf of the signed-in
// teacher.
func (h *Handler) RecordAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	operator := auth.Current(c).Identity.Username()
	rec, err := h.shell.RecordAttendance(c.Request.Context(), req.StudentID, operator, req.Status)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, rec)
	case errors.Is(err, shell.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, err)
	case errors.Is(err, shell.ErrUnknownStudent):
		fail(c, http.StatusNotFound, err)
	case errors.Is(err, shell.ErrAlreadyRecorded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "record": rec})
	default:
		h.log.Warn("attendance write failed", zap.String("student", req.StudentID), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"record": rec, "warning": queuedMessage})
	}
}

func (h *Handler) DeleteAttendance(c *gin.Context) {
	id := c.Param("id")
	if err := h.shell.DeleteRecord(c.Request.Context(), id); err != nil {
		h.log.Warn("attendance delete failed", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"id": id, "warning": queuedMessage})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateAttendance(c *gin.Context) {
	var req struct {
		Status model.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	id := c.Param("id")
	err := h.shell.UpdateStatus(c.Request.Context(), id, req.Status)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
	case errors.Is(err, shell.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, err)
	default:
		h.log.Warn("attendance status update failed", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"id": id, "warning": queuedMessage})
	}
}

func (h *Handler) SaveStudents(c *gin.Context) {
	var list []model.Student
	if !bindList(c, &list) {
		return
	}
	h.saved(c, h.shell.SaveStudents(c.Request.Context(), list), len(list))
}

func (h *Handler) SaveTeachers(c *gin.Context) {
	var list []model.Teacher
	if !bindList(c, &list) {
		return
	}
	h.saved(c, h.shell.SaveTeachers(c.Request.Context(), list), len(list))
}

func (h *Handler) SaveHolidays(c *gin.Context) {
	var list []model.Holiday
	if !bindList(c, &list) {
		return
	}
	h.saved(c, h.shell.SaveHolidays(c.Request.Context(), list), len(list))
}

func (h *Handler) SaveConfig(c *gin.Context) {
	var cfg model.SchoolConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	h.saved(c, h.shell.SaveConfig(c.Request.Context(), cfg), 1)
}

func bindList[T any](c *gin.Context, list *[]T) bool {
	if err := c.ShouldBindJSON(list); err != nil {
		fail(c, http.StatusBadRequest, err)
		return false
	}
	if *list == nil {
		*list = []T{}
	}
	return true
}

// saved maps the result of a Save* call. Validation problems are the
// caller's fault; anything else came from the spreadsheet.
func (h *Handler) saved(c *gin.Context, err error, n int) {
	var verr validator.ValidationErrors
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
	case errors.As(err, &verr), errors.Is(err, shell.ErrDuplicateID):
		fail(c, http.StatusBadRequest, err)
	default:
		h.log.Error("save failed", zap.String("path", c.FullPath()), zap.Error(err))
		fail(c, http.StatusBadGateway, err)
	}
}
