package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"absensi/internal/auth"
	"absensi/internal/report"
	"absensi/internal/session"
)

func (h *Handler) buildReport(c *gin.Context) (report.Report, bool) {
	var f report.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		fail(c, http.StatusBadRequest, err)
		return report.Report{}, false
	}
	if p, ok := auth.Current(c).Identity.(session.Parent); ok {
		f.StudentID = p.Student.ID
		f.ClassName = ""
	}
	snap := h.shell.Snapshot()
	return report.Build(snap.Students, snap.Records, snap.Holidays, snap.Config, f), true
}

func (h *Handler) Report(c *gin.Context) {
	r, ok := h.buildReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) ExportReport(c *gin.Context) {
	r, ok := h.buildReport(c)
	if !ok {
		return
	}
	c.Header("Content-Type", report.ContentType)
	c.Header("Content-Disposition", "attachment; filename="+report.FileName(h.now()))
	if err := report.WriteXLSX(c.Writer, r); err != nil {
		h.log.Error("report export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write Excel file"})
	}
}
