// Package handler exposes the shell and the session manager as a JSON API
// for the browser front-end.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"absensi/internal/auth"
	"absensi/internal/session"
	"absensi/internal/shell"
)

// Tokens configures session token issuing.
type Tokens struct {
	SigningKey string
	Issuer     string
	TTL        time.Duration
	Secure     bool // cookie only sent over HTTPS
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) bool

type Handler struct {
	shell    *shell.Shell
	sessions *session.Manager
	admin    auth.Admin
	tokens   Tokens
	checks   map[string]Check
	log      *zap.Logger
	now      func() time.Time
}

func New(sh *shell.Shell, sessions *session.Manager, admin auth.Admin, tokens Tokens, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if tokens.TTL <= 0 {
		tokens.TTL = 24 * time.Hour
	}
	return &Handler{
		shell:    sh,
		sessions: sessions,
		admin:    admin,
		tokens:   tokens,
		checks:   make(map[string]Check),
		log:      log,
		now:      time.Now,
	}
}

// AddCheck registers a dependency reported by /healthz.
func (h *Handler) AddCheck(name string, c Check) { h.checks[name] = c }

// Routes mounts the API on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1", auth.Sessions(h.sessions, h.tokens.SigningKey, h.tokens.Issuer))
	v1.POST("/login", h.Login)
	v1.POST("/logout", h.Logout)
	v1.GET("/session", h.Session)

	signedIn := v1.Group("", auth.RequireRole())
	signedIn.GET("/state", h.State)
	signedIn.PUT("/view", h.SelectView)
	signedIn.POST("/sync", h.Sync)
	signedIn.GET("/reports", h.Report)
	signedIn.GET("/reports/export", h.ExportReport)

	signedIn.POST("/attendance", auth.RequireRole(session.RoleTeacher), h.RecordAttendance)
	staff := signedIn.Group("/attendance", auth.RequireRole(session.RoleTeacher, session.RoleAdmin))
	staff.DELETE("/:id", h.DeleteAttendance)
	staff.PATCH("/:id", h.UpdateAttendance)

	admin := signedIn.Group("", auth.RequireRole(session.RoleAdmin))
	admin.PUT("/students", h.SaveStudents)
	admin.PUT("/teachers", h.SaveTeachers)
	admin.PUT("/holidays", h.SaveHolidays)
	admin.PUT("/config", h.SaveConfig)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "loaded": h.shell.Snapshot().Loaded}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
