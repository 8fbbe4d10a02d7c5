package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"absensi/internal/auth"
	"absensi/internal/model"
	"absensi/internal/session"
	"absensi/internal/shell"
)

var (
	errUnknownTeacher = errors.New("teacher not found")
	errUnknownStudent = errors.New("student not found")
)

type loginRequest struct {
	Role      session.Role `json:"role" binding:"required"`
	Username  string       `json:"username"`
	Password  string       `json:"password"`
	StudentID string       `json:"studentId"`
}

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	Username      string         `json:"username,omitempty"`
	Role          session.Role   `json:"role,omitempty"`
	Student       *model.Student `json:"studentData,omitempty"`
	View          session.View   `json:"view"`
	AllowedViews  []session.View `json:"allowedViews"`
	Token         string         `json:"token,omitempty"`
}

func sessionBody(st session.State) sessionResponse {
	resp := sessionResponse{View: st.View, AllowedViews: []session.View{}}
	if !st.Authenticated() {
		return resp
	}
	resp.Authenticated = true
	resp.Username = st.Identity.Username()
	resp.Role = st.Identity.Role()
	resp.AllowedViews = session.AllowedViews(st.Identity)
	if p, ok := st.Identity.(session.Parent); ok {
		s := p.Student
		resp.Student = &s
	}
	return resp
}

// Login checks the credentials for the requested role, persists the session
// and hands back a token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()

	if len(h.shell.Snapshot().Students) == 0 {
		if _, err := h.shell.Sync(ctx, shell.Foreground); err != nil && !errors.Is(err, shell.ErrSyncInProgress) {
			h.log.Warn("login sync failed", zap.Error(err))
		}
	}

	username := req.Username
	var student *model.Student
	switch req.Role {
	case session.RoleAdmin:
		if err := h.admin.Check(req.Username, req.Password); err != nil {
			fail(c, http.StatusUnauthorized, err)
			return
		}
	case session.RoleTeacher:
		if !h.shell.HasTeacher(req.Username) {
			fail(c, http.StatusUnauthorized, errUnknownTeacher)
			return
		}
	case session.RoleParent:
		st, ok := h.shell.FindStudent(req.StudentID)
		if !ok {
			fail(c, http.StatusUnauthorized, errUnknownStudent)
			return
		}
		student = &st
		username = st.Name
	default:
		fail(c, http.StatusBadRequest, session.ErrUnknownRole)
		return
	}

	sid := uuid.NewString()
	st, err := h.sessions.Login(ctx, sid, username, req.Role, student)
	if err != nil {
		h.log.Error("login failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, err)
		return
	}
	token, exp, err := auth.Issue(sid, string(req.Role), h.tokens.Issuer, h.tokens.SigningKey, h.tokens.TTL)
	if err != nil {
		h.log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, int(exp.Sub(h.now()).Seconds()), "/", "", h.tokens.Secure, true)

	h.log.Info("signed in", zap.String("role", string(req.Role)), zap.String("username", username))
	resp := sessionBody(st)
	resp.Token = token
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	st := session.State{View: session.DefaultView}
	if sid := auth.SessionID(c); sid != "" {
		st = h.sessions.Logout(c.Request.Context(), sid)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.tokens.Secure, true)
	c.JSON(http.StatusOK, sessionBody(st))
}

func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, sessionBody(auth.Current(c)))
}

func (h *Handler) SelectView(c *gin.Context) {
	var req struct {
		View session.View `json:"view" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	st, err := h.sessions.SelectView(auth.Current(c), auth.SessionID(c), req.View)
	if err != nil {
		fail(c, http.StatusForbidden, err)
		return
	}
	c.JSON(http.StatusOK, sessionBody(st))
}
