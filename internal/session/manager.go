package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"absensi/internal/model"
)

// StorageKey prefixes every persisted session record.
const StorageKey = "smpn3pacet_auth_session"

// record is the persisted shape.
type record struct {
	Username    string         `json:"username"`
	Role        Role           `json:"role"`
	StudentData *model.Student `json:"studentData,omitempty"`
}

// Manager signs users in and out and restores them on reload. The selected
// view lives in memory only, so a reload returns to the initial view.
type Manager struct {
	Store Store
	Log   *zap.Logger

	mu    sync.Mutex
	views map[string]View
}

func NewManager(store Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{Store: store, Log: log, views: make(map[string]View)}
}

// Key returns the storage key of session sid.
func Key(sid string) string { return StorageKey + ":" + sid }

// Login persists the identity and returns the signed-in state with the
// initial view for its role.
func (m *Manager) Login(ctx context.Context, sid, username string, role Role, student *model.Student) (State, error) {
	id, err := NewIdentity(username, role, student)
	if err != nil {
		return unauthenticated(), err
	}
	rec := record{Username: username, Role: role}
	if p, ok := id.(Parent); ok {
		st := p.Student
		rec.StudentData = &st
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return unauthenticated(), err
	}
	if err := m.Store.Set(ctx, Key(sid), b); err != nil {
		return unauthenticated(), fmt.Errorf("persist session: %w", err)
	}
	view := InitialView(id)
	m.setView(sid, view)
	return State{Identity: id, View: view}, nil
}

// Restore reads the persisted session. A missing or unreadable entry yields
// the signed-out state; an unreadable one is also deleted.
func (m *Manager) Restore(ctx context.Context, sid string) State {
	if sid == "" {
		return unauthenticated()
	}
	b, err := m.Store.Get(ctx, Key(sid))
	if errors.Is(err, ErrNotFound) {
		return unauthenticated()
	}
	if err != nil {
		m.Log.Warn("session store read failed", zap.String("sid", sid), zap.Error(err))
		return unauthenticated()
	}
	id, err := decode(b)
	if err != nil {
		m.Log.Warn("discarding corrupt session", zap.String("sid", sid), zap.Error(err))
		if derr := m.Store.Delete(ctx, Key(sid)); derr != nil {
			m.Log.Warn("session delete failed", zap.String("sid", sid), zap.Error(derr))
		}
		m.clearView(sid)
		return unauthenticated()
	}
	return State{Identity: id, View: m.view(sid, id)}
}

// Logout removes the persisted session and returns the signed-out state.
func (m *Manager) Logout(ctx context.Context, sid string) State {
	if err := m.Store.Delete(ctx, Key(sid)); err != nil {
		m.Log.Warn("session delete failed", zap.String("sid", sid), zap.Error(err))
	}
	m.clearView(sid)
	return unauthenticated()
}

// ErrForbiddenView is returned when the role may not open a view.
var ErrForbiddenView = errors.New("view not available for role")

// SelectView switches the current view of a signed-in session.
func (m *Manager) SelectView(st State, sid string, v View) (State, error) {
	if !st.Authenticated() || !CanView(st.Identity, v) {
		return st, ErrForbiddenView
	}
	m.setView(sid, v)
	st.View = v
	return st, nil
}

func decode(b []byte) (Identity, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return NewIdentity(rec.Username, rec.Role, rec.StudentData)
}

func (m *Manager) view(sid string, id Identity) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.views[sid]; ok && CanView(id, v) {
		return v
	}
	return InitialView(id)
}

func (m *Manager) setView(sid string, v View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[sid] = v
}

func (m *Manager) clearView(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.views, sid)
}
