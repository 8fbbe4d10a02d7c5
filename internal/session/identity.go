// Package session keeps who is signed in across page reloads. It is a
// convenience for the UI, not a security boundary.
package session

import (
	"errors"
	"fmt"

	"absensi/internal/model"
)

// Role is the persisted role name.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleParent  Role = "PARENT"
)

// View is a top-level screen of the front-end.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewScan      View = "scan"
	ViewStudents  View = "students"
	ViewTeachers  View = "teachers"
	ViewSettings  View = "settings"
	ViewReports   View = "reports"
)

// DefaultView is selected when nobody is signed in.
const DefaultView = ViewDashboard

var (
	ErrUnknownRole = errors.New("unknown role")
	ErrNoStudent   = errors.New("parent session requires a student")
)

// Identity is one of Administrator, Teacher or Parent.
type Identity interface {
	Username() string
	Role() Role
	isIdentity()
}

type Administrator struct{ Name string }

type Teacher struct{ Name string }

// Parent is bound to the one student whose report they may see.
type Parent struct {
	Name    string
	Student model.Student
}

func (a Administrator) Username() string { return a.Name }
func (a Administrator) Role() Role       { return RoleAdmin }
func (Administrator) isIdentity()        {}

func (t Teacher) Username() string { return t.Name }
func (t Teacher) Role() Role       { return RoleTeacher }
func (Teacher) isIdentity()        {}

func (p Parent) Username() string { return p.Name }
func (p Parent) Role() Role       { return RoleParent }
func (Parent) isIdentity()        {}

// NewIdentity builds the variant for role. student is required for parents
// and ignored otherwise.
func NewIdentity(username string, role Role, student *model.Student) (Identity, error) {
	switch role {
	case RoleAdmin:
		return Administrator{Name: username}, nil
	case RoleTeacher:
		return Teacher{Name: username}, nil
	case RoleParent:
		if student == nil {
			return nil, ErrNoStudent
		}
		return Parent{Name: username, Student: *student}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// InitialView is the screen shown right after sign-in.
func InitialView(id Identity) View {
	switch id.(type) {
	case Parent:
		return ViewReports
	case Administrator, Teacher:
		return ViewDashboard
	default:
		return DefaultView
	}
}

// AllowedViews lists the screens the identity may open, in navigation order.
func AllowedViews(id Identity) []View {
	switch id.(type) {
	case Administrator:
		return []View{ViewDashboard, ViewStudents, ViewTeachers, ViewSettings, ViewReports}
	case Teacher:
		return []View{ViewDashboard, ViewScan, ViewReports}
	case Parent:
		return []View{ViewReports}
	default:
		return nil
	}
}

// CanView reports whether v is one of AllowedViews(id).
func CanView(id Identity, v View) bool {
	for _, allowed := range AllowedViews(id) {
		if allowed == v {
			return true
		}
	}
	return false
}

// State is the authentication axis of the shell.
type State struct {
	Identity Identity // nil when signed out
	View     View
}

// Authenticated reports whether someone is signed in.
func (s State) Authenticated() bool { return s.Identity != nil }

func unauthenticated() State { return State{View: DefaultView} }
