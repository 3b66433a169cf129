package attendance

import (
	"context"
	"time"
)

// UserMatch selects users having any of the non-empty fields. ExcludeID
// skips one user, which lets updates check uniqueness against the others.
type UserMatch struct {
	RFID       string
	FingerID   string
	EmployeeID string
	Email      string
	ExcludeID  string
}

func (m UserMatch) empty() bool {
	return m.RFID == "" && m.FingerID == "" && m.EmployeeID == "" && m.Email == ""
}

// RecordFilter narrows a record listing. From is inclusive and To exclusive.
// When Search is set a record matches if its own rfid/fingerId contains
// Search, or if its user id or identifiers are in the given sets.
type RecordFilter struct {
	From      *time.Time
	To        *time.Time
	Search    string
	UserIDs   []string
	RFIDs     []string
	FingerIDs []string
	Offset    int
	Limit     int
}

// Store persists users, unregistered credentials, subjects and records.
// Lookups return (nil, nil) when nothing matches; updates and deletes of a
// missing row return ErrNotFound. Unique violations surface as ErrConflict.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	FindUser(ctx context.Context, m UserMatch) (*User, error)
	FindUsersByCredentials(ctx context.Context, rfids, fingerIDs []string) ([]User, error)
	SearchUsers(ctx context.Context, term string) ([]User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]User, int64, error)
	TopUsers(ctx context.Context, n int) ([]User, error)
	CountUsers(ctx context.Context) (int64, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	IncrementAttendance(ctx context.Context, id string, delta int) (User, error)
	DeleteUser(ctx context.Context, id string) error

	FindUnregistered(ctx context.Context, rfid, fingerID string) (*UnregisteredUser, error)
	SaveUnregistered(ctx context.Context, u UnregisteredUser) (UnregisteredUser, error)
	ListUnregistered(ctx context.Context, offset, limit int) ([]UnregisteredUser, int64, error)
	CountUnregistered(ctx context.Context) (int64, error)
	DeleteUnregistered(ctx context.Context, id string) error

	CreateSubject(ctx context.Context, s Subject) (Subject, error)
	GetSubject(ctx context.Context, id string) (*Subject, error)
	FindSubjectByCode(ctx context.Context, code, excludeID string) (*Subject, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	UpdateSubject(ctx context.Context, s Subject) (Subject, error)
	DeleteSubject(ctx context.Context, id string) error

	InsertRecord(ctx context.Context, r Record) (Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, int64, error)
	CountRecords(ctx context.Context, f RecordFilter) (int64, error)
	ListUserRecords(ctx context.Context, userID, rfid, fingerID string) ([]Record, error)
}

// SelectionStore holds the single "currently selected subject" slot.
// Replace overwrites the slot in one write.
type SelectionStore interface {
	GetSelection(ctx context.Context) (*SelectedSubject, error)
	ReplaceSelection(ctx context.Context, s SelectedSubject) error
	ClearSelection(ctx context.Context) error
}
