package attendance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process. It backs tests and the
// "memory" store backend for local development.
type MemoryRepository struct {
	mu           sync.RWMutex
	users        map[string]User
	unregistered map[string]UnregisteredUser
	subjects     map[string]Subject
	records      []Record
	selection    *SelectedSubject
	now          func() time.Time
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[string]User),
		unregistered: make(map[string]UnregisteredUser),
		subjects:     make(map[string]Subject),
		now:          time.Now,
	}
}

// SetClock replaces the clock used for createdAt/updatedAt stamps.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepository) stamp() time.Time {
	return r.now().UTC()
}

// --- users ---

func (r *MemoryRepository) CreateUser(_ context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.users {
		if userCollides(other, u) {
			return User{}, ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.stamp()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = u
	return u, nil
}

func userCollides(a, b User) bool {
	return (b.RFID != "" && a.RFID == b.RFID) ||
		(b.FingerID != "" && a.FingerID == b.FingerID) ||
		(b.EmployeeID != "" && a.EmployeeID == b.EmployeeID) ||
		(b.Email != "" && a.Email == b.Email)
}

func (r *MemoryRepository) GetUser(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryRepository) FindUser(_ context.Context, m UserMatch) (*User, error) {
	if m.empty() {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	probe := User{RFID: m.RFID, FingerID: m.FingerID, EmployeeID: m.EmployeeID, Email: m.Email}
	for _, u := range r.sortedUsers(byCreatedDesc) {
		if u.ID != m.ExcludeID && userCollides(u, probe) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindUsersByCredentials(_ context.Context, rfids, fingerIDs []string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[string]bool, len(rfids))
	for _, v := range rfids {
		want["r:"+v] = true
	}
	for _, v := range fingerIDs {
		want["f:"+v] = true
	}
	var out []User
	for _, u := range r.sortedUsers(byCreatedDesc) {
		if (u.RFID != "" && want["r:"+u.RFID]) || (u.FingerID != "" && want["f:"+u.FingerID]) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *MemoryRepository) SearchUsers(_ context.Context, term string) ([]User, error) {
	term = strings.ToLower(term)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []User
	for _, u := range r.sortedUsers(byCreatedDesc) {
		if containsFold(u.Name, term) || containsFold(u.RFID, term) || containsFold(u.FingerID, term) {
			out = append(out, u)
		}
	}
	return out, nil
}

func containsFold(s, lowerTerm string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerTerm)
}

func (r *MemoryRepository) ListUsers(_ context.Context, offset, limit int) ([]User, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sortedUsers(byCreatedDesc)
	return window(all, offset, limit), int64(len(all)), nil
}

func (r *MemoryRepository) TopUsers(_ context.Context, n int) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sortedUsers(func(a, b User) bool {
		if a.Attendance != b.Attendance {
			return a.Attendance > b.Attendance
		}
		return byCreatedDesc(a, b)
	})
	return window(all, 0, n), nil
}

func (r *MemoryRepository) CountUsers(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

func (r *MemoryRepository) UpdateUser(_ context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[u.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	for id, other := range r.users {
		if id != u.ID && userCollides(other, User{EmployeeID: u.EmployeeID, Email: u.Email}) {
			return User{}, ErrConflict
		}
	}
	current.Name = u.Name
	current.EmployeeID = u.EmployeeID
	current.Email = u.Email
	current.UpdatedAt = r.stamp()
	r.users[u.ID] = current
	return current, nil
}

func (r *MemoryRepository) IncrementAttendance(_ context.Context, id string, delta int) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Attendance += delta
	if u.Attendance < 0 {
		u.Attendance = 0
	}
	u.UpdatedAt = r.stamp()
	r.users[id] = u
	return u, nil
}

func (r *MemoryRepository) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func byCreatedDesc(a, b User) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *MemoryRepository) sortedUsers(less func(a, b User) bool) []User {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// --- unregistered ---

func (r *MemoryRepository) FindUnregistered(_ context.Context, rfid, fingerID string) (*UnregisteredUser, error) {
	if rfid == "" && fingerID == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.sortedUnregistered() {
		if (rfid != "" && u.RFID == rfid) || (fingerID != "" && u.FingerID == fingerID) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) SaveUnregistered(_ context.Context, u UnregisteredUser) (UnregisteredUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.unregistered {
		if id == u.ID {
			continue
		}
		if (u.RFID != "" && other.RFID == u.RFID) || (u.FingerID != "" && other.FingerID == u.FingerID) {
			return UnregisteredUser{}, ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if _, ok := r.unregistered[u.ID]; !ok {
		return UnregisteredUser{}, ErrNotFound
	}
	r.unregistered[u.ID] = u
	return u, nil
}

func (r *MemoryRepository) ListUnregistered(_ context.Context, offset, limit int) ([]UnregisteredUser, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sortedUnregistered()
	return window(all, offset, limit), int64(len(all)), nil
}

func (r *MemoryRepository) CountUnregistered(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.unregistered)), nil
}

func (r *MemoryRepository) DeleteUnregistered(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.unregistered[id]; !ok {
		return ErrNotFound
	}
	delete(r.unregistered, id)
	return nil
}

func (r *MemoryRepository) sortedUnregistered() []UnregisteredUser {
	out := make([]UnregisteredUser, 0, len(r.unregistered))
	for _, u := range r.unregistered {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// --- subjects ---

func (r *MemoryRepository) CreateSubject(_ context.Context, s Subject) (Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.subjects {
		if other.CourseCode == s.CourseCode {
			return Subject{}, ErrConflict
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = r.stamp()
	s.UpdatedAt = s.CreatedAt
	r.subjects[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) GetSubject(_ context.Context, id string) (*Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) FindSubjectByCode(_ context.Context, code, excludeID string) (*Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.subjects {
		if id != excludeID && s.CourseCode == code {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListSubjects(_ context.Context) ([]Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subject, 0, len(r.subjects))
	for _, s := range r.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) UpdateSubject(_ context.Context, s Subject) (Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.subjects[s.ID]
	if !ok {
		return Subject{}, ErrNotFound
	}
	for id, other := range r.subjects {
		if id != s.ID && other.CourseCode == s.CourseCode {
			return Subject{}, ErrConflict
		}
	}
	current.Name = s.Name
	current.CourseCode = s.CourseCode
	current.Instructor = s.Instructor
	current.UpdatedAt = r.stamp()
	r.subjects[s.ID] = current
	return current, nil
}

func (r *MemoryRepository) DeleteSubject(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subjects[id]; !ok {
		return ErrNotFound
	}
	delete(r.subjects, id)
	return nil
}

// --- records ---

func (r *MemoryRepository) InsertRecord(_ context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.stamp()
	}
	if rec.Type == "" {
		rec.Type = RecordTypeCheckIn
	}
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *MemoryRepository) ListRecords(_ context.Context, f RecordFilter) ([]Record, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := r.filterRecords(func(rec Record) bool { return recordMatches(rec, f) })
	return window(matched, f.Offset, f.Limit), int64(len(matched)), nil
}

func (r *MemoryRepository) CountRecords(_ context.Context, f RecordFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, rec := range r.records {
		if recordMatches(rec, f) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListUserRecords(_ context.Context, userID, rfid, fingerID string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterRecords(func(rec Record) bool {
		return (userID != "" && rec.UserID == userID) ||
			(rfid != "" && rec.RFID == rfid) ||
			(fingerID != "" && rec.FingerID == fingerID)
	}), nil
}

// filterRecords returns matching records newest first.
func (r *MemoryRepository) filterRecords(keep func(Record) bool) []Record {
	var out []Record
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func recordMatches(rec Record, f RecordFilter) bool {
	if f.From != nil && rec.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && !rec.Timestamp.Before(*f.To) {
		return false
	}
	if f.Search == "" {
		return true
	}
	term := strings.ToLower(f.Search)
	return containsFold(rec.RFID, term) ||
		containsFold(rec.FingerID, term) ||
		(rec.UserID != "" && contains(f.UserIDs, rec.UserID)) ||
		(rec.RFID != "" && contains(f.RFIDs, rec.RFID)) ||
		(rec.FingerID != "" && contains(f.FingerIDs, rec.FingerID))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// --- selection ---

func (r *MemoryRepository) GetSelection(_ context.Context) (*SelectedSubject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selection == nil {
		return nil, nil
	}
	sel := *r.selection
	return &sel, nil
}

func (r *MemoryRepository) ReplaceSelection(_ context.Context, s SelectedSubject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selection = &s
	return nil
}

func (r *MemoryRepository) ClearSelection(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selection = nil
	return nil
}

// window applies offset and limit; a non-positive limit means no limit.
func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
