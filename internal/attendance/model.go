package attendance

import (
	"math"
	"time"
)

// RecordTypeCheckIn is the only record type ever written.
const RecordTypeCheckIn = "check-in"

// User is a registered person identified by an RFID tag and/or a fingerprint id.
type User struct {
	ID         string    `json:"id" bson:"_id"`
	RFID       string    `json:"rfid,omitempty" bson:"rfid,omitempty"`
	FingerID   string    `json:"fingerId,omitempty" bson:"fingerId,omitempty"`
	Name       string    `json:"name" bson:"name"`
	EmployeeID string    `json:"employeeId,omitempty" bson:"employeeId,omitempty"`
	Email      string    `json:"email,omitempty" bson:"email,omitempty"`
	Attendance int       `json:"attendance" bson:"attendance"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UnregisteredUser is a credential seen by a device but not linked to a User yet.
type UnregisteredUser struct {
	ID           string    `json:"id" bson:"_id"`
	RFID         string    `json:"rfid,omitempty" bson:"rfid,omitempty"`
	FingerID     string    `json:"fingerId,omitempty" bson:"fingerId,omitempty"`
	LastSeen     time.Time `json:"lastSeen" bson:"lastSeen"`
	ScannedCount int       `json:"scannedCount" bson:"scannedCount"`
}

// Subject is a course that scans can be attributed to.
type Subject struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	CourseCode string    `json:"courseCode" bson:"courseCode"`
	Instructor string    `json:"instructor" bson:"instructor"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// SelectedSubject is the snapshot of the subject currently being attended.
// Fields are copied at selection time and never follow later subject edits.
type SelectedSubject struct {
	SubjectID   string    `json:"subjectId" bson:"subjectId"`
	SubjectName string    `json:"subjectName" bson:"subjectName"`
	CourseCode  string    `json:"courseCode" bson:"courseCode"`
	Instructor  string    `json:"instructor" bson:"instructor"`
	SelectedAt  time.Time `json:"selectedAt" bson:"selectedAt"`
}

// Record is an immutable attendance log entry for one scan.
type Record struct {
	ID          string    `json:"id" bson:"_id"`
	RFID        string    `json:"rfid,omitempty" bson:"rfid,omitempty"`
	FingerID    string    `json:"fingerId,omitempty" bson:"fingerId,omitempty"`
	UserID      string    `json:"userId,omitempty" bson:"userId,omitempty"`
	UserName    string    `json:"userName,omitempty" bson:"userName,omitempty"`
	SubjectID   string    `json:"subjectId,omitempty" bson:"subjectId,omitempty"`
	SubjectName string    `json:"subjectName,omitempty" bson:"subjectName,omitempty"`
	CourseCode  string    `json:"courseCode,omitempty" bson:"courseCode,omitempty"`
	Instructor  string    `json:"instructor,omitempty" bson:"instructor,omitempty"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	Type        string    `json:"type" bson:"type"`
}

// withSubject copies the selection snapshot onto the record.
func (r Record) withSubject(sel *SelectedSubject) Record {
	if sel == nil {
		return r
	}
	r.SubjectID = sel.SubjectID
	r.SubjectName = sel.SubjectName
	r.CourseCode = sel.CourseCode
	r.Instructor = sel.Instructor
	return r
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100

	// maxPage keeps Offset within int32 range on every platform.
	maxPage = math.MaxInt32 / maxPageSize
)

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination describes the slice of a listing that was returned.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func paginate(p Page, total int64) Pagination {
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}
