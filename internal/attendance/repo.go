package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	rfid        TEXT UNIQUE,
	finger_id   TEXT UNIQUE,
	name        TEXT NOT NULL,
	employee_id TEXT UNIQUE,
	email       TEXT UNIQUE,
	attendance  INTEGER NOT NULL DEFAULT 0 CHECK (attendance >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (rfid IS NOT NULL OR finger_id IS NOT NULL)
);

CREATE TABLE IF NOT EXISTS unregistered_users (
	id            TEXT PRIMARY KEY,
	rfid          TEXT UNIQUE,
	finger_id     TEXT UNIQUE,
	last_seen     TIMESTAMPTZ NOT NULL,
	scanned_count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS subjects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	course_code TEXT NOT NULL UNIQUE,
	instructor  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS selected_subject (
	slot         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (slot = 1),
	subject_id   TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	course_code  TEXT NOT NULL,
	instructor   TEXT NOT NULL,
	selected_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id           TEXT PRIMARY KEY,
	rfid         TEXT NOT NULL DEFAULT '',
	finger_id    TEXT NOT NULL DEFAULT '',
	user_id      TEXT NOT NULL DEFAULT '',
	user_name    TEXT NOT NULL DEFAULT '',
	subject_id   TEXT NOT NULL DEFAULT '',
	subject_name TEXT NOT NULL DEFAULT '',
	course_code  TEXT NOT NULL DEFAULT '',
	instructor   TEXT NOT NULL DEFAULT '',
	occurred_at  TIMESTAMPTZ NOT NULL,
	type         TEXT NOT NULL DEFAULT 'check-in' CHECK (type IN ('check-in', 'check-out')),
	CHECK (rfid <> '' OR finger_id <> '')
);

CREATE INDEX IF NOT EXISTS idx_records_occurred ON attendance_records (occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_user ON attendance_records (user_id);
CREATE INDEX IF NOT EXISTS idx_records_rfid ON attendance_records (rfid);
CREATE INDEX IF NOT EXISTS idx_records_finger ON attendance_records (finger_id);
`

// Migrate creates the tables and indexes if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

const userColumns = `id, rfid, finger_id, name, employee_id, email, attendance, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var rfid, finger, employee, email sql.NullString
	if err := row.Scan(&u.ID, &rfid, &finger, &u.Name, &employee, &email, &u.Attendance, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.RFID, u.FingerID, u.EmployeeID, u.Email = rfid.String, finger.String, employee.String, email.String
	return u, nil
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r *Repository) queryUser(ctx context.Context, query string, args ...any) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user with a fresh id.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, rfid, finger_id, name, employee_id, email, attendance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		u.ID, nullable(u.RFID), nullable(u.FingerID), u.Name, nullable(u.EmployeeID), nullable(u.Email), u.Attendance)
	created, err := scanUser(row)
	if err != nil {
		return User{}, mapPgErr(err)
	}
	return created, nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	return r.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindUser returns the first user matching any non-empty field of m.
func (r *Repository) FindUser(ctx context.Context, m UserMatch) (*User, error) {
	if m.empty() {
		return nil, nil
	}
	var q query
	var or []string
	for col, val := range map[string]string{"rfid": m.RFID, "finger_id": m.FingerID, "employee_id": m.EmployeeID, "email": m.Email} {
		if val != "" {
			or = append(or, col+" = "+q.arg(val))
		}
	}
	q.where("(" + strings.Join(or, " OR ") + ")")
	if m.ExcludeID != "" {
		q.where("id <> " + q.arg(m.ExcludeID))
	}
	return r.queryUser(ctx, `SELECT `+userColumns+` FROM users`+q.clause()+` ORDER BY created_at DESC LIMIT 1`, q.args...)
}

// FindUsersByCredentials returns users holding any of the given identifiers.
func (r *Repository) FindUsersByCredentials(ctx context.Context, rfids, fingerIDs []string) ([]User, error) {
	return r.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE rfid = ANY($1) OR finger_id = ANY($2)
	`, nonNil(rfids), nonNil(fingerIDs))
}

// SearchUsers matches name, rfid or fingerprint id case-insensitively.
func (r *Repository) SearchUsers(ctx context.Context, term string) ([]User, error) {
	return r.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE name ILIKE $1 OR rfid ILIKE $1 OR finger_id ILIKE $1
		ORDER BY created_at DESC
	`, likePattern(term))
}

// ListUsers returns a page of users, newest first, and the total count.
func (r *Repository) ListUsers(ctx context.Context, offset, limit int) ([]User, int64, error) {
	users, err := r.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limitOrAll(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.CountUsers(ctx)
	return users, total, err
}

// TopUsers returns the n users with the highest attendance.
func (r *Repository) TopUsers(ctx context.Context, n int) ([]User, error) {
	return r.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY attendance DESC, created_at DESC
		LIMIT $1
	`, n)
}

// CountUsers counts registered users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

// UpdateUser writes name, employee id and email.
func (r *Repository) UpdateUser(ctx context.Context, u User) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, employee_id = $3, email = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Name, nullable(u.EmployeeID), nullable(u.Email))
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, mapPgErr(err)
	}
	return updated, nil
}

// IncrementAttendance adds delta to the counter in a single statement.
func (r *Repository) IncrementAttendance(ctx context.Context, id string, delta int) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET attendance = GREATEST(attendance + $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, delta)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// DeleteUser removes a user.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "users", id)
}

// --- unregistered ---

func scanUnregistered(row rowScanner) (UnregisteredUser, error) {
	var u UnregisteredUser
	var rfid, finger sql.NullString
	if err := row.Scan(&u.ID, &rfid, &finger, &u.LastSeen, &u.ScannedCount); err != nil {
		return UnregisteredUser{}, err
	}
	u.RFID, u.FingerID = rfid.String, finger.String
	return u, nil
}

// FindUnregistered returns the unregistered entry holding either identifier.
func (r *Repository) FindUnregistered(ctx context.Context, rfid, fingerID string) (*UnregisteredUser, error) {
	if rfid == "" && fingerID == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, rfid, finger_id, last_seen, scanned_count
		FROM unregistered_users
		WHERE ($1 <> '' AND rfid = $1) OR ($2 <> '' AND finger_id = $2)
		ORDER BY last_seen DESC
		LIMIT 1
	`, rfid, fingerID)
	u, err := scanUnregistered(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SaveUnregistered inserts a new entry or overwrites an existing one.
func (r *Repository) SaveUnregistered(ctx context.Context, u UnregisteredUser) (UnregisteredUser, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO unregistered_users (id, rfid, finger_id, last_seen, scanned_count)
			VALUES ($1, $2, $3, $4, $5)
		`, u.ID, nullable(u.RFID), nullable(u.FingerID), u.LastSeen, u.ScannedCount)
		return u, mapPgErr(err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE unregistered_users
		SET rfid = $2, finger_id = $3, last_seen = $4, scanned_count = $5
		WHERE id = $1
	`, u.ID, nullable(u.RFID), nullable(u.FingerID), u.LastSeen, u.ScannedCount)
	if err != nil {
		return UnregisteredUser{}, mapPgErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return UnregisteredUser{}, ErrNotFound
	}
	return u, nil
}

// ListUnregistered returns a page of entries, most recently seen first.
func (r *Repository) ListUnregistered(ctx context.Context, offset, limit int) ([]UnregisteredUser, int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rfid, finger_id, last_seen, scanned_count
		FROM unregistered_users
		ORDER BY last_seen DESC, id
		LIMIT $1 OFFSET $2
	`, limitOrAll(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []UnregisteredUser
	for rows.Next() {
		u, err := scanUnregistered(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	total, err := r.CountUnregistered(ctx)
	return res, total, err
}

// CountUnregistered counts unregistered entries.
func (r *Repository) CountUnregistered(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM unregistered_users`)
}

// DeleteUnregistered removes an entry.
func (r *Repository) DeleteUnregistered(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "unregistered_users", id)
}

// --- subjects ---

const subjectColumns = `id, name, course_code, instructor, created_at, updated_at`

func scanSubject(row rowScanner) (Subject, error) {
	var s Subject
	err := row.Scan(&s.ID, &s.Name, &s.CourseCode, &s.Instructor, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *Repository) querySubject(ctx context.Context, query string, args ...any) (*Subject, error) {
	s, err := scanSubject(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CreateSubject inserts a subject.
func (r *Repository) CreateSubject(ctx context.Context, s Subject) (Subject, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	created, err := scanSubject(r.db.QueryRowContext(ctx, `
		INSERT INTO subjects (id, name, course_code, instructor)
		VALUES ($1, $2, $3, $4)
		RETURNING `+subjectColumns, s.ID, s.Name, s.CourseCode, s.Instructor))
	if err != nil {
		return Subject{}, mapPgErr(err)
	}
	return created, nil
}

// GetSubject returns a subject by id.
func (r *Repository) GetSubject(ctx context.Context, id string) (*Subject, error) {
	return r.querySubject(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
}

// FindSubjectByCode returns another subject using the course code.
func (r *Repository) FindSubjectByCode(ctx context.Context, code, excludeID string) (*Subject, error) {
	return r.querySubject(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE course_code = $1 AND id <> $2`, code, excludeID)
}

// ListSubjects returns every subject, newest first.
func (r *Repository) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateSubject writes every editable field.
func (r *Repository) UpdateSubject(ctx context.Context, s Subject) (Subject, error) {
	updated, err := scanSubject(r.db.QueryRowContext(ctx, `
		UPDATE subjects
		SET name = $2, course_code = $3, instructor = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subjectColumns, s.ID, s.Name, s.CourseCode, s.Instructor))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, mapPgErr(err)
	}
	return updated, nil
}

// DeleteSubject removes a subject. Records keep their snapshot columns.
func (r *Repository) DeleteSubject(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "subjects", id)
}

// --- records ---

const recordColumns = `id, rfid, finger_id, user_id, user_name, subject_id, subject_name, course_code, instructor, occurred_at, type`

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.RFID, &rec.FingerID, &rec.UserID, &rec.UserName,
		&rec.SubjectID, &rec.SubjectName, &rec.CourseCode, &rec.Instructor, &rec.Timestamp, &rec.Type)
	return rec, err
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// InsertRecord appends a record.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Type == "" {
		rec.Type = RecordTypeCheckIn
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.RFID, rec.FingerID, rec.UserID, rec.UserName,
		rec.SubjectID, rec.SubjectName, rec.CourseCode, rec.Instructor, rec.Timestamp, rec.Type)
	if err != nil {
		return Record{}, mapPgErr(err)
	}
	return rec, nil
}

func recordWhere(f RecordFilter) query {
	var q query
	if f.From != nil {
		q.where("occurred_at >= " + q.arg(*f.From))
	}
	if f.To != nil {
		q.where("occurred_at < " + q.arg(*f.To))
	}
	if f.Search != "" {
		like := q.arg(likePattern(f.Search))
		q.where("(rfid ILIKE " + like +
			" OR finger_id ILIKE " + like +
			" OR (user_id <> '' AND user_id = ANY(" + q.arg(nonNil(f.UserIDs)) + "))" +
			" OR (rfid <> '' AND rfid = ANY(" + q.arg(nonNil(f.RFIDs)) + "))" +
			" OR (finger_id <> '' AND finger_id = ANY(" + q.arg(nonNil(f.FingerIDs)) + ")))")
	}
	return q
}

// ListRecords returns matching records newest first and the total match count.
func (r *Repository) ListRecords(ctx context.Context, f RecordFilter) ([]Record, int64, error) {
	q := recordWhere(f)
	page := `SELECT ` + recordColumns + ` FROM attendance_records` + q.clause() +
		` ORDER BY occurred_at DESC, id LIMIT ` + q.arg(limitOrAll(f.Limit)) + ` OFFSET ` + q.arg(f.Offset)
	records, err := r.queryRecords(ctx, page, q.args...)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.CountRecords(ctx, f)
	return records, total, err
}

// CountRecords counts matching records.
func (r *Repository) CountRecords(ctx context.Context, f RecordFilter) (int64, error) {
	q := recordWhere(f)
	return r.count(ctx, `SELECT COUNT(*) FROM attendance_records`+q.clause(), q.args...)
}

// ListUserRecords returns records tied to the user by id or identifier, newest first.
func (r *Repository) ListUserRecords(ctx context.Context, userID, rfid, fingerID string) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE ($1 <> '' AND user_id = $1) OR ($2 <> '' AND rfid = $2) OR ($3 <> '' AND finger_id = $3)
		ORDER BY occurred_at DESC, id
	`, userID, rfid, fingerID)
}

// --- selection ---

// GetSelection reads the selection slot.
func (r *Repository) GetSelection(ctx context.Context) (*SelectedSubject, error) {
	var s SelectedSubject
	err := r.db.QueryRowContext(ctx, `
		SELECT subject_id, subject_name, course_code, instructor, selected_at
		FROM selected_subject WHERE slot = 1
	`).Scan(&s.SubjectID, &s.SubjectName, &s.CourseCode, &s.Instructor, &s.SelectedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ReplaceSelection overwrites the slot with a single upsert.
func (r *Repository) ReplaceSelection(ctx context.Context, s SelectedSubject) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO selected_subject (slot, subject_id, subject_name, course_code, instructor, selected_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (slot) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			subject_name = EXCLUDED.subject_name,
			course_code = EXCLUDED.course_code,
			instructor = EXCLUDED.instructor,
			selected_at = EXCLUDED.selected_at
	`, s.SubjectID, s.SubjectName, s.CourseCode, s.Instructor, s.SelectedAt)
	return err
}

// ClearSelection empties the slot.
func (r *Repository) ClearSelection(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM selected_subject`)
	return err
}

// --- helpers ---

func (r *Repository) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// deleteByID deletes one row; table is always a package constant.
func (r *Repository) deleteByID(ctx context.Context, table, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// query accumulates WHERE clauses with numbered placeholders.
type query struct {
	clauses []string
	args    []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *query) where(clause string) {
	q.clauses = append(q.clauses, clause)
}

func (q *query) clause() string {
	if len(q.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.clauses, " AND ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// limitOrAll maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
