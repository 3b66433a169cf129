package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type backend interface {
	Store
	SelectionStore
}

func TestMemoryRepository_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) backend { return NewMemoryRepository() })
}

func TestPostgresRepository_Contract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runStoreContract(t, func(t *testing.T) backend {
		ctx := context.Background()
		repo := NewRepository(db)
		require.NoError(t, repo.Migrate(ctx))
		_, err := db.ExecContext(ctx, `TRUNCATE users, unregistered_users, subjects, selected_subject, attendance_records`)
		require.NoError(t, err)
		return repo
	})
}

func TestMongoRepository_Contract(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	n := 0
	runStoreContract(t, func(t *testing.T) backend {
		n++
		db := client.Database(fmt.Sprintf("attendance_test_%d_%d", time.Now().UnixNano(), n))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })
		repo := NewMongoRepository(db)
		require.NoError(t, repo.EnsureIndexes(ctx))
		return repo
	})
}

func runStoreContract(t *testing.T, open func(t *testing.T) backend) {
	// Millisecond precision survives every backend.
	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts
	}

	t.Run("users", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		alice, err := s.CreateUser(ctx, User{RFID: "R1", Name: "Alice", Email: "a@x.io"})
		require.NoError(t, err)
		require.NotEmpty(t, alice.ID)
		bob, err := s.CreateUser(ctx, User{FingerID: "F2", Name: "Bob"})
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, User{RFID: "R1", Name: "Dup"})
		assert.True(t, errors.Is(err, ErrConflict), "duplicate rfid: %v", err)
		_, err = s.CreateUser(ctx, User{RFID: "R9", Name: "Dup", Email: "a@x.io"})
		assert.True(t, errors.Is(err, ErrConflict), "duplicate email: %v", err)

		got, err := s.GetUser(ctx, bob.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "F2", got.FingerID)
		assert.Empty(t, got.RFID)

		missing, err := s.GetUser(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		found, err := s.FindUser(ctx, UserMatch{RFID: "zzz", FingerID: "F2"})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, bob.ID, found.ID)

		found, err = s.FindUser(ctx, UserMatch{Email: "a@x.io", ExcludeID: alice.ID})
		require.NoError(t, err)
		assert.Nil(t, found)

		byCred, err := s.FindUsersByCredentials(ctx, []string{"R1"}, []string{"F2"})
		require.NoError(t, err)
		assert.Len(t, byCred, 2)

		hits, err := s.SearchUsers(ctx, "ALI")
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, alice.ID, hits[0].ID)

		users, total, err := s.ListUsers(ctx, 0, 1)
		require.NoError(t, err)
		assert.Len(t, users, 1)
		assert.EqualValues(t, 2, total)

		count, err := s.CountUsers(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)

		alice.Name = "Alice B"
		alice.EmployeeID = "E1"
		updated, err := s.UpdateUser(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "Alice B", updated.Name)
		assert.Equal(t, "R1", updated.RFID)

		_, err = s.UpdateUser(ctx, User{ID: "nope", Name: "x"})
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, s.DeleteUser(ctx, bob.ID))
		assert.True(t, errors.Is(s.DeleteUser(ctx, bob.ID), ErrNotFound))
	})

	t.Run("attendance counter", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		u, err := s.CreateUser(ctx, User{RFID: "R1", Name: "Alice", Attendance: 5})
		require.NoError(t, err)

		u, err = s.IncrementAttendance(ctx, u.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 6, u.Attendance)

		u, err = s.IncrementAttendance(ctx, u.ID, -10)
		require.NoError(t, err)
		assert.Equal(t, 0, u.Attendance, "never negative")

		_, err = s.IncrementAttendance(ctx, "nope", 1)
		assert.True(t, errors.Is(err, ErrNotFound))

		other, err := s.CreateUser(ctx, User{RFID: "R2", Name: "Bob", Attendance: 3})
		require.NoError(t, err)
		top, err := s.TopUsers(ctx, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, other.ID, top[0].ID)
	})

	t.Run("unregistered", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		saved, err := s.SaveUnregistered(ctx, UnregisteredUser{RFID: "X1", LastSeen: at("2024-01-15T10:00:00Z"), ScannedCount: 1})
		require.NoError(t, err)
		require.NotEmpty(t, saved.ID)
		_, err = s.SaveUnregistered(ctx, UnregisteredUser{FingerID: "Y1", LastSeen: at("2024-01-15T11:00:00Z"), ScannedCount: 1})
		require.NoError(t, err)

		found, err := s.FindUnregistered(ctx, "X1", "unknown")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, saved.ID, found.ID)

		found.FingerID = "F1"
		found.ScannedCount++
		_, err = s.SaveUnregistered(ctx, *found)
		require.NoError(t, err)
		again, err := s.FindUnregistered(ctx, "", "F1")
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, 2, again.ScannedCount)
		assert.Equal(t, "X1", again.RFID)

		none, err := s.FindUnregistered(ctx, "", "")
		require.NoError(t, err)
		assert.Nil(t, none)

		list, total, err := s.ListUnregistered(ctx, 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, list, 2)
		assert.Equal(t, "Y1", list[0].FingerID, "most recently seen first")

		require.NoError(t, s.DeleteUnregistered(ctx, saved.ID))
		assert.True(t, errors.Is(s.DeleteUnregistered(ctx, saved.ID), ErrNotFound))
		n, err := s.CountUnregistered(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("subjects", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		math, err := s.CreateSubject(ctx, Subject{Name: "Math", CourseCode: "M101", Instructor: "Dr X"})
		require.NoError(t, err)
		_, err = s.CreateSubject(ctx, Subject{Name: "Again", CourseCode: "M101", Instructor: "Dr Y"})
		assert.True(t, errors.Is(err, ErrConflict))

		dup, err := s.FindSubjectByCode(ctx, "M101", "")
		require.NoError(t, err)
		require.NotNil(t, dup)
		dup, err = s.FindSubjectByCode(ctx, "M101", math.ID)
		require.NoError(t, err)
		assert.Nil(t, dup)

		math.Instructor = "Dr Z"
		updated, err := s.UpdateSubject(ctx, math)
		require.NoError(t, err)
		assert.Equal(t, "Dr Z", updated.Instructor)

		list, err := s.ListSubjects(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.DeleteSubject(ctx, math.ID))
		assert.True(t, errors.Is(s.DeleteSubject(ctx, math.ID), ErrNotFound))
		gone, err := s.GetSubject(ctx, math.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})

	t.Run("records", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, rec := range []Record{
			{RFID: "R1", UserID: "u1", UserName: "Alice", Timestamp: at("2024-01-15T09:00:00Z")},
			{FingerID: "F2", Timestamp: at("2024-01-15T10:00:00Z"), SubjectID: "s1", SubjectName: "Math"},
			{RFID: "R3", Timestamp: at("2024-01-16T09:00:00Z")},
		} {
			_, err := s.InsertRecord(ctx, rec)
			require.NoError(t, err)
		}

		all, total, err := s.ListRecords(ctx, RecordFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, all, 3)
		assert.Equal(t, "R3", all[0].RFID, "newest first")
		assert.Equal(t, RecordTypeCheckIn, all[0].Type)
		assert.Equal(t, "Math", all[1].SubjectName)

		from, to := at("2024-01-15T00:00:00Z"), at("2024-01-16T00:00:00Z")
		day, total, err := s.ListRecords(ctx, RecordFilter{From: &from, To: &to, Limit: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, day, 1)
		assert.Equal(t, "F2", day[0].FingerID)

		search, _, err := s.ListRecords(ctx, RecordFilter{Search: "nomatch", UserIDs: []string{"u1"}})
		require.NoError(t, err)
		require.Len(t, search, 1)
		assert.Equal(t, "R1", search[0].RFID)

		search, _, err = s.ListRecords(ctx, RecordFilter{Search: "r3"})
		require.NoError(t, err)
		require.Len(t, search, 1)

		n, err := s.CountRecords(ctx, RecordFilter{From: &to})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		mine, err := s.ListUserRecords(ctx, "u1", "", "F2")
		require.NoError(t, err)
		assert.Len(t, mine, 2)
	})

	t.Run("selection", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		sel, err := s.GetSelection(ctx)
		require.NoError(t, err)
		assert.Nil(t, sel)

		require.NoError(t, s.ReplaceSelection(ctx, SelectedSubject{SubjectID: "s1", SubjectName: "Math", CourseCode: "M101", Instructor: "Dr X", SelectedAt: at("2024-01-15T08:00:00Z")}))
		require.NoError(t, s.ReplaceSelection(ctx, SelectedSubject{SubjectID: "s2", SubjectName: "Art", CourseCode: "A1", Instructor: "Ms Z", SelectedAt: at("2024-01-15T09:00:00Z")}))

		sel, err = s.GetSelection(ctx)
		require.NoError(t, err)
		require.NotNil(t, sel)
		assert.Equal(t, "s2", sel.SubjectID)
		assert.Equal(t, "Art", sel.SubjectName)

		require.NoError(t, s.ClearSelection(ctx))
		require.NoError(t, s.ClearSelection(ctx))
		sel, err = s.GetSelection(ctx)
		require.NoError(t, err)
		assert.Nil(t, sel)
	})
}
