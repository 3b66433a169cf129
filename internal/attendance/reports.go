package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	unknownUserName      = "Unknown User"
	unregisteredUserName = "Unregistered User"
	noSubjectName        = "No Subject"

	topUsersLimit       = 5
	recentActivityLimit = 10
)

// RecordQuery filters the attendance log. Date is a YYYY-MM-DD calendar day.
type RecordQuery struct {
	Page   int
	Limit  int
	Search string
	Date   string
}

// RecordPage is one page of the attendance log.
type RecordPage struct {
	Records    []Record   `json:"records"`
	Pagination Pagination `json:"pagination"`
}

// DashboardOverview holds the collection totals.
type DashboardOverview struct {
	TotalUsers             int64 `json:"totalUsers"`
	TotalUnregisteredUsers int64 `json:"totalUnregisteredUsers"`
	TotalAttendanceRecords int64 `json:"totalAttendanceRecords"`
}

// AttendanceWindows counts records in the current day, week and month.
type AttendanceWindows struct {
	Today     int64 `json:"today"`
	ThisWeek  int64 `json:"thisWeek"`
	ThisMonth int64 `json:"thisMonth"`
}

// Dashboard is the aggregate view on the admin landing page.
type Dashboard struct {
	Overview       DashboardOverview `json:"overview"`
	Attendance     AttendanceWindows `json:"attendance"`
	TopUsers       []User            `json:"topUsers"`
	RecentActivity []Record          `json:"recentActivity"`
}

// SubjectGroup is a user's records for one subject.
type SubjectGroup struct {
	SubjectID       string   `json:"subjectId"`
	SubjectName     string   `json:"subjectName"`
	CourseCode      string   `json:"courseCode"`
	Instructor      string   `json:"instructor"`
	Records         []Record `json:"records"`
	TotalAttendance int      `json:"totalAttendance"`
}

// UserAttendance is a user's history grouped by subject.
type UserAttendance struct {
	User                User           `json:"user"`
	AttendanceBySubject []SubjectGroup `json:"attendanceBySubject"`
	TotalRecords        int            `json:"totalRecords"`
}

// dayBounds returns local midnight of t's day and the following midnight.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ListRecords returns the attendance log newest first, each row carrying a
// display name.
func (s *Service) ListRecords(ctx context.Context, q RecordQuery) (RecordPage, error) {
	p := Page{Page: q.Page, Limit: q.Limit}.normalize()
	f := RecordFilter{Offset: p.Offset(), Limit: p.Limit}

	if date := strings.TrimSpace(q.Date); date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, s.loc)
		if err != nil {
			return RecordPage{}, validationError("date must be formatted as YYYY-MM-DD")
		}
		from, to := dayBounds(day, s.loc)
		f.From, f.To = &from, &to
	}

	if term := strings.TrimSpace(q.Search); term != "" {
		users, err := s.store.SearchUsers(ctx, term)
		if err != nil {
			return RecordPage{}, fmt.Errorf("search users: %w", err)
		}
		f.Search = term
		for _, u := range users {
			f.UserIDs = append(f.UserIDs, u.ID)
			if u.RFID != "" {
				f.RFIDs = append(f.RFIDs, u.RFID)
			}
			if u.FingerID != "" {
				f.FingerIDs = append(f.FingerIDs, u.FingerID)
			}
		}
	}

	records, total, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return RecordPage{}, fmt.Errorf("list records: %w", err)
	}
	records, err = s.annotate(ctx, records)
	if err != nil {
		return RecordPage{}, err
	}
	return RecordPage{Records: records, Pagination: paginate(p, total)}, nil
}

// annotate fills UserName on records that did not cache one, joining on the
// current users by rfid or fingerprint id.
func (s *Service) annotate(ctx context.Context, records []Record) ([]Record, error) {
	if records == nil {
		return []Record{}, nil
	}

	var rfids, fingerIDs []string
	for _, r := range records {
		if r.UserName != "" {
			continue
		}
		if r.RFID != "" {
			rfids = append(rfids, r.RFID)
		}
		if r.FingerID != "" {
			fingerIDs = append(fingerIDs, r.FingerID)
		}
	}
	if len(rfids) == 0 && len(fingerIDs) == 0 {
		for i := range records {
			if records[i].UserName == "" {
				records[i].UserName = fallbackName(records[i])
			}
		}
		return records, nil
	}

	users, err := s.store.FindUsersByCredentials(ctx, rfids, fingerIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve record names: %w", err)
	}
	byRFID := make(map[string]string, len(users))
	byFinger := make(map[string]string, len(users))
	for _, u := range users {
		if u.RFID != "" {
			byRFID[u.RFID] = u.Name
		}
		if u.FingerID != "" {
			byFinger[u.FingerID] = u.Name
		}
	}

	for i := range records {
		r := &records[i]
		if r.UserName != "" {
			continue
		}
		if name, ok := byRFID[r.RFID]; ok && r.RFID != "" {
			r.UserName = name
		} else if name, ok := byFinger[r.FingerID]; ok && r.FingerID != "" {
			r.UserName = name
		} else {
			r.UserName = fallbackName(*r)
		}
	}
	return records, nil
}

func fallbackName(r Record) string {
	if r.UserID != "" {
		return unknownUserName
	}
	return unregisteredUserName
}

// Dashboard computes totals, calendar window counts, the top users and
// recent activity. Weeks start on Sunday.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	var err error

	if d.Overview.TotalUsers, err = s.store.CountUsers(ctx); err != nil {
		return Dashboard{}, fmt.Errorf("count users: %w", err)
	}
	if d.Overview.TotalUnregisteredUsers, err = s.store.CountUnregistered(ctx); err != nil {
		return Dashboard{}, fmt.Errorf("count unregistered users: %w", err)
	}
	if d.Overview.TotalAttendanceRecords, err = s.store.CountRecords(ctx, RecordFilter{}); err != nil {
		return Dashboard{}, fmt.Errorf("count records: %w", err)
	}

	today, tomorrow := dayBounds(s.now(), s.loc)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)

	if d.Attendance.Today, err = s.store.CountRecords(ctx, RecordFilter{From: &today, To: &tomorrow}); err != nil {
		return Dashboard{}, fmt.Errorf("count today: %w", err)
	}
	if d.Attendance.ThisWeek, err = s.store.CountRecords(ctx, RecordFilter{From: &weekStart}); err != nil {
		return Dashboard{}, fmt.Errorf("count this week: %w", err)
	}
	if d.Attendance.ThisMonth, err = s.store.CountRecords(ctx, RecordFilter{From: &monthStart}); err != nil {
		return Dashboard{}, fmt.Errorf("count this month: %w", err)
	}

	if d.TopUsers, err = s.store.TopUsers(ctx, topUsersLimit); err != nil {
		return Dashboard{}, fmt.Errorf("top users: %w", err)
	}
	if d.TopUsers == nil {
		d.TopUsers = []User{}
	}

	recent, _, err := s.store.ListRecords(ctx, RecordFilter{Limit: recentActivityLimit})
	if err != nil {
		return Dashboard{}, fmt.Errorf("recent activity: %w", err)
	}
	if d.RecentActivity, err = s.annotate(ctx, recent); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// UserAttendance groups a user's records by subject id, in order of each
// subject's most recent record. Records without a subject form a trailing
// "No Subject" group.
func (s *Service) UserAttendance(ctx context.Context, userID string) (UserAttendance, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return UserAttendance{}, err
	}

	records, err := s.store.ListUserRecords(ctx, u.ID, u.RFID, u.FingerID)
	if err != nil {
		return UserAttendance{}, fmt.Errorf("list user records: %w", err)
	}

	groups := []SubjectGroup{}
	index := map[string]int{}
	var loose []Record
	for _, r := range records {
		if r.SubjectID == "" {
			loose = append(loose, r)
			continue
		}
		i, ok := index[r.SubjectID]
		if !ok {
			i = len(groups)
			index[r.SubjectID] = i
			groups = append(groups, SubjectGroup{
				SubjectID:   r.SubjectID,
				SubjectName: r.SubjectName,
				CourseCode:  r.CourseCode,
				Instructor:  r.Instructor,
			})
		}
		groups[i].Records = append(groups[i].Records, r)
		groups[i].TotalAttendance++
	}
	if len(loose) > 0 {
		groups = append(groups, SubjectGroup{
			SubjectName:     noSubjectName,
			Records:         loose,
			TotalAttendance: len(loose),
		})
	}

	return UserAttendance{User: u, AttendanceBySubject: groups, TotalRecords: len(records)}, nil
}
