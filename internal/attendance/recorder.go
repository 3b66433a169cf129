package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ScanRequest is one credential read submitted by a device. Time is the raw
// device timestamp and may be empty.
type ScanRequest struct {
	RFID     string `json:"rfid,omitempty"`
	FingerID string `json:"fingerId,omitempty"`
	Time     string `json:"time,omitempty"`
}

// ScanOutcome names the branch a scan took.
type ScanOutcome string

const (
	ScanRegistered   ScanOutcome = "registered"
	ScanUnregistered ScanOutcome = "unregistered"
	ScanMerged       ScanOutcome = "merged"
)

// UserSummary is the part of a user echoed back to the device.
type UserSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId,omitempty"`
	Attendance int    `json:"attendance"`
}

// UnregisteredSummary is the part of an unregistered credential echoed back to the device.
type UnregisteredSummary struct {
	RFID         string    `json:"rfid,omitempty"`
	FingerID     string    `json:"fingerId,omitempty"`
	ScannedCount int       `json:"scannedCount"`
	LastSeen     time.Time `json:"lastSeen"`
}

// ScanResult describes what a scan changed.
type ScanResult struct {
	Outcome      ScanOutcome
	User         *UserSummary
	Unregistered *UnregisteredSummary
	Record       *Record
	Subject      *SelectedSubject
	Timestamp    time.Time
}

// RecordScan applies one scan event. Every call counts: a registered user's
// attendance goes up by one and a record is appended, an unknown credential
// is tracked as unregistered, and a scan carrying both identifiers that
// match no user is folded into the pending unregistered entry without a record.
func (s *Service) RecordScan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	cred := NewCredential(req.RFID, req.FingerID)
	if cred.Kind() == CredentialNone {
		return ScanResult{}, validationError("either rfid or fingerId is required")
	}

	when, err := ParseScanTime(req.Time, s.loc)
	if err != nil {
		return ScanResult{}, err
	}
	if when.IsZero() {
		when = s.now().UTC()
	}

	sel, err := s.selection.GetSelection(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("load selected subject: %w", err)
	}

	user, err := s.Resolve(ctx, cred)
	if err != nil {
		return ScanResult{}, err
	}

	switch {
	case user != nil:
		return s.recordRegistered(ctx, *user, when, sel)
	case cred.Kind() == CredentialBoth:
		return s.mergeCredential(ctx, cred, when)
	default:
		return s.recordUnregistered(ctx, cred, when, sel)
	}
}

func (s *Service) recordRegistered(ctx context.Context, u User, when time.Time, sel *SelectedSubject) (ScanResult, error) {
	updated, err := s.store.IncrementAttendance(ctx, u.ID, 1)
	if err != nil {
		return ScanResult{}, fmt.Errorf("increment attendance: %w", err)
	}

	rec := Record{
		RFID:      updated.RFID,
		FingerID:  updated.FingerID,
		UserID:    updated.ID,
		UserName:  updated.Name,
		Timestamp: when,
		Type:      RecordTypeCheckIn,
	}.withSubject(sel)
	rec, err = s.store.InsertRecord(ctx, rec)
	if err != nil {
		// Undo the increment so the counter keeps matching the log.
		if _, cerr := s.store.IncrementAttendance(context.WithoutCancel(ctx), updated.ID, -1); cerr != nil {
			log.Printf("attendance: counter for user %s left at %d after record insert failed: %v", updated.ID, updated.Attendance, cerr)
		}
		return ScanResult{}, fmt.Errorf("insert attendance record: %w", err)
	}

	return ScanResult{
		Outcome: ScanRegistered,
		User: &UserSummary{
			ID:         updated.ID,
			Name:       updated.Name,
			EmployeeID: updated.EmployeeID,
			Attendance: updated.Attendance,
		},
		Record:    &rec,
		Subject:   sel,
		Timestamp: rec.Timestamp,
	}, nil
}

func (s *Service) recordUnregistered(ctx context.Context, cred Credential, when time.Time, sel *SelectedSubject) (ScanResult, error) {
	uu, err := s.touchUnregistered(ctx, cred, when)
	if err != nil {
		return ScanResult{}, err
	}

	rec := Record{
		RFID:      cred.RFID,
		FingerID:  cred.FingerID,
		Timestamp: when,
		Type:      RecordTypeCheckIn,
	}.withSubject(sel)
	rec, err = s.store.InsertRecord(ctx, rec)
	if err != nil {
		return ScanResult{}, fmt.Errorf("insert attendance record: %w", err)
	}

	return ScanResult{
		Outcome:      ScanUnregistered,
		Unregistered: summarizeUnregistered(uu),
		Record:       &rec,
		Subject:      sel,
		Timestamp:    rec.Timestamp,
	}, nil
}

func (s *Service) mergeCredential(ctx context.Context, cred Credential, when time.Time) (ScanResult, error) {
	uu, err := s.touchUnregistered(ctx, cred, when)
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{
		Outcome:      ScanMerged,
		Unregistered: summarizeUnregistered(uu),
		Timestamp:    when,
	}, nil
}

// touchUnregistered finds or creates the unregistered entry for cred, fills
// in an identifier it was missing, bumps the scan count and moves last-seen
// forward.
// When the rfid and the fingerprint id sit on two separate entries, the
// second is folded into the first.
func (s *Service) touchUnregistered(ctx context.Context, cred Credential, when time.Time) (UnregisteredUser, error) {
	entries, err := s.pendingEntries(ctx, cred)
	if err != nil {
		return UnregisteredUser{}, err
	}

	uu := UnregisteredUser{RFID: cred.RFID, FingerID: cred.FingerID, LastSeen: when, ScannedCount: 1}
	if len(entries) > 0 {
		uu = entries[0]
		for _, other := range entries[1:] {
			if err := s.store.DeleteUnregistered(ctx, other.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return UnregisteredUser{}, fmt.Errorf("fold unregistered credential: %w", err)
			}
			uu.ScannedCount += other.ScannedCount
			if other.LastSeen.After(uu.LastSeen) {
				uu.LastSeen = other.LastSeen
			}
			if uu.RFID == "" {
				uu.RFID = other.RFID
			}
			if uu.FingerID == "" {
				uu.FingerID = other.FingerID
			}
		}
		if uu.RFID == "" {
			uu.RFID = cred.RFID
		}
		if uu.FingerID == "" {
			uu.FingerID = cred.FingerID
		}
		uu.ScannedCount++
		if when.After(uu.LastSeen) {
			uu.LastSeen = when
		}
	}

	saved, err := s.store.SaveUnregistered(ctx, uu)
	if err != nil {
		return UnregisteredUser{}, fmt.Errorf("save unregistered credential: %w", err)
	}
	return saved, nil
}

// pendingEntries looks up the unregistered entries holding cred's rfid and
// fingerprint id, each entry at most once.
func (s *Service) pendingEntries(ctx context.Context, cred Credential) ([]UnregisteredUser, error) {
	var out []UnregisteredUser
	add := func(rfid, fingerID string) error {
		if rfid == "" && fingerID == "" {
			return nil
		}
		u, err := s.store.FindUnregistered(ctx, rfid, fingerID)
		if err != nil {
			return fmt.Errorf("find unregistered credential: %w", err)
		}
		if u == nil {
			return nil
		}
		for _, seen := range out {
			if seen.ID == u.ID {
				return nil
			}
		}
		out = append(out, *u)
		return nil
	}
	if err := add(cred.RFID, ""); err != nil {
		return nil, err
	}
	if err := add("", cred.FingerID); err != nil {
		return nil, err
	}
	return out, nil
}

func summarizeUnregistered(u UnregisteredUser) *UnregisteredSummary {
	return &UnregisteredSummary{
		RFID:         u.RFID,
		FingerID:     u.FingerID,
		ScannedCount: u.ScannedCount,
		LastSeen:     u.LastSeen,
	}
}
