package attendance

import (
	"context"
	"fmt"
	"strings"
)

// SubjectInput carries the editable subject fields. ID is ignored on create.
type SubjectInput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CourseCode string `json:"courseCode"`
	Instructor string `json:"instructor"`
}

func (in SubjectInput) trimmed() SubjectInput {
	return SubjectInput{
		ID:         strings.TrimSpace(in.ID),
		Name:       strings.TrimSpace(in.Name),
		CourseCode: strings.TrimSpace(in.CourseCode),
		Instructor: strings.TrimSpace(in.Instructor),
	}
}

var errDuplicateCourse = conflict("courseCode", "Subject with this course code already exists")

// CreateSubject adds a subject with a unique course code.
func (s *Service) CreateSubject(ctx context.Context, in SubjectInput) (Subject, error) {
	in = in.trimmed()
	if in.Name == "" || in.CourseCode == "" || in.Instructor == "" {
		return Subject{}, validationError("Name, course code, and instructor are required")
	}

	dup, err := s.store.FindSubjectByCode(ctx, in.CourseCode, "")
	if err != nil {
		return Subject{}, fmt.Errorf("check course code: %w", err)
	}
	if dup != nil {
		return Subject{}, errDuplicateCourse
	}

	subj, err := s.store.CreateSubject(ctx, Subject{Name: in.Name, CourseCode: in.CourseCode, Instructor: in.Instructor})
	if err != nil {
		return Subject{}, fmt.Errorf("create subject: %w", err)
	}
	return subj, nil
}

// UpdateSubject replaces every field of an existing subject. Attendance
// records and the current selection keep the values they captured.
func (s *Service) UpdateSubject(ctx context.Context, in SubjectInput) (Subject, error) {
	in = in.trimmed()
	if in.ID == "" || in.Name == "" || in.CourseCode == "" || in.Instructor == "" {
		return Subject{}, validationError("ID, name, course code, and instructor are required")
	}

	current, err := s.store.GetSubject(ctx, in.ID)
	if err != nil {
		return Subject{}, fmt.Errorf("get subject: %w", err)
	}
	if current == nil {
		return Subject{}, notFound("Subject")
	}

	dup, err := s.store.FindSubjectByCode(ctx, in.CourseCode, in.ID)
	if err != nil {
		return Subject{}, fmt.Errorf("check course code: %w", err)
	}
	if dup != nil {
		return Subject{}, errDuplicateCourse
	}

	current.Name = in.Name
	current.CourseCode = in.CourseCode
	current.Instructor = in.Instructor
	updated, err := s.store.UpdateSubject(ctx, *current)
	if err != nil {
		return Subject{}, mapNotFound(err, "Subject")
	}
	return updated, nil
}

// DeleteSubject removes a subject. Records keep their snapshot; if the
// subject is the current selection the selection is cleared too.
func (s *Service) DeleteSubject(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationError("Subject ID is required")
	}
	if err := s.store.DeleteSubject(ctx, id); err != nil {
		return mapNotFound(err, "Subject")
	}

	sel, err := s.selection.GetSelection(ctx)
	if err != nil {
		return fmt.Errorf("load selected subject: %w", err)
	}
	if sel != nil && sel.SubjectID == id {
		if err := s.selection.ClearSelection(ctx); err != nil {
			return fmt.Errorf("clear selected subject: %w", err)
		}
	}
	return nil
}

// GetSubject returns a subject by id.
func (s *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	subj, err := s.store.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, fmt.Errorf("get subject: %w", err)
	}
	if subj == nil {
		return Subject{}, notFound("Subject")
	}
	return *subj, nil
}

// ListSubjects returns every subject, newest first.
func (s *Service) ListSubjects(ctx context.Context) ([]Subject, error) {
	subjects, err := s.store.ListSubjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	if subjects == nil {
		subjects = []Subject{}
	}
	return subjects, nil
}

// SelectSubject makes the subject the one new scans are attributed to,
// snapshotting its current name, course code and instructor.
func (s *Service) SelectSubject(ctx context.Context, subjectID string) (SelectedSubject, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return SelectedSubject{}, validationError("Subject ID is required")
	}
	subj, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		return SelectedSubject{}, fmt.Errorf("get subject: %w", err)
	}
	if subj == nil {
		return SelectedSubject{}, notFound("Subject")
	}

	sel := SelectedSubject{
		SubjectID:   subj.ID,
		SubjectName: subj.Name,
		CourseCode:  subj.CourseCode,
		Instructor:  subj.Instructor,
		SelectedAt:  s.now().UTC(),
	}
	if err := s.selection.ReplaceSelection(ctx, sel); err != nil {
		return SelectedSubject{}, fmt.Errorf("select subject: %w", err)
	}
	return sel, nil
}

// ClearSelectedSubject empties the selection slot. Clearing an empty slot is not an error.
func (s *Service) ClearSelectedSubject(ctx context.Context) error {
	if err := s.selection.ClearSelection(ctx); err != nil {
		return fmt.Errorf("clear selected subject: %w", err)
	}
	return nil
}

// SelectedSubject returns the current selection or nil.
func (s *Service) SelectedSubject(ctx context.Context) (*SelectedSubject, error) {
	sel, err := s.selection.GetSelection(ctx)
	if err != nil {
		return nil, fmt.Errorf("load selected subject: %w", err)
	}
	return sel, nil
}
