package attendance

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// RegisterRequest creates a user, possibly promoting an unregistered credential.
type RegisterRequest struct {
	RFID       string `json:"rfid"`
	FingerID   string `json:"fingerId"`
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId"`
	Email      string `json:"email"`
}

// UpdateUserRequest edits a user's descriptive fields.
type UpdateUserRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmployeeID string `json:"employeeId"`
	Email      string `json:"email"`
}

// UserPage is one page of registered users.
type UserPage struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// UnregisteredPage is one page of unregistered credentials.
type UnregisteredPage struct {
	UnregisteredUsers []UnregisteredUser `json:"unregisteredUsers"`
	Pagination        Pagination         `json:"pagination"`
}

// Directory pairs the registered and unregistered listings.
type Directory struct {
	Users             UserPage         `json:"users"`
	UnregisteredUsers UnregisteredPage `json:"unregisteredUsers"`
}

// RegisterUser creates a user with an attendance of zero. Any unregistered
// entry holding the same rfid or fingerprint id is removed.
func (s *Service) RegisterUser(ctx context.Context, req RegisterRequest) (User, error) {
	req = RegisterRequest{
		RFID:       strings.TrimSpace(req.RFID),
		FingerID:   strings.TrimSpace(req.FingerID),
		Name:       strings.TrimSpace(req.Name),
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		Email:      strings.TrimSpace(req.Email),
	}
	if (req.RFID == "" && req.FingerID == "") || req.Name == "" {
		return User{}, validationError("Either RFID or fingerId, and name are required")
	}

	existing, err := s.store.FindUser(ctx, UserMatch{
		RFID:       req.RFID,
		FingerID:   req.FingerID,
		EmployeeID: req.EmployeeID,
		Email:      req.Email,
	})
	if err != nil {
		return User{}, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return User{}, duplicateUser(*existing, req.RFID, req.FingerID, req.EmployeeID, req.Email)
	}

	pending, err := s.pendingEntries(ctx, NewCredential(req.RFID, req.FingerID))
	if err != nil {
		return User{}, err
	}

	u, err := s.store.CreateUser(ctx, User{
		RFID:       req.RFID,
		FingerID:   req.FingerID,
		Name:       req.Name,
		EmployeeID: req.EmployeeID,
		Email:      req.Email,
	})
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}

	for _, p := range pending {
		if err := s.store.DeleteUnregistered(ctx, p.ID); err != nil {
			log.Printf("attendance: remove promoted credential %s: %v", p.ID, err)
		}
	}
	return u, nil
}

// duplicateUser reports which unique field collided, in rfid, fingerId,
// employeeId, email order.
func duplicateUser(existing User, rfid, fingerID, employeeID, email string) error {
	switch {
	case rfid != "" && existing.RFID == rfid:
		return conflict("rfid", "User with this RFID already exists")
	case fingerID != "" && existing.FingerID == fingerID:
		return conflict("fingerId", "User with this fingerId already exists")
	case employeeID != "" && existing.EmployeeID == employeeID:
		return conflict("employeeId", "User with this Employee ID already exists")
	case email != "" && existing.Email == email:
		return conflict("email", "User with this email already exists")
	default:
		return conflict("", "User already exists")
	}
}

// UpdateUser changes name, employee id and email.
func (s *Service) UpdateUser(ctx context.Context, req UpdateUserRequest) (User, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.Email = strings.TrimSpace(req.Email)
	if req.ID == "" || req.Name == "" {
		return User{}, validationError("id and name are required")
	}

	current, err := s.store.GetUser(ctx, req.ID)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if current == nil {
		return User{}, notFound("User")
	}

	if req.EmployeeID != "" || req.Email != "" {
		other, err := s.store.FindUser(ctx, UserMatch{EmployeeID: req.EmployeeID, Email: req.Email, ExcludeID: req.ID})
		if err != nil {
			return User{}, fmt.Errorf("check existing user: %w", err)
		}
		if other != nil {
			return User{}, duplicateUser(*other, "", "", req.EmployeeID, req.Email)
		}
	}

	current.Name = req.Name
	current.EmployeeID = req.EmployeeID
	current.Email = req.Email
	updated, err := s.store.UpdateUser(ctx, *current)
	if err != nil {
		return User{}, mapNotFound(err, "User")
	}
	return updated, nil
}

// DeleteUser removes a user. Their attendance records stay in the log.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationError("User ID is required")
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return mapNotFound(err, "User")
	}
	return nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return User{}, notFound("User")
	}
	return *u, nil
}

// ListUsers returns the same page of registered (newest first) and
// unregistered (most recently seen first) users.
func (s *Service) ListUsers(ctx context.Context, p Page) (Directory, error) {
	p = p.normalize()
	users, total, err := s.store.ListUsers(ctx, p.Offset(), p.Limit)
	if err != nil {
		return Directory{}, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	unregistered, err := s.ListUnregistered(ctx, p)
	if err != nil {
		return Directory{}, err
	}
	return Directory{
		Users:             UserPage{Users: users, Pagination: paginate(p, total)},
		UnregisteredUsers: unregistered,
	}, nil
}

// ListUnregistered returns a page of unregistered credentials, most recently seen first.
func (s *Service) ListUnregistered(ctx context.Context, p Page) (UnregisteredPage, error) {
	p = p.normalize()
	items, total, err := s.store.ListUnregistered(ctx, p.Offset(), p.Limit)
	if err != nil {
		return UnregisteredPage{}, fmt.Errorf("list unregistered users: %w", err)
	}
	if items == nil {
		items = []UnregisteredUser{}
	}
	return UnregisteredPage{UnregisteredUsers: items, Pagination: paginate(p, total)}, nil
}

// DeleteUnregistered dismisses an unregistered credential.
func (s *Service) DeleteUnregistered(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationError("Unregistered user ID is required")
	}
	if err := s.store.DeleteUnregistered(ctx, id); err != nil {
		return mapNotFound(err, "Unregistered user")
	}
	return nil
}
