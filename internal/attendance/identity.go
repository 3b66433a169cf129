package attendance

import (
	"context"
	"fmt"
	"strings"
)

// CredentialKind tells which identifiers a scan carried.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialRFIDOnly
	CredentialFingerOnly
	CredentialBoth
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialRFIDOnly:
		return "rfid"
	case CredentialFingerOnly:
		return "finger"
	case CredentialBoth:
		return "both"
	default:
		return "none"
	}
}

// Credential is the identifier pair read by a device.
type Credential struct {
	RFID     string
	FingerID string
}

// NewCredential trims both identifiers.
func NewCredential(rfid, fingerID string) Credential {
	return Credential{RFID: strings.TrimSpace(rfid), FingerID: strings.TrimSpace(fingerID)}
}

// Kind classifies the credential.
func (c Credential) Kind() CredentialKind {
	switch {
	case c.RFID != "" && c.FingerID != "":
		return CredentialBoth
	case c.RFID != "":
		return CredentialRFIDOnly
	case c.FingerID != "":
		return CredentialFingerOnly
	default:
		return CredentialNone
	}
}

// Resolve returns the user whose rfid or fingerprint id equals one of the
// credential's identifiers, or nil when nobody matches.
func (s *Service) Resolve(ctx context.Context, c Credential) (*User, error) {
	if c.Kind() == CredentialNone {
		return nil, validationError("either rfid or fingerId is required")
	}
	u, err := s.store.FindUser(ctx, UserMatch{RFID: c.RFID, FingerID: c.FingerID})
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	return u, nil
}
