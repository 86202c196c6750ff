package datastore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxIdentifierLength = 190

// RecordID represents a validated record identifier.
type RecordID string

// NewRecordID validates raw input and returns a RecordID.
func NewRecordID(rawInput string) (RecordID, error) {
	id := RecordID(strings.TrimSpace(rawInput))
	if err := id.validate(); err != nil {
		return "", err
	}
	return id, nil
}

func (id RecordID) validate() error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRecordID)
	}
	if strings.TrimSpace(string(id)) != string(id) {
		return fmt.Errorf("%w: surrounding whitespace in %q", ErrInvalidRecordID, string(id))
	}
	if len(id) > maxIdentifierLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidRecordID, maxIdentifierLength)
	}
	return nil
}

// String returns the underlying string identifier.
func (id RecordID) String() string {
	return string(id)
}

// IDProvider issues transaction identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
