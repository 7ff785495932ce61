package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Validation Errors
// =============================================================================

var (
	// ErrNameMissing is returned when a record has an empty name.
	ErrNameMissing = errors.New("record name is empty")

	// ErrNameTooLong is returned when a record name exceeds MaxNameLength.
	ErrNameTooLong = errors.New("record name too long")

	// ErrURIMissing is returned when a record has an empty content URI.
	ErrURIMissing = errors.New("content URI is empty")

	// ErrURITooLong is returned when a content URI exceeds MaxURILength.
	ErrURITooLong = errors.New("content URI too long")

	// ErrURIScheme is returned when a content URI has no recognizable scheme.
	ErrURIScheme = errors.New("content URI must start with http://, https:// or ipfs://")
)

// =============================================================================
// Validation Functions
// =============================================================================

// CheckName validates a record name against the ledger limits.
func CheckName(name string) error {
	if name == "" {
		return ErrNameMissing
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrNameTooLong, len(name), MaxNameLength)
	}
	return nil
}

// CheckURI validates a content URI against the ledger limits.
func CheckURI(uri string) error {
	if uri == "" {
		return ErrURIMissing
	}
	if len(uri) > MaxURILength {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrURITooLong, len(uri), MaxURILength)
	}
	for _, scheme := range []string{"http://", "https://", "ipfs://"} {
		if strings.HasPrefix(uri, scheme) {
			return nil
		}
	}
	return ErrURIScheme
}

// CheckRecord validates both fields of a record, reporting the index
// of the offending record in the returned error.
func CheckRecord(r Record) error {
	if err := CheckName(r.Name); err != nil {
		return fmt.Errorf("record %d: %w", r.Index, err)
	}
	if err := CheckURI(r.URI); err != nil {
		return fmt.Errorf("record %d: %w", r.Index, err)
	}
	return nil
}
