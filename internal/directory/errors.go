package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/dn"
	"github.com/choplin/dirsim/internal/filter"
)

var (
	// ErrMalformedIdentifier reports a DN or GUID that cannot be parsed.
	ErrMalformedIdentifier = dn.ErrMalformed
	// ErrAmbiguousFilterComposition reports a structurally invalid filter.
	ErrAmbiguousFilterComposition = filter.ErrAmbiguousComposition
	// ErrUnsupportedFilter reports a filter form that cannot be translated.
	ErrUnsupportedFilter = filter.ErrUnsupported
	// ErrStorageUnavailable reports a failure of the backing store.
	ErrStorageUnavailable = database.ErrStorageUnavailable

	// ErrMissingObjectClass is returned when an insert carries no value for
	// any structural attribute.
	ErrMissingObjectClass = errors.New("missing object class")
	// ErrAlreadyExists is returned when a live object already holds the DN
	// (or GUID) an insert or rename wants.
	ErrAlreadyExists = errors.New("entry already exists")
	// ErrInvalidModification reports a modification without an attribute
	// or with an unknown operation.
	ErrInvalidModification = errors.New("invalid modification")
	// ErrInvalidRename reports a rename that would move an entry below
	// itself.
	ErrInvalidRename = errors.New("invalid rename")
	// ErrVirtualAttributeSyncFailed is matched by every *SyncError.
	ErrVirtualAttributeSyncFailed = errors.New("virtual attribute sync failed")
)

// SyncError is returned alongside a successful primary write when keeping
// virtual attributes consistent failed. The primary write stays committed.
type SyncError struct {
	Op  string
	DN  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s after %s of %q: %v", ErrVirtualAttributeSyncFailed, e.Op, e.DN, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{ErrVirtualAttributeSyncFailed, e.Err}
}

var domainErrors = []error{
	ErrMalformedIdentifier,
	ErrAmbiguousFilterComposition,
	ErrUnsupportedFilter,
	ErrStorageUnavailable,
	ErrMissingObjectClass,
	ErrAlreadyExists,
	ErrInvalidModification,
	ErrInvalidRename,
	context.Canceled,
	context.DeadlineExceeded,
}

// storageError classifies anything that is not already a domain error as a
// storage failure.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
