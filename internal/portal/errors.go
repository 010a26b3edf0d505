package portal

import (
	"errors"
	"fmt"
	"strings"
)

// notFoundSignal is the message fragment the remote system uses for items
// that are gone or invisible to the caller. Matching on it is what makes
// repeat deletion attempts idempotent.
const notFoundSignal = "does not exist or is inaccessible"

// ErrItemNotFound marks failures caused by an item that is already absent
// or inaccessible.
var ErrItemNotFound = errors.New("item does not exist or is inaccessible")

// RemoteError is a failure reported by the remote content API.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error: %s", e.Message)
}

// Unwrap lets errors.Is recognize already-absent failures without string
// matching at call sites.
func (e *RemoteError) Unwrap() error {
	if strings.Contains(e.Message, notFoundSignal) {
		return ErrItemNotFound
	}
	return nil
}

// IsItemNotFound reports whether the error means the item was already
// absent or inaccessible.
func IsItemNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
