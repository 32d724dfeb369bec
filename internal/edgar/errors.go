package edgar

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two upstream call types. Metadata errors are
// terminal for a request; document errors may be recoverable per
// filing.
var (
	ErrCIKNotFound         = errors.New("CIK not found in SEC database")
	ErrUpstreamUnavailable = errors.New("SEC API unavailable")
	ErrBlocked             = errors.New("SEC blocked request. Wait and retry")
	ErrTimeout             = errors.New("request timeout")
)

// DocumentUnavailableError is returned when a document fetch comes
// back with an unexpected status. The aggregator treats it as a signal
// to try alternate URL forms.
type DocumentUnavailableError struct {
	StatusCode int
	URL        string
}

func (e *DocumentUnavailableError) Error() string {
	return fmt.Sprintf("could not fetch filing (HTTP %d). Document may not be available", e.StatusCode)
}

// IsDocumentUnavailable reports whether err is a recoverable
// document-unavailable condition.
func IsDocumentUnavailable(err error) bool {
	var du *DocumentUnavailableError
	return errors.As(err, &du)
}
