package nport

import "errors"

// ErrNoHoldings is returned when every latest-date filing was fetched
// or skipped without yielding a single holding.
var ErrNoHoldings = errors.New("No holdings found in any latest-date N-PORT filings for this CIK.")

// NotFoundError means the registrant exists but has no qualifying
// N-PORT filings.
type NotFoundError struct {
	Detail string
}

func (e *NotFoundError) Error() string { return e.Detail }

// ParseError means a fetched document could not be parsed at all, as
// opposed to parsing cleanly into zero holdings.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "Failed to parse HTML filing: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }
