package resolver

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrRemoteFetch       = errors.New("remote fetch failed")
	ErrParse             = errors.New("structure parse failed")
	ErrSupercellArgument = errors.New("invalid supercell argument")
	ErrHostNotAllowed    = errors.New("host not allowed")
)

// RemoteFetchError reports a failed download of the structure file: either a
// non-success HTTP status or a request that could not complete.
type RemoteFetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: server returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

func (e *RemoteFetchError) Is(target error) bool { return target == ErrRemoteFetch }

// ParseError reports content that does not match the declared format.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing structure as %q: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// SupercellArgumentError reports a supercell value that is not three
// positive integers.
type SupercellArgumentError struct {
	Value  string
	Reason string
}

func (e *SupercellArgumentError) Error() string {
	return fmt.Sprintf("invalid supercell %q: %s", e.Value, e.Reason)
}

func (e *SupercellArgumentError) Is(target error) bool { return target == ErrSupercellArgument }
