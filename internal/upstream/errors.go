package upstream

import (
	"errors"
	"fmt"
)

// Source identifies which upstream service (and therefore which bearer
// token) a request went to.
type Source string

const (
	// SourceApex is the PO / ancillary item service (token A).
	SourceApex Source = "apex"
	// SourceLoadEntry is the truck summary / driver wallet service (token B).
	SourceLoadEntry Source = "loadentry"
)

// snippetLimit caps the body excerpt kept on MalformedResponseError.
const snippetLimit = 200

// ErrAuthExpired matches any AuthExpiredError via errors.Is.
var ErrAuthExpired = errors.New("upstream authentication expired")

// AuthExpiredError is returned when an upstream answers 401.
type AuthExpiredError struct {
	Source Source
	Path   string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("%s: authentication expired (401) for %s", e.Source, e.Path)
}

// Is makes errors.Is(err, ErrAuthExpired) work.
func (e *AuthExpiredError) Is(target error) bool {
	return target == ErrAuthExpired
}

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Source     Source
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d for %s", e.Source, e.StatusCode, e.Path)
}

// MalformedResponseError is returned when a 2xx body is not valid JSON for
// the expected shape.
type MalformedResponseError struct {
	Source  Source
	Path    string
	Snippet string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response for %s: %v (body: %q)", e.Source, e.Path, e.Err, e.Snippet)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsAuthExpired reports whether err is, or wraps, an authentication expiry.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// ExpiredSource returns the source of the auth expiry wrapped in err, if the
// error carries one.
func ExpiredSource(err error) (Source, bool) {
	var ae *AuthExpiredError
	if errors.As(err, &ae) && ae.Source != "" {
		return ae.Source, true
	}
	return "", false
}

func snippet(body []byte) string {
	if len(body) > snippetLimit {
		body = body[:snippetLimit]
	}
	return string(body)
}
