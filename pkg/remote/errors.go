package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrConflict matches any *Error reporting that the resource already exists.
var ErrConflict = errors.New("resource conflict")

const maxErrorBody = 1024

// Error is a non-success answer from a remote platform, or a transient
// failure that outlived its retry budget.
type Error struct {
	Platform   string
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error

	conflict bool
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s", e.Platform, e.Method, e.Path)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrConflict && e.conflict
}

// AsConflict marks e as a resource conflict and returns it.
func (e *Error) AsConflict() *Error {
	e.conflict = true
	return e
}

// TransientError is a failure worth retrying: the transport failed or the
// platform answered with a gateway/rate-limit status.
type TransientError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient failure %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("transient failure %s %s: %s", e.Method, e.Path, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsNotFound(err error) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.StatusCode == http.StatusNotFound
}

func IsTransient(err error) bool {
	var terr *TransientError
	return errors.As(err, &terr)
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
