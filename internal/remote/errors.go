package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a remote failure so the retry controller can branch on
// type instead of substring-matching error messages.
type Kind string

const (
	KindFatal       Kind = "fatal"
	KindRateLimited Kind = "rate_limited"
	KindAuthExpired Kind = "auth_expired"
	KindValidation  Kind = "validation"
)

// Error is a classified remote failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err. Unclassified errors are fatal.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindFatal
}

func RateLimited(op string, err error) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Err: err}
}

func AuthExpired(op string, err error) *Error {
	return &Error{Kind: KindAuthExpired, Op: op, Err: err}
}

func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func Fatal(op string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// FromStatus maps an HTTP response status to a classified error.
// 5xx is treated as rate-limited so it gets bounded backoff rather than
// an immediate abort.
func FromStatus(op string, status int, body string) error {
	if status < 300 {
		return nil
	}
	err := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthExpired(op, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return RateLimited(op, err)
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return Validation(op, err)
	default:
		return Fatal(op, err)
	}
}
