// Package failure classifies pipeline errors into permanent rejections and
// transient faults that are worth retrying.
package failure

import (
	"errors"
	"fmt"
)

// Reason tells why a source was rejected.
type Reason string

const (
	ReasonTooLong         Reason = "too_long"
	ReasonForbidden       Reason = "forbidden"
	ReasonInfoUnavailable Reason = "info_unavailable"
)

// Rejection is a permanent, user-facing refusal of a source.
type Rejection struct {
	Reason  Reason
	Message string
	Err     error
}

// Reject builds a Rejection with a formatted message.
func Reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (r *Rejection) Error() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return string(r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Transient is a fault in a stage that may succeed on a later attempt.
type Transient struct {
	Stage string
	Err   error
}

func (t *Transient) Error() string {
	if t.Err == nil {
		return t.Stage + ": transient failure"
	}
	return t.Err.Error()
}

func (t *Transient) Unwrap() error { return t.Err }

// ErrPermanent marks errors that must not be retried, such as a missing task.
// Errors wrapping it survive Classify untouched.
var ErrPermanent = errors.New("permanent failure")

// Classify normalizes err at a stage boundary. Rejections, transients and
// permanent errors are kept. Everything else becomes a Transient of stage.
func Classify(stage string, err error) error {
	if err == nil {
		return nil
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return err
	}
	var tr *Transient
	if errors.As(err, &tr) {
		return err
	}
	if errors.Is(err, ErrPermanent) {
		return err
	}
	return &Transient{Stage: stage, Err: err}
}

// IsRetryable reports whether err is a Transient.
func IsRetryable(err error) bool {
	var rej *Rejection
	if errors.As(err, &rej) {
		return false
	}
	var tr *Transient
	return errors.As(err, &tr)
}

// AsRejection extracts a Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
