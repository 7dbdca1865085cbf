package metrickit

import (
	"errors"
	"fmt"
)

// ErrMalformedReport is matched by every *MalformedReportError
var ErrMalformedReport = errors.New("malformed report")

// MalformedReportError describes a required field that is absent or has the
// wrong type. Entry is empty for top-level fields.
type MalformedReportError struct {
	Field string
	Entry string
	Err   error
}

func (e *MalformedReportError) Error() string {
	var where string
	if e.Entry != "" {
		where = " in " + e.Entry
	}
	switch {
	case e.Field == "":
		return fmt.Sprintf("malformed report: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("malformed report: invalid field %q%s: %v", e.Field, where, e.Err)
	default:
		return fmt.Sprintf("malformed report: missing field %q%s", e.Field, where)
	}
}

func (e *MalformedReportError) Unwrap() error { return e.Err }

func (e *MalformedReportError) Is(target error) bool { return target == ErrMalformedReport }
