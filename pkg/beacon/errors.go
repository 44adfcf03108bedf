package beacon

import (
	"errors"
	"fmt"
)

// Reason classifies a rejected record.
type Reason int

// Reject reasons.
const (
	ReasonTooShort Reason = iota + 1
	ReasonUnknownTag
	ReasonBadHex
	ReasonBadLength
	ReasonBadRSSI
)

var reasonNames = map[Reason]string{
	ReasonTooShort:   "too_short",
	ReasonUnknownTag: "unknown_tag",
	ReasonBadHex:     "bad_hex",
	ReasonBadLength:  "bad_length",
	ReasonBadRSSI:    "bad_rssi",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// RejectError is returned by Decode for records that cannot be used.
type RejectError struct {
	Reason Reason
	Tag    string
	Err    error
}

// Error implements error.
func (e *RejectError) Error() string {
	msg := "reject " + e.Reason.String()
	if e.Tag != "" {
		msg += " [" + e.Tag + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RejectError) Unwrap() error {
	return e.Err
}

func reject(reason Reason, tag string, format string, args ...interface{}) error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &RejectError{Reason: reason, Tag: tag, Err: err}
}

// ReasonOf extracts the reject reason from err, 0 if err is not a
// RejectError.
func ReasonOf(err error) Reason {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return 0
}
