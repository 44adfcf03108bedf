package framework

import "time"

// Clock provides wall-clock time.
type Clock interface {
	Now() time.Time
}

// ClockFunc is the func form of Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the system wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always reports the same instant.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

const (
	// IoTTimeLayout is the second-resolution part of the cloud timestamp.
	IoTTimeLayout = "2006-01-02T15:04:05"
	// IoTTimeFiller pads the timestamp to the 7-digit fraction the
	// cloud expects.
	IoTTimeFiller = ".0000000Z"
	// IoTTimeLen is the length of a formatted timestamp.
	IoTTimeLen = len(IoTTimeLayout) + len(IoTTimeFiller)
)

// FormatIoTTime formats t in UTC as YYYY-MM-DDTHH:MM:SS.0000000Z.
func FormatIoTTime(t time.Time) string {
	return t.UTC().Format(IoTTimeLayout) + IoTTimeFiller
}
