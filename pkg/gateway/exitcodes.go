package gateway

import "fmt"

// ExitCode is the process exit status. Every init step and every
// fatal handler failure has its own code.
type ExitCode int

// Exit codes.
const (
	Success ExitCode = iota
	InitConfig
	MainEventLoopFail
	InitEventLoop
	InitUart
	InitRegisterUart
	InitTelemetryTimer
	InitHelloTimer
	InitRetryTimer
	InitInbox
	InitTransport
	InitSessionStore
	InitHistorian
	TelemetryTimerConsume
	HelloTimerConsume
	RetryTimerConsume
	InboxConsume
	UartRead
	UartClosed
)

var exitCodeNames = [...]string{
	"Success",
	"InitConfig",
	"MainEventLoopFail",
	"InitEventLoop",
	"InitUart",
	"InitRegisterUart",
	"InitTelemetryTimer",
	"InitHelloTimer",
	"InitRetryTimer",
	"InitInbox",
	"InitTransport",
	"InitSessionStore",
	"InitHistorian",
	"TelemetryTimerConsume",
	"HelloTimerConsume",
	"RetryTimerConsume",
	"InboxConsume",
	"UartRead",
	"UartClosed",
}

func (c ExitCode) String() string {
	if c >= 0 && int(c) < len(exitCodeNames) {
		return exitCodeNames[c]
	}
	return fmt.Sprintf("ExitCode(%d)", int(c))
}

// InitError is returned by Init with the exit code of the failed step.
type InitError struct {
	Code ExitCode
	Err  error
}

// Error implements error.
func (e *InitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the cause.
func (e *InitError) Unwrap() error {
	return e.Err
}

func initError(code ExitCode, err error) error {
	return &InitError{Code: code, Err: err}
}
