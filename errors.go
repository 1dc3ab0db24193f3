package hangar

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrConfig indicates missing or invalid startup configuration.
	ErrConfig = errors.New("invalid configuration")

	// ErrAuthUnavailable indicates no valid bearer token could be obtained,
	// or the gateway rejected a freshly issued one. Fatal for an invocation.
	ErrAuthUnavailable = errors.New("auth unavailable")

	// ErrToolUnavailable indicates the gateway or a tool could not be reached.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrToolArgument indicates the gateway rejected a call's arguments.
	ErrToolArgument = errors.New("tool argument error")

	// ErrToolNotFound indicates the requested tool was not discovered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrIterationBudgetExceeded indicates the specialist loop hit its cap
	// without reaching a final answer.
	ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")

	// ErrTimeout indicates the invocation exceeded its wall-clock budget.
	ErrTimeout = errors.New("invocation timed out")
)
