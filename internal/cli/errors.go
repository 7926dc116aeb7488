package cli

// Process exit codes.
const (
	ExitOK           = 0
	ExitRuntime      = 1
	ExitUsage        = 2
	ExitPlanRejected = 3
	ExitStepsFailed  = 4
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}
