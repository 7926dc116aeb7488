package node

// Cause explains why a step did not succeed.
type Cause string

const (
	CauseNone                  Cause = ""
	CauseToolUnavailable       Cause = "ToolUnavailable"
	CausePlaceholderConflict   Cause = "PlaceholderConflict"
	CauseUnresolvedDependency  Cause = "UnresolvedDependency"
	CauseInternalOrderingError Cause = "InternalOrderingError"
	CauseProcessSpawnFailure   Cause = "ProcessSpawnFailure"
	CauseTimedOut              Cause = "TimedOut"
	CausePlanCancelled         Cause = "PlanCancelled"
	CauseNonZeroExit           Cause = "NonZeroExit"
	CauseMissingOutput         Cause = "MissingOutput"
)
