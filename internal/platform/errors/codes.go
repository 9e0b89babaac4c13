// Package errors provides structured, code-carrying errors for contentstream.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Dimension configuration errors
	CodeDimensionValuesAreMissing       Code = "DIMENSION_VALUES_ARE_MISSING"
	CodeDimensionDefaultValueIsMissing  Code = "DIMENSION_DEFAULT_VALUE_IS_MISSING"
	CodeDimensionInvalidIdentifier      Code = "DIMENSION_INVALID_IDENTIFIER"
	CodeDimensionUnknownValue           Code = "DIMENSION_UNKNOWN_VALUE"
	CodeDimensionCircularGeneralization Code = "DIMENSION_CIRCULAR_GENERALIZATION"
	CodeDimensionInvalidFallback        Code = "DIMENSION_INVALID_FALLBACK"
	CodeDimensionInvalidConfig          Code = "DIMENSION_INVALID_CONFIG"

	// Dimension space errors
	CodePointInvalid                 Code = "POINT_INVALID"
	CodePointNotInAllowedSubspace    Code = "POINT_NOT_IN_ALLOWED_SUBSPACE"
	CodeWeightsAreIncomparable       Code = "WEIGHTS_ARE_INCOMPARABLE"
	CodeNotAGeneralization           Code = "NOT_A_GENERALIZATION"
	CodeNoFallbackMatch              Code = "NO_FALLBACK_MATCH"
	CodeInvalidSubtreeTag            Code = "INVALID_SUBTREE_TAG"
	CodeInvalidWorkspaceName         Code = "INVALID_WORKSPACE_NAME"
	CodeInvalidContentStreamID       Code = "INVALID_CONTENT_STREAM_ID"
	CodeInvalidCommand               Code = "INVALID_COMMAND"
	CodeInvalidFilter                Code = "INVALID_FILTER"
	CodeInvalidSubscriptionID        Code = "INVALID_SUBSCRIPTION_ID"
	CodeInvalidRetryStrategyArgument Code = "INVALID_RETRY_STRATEGY_ARGUMENT"

	// Concurrency errors
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Content stream lifecycle errors
	CodeStreamNotFound      Code = "CONTENT_STREAM_NOT_FOUND"
	CodeStreamAlreadyExists Code = "CONTENT_STREAM_ALREADY_EXISTS"
	CodeStreamClosed        Code = "CONTENT_STREAM_CLOSED"

	// Workspace errors
	CodeWorkspaceNotFound      Code = "WORKSPACE_NOT_FOUND"
	CodeWorkspaceAlreadyExists Code = "WORKSPACE_ALREADY_EXISTS"
	CodeWorkspaceHasNoBase     Code = "WORKSPACE_HAS_NO_BASE"
	CodeWorkspaceOutdated      Code = "WORKSPACE_OUTDATED"

	// Subscription errors
	CodeSubscriptionNotFound         Code = "SUBSCRIPTION_NOT_FOUND"
	CodeSubscriptionAlreadyExists    Code = "SUBSCRIPTION_ALREADY_EXISTS"
	CodeSubscriptionFailed           Code = "SUBSCRIPTION_FAILED"
	CodeSubscriptionSequenceGap      Code = "SUBSCRIPTION_SEQUENCE_GAP"
	CodeSubscriptionResetUnsupported Code = "SUBSCRIPTION_RESET_UNSUPPORTED"
)

// ErrorClass groups codes by how a caller should react to them.
type ErrorClass string

const (
	// ClassValidation marks input that can never succeed as given.
	ClassValidation ErrorClass = "validation"
	// ClassRelational marks operations whose operands are not related the
	// way the operation requires.
	ClassRelational ErrorClass = "relational"
	// ClassConcurrency marks optimistic write conflicts; retrying after
	// reloading state may succeed.
	ClassConcurrency ErrorClass = "concurrency"
	// ClassPrecondition marks operations disallowed by current state.
	ClassPrecondition ErrorClass = "precondition"
	// ClassNotFound marks missing resources.
	ClassNotFound ErrorClass = "not_found"
	// ClassInfrastructure marks everything else.
	ClassInfrastructure ErrorClass = "infrastructure"
)

// Class maps a code to its error class.
func (c Code) Class() ErrorClass {
	switch c {
	case CodeDimensionValuesAreMissing,
		CodeDimensionDefaultValueIsMissing,
		CodeDimensionInvalidIdentifier,
		CodeDimensionUnknownValue,
		CodeDimensionCircularGeneralization,
		CodeDimensionInvalidConfig,
		CodePointInvalid,
		CodeInvalidSubtreeTag,
		CodeInvalidWorkspaceName,
		CodeInvalidContentStreamID,
		CodeInvalidCommand,
		CodeInvalidFilter,
		CodeInvalidSubscriptionID,
		CodeInvalidRetryStrategyArgument:
		return ClassValidation

	case CodePointNotInAllowedSubspace,
		CodeWeightsAreIncomparable,
		CodeNotAGeneralization,
		CodeNoFallbackMatch,
		CodeDimensionInvalidFallback:
		return ClassRelational

	case CodeConcurrencyConflict:
		return ClassConcurrency

	case CodeStreamAlreadyExists,
		CodeStreamClosed,
		CodeWorkspaceAlreadyExists,
		CodeWorkspaceHasNoBase,
		CodeWorkspaceOutdated,
		CodeSubscriptionAlreadyExists,
		CodeSubscriptionFailed,
		CodeSubscriptionResetUnsupported:
		return ClassPrecondition

	case CodeNotFound,
		CodeStreamNotFound,
		CodeWorkspaceNotFound,
		CodeSubscriptionNotFound:
		return ClassNotFound

	default:
		return ClassInfrastructure
	}
}
