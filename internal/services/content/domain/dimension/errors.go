package dimension

import apperrors "github.com/louisbranch/contentstream/internal/platform/errors"

var (
	// ErrValuesAreMissing indicates a dimension declared without values.
	ErrValuesAreMissing = apperrors.New(apperrors.CodeDimensionValuesAreMissing, "dimension values are missing")
	// ErrDefaultValueIsMissing indicates a default value that is empty or not declared.
	ErrDefaultValueIsMissing = apperrors.New(apperrors.CodeDimensionDefaultValueIsMissing, "dimension default value is missing")
	// ErrInvalidIdentifier indicates a malformed dimension identifier or value string.
	ErrInvalidIdentifier = apperrors.New(apperrors.CodeDimensionInvalidIdentifier, "dimension identifier is invalid")
	// ErrUnknownValue indicates a value that is not declared in the dimension.
	ErrUnknownValue = apperrors.New(apperrors.CodeDimensionUnknownValue, "dimension value is not declared")
	// ErrCircularGeneralization indicates a specialization link that would create a cycle.
	ErrCircularGeneralization = apperrors.New(apperrors.CodeDimensionCircularGeneralization, "dimension values must form a forest")
	// ErrInvalidFallback indicates the target is not on the candidate's generalization chain.
	ErrInvalidFallback = apperrors.New(apperrors.CodeDimensionInvalidFallback, "value is not a fallback of candidate")
	// ErrInvalidConfig indicates a malformed dimension configuration document.
	ErrInvalidConfig = apperrors.New(apperrors.CodeDimensionInvalidConfig, "dimension configuration is invalid")
)
