package dimensionspace

import apperrors "github.com/louisbranch/contentstream/internal/platform/errors"

var (
	// ErrInvalidPoint indicates malformed point coordinates.
	ErrInvalidPoint = apperrors.New(apperrors.CodePointInvalid, "dimension space point is invalid")
	// ErrWeightsAreIncomparable indicates weights over different dimension sets.
	ErrWeightsAreIncomparable = apperrors.New(apperrors.CodeWeightsAreIncomparable, "weights are incomparable")
	// ErrNotAGeneralization indicates a point that does not generalize another.
	ErrNotAGeneralization = apperrors.New(apperrors.CodeNotAGeneralization, "point is not a generalization")
	// ErrPointNotInAllowedSubspace indicates a point outside the allowed combinations.
	ErrPointNotInAllowedSubspace = apperrors.New(apperrors.CodePointNotInAllowedSubspace, "point is not in the allowed dimension subspace")
	// ErrNoFallbackMatch indicates no candidate generalizes the requested point.
	ErrNoFallbackMatch = apperrors.New(apperrors.CodeNoFallbackMatch, "no fallback match")
)
