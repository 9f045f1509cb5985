package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFeatureUnavailable means no historical features exist for the
	// (sku, region) pair. Fatal to the request.
	ErrFeatureUnavailable = errors.New("features: no history for sku/region")

	// ErrNoBaseEstimate means both base channels failed. Fatal; there is
	// no silent zero-quantity fallback.
	ErrNoBaseEstimate = errors.New("fusion: no usable base estimate")
)

// MissingFeaturesError reports that one adapter cannot run because the
// feature vector lacks its required inputs. Triggers fallback or partial
// degradation, not necessarily fatal.
type MissingFeaturesError struct {
	Kind    ModelKind
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("model %s: missing features: %s", e.Kind, strings.Join(e.Missing, ", "))
}
