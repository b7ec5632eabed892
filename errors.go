package forecaster

import (
	"errors"
	"fmt"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/timedataset"
)

// Errors surfaced to callers. ErrInvalidResource, ErrInsufficientData and ErrNoComponentsAvailable
// are the sentinels of the packages that detect them so errors.Is matches at every layer.
var (
	ErrInvalidResource       = feature.ErrInvalidResource
	ErrInsufficientData      = timedataset.ErrInsufficientData
	ErrNoComponentsAvailable = forecast.ErrNoComponentsAvailable
	ErrModelNotFound         = errors.New("model not found")
	ErrInvalidHorizon        = errors.New("horizon must be at least one month")
	ErrNoDataSource          = errors.New("no data source configured")
)

// ModelError carries the resource, entity and model kind a request failed for.
type ModelError struct {
	Resource feature.Resource
	Entity   string
	Kind     forecast.Kind
	Err      error
}

func (e *ModelError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%s/%s: %v", e.Resource, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s/%s/%s: %v", e.Resource, e.Entity, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}
