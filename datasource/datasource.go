// Package datasource loads raw monthly usage observations for a resource and entity from the
// backing meter-reading store.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/google/uuid"
)

var (
	ErrUnknownTable  = errors.New("no table configured for resource")
	ErrInvalidEntity = errors.New("entity must be \"0\" or a building uuid")
)

// AllBuildings is the entity that aggregates every building of a resource.
const AllBuildings = "0"

// Source returns the raw observations of one resource and entity. Observations need not be
// ordered or aggregated; timedataset.FromObservations does both.
type Source interface {
	Observations(ctx context.Context, r feature.Resource, entity string) ([]timedataset.Observation, error)
	Ping(ctx context.Context) error
}

// Tables maps a resource kind to the table holding its readings.
type Tables map[feature.Resource]string

func DefaultTables() Tables {
	return Tables{
		feature.Electricity: "Electrics",
		feature.Water:       "Waters",
		feature.NaturalGas:  "NaturalGas",
		feature.Paper:       "Papers",
	}
}

func (t Tables) table(r feature.Resource) (string, error) {
	if err := r.Valid(); err != nil {
		return "", err
	}
	name, ok := t[r]
	if !ok || name == "" {
		return "", fmt.Errorf("%s, %w", r, ErrUnknownTable)
	}
	return name, nil
}

// building parses an entity into a building id. The second return value is false for
// AllBuildings.
func building(entity string) (uuid.UUID, bool, error) {
	if entity == AllBuildings {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(entity)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%q, %w", entity, ErrInvalidEntity)
	}
	return id, true, nil
}

// Load fetches the observations of r and entity and aggregates them into a monthly series.
func Load(ctx context.Context, src Source, r feature.Resource, entity string) (*timedataset.TimeDataset, error) {
	obs, err := src.Observations(ctx, r, entity)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s observations for %s, %w", r, entity, err)
	}
	ts, err := timedataset.FromObservations(obs)
	if err != nil {
		return nil, fmt.Errorf("unable to aggregate %s observations for %s, %w", r, entity, err)
	}
	return ts, nil
}
