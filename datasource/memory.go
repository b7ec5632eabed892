package datasource

import (
	"context"
	"sync"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/timedataset"
)

type memoryKey struct {
	resource feature.Resource
	entity   string
}

// Memory is an in-process Source, safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[memoryKey][]timedataset.Observation
}

func NewMemory() *Memory {
	return &Memory{data: make(map[memoryKey][]timedataset.Observation)}
}

// Add appends observations for r and entity.
func (m *Memory) Add(r feature.Resource, entity string, obs ...timedataset.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey{r, entity}
	m.data[k] = append(m.data[k], obs...)
}

// AddSeries appends one observation per period of ts.
func (m *Memory) AddSeries(r feature.Resource, entity string, ts *timedataset.TimeDataset) {
	m.Add(r, entity, timedataset.ToObservations(ts)...)
}

func (m *Memory) Observations(ctx context.Context, r feature.Resource, entity string) ([]timedataset.Observation, error) {
	if err := r.Valid(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obs := m.data[memoryKey{r, entity}]
	out := make([]timedataset.Observation, len(obs))
	copy(out, obs)
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
