package datasource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/goccy/go-json"
)

// FileSource reads observations from root/<resource>/<entity>.json, each file holding a JSON array
// of {"period", "usage"} objects. Usage may be a JSON number or a decimal string.
type FileSource struct {
	root string
}

func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

func (s *FileSource) path(r feature.Resource, entity string) string {
	return filepath.Join(s.root, string(r), entity+".json")
}

func (s *FileSource) Observations(ctx context.Context, r feature.Resource, entity string) ([]timedataset.Observation, error) {
	if err := r.Valid(); err != nil {
		return nil, err
	}
	if _, _, err := building(entity); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(r, entity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var obs []timedataset.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("unable to decode %s, %w", s.path(r, entity), err)
	}
	return obs, nil
}

// Write replaces the observations stored for r and entity.
func (s *FileSource) Write(r feature.Resource, entity string, obs []timedataset.Observation) error {
	if err := r.Valid(); err != nil {
		return err
	}
	if _, _, err := building(entity); err != nil {
		return err
	}
	data, err := json.Marshal(obs)
	if err != nil {
		return err
	}
	path := s.path(r, entity)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *FileSource) Ping(ctx context.Context) error {
	_, err := os.Stat(s.root)
	return err
}
