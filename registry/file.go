package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	sidecarExt  = ".json"
	artifactExt = ".model"
)

// sidecar is the on disk metadata file. ArtifactFile names the artifact written by the same Save.
type sidecar struct {
	Metadata
	ArtifactFile string `json:"artifact_file,omitempty"`
}

// FileStore keeps bundles under root/<resource>/<entity>/. Each Save writes the artifact to a new
// uniquely named file and then renames the sidecar into place, so the sidecar always references a
// complete artifact from the same run. Saves to one key are serialized.
type FileStore struct {
	root  string
	locks sync.Map
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create registry directory, %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) mutex(key string) *sync.RWMutex {
	v, _ := s.locks.LoadOrStore(key, new(sync.RWMutex))
	return v.(*sync.RWMutex)
}

func (s *FileStore) lock(key string) func() {
	mu := s.mutex(key)
	mu.Lock()
	return mu.Unlock
}

func (s *FileStore) rlock(key string) func() {
	mu := s.mutex(key)
	mu.RLock()
	return mu.RUnlock
}

func (s *FileStore) dir(r feature.Resource, entity string) string {
	return filepath.Join(s.root, string(r), entity)
}

func (s *FileStore) Save(ctx context.Context, key Key, b *Bundle) error {
	if err := b.Validate(key); err != nil {
		return err
	}
	metaData, artifactData, err := encode(b)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	defer s.lock(key.String())()

	dir := s.dir(key.Resource, key.Entity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create %s, %w", dir, err)
	}

	previous, _ := s.readSidecar(key)

	sc := sidecar{}
	if err := json.Unmarshal(metaData, &sc.Metadata); err != nil {
		return err
	}
	if artifactData != nil {
		sc.ArtifactFile = fmt.Sprintf("%s.%s%s", key.Kind, uuid.NewString(), artifactExt)
		if err := writeAtomic(filepath.Join(dir, sc.ArtifactFile), artifactData); err != nil {
			return fmt.Errorf("unable to write artifact for %s, %w", key, err)
		}
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, string(key.Kind)+sidecarExt), data); err != nil {
		if sc.ArtifactFile != "" {
			os.Remove(filepath.Join(dir, sc.ArtifactFile))
		}
		return fmt.Errorf("unable to write metadata for %s, %w", key, err)
	}

	if previous != nil && previous.ArtifactFile != "" && previous.ArtifactFile != sc.ArtifactFile {
		os.Remove(filepath.Join(dir, previous.ArtifactFile))
	}
	return nil
}

// writeAtomic writes data to a temporary file in the target directory and renames it over path.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *FileStore) readSidecar(key Key) (*sidecar, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(key.Resource, key.Entity), string(key.Kind)+sidecarExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s, %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sc := new(sidecar)
	if err := json.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("unable to decode metadata for %s, %w", key, err)
	}
	return sc, nil
}

func (s *FileStore) Load(ctx context.Context, key Key) (*Bundle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Save removes the previous artifact once the new sidecar is in place.
	defer s.rlock(key.String())()

	sc, err := s.readSidecar(key)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Metadata: sc.Metadata}
	if sc.ArtifactFile == "" {
		return b, nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir(key.Resource, key.Entity), sc.ArtifactFile))
	if err != nil {
		return nil, fmt.Errorf("unable to read artifact for %s, %w", key, err)
	}
	if b.Artifact, err = decodeArtifact(data); err != nil {
		return nil, fmt.Errorf("%s, %w", key, err)
	}
	return b, nil
}

func (s *FileStore) List(ctx context.Context, r feature.Resource, entity string) ([]Metadata, error) {
	if err := ValidateEntity(entity); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir(r, entity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Metadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != sidecarExt {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir(r, entity), name))
		if err != nil {
			return nil, err
		}
		var sc sidecar
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("unable to decode %s, %w", name, err)
		}
		out = append(out, sc.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, r feature.Resource, entity string) error {
	if err := ValidateEntity(entity); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.dir(r, entity)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s/%s, %w", r, entity, ErrNotFound)
	}
	return os.RemoveAll(dir)
}

func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.root)
	}
	return nil
}
