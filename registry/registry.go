// Package registry persists trained model bundles keyed by resource, entity and model kind. A
// bundle is a JSON metadata sidecar, the authoritative feature schema at inference time, plus the
// fitted learner artifact for single learners. Ensembles persist metadata only and reference their
// component bundles by kind.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/stats"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("model bundle not found")
	ErrInvalidKey  = errors.New("invalid registry key")
	ErrNoArtifact  = errors.New("learner bundle has no fitted artifact")
	ErrKindChanged = errors.New("bundle kind does not match its key")
)

// Epsilon is the magnitude below which stored metadata values are flushed to 0.
const Epsilon = 1e-12

var entityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Key identifies one bundle.
type Key struct {
	Resource feature.Resource
	Entity   string
	Kind     forecast.Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Resource, k.Entity, k.Kind)
}

func (k Key) Validate() error {
	if err := k.Resource.Valid(); err != nil {
		return fmt.Errorf("%s, %w", k, err)
	}
	if err := ValidateEntity(k.Entity); err != nil {
		return err
	}
	if _, err := forecast.ParseKind(string(k.Kind)); err != nil {
		return fmt.Errorf("%s, %w", k, ErrInvalidKey)
	}
	return nil
}

// ValidateEntity returns ErrInvalidKey unless entity is a non-empty run of letters, digits, "_" or "-".
func ValidateEntity(entity string) error {
	if !entityPattern.MatchString(entity) {
		return fmt.Errorf("entity %q, %w", entity, ErrInvalidKey)
	}
	return nil
}

// Metadata is the JSON sidecar of a bundle.
type Metadata struct {
	RunID              uuid.UUID             `json:"run_id"`
	Resource           feature.Resource      `json:"resource"`
	Entity             string                `json:"entity"`
	Kind               forecast.Kind         `json:"model_kind"`
	TrainedAt          time.Time             `json:"trained_at"`
	Metrics            stats.Scores          `json:"metrics"`
	DataPoints         int                   `json:"data_points"`
	FeatureColumns     []string              `json:"feature_columns"`
	TrainSize          int                   `json:"train_size"`
	TestSize           int                   `json:"test_size"`
	EnsembleComponents []forecast.Component  `json:"ensemble_components,omitempty"`
	TrendBase          time.Time             `json:"trend_base"`
	LastPeriod         time.Time             `json:"last_period"`
	Fallback           bool                  `json:"fallback,omitempty"`
	Comparison         []forecast.Comparison `json:"comparison,omitempty"`
	Importances        map[string]float64    `json:"feature_importances,omitempty"`
}

func (m *Metadata) Key() Key {
	return Key{Resource: m.Resource, Entity: m.Entity, Kind: m.Kind}
}

// Sanitize replaces NaN and infinite values with 0 and flushes magnitudes below Epsilon to 0.
func (m *Metadata) Sanitize() {
	m.Metrics.MSE = SanitizeFloat(m.Metrics.MSE)
	m.Metrics.RMSE = SanitizeFloat(m.Metrics.RMSE)
	m.Metrics.MAE = SanitizeFloat(m.Metrics.MAE)
	m.Metrics.MAPE = SanitizeFloat(m.Metrics.MAPE)
	m.Metrics.R2 = SanitizeFloat(m.Metrics.R2)
	for i := range m.EnsembleComponents {
		m.EnsembleComponents[i].Weight = SanitizeFloat(m.EnsembleComponents[i].Weight)
	}
	for i := range m.Comparison {
		c := &m.Comparison[i]
		c.Actual = SanitizeFloat(c.Actual)
		c.Predicted = SanitizeFloat(c.Predicted)
		c.Difference = SanitizeFloat(c.Difference)
		c.DifferencePercent = SanitizeFloat(c.DifferencePercent)
	}
	for k, v := range m.Importances {
		m.Importances[k] = SanitizeFloat(v)
	}
}

func SanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) < Epsilon {
		return 0
	}
	return v
}

// Bundle is a persisted model. Artifact is nil for ensembles.
type Bundle struct {
	Metadata Metadata
	Artifact *forecast.Artifact
}

// Validate checks that the bundle is coherent with its key.
func (b *Bundle) Validate(key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if b.Metadata.Key() != key {
		return fmt.Errorf("metadata for %s stored under %s, %w", b.Metadata.Key(), key, ErrKindChanged)
	}
	if key.Kind.Ensemble() {
		return nil
	}
	if b.Artifact == nil {
		return fmt.Errorf("%s, %w", key, ErrNoArtifact)
	}
	if b.Artifact.Kind != key.Kind {
		return fmt.Errorf("artifact %s stored under %s, %w", b.Artifact.Kind, key, ErrKindChanged)
	}
	return nil
}

// Store persists bundles. Save must be atomic: a concurrent or interrupted Save never leaves a
// bundle that loads with metadata and artifact from different training runs.
type Store interface {
	Save(ctx context.Context, key Key, b *Bundle) error

	// Load returns ErrNotFound if nothing is stored under key.
	Load(ctx context.Context, key Key) (*Bundle, error)

	// List returns the metadata of every bundle for a resource and entity ordered by kind.
	List(ctx context.Context, r feature.Resource, entity string) ([]Metadata, error)

	// Delete removes every bundle for a resource and entity. It returns ErrNotFound if there
	// were none.
	Delete(ctx context.Context, r feature.Resource, entity string) error

	Ping(ctx context.Context) error
}

// encode sanitizes the metadata and serializes both parts of the bundle.
func encode(b *Bundle) ([]byte, []byte, error) {
	meta := b.Metadata
	meta.EnsembleComponents = append([]forecast.Component(nil), b.Metadata.EnsembleComponents...)
	meta.Comparison = append([]forecast.Comparison(nil), b.Metadata.Comparison...)
	if b.Metadata.Importances != nil {
		meta.Importances = make(map[string]float64, len(b.Metadata.Importances))
		for k, v := range b.Metadata.Importances {
			meta.Importances[k] = v
		}
	}
	meta.Sanitize()

	metaData, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to encode metadata, %w", err)
	}
	if b.Artifact == nil {
		return metaData, nil, nil
	}
	artifactData, err := json.Marshal(b.Artifact)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to encode artifact, %w", err)
	}
	return metaData, artifactData, nil
}

func decode(metaData, artifactData []byte) (*Bundle, error) {
	b := new(Bundle)
	if err := json.Unmarshal(metaData, &b.Metadata); err != nil {
		return nil, fmt.Errorf("unable to decode metadata, %w", err)
	}
	if len(artifactData) == 0 {
		return b, nil
	}
	a, err := decodeArtifact(artifactData)
	if err != nil {
		return nil, err
	}
	b.Artifact = a
	return b, nil
}

func decodeArtifact(data []byte) (*forecast.Artifact, error) {
	a := new(forecast.Artifact)
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("unable to decode artifact, %w", err)
	}
	return a, nil
}
