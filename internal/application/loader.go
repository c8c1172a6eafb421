package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

// Profile is a parsed and validated profile. It is immutable and shared
// between callers that load identical YAML.
type Profile struct {
	Config *ProfileConfig

	// Hash is the sha256 of the normalized configuration.
	Hash string
}

// Name returns the profile's metadata name.
func (p *Profile) Name() string { return p.Config.Metadata.Name }

// ProfileLoader parses, validates and caches decision profiles and builds
// pipelines from them.
//
// The cache holds validated configurations rather than built pipelines:
// a pipeline owns a reducer, so every stream needs its own via Build.
type ProfileLoader struct {
	validator    *validator.Validate
	unitRegistry ports.UnitRegistry
	metrics      ports.MetricsCollector

	cache   map[string]*Profile
	cacheMu sync.RWMutex
	sf      singleflight.Group
}

// NewProfileLoader creates a loader that builds units from unitRegistry.
// metrics may be nil; when set, unit executions are timed.
func NewProfileLoader(unitRegistry ports.UnitRegistry, metrics ports.MetricsCollector) (*ProfileLoader, error) {
	if unitRegistry == nil {
		return nil, fmt.Errorf("unit registry cannot be nil")
	}
	v := validator.New()
	if err := RegisterProfileValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ProfileLoader{
		validator:    v,
		unitRegistry: unitRegistry,
		metrics:      metrics,
		cache:        make(map[string]*Profile),
	}, nil
}

// LoadFromFile loads a profile from a YAML file.
func (pl *ProfileLoader) LoadFromFile(ctx context.Context, path string) (*Profile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return pl.Load(ctx, data)
}

// LoadFromReader loads a profile from r.
func (pl *ProfileLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return pl.Load(ctx, data)
}

// Load parses and validates YAML data. Identical configurations, after
// normalization, share one cached Profile; concurrent loads of the same
// configuration validate it once.
func (pl *ProfileLoader) Load(ctx context.Context, data []byte) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	config, err := parseProfileYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := pl.sf.Do(hash, func() (any, error) {
		if p, ok := pl.cached(hash); ok {
			return p, nil
		}

		if err := pl.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		p := &Profile{Config: config, Hash: hash}
		// A trial build surfaces unit parameter errors at load time.
		if _, err := pl.Build(p); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		pl.cacheMu.Lock()
		pl.cache[hash] = p
		pl.cacheMu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

// Build constructs a fresh pipeline from a loaded profile. The pipeline
// first seeds the profile thresholds, then runs the stages in order.
func (pl *ProfileLoader) Build(p *Profile) (*Pipeline, error) {
	config := p.Config
	pipeline := NewPipeline(config.Metadata.Name)

	if err := pipeline.Add(thresholdSeed{th: config.ResolvedThresholds()}); err != nil {
		return nil, err
	}

	byID := make(map[string]UnitConfig, len(config.Units))
	for _, u := range config.Units {
		byID[u.ID] = u
	}

	for _, stage := range config.Stages {
		execs := make([]ports.Executable, 0, len(stage.Units))
		for _, id := range stage.Units {
			uc, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("unit %s not found for stage %s", id, stage.ID)
			}
			unit, err := pl.createUnit(config, uc)
			if err != nil {
				return nil, fmt.Errorf("failed to create unit %s: %w", id, err)
			}
			execs = append(execs, NewUnitAdapter(unit, id, pl.metrics))
		}

		if len(execs) == 1 {
			if err := pipeline.Add(execs[0]); err != nil {
				return nil, fmt.Errorf("failed to add stage %s: %w", stage.ID, err)
			}
			continue
		}

		layer := NewLayer(stage.ID)
		for _, e := range execs {
			if err := layer.Add(e); err != nil {
				return nil, fmt.Errorf("failed to add unit to stage %s: %w", stage.ID, err)
			}
		}
		if err := pipeline.Add(layer); err != nil {
			return nil, fmt.Errorf("failed to add stage %s: %w", stage.ID, err)
		}
	}
	return pipeline, nil
}

// Factory returns a builder of independent pipelines for p, suitable for
// a Monitor.
func (pl *ProfileLoader) Factory(p *Profile) PipelineFactory {
	return func(string) (ports.Executable, error) {
		return pl.Build(p)
	}
}

// ClearCache drops every cached profile.
func (pl *ProfileLoader) ClearCache() {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()
	pl.cache = make(map[string]*Profile)
}

func (pl *ProfileLoader) cached(hash string) (*Profile, bool) {
	pl.cacheMu.RLock()
	defer pl.cacheMu.RUnlock()
	p, ok := pl.cache[hash]
	return p, ok
}

func (pl *ProfileLoader) validateConfig(config *ProfileConfig) error {
	if err := pl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := validateSemantics(config, pl.unitRegistry); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// createUnit decodes the unit's params and hands them to the registry.
// Reduce units receive the profile thresholds and reducer section as
// defaults under their own params.
func (pl *ProfileLoader) createUnit(config *ProfileConfig, uc UnitConfig) (ports.Unit, error) {
	params := make(map[string]any)
	if !uc.Params.IsZero() {
		if err := uc.Params.Decode(&params); err != nil {
			return nil, fmt.Errorf("failed to decode parameters: %w", err)
		}
		if params == nil {
			params = make(map[string]any)
		}
	}

	if uc.Type == UnitTypeReduce {
		th := config.ResolvedThresholds()
		merged := map[string]any{
			domain.OptionNegativeThreshold: th.Negative,
			domain.OptionPositiveThreshold: th.Positive,
		}
		maps.Copy(merged, config.Reducer)
		maps.Copy(merged, params)
		params = merged
	}
	if uc.Model != "" {
		params[ParamModel] = uc.Model
	}

	return pl.unitRegistry.CreateUnit(uc.Type, uc.ID, params)
}

// parseProfileYAML decodes strictly, so unknown fields are errors.
func parseProfileYAML(data []byte) (*ProfileConfig, error) {
	var config ProfileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// calculateConfigHash hashes the re-encoded configuration, so formatting
// and comments do not affect the key.
func calculateConfigHash(config *ProfileConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// thresholdSeed stores the profile thresholds unless the observation
// already carries its own.
type thresholdSeed struct {
	th domain.Thresholds
}

func (s thresholdSeed) ID() string { return "__thresholds" }

func (s thresholdSeed) Execute(_ context.Context, state domain.State) (domain.State, error) {
	if domain.Has(state, domain.KeyThresholds) {
		return state, nil
	}
	return domain.With(state, domain.KeyThresholds, s.th), nil
}
