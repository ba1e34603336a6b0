package octree

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/spatialindex/morton"
)

const (
	// DefaultFanout is the leaf capacity used when a Config leaves Fanout unset.
	DefaultFanout = 8
	// DefaultMaxCachedResults bounds how many items a range query may return and still be cached.
	DefaultMaxCachedResults = 4096
)

// Config describes the shape of an Index.
type Config struct {
	Dimensions        int `json:"dimensions"`
	BitsPerCoordinate int `json:"bits_per_coordinate"`
	Fanout            int `json:"fanout"`
	// CacheCapacity is counted in cached queries. Zero disables the cache.
	CacheCapacity    int    `json:"cache_capacity,omitempty"`
	MaxCachedResults int    `json:"max_cached_results,omitempty"`
	MetricName       string `json:"metric,omitempty"`

	// Metric overrides MetricName with a custom distance.
	Metric morton.Metric `json:"-"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Dimensions < 1 {
		return newConfigError(path, "dimensions", "must be at least 1, got %d", cfg.Dimensions)
	}
	if cfg.BitsPerCoordinate < 1 {
		return newConfigError(path, "bits_per_coordinate", "must be at least 1, got %d", cfg.BitsPerCoordinate)
	}
	if cfg.Dimensions*cfg.BitsPerCoordinate > morton.MaxCodeBits {
		return newConfigError(path, "bits_per_coordinate", "%d dimensions of %d bits exceed a %d bit key",
			cfg.Dimensions, cfg.BitsPerCoordinate, morton.MaxCodeBits)
	}
	if cfg.Fanout < 1 {
		return newConfigError(path, "fanout", "must be at least 1, got %d", cfg.Fanout)
	}
	if cfg.CacheCapacity < 0 {
		return newConfigError(path, "cache_capacity", "must not be negative, got %d", cfg.CacheCapacity)
	}
	if cfg.MaxCachedResults < 0 {
		return newConfigError(path, "max_cached_results", "must not be negative, got %d", cfg.MaxCachedResults)
	}
	if cfg.Metric == nil {
		if _, err := morton.MetricByName(cfg.MetricName); err != nil {
			return newConfigError(path, "metric", "%q is not one of %s, %s, %s", cfg.MetricName,
				morton.EuclideanName, morton.ManhattanName, morton.ChebyshevName)
		}
	}
	if !morton.ExactRanks(cfg.resolveMetric(), cfg.Dimensions, cfg.BitsPerCoordinate) {
		return newConfigError(path, "bits_per_coordinate",
			"%d dimensions of %d bits give distances a float64 cannot rank exactly", cfg.Dimensions, cfg.BitsPerCoordinate)
	}
	return nil
}

// resolveMetric returns the metric the config selects. The config must be valid.
func (cfg *Config) resolveMetric() morton.Metric {
	if cfg.Metric != nil {
		return cfg.Metric
	}
	m, err := morton.MetricByName(cfg.MetricName)
	if err != nil {
		return morton.Euclidean
	}
	return m
}

// ConfigFromAttributes decodes a config from a loosely typed attribute map, such as one parsed from JSON.
// Unset fan-out is filled in with DefaultFanout. The result is validated.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      &conf,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "error decoding octree attributes")
	}
	if conf.Fanout == 0 {
		conf.Fanout = DefaultFanout
	}
	if err := conf.Validate("octree"); err != nil {
		return nil, err
	}
	return &conf, nil
}

func newConfigError(path, field, format string, args ...interface{}) error {
	return errors.Wrapf(morton.ErrInvalidConfiguration, "error validating %q: %q %s", path, field, fmt.Sprintf(format, args...))
}
