package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/tilerelay/internal/tiling"
)

// Worker transports understood by the local pipeline.
const (
	TransportArena   = "arena"
	TransportChannel = "channel"
)

var (
	ErrUnsupportedJobFormat = errors.New("unsupported job file format")
	ErrInvalidJob           = errors.New("invalid job")
)

// Job describes one run of the local tile pipeline.
type Job struct {
	TileCount     int     `yaml:"tileCount" toml:"tileCount"`
	FilterIndices []int   `yaml:"filterIndices" toml:"filterIndices"`
	SourcePath    string  `yaml:"sourcePath" toml:"sourcePath"`
	OutputPath    string  `yaml:"outputPath" toml:"outputPath"`
	Transport     string  `yaml:"transport" toml:"transport"`
	Sigma         float64 `yaml:"sigma" toml:"sigma"`
}

// DefaultJob mirrors the historical hard-coded run: four tiles, the first
// three blurred with sigma 5, results collected through the shared arena.
func DefaultJob() Job {
	return Job{
		TileCount:     4,
		FilterIndices: []int{0, 1, 2},
		OutputPath:    "processed.jpg",
		Transport:     TransportArena,
		Sigma:         5,
	}
}

// LoadJob reads a job file. The format is chosen by extension: .yaml/.yml
// or .toml. Missing fields keep their DefaultJob values.
func LoadJob(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("failed to read job file: %w", err)
	}
	return ParseJob(filepath.Ext(path), data)
}

// ParseJob decodes job data in the format named by ext and validates it.
func ParseJob(ext string, data []byte) (Job, error) {
	job := DefaultJob()

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &job); err != nil {
			return Job{}, fmt.Errorf("failed to parse yaml job: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &job); err != nil {
			return Job{}, fmt.Errorf("failed to parse toml job: %w", err)
		}
	default:
		return Job{}, fmt.Errorf("%w: %q", ErrUnsupportedJobFormat, ext)
	}

	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Validate checks the fields that do not depend on the source image.
// Tile count against image width is checked by the tiling package.
func (j Job) Validate() error {
	if j.TileCount < 1 {
		return fmt.Errorf("%w: %w: tileCount must be >= 1, got %d", ErrInvalidJob, tiling.ErrInvalidPartition, j.TileCount)
	}
	if j.SourcePath == "" {
		return fmt.Errorf("%w: sourcePath is required", ErrInvalidJob)
	}
	if j.OutputPath == "" {
		return fmt.Errorf("%w: outputPath is required", ErrInvalidJob)
	}
	switch j.Transport {
	case TransportArena, TransportChannel:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidJob, j.Transport)
	}
	if j.Sigma <= 0 {
		return fmt.Errorf("%w: sigma must be positive", ErrInvalidJob)
	}
	return nil
}
