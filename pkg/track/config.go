package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/cyclopcam/hypertrack/pkg/classify"
	"github.com/cyclopcam/hypertrack/pkg/foresthash"
	"github.com/cyclopcam/hypertrack/pkg/hypergraph"
)

var ErrInvalidConfig = errors.New("Invalid tracker config")

// Config holds every tunable of the tracker.
// The zero value is not usable; start from DefaultConfig().
type Config struct {
	PatchSize        int     `json:"patchSize"`        // Side of the square patch, in pixels. Must be even.
	Radius           int     `json:"radius"`           // Half-width of the candidate search window around the previous center
	Stride           int     `json:"stride"`           // Grid step for candidates and training examples
	Alpha            float64 `json:"alpha"`            // Positive examples lie closer than this to the center
	Beta             float64 `json:"beta"`             // Negative examples lie in [Alpha, Beta) from the center
	Trees            int     `json:"trees"`            // Trees per forest (M)
	Forests          int     `json:"forests"`          // Forests in the hash ensemble (L), and therefore hash code length
	TreeSample       int     `json:"treeSample"`       // Balanced subsample size for each tree (F)
	ForestUpdate     int     `json:"forestUpdate"`     // Retrain the hash ensemble every N frames
	ClassifierUpdate int     `json:"classifierUpdate"` // Retrain the classifiers every N frames
	Iterations       int     `json:"iterations"`       // Hypergraph propagation iterations (tau)
	Restart          float64 `json:"restart"`          // Hypergraph propagation alpha. 1 - Restart is the restart probability.
	Workers          int     `json:"workers"`          // Concurrent forest builds
	Seed             uint64  `json:"seed"`             // Seeds every random choice the tracker makes
	HistorySize      int     `json:"historySize"`      // Number of recent centers kept for Trajectory()
	Snapshots        bool    `json:"snapshots"`        // Pass training sets to the Recorder on every retrain
}

func DefaultConfig() Config {
	return Config{
		PatchSize:        16,
		Radius:           35,
		Stride:           4,
		Alpha:            16,
		Beta:             48,
		Trees:            10,
		Forests:          100,
		TreeSample:       foresthash.DefaultTreeSample,
		ForestUpdate:     10,
		ClassifierUpdate: 5,
		Iterations:       50,
		Restart:          0.99,
		Workers:          runtime.NumCPU(),
		Seed:             1,
		HistorySize:      64,
	}
}

// LoadConfig reads a JSON file on top of DefaultConfig, so the file only needs to name the fields it changes
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.PatchSize <= 0 || c.PatchSize%2 != 0:
		return bad("patchSize must be positive and even (got %v)", c.PatchSize)
	case c.Radius <= 0:
		return bad("radius must be positive (got %v)", c.Radius)
	case c.Stride <= 0:
		return bad("stride must be positive (got %v)", c.Stride)
	case c.Alpha < 0 || c.Beta <= c.Alpha:
		return bad("need 0 <= alpha < beta (got %v, %v)", c.Alpha, c.Beta)
	case c.Trees <= 0 || c.Forests <= 0 || c.TreeSample <= 0:
		return bad("trees, forests and treeSample must be positive (got %v, %v, %v)", c.Trees, c.Forests, c.TreeSample)
	case c.ForestUpdate <= 0 || c.ClassifierUpdate <= 0:
		return bad("forestUpdate and classifierUpdate must be positive (got %v, %v)", c.ForestUpdate, c.ClassifierUpdate)
	case c.Iterations < 0:
		return bad("iterations must not be negative (got %v)", c.Iterations)
	case c.Restart < 0 || c.Restart >= 1:
		return bad("restart must lie in [0, 1) (got %v)", c.Restart)
	case c.HistorySize <= 0:
		return bad("historySize must be positive (got %v)", c.HistorySize)
	}
	return nil
}

// Overrides replaces individual Config fields, typically from the command line.
// Nil fields leave the Config unchanged, so any legal value (including 0) can be set.
type Overrides struct {
	PatchSize        *int
	Radius           *int
	Stride           *int
	Alpha            *float64
	Beta             *float64
	Trees            *int
	Forests          *int
	TreeSample       *int
	ForestUpdate     *int
	ClassifierUpdate *int
	Iterations       *int
	Restart          *float64
	Workers          *int
	Seed             *uint64
	Snapshots        *bool
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Apply writes the non-nil overrides into c. It does not validate c.
func (o *Overrides) Apply(c *Config) {
	set(&c.PatchSize, o.PatchSize)
	set(&c.Radius, o.Radius)
	set(&c.Stride, o.Stride)
	set(&c.Alpha, o.Alpha)
	set(&c.Beta, o.Beta)
	set(&c.Trees, o.Trees)
	set(&c.Forests, o.Forests)
	set(&c.TreeSample, o.TreeSample)
	set(&c.ForestUpdate, o.ForestUpdate)
	set(&c.ClassifierUpdate, o.ClassifierUpdate)
	set(&c.Iterations, o.Iterations)
	set(&c.Restart, o.Restart)
	set(&c.Workers, o.Workers)
	set(&c.Seed, o.Seed)
	set(&c.Snapshots, o.Snapshots)
}

func (c *Config) forestOptions(seed uint64) foresthash.Options {
	return foresthash.Options{
		Forests:    c.Forests,
		Trees:      c.Trees,
		TreeSample: c.TreeSample,
		Workers:    c.Workers,
		Seed:       seed,
	}
}

func (c *Config) propagation() hypergraph.Options {
	return hypergraph.Options{
		Iterations: c.Iterations,
		Alpha:      c.Restart,
	}
}

func (c *Config) region() classify.Region {
	return classify.Region{
		PatchSize: c.PatchSize,
		Radius:    c.Radius,
		Stride:    c.Stride,
	}
}
