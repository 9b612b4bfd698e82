// Package track drives the per-frame tracking loop.
//
// A Tracker owns the target state, the hash ensemble, and the classifier ensemble.
// Each frame it scores candidate windows around the previous center, refines the
// scores by hypergraph propagation, and moves the target to the best candidate.
// The forests and the classifiers are periodically rebuilt from scratch, using
// examples sampled around the new center.
package track

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/hypertrack/pkg/classify"
	"github.com/cyclopcam/hypertrack/pkg/dtree"
	"github.com/cyclopcam/hypertrack/pkg/foresthash"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/cyclopcam/hypertrack/pkg/hypergraph"
	"github.com/cyclopcam/hypertrack/pkg/logx"
	"github.com/cyclopcam/hypertrack/pkg/patch"
	"github.com/cyclopcam/hypertrack/pkg/perfstats"
	"github.com/cyclopcam/logs"
)

var (
	ErrNoTrainingData = errors.New("No positive or no negative training examples around the target")
	ErrNotTracking    = errors.New("Tracker is not in the Tracking state")
)

type State int

const (
	StateInitializing State = iota
	StateTracking
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateTracking:
		return "Tracking"
	case StateTerminated:
		return "Terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Target is the tracked object. Only Center moves; the box size is fixed at Init.
type Target struct {
	Center frame.Point
	Width  int
	Height int
}

func (t Target) Box() frame.Rect {
	return frame.CenteredRect(t.Center, t.Width, t.Height)
}

// TrackerState is everything that carries over from one frame to the next
type TrackerState struct {
	Target      Target
	Hash        *foresthash.Ensemble
	Classifiers *classify.Ensemble
}

// FrameResult describes what happened on one frame
type FrameResult struct {
	Index               int
	Name                string // Source filename, filled in by Run
	Center              frame.Point
	Box                 frame.Rect
	Score               float64 // Propagated score of the chosen candidate
	RawScore            float64 // Classifier score of the chosen candidate, before propagation
	Candidates          int
	Held                bool // No candidate fit inside the frame, so the previous center was kept
	ForestRetrained     bool
	ClassifierRetrained bool
	Elapsed             time.Duration
}

type RetrainKind string

const (
	RetrainForests     RetrainKind = "forests"
	RetrainClassifiers RetrainKind = "classifiers"
)

// Retrain describes one rebuild of the forests or of the classifiers
type Retrain struct {
	Index     int
	Kind      RetrainKind
	Center    frame.Point
	Positives int
	Negatives int
	Elapsed   time.Duration
	Samples   []foresthash.Sample // Training set. Only populated when Config.Snapshots is true.
}

// Recorder persists tracking results. It is only called from the goroutine that drives the Tracker.
// Retrains are recorded as they happen, frames are recorded by Run.
type Recorder interface {
	RecordFrame(r *FrameResult) error
	RecordRetrain(r *Retrain) error
}

type Tracker struct {
	Config   Config
	Recorder Recorder          // Optional
	Stages   *perfstats.Stages // Time spent in each stage of the pipeline

	log     *logx.PrefixLogger
	builder dtree.Builder
	sampler *patch.Sampler
	rng     *rand.Rand
	state   State
	current TrackerState
	history ringbuffer.RingP[frame.Point]
}

func nextPowerOf2(n int) int {
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

// New creates a Tracker. If builder is nil, a dtree.RandomizedBuilder is used.
func New(log logs.Log, cfg Config, builder dtree.Builder) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if builder == nil {
		builder = dtree.NewRandomizedBuilder()
	}
	return &Tracker{
		Config:  cfg,
		Stages:  perfstats.NewStages(),
		log:     logx.NewPrefixLogger(log, "Tracker:"),
		builder: builder,
		sampler: patch.NewSampler(cfg.PatchSize, cfg.Stride),
		rng:     rand.New(rand.NewPCG(cfg.Seed, 0x68797065)),
		state:   StateInitializing,
		history: ringbuffer.NewRingP[frame.Point](nextPowerOf2(cfg.HistorySize)),
	}, nil
}

func (t *Tracker) State() State {
	return t.state
}

// Current returns the live tracker state. The ensembles must not be modified.
func (t *Tracker) Current() TrackerState {
	return t.current
}

// Trajectory returns the most recent centers, oldest first
func (t *Tracker) Trajectory() []frame.Point {
	out := make([]frame.Point, 0, t.history.Len())
	for i := 0; i < t.history.Len(); i++ {
		out = append(out, t.history.Peek(i))
	}
	return out
}

// Init places the target at the center of box, and trains the forests and then the classifiers on f.
func (t *Tracker) Init(ctx context.Context, f *frame.Frame, box frame.Rect) error {
	if t.state != StateInitializing {
		return fmt.Errorf("Init called in state %v", t.state)
	}
	if box.Width <= 0 || box.Height <= 0 {
		return fmt.Errorf("Initial box %v has no area", box)
	}
	t.current.Target = Target{
		Center: box.Center(),
		Width:  box.Width,
		Height: box.Height,
	}
	t.log.Infof("Initializing at %v (box %vx%v)", t.current.Target.Center, box.Width, box.Height)

	pos, neg := t.examples(f)
	if len(pos) == 0 || len(neg) == 0 {
		return fmt.Errorf("%w (%v positive, %v negative)", ErrNoTrainingData, len(pos), len(neg))
	}
	if err := t.retrainForests(ctx, 0, pos, neg); err != nil {
		return err
	}
	if err := t.retrainClassifiers(ctx, 0, pos, neg); err != nil {
		return err
	}
	t.history.Add(t.current.Target.Center)
	t.state = StateTracking
	return nil
}

func (t *Tracker) examples(f *frame.Frame) (pos, neg [][]float64) {
	defer t.Stages.Start("sample")()
	return t.sampler.PosNeg(f, t.current.Target.Center, t.Config.Alpha, t.Config.Beta)
}

func (t *Tracker) record(r *Retrain, samples []foresthash.Sample) error {
	if t.Recorder == nil {
		return nil
	}
	if t.Config.Snapshots {
		r.Samples = samples
	}
	if err := t.Recorder.RecordRetrain(r); err != nil {
		return fmt.Errorf("Failed to record %v retrain: %w", r.Kind, err)
	}
	return nil
}

// retrainForests replaces the hash ensemble
func (t *Tracker) retrainForests(ctx context.Context, index int, pos, neg [][]float64) error {
	start := time.Now()
	samples := foresthash.TrainingSet(t.rng, pos, neg)
	hash, err := foresthash.Train(ctx, t.log.With("forests:"), t.builder, samples, t.Config.forestOptions(t.rng.Uint64()))
	if err != nil {
		return fmt.Errorf("Forest retrain on frame %v failed: %w", index, err)
	}
	t.current.Hash = hash
	r := &Retrain{
		Index:     index,
		Kind:      RetrainForests,
		Center:    t.current.Target.Center,
		Positives: len(pos),
		Negatives: len(neg),
		Elapsed:   time.Since(start),
	}
	t.Stages.Add("retrain forests", r.Elapsed)
	t.log.Infof("Frame %v: rebuilt %v forests from %v positive, %v negative examples in %.2f seconds", index, t.Config.Forests, len(pos), len(neg), r.Elapsed.Seconds())
	return t.record(r, samples)
}

// retrainClassifiers replaces the classifier ensemble, using the current hash ensemble
func (t *Tracker) retrainClassifiers(ctx context.Context, index int, pos, neg [][]float64) error {
	start := time.Now()
	samples := t.current.Hash.EncodeSamples(t.rng, pos, neg)
	classifiers, err := classify.Train(ctx, samples, t.rng.Uint64())
	if err != nil {
		return fmt.Errorf("Classifier retrain on frame %v failed: %w", index, err)
	}
	t.current.Classifiers = classifiers
	r := &Retrain{
		Index:     index,
		Kind:      RetrainClassifiers,
		Center:    t.current.Target.Center,
		Positives: len(pos),
		Negatives: len(neg),
		Elapsed:   time.Since(start),
	}
	t.Stages.Add("retrain classifiers", r.Elapsed)
	t.log.Infof("Frame %v: retrained %v classifiers in %.2f seconds", index, len(classifiers.Models), r.Elapsed.Seconds())
	return t.record(r, samples)
}

// Step estimates the target location on frame number index, and retrains the models if they are due.
//
// If no candidate window fits inside the frame, the target stays where it was and the result is
// marked Held. Any other failure, including a failed retrain, is returned as an error.
func (t *Tracker) Step(ctx context.Context, index int, f *frame.Frame) (*FrameResult, error) {
	if t.state != StateTracking {
		return nil, fmt.Errorf("%w (state %v)", ErrNotTracking, t.state)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	result := &FrameResult{
		Index: index,
	}

	region := t.Config.region()
	region.Center = t.current.Target.Center
	endScore := t.Stages.Start("score")
	scored, err := classify.ConfidenceScores(t.current.Classifiers, t.current.Hash, f, region)
	endScore()
	if errors.Is(err, classify.ErrNoCandidates) {
		t.log.Warnf("Frame %v: no candidate windows inside the %vx%v frame, holding at %v", index, f.Width, f.Height, region.Center)
		result.Held = true
	} else if err != nil {
		return nil, fmt.Errorf("Frame %v: %w", index, err)
	} else {
		endPropagate := t.Stages.Start("propagate")
		prop, err := hypergraph.Propagate(scored.Positions, scored.Codes, scored.Scores, t.Config.propagation())
		endPropagate()
		if err != nil {
			return nil, fmt.Errorf("Frame %v: %w", index, err)
		}
		t.current.Target.Center = prop.Center
		result.Score = prop.Scores[prop.Best]
		result.RawScore = scored.Scores[prop.Best]
		result.Candidates = len(scored.Positions)
		t.log.Debugf("Frame %v: %v candidates, best %v score %.4f (raw %.4f), residual %.2g", index, result.Candidates, prop.Center, result.Score, result.RawScore, prop.Residual)
	}
	result.Center = t.current.Target.Center
	result.Box = t.current.Target.Box()
	t.history.Add(result.Center)

	if err := t.maybeRetrain(ctx, index, f, result); err != nil {
		return nil, err
	}

	result.Elapsed = time.Since(start)
	t.Stages.Add("frame", result.Elapsed)
	return result, nil
}

func (t *Tracker) maybeRetrain(ctx context.Context, index int, f *frame.Frame, result *FrameResult) error {
	forests := index%t.Config.ForestUpdate == 0
	classifiers := index%t.Config.ClassifierUpdate == 0
	if !forests && !classifiers {
		return nil
	}
	pos, neg := t.examples(f)
	if len(pos) == 0 || len(neg) == 0 {
		t.log.Warnf("Frame %v: skipping retrain, %v positive and %v negative examples around %v", index, len(pos), len(neg), t.current.Target.Center)
		return nil
	}
	if forests {
		if err := t.retrainForests(ctx, index, pos, neg); err != nil {
			return err
		}
		result.ForestRetrained = true
	}
	if classifiers {
		if err := t.retrainClassifiers(ctx, index, pos, neg); err != nil {
			return err
		}
		result.ClassifierRetrained = true
	}
	return nil
}
