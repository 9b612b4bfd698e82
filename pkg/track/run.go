package track

import (
	"context"
	"fmt"

	"github.com/cyclopcam/hypertrack/pkg/frame"
)

// FrameSource supplies frames in tracking order. frame.DirSource satisfies it.
type FrameSource interface {
	Len() int
	Load(i int) (*frame.Frame, string, error)
}

// FrameSink receives every frame along with the target box on that frame
type FrameSink interface {
	Emit(f *frame.Frame, name string, box frame.Rect) error
}

// Run tracks the target from box on frame 0 through every frame of source.
// sink may be nil. The returned results start with frame 1.
// Cancelling ctx stops the run between frames.
func (t *Tracker) Run(ctx context.Context, source FrameSource, sink FrameSink, box frame.Rect) ([]*FrameResult, error) {
	if source.Len() == 0 {
		return nil, fmt.Errorf("No frames to track")
	}
	first, name, err := source.Load(0)
	if err != nil {
		return nil, err
	}
	if err := t.Init(ctx, first, box); err != nil {
		return nil, err
	}
	if sink != nil {
		if err := sink.Emit(first, name, t.current.Target.Box()); err != nil {
			return nil, fmt.Errorf("Failed to emit %v: %w", name, err)
		}
	}

	results := make([]*FrameResult, 0, source.Len()-1)
	for i := 1; i < source.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		f, name, err := source.Load(i)
		if err != nil {
			t.log.Errorf("Aborting on frame %v: %v", i, err)
			return results, err
		}
		r, err := t.Step(ctx, i, f)
		if err != nil {
			t.log.Errorf("Aborting on frame %v (%v): %v", i, name, err)
			return results, err
		}
		r.Name = name
		if t.Recorder != nil {
			if err := t.Recorder.RecordFrame(r); err != nil {
				return results, fmt.Errorf("Failed to record frame %v: %w", i, err)
			}
		}
		if sink != nil {
			if err := sink.Emit(f, name, r.Box); err != nil {
				return results, fmt.Errorf("Failed to emit %v: %w", name, err)
			}
		}
		t.log.Infof("Frame %v %v: center %v score %.4f", i, name, r.Center, r.Score)
		results = append(results, r)
	}
	t.state = StateTerminated
	t.log.Infof("Tracked %v frames\n%v", source.Len(), t.Stages.Summary())
	return results, nil
}
