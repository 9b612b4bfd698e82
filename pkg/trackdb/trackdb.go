// Package trackdb stores tracking runs in sqlite: per-frame results, retrain events,
// and optionally the training sets that each retrain was built from.
package trackdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/hypertrack/pkg/foresthash"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/cyclopcam/hypertrack/pkg/track"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TrackDB struct {
	Log logs.Log
	DB  *gorm.DB
}

func Open(log logs.Log, dbFilename string) (*TrackDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbFilename), 0755); err != nil {
		return nil, err
	}
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &TrackDB{
		Log: log,
		DB:  db,
	}, nil
}

func (t *TrackDB) Close() error {
	sqlDB, err := t.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun creates a new run record
func (t *TrackDB) StartRun(framesDir string, cfg track.Config, box frame.Rect) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		StartedAt:  dbh.MakeIntTime(time.Now()),
		FramesDir:  framesDir,
		Config:     &dbh.JSONField[track.Config]{Data: cfg},
		InitX:      box.X,
		InitY:      box.Y,
		InitWidth:  box.Width,
		InitHeight: box.Height,
	}
	if err := t.DB.Create(run).Error; err != nil {
		return nil, err
	}
	t.Log.Infof("Started run %v", run.ID)
	return run, nil
}

func (t *TrackDB) FinishRun(run *Run, summary string) error {
	run.FinishedAt = dbh.MakeIntTime(time.Now())
	run.Summary = summary
	return t.DB.Model(run).Updates(map[string]any{
		"finished_at": run.FinishedAt,
		"summary":     summary,
	}).Error
}

// Runs returns all runs, most recent first
func (t *TrackDB) Runs() ([]*Run, error) {
	runs := []*Run{}
	err := t.DB.Order("started_at DESC").Find(&runs).Error
	return runs, err
}

func (t *TrackDB) Frames(runID string) ([]*FrameResult, error) {
	frames := []*FrameResult{}
	err := t.DB.Where("run_id = ?", runID).Order("idx").Find(&frames).Error
	return frames, err
}

func (t *TrackDB) Retrains(runID string) ([]*Retrain, error) {
	retrains := []*Retrain{}
	err := t.DB.Where("run_id = ?", runID).Order("id").Find(&retrains).Error
	return retrains, err
}

// Snapshot returns the training set of a retrain. Returns gorm.ErrRecordNotFound if none was stored.
func (t *TrackDB) Snapshot(retrainID int64) ([]foresthash.Sample, error) {
	snap := Snapshot{}
	if err := t.DB.Where("retrain_id = ?", retrainID).First(&snap).Error; err != nil {
		return nil, err
	}
	return snap.Samples.Data, nil
}

// Recorder returns a track.Recorder that writes into run
func (t *TrackDB) Recorder(run *Run) track.Recorder {
	return &recorder{
		db:    t.DB,
		runID: run.ID,
	}
}

type recorder struct {
	db    *gorm.DB
	runID string
}

func (r *recorder) RecordFrame(f *track.FrameResult) error {
	return r.db.Create(&FrameResult{
		RunID:               r.runID,
		Idx:                 f.Index,
		Name:                f.Name,
		X:                   f.Center.X,
		Y:                   f.Center.Y,
		Score:               f.Score,
		RawScore:            f.RawScore,
		Candidates:          f.Candidates,
		Held:                f.Held,
		ForestRetrained:     f.ForestRetrained,
		ClassifierRetrained: f.ClassifierRetrained,
		ElapsedMS:           float64(f.Elapsed.Microseconds()) / 1000,
	}).Error
}

func (r *recorder) RecordRetrain(rt *track.Retrain) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		row := &Retrain{
			RunID:     r.runID,
			Idx:       rt.Index,
			Kind:      string(rt.Kind),
			X:         rt.Center.X,
			Y:         rt.Center.Y,
			Positives: rt.Positives,
			Negatives: rt.Negatives,
			ElapsedMS: float64(rt.Elapsed.Microseconds()) / 1000,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		if len(rt.Samples) == 0 {
			return nil
		}
		return tx.Create(&Snapshot{
			RetrainID: row.ID,
			Samples:   &dbh.JSONField[[]foresthash.Sample]{Data: rt.Samples},
		}).Error
	})
}
