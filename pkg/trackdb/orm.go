package trackdb

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/hypertrack/pkg/foresthash"
	"github.com/cyclopcam/hypertrack/pkg/track"
)

// Run is one invocation of the tracker over a directory of frames
type Run struct {
	ID         string                       `gorm:"primaryKey" json:"id"` // UUID
	StartedAt  dbh.IntTime                  `json:"startedAt"`
	FinishedAt dbh.IntTime                  `json:"finishedAt"`
	FramesDir  string                       `json:"framesDir"`
	Config     *dbh.JSONField[track.Config] `json:"config"`
	InitX      int                          `json:"initX"`
	InitY      int                          `json:"initY"`
	InitWidth  int                          `json:"initWidth"`
	InitHeight int                          `json:"initHeight"`
	Summary    string                       `json:"summary"`
}

// FrameResult is the stored form of track.FrameResult
type FrameResult struct {
	RunID               string  `gorm:"primaryKey;autoIncrement:false" json:"runID"`
	Idx                 int     `gorm:"primaryKey;autoIncrement:false" json:"idx"`
	Name                string  `json:"name"`
	X                   int     `json:"x"`
	Y                   int     `json:"y"`
	Score               float64 `json:"score"`
	RawScore            float64 `json:"rawScore"`
	Candidates          int     `json:"candidates"`
	Held                bool    `json:"held"`
	ForestRetrained     bool    `json:"forestRetrained"`
	ClassifierRetrained bool    `json:"classifierRetrained"`
	ElapsedMS           float64 `gorm:"column:elapsed_ms" json:"elapsedMS"`
}

type Retrain struct {
	ID        int64   `gorm:"primaryKey" json:"id"`
	RunID     string  `json:"runID"`
	Idx       int     `json:"idx"`
	Kind      string  `json:"kind"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Positives int     `json:"positives"`
	Negatives int     `json:"negatives"`
	ElapsedMS float64 `gorm:"column:elapsed_ms" json:"elapsedMS"`
}

// Snapshot holds the training set that a retrain was built from
type Snapshot struct {
	RetrainID int64                               `gorm:"primaryKey;autoIncrement:false" json:"retrainID"`
	Samples   *dbh.JSONField[[]foresthash.Sample] `json:"samples"`
}
