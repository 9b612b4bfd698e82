package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/cyclopcam/hypertrack/pkg/render"
	"github.com/cyclopcam/hypertrack/pkg/report"
	"github.com/cyclopcam/hypertrack/pkg/track"
	"github.com/cyclopcam/hypertrack/pkg/trackdb"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	parser := argparse.NewParser("hypertrack", "Track a single object through a directory of frames")
	framesDir := parser.String("f", "frames", &argparse.Options{Help: "Directory of .jpg or .png frames, tracked in filename order", Required: true})
	outputDir := parser.String("o", "output", &argparse.Options{Help: "Directory to write frames with the target box drawn on them", Required: true})
	boxStr := parser.String("b", "box", &argparse.Options{Help: "Target box on the first frame, as x,y,width,height", Required: true})
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON tracker config. Missing fields keep their defaults.", Default: ""})
	dbFile := parser.String("d", "db", &argparse.Options{Help: "Record the run into this sqlite database", Default: ""})
	plotDir := parser.String("p", "plot", &argparse.Options{Help: "Write score and trajectory plots into this directory", Default: ""})
	patchSize := parser.Int("", "patch", &argparse.Options{Help: "Patch size in pixels (default: config)", Default: -1})
	radius := parser.Int("", "radius", &argparse.Options{Help: "Candidate search radius (default: config)", Default: -1})
	stride := parser.Int("", "stride", &argparse.Options{Help: "Candidate grid stride (default: config)", Default: -1})
	alpha := parser.Float("", "alpha", &argparse.Options{Help: "Positive example radius (default: config)", Default: -1.0})
	beta := parser.Float("", "beta", &argparse.Options{Help: "Negative example radius (default: config)", Default: -1.0})
	trees := parser.Int("", "trees", &argparse.Options{Help: "Trees per forest (default: config)", Default: -1})
	forests := parser.Int("", "forests", &argparse.Options{Help: "Forests, which is the hash code length (default: config)", Default: -1})
	treeSample := parser.Int("", "treesample", &argparse.Options{Help: "Training sample size per tree (default: config)", Default: -1})
	forestUpdate := parser.Int("", "forestupdate", &argparse.Options{Help: "Retrain forests every N frames (default: config)", Default: -1})
	classifierUpdate := parser.Int("", "classifierupdate", &argparse.Options{Help: "Retrain classifiers every N frames (default: config)", Default: -1})
	iterations := parser.Int("", "iterations", &argparse.Options{Help: "Hypergraph propagation iterations (default: config)", Default: -1})
	restart := parser.Float("", "restart", &argparse.Options{Help: "Hypergraph propagation alpha (default: config)", Default: -1.0})
	workers := parser.Int("", "workers", &argparse.Options{Help: "Forests built concurrently (default: config)", Default: -1})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Random seed (default: config)", Default: -1})
	snapshots := parser.Flag("", "snapshots", &argparse.Options{Help: "Store every training set in the database", Default: false})
	err = parser.Parse(os.Args)
	if err != nil {
		logger.Errorf(parser.Usage(err))
		os.Exit(1)
	}

	box, err := frame.ParseRect(*boxStr)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	cfg := track.DefaultConfig()
	if *configFile != "" {
		loaded, err := track.LoadConfig(*configFile)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	overrides := track.Overrides{
		PatchSize:        optional(*patchSize),
		Radius:           optional(*radius),
		Stride:           optional(*stride),
		Alpha:            optional(*alpha),
		Beta:             optional(*beta),
		Trees:            optional(*trees),
		Forests:          optional(*forests),
		TreeSample:       optional(*treeSample),
		ForestUpdate:     optional(*forestUpdate),
		ClassifierUpdate: optional(*classifierUpdate),
		Iterations:       optional(*iterations),
		Restart:          optional(*restart),
		Workers:          optional(*workers),
	}
	if *seed >= 0 {
		s := uint64(*seed)
		overrides.Seed = &s
	}
	if *snapshots {
		overrides.Snapshots = snapshots
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	source, err := frame.NewDirSource(*framesDir)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.Infof("Tracking %v frames from %v", source.Len(), *framesDir)

	sink, err := render.NewBoxWriter(*outputDir)
	check(err)

	tracker, err := track.New(logger, cfg, nil)
	check(err)

	var db *trackdb.TrackDB
	var run *trackdb.Run
	if *dbFile != "" {
		db, err = trackdb.Open(logger, *dbFile)
		check(err)
		run, err = db.StartRun(*framesDir, cfg, box)
		check(err)
		tracker.Recorder = db.Recorder(run)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	results, runErr := tracker.Run(ctx, source, sink, box)
	summary := report.Summarize(results)
	if runErr != nil {
		logger.Errorf("Tracking stopped: %v", runErr)
	}
	logger.Infof("%v", summary)

	if db != nil {
		if err := db.FinishRun(run, summary.String()); err != nil {
			logger.Errorf("Failed to finish run %v: %v", run.ID, err)
		}
		db.Close()
	}
	if *plotDir != "" && len(results) != 0 {
		if err := report.SavePlots(*plotDir, results); err != nil {
			logger.Errorf("%v", err)
		}
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// Numeric flags default to -1, which no config field accepts, so a negative value means "not given"
func optional[T int | float64](v T) *T {
	if v < 0 {
		return nil
	}
	return &v
}
