package trackdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id TEXT PRIMARY KEY,
			started_at INT NOT NULL,
			finished_at INT,
			frames_dir TEXT NOT NULL,
			config TEXT NOT NULL,
			init_x INT NOT NULL,
			init_y INT NOT NULL,
			init_width INT NOT NULL,
			init_height INT NOT NULL,
			summary TEXT
		);

		CREATE TABLE frame_result(
			run_id TEXT NOT NULL REFERENCES run(id) ON DELETE CASCADE,
			idx INT NOT NULL,
			name TEXT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			score REAL NOT NULL,
			raw_score REAL NOT NULL,
			candidates INT NOT NULL,
			held INT NOT NULL,
			forest_retrained INT NOT NULL,
			classifier_retrained INT NOT NULL,
			elapsed_ms REAL NOT NULL,
			PRIMARY KEY (run_id, idx)
		) WITHOUT ROWID;
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE retrain(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES run(id) ON DELETE CASCADE,
			idx INT NOT NULL,
			kind TEXT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			positives INT NOT NULL,
			negatives INT NOT NULL,
			elapsed_ms REAL NOT NULL
		);
		CREATE INDEX idx_retrain_run ON retrain(run_id, idx);

		CREATE TABLE snapshot(
			retrain_id INTEGER PRIMARY KEY REFERENCES retrain(id) ON DELETE CASCADE,
			samples TEXT NOT NULL
		);
	`))

	return migs
}
