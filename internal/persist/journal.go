package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LocationEntry is one cell-set change of an entity.
type LocationEntry struct {
	Tick      int64
	Entity    uint64
	Checksum  int16
	Cells     []int64 // packed cell keys; empty when the entity left the index
	IsReindex bool
}

// DetectionEntry is one detection relation starting or ending.
type DetectionEntry struct {
	Tick     int64
	Observer uint64
	Target   uint64
	Detected bool
}

// JournalRepo records grid changes of one simulation run.
type JournalRepo struct {
	db    *DB
	runID int64
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// StartRun registers a run and scopes every later write to it.
func (r *JournalRepo) StartRun(ctx context.Context, scene string, cellSize float32) (int64, error) {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO grid_runs (scene, cell_size) VALUES ($1, $2) RETURNING id`,
		scene, cellSize,
	).Scan(&r.runID)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return r.runID, nil
}

// WriteLocations bulk-loads location entries with COPY.
func (r *JournalRepo) WriteLocations(ctx context.Context, entries []LocationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]any, len(entries))
	for i, e := range entries {
		cells := e.Cells
		if cells == nil {
			cells = []int64{}
		}
		rows[i] = []any{r.runID, e.Tick, int64(e.Entity), e.Checksum, cells, e.IsReindex}
	}
	_, err := r.db.Pool.CopyFrom(ctx,
		pgx.Identifier{"location_journal"},
		[]string{"run_id", "tick", "entity", "checksum", "cells", "is_reindex"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy locations: %w", err)
	}
	return nil
}

// WriteDetections atomically writes a batch of detection entries in a
// single transaction.
func (r *JournalRepo) WriteDetections(ctx context.Context, entries []DetectionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("detections begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO detection_journal (run_id, tick, observer, target, detected)
			 VALUES ($1, $2, $3, $4, $5)`,
			r.runID, e.Tick, int64(e.Observer), int64(e.Target), e.Detected,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("detections insert: %w", err)
	}
	return tx.Commit(ctx)
}
