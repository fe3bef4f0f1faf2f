// Package store persists self-play training data as parquet batches.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// TrainingRow is a single supervised training sample.
//
// State is the encoded (4,4,4,4) input tensor, flattened plane-major.
// Policy is the distribution target: the normalized MCTS visit counts
// over the 16 columns. Value is the final game outcome in [-1..1] from
// the perspective of the player to move at this position.
//
// Symmetry is which of the 8 board symmetries produced the row (0 is
// the original position); trainers can filter on it.
type TrainingRow struct {
	GameID   string    `parquet:"game_id,dict"`
	Turn     int32     `parquet:"turn"`
	Player   int32     `parquet:"player"`
	Symmetry int32     `parquet:"symmetry"`
	State    []float32 `parquet:"state"`
	Policy   []float32 `parquet:"policy"`
	Value    float32   `parquet:"value"`
	Source   string    `parquet:"source,dict"`
}

// schemaVersion tags every file so trainers can reject stale layouts.
const schemaVersion = "training_row_v1"

// writeOptions returns the parquet options shared by every writer in
// this package. Page bounds are skipped for the wide state column;
// nothing filters on it.
func writeOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("state"),
	}
}

// WriteGameParquet writes rows to outPath via a temp file and an atomic
// rename.
func WriteGameParquet(outPath string, rows []TrainingRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	opts := append(writeOptions(), parquet.KeyValueMetadata("schema", schemaVersion))
	if err := parquet.WriteFile(tmpPath, rows, opts...); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// WriteBatchParquetAtomic writes a parquet file into outDir/tmp and then
// atomically moves it into outDir, so readers never observe a
// partially-written batch.
func WriteBatchParquetAtomic(outDir string, rows []TrainingRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := batchName()
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	opts := append(writeOptions(), parquet.KeyValueMetadata("schema", schemaVersion))
	if err := parquet.WriteFile(tmpPath, rows, opts...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

func batchName() string {
	return fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
}
