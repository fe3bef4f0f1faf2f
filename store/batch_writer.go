package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// BatchWriter streams training rows into a parquet file under
// outDir/tmp as games finish, so a flush never has to re-serialize a
// large in-memory buffer. Finalize publishes the file into outDir with
// a rename; until then readers scanning outDir never see it.
//
// A BatchWriter is single-use. The writer loop in cmd/selfplay opens a
// fresh one per flush interval.
type BatchWriter struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TrainingRow]

	rows  int
	games int
}

func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := batchName()
	b := &BatchWriter{
		tmpPath: filepath.Join(tmpDir, name),
		outPath: filepath.Join(outDir, name),
	}

	f, err := os.OpenFile(b.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}
	b.file = f
	b.writer = parquet.NewGenericWriter[TrainingRow](f, writeOptions()...)
	b.writer.SetKeyValueMetadata("schema", schemaVersion)

	return b, nil
}

func (b *BatchWriter) TmpPath() string    { return b.tmpPath }
func (b *BatchWriter) OutPath() string    { return b.outPath }
func (b *BatchWriter) BufferedRows() int  { return b.rows }
func (b *BatchWriter) BufferedGames() int { return b.games }

func (b *BatchWriter) WriteRows(rows []TrainingRow) error {
	if b.writer == nil {
		return fmt.Errorf("batch writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := b.writer.Write(rows); err != nil {
		return err
	}
	b.rows += len(rows)
	return nil
}

// NoteGameWritten counts one complete game toward the flush threshold;
// WriteRows alone cannot tell games apart.
func (b *BatchWriter) NoteGameWritten() {
	b.games++
}

// Finalize closes the parquet stream and moves the file from tmp/ into
// the output directory. A writer that saw no rows removes its tmp file
// and reports an empty outPath; empty batches are never published.
func (b *BatchWriter) Finalize() (outPath string, rows int, games int, err error) {
	if b.writer == nil {
		return "", 0, 0, nil
	}

	rows, games = b.rows, b.games

	closeErr := b.writer.Close()
	b.writer = nil
	_ = b.file.Sync()
	fileErr := b.file.Close()
	b.file = nil
	if err := errors.Join(closeErr, fileErr); err != nil {
		return "", 0, 0, fmt.Errorf("close parquet: %w", err)
	}

	if rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, 0, fmt.Errorf("rename parquet: %w", err)
	}
	return b.outPath, rows, games, nil
}
