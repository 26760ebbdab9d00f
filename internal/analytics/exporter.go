package analytics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// exportPageSize is how many rows each database fetch pulls during export.
const exportPageSize = 1000

// Exporter writes stored risk events to parquet files for offline
// analysis.
type Exporter struct {
	store  *Store
	logger *zap.Logger
}

// NewExporter creates an exporter backed by store.
func NewExporter(store *Store, logger *zap.Logger) *Exporter {
	return &Exporter{store: store, logger: logger}
}

// Export writes every stored risk event to a parquet file at path,
// paginating through the table by ID.
func (e *Exporter) Export(ctx context.Context, path string) (*ExportResult, error) {
	start := time.Now()

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file)

	var rows int64
	var afterID int64
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page, err := e.store.FetchPage(ctx, afterID, exportPageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, ev := range page {
			row := rowFromEvent(ev)
			if err := writer.Write(&row); err != nil {
				return nil, fmt.Errorf("failed to write parquet row: %w", err)
			}
			rows++
		}
		afterID = page[len(page)-1].ID
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}

	result := &ExportResult{
		Path:     path,
		Rows:     rows,
		Duration: time.Since(start),
	}

	e.logger.Info("Export completed",
		zap.String("path", path),
		zap.Int64("rows", rows),
		zap.Duration("duration", result.Duration))

	return result, nil
}
