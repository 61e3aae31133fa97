// Package exportfs writes regenerated exports as CSV files on the local
// filesystem, one directory per tenant.
package exportfs

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claimdesk/expense-ledger/internal/domain/ledger"
)

// Sink implements ledger.ExportSink on a base directory.
type Sink struct {
	baseDir string
	logger  *slog.Logger
}

// NewSink creates a filesystem export sink rooted at baseDir.
func NewSink(baseDir string, logger *slog.Logger) *Sink {
	return &Sink{baseDir: baseDir, logger: logger}
}

func (s *Sink) Write(ctx context.Context, tenantID string, export *ledger.Export) error {
	dir := filepath.Join(s.baseDir, tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, export.FileName)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(export.Header); err != nil {
		return err
	}
	for _, row := range export.Rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	s.logger.Info("export written", "path", path, "rows", len(export.Rows))
	return nil
}

var _ ledger.ExportSink = (*Sink)(nil)
