// Package export writes aggregated host records to CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/mkorbi/vectra-host-export/pkg/hosts"
)

// WriteCSV writes the records to path with a header row in schema order.
// The file is written to a temp file and renamed into place, so a failed
// run never leaves a partial CSV behind.
func WriteCSV(path string, records []hosts.Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	writer := csv.NewWriter(tmp)
	if err := writer.Write(hosts.FieldNames); err != nil {
		cleanup()
		return fmt.Errorf("write header: %w", err)
	}
	for i, record := range records {
		if err := writer.Write(record.Values()); err != nil {
			cleanup()
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		cleanup()
		return fmt.Errorf("flush csv: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("records", len(records)).
		Msg("Wrote host export")

	return nil
}
