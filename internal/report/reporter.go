package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tradeledger/internal/ledger"
)

// FileReporter writes report files to Dir/<portfolio>/ after each run.
type FileReporter struct {
	Dir      string
	Formats  []Format
	Currency string
}

// NewFileReporter creates a reporter writing every format to dir.
func NewFileReporter(dir, currency string) *FileReporter {
	return &FileReporter{
		Dir:      dir,
		Formats:  []Format{FormatText, FormatJSON, FormatCSV},
		Currency: currency,
	}
}

var fileNames = map[Format]string{
	FormatText: "report.txt",
	FormatJSON: "report.json",
	FormatYAML: "report.yaml",
	FormatCSV:  "equity.csv",
}

// Report writes one file per configured format. CSV output also writes
// positions.csv.
func (r *FileReporter) Report(ctx context.Context, portfolioID string, res *ledger.Result) error {
	dir := filepath.Join(r.Dir, portfolioID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	opts := TextOptions{Currency: r.Currency, Days: 10}
	for _, format := range r.Formats {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, ok := fileNames[format]
		if !ok {
			return fmt.Errorf("unknown report format %q", format)
		}
		if err := writeFile(filepath.Join(dir, name), func(w io.Writer) error {
			return Write(w, format, portfolioID, res, opts)
		}); err != nil {
			return err
		}
		if format == FormatCSV {
			if err := writeFile(filepath.Join(dir, "positions.csv"), func(w io.Writer) error {
				return WritePositionsCSV(w, res)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
