package repository

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sfomuseum/go-csvdict/v2"
)

// rowHandler receives one header-keyed CSV row and its 1-based data line number
type rowHandler func(line int, row map[string]string) error

// readRows streams every data row of a CSV file keyed by header name.
// An empty file yields no rows. A final line without its newline is a write
// cut short by a crash and is not read.
func readRows(path string, fn rowHandler) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, torn, err := completeLength(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if torn {
		log.Printf("[CSV] Ignoring unterminated last line of %s", path)
	}

	r, err := csvdict.NewReader(io.NewSectionReader(f, 0, n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read CSV header of %s: %w", path, err)
	}

	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s row %d: %w", path, line, err)
		}
		if err := fn(line, row); err != nil {
			return fmt.Errorf("%s row %d: %w", path, line, err)
		}
	}
}

// readTornRow returns the complete fields of an unterminated last line, keyed
// by header. The field being written when the line was cut is left out. It
// returns nil when the file ends cleanly.
func readTornRow(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n, torn, err := completeLength(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !torn || n == 0 {
		return nil, nil
	}

	header, err := csv.NewReader(io.NewSectionReader(f, 0, n)).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header of %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	tr := csv.NewReader(io.NewSectionReader(f, n, info.Size()-n))
	tr.FieldsPerRecord = -1
	tr.LazyQuotes = true
	fields, err := tr.Read()
	if err != nil {
		return map[string]string{}, nil
	}

	row := make(map[string]string)
	for i := 0; i < len(fields)-1 && i < len(header); i++ {
		row[header[i]] = fields[i]
	}
	return row, nil
}

// completeLength returns the size of f up to and including its last newline,
// and whether bytes follow that newline.
func completeLength(f *os.File) (int64, bool, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, false, err
	}
	size := info.Size()
	if size == 0 {
		return 0, false, nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	for end := size; end > 0; {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		b := buf[:end-start]
		if _, err := f.ReadAt(b, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, false, err
		}
		if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
			n := start + int64(i) + 1
			return n, n < size, nil
		}
		end = start
	}
	return 0, true, nil
}

// writeRows replaces a CSV file with a header and rows
func writeRows(path string, header []string, rows [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write rows to %s: %w", path, err)
	}
	return f.Close()
}

// appendRows appends rows to a CSV file, writing the header only when the file is empty.
// An unterminated last line is cut off first so the new rows start on a line of their own.
func appendRows(path string, header []string, rows [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	n, torn, err := completeLength(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if torn {
		log.Printf("[CSV] Truncating unterminated last line of %s", path)
		if err := f.Truncate(n); err != nil {
			f.Close()
			return fmt.Errorf("failed to truncate %s: %w", path, err)
		}
	}

	w := csv.NewWriter(f)
	if n == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return fmt.Errorf("failed to write header to %s: %w", path, err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to append rows to %s: %w", path, err)
	}
	// Make each flushed batch durable before reporting success
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// formatFloat renders the shortest text that parses back to the same float64
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatOptString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseFloat(row map[string]string, col string) (float64, error) {
	v, ok := row[col]
	if !ok {
		return 0, fmt.Errorf("missing column %s", col)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", col, v, err)
	}
	return f, nil
}

// parseInt accepts integers written as floats ("12.0"), as pandas does for nullable columns
func parseInt(row map[string]string, col string) (int, error) {
	f, err := parseFloat(row, col)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q", col, row[col])
	}
	return int(f), nil
}

// parseOptInt returns nil for empty, missing or non-numeric cells
func parseOptInt(row map[string]string, col string) *int {
	v := strings.TrimSpace(row[col])
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

func parseOptString(row map[string]string, col string) *string {
	v, ok := row[col]
	if !ok || v == "" {
		return nil
	}
	return &v
}
