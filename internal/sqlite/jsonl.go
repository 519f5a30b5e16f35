// This file provides JSONL read/write helpers with atomic persistence, used
// to export and import a collection's records.
package sqlite

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// maxJSONLLine bounds a single record line. Data maps can be large.
const maxJSONLLine = 4 << 20

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped and counted.
func readJSONL(path string) ([]json.RawMessage, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			skipped++
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, skipped, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// WriteRecordsJSONL writes records to path, one JSON object per line, ordered
// by date then id so exports diff cleanly.
func WriteRecordsJSONL(path string, records []*types.Record) error {
	sorted := make([]*types.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].At.Equal(sorted[j].At) {
			return sorted[i].At.Before(sorted[j].At)
		}
		return sorted[i].ID < sorted[j].ID
	})

	lines := make([]json.RawMessage, 0, len(sorted))
	for _, rec := range sorted {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record %s: %w", rec.ID, err)
		}
		lines = append(lines, data)
	}
	return writeJSONL(path, lines)
}

// ReadRecordsJSONL reads records from path. Lines that are not valid JSON,
// do not decode into a record, or lack an id or date are skipped; the count
// of skipped lines is returned. Unknown fields are ignored.
func ReadRecordsJSONL(path string) ([]*types.Record, int, error) {
	lines, skipped, err := readJSONL(path)
	if err != nil {
		return nil, skipped, err
	}
	records := make([]*types.Record, 0, len(lines))
	for _, line := range lines {
		var rec types.Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" || rec.Validate() != nil {
			skipped++
			continue
		}
		records = append(records, &rec)
	}
	return records, skipped, nil
}
