package timeline

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gitviz/gitviz/internal/models"
)

// The serialized log is one pipe-delimited line per entry:
//
//	offset_ms|name|action_code|path
//
// The path is the last field, so paths containing pipes survive; names
// cannot, so pipes in names become spaces at write time.

// WriteLog serializes entries in order. Callers pass entries sorted by
// offset; WriteLog does not reorder.
func WriteLog(w io.Writer, entries []models.TimelineEntry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		name := strings.ReplaceAll(e.Name, "|", " ")
		if _, err := fmt.Fprintf(bw, "%d|%s|%s|%s\n",
			e.Offset.Milliseconds(), name, e.Action.Code(), e.Path); err != nil {
			return fmt.Errorf("writing timeline log: %w", err)
		}
	}
	return bw.Flush()
}

// ReadLog parses a serialized timeline log back into entries.
func ReadLog(r io.Reader) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("timeline log line %d: expected 4 fields, got %d", lineNo, len(parts))
		}

		ms, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("timeline log line %d: bad offset %q: %w", lineNo, parts[0], err)
		}
		action, err := models.ParseAction(parts[2])
		if err != nil {
			return nil, fmt.Errorf("timeline log line %d: %w", lineNo, err)
		}

		entries = append(entries, models.TimelineEntry{
			Offset: time.Duration(ms) * time.Millisecond,
			Name:   parts[1],
			Action: action,
			Path:   parts[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading timeline log: %w", err)
	}
	return entries, nil
}
