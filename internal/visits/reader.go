package visits

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ReadJSONL reads a materialized raw report: one JSON visit per line.
// Blank lines are skipped; a malformed line is an error, since a report
// with undecodable rows cannot be trusted for stay reconstruction.
func ReadJSONL(r io.Reader) ([]RawVisit, error) {
	scanner := bufio.NewScanner(r)
	// Observation text can be long; bump the line buffer.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	var rows []RawVisit
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var v RawVisit
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("decode report line %d: %w", line, err)
		}
		rows = append(rows, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return rows, nil
}
