package profiler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedRecord = errors.New("malformed profiler record")
	// ErrSubResolution marks a timing below the timer floor: the kernel did not run.
	ErrSubResolution = errors.New("timing below timer resolution")
)

// MinElapsedMs is the timer resolution floor shared with the generated harness.
const MinElapsedMs = 0.00001

// Record is one line of harness output: OP:<key>,TIME:<ms>,WS:<bytes>.
type Record struct {
	Op             string  `json:"op"`
	TimeMs         float64 `json:"time_ms"`
	WorkspaceBytes int64   `json:"workspace_bytes"`
}

func (r Record) String() string {
	return fmt.Sprintf("OP:%s,TIME:%s,WS:%d", r.Op, strconv.FormatFloat(r.TimeMs, 'g', -1, 64), r.WorkspaceBytes)
}

// Validate rejects timings no benchmark can produce. A finite time below MinElapsedMs is
// ErrSubResolution; NaN, infinities and negative times are ErrMalformedRecord.
func (r Record) Validate() error {
	switch {
	case math.IsNaN(r.TimeMs) || math.IsInf(r.TimeMs, 0) || r.TimeMs < 0:
		return fmt.Errorf("%w: %s: time %v", ErrMalformedRecord, r.Op, r.TimeMs)
	case r.TimeMs < MinElapsedMs:
		return fmt.Errorf("%w: %s: %v ms", ErrSubResolution, r.Op, r.TimeMs)
	case r.WorkspaceBytes < 0:
		return fmt.Errorf("%w: %s: workspace %d", ErrMalformedRecord, r.Op, r.WorkspaceBytes)
	}
	return nil
}

// ParseRecord parses a single record line.
func ParseRecord(line string) (Record, error) {
	var r Record
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return r, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}
	var seen [3]bool
	for _, f := range fields {
		key, val, ok := strings.Cut(f, ":")
		if !ok {
			return r, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
		}
		switch key {
		case "OP":
			if val == "" {
				return r, fmt.Errorf("%w: empty op in %q", ErrMalformedRecord, line)
			}
			r.Op, seen[0] = val, true
		case "TIME":
			t, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return r, fmt.Errorf("%w: time %q: %v", ErrMalformedRecord, val, err)
			}
			r.TimeMs, seen[1] = t, true
		case "WS":
			ws, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return r, fmt.Errorf("%w: workspace %q: %v", ErrMalformedRecord, val, err)
			}
			r.WorkspaceBytes, seen[2] = ws, true
		default:
			return r, fmt.Errorf("%w: unknown field %q", ErrMalformedRecord, key)
		}
	}
	if seen != [3]bool{true, true, true} {
		return r, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}
	return r, r.Validate()
}

// ParseRecords reads harness stdout. Lines that do not start with "OP:" are diagnostics
// and are skipped, as are sub-resolution records; other record lines that fail to parse
// are errors.
func ParseRecords(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "OP:") {
			continue
		}
		rec, err := ParseRecord(line)
		if errors.Is(err, ErrSubResolution) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("profiler: read records: %w", err)
	}
	return out, nil
}
