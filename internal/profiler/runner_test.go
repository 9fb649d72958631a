package profiler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/samcharles93/gemmforge/internal/logger"
)

// fakeHarness writes an executable shell script standing in for a compiled harness.
func fakeHarness(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell harness needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "harness")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write harness: %v", err)
	}
	return path
}

func TestRunnerRun(t *testing.T) {
	t.Parallel()
	bin := fakeHarness(t, `echo "args $*"
echo "OP:cutlass_a,TIME:0.5,WS:0"
echo "candidate cutlass_b failed" >&2
echo "OP:cutlass_c,TIME:0.25,WS:128"
`)
	var logs strings.Builder
	r := &Runner{Binary: bin, Log: logger.Text(&logs, logger.ParseLevel("debug"))}
	records, err := r.Run(context.Background(), Problem{M: 8, N: 16, K: 32, SplitK: 2})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(records) != 2 || records[1].Op != "cutlass_c" || records[1].WorkspaceBytes != 128 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if !strings.Contains(logs.String(), "candidate cutlass_b failed") {
		t.Fatalf("stderr not logged: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "8 16 32 2") {
		t.Fatalf("args not logged: %s", logs.String())
	}
}

func TestRunnerKeepsRecordsOnFailure(t *testing.T) {
	t.Parallel()
	bin := fakeHarness(t, `echo "OP:cutlass_a,TIME:0.5,WS:0"
exit 3
`)
	r := &Runner{Binary: bin, Log: logger.Discard()}
	records, err := r.Run(context.Background(), Problem{M: 1, N: 1, K: 1})
	if err == nil {
		t.Fatal("expected error from failing harness")
	}
	if len(records) != 1 {
		t.Fatalf("expected partial records, got %+v", records)
	}
}

func TestRunnerContextCancel(t *testing.T) {
	t.Parallel()
	bin := fakeHarness(t, "exec sleep 5\n")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r := &Runner{Binary: bin, Log: logger.Discard()}
	if _, err := r.Run(ctx, Problem{M: 1, N: 1, K: 1}); err == nil || !strings.Contains(err.Error(), context.DeadlineExceeded.Error()) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRunnerMalformedOutput(t *testing.T) {
	t.Parallel()
	bin := fakeHarness(t, `echo "OP:cutlass_a,TIME:soon,WS:0"
`)
	r := &Runner{Binary: bin, Log: logger.Discard()}
	if _, err := r.Run(context.Background(), Problem{M: 1, N: 1, K: 1}); err == nil || !strings.Contains(err.Error(), ErrMalformedRecord.Error()) {
		t.Fatalf("expected malformed record error, got %v", err)
	}
}
