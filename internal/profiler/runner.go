package profiler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/samcharles93/gemmforge/internal/logger"
)

// Problem is the command line of a harness run.
type Problem struct {
	M, N, K int64
	SplitK  int
}

// Args returns the harness arguments: M N K [split_k].
func (p Problem) Args() []string {
	args := []string{
		strconv.FormatInt(p.M, 10),
		strconv.FormatInt(p.N, 10),
		strconv.FormatInt(p.K, 10),
	}
	if p.SplitK > 1 {
		args = append(args, strconv.Itoa(p.SplitK))
	}
	return args
}

// Runner executes a compiled harness binary. Runs are sequential: one process at a time,
// bounded by the caller's context.
type Runner struct {
	Binary string
	Log    logger.Logger
}

// Run executes the harness for p and returns the records it printed. Candidates that
// failed inside the harness are absent from the result; their diagnostics are logged.
func (r *Runner) Run(ctx context.Context, p Problem) ([]Record, error) {
	log := r.Log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, p.Args()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	log.Debug("harness finished", "binary", r.Binary, "args", strings.Join(p.Args(), " "), "elapsed", time.Since(start))

	sc := bufio.NewScanner(&stderr)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			log.Warn("harness diagnostic", "line", line)
		}
	}

	records, err := ParseRecords(&stdout)
	if err != nil {
		return records, fmt.Errorf("profiler: %s: %w", r.Binary, err)
	}
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return records, fmt.Errorf("profiler: %s: %w", r.Binary, ctxErr)
		}
		return records, fmt.Errorf("profiler: run %s: %w", r.Binary, runErr)
	}
	return records, nil
}
