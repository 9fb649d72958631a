// Package autotune picks the fastest candidate from harness records and remembers the
// choice per problem shape.
package autotune

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/ordered"
	"github.com/samcharles93/gemmforge/internal/profiler"
	"github.com/samcharles93/gemmforge/internal/selection"
)

// ErrNoRecords means no record named a candidate of the set.
var ErrNoRecords = errors.New("no benchmark records for the candidate set")

// Shape is one tuned problem of one operator.
type Shape struct {
	Op     string `json:"op"`
	M      int64  `json:"m"`
	N      int64  `json:"n"`
	K      int64  `json:"k"`
	SplitK int    `json:"split_k,omitempty"`
}

func (s Shape) Problem() profiler.Problem {
	return profiler.Problem{M: s.M, N: s.N, K: s.K, SplitK: s.SplitK}
}

// Result is the winner for a shape.
type Result struct {
	Key            string         `json:"key"`
	TimeMs         float64        `json:"time_ms"`
	WorkspaceBytes int64          `json:"workspace_bytes"`
	Kernel         catalog.Kernel `json:"kernel"`
}

// SelectWinner returns the candidate with the lowest time. Ties go to the smaller
// workspace, then to the earlier candidate. Records for keys outside set and records that
// fail Record.Validate are ignored.
func SelectWinner(set *selection.Set, records []profiler.Record) (Result, error) {
	best, bestIdx := Result{}, -1
	keys := set.Keys()
	for _, r := range records {
		c, ok := set.Get(r.Op)
		if !ok || r.Validate() != nil {
			continue
		}
		idx := slices.Index(keys, r.Op)
		if bestIdx >= 0 {
			switch {
			case r.TimeMs > best.TimeMs:
				continue
			case r.TimeMs == best.TimeMs && r.WorkspaceBytes > best.WorkspaceBytes:
				continue
			case r.TimeMs == best.TimeMs && r.WorkspaceBytes == best.WorkspaceBytes && idx >= bestIdx:
				continue
			}
		}
		best = Result{Key: r.Op, TimeMs: r.TimeMs, WorkspaceBytes: r.WorkspaceBytes, Kernel: c.Kernel}
		bestIdx = idx
	}
	if bestIdx < 0 {
		return Result{}, fmt.Errorf("autotune: %d records: %w", len(records), ErrNoRecords)
	}
	return best, nil
}

// RunFunc benchmarks every candidate for one problem. profiler.Runner.Run satisfies it.
type RunFunc func(ctx context.Context, p profiler.Problem) ([]profiler.Record, error)

// Autotuner caches winners per shape for the life of the process.
type Autotuner struct {
	mu    sync.RWMutex
	cache map[Shape]Result
}

func New() *Autotuner {
	return &Autotuner{
		cache: make(map[Shape]Result),
	}
}

// Lookup returns the cached winner for shape.
func (t *Autotuner) Lookup(shape Shape) (Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.cache[shape]
	return r, ok
}

// Store records a winner, replacing any previous one.
func (t *Autotuner) Store(shape Shape, r Result) {
	t.mu.Lock()
	t.cache[shape] = r
	t.mu.Unlock()
}

// Tune returns the cached winner for shape, or runs the benchmark and caches its winner.
// Records are kept even when run fails part way, as long as one candidate reported.
func (t *Autotuner) Tune(ctx context.Context, shape Shape, set *selection.Set, run RunFunc) (Result, error) {
	if r, ok := t.Lookup(shape); ok {
		return r, nil
	}
	records, runErr := run(ctx, shape.Problem())
	best, err := SelectWinner(set, records)
	if err != nil {
		if runErr != nil {
			return Result{}, errors.Join(runErr, err)
		}
		return Result{}, err
	}
	t.Store(shape, best)
	return best, nil
}

// Len is the number of cached shapes.
func (t *Autotuner) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}

// ExecPaths builds dispatch exec conditions for one problem family of op: the tuned
// shapes with the given N, K and split-K, ordered by M. Each shape covers M up to its own
// value; the largest covers everything above. Shapes whose winner matches the next
// bucket's are merged into it.
func (t *Autotuner) ExecPaths(op string, n, k int64, splitK int) *ordered.Map[string, Result] {
	t.mu.RLock()
	var shapes []Shape
	for s := range t.cache {
		if s.Op == op && s.N == n && s.K == k && s.SplitK == splitK {
			shapes = append(shapes, s)
		}
	}
	slices.SortFunc(shapes, func(a, b Shape) int { return cmp.Compare(a.M, b.M) })
	winners := make([]Result, len(shapes))
	for i, s := range shapes {
		winners[i] = t.cache[s]
	}
	t.mu.RUnlock()

	paths := ordered.New[string, Result]()
	for i, s := range shapes {
		if i == len(shapes)-1 {
			paths.Set("true", winners[i])
			break
		}
		if winners[i].Key == winners[i+1].Key {
			continue
		}
		paths.Set("M <= "+strconv.FormatInt(s.M, 10), winners[i])
	}
	return paths
}
