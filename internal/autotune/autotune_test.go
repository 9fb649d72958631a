package autotune

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/ordered"
	"github.com/samcharles93/gemmforge/internal/profiler"
	"github.com/samcharles93/gemmforge/internal/selection"
)

func testSet(keys ...string) *selection.Set {
	set := &selection.Set{Map: ordered.New[string, selection.Candidate]()}
	for i, k := range keys {
		set.Set(k, selection.Candidate{Key: k, Kernel: catalog.Kernel{Arch: 80, Stages: i + 2, A: catalog.Operand{Element: gemm.F16}}})
	}
	return set
}

func TestSelectWinner(t *testing.T) {
	t.Parallel()
	set := testSet("a", "b", "c")
	tests := []struct {
		name    string
		records []profiler.Record
		want    string
	}{
		{"fastest", []profiler.Record{{Op: "a", TimeMs: 2}, {Op: "b", TimeMs: 1}, {Op: "c", TimeMs: 3}}, "b"},
		{"smaller workspace on tie", []profiler.Record{{Op: "a", TimeMs: 1, WorkspaceBytes: 64}, {Op: "c", TimeMs: 1}}, "c"},
		{"earlier candidate on full tie", []profiler.Record{{Op: "c", TimeMs: 1}, {Op: "b", TimeMs: 1}}, "b"},
		{"unknown keys ignored", []profiler.Record{{Op: "zzz", TimeMs: 0.1}, {Op: "c", TimeMs: 5}}, "c"},
		{"nan after best ignored", []profiler.Record{{Op: "b", TimeMs: 1}, {Op: "a", TimeMs: math.NaN()}}, "b"},
		{"nan first ignored", []profiler.Record{{Op: "a", TimeMs: math.NaN()}, {Op: "c", TimeMs: 3}}, "c"},
		{"infinity ignored", []profiler.Record{{Op: "a", TimeMs: math.Inf(-1)}, {Op: "c", TimeMs: 3}}, "c"},
		{"negative ignored", []profiler.Record{{Op: "a", TimeMs: -5}, {Op: "b", TimeMs: 2}}, "b"},
		{"sub-resolution ignored", []profiler.Record{{Op: "a", TimeMs: 0}, {Op: "b", TimeMs: 0.000001}, {Op: "c", TimeMs: 0.5}}, "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SelectWinner(set, tt.records)
			if err != nil {
				t.Fatalf("SelectWinner: %v", err)
			}
			if got.Key != tt.want {
				t.Fatalf("winner = %q, want %q", got.Key, tt.want)
			}
			want, _ := set.Get(tt.want)
			if got.Kernel.Stages != want.Kernel.Stages {
				t.Fatalf("winner kernel does not match candidate %q", tt.want)
			}
		})
	}

	for _, records := range [][]profiler.Record{
		{{Op: "zzz", TimeMs: 1}},
		{{Op: "a", TimeMs: math.NaN()}, {Op: "b", TimeMs: -1}, {Op: "c", TimeMs: 0}},
	} {
		if _, err := SelectWinner(set, records); !errors.Is(err, ErrNoRecords) {
			t.Fatalf("SelectWinner(%v) err = %v, want ErrNoRecords", records, err)
		}
	}
}

func TestTuneCaches(t *testing.T) {
	t.Parallel()
	set := testSet("a", "b")
	tuner := New()
	calls := 0
	run := func(_ context.Context, p profiler.Problem) ([]profiler.Record, error) {
		calls++
		if p.M != 128 {
			t.Errorf("problem = %+v", p)
		}
		return []profiler.Record{{Op: "a", TimeMs: 2}, {Op: "b", TimeMs: 1}}, nil
	}
	shape := Shape{Op: "gemm_rcr_0", M: 128, N: 64, K: 64}
	for range 3 {
		got, err := tuner.Tune(context.Background(), shape, set, run)
		if err != nil {
			t.Fatalf("Tune: %v", err)
		}
		if got.Key != "b" {
			t.Fatalf("winner = %q", got.Key)
		}
	}
	if calls != 1 {
		t.Fatalf("benchmark ran %d times", calls)
	}
	if tuner.Len() != 1 {
		t.Fatalf("Len() = %d", tuner.Len())
	}
}

func TestTuneKeepsPartialResults(t *testing.T) {
	t.Parallel()
	set := testSet("a", "b")
	boom := errors.New("exit status 1")

	partial := func(context.Context, profiler.Problem) ([]profiler.Record, error) {
		return []profiler.Record{{Op: "a", TimeMs: 2}}, boom
	}
	got, err := New().Tune(context.Background(), Shape{M: 1}, set, partial)
	if err != nil || got.Key != "a" {
		t.Fatalf("Tune = %+v, %v", got, err)
	}

	failed := func(context.Context, profiler.Problem) ([]profiler.Record, error) { return nil, boom }
	_, err = New().Tune(context.Background(), Shape{M: 1}, set, failed)
	if !errors.Is(err, boom) || !errors.Is(err, ErrNoRecords) {
		t.Fatalf("err = %v", err)
	}
}

func TestAutotunerConcurrentAccess(t *testing.T) {
	t.Parallel()
	tuner := New()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := Shape{Op: "op", M: int64(i)}
			tuner.Store(s, Result{Key: "k"})
			if _, ok := tuner.Lookup(s); !ok {
				t.Errorf("shape %d not cached", i)
			}
		}()
	}
	wg.Wait()
	if tuner.Len() != 16 {
		t.Fatalf("Len() = %d", tuner.Len())
	}
}

func TestExecPaths(t *testing.T) {
	t.Parallel()
	small := catalog.Kernel{Stages: 3}
	large := catalog.Kernel{Stages: 5}
	tuner := New()
	tuner.Store(Shape{Op: "op", M: 4096, N: 64, K: 64}, Result{Key: "large", Kernel: large})
	tuner.Store(Shape{Op: "op", M: 16, N: 64, K: 64}, Result{Key: "small", Kernel: small})
	tuner.Store(Shape{Op: "op", M: 256, N: 64, K: 64}, Result{Key: "small", Kernel: small})
	tuner.Store(Shape{Op: "op", M: 1024, N: 64, K: 64}, Result{Key: "large", Kernel: large})
	tuner.Store(Shape{Op: "other", M: 1, N: 64, K: 64}, Result{Key: "x"})

	paths := tuner.ExecPaths("op", 64, 64, 0)
	if got, want := paths.Keys(), []string{"M <= 256", "true"}; !slices.Equal(got, want) {
		t.Fatalf("conditions = %v, want %v", got, want)
	}
	if r, _ := paths.Get("M <= 256"); r.Key != "small" || r.Kernel.Stages != 3 {
		t.Fatalf("small bucket = %+v", r)
	}
	if r, _ := paths.Get("true"); r.Key != "large" || r.Kernel.Stages != 5 {
		t.Fatalf("fallback = %+v", r)
	}
	if New().ExecPaths("op", 64, 64, 0).Len() != 0 {
		t.Fatal("empty tuner produced paths")
	}
}

func TestExecPathsSeparatesProblems(t *testing.T) {
	t.Parallel()
	stages3 := catalog.Kernel{Stages: 3}
	stages4 := catalog.Kernel{Stages: 4}
	tuner := New()
	tuner.Store(Shape{Op: "op", M: 64, N: 64, K: 64, SplitK: 1}, Result{Key: "s3", Kernel: stages3})
	tuner.Store(Shape{Op: "op", M: 64, N: 4096, K: 64, SplitK: 1}, Result{Key: "s4", Kernel: stages4})
	tuner.Store(Shape{Op: "op", M: 256, N: 64, K: 64, SplitK: 1}, Result{Key: "s3", Kernel: stages3})
	tuner.Store(Shape{Op: "op", M: 64, N: 64, K: 64, SplitK: 4}, Result{Key: "s4", Kernel: stages4})

	tests := []struct {
		name   string
		n      int64
		splitK int
		want   []string
		stages []int
	}{
		{"narrow", 64, 1, []string{"true"}, []int{3}},
		{"wide", 4096, 1, []string{"true"}, []int{4}},
		{"split", 64, 4, []string{"true"}, []int{4}},
		{"untuned", 128, 1, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			paths := tuner.ExecPaths("op", tt.n, 64, tt.splitK)
			if got := paths.Keys(); !slices.Equal(got, tt.want) {
				t.Fatalf("conditions = %v, want %v", got, tt.want)
			}
			for i, r := range paths.Values() {
				if r.Kernel.Stages != tt.stages[i] {
					t.Fatalf("path %d runs stages=%d, want %d", i, r.Kernel.Stages, tt.stages[i])
				}
			}
		})
	}
}
