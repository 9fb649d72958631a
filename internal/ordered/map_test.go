package ordered

import (
	"slices"
	"testing"
)

func TestMapPreservesInsertionOrder(t *testing.T) {
	t.Parallel()
	var m Map[string, int]
	for i, k := range []string{"sparse_b", "sparse_a", "sm90_tma", "sm90_nosmem"} {
		if !m.Set(k, i) {
			t.Fatalf("Set(%q) reported existing key", k)
		}
	}
	if m.Set("sparse_a", 42) {
		t.Fatal("overwrite reported as insert")
	}
	want := []string{"sparse_b", "sparse_a", "sm90_tma", "sm90_nosmem"}
	if got := m.Keys(); !slices.Equal(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if v, ok := m.Get("sparse_a"); !ok || v != 42 {
		t.Fatalf("Get(sparse_a) = %d, %v", v, ok)
	}

	var seen []string
	for k := range m.All() {
		seen = append(seen, k)
		if len(seen) == 2 {
			break
		}
	}
	if !slices.Equal(seen, want[:2]) {
		t.Fatalf("early-exit iteration = %v", seen)
	}
}

func TestMapFilter(t *testing.T) {
	t.Parallel()
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	odd := m.Filter(func(_ string, v int) bool { return v%2 == 1 })
	if got := odd.Keys(); !slices.Equal(got, []string{"a", "c"}) {
		t.Fatalf("Filter keys = %v", got)
	}
	if m.Len() != 3 {
		t.Fatal("Filter mutated the source map")
	}
}

func TestNilMap(t *testing.T) {
	t.Parallel()
	var m *Map[string, int]
	if m.Len() != 0 || m.Has("x") || m.Keys() != nil {
		t.Fatal("nil map should behave as empty")
	}
	for range m.All() {
		t.Fatal("nil map yielded")
	}
}
