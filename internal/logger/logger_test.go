package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("filtered", "candidates", 12)

	output := buf.String()
	for _, want := range []string{`"msg":"filtered"`, `"candidates":12`, `"level":"INFO"`} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	for _, format := range []Format{FormatJSON, FormatText, FormatPretty} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log := Open(&buf, format, slog.LevelWarn)
			log.Info("should not appear")
			log.Debug("also should not appear")
			if buf.Len() > 0 {
				t.Fatalf("expected no output below warn, got: %s", buf.String())
			}
			log.Warn("should appear")
			if !strings.Contains(buf.String(), "should appear") {
				t.Fatalf("expected warn message in output, got: %s", buf.String())
			}
		})
	}
}

func TestOpenAutoOnBufferIsText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Open(&buf, FormatAuto, slog.LevelInfo).Info("plain", "k", "v")
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("auto format colored a non-terminal: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("expected text output, got: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  Format
		ok    bool
	}{
		{"", FormatAuto, true},
		{"auto", FormatAuto, true},
		{"JSON", FormatJSON, true},
		{" pretty ", FormatPretty, true},
		{"text", FormatText, true},
		{"xml", "", false},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.input)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tc.input, got, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if result := ParseLevel(tc.input); result != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, result)
		}
	}
}

func TestWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("op", "gemm_rcr_0")
	log.WithGroup("plan").Info("pool", "copies", 20)

	output := buf.String()
	if !strings.Contains(output, `"op":"gemm_rcr_0"`) || !strings.Contains(output, `"plan":{"copies":20}`) {
		t.Fatalf("unexpected output: %s", output)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.With("k", "v").Error("dropped")
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		log  func(*slog.Logger)
		want []string
	}{
		{"attrs", func(l *slog.Logger) { l.Info("msg", "key", "simple") }, []string{"INFO ", "msg", "key=simple"}},
		{"quoted", func(l *slog.Logger) { l.Info("msg", "reason", "alignment 8 exceeds 4") }, []string{`reason="alignment 8 exceeds 4"`}},
		{"duration", func(l *slog.Logger) { l.Warn("slow", "elapsed", 1500*time.Millisecond) }, []string{"WARN ", "elapsed=1.5s"}},
		{"group attr", func(l *slog.Logger) { l.Info("plan", slog.Group("pool", "copies", 2)) }, []string{"pool.copies=2"}},
		{"with group", func(l *slog.Logger) { l.WithGroup("a").WithGroup("b").Info("nested", "key", "val") }, []string{"a.b.key=val"}},
		{"with attrs", func(l *slog.Logger) { l.With("service", "test").Info("x") }, []string{"service=test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			tt.log(slog.New(NewPrettyHandler(&buf, nil)))
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Fatalf("expected %q in output, got: %q", want, buf.String())
				}
			}
		})
	}
}

func TestPrettyHandlerEmptyGroup(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup empty string should return same handler")
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyHandlerDerivedHandlersShareWriter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := slog.New(NewPrettyHandler(&buf, nil))
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			base.With("worker", i).Info("line")
		}()
	}
	wg.Wait()
	if n := strings.Count(buf.String(), "\n"); n != 8 {
		t.Fatalf("got %d lines, want 8", n)
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected bool
	}{
		{"simple", false},
		{"has space", true},
		{"has\ttab", true},
		{`has"quote`, true},
		{"k=v", true},
		{"", false},
	}
	for _, tc := range tests {
		if result := needsQuoting(tc.input); result != tc.expected {
			t.Errorf("needsQuoting(%q): expected %v, got %v", tc.input, tc.expected, result)
		}
	}
}
