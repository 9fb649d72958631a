package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing default file is empty", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("HOME", t.TempDir())
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Arch != nil || cfg.Catalog != "" {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("expected error for missing explicit config")
		}
	})

	t.Run("parses fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "catalog: /opt/kernels.yaml\narch: 90\nno_tf32: true\nlog_format: json\nserver_address: 0.0.0.0:9000\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Catalog != "/opt/kernels.yaml" || cfg.Arch == nil || *cfg.Arch != 90 {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.NoTF32 == nil || !*cfg.NoTF32 || cfg.UseFP16Acc != nil {
			t.Fatalf("unexpected bool fields: no_tf32=%v fp16_acc=%v", cfg.NoTF32, cfg.UseFP16Acc)
		}
		if cfg.LogFormat != "json" || cfg.ServerAddress != "0.0.0.0:9000" {
			t.Fatalf("unexpected output fields: %+v", cfg)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("arch: [90"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("expected yaml error")
		}
	})
}

func TestApplyGlobalConfigKeepsExplicitFlags(t *testing.T) {
	arch86, yes := int64(86), true
	cfg := Config{
		Catalog:   "from-config.yaml",
		Arch:      &arch86,
		NoTF32:    &yes,
		LogLevel:  "debug",
		LogFormat: "json",
	}

	app := &cli.Command{
		Name:  "gemmforge",
		Flags: globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyGlobalConfig(cmd, cfg)
			return nil
		},
	}
	if err := app.Run(context.Background(), []string{"gemmforge", "--arch", "90", "--log-format", "text"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if arch != 90 {
		t.Fatalf("explicit --arch overridden: got %d", arch)
	}
	if logFormat != "text" {
		t.Fatalf("explicit --log-format overridden: got %q", logFormat)
	}
	if catalogPath != "from-config.yaml" || !noTF32 || logLevel != "debug" {
		t.Fatalf("config not applied: catalog=%q no_tf32=%v level=%q", catalogPath, noTF32, logLevel)
	}
	if got := currentTarget(); got.Arch != 90 || !got.NoTF32 {
		t.Fatalf("currentTarget() = %+v", got)
	}
}

func TestApplyServeConfig(t *testing.T) {
	cfg := Config{ServerAddress: "0.0.0.0:9000"}
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"config fills default", []string{"serve"}, "0.0.0.0:9000"},
		{"explicit flag wins", []string{"serve", "--addr", ":1"}, ":1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var addr string
			cmd := &cli.Command{
				Name: "serve",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8080", Destination: &addr},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					applyServeConfig(cmd, cfg, &addr)
					return nil
				},
			}
			if err := cmd.Run(context.Background(), tt.args); err != nil {
				t.Fatalf("run: %v", err)
			}
			if addr != tt.want {
				t.Fatalf("addr = %q, want %q", addr, tt.want)
			}
		})
	}
}
