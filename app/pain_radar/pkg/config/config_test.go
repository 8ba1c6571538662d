package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_url: http://localhost:8080/v1
  model: test-model
filter:
  strategy: cascade
  cascade:
    post_batch_size: 10
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Filter.Strategy != StrategyCascade {
		t.Errorf("strategy = %q", cfg.Filter.Strategy)
	}
	if cfg.Filter.Cascade.PostBatchSize != 10 {
		t.Errorf("post batch = %d, want 10", cfg.Filter.Cascade.PostBatchSize)
	}
	// 未设置的字段保留默认值
	if cfg.Filter.Cascade.CommentBatchSize != 25 {
		t.Errorf("comment batch = %d, want 25", cfg.Filter.Cascade.CommentBatchSize)
	}
	if cfg.Filter.Thresholds.Core != 0.45 || cfg.Expansion.MinCore != 15 || cfg.Expansion.MaxRounds != 1 {
		t.Errorf("defaults lost: %+v %+v", cfg.Filter.Thresholds, cfg.Expansion)
	}
	if cfg.LLM.Model != "test-model" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"strategy", "filter:\n  strategy: magic\n", "unknown filter strategy"},
		{"thresholds", "filter:\n  thresholds:\n    core: 0.2\n", "strictly decreasing"},
		{"batch", "filter:\n  two_stage:\n    batch_size: 0\n", "batch_size"},
		{"driver", "db:\n  driver: mysql\n", "db driver"},
		{"yaml", "filter: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadConfig() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
	if Default().DB.Enabled() {
		t.Error("default db should be disabled")
	}
}
