package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	want := Config{
		Port:        8080,
		Concurrency: runtime.NumCPU(),
		MaxUploadMB: 1,
		Logs:        Logs{MaxSizeMB: 25, MaxAgeDays: 7, MaxBackups: 5},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Default() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qybridge.yaml")
	body := `port: 9000
deviceNumber: 3
template: templates/base.Q7P
strict: true
concurrency: 2
logs:
  directory: logs
  maxBackups: 9
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Config{
		Port:         9000,
		DeviceNumber: 3,
		Template:     filepath.Join(dir, "templates", "base.Q7P"),
		Strict:       true,
		Concurrency:  2,
		MaxUploadMB:  1,
		Logs: Logs{
			Directory:  filepath.Join(dir, "logs"),
			MaxSizeMB:  25,
			MaxAgeDays: 7,
			MaxBackups: 9,
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")
	if _, err := Load(missing, false); err == nil {
		t.Error("Load() of a missing file should fail")
	}
	cfg, err := Load(missing, true)
	if err != nil {
		t.Fatalf("Load(optional) error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, false); err == nil {
		t.Error("Load() of malformed YAML should fail")
	}
}

func TestLoadTemplate(t *testing.T) {
	var cfg Config
	data, err := cfg.LoadTemplate()
	if err != nil || data != nil {
		t.Errorf("LoadTemplate() = %v, %v, want nil, nil", data, err)
	}

	cfg.Template = filepath.Join(t.TempDir(), "t.Q7P")
	if err := os.WriteFile(cfg.Template, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	data, err = cfg.LoadTemplate()
	if err != nil || len(data) != 3 {
		t.Errorf("LoadTemplate() = %v, %v", data, err)
	}
}
