package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/james-see/qybridge/pkg/config"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Printf("converted %d files", 3)
	if !strings.HasPrefix(buf.String(), Prefix) || !strings.Contains(buf.String(), "converted 3 files") {
		t.Errorf("log line = %q", buf.String())
	}
}

func TestSetupRotatingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := Setup(config.Logs{Directory: dir, MaxSizeMB: 1}, "qybridge")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	logger.Print("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "qybridge.log"))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(data), Prefix) || !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q", data)
	}
}

func TestSetupStderr(t *testing.T) {
	logger, closer, err := Setup(config.Logs{}, "qybridge")
	if err != nil || logger == nil {
		t.Fatalf("Setup() = %v, %v", logger, err)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
