package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{
			name:   "default config",
			config: Config{Level: LogLevelNormal, Format: "text"},
			want:   LogLevelNormal,
		},
		{
			name:   "verbose config",
			config: Config{Level: LogLevelVerbose, Format: "json"},
			want:   LogLevelVerbose,
		},
		{
			name:   "quiet config",
			config: Config{Level: LogLevelQuiet, Format: "text"},
			want:   LogLevelQuiet,
		},
		{
			name:   "empty level falls back to normal",
			config: Config{Format: "text"},
			want:   LogLevelNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			if logger.GetLevel() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"quiet", "normal", "verbose", "debug", "", "VERBOSE"} {
		if _, err := ParseLevel(name); err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", name, err)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "scheduler.log")
	var buf bytes.Buffer

	logger, err := NewLogger(Config{Level: LogLevelNormal, Output: &buf, LogFile: logFile})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hello file")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("log file missing message: %s", data)
	}
	if !strings.Contains(buf.String(), "hello file") {
		t.Errorf("output missing message: %s", buf.String())
	}
}

func TestLogSchedulePlan(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Output: &buf, Format: "json"})

	logger.LogSchedulePlan(2, 5, []string{"A"}, []string{"B", "C"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if entry["operation"] != "schedule_plan" {
		t.Errorf("operation = %v", entry["operation"])
	}
	if entry["full"] != "A" || entry["incremental"] != "B, C" {
		t.Errorf("unexpected sets: full=%v incremental=%v", entry["full"], entry["incremental"])
	}
}

func TestLogRetentionSweep(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Output: &buf})

	logger.LogRetentionSweep("A", 2, 0, false, nil)
	if !strings.Contains(buf.String(), "No stale snapshots") {
		t.Errorf("expected nothing-stale message, got %s", buf.String())
	}

	buf.Reset()
	logger.LogRetentionSweep("A", 2, 0, false, errors.New("permission denied"))
	if !strings.Contains(buf.String(), "Retention sweep failed") {
		t.Errorf("expected failure message, got %s", buf.String())
	}
}

func TestLogExecutorRun(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Output: &buf})

	logger.LogExecutorRun("A", "full", 0, time.Second, nil)
	if !strings.Contains(buf.String(), "Backup executor finished") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	buf.Reset()
	logger.LogExecutorRun("A", "full", 2, time.Second, errors.New("exit status 2"))
	if !strings.Contains(buf.String(), "exit_code=2") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Output: &buf})

	logger.With(map[string]interface{}{"run_id": "abc"}).Info("tagged")
	if !strings.Contains(buf.String(), "run_id=abc") {
		t.Errorf("expected run_id field, got %s", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Output: &buf})

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message should be filtered at normal level")
	}

	logger.SetLevel(LogLevelVerbose)
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug message should be emitted at verbose level")
	}
	if !logger.IsLevelEnabled(LogLevelVerbose) {
		t.Error("verbose should be enabled")
	}
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Output: &buf})

	done := logger.LogOperationStart("gc", map[string]interface{}{"tier": "tier1"})
	done(nil)
	if !strings.Contains(buf.String(), "Operation completed") {
		t.Errorf("expected completion log, got %s", buf.String())
	}

	buf.Reset()
	done = logger.LogOperationStart("gc", nil)
	done(errors.New("boom"))
	if !strings.Contains(buf.String(), "Operation failed") {
		t.Errorf("expected failure log, got %s", buf.String())
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-1")
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Errorf("RunIDFromContext() = %q", got)
	}
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty run id, got %q", got)
	}
}
