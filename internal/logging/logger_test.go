package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	logBuffer = nil
	logCallback = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetLoggingState()

	// Global info level, grabber overridden to debug, api to warn
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"grabber": "debug",
			"api":     "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"grabber", true, true, true},
		{"api", false, false, true},
		{"devices", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestMultiHandlerFanout(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(debugHandler, infoHandler)
	logger := slog.New(multi).With("module", "test")

	logger.Debug("debug only message")

	output := buf.String()
	if count := strings.Count(output, "debug only message"); count != 1 {
		t.Errorf("expected 1 debug message, got %d. Output: %s", count, output)
	}

	logger.Info("info message")
	if count := strings.Count(buf.String(), "info message"); count != 2 {
		t.Errorf("expected info message from both handlers, got %d", count)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetLoggingState()

	// Before Initialize the module defaults to info.
	handlerBefore := GetLogger("grabber").Handler()
	if handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should not have debug enabled")
	}

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"grabber": "debug",
		},
	})

	// The module's LevelVar is shared, so the pre-Initialize handler
	// picks up the override too.
	if !handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("pre-Initialize handler should have debug enabled after Initialize")
	}
	if !GetLogger("grabber").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("grabber logger should have debug enabled after Initialize")
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetLoggingState()
	Initialize(Config{Level: "info", Format: "text"})

	handler := GetLogger("writer").Handler()
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("writer should start at info")
	}

	if !SetModuleLevel("writer", "debug") {
		t.Fatal("SetModuleLevel failed for existing module")
	}
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("writer should log debug after SetModuleLevel")
	}

	if SetModuleLevel("writer", "nonsense") {
		t.Error("SetModuleLevel should reject unknown levels")
	}
	if SetModuleLevel("nosuchmodule", "debug") {
		t.Error("SetModuleLevel should reject unknown modules")
	}
}

func TestBufferHandlerRecordsEntries(t *testing.T) {
	resetLoggingState()
	Initialize(Config{Level: "info", Format: "text"})

	var seen []LogEntry
	SetLogCallback(func(entry LogEntry) {
		seen = append(seen, entry)
	})

	logger := GetLogger("grabber")
	logger.Info("frame saved", "path", "output/frame_001.raw", "bytes", 614400)

	entries := GetBuffer().ReadAll()
	if len(entries) == 0 {
		t.Fatal("expected at least one buffered entry")
	}
	last := entries[len(entries)-1]
	if last.Module != "grabber" || last.Message != "frame saved" {
		t.Errorf("unexpected entry: %+v", last)
	}
	if last.Attributes["path"] != "output/frame_001.raw" {
		t.Errorf("attributes = %v", last.Attributes)
	}
	if len(seen) == 0 {
		t.Error("callback was not invoked")
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Write(LogEntry{Timestamp: time.Now(), Message: string(rune('a' + i))})
	}
	entries := rb.ReadAll()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Message != "c" || entries[2].Message != "e" {
		t.Errorf("unexpected order: %q .. %q", entries[0].Message, entries[2].Message)
	}
	if rb.Count() != 3 {
		t.Errorf("Count = %d, want 3", rb.Count())
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			} else if *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}

func TestFormatLogLine(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := LogEntry{
		Timestamp:  ts,
		Level:      "info",
		Module:     "grabber",
		Message:    "capture started",
		Attributes: map[string]any{"device": "/dev/video0", "buffers": 4},
	}
	line := FormatLogLine(entry)
	if !strings.Contains(line, "[INFO] [grabber] capture started") {
		t.Errorf("line = %q", line)
	}
	if !strings.Contains(line, "buffers=4") || !strings.Contains(line, "device=/dev/video0") {
		t.Errorf("attributes missing: %q", line)
	}
}
