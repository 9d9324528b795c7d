// Package logger_test contains tests for the logger package
package logger_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/coachmate/coachmate-api/internal/config"
	"github.com/coachmate/coachmate-api/internal/platform/logger"
)

// TestSetup is a basic test that ensures the Setup function works without errors
func TestSetup(t *testing.T) {
	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	cfg := config.LogConfig{
		Level: "info",
	}

	log, err := logger.Setup(cfg)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if log == nil {
		t.Fatal("Setup returned a nil logger")
	}
}

// TestInvalidLogLevelParsing tests that when an invalid log level is provided,
// the Setup function defaults to info level and logs a warning message to stderr.
func TestInvalidLogLevelParsing(t *testing.T) {
	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	// Redirect stderr to capture the warning message
	origStderr := os.Stderr
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create stderr pipe: %v", err)
	}
	os.Stderr = stderrW

	cfg := config.LogConfig{
		Level: "invalid_level", // This is not one of the valid levels
	}

	log, err := logger.Setup(cfg)

	// Restore stderr before assertions
	os.Stderr = origStderr
	if closeErr := stderrW.Close(); closeErr != nil {
		t.Logf("Failed to close stderr writer: %v", closeErr)
	}

	stderrBuf := new(bytes.Buffer)
	if _, copyErr := io.Copy(stderrBuf, stderrR); copyErr != nil {
		t.Logf("Failed to read from stderr pipe: %v", copyErr)
	}
	stderrOutput := stderrBuf.String()

	if err != nil {
		t.Fatalf("Setup returned an error for invalid log level: %v", err)
	}
	if log == nil {
		t.Fatal("Setup returned a nil logger for invalid log level")
	}

	// Check that a warning message was logged to stderr
	if !strings.Contains(stderrOutput, "invalid log level configured") {
		t.Errorf("Expected warning message about invalid log level, got: %s", stderrOutput)
	}
	if !strings.Contains(stderrOutput, "invalid_level") {
		t.Errorf("Expected warning to include the invalid level name, got: %s", stderrOutput)
	}
	if !strings.Contains(stderrOutput, "info") {
		t.Errorf("Expected warning to include the default level, got: %s", stderrOutput)
	}

	// The logger should fall back to info level: debug is filtered, info passes
	ctx := context.Background()
	if log.Enabled(ctx, slog.LevelDebug) {
		t.Error("Logger with invalid configured level should not enable debug")
	}
	if !log.Enabled(ctx, slog.LevelInfo) {
		t.Error("Logger with invalid configured level should enable info")
	}
}

// TestValidLogLevelParsing tests that valid log levels are correctly parsed
// by the Setup function, including case-insensitive matching.
func TestValidLogLevelParsing(t *testing.T) {
	testCases := []struct {
		name     string
		logLevel string
		want     slog.Level
	}{
		{
			name:     "debug level",
			logLevel: "debug",
			want:     slog.LevelDebug,
		},
		{
			name:     "info level",
			logLevel: "info",
			want:     slog.LevelInfo,
		},
		{
			name:     "warn level",
			logLevel: "warn",
			want:     slog.LevelWarn,
		},
		{
			name:     "error level",
			logLevel: "error",
			want:     slog.LevelError,
		},
		{
			name:     "case insensitive - DEBUG",
			logLevel: "DEBUG",
			want:     slog.LevelDebug,
		},
		{
			name:     "case insensitive - Info",
			logLevel: "Info",
			want:     slog.LevelInfo,
		},
	}

	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.LogConfig{
				Level: tc.logLevel,
			}

			log, err := logger.Setup(cfg)
			if err != nil {
				t.Fatalf("Setup returned an error for valid log level %q: %v", tc.logLevel, err)
			}
			if log == nil {
				t.Fatal("Setup returned a nil logger")
			}

			// The configured level should be enabled and anything below filtered
			ctx := context.Background()
			if !log.Enabled(ctx, tc.want) {
				t.Errorf("Logger should enable level %v", tc.want)
			}
			if log.Enabled(ctx, tc.want-1) {
				t.Errorf("Logger should not enable levels below %v", tc.want)
			}
		})
	}
}
