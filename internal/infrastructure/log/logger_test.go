package log

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo}, // 默认值
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := parseLevel(tt.input); result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		t.Setenv("RAGCORE_LOG_LEVEL", "")
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")
		t.Setenv("LOG_SERVICE", "")
		t.Setenv("ENV", "")

		cfg := NewConfigFromEnv()

		if cfg.Level != "info" {
			t.Errorf("expected default level info, got %s", cfg.Level)
		}
		if cfg.Format != "console" {
			t.Errorf("expected default format console, got %s", cfg.Format)
		}
		if cfg.Service != "ragcore" {
			t.Errorf("expected default service ragcore, got %s", cfg.Service)
		}
	})

	t.Run("custom config", func(t *testing.T) {
		t.Setenv("RAGCORE_LOG_LEVEL", "")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "json")
		t.Setenv("ENV", "")

		cfg := NewConfigFromEnv()

		if cfg.Level != "debug" {
			t.Errorf("expected level debug, got %s", cfg.Level)
		}
		if cfg.Format != "json" {
			t.Errorf("expected format json, got %s", cfg.Format)
		}
	})

	t.Run("prefixed variables take precedence", func(t *testing.T) {
		t.Setenv("ENV", "")
		t.Setenv("LOG_LEVEL", "error")
		t.Setenv("RAGCORE_LOG_LEVEL", "warn")

		cfg := NewConfigFromEnv()

		if cfg.Level != "warn" {
			t.Errorf("expected prefixed level warn, got %s", cfg.Level)
		}
	})

	t.Run("development mode", func(t *testing.T) {
		t.Setenv("ENV", "development")
		t.Setenv("LOG_LEVEL", "error") // 应该被覆盖

		cfg := NewConfigFromEnv()

		if cfg.Level != "debug" {
			t.Errorf("expected debug in development, got %s", cfg.Level)
		}
		if !cfg.AddSource {
			t.Error("expected AddSource true in development")
		}
	})
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		expected     bool
	}{
		{"true value", false, "true", true},
		{"false value", true, "false", false},
		{"invalid value", true, "invalid", true}, // 默认值
		{"missing env", false, "", false},        // 默认值
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)

			if result := getEnvBool("TEST_BOOL", tt.defaultValue); result != tt.expected {
				t.Errorf("getEnvBool(%v) = %v, want %v", tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("init with defaults", func(t *testing.T) {
		Init(nil)

		if GetLogger() == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("init with debug level", func(t *testing.T) {
		Init(&Config{Level: "debug", Format: "json"})

		if !IsDebugMode() {
			t.Error("expected debug mode")
		}
	})

	t.Run("init with file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "ragcore.log")
		Init(&Config{Level: "info", Format: "json", Output: "file:" + path})

		NewModuleLogger("test", "file").Info("written to file")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected log file, got %v", err)
		}
		if !strings.Contains(string(data), "written to file") {
			t.Error("expected log message in file")
		}
		Init(nil)
	})
}

func TestNew_JSONIncludesService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: "json", Service: "ragcore-test"}, &buf)

	logger.Info("dropped below level")
	logger.Warn("kept", "tenant", "acme")

	out := buf.String()
	if strings.Contains(out, "dropped below level") {
		t.Errorf("info record should be filtered at warn level: %q", out)
	}
	for _, want := range []string{`"msg":"kept"`, `"service":"ragcore-test"`, `"tenant":"acme"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}

func TestContextHandler_AddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil))).With("module", "test")

	ctx := WithTenantID(WithRequestID(context.Background(), "req-1"), "tenant-a")
	logger.InfoContext(ctx, "handled query")

	out := buf.String()
	for _, want := range []string{"handled query", "request_id=req-1", "tenant_id=tenant-a", "module=test"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}

func TestLogCtxFromContext_SkipsMissing(t *testing.T) {
	ctx := WithConversationID(context.Background(), "conv-1")

	attrs := LogCtxFromContext(ctx)
	if len(attrs) != 1 || attrs[0].Key != "conversation_id" {
		t.Errorf("unexpected attrs %v", attrs)
	}
	if TenantIDFromContext(ctx) != "" {
		t.Error("expected empty tenant id")
	}
}
