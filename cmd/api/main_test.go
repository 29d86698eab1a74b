package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestGetEnvInt64(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	t.Setenv("TEST_HEIGHT_VAR", "42")
	if got := getEnvInt64(logger, "TEST_HEIGHT_VAR", 600); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output for a valid value, got %q", buf.String())
	}

	t.Setenv("TEST_HEIGHT_VAR", "")
	if got := getEnvInt64(logger, "TEST_HEIGHT_VAR", 600); got != 600 {
		t.Errorf("expected fallback 600 for unset value, got %d", got)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output for an unset value, got %q", buf.String())
	}

	t.Setenv("TEST_HEIGHT_VAR", "6OO")
	if got := getEnvInt64(logger, "TEST_HEIGHT_VAR", 600); got != 600 {
		t.Errorf("expected fallback 600 for unparsable value, got %d", got)
	}
	if !strings.Contains(buf.String(), "TEST_HEIGHT_VAR") {
		t.Errorf("expected a warning naming the variable, got %q", buf.String())
	}
}
