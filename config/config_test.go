package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestNormalizeBackend_Known(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	for _, backend := range []string{"pdfium", "fitz"} {
		if got := normalizeBackend(backend, logger); got != backend {
			t.Errorf("Expected %q to pass through, got %q", backend, got)
		}
	}
}

func TestNormalizeBackend_Unknown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if got := normalizeBackend("ghostscript", logger); got != "pdfium" {
		t.Errorf("Expected fallback to pdfium, got %q", got)
	}
	t.Logf("Unknown backend correctly fell back to pdfium")
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("PDFBRIDGE_TEST_INT", "42")
	if got := getEnvInt("PDFBRIDGE_TEST_INT", 7); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}

	t.Setenv("PDFBRIDGE_TEST_INT", "not a number")
	if got := getEnvInt("PDFBRIDGE_TEST_INT", 7); got != 7 {
		t.Errorf("Expected default 7 for unparseable value, got %d", got)
	}

	if got := getEnvInt("PDFBRIDGE_TEST_INT_MISSING", 7); got != 7 {
		t.Errorf("Expected default 7 for missing value, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("PDFBRIDGE_TEST_BOOL", "true")
	if !getEnvBool("PDFBRIDGE_TEST_BOOL", false) {
		t.Error("Expected true")
	}

	t.Setenv("PDFBRIDGE_TEST_BOOL", "definitely")
	if getEnvBool("PDFBRIDGE_TEST_BOOL", false) {
		t.Error("Expected default false for unparseable value")
	}
}
