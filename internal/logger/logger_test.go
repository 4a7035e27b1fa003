package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("log line is not JSON: %q: %v", line, err)
	}
	return out
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := l.WithContext(context.Background())
	ctx = SetRunID(ctx, "run-1")
	ctx = SetComponent(ctx, "index")

	CtxInfo(ctx, "processed %d images", 3)

	entry := decodeLine(t, &buf)
	if entry["message"] != "processed 3 images" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry[FieldRunID] != "run-1" || entry[FieldComponent] != "index" {
		t.Errorf("missing context fields: %v", entry)
	}
	if entry["service"] != "test" {
		t.Errorf("service = %v", entry["service"])
	}
	if GetRunID(ctx) != "run-1" {
		t.Errorf("GetRunID() = %q", GetRunID(ctx))
	}
}

func TestEntryMetricFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Output: &buf})
	ctx := l.WithContext(context.Background())

	With(Fields{FieldCount: 2}).WithDuration(40).Info(ctx, "done")

	entry := decodeLine(t, &buf)
	if entry[FieldCount] != float64(2) || entry[FieldDurationMs] != float64(40) {
		t.Errorf("metric fields missing: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "warn", Output: &buf})
	ctx := l.WithContext(context.Background())

	CtxInfo(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	CtxWarn(ctx, "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != GetDefault() {
		t.Error("expected default logger for bare context")
	}
}
