package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarning, false},
		{"WARNING", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestJSONOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	setupJSONLogging(&buf)
	defer setupJSONLogging(os.Stdout)

	previous := GetLevel()
	defer SetLevel(previous)
	SetLevel(LevelInfo)

	Debug("hidden")
	Info("job stage changed", "job_id", "job-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "job stage changed" || entry["job_id"] != "job-1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestCountersIgnoreSampling(t *testing.T) {
	var buf bytes.Buffer
	setupJSONLogging(&buf)
	defer setupJSONLogging(os.Stdout)

	errorSampleRate.Store(1000000)
	defer errorSampleRate.Store(1)

	before := Snapshot()
	for i := 0; i < 5; i++ {
		Warn("derived fact evaluation failed")
	}
	Transition(true)
	Transition(false)
	Transition(false)
	WarnHttp4xx()
	ErrorHttp5xx()
	after := Snapshot()

	if got := after.Warnings - before.Warnings; got != 6 {
		t.Errorf("warnings delta = %d, want 6", got)
	}
	if got := after.Errors - before.Errors; got != 1 {
		t.Errorf("errors delta = %d, want 1", got)
	}
	if got := after.TransitionsAllowed - before.TransitionsAllowed; got != 1 {
		t.Errorf("allowed delta = %d, want 1", got)
	}
	if got := after.TransitionsRejected - before.TransitionsRejected; got != 2 {
		t.Errorf("rejected delta = %d, want 2", got)
	}
	if got := after.HTTP4xx - before.HTTP4xx; got != 1 {
		t.Errorf("4xx delta = %d, want 1", got)
	}
	if got := after.HTTP5xx - before.HTTP5xx; got != 1 {
		t.Errorf("5xx delta = %d, want 1", got)
	}
}
