package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationTransform)
	testLogger.Warn("warning message", "warning_code", "TEST_WARNING")
	testLogger.Error("error message", fmt.Errorf("test error"), ErrorCodeKey, ErrorShardLoad)

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty buffer")
	}
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}
	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	if !testLogger.ContainsField("number", 42.0) {
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrAttrKey, "test error") {
		t.Error("Leading error should be recorded under the error key")
	}
	if !testLogger.ContainsField(ErrorCodeKey, ErrorShardLoad) {
		t.Error("Error code not found")
	}
}

func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		DatasetKey, "peaks_v3",
		ComponentKey, "preprocessing",
	)
	contextLogger.Info("shard loaded", ShardKey, "train_0001.parquet", SamplesKey, 512)

	checks := map[string]any{
		DatasetKey:   "peaks_v3",
		ComponentKey: "preprocessing",
		ShardKey:     "train_0001.parquet",
		SamplesKey:   512.0,
	}
	for k, v := range checks {
		if !testLogger.ContainsField(k, v) {
			t.Errorf("field %s=%v not found", k, v)
		}
	}

	testLogger.Info("parent message")
	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	last := entries[len(entries)-1]
	if _, ok := last[DatasetKey]; ok {
		t.Error("With must not mutate the parent logger")
	}
}

func TestLoggerEnabled(t *testing.T) {
	tests := []struct {
		name     string
		logLevel Level
		check    Level
		want     bool
	}{
		{"debug enabled at debug", LevelDebug, LevelDebug, true},
		{"info enabled at debug", LevelDebug, LevelInfo, true},
		{"debug disabled at info", LevelInfo, LevelDebug, false},
		{"warn enabled at info", LevelInfo, LevelWarn, true},
		{"info disabled at error", LevelError, LevelInfo, false},
		{"error enabled at error", LevelError, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testLogger, _ := NewTestLogger(tt.logLevel)
			if got := testLogger.Enabled(context.Background(), tt.check); got != tt.want {
				t.Errorf("Enabled(%v) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelWarn)
	testLogger.Debug("hidden debug")
	testLogger.Info("hidden info")
	testLogger.Warn("visible warn")

	if strings.Contains(buffer.String(), "hidden") {
		t.Errorf("records below level were written: %s", buffer.String())
	}
	if !testLogger.ContainsMessage("visible warn") {
		t.Error("warn record missing")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerProviderIntegration(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelInfo)

	provider.GetLoggerWithName("storage").Info("object uploaded", ObjectKey, "peaks_v3/train_0001.parquet")

	if !provider.Logger().ContainsField(ComponentKey, "storage") {
		t.Error("component name not attached")
	}
	if !provider.Logger().ContainsField(ObjectKey, "peaks_v3/train_0001.parquet") {
		t.Error("object key not found")
	}

	provider.SetLevel(LevelError)
	provider.GetLogger().Info("suppressed")
	if provider.Logger().ContainsMessage("suppressed") {
		t.Error("SetLevel did not apply")
	}
}

func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, LevelInfo)

	logger := p.GetLoggerWithName("trainer").With(ModelNameKey, "DenseClassifier")
	logger.Debug("dropped")
	logger.Info("epoch done", EpochKey, 3, LossKey, 0.25)
	logger.Error("fit failed", errors.New("boom"), PhaseKey, PhaseTraining)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}

	var info map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &info); err != nil {
		t.Fatal(err)
	}
	if info["level"] != "info" || info["message"] != "epoch done" {
		t.Errorf("unexpected info record: %v", info)
	}
	if info[ComponentKey] != "trainer" || info[ModelNameKey] != "DenseClassifier" {
		t.Errorf("context fields missing: %v", info)
	}
	if info[EpochKey] != 3.0 || info[LossKey] != 0.25 {
		t.Errorf("fields missing: %v", info)
	}

	var errRec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &errRec); err != nil {
		t.Fatal(err)
	}
	if errRec["error"] != "boom" || errRec[PhaseKey] != PhaseTraining {
		t.Errorf("unexpected error record: %v", errRec)
	}

	p.SetLevel(LevelDebug)
	if !logger.Enabled(context.Background(), LevelDebug) {
		t.Error("SetLevel should apply to loggers created earlier")
	}
}

func TestPackageProvider(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	GetLoggerWithName("dataset").Info("metadata loaded", DatasetKey, "peaks_v3")
	if !provider.Logger().ContainsField(ComponentKey, "dataset") {
		t.Error("package-level logger did not use the installed provider")
	}

	SetProvider(nil)
	GetLogger().Info("still routed")
	if !provider.Logger().ContainsMessage("still routed") {
		t.Error("SetProvider(nil) must keep the current provider")
	}
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	const goroutines = 10
	const perG = 20
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l := testLogger.With("worker", id)
			for i := 0; i < perG; i++ {
				l.Info("batch emitted", StepKey, i)
			}
		}(g)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != goroutines*perG {
		t.Errorf("expected %d entries, got %d", goroutines*perG, len(entries))
	}
}

func TestZerologErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologProvider(&buf, LevelInfo).GetLogger().With("run", 1)
	logger.Error("upload failed", errors.New("access denied"), ObjectKey, "peaks/train_0001.parquet")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec[ErrAttrKey] != "access denied" {
		t.Errorf("error field missing: %v", rec)
	}
	if rec["run"] != 1.0 {
		t.Errorf("With fields lost: %v", rec)
	}
	if rec[ObjectKey] != "peaks/train_0001.parquet" {
		t.Errorf("trailing fields lost: %v", rec)
	}
	if st, _ := rec[StacktraceAttrKey].(string); st == "" {
		t.Errorf("stack trace missing: %v", rec)
	}
	if _, ok := rec[CauseAttrKey]; ok {
		t.Errorf("unwrapped error should not carry a cause: %v", rec)
	}
}

func TestZerologErrorRootCause(t *testing.T) {
	var buf bytes.Buffer
	SetProvider(NewZerologProvider(&buf, LevelInfo))
	t.Cleanup(func() { SetupLogger("info") })

	err := errors.Wrap(errors.New("unexpected EOF"), "failed to read shard train_0003.parquet")
	GetLoggerWithName("generator").Error("generator stopped", err)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec[CauseAttrKey] != "unexpected EOF" {
		t.Errorf("root cause missing: %v", rec)
	}
	if rec[ComponentKey] != "generator" {
		t.Errorf("component missing: %v", rec)
	}
}

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { SetupLogger("info") })
	if err := SetupLogger("verbose"); err == nil {
		t.Error("expected an invalid level error")
	}
	if err := SetupLogger("warn"); err != nil {
		t.Fatal(err)
	}
	if GetLogger().Enabled(context.Background(), LevelInfo) {
		t.Error("info should be filtered at warn")
	}
	if !GetLogger().Enabled(context.Background(), LevelWarn) {
		t.Error("warn should be enabled")
	}
}
