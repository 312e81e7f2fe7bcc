package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jkaninda/sindano/internal/config"
	"github.com/jkaninda/sindano/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	calls [][]string
}

func (f *fakeRunner) BatchProcess(_ context.Context, identities []string, _ engine.PatchSpec, _ map[string]any) (map[string]*engine.Outcome, error) {
	f.calls = append(f.calls, identities)
	outcomes := make(map[string]*engine.Outcome, len(identities))
	for _, id := range identities {
		outcomes[id] = &engine.Outcome{Identity: id}
	}
	return outcomes, nil
}

func writeSpecFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patches.yaml")
	content := "fragments:\n  - \"console.log(1);\"\nrandomize_order: true\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func jobConfig(schedule, specFile string) *config.SchedulerConfig {
	return &config.SchedulerConfig{
		Jobs: []config.BatchJobConfig{
			{
				Name:      "nightly",
				Schedule:  schedule,
				Documents: []string{"app.js"},
				SpecFile:  specFile,
			},
		},
	}
}

func TestNew_ValidatesEverythingUpFront(t *testing.T) {
	specFile := writeSpecFile(t)

	if _, err := New(&fakeRunner{}, jobConfig("0 2 * * *", specFile), nil, testLogger()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	if _, err := New(&fakeRunner{}, jobConfig("not a cron", specFile), nil, testLogger()); err == nil {
		t.Error("invalid cron expression accepted")
	}

	if _, err := New(&fakeRunner{}, jobConfig("0 2 * * *", filepath.Join(t.TempDir(), "absent.yaml")), nil, testLogger()); err == nil {
		t.Error("missing spec file accepted")
	}

	if _, err := New(&fakeRunner{}, nil, nil, testLogger()); err == nil {
		t.Error("nil scheduler config accepted")
	}

	// 6-field (with seconds) expressions are not part of the accepted format.
	if _, err := New(&fakeRunner{}, jobConfig("*/5 * * * * *", specFile), nil, testLogger()); err == nil {
		t.Error("6-field cron expression accepted")
	}
}

func TestFireJob_RunsBatch(t *testing.T) {
	specFile := writeSpecFile(t)
	runner := &fakeRunner{}

	sched, err := New(runner, jobConfig("0 2 * * *", specFile), nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sched.fireJob(context.Background(), sched.jobs[0])

	if len(runner.calls) != 1 {
		t.Fatalf("BatchProcess called %d times, want 1", len(runner.calls))
	}
	if len(runner.calls[0]) != 1 || runner.calls[0][0] != "app.js" {
		t.Fatalf("batch identities = %v", runner.calls[0])
	}
}

func TestFireJob_MissingSpecFileIsNonFatal(t *testing.T) {
	specFile := writeSpecFile(t)
	runner := &fakeRunner{}

	sched, err := New(runner, jobConfig("0 2 * * *", specFile), nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Spec file disappears between validation and fire.
	if err := os.Remove(specFile); err != nil {
		t.Fatal(err)
	}
	sched.fireJob(context.Background(), sched.jobs[0])

	if len(runner.calls) != 0 {
		t.Fatalf("batch ran despite missing spec file")
	}
}
