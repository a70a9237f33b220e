package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/moby/sys/reexec"

	"github.com/signalnine/cardbench/internal/config"
	"github.com/signalnine/cardbench/internal/result"
)

func TestMain(m *testing.M) {
	if reexec.Init() {
		return
	}
	os.Exit(m.Run())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectQueries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "t # 0")
	writeFile(t, filepath.Join(dir, "a.txt"), "t # 0")
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), "t # 0")
	writeFile(t, filepath.Join(dir, "notes.md"), "ignored")

	got, err := collectQueries(dir)
	if err != nil {
		t.Fatalf("collectQueries: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "sub", "c.txt"),
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("collectQueries(dir) = %v, want %v", got, want)
	}

	single := filepath.Join(dir, "a.txt")
	got, err = collectQueries(single)
	if err != nil || len(got) != 1 || got[0] != single {
		t.Errorf("collectQueries(file) = %v, %v", got, err)
	}

	if _, err := collectQueries(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := collectQueries(t.TempDir()); err == nil {
		t.Error("expected error for directory without queries")
	}
}

func TestFormatFailure(t *testing.T) {
	tests := []struct {
		name string
		rec  result.BatchRecord
		want string
	}{
		{"timeout", result.BatchRecord{Query: "q1.txt", Status: result.StatusTimeout}, "q1.txt error: timeout"},
		{"signal", result.BatchRecord{Query: "q2.txt", Status: result.StatusSignaled, Signal: 11}, "q2.txt error with signal 11"},
		{"no samples", result.BatchRecord{Query: "q3.txt", Status: result.StatusNoSamples}, "q3.txt error: no usable estimates"},
		{"exited", result.BatchRecord{Query: "q4.txt", Status: result.StatusExited, Error: "trial 0: worker exited with status 3"}, "q4.txt error: trial 0: worker exited with status 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatFailure(&tt.rec); got != tt.want {
				t.Errorf("formatFailure = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatSuccess(t *testing.T) {
	rec := &result.BatchRecord{Query: "q1.txt", MeanEstimate: 1250, MeanElapsedS: 0.5}
	if got, want := formatSuccess(rec), "q1.txt 1250,0.5"; got != want {
		t.Errorf("formatSuccess = %q, want %q", got, want)
	}
}

func TestApplyRunFlags(t *testing.T) {
	defer func() { flagTrials, flagRatio, flagDeadline, flagSeed = 0, 0, 0, 0 }()

	cmd := newRunCmd()
	if err := cmd.ParseFlags([]string{"--trials", "5", "--seed", "0", "--deadline", "2s"}); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Trials: 30, Seed: 9, Ratio: 0.03, Deadline: time.Minute}
	applyRunFlags(cmd, cfg)
	if cfg.Trials != 5 {
		t.Errorf("trials: got %d, want 5", cfg.Trials)
	}
	if cfg.Seed != 0 {
		t.Errorf("seed: got %d, want explicit 0", cfg.Seed)
	}
	if cfg.Ratio != 0.03 {
		t.Errorf("ratio: got %g, want unchanged 0.03", cfg.Ratio)
	}
	if cfg.Deadline != 2*time.Second {
		t.Errorf("deadline: got %s, want 2s", cfg.Deadline)
	}
}

func TestRunCommand(t *testing.T) {
	defer func() { flagTrials, flagRatio, flagDeadline, flagSeed = 0, 0, 0, 0 }()

	dir := t.TempDir()
	queries := filepath.Join(dir, "queries")
	writeFile(t, filepath.Join(queries, "q1.txt"), "t # 0")
	writeFile(t, filepath.Join(queries, "q2.txt"), "t # 0")
	cfgPath := filepath.Join(dir, "cardbench.yaml")
	writeFile(t, cfgPath, `
data: graph.bin
trials: 3
poll_interval: 10ms
results:
  dir: `+filepath.Join(dir, "results")+`
logging:
  level: error
estimators:
  - name: fixed
    kind: constant
    value: 42
  - name: segv
    kind: exec
    run_cmd: ["sh", "-c", "kill -SEGV $$"]
`)
	metricsPath := filepath.Join(dir, "cardbench.prom")

	run := func(est string) (string, string) {
		var stdout, stderr bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&stdout)
		root.SetErr(&stderr)
		root.SetArgs([]string{"--config", cfgPath, "run", "--estimator", est, "--query", queries, "--metrics-file", metricsPath})
		if err := root.Execute(); err != nil {
			t.Fatalf("run %s: %v", est, err)
		}
		return stdout.String(), stderr.String()
	}

	stdout, _ := run("fixed")
	for _, q := range []string{"q1.txt", "q2.txt"} {
		if !strings.Contains(stdout, filepath.Join(queries, q)+" 42,") {
			t.Errorf("missing result line for %s in:\n%s", q, stdout)
		}
	}
	rec, err := result.ReadBatch(result.BatchPath(filepath.Join(dir, "results", "latest"), "fixed", filepath.Join(queries, "q1.txt")))
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if rec.Status != result.StatusCompleted || rec.TrialsCompleted != 3 || rec.RunID == "" {
		t.Errorf("stored record: got %+v", rec)
	}
	if _, err := os.Stat(metricsPath); err != nil {
		t.Errorf("metrics file not written: %v", err)
	}

	stdout, stderr := run("segv")
	if stdout != "" {
		t.Errorf("failed batches must not print results, got:\n%s", stdout)
	}
	want := "error with signal 11"
	if runtime.GOOS != "linux" {
		want = "error with signal 6"
	}
	if strings.Count(stderr, want) != 2 {
		t.Errorf("expected both queries to report %q, got:\n%s", want, stderr)
	}
}
