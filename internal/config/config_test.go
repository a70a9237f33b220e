package config_test

import (
	"testing"
	"time"

	"github.com/signalnine/cardbench/internal/config"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Estimators) != 1 {
		t.Fatalf("expected 1 estimator, got %d", len(cfg.Estimators))
	}
	if cfg.Estimators[0].Kind != config.KindConstant {
		t.Errorf("expected kind constant, got %q", cfg.Estimators[0].Kind)
	}
	if cfg.Trials != 30 {
		t.Errorf("expected default 30 trials, got %d", cfg.Trials)
	}
	if cfg.Ratio != 0.03 {
		t.Errorf("expected default ratio 0.03, got %f", cfg.Ratio)
	}
	if cfg.Deadline != 5*time.Minute {
		t.Errorf("expected default deadline 5m, got %v", cfg.Deadline)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("expected default poll interval 100ms, got %v", cfg.PollInterval)
	}
	if cfg.Results.Dir != "results" {
		t.Errorf("expected default results dir, got %q", cfg.Results.Dir)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Trials != 5 || cfg.Seed != 7 || cfg.Ratio != 0.05 {
		t.Errorf("unexpected run params: trials=%d seed=%d ratio=%f", cfg.Trials, cfg.Seed, cfg.Ratio)
	}
	if cfg.Deadline != 2*time.Minute {
		t.Errorf("deadline: got %v, want 2m", cfg.Deadline)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("poll_interval: got %v, want 50ms", cfg.PollInterval)
	}
	wj, err := cfg.Estimator("wj")
	if err != nil {
		t.Fatalf("Estimator(wj): %v", err)
	}
	if len(wj.SummarizeCmd) == 0 {
		t.Error("expected summarize_cmd on wj")
	}
	if wj.Env["OMP_NUM_THREADS"] != "1" {
		t.Error("expected env on wj")
	}
	docker, err := cfg.Estimator("cset-docker")
	if err != nil {
		t.Fatalf("Estimator(cset-docker): %v", err)
	}
	if docker.MemoryMB != 4096 || docker.CPULimit != 1 {
		t.Errorf("container limits: got cpu=%f mem=%d", docker.CPULimit, docker.MemoryMB)
	}
	if docker.Timeout != 2*time.Minute {
		t.Errorf("container timeout: got %v, want the 2m deadline", docker.Timeout)
	}
	fast, err := cfg.Estimator("cset-fast")
	if err != nil {
		t.Fatalf("Estimator(cset-fast): %v", err)
	}
	if fast.Timeout != 30*time.Second {
		t.Errorf("container timeout: got %v, want 30s", fast.Timeout)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
	if _, err := cfg.Estimator("missing"); err == nil {
		t.Error("expected error for unknown estimator")
	}
}

func TestSetDeadlineClampsContainerTimeouts(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.SetDeadline(10 * time.Second)
	for _, name := range []string{"cset-docker", "cset-fast"} {
		e, _ := cfg.Estimator(name)
		if e.Timeout != 10*time.Second {
			t.Errorf("%s timeout: got %v, want 10s", name, e.Timeout)
		}
	}
	wj, _ := cfg.Estimator("wj")
	if wj.Timeout != 0 {
		t.Errorf("exec estimators carry no container timeout, got %v", wj.Timeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CARDBENCH_TRIALS", "3")
	t.Setenv("CARDBENCH_SEED", "0")
	t.Setenv("CARDBENCH_DEADLINE", "90s")
	t.Setenv("CARDBENCH_RESULTS_DIR", "/tmp/cardbench")
	t.Setenv("CARDBENCH_LOG_DEV", "false")

	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Trials != 3 {
		t.Errorf("trials: got %d, want 3", cfg.Trials)
	}
	if cfg.Seed != 0 {
		t.Errorf("seed: got %d, want 0", cfg.Seed)
	}
	if cfg.Ratio != 0.05 {
		t.Errorf("ratio should keep the file value, got %f", cfg.Ratio)
	}
	if cfg.Deadline != 90*time.Second {
		t.Errorf("deadline: got %v, want 90s", cfg.Deadline)
	}
	if cfg.Results.Dir != "/tmp/cardbench" {
		t.Errorf("results dir: got %q", cfg.Results.Dir)
	}
	if cfg.Logging.Development {
		t.Error("expected LOG_DEV=false to override the file")
	}
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("CARDBENCH_TRIALS", "many")
	if _, err := config.Load("../../testdata/minimal.yaml"); err == nil {
		t.Error("expected error for non-numeric CARDBENCH_TRIALS")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, path := range []string{"../../testdata/invalid.yaml", "../../testdata/bad_kind.yaml"} {
		if _, err := config.Load(path); err == nil {
			t.Errorf("expected error for %s", path)
		}
	}
}
