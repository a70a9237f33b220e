package docker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/cardbench/internal/docker"
)

func TestRunContainer(t *testing.T) {
	if os.Getenv("CARDBENCH_DOCKER_TESTS") == "" {
		t.Skip("set CARDBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dataDir := t.TempDir()
	os.WriteFile(filepath.Join(dataDir, "q.txt"), []byte("t # s 1\n"), 0o644)

	result, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "test -f " + dataDir + "/q.txt && echo 123.5"},
		Mounts:  []docker.Mount{{Source: dataDir, Target: dataDir, ReadOnly: true}},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code: got %d, want 0", result.ExitCode)
	}
	if result.TimedOut {
		t.Error("unexpected timeout")
	}
	if !strings.Contains(string(result.Output), "123.5") {
		t.Errorf("output: got %q", result.Output)
	}
}

func TestRunContainerTimeout(t *testing.T) {
	if os.Getenv("CARDBENCH_DOCKER_TESTS") == "" {
		t.Skip("set CARDBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	result, err := docker.RunContainer(context.Background(), &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timeout")
	}
	if result.ExitCode != 124 {
		t.Errorf("exit code: got %d, want 124", result.ExitCode)
	}
}

func TestRunContainerCrash(t *testing.T) {
	if os.Getenv("CARDBENCH_DOCKER_TESTS") == "" {
		t.Skip("set CARDBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	result, err := docker.RunContainer(context.Background(), &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "exit 1"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code: got %d, want 1", result.ExitCode)
	}
}
