package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/cardbench/internal/result"
)

func TestReportCommand(t *testing.T) {
	defer func() { flagFormat = "table" }()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cardbench.yaml")
	writeFile(t, cfgPath, `
results:
  dir: `+filepath.Join(dir, "results")+`
estimators:
  - name: fixed
    kind: constant
`)
	runDir, err := result.CreateRunDir(filepath.Join(dir, "results"))
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	for _, rec := range []*result.BatchRecord{
		{Estimator: "fixed", Query: "q1.txt", Status: result.StatusCompleted, MeanElapsedS: 0.1},
		{Estimator: "fixed", Query: "q2.txt", Status: result.StatusTimeout},
	} {
		if err := result.WriteBatch(runDir, rec); err != nil {
			t.Fatalf("WriteBatch: %v", err)
		}
	}

	var stdout bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetArgs([]string{"--config", cfgPath, "report", "--format", "markdown"})
	if err := root.Execute(); err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(stdout.String(), "| fixed | 2 | 50% | 1 | 0 |") {
		t.Errorf("unexpected report for the latest run:\n%s", stdout.String())
	}
}
