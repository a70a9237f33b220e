package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalnine/cardbench/internal/runner"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// BatchPath is where the record for estimator over query is stored. The query
// path is flattened so queries in different directories do not collide.
func BatchPath(runDir, estimator, query string) string {
	clean := filepath.ToSlash(filepath.Clean(query))
	name := strings.TrimLeft(strings.TrimSuffix(clean, filepath.Ext(clean)), "./")
	name = strings.ReplaceAll(name, "/", "__")
	return filepath.Join(runDir, "batches", estimator, name+".json")
}

func WriteBatch(runDir string, rec *BatchRecord) error {
	path := BatchPath(runDir, rec.Estimator, rec.Query)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating batch dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling batch: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func ReadBatch(path string) (*BatchRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}
	var rec BatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing batch: %w", err)
	}
	return &rec, nil
}

// Apply fills the outcome fields of rec from what RunBatch returned.
func (rec *BatchRecord) Apply(s *runner.Summary, err error) {
	if err == nil {
		rec.Status = StatusCompleted
		rec.TrialsCompleted = s.TrialsCompleted
		rec.TrialsDiscarded = s.TrialsDiscarded
		rec.MeanEstimate = s.MeanEstimate
		rec.MeanElapsedS = s.MeanElapsedSeconds
		rec.EstimateVariance = s.EstimateVariance
		rec.PeakMemoryBytes = s.PeakMemory
		rec.Estimates = s.Estimates
		return
	}

	rec.Error = err.Error()
	var (
		trialErr *runner.TrialError
		sigErr   *runner.SignalError
		exitErr  *runner.ExitError
	)
	if errors.As(err, &trialErr) {
		trial := trialErr.Trial
		rec.FailedTrial = &trial
	}
	switch {
	case errors.Is(err, runner.ErrTimedOut):
		rec.Status = StatusTimeout
	case errors.As(err, &sigErr):
		rec.Status = StatusSignaled
		rec.Signal = int(sigErr.Signal)
	case errors.As(err, &exitErr):
		rec.Status = StatusExited
		rec.ExitCode = exitErr.Code
	case errors.Is(err, runner.ErrNoSamples):
		rec.Status = StatusNoSamples
	default:
		rec.Status = StatusError
	}
}
