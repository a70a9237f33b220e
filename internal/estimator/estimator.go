// Package estimator adapts external cardinality estimators to the trial runner.
//
// Estimators are opaque: cardbench only knows how to build their summary once
// and how to ask them for one estimate of one query. Every backend reads its
// behavior from a config.Estimator entry.
package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/signalnine/cardbench/internal/config"
	"github.com/signalnine/cardbench/internal/runner"
)

// Params identify one estimation problem.
type Params struct {
	Method  string  `json:"method"`
	Data    string  `json:"data"`
	Query   string  `json:"query,omitempty"`
	Summary string  `json:"summary"`
	Ratio   float64 `json:"ratio"`
	Seed    int64   `json:"seed"`
}

type Estimator interface {
	// Summarize builds the offline summary for p.Data at p.Summary.
	Summarize(ctx context.Context, p Params) error
	// Estimate returns the estimated cardinality of p.Query.
	Estimate(ctx context.Context, p Params) (float64, error)
}

func New(cfg config.Estimator) (Estimator, error) {
	switch cfg.Kind {
	case config.KindExec, "":
		return &Exec{RunCmd: cfg.RunCmd, SummarizeCmd: cfg.SummarizeCmd, Env: cfg.Env}, nil
	case config.KindContainer:
		return &Container{
			Image:        cfg.Image,
			RunCmd:       cfg.RunCmd,
			SummarizeCmd: cfg.SummarizeCmd,
			Env:          cfg.Env,
			CPULimit:     cfg.CPULimit,
			MemoryLimit:  cfg.MemoryMB << 20,
			Timeout:      cfg.Timeout,
		}, nil
	case config.KindConstant:
		return Constant(cfg.Value), nil
	default:
		return nil, fmt.Errorf("unknown estimator kind %q", cfg.Kind)
	}
}

// SummaryPath names the summary file an estimator builds for a data graph:
// <data>.<method>.p<ratio>.s<seed>.
func SummaryPath(data, method string, ratio float64, seed int64) string {
	return fmt.Sprintf("%s.%s.p%s.s%d", data, method, strconv.FormatFloat(ratio, 'g', -1, 64), seed)
}

// Expand substitutes the placeholders in an argv template.
func Expand(argv []string, p Params) []string {
	r := strings.NewReplacer(
		"{data}", p.Data,
		"{query}", p.Query,
		"{summary}", p.Summary,
		"{method}", p.Method,
		"{ratio}", strconv.FormatFloat(p.Ratio, 'g', -1, 64),
		"{seed}", strconv.FormatInt(p.Seed, 10),
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

// ParseEstimate reads the estimate from an estimator's output: the last
// non-empty line, optionally followed by ",<elapsed>".
func ParseEstimate(out []byte) (float64, error) {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	last := strings.TrimSpace(string(lines[len(lines)-1]))
	if last == "" {
		return 0, fmt.Errorf("estimator produced no output")
	}
	field, _, _ := strings.Cut(last, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing estimate from %q: %w", last, err)
	}
	return v, nil
}

// WorkName is the unit of work that runs one estimator trial.
const WorkName = "estimate"

// Job is the payload of an estimate trial.
type Job struct {
	Estimator config.Estimator `json:"estimator"`
	Params    Params           `json:"params"`
}

func (j Job) Payload() ([]byte, error) {
	return json.Marshal(j)
}

func init() {
	runner.Register(WorkName, runJob)
}

func runJob(ctx context.Context, in runner.Input) (float64, error) {
	var job Job
	if err := json.Unmarshal(in.Payload, &job); err != nil {
		return 0, fmt.Errorf("decoding job: %w", err)
	}
	job.Params.Seed = in.Seed
	est, err := New(job.Estimator)
	if err != nil {
		return 0, err
	}
	return est.Estimate(ctx, job.Params)
}
