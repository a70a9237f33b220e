package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/cardbench/internal/result"
)

type EstimatorSummary struct {
	Name          string  `json:"name"`
	Batches       int     `json:"batches"`
	Completed     int     `json:"completed"`
	SuccessRate   float64 `json:"success_rate"`
	Timeouts      int     `json:"timeouts"`
	Crashes       int     `json:"crashes"`
	NoSamples     int     `json:"no_samples"`
	MeanElapsedS  float64 `json:"mean_elapsed_s"`
	MaxPeakMemory int64   `json:"max_peak_memory_bytes"`
}

// Generate reads the batch records of a run and produces a per-estimator
// summary in the given format.
func Generate(runDir, format string, w io.Writer) error {
	recs, err := collectBatches(runDir)
	if err != nil {
		return err
	}

	summaries := aggregate(recs)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func collectBatches(runDir string) ([]*result.BatchRecord, error) {
	var recs []*result.BatchRecord
	err := filepath.Walk(filepath.Join(runDir, "batches"), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".json" {
			rec, err := result.ReadBatch(path)
			if err != nil {
				return nil
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

func aggregate(recs []*result.BatchRecord) []EstimatorSummary {
	type accum struct {
		count     int
		completed int
		timeouts  int
		crashes   int
		noSamples int
		elapsed   float64
		peak      int64
	}
	byEst := map[string]*accum{}

	for _, r := range recs {
		a, ok := byEst[r.Estimator]
		if !ok {
			a = &accum{}
			byEst[r.Estimator] = a
		}
		a.count++
		switch r.Status {
		case result.StatusCompleted:
			a.completed++
			a.elapsed += r.MeanElapsedS
		case result.StatusTimeout:
			a.timeouts++
		case result.StatusSignaled, result.StatusExited:
			a.crashes++
		case result.StatusNoSamples:
			a.noSamples++
		}
		if r.PeakMemoryBytes > a.peak {
			a.peak = r.PeakMemoryBytes
		}
	}

	var summaries []EstimatorSummary
	for name, a := range byEst {
		s := EstimatorSummary{
			Name:          name,
			Batches:       a.count,
			Completed:     a.completed,
			SuccessRate:   float64(a.completed) / float64(a.count),
			Timeouts:      a.timeouts,
			Crashes:       a.crashes,
			NoSamples:     a.noSamples,
			MaxPeakMemory: a.peak,
		}
		if a.completed > 0 {
			s.MeanElapsedS = a.elapsed / float64(a.completed)
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

func mib(b int64) float64 { return float64(b) / (1 << 20) }

func writeTable(summaries []EstimatorSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ESTIMATOR\tBATCHES\tSUCCESS\tTIMEOUTS\tCRASHES\tMEAN ELAPSED\tPEAK MEM")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%d\t%d\t%.4fs\t%.1f MiB\n",
			s.Name, s.Batches, s.SuccessRate*100, s.Timeouts, s.Crashes, s.MeanElapsedS, mib(s.MaxPeakMemory))
	}
	return tw.Flush()
}

func writeMarkdown(summaries []EstimatorSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Estimator | Batches | Success | Timeouts | Crashes | Mean Elapsed | Peak Mem |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %d | %d | %.4fs | %.1f MiB |\n",
			s.Name, s.Batches, s.SuccessRate*100, s.Timeouts, s.Crashes, s.MeanElapsedS, mib(s.MaxPeakMemory))
	}
	return nil
}

func writeJSON(summaries []EstimatorSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
