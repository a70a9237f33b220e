package result

const (
	StatusCompleted = "completed"
	StatusTimeout   = "timeout"
	StatusSignaled  = "signaled"
	StatusExited    = "exited"
	StatusNoSamples = "no_samples"
	StatusError     = "error"
)

// BatchRecord is the stored result of one estimator batch over one query.
type BatchRecord struct {
	RunID            string    `json:"run_id"`
	Estimator        string    `json:"estimator"`
	Query            string    `json:"query"`
	Trials           int       `json:"trials"`
	Seed             int64     `json:"seed"`
	Ratio            float64   `json:"ratio"`
	Status           string    `json:"status"`
	FailedTrial      *int      `json:"failed_trial,omitempty"`
	Signal           int       `json:"signal,omitempty"`
	ExitCode         int       `json:"exit_code,omitempty"`
	Error            string    `json:"error,omitempty"`
	TrialsCompleted  int       `json:"trials_completed"`
	TrialsDiscarded  int       `json:"trials_discarded"`
	MeanEstimate     float64   `json:"mean_estimate"`
	MeanElapsedS     float64   `json:"mean_elapsed_s"`
	EstimateVariance float64   `json:"estimate_variance"`
	PeakMemoryBytes  int64     `json:"peak_memory_bytes"`
	Estimates        []float64 `json:"estimates,omitempty"`
}
