package runner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/moby/sys/reexec"
	"go.uber.org/zap"

	"github.com/signalnine/cardbench/internal/logging"
	"github.com/signalnine/cardbench/internal/memprobe"
	"github.com/signalnine/cardbench/internal/shm"
)

// Input is what a unit of work sees inside its worker process.
type Input struct {
	Trial   int
	Seed    int64
	Rand    *rand.Rand
	Payload []byte
}

// Work computes one estimate. A returned error, like a panic, kills the worker
// with SIGABRT and aborts the batch. An error wrapping *SignalError kills the
// worker with that signal instead.
type Work func(ctx context.Context, in Input) (float64, error)

const workerEntry = "cardbench-trial-worker"

const (
	envWork     = "CARDBENCH_TRIAL_WORK"
	envPayload  = "CARDBENCH_TRIAL_PAYLOAD"
	envIndex    = "CARDBENCH_TRIAL_INDEX"
	envSeed     = "CARDBENCH_TRIAL_SEED"
	envSequence = "CARDBENCH_TRIAL_SEQUENCE"
	envChannel  = "CARDBENCH_TRIAL_CHANNEL"
	envLogLevel = "CARDBENCH_TRIAL_LOG_LEVEL"
)

// Worker exit codes for failures before the work runs.
const (
	exitBadEnvironment = 3
	exitNoChannel      = 4
	exitPublish        = 5
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Work{}
)

func init() {
	reexec.Register(workerEntry, workerMain)
}

// Register makes w resolvable by name inside worker processes. It must be
// called from an init function or before reexec.Init, since the worker is a
// fresh copy of the binary. Registering a name twice panics.
func Register(name string, w Work) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("runner: work %q already registered", name))
	}
	registry[name] = w
}

// Registered lists the registered work names in order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Work, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	w, ok := registry[name]
	return w, ok
}

type workerSpec struct {
	work     string
	payload  []byte
	index    int
	seed     int64
	sequence uint64
	channel  int
	logLevel string
}

func (s workerSpec) environ() []string {
	return []string{
		envWork + "=" + s.work,
		envPayload + "=" + base64.StdEncoding.EncodeToString(s.payload),
		envIndex + "=" + strconv.Itoa(s.index),
		envSeed + "=" + strconv.FormatInt(s.seed, 10),
		envSequence + "=" + strconv.FormatUint(s.sequence, 10),
		envChannel + "=" + strconv.Itoa(s.channel),
		envLogLevel + "=" + s.logLevel,
	}
}

func parseWorkerSpec(getenv func(string) string) (workerSpec, error) {
	var (
		s   workerSpec
		err error
	)
	s.work = getenv(envWork)
	if s.work == "" {
		return s, fmt.Errorf("%s not set", envWork)
	}
	if s.payload, err = base64.StdEncoding.DecodeString(getenv(envPayload)); err != nil {
		return s, fmt.Errorf("decoding %s: %w", envPayload, err)
	}
	if s.index, err = strconv.Atoi(getenv(envIndex)); err != nil {
		return s, fmt.Errorf("parsing %s: %w", envIndex, err)
	}
	if s.seed, err = strconv.ParseInt(getenv(envSeed), 10, 64); err != nil {
		return s, fmt.Errorf("parsing %s: %w", envSeed, err)
	}
	if s.sequence, err = strconv.ParseUint(getenv(envSequence), 10, 64); err != nil {
		return s, fmt.Errorf("parsing %s: %w", envSequence, err)
	}
	if s.channel, err = strconv.Atoi(getenv(envChannel)); err != nil {
		return s, fmt.Errorf("parsing %s: %w", envChannel, err)
	}
	s.logLevel = getenv(envLogLevel)
	if s.logLevel == "" {
		s.logLevel = "info"
	}
	return s, nil
}

// NewRand returns the deterministic source a trial with the given seed uses.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

func workerMain() {
	os.Exit(runWorker(context.Background(), os.Getenv))
}

func runWorker(ctx context.Context, getenv func(string) string) int {
	spec, err := parseWorkerSpec(getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cardbench worker: %v\n", err)
		return exitBadEnvironment
	}
	logger := logging.NewOrNop(logging.Config{Level: spec.logLevel}).With(
		zap.String("work", spec.work),
		zap.Int("trial", spec.index),
		zap.Int("pid", os.Getpid()),
	)
	defer logger.Sync()

	work, ok := lookup(spec.work)
	if !ok {
		logger.Error("unknown work")
		return exitBadEnvironment
	}
	ch, err := shm.Attach(spec.channel)
	if err != nil {
		logger.Error("attaching result channel", zap.Error(err))
		return exitNoChannel
	}
	defer ch.Release()

	// An unrecovered panic now ends the process with SIGABRT rather than exit
	// status 2, which the controller classifies as a signal death.
	debug.SetTraceback("crash")

	start := time.Now()
	estimate, err := work(ctx, Input{
		Trial:   spec.index,
		Seed:    spec.seed,
		Rand:    NewRand(spec.seed),
		Payload: spec.payload,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		var sigErr *SignalError
		if errors.As(err, &sigErr) {
			logger.Warn("estimator killed by signal, re-raising", zap.Stringer("signal", sigErr.Signal))
			logger.Sync()
			reraise(sigErr.Signal)
		}
		panic(fmt.Sprintf("trial %d: %v", spec.index, err))
	}

	rss, err := memprobe.Default.Resident()
	if err != nil {
		logger.Warn("probing memory", zap.Error(err))
		rss = 0
	}
	if err := ch.Publish(spec.sequence, estimate, elapsed, rss); err != nil {
		logger.Error("publishing result", zap.Error(err))
		return exitPublish
	}
	logger.Debug("published",
		zap.Float64("estimate", estimate),
		zap.Float64("elapsed_s", elapsed),
		zap.Int64("rss_bytes", rss))
	if err := ch.Release(); err != nil {
		logger.Warn("detaching result channel", zap.Error(err))
	}
	return 0
}
