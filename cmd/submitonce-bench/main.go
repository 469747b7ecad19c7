// Command submitonce-bench measures submission throughput and latency.
//
// By default it drives controllers against an in-process ledger so the
// whole protocol runs in one process. Pass -addr to aim the same workload
// at a running submitonce-server over HTTP instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/clearway/submitonce"
	"github.com/clearway/submitonce/httpapi"
	"github.com/clearway/submitonce/ledger"
)

const (
	defaultSubmissions      = 1000
	defaultConcurrency      = 4
	defaultUsers            = 100
	defaultAmount           = 25.00
	defaultBaseDelay        = 25 * time.Millisecond
	defaultPollInterval     = 50 * time.Millisecond
	defaultDelayMin         = 50 * time.Millisecond
	defaultDelayMax         = 200 * time.Millisecond
	defaultRetryAfter       = 25 * time.Millisecond
	defaultProgressInterval = 2 * time.Second
	percentileP50           = 0.50
	percentileP95           = 0.95
	percentileP99           = 0.99
	percentScale            = 100
	microsecondsPerSecond   = 1e6
)

var (
	errSubmissionsPositive = errors.New("submitonce-bench: submissions must be positive")
	errConcurrencyPositive = errors.New("submitonce-bench: concurrency must be positive")
	errUsersPositive       = errors.New("submitonce-bench: users must be positive")
	errAmountPositive      = errors.New("submitonce-bench: amount must be positive")
)

type result struct {
	Addr              string        `json:"addr,omitempty"`
	Submissions       int           `json:"submissions"`
	Processed         int64         `json:"processed"`
	Concurrency       int           `json:"concurrency"`
	Users             int           `json:"users"`
	Duration          time.Duration `json:"duration"`
	Throughput        float64       `json:"throughput_sub_per_sec"`
	Success           int64         `json:"success"`
	Failures          int64         `json:"failures"`
	Delayed           int64         `json:"delayed_completions"`
	Retries           int64         `json:"retries"`
	Attempts          int64         `json:"attempts"`
	Seed              int64         `json:"seed,omitempty"`
	LatencyP50Ms      float64       `json:"latency_p50_ms"`
	LatencyP95Ms      float64       `json:"latency_p95_ms"`
	LatencyP99Ms      float64       `json:"latency_p99_ms"`
	LatencyMaxMs      float64       `json:"latency_max_ms"`
	LatencyMeanMs     float64       `json:"latency_mean_ms"`
	LatencySamples    int64         `json:"latency_samples"`
	ProcessUserCPU    float64       `json:"process_user_cpu_seconds"`
	ProcessSystemCPU  float64       `json:"process_system_cpu_seconds"`
	ProcessMaxRSSKB   int64         `json:"process_max_rss_kb"`
	GoHeapAllocBytes  uint64        `json:"go_heap_alloc_bytes"`
	GoTotalAllocBytes uint64        `json:"go_total_alloc_bytes"`
	GoNumGC           uint32        `json:"go_num_gc"`
}

type benchConfig struct {
	addr             string
	submissions      int
	concurrency      int
	users            int
	amount           float64
	maxRetries       int
	baseDelay        time.Duration
	pollInterval     time.Duration
	submitTimeout    time.Duration
	seed             int64
	progress         bool
	progressInterval time.Duration
}

func main() {
	var (
		addr             string
		submissions      int
		concurrency      int
		users            int
		amount           float64
		maxRetries       int
		baseDelay        time.Duration
		pollInterval     time.Duration
		submitTimeout    time.Duration
		successWeight    int
		transientWeight  int
		delayedWeight    int
		delayMin         time.Duration
		delayMax         time.Duration
		retryAfter       time.Duration
		seed             int64
		progress         bool
		progressInterval time.Duration
		jsonOut          bool
	)

	flag.StringVar(&addr, "addr", "", "Base URL of a running submitonce-server (empty runs an in-process ledger)")
	flag.IntVar(&submissions, "submissions", defaultSubmissions, "Number of submissions to drive to a terminal outcome")
	flag.IntVar(&concurrency, "concurrency", defaultConcurrency, "Concurrent controllers")
	flag.IntVar(&users, "users", defaultUsers, "Distinct submitter addresses to cycle through")
	flag.Float64Var(&amount, "amount", defaultAmount, "Amount submitted per request")
	flag.IntVar(&maxRetries, "max-retries", 0, "Retry budget per submission (0 uses the default, negative disables)")
	flag.DurationVar(&baseDelay, "base-delay", defaultBaseDelay, "First retry delay, doubled per retry")
	flag.DurationVar(&pollInterval, "poll-interval", defaultPollInterval, "Delay between status polls")
	flag.DurationVar(&submitTimeout, "submit-timeout", 0, "Timeout per transport call (0 disables)")
	flag.IntVar(&successWeight, "success-weight", 0, "Immediate success weight, in-process ledger only (0 uses the simulator default)")
	flag.IntVar(&transientWeight, "transient-weight", 0, "Transient failure weight, in-process ledger only (0 uses the simulator default)")
	flag.IntVar(&delayedWeight, "delayed-weight", 0, "Delayed success weight, in-process ledger only (0 uses the simulator default)")
	flag.DurationVar(&delayMin, "delay-min", defaultDelayMin, "Minimum delayed completion, in-process ledger only")
	flag.DurationVar(&delayMax, "delay-max", defaultDelayMax, "Maximum delayed completion, in-process ledger only")
	flag.DurationVar(&retryAfter, "retry-after", defaultRetryAfter, "Retry hint for transient failures, in-process ledger only")
	flag.Int64Var(&seed, "seed", 1, "Outcome simulator seed, in-process ledger only (0 draws a random seed)")
	flag.BoolVar(&progress, "progress", true, "Emit progress updates to stderr")
	flag.DurationVar(&progressInterval, "progress-interval", defaultProgressInterval, "Progress update interval")
	flag.BoolVar(&jsonOut, "json", false, "Print JSON result")
	flag.Parse()

	if submissions <= 0 {
		exitErr(errSubmissionsPositive)
	}
	if concurrency <= 0 {
		exitErr(errConcurrencyPositive)
	}
	if users <= 0 {
		exitErr(errUsersPositive)
	}
	if amount <= 0 {
		exitErr(errAmountPositive)
	}

	cfg := benchConfig{
		addr:             addr,
		submissions:      submissions,
		concurrency:      concurrency,
		users:            users,
		amount:           amount,
		maxRetries:       maxRetries,
		baseDelay:        baseDelay,
		pollInterval:     pollInterval,
		submitTimeout:    submitTimeout,
		seed:             seed,
		progress:         progress,
		progressInterval: progressInterval,
	}

	var transport submitonce.Transport
	if addr == "" {
		sim := ledger.NewRandomSimulator(
			ledger.WithWeights(successWeight, transientWeight, delayedWeight),
			ledger.WithDelayBounds(delayMin, delayMax),
			ledger.WithRetryAfter(retryAfter),
			ledger.WithSeed(seed),
		)
		led := ledger.NewLedger(ledger.WithSimulator(sim))
		defer led.Close()
		transport = led
	} else {
		client, err := httpapi.NewClient(addr)
		if err != nil {
			exitErr(err)
		}
		transport = client
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runBench(ctx, transport, cfg)
	if err != nil {
		exitErr(err)
	}

	if jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			exitErr(err)
		}

		return
	}

	resultFmt := "RESULT submissions=%d processed=%d duration=%s throughput=%.0f/s " +
		"success=%d failures=%d delayed=%d retries=%d " +
		"p50=%.1fms p95=%.1fms p99=%.1fms\n"
	fmt.Printf(
		resultFmt,
		res.Submissions,
		res.Processed,
		res.Duration.Truncate(time.Millisecond),
		res.Throughput,
		res.Success,
		res.Failures,
		res.Delayed,
		res.Retries,
		res.LatencyP50Ms,
		res.LatencyP95Ms,
		res.LatencyP99Ms,
	)
}

type benchState struct {
	started  int64
	success  int64
	failures int64
	delayed  int64
	retries  int64
	attempts int64
}

func (s *benchState) completed() int64 {
	return atomic.LoadInt64(&s.success) + atomic.LoadInt64(&s.failures)
}

func runBench(ctx context.Context, transport submitonce.Transport, cfg benchConfig) (result, error) {
	state := &benchState{}
	latency := newLatencyStats()

	printer := newProgressPrinter(cfg.progress, cfg.progressInterval)
	if printer.Enabled() {
		progressCtx, progressCancel := context.WithCancel(context.Background())
		go benchProgress(progressCtx, printer, cfg, state)
		defer func() {
			progressCancel()
			printer.Done(progressDoneLine(cfg, state))
		}()
	}

	usageStart := readResourceUsage()
	start := time.Now()
	var wg sync.WaitGroup
	errCh := make(chan error, cfg.concurrency)
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, transport, cfg, state, latency, errCh)
		}()
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return result{}, err
	}
	duration := time.Since(start)

	processed := state.completed()
	throughput := float64(processed) / duration.Seconds()
	latSnap := latency.Snapshot()
	usage := readResourceUsage()
	usageDelta := deltaUsage(usageStart, usage)

	res := result{
		Addr:              cfg.addr,
		Submissions:       cfg.submissions,
		Processed:         processed,
		Concurrency:       cfg.concurrency,
		Users:             cfg.users,
		Duration:          duration,
		Throughput:        throughput,
		Success:           atomic.LoadInt64(&state.success),
		Failures:          atomic.LoadInt64(&state.failures),
		Delayed:           atomic.LoadInt64(&state.delayed),
		Retries:           atomic.LoadInt64(&state.retries),
		Attempts:          atomic.LoadInt64(&state.attempts),
		LatencyP50Ms:      msFloat(latSnap.P50),
		LatencyP95Ms:      msFloat(latSnap.P95),
		LatencyP99Ms:      msFloat(latSnap.P99),
		LatencyMaxMs:      msFloat(latSnap.Max),
		LatencyMeanMs:     msFloat(latSnap.Mean),
		LatencySamples:    latSnap.Count,
		ProcessUserCPU:    usageDelta.UserCPUSeconds,
		ProcessSystemCPU:  usageDelta.SystemCPUSeconds,
		ProcessMaxRSSKB:   usage.MaxRSSKB,
		GoHeapAllocBytes:  usage.GoHeapAllocBytes,
		GoTotalAllocBytes: usageDelta.GoTotalAllocBytes,
		GoNumGC:           usageDelta.GoNumGC,
	}
	if cfg.addr == "" {
		res.Seed = cfg.seed
	}

	return res, nil
}

// worker drives submissions to a terminal outcome, one at a time on its own
// controller, until the target count is reached or ctx is canceled.
func worker(
	ctx context.Context,
	transport submitonce.Transport,
	cfg benchConfig,
	state *benchState,
	latency *latencyStats,
	errCh chan<- error,
) {
	ctrl := submitonce.NewController(transport,
		submitonce.WithMaxRetries(cfg.maxRetries),
		submitonce.WithBaseDelay(cfg.baseDelay),
		submitonce.WithStatusPollInterval(cfg.pollInterval),
		submitonce.WithSubmitTimeout(cfg.submitTimeout),
	)
	defer func() { _ = ctrl.Close() }()

	for ctx.Err() == nil {
		n := atomic.AddInt64(&state.started, 1)
		if n > int64(cfg.submissions) {
			return
		}

		email := fmt.Sprintf("bench-%04d@example.com", n%int64(cfg.users))
		start := time.Now()
		if err := ctrl.Start(ctx, email, cfg.amount); err != nil {
			errCh <- fmt.Errorf("start submission %d: %w", n, err)

			return
		}
		st, err := ctrl.Wait(ctx)
		if err != nil {
			// Interrupted; the tallies so far still make a result.
			return
		}
		elapsed := time.Since(start)

		atomic.AddInt64(&state.attempts, int64(st.Attempt))
		atomic.AddInt64(&state.retries, int64(st.RetryCount))
		if st.Delayed {
			atomic.AddInt64(&state.delayed, 1)
		}
		if st.Phase == submitonce.PhaseSuccess {
			atomic.AddInt64(&state.success, 1)
			latency.Record(elapsed)
		} else {
			atomic.AddInt64(&state.failures, 1)
		}

		if err := ctrl.Reset(); err != nil {
			errCh <- fmt.Errorf("reset controller: %w", err)

			return
		}
	}
}

type latencyStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

func newLatencyStats() *latencyStats {
	return &latencyStats{}
}

func (l *latencyStats) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.samples = append(l.samples, d)
	l.mu.Unlock()
}

func (l *latencyStats) Snapshot() latencySnapshot {
	l.mu.Lock()
	samples := append([]time.Duration(nil), l.samples...)
	l.mu.Unlock()
	if len(samples) == 0 {
		return latencySnapshot{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	return latencySnapshot{
		P50:   percentile(samples, percentileP50),
		P95:   percentile(samples, percentileP95),
		P99:   percentile(samples, percentileP99),
		Max:   samples[len(samples)-1],
		Mean:  meanDuration(samples),
		Count: int64(len(samples)),
	}
}

type latencySnapshot struct {
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int64
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}

	return samples[idx]
}

func meanDuration(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}

	return sum / time.Duration(len(samples))
}

type resourceUsage struct {
	UserCPUSeconds    float64
	SystemCPUSeconds  float64
	MaxRSSKB          int64
	GoHeapAllocBytes  uint64
	GoTotalAllocBytes uint64
	GoNumGC           uint32
}

func readResourceUsage() resourceUsage {
	var usage resourceUsage

	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err == nil {
		usage.UserCPUSeconds = float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/microsecondsPerSecond
		usage.SystemCPUSeconds = float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/microsecondsPerSecond
		usage.MaxRSSKB = ru.Maxrss
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	usage.GoHeapAllocBytes = ms.HeapAlloc
	usage.GoTotalAllocBytes = ms.TotalAlloc
	usage.GoNumGC = ms.NumGC

	return usage
}

type usageDelta struct {
	UserCPUSeconds    float64
	SystemCPUSeconds  float64
	GoTotalAllocBytes uint64
	GoNumGC           uint32
}

func deltaUsage(start, end resourceUsage) usageDelta {
	return usageDelta{
		UserCPUSeconds:    end.UserCPUSeconds - start.UserCPUSeconds,
		SystemCPUSeconds:  end.SystemCPUSeconds - start.SystemCPUSeconds,
		GoTotalAllocBytes: end.GoTotalAllocBytes - start.GoTotalAllocBytes,
		GoNumGC:           end.GoNumGC - start.GoNumGC,
	}
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type progressPrinter struct {
	enabled  bool
	interval time.Duration
	isTTY    bool
	mu       sync.Mutex
	lastLen  int
}

func newProgressPrinter(enabled bool, interval time.Duration) *progressPrinter {
	tty := false
	if info, err := os.Stderr.Stat(); err == nil {
		tty = (info.Mode() & os.ModeCharDevice) != 0
	}

	return &progressPrinter{
		enabled:  enabled,
		interval: interval,
		isTTY:    tty,
	}
}

func (p *progressPrinter) Enabled() bool {
	return p.enabled && p.interval > 0
}

func (p *progressPrinter) Print(line string) {
	if !p.Enabled() || line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print(line, false)
}

func (p *progressPrinter) Done(line string) {
	if !p.Enabled() || line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print(line, true)
}

func (p *progressPrinter) print(line string, final bool) {
	padding := ""
	if p.lastLen > len(line) {
		padding = strings.Repeat(" ", p.lastLen-len(line))
	}
	switch {
	case p.isTTY && final:
		fmt.Fprintf(os.Stderr, "\r%s%s\n", line, padding)
	case p.isTTY:
		fmt.Fprintf(os.Stderr, "\r%s%s", line, padding)
	case final:
		fmt.Fprintf(os.Stderr, "%s\n", line)
	default:
		fmt.Fprintf(os.Stderr, "\r%s", line)
	}
	p.lastLen = len(line)
}

func shortDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	return d.Truncate(time.Second).String()
}

func benchProgress(ctx context.Context, printer *progressPrinter, cfg benchConfig, state *benchState) {
	ticker := time.NewTicker(printer.interval)
	defer ticker.Stop()
	start := time.Now()
	lastCount := state.completed()
	lastChange := start

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			current := state.completed()
			if current != lastCount {
				lastCount = current
				lastChange = now
			}
			elapsed := now.Sub(start)
			rate := 0.0
			if elapsed > 0 {
				rate = float64(current) / elapsed.Seconds()
			}
			percent := 0.0
			if cfg.submissions > 0 {
				percent = float64(current) / float64(cfg.submissions) * percentScale
			}
			line := fmt.Sprintf(
				"bench: %d/%d (%.1f%%) rate=%.0f/s success=%d failures=%d stall=%s concurrency=%d",
				current,
				cfg.submissions,
				percent,
				rate,
				atomic.LoadInt64(&state.success),
				atomic.LoadInt64(&state.failures),
				shortDuration(now.Sub(lastChange)),
				cfg.concurrency,
			)
			printer.Print(line)
		}
	}
}

func progressDoneLine(cfg benchConfig, state *benchState) string {
	current := state.completed()
	percent := 0.0
	if cfg.submissions > 0 {
		percent = float64(current) / float64(cfg.submissions) * percentScale
	}

	return fmt.Sprintf(
		"bench: %d/%d (%.1f%%) done success=%d failures=%d delayed=%d retries=%d",
		current,
		cfg.submissions,
		percent,
		atomic.LoadInt64(&state.success),
		atomic.LoadInt64(&state.failures),
		atomic.LoadInt64(&state.delayed),
		atomic.LoadInt64(&state.retries),
	)
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
