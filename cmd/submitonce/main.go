// Command submitonce submits a payment once and waits for its outcome.
//
// It drives a submission controller against a running submitonce-server:
// one request id covers the whole submission, transient failures retry
// with exponential backoff, and accepted submissions are polled until the
// server completes them. Exit code 0 means the submission succeeded.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/clearway/submitonce"
	"github.com/clearway/submitonce/httpapi"
)

const exitUsage = 2

const (
	defaultServerURL   = "http://localhost:8080"
	defaultWaitTimeout = 2 * time.Minute
)

type stdLogger struct {
	logger  *log.Logger
	verbose bool
}

func (l stdLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG %s %s", msg, formatArgs(args))
}

func (l stdLogger) Info(msg string, args ...any) {
	l.logger.Printf("INFO %s %s", msg, formatArgs(args))
}

func (l stdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("WARN %s %s", msg, formatArgs(args))
}

func (l stdLogger) Error(msg string, args ...any) {
	l.logger.Printf("ERROR %s %s", msg, formatArgs(args))
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key := args[i]
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", key, val))
	}

	return strings.Join(pairs, " ")
}

type result struct {
	Phase     string        `json:"phase"`
	RequestID string        `json:"request_id"`
	Attempts  int           `json:"attempts"`
	Retries   int           `json:"retries"`
	Delayed   bool          `json:"delayed"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Message   string        `json:"message,omitempty"`
	Email     string        `json:"email,omitempty"`
	Amount    float64       `json:"amount,omitempty"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
}

func main() {
	var (
		server        string
		email         string
		amount        float64
		waitTimeout   time.Duration
		maxRetries    int
		baseDelay     time.Duration
		pollInterval  time.Duration
		submitTimeout time.Duration
		jsonOut       bool
		verbose       bool
	)

	flag.StringVar(&server, "server", defaultServerURL, "Base URL of the submission server")
	flag.StringVar(&email, "email", "", "Submission email (required)")
	flag.Float64Var(&amount, "amount", 0, "Submission amount (required, positive)")
	flag.DurationVar(&waitTimeout, "wait-timeout", defaultWaitTimeout, "How long to wait for a terminal outcome")
	flag.IntVar(&maxRetries, "max-retries", 0, "Retry budget (0 uses the default, negative disables retries)")
	flag.DurationVar(&baseDelay, "base-delay", 0, "First retry delay, doubled per retry (0 uses the default)")
	flag.DurationVar(&pollInterval, "poll-interval", 0, "Delay between status polls (0 uses the default)")
	flag.DurationVar(&submitTimeout, "submit-timeout", 0, "Timeout per transport call (0 disables)")
	flag.BoolVar(&jsonOut, "json", false, "Print the outcome as JSON")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if err := submitonce.ValidateInput(email, amount); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(exitUsage)
	}

	res, err := run(server, email, amount, waitTimeout, baseDelay, pollInterval, submitTimeout, maxRetries, verbose)
	if err != nil {
		log.Print(err)
		os.Exit(1)
	}

	if jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			log.Print(err)
			os.Exit(1)
		}
	} else {
		fmt.Println(resultLine(res))
	}

	if res.Phase != string(submitonce.PhaseSuccess) {
		os.Exit(1)
	}
}

func run(
	server, email string,
	amount float64,
	waitTimeout, baseDelay, pollInterval, submitTimeout time.Duration,
	maxRetries int,
	verbose bool,
) (result, error) {
	client, err := httpapi.NewClient(server)
	if err != nil {
		return result{}, err
	}

	var logger submitonce.Logger = submitonce.NopLogger{}
	if verbose {
		logger = stdLogger{logger: log.New(os.Stderr, "", log.LstdFlags), verbose: true}
	}

	ctrl := submitonce.NewController(client,
		submitonce.WithMaxRetries(maxRetries),
		submitonce.WithBaseDelay(baseDelay),
		submitonce.WithStatusPollInterval(pollInterval),
		submitonce.WithSubmitTimeout(submitTimeout),
		submitonce.WithLogger(logger),
		submitonce.WithTransitionListener(printTransition),
	)
	defer func() { _ = ctrl.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	start := time.Now()
	if err := ctrl.Start(ctx, email, amount); err != nil {
		return result{}, fmt.Errorf("start submission: %w", err)
	}
	st, err := ctrl.Wait(ctx)
	if err != nil {
		return result{}, fmt.Errorf("wait for outcome: %w", err)
	}

	return resultFromState(st, time.Since(start)), nil
}

// printTransition mirrors controller progress onto stderr. Terminal phases
// are reported by the final result instead.
func printTransition(st submitonce.State) {
	if st.Phase != submitonce.PhasePending {
		return
	}
	switch {
	case st.Delayed:
		fmt.Fprintf(os.Stderr, "accepted, waiting for server-side completion request_id=%s\n", st.RequestID)
	case st.RetryCount > 0:
		fmt.Fprintf(os.Stderr, "retry %d scheduled request_id=%s reason=%q\n", st.RetryCount, st.RequestID, st.LastError)
	default:
		fmt.Fprintf(os.Stderr, "submitting request_id=%s\n", st.RequestID)
	}
}

func resultFromState(st submitonce.State, elapsed time.Duration) result {
	res := result{
		Phase:     string(st.Phase),
		RequestID: st.RequestID,
		Attempts:  st.Attempt,
		Retries:   st.RetryCount,
		Delayed:   st.Delayed,
		Duration:  elapsed,
		Error:     st.LastError,
	}
	if st.Result != nil {
		res.Message = st.Result.Message
		res.Email = st.Result.Email
		res.Amount = st.Result.Amount
		if !st.Result.Timestamp.IsZero() {
			ts := st.Result.Timestamp
			res.Timestamp = &ts
		}
	}

	return res
}

func resultLine(res result) string {
	line := fmt.Sprintf(
		"RESULT phase=%s request_id=%s attempts=%d retries=%d delayed=%t duration=%s",
		res.Phase,
		res.RequestID,
		res.Attempts,
		res.Retries,
		res.Delayed,
		res.Duration.Truncate(time.Millisecond),
	)
	if res.Phase == string(submitonce.PhaseSuccess) {
		line += fmt.Sprintf(" amount=%.2f", res.Amount)
	} else if res.Error != "" {
		line += fmt.Sprintf(" error=%q", res.Error)
	}

	return line
}
