package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/clearway/submitonce"
)

var simReq = submitonce.SubmissionRequest{
	RequestID: "user@example.com-1700000000000-3k9zpb1q7c",
	Email:     "user@example.com",
	Amount:    10,
}

func TestRandomSimulatorDefaultDistribution(t *testing.T) {
	sim := NewRandomSimulator(WithSeed(1))

	const draws = 10000
	counts := make(map[Outcome]int)
	for i := 0; i < draws; i++ {
		counts[sim.Decide(simReq).Outcome]++
	}

	if got := counts[OutcomeSuccess]; got < 4500 || got > 5500 {
		t.Fatalf("expected roughly half immediate successes, got %d of %d", got, draws)
	}
	if got := counts[OutcomeTransientFailure]; got < 2000 || got > 3000 {
		t.Fatalf("expected roughly a quarter transient failures, got %d of %d", got, draws)
	}
	if got := counts[OutcomeDelayedSuccess]; got < 2000 || got > 3000 {
		t.Fatalf("expected roughly a quarter delayed successes, got %d of %d", got, draws)
	}
}

func TestRandomSimulatorSameSeedSameDecisions(t *testing.T) {
	a := NewRandomSimulator(WithSeed(7))
	b := NewRandomSimulator(WithSeed(7))

	for i := 0; i < 200; i++ {
		da, db := a.Decide(simReq), b.Decide(simReq)
		if da != db {
			t.Fatalf("decision %d diverged: %+v vs %+v", i, da, db)
		}
	}
}

func TestRandomSimulatorWithRandOverridesSeed(t *testing.T) {
	a := NewRandomSimulator(WithRand(rand.New(rand.NewSource(3))), WithSeed(99))
	b := NewRandomSimulator(WithSeed(3))

	for i := 0; i < 100; i++ {
		if da, db := a.Decide(simReq), b.Decide(simReq); da != db {
			t.Fatalf("decision %d diverged: %+v vs %+v", i, da, db)
		}
	}
}

func TestRandomSimulatorDelayBounds(t *testing.T) {
	sim := NewRandomSimulator(
		WithSeed(5),
		WithWeights(0, 0, 1),
		WithDelayBounds(50*time.Millisecond, 100*time.Millisecond),
	)

	for i := 0; i < 1000; i++ {
		d := sim.Decide(simReq)
		if d.Outcome != OutcomeDelayedSuccess {
			t.Fatalf("expected delayed success only, got %v", d.Outcome)
		}
		if d.CompleteAfter < 50*time.Millisecond || d.CompleteAfter >= 100*time.Millisecond {
			t.Fatalf("expected delay in [50ms, 100ms), got %v", d.CompleteAfter)
		}
	}
}

func TestRandomSimulatorPinnedDelay(t *testing.T) {
	sim := NewRandomSimulator(WithWeights(0, 0, 1), WithDelayBounds(5*time.Second, 5*time.Second))

	for i := 0; i < 10; i++ {
		if d := sim.Decide(simReq); d.CompleteAfter != 5*time.Second {
			t.Fatalf("expected pinned 5s delay, got %v", d.CompleteAfter)
		}
	}
}

func TestRandomSimulatorRetryAfter(t *testing.T) {
	sim := NewRandomSimulator(WithWeights(0, 1, 0), WithRetryAfter(7*time.Second))

	d := sim.Decide(simReq)
	if d.Outcome != OutcomeTransientFailure {
		t.Fatalf("expected transient failure, got %v", d.Outcome)
	}
	if d.RetryAfter != 7*time.Second {
		t.Fatalf("expected 7s retry hint, got %v", d.RetryAfter)
	}
}

func TestRandomSimulatorDefaultDelayRange(t *testing.T) {
	sim := NewRandomSimulator(WithSeed(11), WithWeights(0, 0, 1))

	for i := 0; i < 1000; i++ {
		d := sim.Decide(simReq)
		if d.CompleteAfter < 5*time.Second || d.CompleteAfter >= 10*time.Second {
			t.Fatalf("expected delay in [5s, 10s), got %v", d.CompleteAfter)
		}
	}
}

func TestSimulatorFunc(t *testing.T) {
	sim := SimulatorFunc(func(req submitonce.SubmissionRequest) Decision {
		if req.Amount > 100 {
			return Decision{Outcome: OutcomeTransientFailure}
		}
		return Decision{Outcome: OutcomeSuccess}
	})

	if d := sim.Decide(submitonce.SubmissionRequest{Amount: 10}); d.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %v", d.Outcome)
	}
	if d := sim.Decide(submitonce.SubmissionRequest{Amount: 500}); d.Outcome != OutcomeTransientFailure {
		t.Fatalf("expected transient failure, got %v", d.Outcome)
	}
}
