package ledger

import (
	"context"
	"strconv"
	"testing"

	"github.com/clearway/submitonce"
)

func successSim() Simulator {
	return SimulatorFunc(func(submitonce.SubmissionRequest) Decision {
		return Decision{Outcome: OutcomeSuccess}
	})
}

func BenchmarkLedgerSubmitNew(b *testing.B) {
	led := NewLedger(WithSimulator(successSim()))
	defer led.Close()

	ids := make([]string, b.N)
	for i := range ids {
		ids[i] = "user@example.com-1700000000000-" + strconv.FormatInt(int64(i)+1, 36)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := submitonce.SubmissionRequest{RequestID: ids[i], Email: "user@example.com", Amount: 10}
		if _, err := led.Submit(context.Background(), req); err != nil {
			b.Fatalf("submit: %v", err)
		}
	}
}

func BenchmarkLedgerSubmitReplay(b *testing.B) {
	led := NewLedger(WithSimulator(successSim()))
	defer led.Close()

	req := submitonce.SubmissionRequest{
		RequestID: "user@example.com-1700000000000-3k9zpb1q7c",
		Email:     "user@example.com",
		Amount:    10,
	}
	if _, err := led.Submit(context.Background(), req); err != nil {
		b.Fatalf("seed submit: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := led.Submit(context.Background(), req); err != nil {
			b.Fatalf("replay submit: %v", err)
		}
	}
}
