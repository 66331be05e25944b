package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/saathi/pkg/memory"
	"github.com/MrWong99/saathi/pkg/memory/mock"
	"github.com/MrWong99/saathi/pkg/types"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecorder_WritesTurns(t *testing.T) {
	t.Parallel()
	store := &mock.MessageStore{}
	rec := memory.NewRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.Turn("s1", types.Turn{Role: types.RoleUser, Text: "namaste", Sequence: 1})
	rec.Turn("s1", types.Turn{Role: types.RoleAssistant, Text: "namaste! kaise ho?", Sequence: 2})

	waitFor(t, func() bool { return len(store.Appended()) == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	got := store.Appended()
	if got[0].User != memory.SpeakerUser || got[0].Session != "s1" || got[0].Text != "namaste" {
		t.Errorf("first record: got %+v", got[0])
	}
	if got[1].User != memory.SpeakerAssistant {
		t.Errorf("second record speaker: want AI, got %q", got[1].User)
	}
}

func TestRecorder_FlushesOnStop(t *testing.T) {
	t.Parallel()
	store := &mock.MessageStore{}
	rec := memory.NewRecorder(store)

	// Queue before Run so the records are still pending at cancellation.
	rec.Turn("s1", types.Turn{Role: types.RoleUser, Text: "one"})
	rec.Turn("s1", types.Turn{Role: types.RoleUser, Text: "two"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Errorf("Run: %v", err)
	}
	if got := len(store.Appended()); got != 2 {
		t.Errorf("appended: want 2, got %d", got)
	}
}

func TestRecorder_StoreErrorsAreNotFatal(t *testing.T) {
	t.Parallel()
	store := &mock.MessageStore{AppendErr: errors.New("db down")}
	rec := memory.NewRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.Turn("s1", types.Turn{Role: types.RoleUser, Text: "one"})
	rec.Turn("s1", types.Turn{Role: types.RoleUser, Text: "two"})
	waitFor(t, func() bool { return store.CallCount("Append") == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	dropped, err := mp.Meter("test").Int64Counter("dropped")
	if err != nil {
		t.Fatalf("Int64Counter: %v", err)
	}
	rec := memory.NewRecorder(&mock.MessageStore{}, memory.WithDropCounter(dropped))

	queued := 0
	for range 100 {
		if rec.Turn("s1", types.Turn{Role: types.RoleUser, Text: "x"}) {
			queued++
		}
	}
	if queued == 0 || queued == 100 {
		t.Errorf("queued: want a bounded number between 1 and 99, got %d", queued)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var counted int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "dropped" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				counted += dp.Value
			}
		}
	}
	if want := int64(100 - queued); counted != want {
		t.Errorf("dropped counter: want %d, got %d", want, counted)
	}
}
