package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/internal/plugins/statestore"
	"github.com/botmesh/botmesh/pkg/plugin"
)

// memRecorder captures liveness writes in memory.
type memRecorder struct {
	mu   sync.Mutex
	recs []statestore.Liveness
	err  error
}

func (m *memRecorder) PutLiveness(_ context.Context, rec statestore.Liveness) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func (m *memRecorder) last() statestore.Liveness {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[len(m.recs)-1]
}

func TestRunRecordsBeatsUntilCancelled(t *testing.T) {
	rec := &memRecorder{}
	svc := New(rec, "node-1", 10*time.Millisecond, logger.Named(Name))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// The first beat fires immediately; a few more accumulate.
	deadline := time.After(2 * time.Second)
	for rec.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d beats recorded before deadline", rec.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancellation, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	last := rec.last()
	if last.Source != "node-1" {
		t.Errorf("liveness source = %q, want node-1", last.Source)
	}
	if last.EventID == "" {
		t.Error("liveness event id must be set")
	}
	if svc.Beats() < 3 {
		t.Errorf("Beats() = %d, want at least 3", svc.Beats())
	}
}

func TestRunSurvivesRecorderErrors(t *testing.T) {
	rec := &memRecorder{err: errors.New("store unavailable")}
	svc := New(rec, "node-1", 5*time.Millisecond, logger.Named(Name))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Run(ctx); err != nil {
		t.Errorf("Run returned %v, want nil despite recorder errors", err)
	}
	if svc.Beats() < 2 {
		t.Errorf("Beats() = %d, want ticking to continue past errors", svc.Beats())
	}
}

func TestRunWithoutRecorder(t *testing.T) {
	svc := New(nil, "", 5*time.Millisecond, logger.Named(Name))

	if svc.Source() != Name {
		t.Errorf("Source() = %q, want the default %q", svc.Source(), Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := svc.Run(ctx); err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
	if svc.Beats() == 0 {
		t.Error("log-only heartbeat must still tick")
	}
}

func TestFactoryResolvesStore(t *testing.T) {
	store, err := statestore.Open(t.TempDir(), logger.Named(statestore.Name))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Shutdown(context.Background())

	deps := plugin.NewDependencies(Name, logger.Named(Name),
		map[string]any{"interval": "15ms", "source": "test-node"},
		map[string]any{statestore.Name: store})

	v, err := Factory(context.Background(), deps)
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	svc, ok := v.(*Service)
	if !ok {
		t.Fatalf("Factory returned %T, want *Service", v)
	}
	if svc.Source() != "test-node" {
		t.Errorf("source = %q, want test-node", svc.Source())
	}
	if svc.interval != 15*time.Millisecond {
		t.Errorf("interval = %v, want 15ms", svc.interval)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec, err := store.GetLiveness(context.Background(), "test-node")
	if err != nil {
		t.Fatalf("GetLiveness failed: %v", err)
	}
	if rec.EventID == "" {
		t.Error("recorded liveness must carry an event id")
	}
}

func TestFactoryWithoutStoreDegrades(t *testing.T) {
	deps := plugin.NewDependencies(Name, logger.Named(Name), nil, nil)

	v, err := Factory(context.Background(), deps)
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	svc := v.(*Service)
	if svc.recorder != nil {
		t.Error("recorder must be nil when the statestore capability is absent")
	}
}

func TestFactoryRejectsWrongCapabilityType(t *testing.T) {
	deps := plugin.NewDependencies(Name, logger.Named(Name), nil,
		map[string]any{statestore.Name: "not a store"})

	if _, err := Factory(context.Background(), deps); err == nil {
		t.Fatal("Factory must reject a mistyped statestore capability")
	}
}
