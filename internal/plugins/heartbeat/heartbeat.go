// Package heartbeat is the built-in liveness service: a periodic tick
// that records "this node is alive" through the state store. It doubles
// as the reference implementation of the Runner contract — a service
// whose Run blocks until its task context is cancelled.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/botmesh/botmesh/internal/plugins/statestore"
	"github.com/botmesh/botmesh/pkg/plugin"
)

// Name is the plugin name declared in descriptors.
const Name = "heartbeat"

// DefaultInterval is the tick period when no setting overrides it.
const DefaultInterval = 30 * time.Second

// Recorder is the slice of the state store the heartbeat writes through.
// *statestore.Store satisfies it; tests substitute their own.
type Recorder interface {
	PutLiveness(ctx context.Context, rec statestore.Liveness) error
}

// Service is the heartbeat plugin instance.
type Service struct {
	recorder Recorder
	source   string
	interval time.Duration
	log      *slog.Logger

	beats atomic.Int64
}

var _ plugin.Runner = (*Service)(nil)

// Factory builds the heartbeat service from its plugin settings. The
// statestore dependency is optional: without it the service still ticks
// and logs, it just has nowhere to record liveness.
func Factory(_ context.Context, deps *plugin.Dependencies) (any, error) {
	var recorder Recorder
	if v, ok := deps.Get(statestore.Name); ok {
		store, ok := v.(*statestore.Store)
		if !ok {
			return nil, fmt.Errorf("heartbeat: %q capability has unexpected type %T", statestore.Name, v)
		}
		recorder = store
	} else {
		deps.Logger().Warn("State store unavailable, heartbeats will not be recorded")
	}

	return New(recorder,
		deps.StringSetting("source", Name),
		deps.DurationSetting("interval", DefaultInterval),
		deps.Logger()), nil
}

// New builds a heartbeat service. A nil recorder is allowed; ticks are
// then log-only.
func New(recorder Recorder, source string, interval time.Duration, log *slog.Logger) *Service {
	if source == "" {
		source = Name
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		recorder: recorder,
		source:   source,
		interval: interval,
		log:      log,
	}
}

// Run ticks until ctx is cancelled. One beat is recorded immediately so
// a freshly started node shows up as alive without waiting a full
// interval.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("Heartbeat started", "source", s.source, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Heartbeat stopped", "source", s.source, "beats", s.beats.Load())
			return nil
		case <-ticker.C:
			s.beat(ctx)
		}
	}
}

// beat records one liveness event.
func (s *Service) beat(ctx context.Context) {
	n := s.beats.Add(1)
	eventID := uuid.NewString()

	if s.recorder == nil {
		s.log.Debug("Heartbeat tick", "source", s.source, "beat", n, "event_id", eventID)
		return
	}

	if err := s.recorder.PutLiveness(ctx, statestore.Liveness{
		Source:  s.source,
		EventID: eventID,
	}); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("Failed to record heartbeat", "source", s.source, "error", err)
		return
	}
	s.log.Debug("Heartbeat recorded", "source", s.source, "beat", n, "event_id", eventID)
}

// Beats returns how many ticks have fired since the service started.
func (s *Service) Beats() int64 {
	return s.beats.Load()
}

// Source returns the liveness source name the service reports under.
func (s *Service) Source() string {
	return s.source
}
