package autooff

import (
	"context"
	"sync"
	"time"

	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
	"github.com/svenyesyes/smart-lantaarn-server/internal/topology"
)

const persistTimeout = 5 * time.Second

// Scheduler turns lamps back off after a configured duration. It
// attaches to the engine's state-updated hook: every update that leaves
// a lamp on (re)arms a single deadline for it, every update that leaves
// it off cancels the deadline. The scheduler is also the single writer
// of lamp state to the topology store, persisting each state change
// together with its deadline so a restart can resume pending auto-offs.
//
// A zero duration disables scheduling entirely; state persistence still
// runs.
type Scheduler struct {
	engine *lamp.Engine
	store  topology.Store
	logger *logging.Logger

	duration time.Duration
	color    string

	mu        sync.Mutex
	timers    map[string]*time.Timer
	deadlines map[string]time.Time
	stopped   bool
}

// New creates a scheduler. Call Resume after the engine is loaded, then
// register HandleStateUpdate with the engine.
func New(engine *lamp.Engine, store topology.Store, cfg config.AutoOffConfig, logger *logging.Logger) *Scheduler {
	color := cfg.Color
	if color == "" {
		color = "#ffffff"
	}
	return &Scheduler{
		engine:    engine,
		store:     store,
		logger:    logger,
		duration:  cfg.GetDuration(),
		color:     color,
		timers:    make(map[string]*time.Timer),
		deadlines: make(map[string]time.Time),
	}
}

// Enabled reports whether an auto-off duration is configured.
func (s *Scheduler) Enabled() bool {
	return s.duration > 0
}

// HandleStateUpdate is the engine hook. It rearms or cancels the lamp's
// deadline based on the new state and persists both to the store.
func (s *Scheduler) HandleStateUpdate(lampID string, state lamp.LampState) {
	var offAt *time.Time

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cancelLocked(lampID)
	if state.On && s.duration > 0 {
		deadline := time.Now().Add(s.duration).UTC()
		s.armLocked(lampID, s.duration, deadline)
		offAt = &deadline
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.UpsertLampState(ctx, lampID, state, offAt); err != nil {
		s.logger.Error("failed to persist lamp state", "lamp_id", lampID, "error", err)
	}
}

// Resume rearms persisted deadlines after a restart. Deadlines already
// in the past fire immediately; future ones fire after the remaining
// time. No-op when auto-off is disabled.
func (s *Scheduler) Resume(ctx context.Context) error {
	if s.duration == 0 {
		return nil
	}

	deadlines, err := s.store.LoadDeadlines(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	var expired []string

	s.mu.Lock()
	for id, deadline := range deadlines {
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			expired = append(expired, id)
			continue
		}
		s.cancelLocked(id)
		s.armLocked(id, remaining, deadline)
		s.logger.Info("auto-off deadline resumed", "lamp_id", id, "remaining", remaining)
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.logger.Info("auto-off deadline expired during downtime", "lamp_id", id)
		s.fire(id)
	}
	return nil
}

// Deadline returns the pending deadline for a lamp, if any.
func (s *Scheduler) Deadline(lampID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deadlines[lampID]
	return d, ok
}

// Stop cancels every pending timer and makes the hook a no-op. Used at
// shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		delete(s.deadlines, id)
	}
}

// fire forces the lamp off through the normal state-set path so the
// resulting events, pushes and broadcasts match a manual deactivation.
func (s *Scheduler) fire(lampID string) {
	s.mu.Lock()
	delete(s.timers, lampID)
	delete(s.deadlines, lampID)
	s.mu.Unlock()

	s.logger.Info("auto-off fired", "lamp_id", lampID)
	off := false
	brightness := 0
	color := s.color
	s.engine.SetLampState(lampID, lamp.PartialState{
		On:         &off,
		Brightness: &brightness,
		Color:      &color,
	})
}

// armLocked schedules a timer; caller holds s.mu.
func (s *Scheduler) armLocked(lampID string, after time.Duration, deadline time.Time) {
	s.deadlines[lampID] = deadline
	s.timers[lampID] = time.AfterFunc(after, func() { s.fire(lampID) })
}

// cancelLocked clears any pending timer; caller holds s.mu.
func (s *Scheduler) cancelLocked(lampID string) {
	if t, ok := s.timers[lampID]; ok {
		t.Stop()
		delete(s.timers, lampID)
	}
	delete(s.deadlines, lampID)
}
