package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"finagent/internal/events"
	"finagent/internal/market"
)

// quoteTimeout bounds each price lookup during a check cycle.
const quoteTimeout = 3 * time.Second

// PriceSource supplies current prices for alert evaluation.
// *market.Client satisfies it.
type PriceSource interface {
	RealtimeQuoteWithin(ctx context.Context, symbol string, timeout time.Duration) (market.Quote, error)
}

// Notifier delivers a fired alert to its target.
type Notifier interface {
	Notify(ctx context.Context, task Task, price float64) error
}

// MultiNotifier fans a notification out to several backends. Delivery
// failures are collected; one failing backend does not stop the rest.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, task Task, price float64) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, task, price); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Scheduler runs periodic alert checks. In worker mode it owns the
// heartbeat; in passive mode it defers to a live worker and only
// checks when no fresh heartbeat exists.
type Scheduler struct {
	store    *Store
	hb       *Heartbeat
	prices   PriceSource
	notifier Notifier
	bus      *events.Bus
	logger   *slog.Logger
	interval time.Duration

	checking atomic.Bool
}

// NewScheduler assembles a scheduler. bus and notifier may be nil.
func NewScheduler(store *Store, hb *Heartbeat, prices PriceSource, notifier Notifier, bus *events.Bus, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:    store,
		hb:       hb,
		prices:   prices,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
		interval: interval,
	}
}

// RunWorker blocks until ctx is done, beating the heartbeat every
// BeatInterval and checking alerts every interval. The heartbeat file
// is released on exit if still owned.
func (s *Scheduler) RunWorker(ctx context.Context) error {
	if err := s.hb.Beat(); err != nil {
		return fmt.Errorf("claim heartbeat: %w", err)
	}
	defer func() {
		if err := s.hb.Release(); err != nil {
			s.logger.Warn("heartbeat release failed", "error", err)
		}
	}()
	s.logger.Info("alert worker started", "interval", s.interval)

	beat := time.NewTicker(BeatInterval)
	defer beat.Stop()
	check := time.NewTicker(s.interval)
	defer check.Stop()

	s.checkCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alert worker stopping")
			return nil
		case <-beat.C:
			if err := s.hb.Beat(); err != nil {
				s.logger.Warn("heartbeat update failed", "error", err)
			}
		case <-check.C:
			s.checkCycle(ctx)
		}
	}
}

// RunPassive blocks until ctx is done, checking alerts every interval
// but skipping any cycle for which a fresh worker heartbeat exists.
func (s *Scheduler) RunPassive(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.hb.ShouldCheck() {
				s.logger.Debug("alert check skipped, worker heartbeat is fresh")
				s.bus.Publish(events.Event{
					Timestamp: time.Now().UTC(),
					Source:    events.SourceScheduler,
					Kind:      events.KindCheckSkipped,
				})
				continue
			}
			s.checkCycle(ctx)
		}
	}
}

// checkCycle runs one pass over all tasks. A cycle that would overlap
// a still-running one is dropped.
func (s *Scheduler) checkCycle(ctx context.Context) {
	if !s.checking.CompareAndSwap(false, true) {
		s.logger.Warn("alert check still running, skipping cycle")
		return
	}
	defer s.checking.Store(false)

	fired, err := s.CheckOnce(ctx)
	if err != nil {
		s.logger.Error("alert check cycle failed", "error", err)
		return
	}
	if fired > 0 {
		s.logger.Info("alert check cycle complete", "fired", fired)
	}
}

// CheckOnce evaluates every enabled task once and returns the number
// of alerts fired. Per-task errors are logged and do not stop the
// pass.
func (s *Scheduler) CheckOnce(ctx context.Context) (int, error) {
	tasks, err := s.store.List()
	if err != nil {
		return 0, fmt.Errorf("load alert tasks: %w", err)
	}

	s.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceScheduler,
		Kind:      events.KindCheckStart,
		Data:      map[string]any{"tasks": len(tasks)},
	})

	fired := 0
	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		ok, err := s.checkTask(ctx, t)
		if err != nil {
			s.logger.Warn("alert check failed", "id", t.ID, "condition", t.Condition(), "error", err)
			continue
		}
		if ok {
			fired++
		}
	}

	s.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceScheduler,
		Kind:      events.KindCheckComplete,
		Data:      map[string]any{"fired": fired},
	})
	return fired, nil
}

func (s *Scheduler) checkTask(ctx context.Context, t Task) (bool, error) {
	q, err := s.prices.RealtimeQuoteWithin(ctx, t.Symbol, quoteTimeout)
	if err != nil {
		return false, fmt.Errorf("quote %s: %w", t.Symbol, err)
	}
	// A zero price means no data, not a price below every threshold.
	if q.Price == 0 {
		s.logger.Debug("no price data, skipping alert", "symbol", t.Symbol)
		return false, nil
	}
	if !t.Comparator.Eval(q.Price, t.Threshold) {
		return false, nil
	}

	s.logger.Info("alert fired", "id", t.ID, "condition", t.Condition(), "price", q.Price)
	s.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceScheduler,
		Kind:      events.KindAlertFired,
		Data: map[string]any{
			"id":        t.ID,
			"symbol":    t.Symbol,
			"condition": t.Condition(),
			"price":     q.Price,
		},
	})

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, t, q.Price); err != nil {
			s.logger.Warn("alert notification failed", "id", t.ID, "error", err)
		}
	}

	// Fire-once: disabled on first trigger regardless of delivery
	// outcome. An update through the store re-arms the task.
	if err := s.store.Disable(t.ID); err != nil {
		return true, fmt.Errorf("disable fired alert: %w", err)
	}
	return true, nil
}
