package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

// DefaultEpsilon is the zero tolerance for position quantities; a magnitude
// below it counts as flat, so floating-point residue never looks like a fill.
const DefaultEpsilon = 1e-8

// WatcherConfig tunes the position watcher.
type WatcherConfig struct {
	Eps          float64       // zero tolerance, DefaultEpsilon when unset
	SnapshotWait time.Duration // pause between connection-epoch checks
}

// PositionWatcher turns the feed's position snapshots into classified events.
// A freshly observed instrument is recorded silently; on every reconnect the
// whole baseline is rebuilt from a fresh snapshot without emitting events, so
// quantity drift during an outage is re-synchronization, not business events.
type PositionWatcher struct {
	stream   port.PositionStream
	gate     connGate
	repo     port.EventRepository
	notifier port.Notifier
	eps      float64
	wait     time.Duration

	baseline  map[string]float64
	seenEpoch uint64
	now       func() time.Time
}

func NewPositionWatcher(stream port.PositionStream, gate connGate, repo port.EventRepository, notifier port.Notifier, cfg WatcherConfig) *PositionWatcher {
	eps := cfg.Eps
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	wait := cfg.SnapshotWait
	if wait <= 0 {
		wait = time.Second
	}
	return &PositionWatcher{
		stream:   stream,
		gate:     gate,
		repo:     repo,
		notifier: notifier,
		eps:      eps,
		wait:     wait,
		baseline: make(map[string]float64),
		now:      time.Now,
	}
}

// Run consumes the update stream until ctx is done. Nothing escapes the loop:
// snapshot failures, storage failures and notification failures are logged
// and the loop keeps going.
func (w *PositionWatcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.wait)
	defer timer.Stop()

	for {
		if w.gate.Connected() && w.gate.Epoch() != w.seenEpoch {
			w.rebaseline(ctx)
		}

		timer.Reset(w.wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-w.stream.Updates():
			if !ok {
				return nil
			}
			if w.gate.Epoch() != w.seenEpoch {
				// the update raced a reconnect: the fresh snapshot absorbs
				// this quantity instead of the stale baseline classifying it
				w.rebaseline(ctx)
				continue
			}
			w.Handle(ctx, u)
		case <-timer.C:
			// fall through to the epoch check
		}
	}
}

// rebaseline replaces the whole baseline with a fresh snapshot. No events
// fire: the watcher cannot know the intra-outage path of quantity changes,
// so it reports nothing rather than a possibly-wrong delta.
func (w *PositionWatcher) rebaseline(ctx context.Context) {
	positions, err := w.stream.RequestPositions(ctx)
	if err != nil {
		// epoch stays unconsumed, retried on the next pass
		log.Warn().Err(err).Msg("position snapshot failed")
		return
	}
	w.baseline = make(map[string]float64, len(positions))
	for _, p := range positions {
		w.baseline[p.InstrumentID] = p.Quantity
	}
	w.seenEpoch = w.gate.Epoch()
	log.Info().Int("instruments", len(positions)).Uint64("epoch", w.seenEpoch).Msg("position baseline rebuilt")
}

// Handle classifies one inbound update against the baseline. The baseline is
// updated whether or not an event fires.
func (w *PositionWatcher) Handle(ctx context.Context, u model.PositionUpdate) {
	prev, seen := w.baseline[u.InstrumentID]
	w.baseline[u.InstrumentID] = u.Quantity

	kind, fire := classify(prev, seen, u.Quantity, w.eps)
	if !fire {
		return
	}

	ev := model.PositionEvent{
		ID:           uuid.New(),
		Ts:           w.now().Unix(),
		Kind:         kind,
		InstrumentID: u.InstrumentID,
		Symbol:       u.Symbol,
		PrevQuantity: prev,
		Quantity:     u.Quantity,
		Side:         eventSide(kind, prev, u.Quantity),
		RealizedPnL:  u.RealizedPnL,
		AvgCost:      u.AvgCost,
		MarketPrice:  u.MarketPrice,
		MarketValue:  u.MarketValue,
	}

	log.Info().
		Str("kind", string(ev.Kind)).
		Str("symbol", ev.Symbol).
		Str("side", string(ev.Side)).
		Float64("prev_qty", ev.PrevQuantity).
		Float64("qty", ev.Quantity).
		Msg("position event")

	if w.repo != nil {
		if err := w.repo.InsertPositionEvent(ctx, ev); err != nil {
			log.Error().Err(&port.StorageError{Op: "insert position event", Err: err}).Msg("event not recorded")
		}
	}
	w.notifier.Deliver(ctx, port.DestTrade, formatEvent(ev))
}

// classify applies the transition table. seen=false is the silent baseline
// init: no event on first sight of an instrument.
func classify(prev float64, seen bool, next float64, eps float64) (model.EventKind, bool) {
	if !seen {
		return "", false
	}
	prevZero := math.Abs(prev) < eps
	nextZero := math.Abs(next) < eps
	switch {
	case prevZero && nextZero:
		return "", false
	case prevZero:
		return model.EventOpened, true
	case nextZero:
		return model.EventClosed, true
	case (prev > 0) != (next > 0):
		return model.EventReversed, true
	case math.Abs(next) > math.Abs(prev):
		return model.EventAdded, true
	case math.Abs(next) < math.Abs(prev):
		return model.EventReduced, true
	default:
		return "", false
	}
}

func eventSide(kind model.EventKind, prev, next float64) model.Side {
	if kind == model.EventClosed {
		return model.SideOf(prev)
	}
	return model.SideOf(next)
}

func formatEvent(ev model.PositionEvent) string {
	name := ev.Symbol
	if name == "" {
		name = ev.InstrumentID
	}
	lines := make([]string, 0, 8)
	switch ev.Kind {
	case model.EventOpened:
		lines = append(lines, "POSITION OPENED",
			"Instrument: "+name,
			"Side: "+string(ev.Side),
			fmt.Sprintf("Quantity: %g", ev.Quantity))
	case model.EventClosed:
		lines = append(lines, "POSITION CLOSED",
			"Instrument: "+name,
			"Prev side: "+string(ev.Side),
			fmt.Sprintf("Closed quantity: %g", ev.PrevQuantity))
	case model.EventAdded:
		lines = append(lines, "POSITION ADDED",
			"Instrument: "+name,
			fmt.Sprintf("Quantity: %g -> %g", ev.PrevQuantity, ev.Quantity))
	case model.EventReduced:
		lines = append(lines, "POSITION REDUCED",
			"Instrument: "+name,
			fmt.Sprintf("Quantity: %g -> %g", ev.PrevQuantity, ev.Quantity))
	case model.EventReversed:
		lines = append(lines, "POSITION REVERSED",
			"Instrument: "+name,
			fmt.Sprintf("Side: %s -> %s", model.SideOf(ev.PrevQuantity), ev.Side),
			fmt.Sprintf("Quantity: %g -> %g", ev.PrevQuantity, ev.Quantity))
	}
	if ev.AvgCost != 0 {
		lines = append(lines, fmt.Sprintf("Avg cost: %.2f", ev.AvgCost))
	}
	if ev.MarketPrice != 0 {
		lines = append(lines, fmt.Sprintf("Market price: %.2f", ev.MarketPrice))
	}
	if ev.MarketValue != 0 {
		lines = append(lines, fmt.Sprintf("Market value: $%.2f", ev.MarketValue))
	}
	if ev.RealizedPnL != 0 {
		lines = append(lines, fmt.Sprintf("Realized PnL: $%.2f", ev.RealizedPnL))
	}
	return strings.Join(lines, "\n")
}
