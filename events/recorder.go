package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/stock"
)

// Recorder keeps published events in memory. Used by tests and when no
// broker is configured.
type Recorder struct {
	mu     sync.Mutex
	events []stock.Event
}

func (r *Recorder) Publish(_ context.Context, event stock.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []stock.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stock.Event(nil), r.events...)
}

func (r *Recorder) OfType(t stock.EventType) []stock.Event {
	var out []stock.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink writes every event to a zerolog logger at debug level.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Publish(_ context.Context, e stock.Event) error {
	s.Log.Debug().
		Str("event", string(e.Type)).
		Int64("transaction_id", int64(e.TransactionID)).
		Int64("alert_id", int64(e.AlertID)).
		Int64("item_id", int64(e.ItemID)).
		Msg("stock event")
	return nil
}

// Fanout publishes to every sink and returns the first error.
type Fanout []stock.EventSink

func (f Fanout) Publish(ctx context.Context, e stock.Event) error {
	var first error
	for _, s := range f {
		if err := s.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
