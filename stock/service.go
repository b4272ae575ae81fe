package stock

import (
	"time"

	"github.com/rs/zerolog"
)

// Options configures the components built by New. Zero values fall back to
// in-process defaults. MaxRetries of zero means DefaultMaxRetries; use
// NoRetries to fail on the first lost race.
type Options struct {
	Actors     ActorResolver
	Locker     Locker
	Events     EventSink
	Log        zerolog.Logger
	Now        func() time.Time
	MaxRetries int
}

// Services groups the ledger components sharing one store, locker, actor
// resolver and event sink.
type Services struct {
	Processor *Processor
	Alerts    *AlertEngine
	Ledger    *Ledger
	Catalog   *Catalog
}

func New(store Store, opts Options) *Services {
	if opts.Actors == nil {
		opts.Actors = StoreActors{Reader: store}
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Events == nil {
		opts.Events = NopSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}

	alerts := NewAlertEngine(store, opts.Locker)
	alerts.Actors = opts.Actors
	alerts.Events = opts.Events
	alerts.Log = opts.Log.With().Str("component", "alerts").Logger()
	alerts.Now = opts.Now

	processor := NewProcessor(store, opts.Locker, alerts)
	processor.Actors = opts.Actors
	processor.Events = opts.Events
	processor.Log = opts.Log.With().Str("component", "processor").Logger()
	processor.Now = opts.Now
	processor.MaxRetries = opts.MaxRetries

	ledger := NewLedger(store)
	ledger.Now = opts.Now

	catalog := NewCatalog(store, opts.Locker)
	catalog.Actors = opts.Actors
	catalog.Log = opts.Log.With().Str("component", "catalog").Logger()
	catalog.Now = opts.Now

	return &Services{Processor: processor, Alerts: alerts, Ledger: ledger, Catalog: catalog}
}
