package bus

import (
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Event signals that balances may have changed.
type Event struct {
	Source string
	// Holder scopes the event; the zero key means every holder.
	Holder solana.PublicKey
	// Origin is set when the event was relayed from another process.
	Origin string
	At     time.Time
}

// Handler is invoked synchronously on Publish.
type Handler func(Event)

// Bus is an in-process fan-out of refresh signals. Handlers run on the
// publisher's goroutine; a panicking handler is recovered and the rest still run.
type Bus struct {
	mu      sync.RWMutex
	next    uint64
	subs    map[uint64]Handler
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func New(logger *logrus.Logger, m *metrics.Metrics) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		subs:    make(map[uint64]Handler),
		logger:  logger,
		metrics: m,
	}
}

// Subscribe registers h and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber. With no subscribers it is a no-op.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.metrics.ObserveBusEvent(ev.Source)

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"source": ev.Source,
				"panic":  r,
			}).Error("refresh subscriber panicked")
		}
	}()
	h(ev)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
