package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gookit/event"

	"peerctl/internal/model"
)

// Kinds lists every event kind the registry and daemon syncer publish.
var Kinds = []string{
	model.EventPeerAdded,
	model.EventPeerRemoved,
	model.EventDaemonSync,
	model.EventDaemonRestart,
	model.EventRegistryReconciled,
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(ev model.Event)
}

// Bus delivers events synchronously, in publish order, to every subscriber.
type Bus struct {
	mgr    *event.Manager
	logger *slog.Logger
	mu     sync.Mutex
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{mgr: event.NewManager("peerctl"), logger: logger}
}

// Publish fires ev. Subscriber errors are logged, never returned.
func (b *Bus) Publish(ev model.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err, _ := b.mgr.Fire(ev.Kind, event.M{"payload": ev})
	if err != nil {
		b.logger.Warn("event subscriber failed",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()))
	}
}

// Subscribe registers fn for one event kind.
func (b *Bus) Subscribe(kind string, fn func(model.Event) error) {
	b.mgr.On(kind, event.ListenerFunc(func(e event.Event) error {
		ev, ok := e.Get("payload").(model.Event)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Get("payload"))
		}
		return fn(ev)
	}), event.Normal)
}

// SubscribeAll registers fn for every kind in Kinds.
func (b *Bus) SubscribeAll(fn func(model.Event) error) {
	for _, kind := range Kinds {
		b.Subscribe(kind, fn)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(model.Event) {}
