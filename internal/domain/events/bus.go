package events

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

type subscriber struct {
	id uint64
	fn func(any)
}

// Bus is a typed, synchronous pub/sub. Subscribers run on the publisher's
// goroutine; a panicking subscriber is logged and skipped.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber // nombre de tipo -> subs
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: map[string][]subscriber{}, log: log.With(zap.String("component", "events"))}
}

func typeNameOf[T any]() string {
	var zero *T
	rt := reflect.TypeOf(zero).Elem() // *T -> T, sin dereferenciar nil
	return rt.PkgPath() + "." + rt.Name()
}

// Subscribe registers fn for events of type T and returns its cancel func.
func Subscribe[T any](b *Bus, fn func(T)) func() {
	name := typeNameOf[T]()
	wrapped := func(v any) {
		if ev, ok := v.(T); ok {
			fn(ev)
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscriber{id: id, fn: wrapped})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ss := b.subs[name]
		for i, s := range ss {
			if s.id == id {
				b.subs[name] = append(ss[:i:i], ss[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber of T. A nil bus drops the event.
func Publish[T any](b *Bus, ev T) {
	if b == nil {
		return
	}
	name := typeNameOf[T]()
	b.mu.RLock()
	ss := append([]subscriber(nil), b.subs[name]...)
	b.mu.RUnlock()
	for _, s := range ss {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("subscriber panic", zap.String("event", name), zap.Any("panic", r))
				}
			}()
			s.fn(ev)
		}()
	}
}
