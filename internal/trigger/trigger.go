// Package trigger defines the generic trigger contract and the binding that
// connects trigger fires to the dispatcher.
package trigger

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("taskcycle/trigger")

// FireFunc is invoked on every trigger fire. It carries no payload.
type FireFunc func()

// Subscription is the registration handle returned by Trigger.Subscribe.
// Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Trigger decides when a task should run. Implementations own the timing
// policy; the engine only observes fires.
//
// A trigger is owned exclusively by its Binding while active. After Close
// the trigger must not fire again and must not be restarted.
type Trigger interface {
	// Descriptor returns a serializable description sufficient to
	// reconstruct an equivalent trigger via a Factory.
	Descriptor() Descriptor

	// Subscribe registers fn to be called on each fire. Callbacks run on
	// the trigger's internal timing goroutine and must not block.
	Subscribe(fn FireFunc) Subscription

	Start() error
	Stop()
	Close() error
}

// fireSource implements the subscriber registry shared by the concrete
// triggers in this package.
type fireSource struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]FireFunc
}

func (s *fireSource) Subscribe(fn FireFunc) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]FireFunc)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return &fireSub{src: s, id: id}
}

// fire invokes every current subscriber. The subscriber set is snapshotted
// under the lock so callbacks run without holding it.
func (s *fireSource) fire() {
	s.mu.Lock()
	fns := make([]FireFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *fireSource) clearSubscribers() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}

type fireSub struct {
	src  *fireSource
	id   int
	once sync.Once
}

func (f *fireSub) Unsubscribe() {
	f.once.Do(func() {
		f.src.mu.Lock()
		delete(f.src.subs, f.id)
		f.src.mu.Unlock()
	})
}
