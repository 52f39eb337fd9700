package store

import (
	"context"
	"slices"
	"sync"
)

// Dispatch delivers an action.
type Dispatch func(Action)

// Listener observes state after an action has been applied.
type Listener func(State, Action)

// API is handed to middlewares for the duration of one action.
type API interface {
	// State returns the current snapshot.
	State() State
	// Dispatch runs an action through the full chain immediately, depth first.
	// It may only be called from within the middleware invocation.
	Dispatch(Action)
	// Go runs fn on its own goroutine. fn receives the blocking store-level
	// dispatcher and the store context.
	Go(fn func(ctx context.Context, dispatch Dispatch))
}

// Middleware observes an action and decides when to call next.
type Middleware func(api API, action Action, next Dispatch)

// Store holds the state tree and coordinates dispatch.
type Store struct {
	mu    sync.RWMutex
	state State

	run   sync.Mutex
	chain Dispatch
	// tx and pending are guarded by run.
	tx      bool
	pending []Action

	subMu   sync.Mutex
	subs    map[int]Listener
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a store. Middlewares fire in the order given.
func New(initial State, middlewares ...Middleware) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		state:  initial,
		subs:   make(map[int]Listener),
		ctx:    ctx,
		cancel: cancel,
	}
	api := middlewareAPI{store: s}
	chain := Dispatch(s.apply)
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw, next := middlewares[i], chain
		chain = func(action Action) { mw(api, action, next) }
	}
	s.chain = chain
	return s
}

// Dispatch runs an action cascade. Calls from different goroutines are
// serialized. Middlewares must use API.Dispatch instead.
func (s *Store) Dispatch(action Action) {
	s.run.Lock()
	defer s.run.Unlock()
	s.chain(action)
}

// Transact runs fn while holding the dispatch lock. Reads and dispatches made
// through the API inside fn see no interleaved actions from other goroutines.
// Listeners are notified once, after fn returns, with the final state. More
// than one applied action arrives as a Batch.
func (s *Store) Transact(fn func(api API)) {
	s.run.Lock()
	defer s.run.Unlock()
	s.tx = true
	defer func() {
		s.tx = false
		applied := s.pending
		s.pending = nil
		switch len(applied) {
		case 0:
		case 1:
			s.notify(s.State(), applied[0])
		default:
			s.notify(s.State(), Batch{Actions: applied})
		}
	}()
	fn(middlewareAPI{store: s})
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a listener and returns its removal func. Listeners run
// while the dispatch lock is held and must not call Store.Dispatch.
func (s *Store) Subscribe(listener Listener) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = listener
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Go runs fn on a tracked goroutine with the store-level dispatcher.
func (s *Store) Go(fn func(ctx context.Context, dispatch Dispatch)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx, s.Dispatch)
	}()
}

// Wait blocks until every continuation started with Go has returned,
// including continuations started while waiting.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels the store context and waits for continuations.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Store) apply(action Action) {
	s.mu.Lock()
	next := Reduce(s.state, action)
	s.state = next
	s.mu.Unlock()

	if s.tx {
		s.pending = append(s.pending, action)
		return
	}
	s.notify(next, action)
}

func (s *Store) notify(state State, action Action) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	s.subMu.Unlock()

	for _, listener := range listeners {
		listener(state, action)
	}
}

// middlewareAPI dispatches re-entrantly into the chain; the caller already
// holds the run lock.
type middlewareAPI struct {
	store *Store
}

func (a middlewareAPI) State() State { return a.store.State() }

func (a middlewareAPI) Dispatch(action Action) { a.store.chain(action) }

func (a middlewareAPI) Go(fn func(ctx context.Context, dispatch Dispatch)) { a.store.Go(fn) }
