package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"linova-go/internal/cache"
	"linova-go/internal/deeplink"
	"linova-go/internal/logger"
	"linova-go/internal/profile"
	"linova-go/internal/remote"
)

var ErrClosed = errors.New("syncer: controller stopped")

type Options struct {
	Gateway remote.Gateway
	Store   cache.Store
	// Fetcher defaults to reading profiles through Gateway.
	Fetcher profile.Fetcher
	Logger  *logger.Logger
	// Schemes are the deep link schemes accepted by HandleDeepLink.
	Schemes []string
}

// Controller is the single owner of the synchronized state. It is built
// once per app instance and shared by reference.
type Controller struct {
	gateway remote.Gateway
	store   cache.Store
	loader  *profile.Loader
	log     *logger.Logger
	schemes []string
	pending deeplink.Pending

	// transition serializes identity changes.
	transition sync.Mutex

	events   []remote.AuthEvent
	handling bool
	// identityCancel aborts requests made on behalf of the current identity.
	identityCancel context.CancelFunc

	mu         sync.Mutex
	state      State
	generation uint64
	lastUserID string
	subs       []remote.Subscription
	unlisten   func()
	observers  map[int]func(State)
	nextObs    int
	ctx        context.Context
	cancel     context.CancelFunc
	now        func() time.Time

	queue    []func(context.Context)
	draining bool
	bg       sync.WaitGroup
}

func New(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	fetcher := opts.Fetcher
	if fetcher == nil && opts.Gateway != nil {
		fetcher = profile.GatewayFetcher{Gateway: opts.Gateway}
	}
	schemes := opts.Schemes
	if len(schemes) == 0 {
		schemes = deeplink.DefaultSchemes
	}
	c := &Controller{
		gateway:   opts.Gateway,
		store:     opts.Store,
		log:       log.With("component", "SyncController"),
		schemes:   schemes,
		state:     emptyState(),
		observers: map[int]func(State){},
		now:       time.Now,
	}
	var store cache.Store
	if opts.Store != nil {
		store = queuedStore{c: c}
	}
	c.loader = profile.NewLoader(fetcher, store, log)
	return c
}

// Start resolves the current session and runs the bootstrap sequence for
// it. Bootstrap failures are logged, never returned; the error is non-nil
// only when the controller was already stopped.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase == PhaseClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ctx != nil {
		c.mu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	runCtx := c.ctx
	c.unlisten = c.gateway.OnAuthStateChange(c.onAuthEvent)
	c.mu.Unlock()

	c.transition.Lock()
	defer c.transition.Unlock()
	session, err := c.gateway.Session(runCtx)
	if err != nil {
		c.log.Warn("session lookup failed, continuing signed out", "error", err)
		session = nil
	}
	c.bootstrap(runCtx, session.Identity())
	return nil
}

// Stop tears down subscriptions and the auth listener. No state is
// committed after Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state.Phase == PhaseClosed {
		c.mu.Unlock()
		return
	}
	c.state.Phase = PhaseClosed
	c.generation++
	subs := c.subs
	c.subs = nil
	unlisten := c.unlisten
	c.unlisten = nil
	cancel := c.cancel
	c.mu.Unlock()

	if unlisten != nil {
		unlisten()
	}
	closeAll(c.log, subs)
	if cancel != nil {
		cancel()
	}
	c.bg.Wait()
	c.log.Info("controller stopped")
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// OnChange registers fn to receive a snapshot after every commit. The
// returned function removes it.
func (c *Controller) OnChange(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// HandleDeepLink buffers the recovery code carried by rawURL for the
// navigator. It reports whether the link carried a code.
func (c *Controller) HandleDeepLink(rawURL string) bool {
	code, ok := deeplink.ParseRecoveryCode(rawURL, c.schemes)
	if !ok {
		c.log.Debug("ignoring deep link without recovery code")
		return false
	}
	c.pending.Deliver(code)
	return true
}

// AttachNavigator marks navigation ready, replaying a buffered code.
func (c *Controller) AttachNavigator(nav deeplink.Navigator) {
	c.pending.Attach(nav)
}

// onAuthEvent is called synchronously by the gateway, possibly while a
// bootstrap holds the transition lock. Events are queued and applied one
// at a time in delivery order. An event for a different identity
// supersedes the running bootstrap immediately.
func (c *Controller) onAuthEvent(event remote.AuthEvent) {
	c.mu.Lock()
	if c.state.Phase == PhaseClosed || c.ctx == nil {
		c.mu.Unlock()
		return
	}
	if eventUserID(event) != c.state.UserID {
		c.generation++
		if c.identityCancel != nil {
			c.identityCancel()
		}
	}
	c.events = append(c.events, event)
	if c.handling {
		c.mu.Unlock()
		return
	}
	c.handling = true
	ctx := c.ctx
	c.bg.Add(1)
	c.mu.Unlock()
	go c.handleEvents(ctx)
}

func (c *Controller) handleEvents(ctx context.Context) {
	defer c.bg.Done()
	for {
		c.mu.Lock()
		if len(c.events) == 0 {
			c.handling = false
			c.mu.Unlock()
			return
		}
		event := c.events[0]
		c.events = c.events[1:]
		c.mu.Unlock()
		c.handleAuthEvent(ctx, event)
	}
}

func eventUserID(event remote.AuthEvent) string {
	if event.Type == remote.EventSignedOut {
		return ""
	}
	if identity := event.Session.Identity(); identity != nil {
		return identity.ID
	}
	return ""
}

func (c *Controller) handleAuthEvent(ctx context.Context, event remote.AuthEvent) {
	c.transition.Lock()
	defer c.transition.Unlock()

	var identity *remote.Identity
	if event.Type != remote.EventSignedOut {
		identity = event.Session.Identity()
	}
	nextID := eventUserID(event)

	c.mu.Lock()
	currentID := c.state.UserID
	phase := c.state.Phase
	c.mu.Unlock()
	if phase == PhaseClosed {
		return
	}

	c.log.Debug("auth state changed", "event", string(event.Type), "user_id", nextID)
	switch {
	case nextID != currentID || phase == PhaseUninitialized:
		c.bootstrap(ctx, identity)
	case event.Type == remote.EventUserUpdated && identity != nil:
		c.reloadProfile(ctx, identity)
	}
}

// bootstrap runs the per-identity sequence: profile load, hydration,
// preload, realtime. Callers hold the transition lock.
func (c *Controller) bootstrap(ctx context.Context, identity *remote.Identity) {
	nextID := ""
	if identity != nil {
		nextID = identity.ID
	}

	c.mu.Lock()
	if c.state.Phase == PhaseClosed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	if c.identityCancel != nil {
		c.identityCancel()
	}
	ctx, c.identityCancel = context.WithCancel(ctx)
	prevID := c.state.UserID
	prev := profile.Previous{Name: c.state.Name, LastUserID: c.lastUserID, CurrentUserID: prevID}
	subs := c.subs
	c.subs = nil
	if nextID != prevID {
		c.state.resetUser()
	}
	c.state.UserID = nextID
	c.state.Phase = PhaseUninitialized
	c.mu.Unlock()
	closeAll(c.log, subs)

	if prevID != "" && nextID != "" && prevID != nextID {
		c.removeKeys(cache.UserKeys(prevID))
	}

	result := c.loader.Load(ctx, identity, prev)
	if !c.commit(gen, func(s *State) {
		if result.Cleared {
			*s = emptyState()
		}
		s.UserID = nextID
		s.Email = result.Email
		s.Name = result.Name
		s.Level = result.Level
		s.SelectedModule = result.SelectedModule
		s.Profile = result.Profile
		s.Phase = PhaseAuthReady
	}) {
		return
	}
	c.mu.Lock()
	c.lastUserID = nextID
	c.mu.Unlock()

	c.hydrate(ctx, gen, nextID)
	c.preload(ctx, gen, nextID)
	c.subscribe(ctx, gen, nextID)
}

func (c *Controller) reloadProfile(ctx context.Context, identity *remote.Identity) {
	c.mu.Lock()
	gen := c.generation
	prev := profile.Previous{Name: c.state.Name, LastUserID: c.lastUserID, CurrentUserID: c.state.UserID}
	c.mu.Unlock()

	result := c.loader.Load(ctx, identity, prev)
	c.commit(gen, func(s *State) {
		s.Email = result.Email
		s.Name = result.Name
		if result.Level != nil {
			s.Level = result.Level
		}
		if result.SelectedModule != nil {
			s.SelectedModule = result.SelectedModule
		}
		if result.Profile != nil {
			s.Profile = result.Profile
		}
	})
}

// commit applies fn when gen is still current and notifies observers. It
// reports whether the change was applied.
func (c *Controller) commit(gen uint64, fn func(*State)) bool {
	c.mu.Lock()
	if gen != c.generation || c.state.Phase == PhaseClosed {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	snapshot := c.state.clone()
	observers := make([]func(State), 0, len(c.observers))
	for _, observer := range c.observers {
		observers = append(observers, observer)
	}
	c.mu.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}
	return true
}

// current returns the generation and user id for user-initiated writes.
func (c *Controller) current() (uint64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhaseClosed {
		return 0, "", ErrClosed
	}
	return c.generation, c.state.UserID, nil
}

// enqueue schedules a cache operation. Operations run one at a time in
// the order they were queued, off the caller's goroutine. It reports
// false once the controller is stopped.
func (c *Controller) enqueue(op func(ctx context.Context)) bool {
	c.mu.Lock()
	if c.state.Phase == PhaseClosed {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, op)
	if c.draining {
		c.mu.Unlock()
		return true
	}
	c.draining = true
	c.bg.Add(1)
	c.mu.Unlock()
	go c.drain()
	return true
}

// settle waits until every cache operation queued so far has run.
func (c *Controller) settle(ctx context.Context) {
	done := make(chan struct{})
	if !c.enqueue(func(context.Context) { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (c *Controller) drain() {
	defer c.bg.Done()
	ctx := context.Background()
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		op := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		op(ctx)
	}
}

func closeAll(log *logger.Logger, subs []remote.Subscription) {
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			log.Warn("closing subscription failed", "error", err)
		}
	}
}
