// Package network tracks whether the sync server is reachable and exposes a
// short-lived reconnect pulse after each offline to online transition. It
// never starts a sync itself; subscribers decide what to do.
package network

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

// Prober checks server reachability.
type Prober interface {
	Ping(ctx context.Context) error
}

// State is what subscribers receive on every change.
type State struct {
	Online          bool
	JustReconnected bool
}

// Detector is safe for concurrent use. Listeners run synchronously on the
// goroutine that observed the change and must not block.
type Detector struct {
	prober       Prober
	interval     time.Duration
	pulse        time.Duration
	probeTimeout time.Duration
	logger       logging.Logger

	mu              sync.Mutex
	online          bool
	justReconnected bool
	pulseTimer      *time.Timer
	pulseGen        int
	listeners       map[int]func(State)
	nextID          int
}

func NewDetector(prober Prober, interval, pulse time.Duration, logger logging.Logger) *Detector {
	return &Detector{
		prober:       prober,
		interval:     interval,
		pulse:        pulse,
		probeTimeout: 3 * time.Second,
		logger:       logger.With("module", "network"),
		listeners:    make(map[int]func(State)),
	}
}

func (d *Detector) IsOnline() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

// JustReconnected is true for the pulse duration after the server became
// reachable again.
func (d *Detector) JustReconnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.justReconnected
}

// Subscribe registers fn and returns the func that removes it.
func (d *Detector) Subscribe(fn func(State)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// SetOnline records a connectivity transition. Going from offline to online
// starts the reconnect pulse; repeated values are ignored.
func (d *Detector) SetOnline(online bool) {
	d.mu.Lock()
	if d.online == online {
		d.mu.Unlock()
		return
	}
	d.online = online

	if d.pulseTimer != nil {
		d.pulseTimer.Stop()
		d.pulseTimer = nil
	}
	d.justReconnected = online
	d.pulseGen++
	if online {
		gen := d.pulseGen
		d.pulseTimer = time.AfterFunc(d.pulse, func() { d.endPulse(gen) })
	}
	st := d.stateLocked()
	d.mu.Unlock()

	d.logger.Info(context.Background(), "connectivity changed", "online", online)
	d.notify(st)
}

func (d *Detector) endPulse(gen int) {
	d.mu.Lock()
	if !d.justReconnected || gen != d.pulseGen {
		d.mu.Unlock()
		return
	}
	d.justReconnected = false
	d.pulseTimer = nil
	st := d.stateLocked()
	d.mu.Unlock()

	d.notify(st)
}

// seed sets the initial state without a reconnect pulse.
func (d *Detector) seed(online bool) {
	d.mu.Lock()
	d.online = online
	st := d.stateLocked()
	d.mu.Unlock()

	d.notify(st)
}

func (d *Detector) stateLocked() State {
	return State{Online: d.online, JustReconnected: d.justReconnected}
}

func (d *Detector) notify(st State) {
	d.mu.Lock()
	fns := make([]func(State), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (d *Detector) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()
	return d.prober.Ping(ctx) == nil
}

// Run seeds the state from one probe, then probes every interval until ctx
// is done. On return every listener is dropped and the pulse is cancelled.
func (d *Detector) Run(ctx context.Context) {
	defer d.teardown()

	d.seed(d.probe(ctx))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			online := d.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			d.SetOnline(online)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Detector) teardown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pulseTimer != nil {
		d.pulseTimer.Stop()
		d.pulseTimer = nil
	}
	d.justReconnected = false
	d.pulseGen++
	d.listeners = make(map[int]func(State))
}
