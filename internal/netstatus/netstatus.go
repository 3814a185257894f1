package netstatus

import (
	"context"
	"log"
	"sync"
	"time"
)

// Monitor is a single shared connectivity signal: a synchronous current-value
// read plus flip notifications. It starts online, so a terminal with no prober
// configured behaves as if connectivity were always present.
type Monitor struct {
	mu      sync.Mutex
	online  bool
	subs    map[int]chan bool
	nextSub int
}

func NewMonitor() *Monitor {
	return &Monitor{
		online: true,
		subs:   make(map[int]chan bool),
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the latest probe result. Subscribers are notified only
// when the value flips.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			// Subscriber still holds an undelivered flip; the current read
			// via Online() stays accurate.
		}
	}
}

// Subscribe returns a channel receiving each flip of the signal and a cancel
// function releasing the subscription.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
	return ch, cancel
}

// ProbeFunc reports nil when the remote side is reachable.
type ProbeFunc func(ctx context.Context) error

// Watcher drives a Monitor from periodic probes of the remote order service.
type Watcher struct {
	monitor  *Monitor
	probe    ProbeFunc
	interval time.Duration
}

func NewWatcher(monitor *Monitor, probe ProbeFunc, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Watcher{monitor: monitor, probe: probe, interval: interval}
}

func (w *Watcher) Run(ctx context.Context) {
	w.probeOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.probeOnce(ctx)
		}
	}
}

func (w *Watcher) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	err := w.probe(probeCtx)
	wasOnline := w.monitor.Online()
	w.monitor.SetOnline(err == nil)

	if err != nil && wasOnline {
		log.Printf("[netstatus] remote unreachable: %v", err)
	}
	if err == nil && !wasOnline {
		log.Printf("[netstatus] remote reachable again")
	}
}
